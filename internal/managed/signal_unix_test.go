//go:build unix

package managed

import (
	"context"
	"errors"
	"os"
	"syscall"
	"testing"
	"time"
)

func TestRunCancelledByProcessSignal(t *testing.T) {
	r := NewRunner(WithLogger(discardLogger()), WithPoolCapacity(1))

	errCh := make(chan error, 1)
	go func() {
		errCh <- r.Run(context.Background(), func(ctx context.Context) error {
			if err := syscall.Kill(os.Getpid(), syscall.SIGTERM); err != nil {
				return err
			}
			<-ctx.Done()
			return ctx.Err()
		})
	}()

	select {
	case err := <-errCh:
		var cerr *CancelledError
		if !errors.As(err, &cerr) {
			t.Fatalf("err = %v, want *CancelledError", err)
		}
		if cerr.Signal != syscall.SIGTERM {
			t.Errorf("Signal = %v, want SIGTERM", cerr.Signal)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run was not cancelled by SIGTERM")
	}
}
