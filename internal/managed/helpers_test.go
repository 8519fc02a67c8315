package managed

import (
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
)

// fakeSignals is a SignalSource driven by the test.
type fakeSignals struct {
	mu      sync.Mutex
	ch      chan<- os.Signal
	stopped int
}

func (f *fakeSignals) Notify(c chan<- os.Signal, _ ...os.Signal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ch = c
}

func (f *fakeSignals) Stop(_ chan<- os.Signal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
}

func (f *fakeSignals) Send(t *testing.T, sig os.Signal) {
	t.Helper()
	f.mu.Lock()
	ch := f.ch
	f.mu.Unlock()
	if ch == nil {
		t.Fatal("Send before Notify")
	}
	ch <- sig
}

func (f *fakeSignals) Stopped() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newTestRunner(src *fakeSignals, opts ...Option) *Runner {
	base := []Option{
		WithLogger(discardLogger()),
		WithSignalSource(src),
		WithPoolCapacity(2),
	}
	return NewRunner(append(base, opts...)...)
}

func newTestExecutionContext() *ExecutionContext {
	return newExecutionContext(discardLogger())
}
