package managed

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/seantiz/vncmcp/internal/workerpool"
)

func TestLifespanInstallsAndReleases(t *testing.T) {
	ec := newTestExecutionContext()

	l, err := OpenLifespan(ec, LifespanConfig{Capacity: 2})
	if err != nil {
		t.Fatalf("OpenLifespan: %v", err)
	}

	if InstalledPool() != l.Pool() {
		t.Error("lifespan pool is not the installed default")
	}
	if ec.Pool() != l.Pool() {
		t.Error("lifespan pool is not recorded on the execution context")
	}

	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if InstalledPool() != nil {
		t.Error("pool still installed after Close")
	}
	if ec.Pool() != nil {
		t.Error("execution context still references pool after Close")
	}
	if got := l.Pool().Stats().Workers; got != 0 {
		t.Errorf("Workers = %d after Close, want 0", got)
	}
}

func TestLifespanCloseRunsOnce(t *testing.T) {
	ec := newTestExecutionContext()
	l, err := OpenLifespan(ec, LifespanConfig{Capacity: 1})
	if err != nil {
		t.Fatalf("OpenLifespan: %v", err)
	}

	if err := l.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
}

func TestLifespanCloseWaitsForOutstandingWork(t *testing.T) {
	ec := newTestExecutionContext()
	l, err := OpenLifespan(ec, LifespanConfig{Capacity: 1})
	if err != nil {
		t.Fatalf("OpenLifespan: %v", err)
	}

	var finished atomic.Bool
	err = l.Pool().Submit(t.Context(), func() {
		time.Sleep(30 * time.Millisecond)
		finished.Store(true)
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !finished.Load() {
		t.Error("Close returned before outstanding work finished")
	}
}

func TestOverlappingLifespans(t *testing.T) {
	first, err := OpenLifespan(newTestExecutionContext(), LifespanConfig{Capacity: 1})
	if err != nil {
		t.Fatalf("OpenLifespan first: %v", err)
	}
	defer first.Close()

	var second *workerpool.Pool
	factory := func(capacity int, opts ...workerpool.Option) (*workerpool.Pool, error) {
		p, err := workerpool.Acquire(capacity, opts...)
		second = p
		return p, err
	}

	ec := newTestExecutionContext()
	_, err = OpenLifespan(ec, LifespanConfig{Capacity: 1, Factory: factory})
	if !errors.Is(err, ErrLifecycleViolation) {
		t.Fatalf("err = %v, want ErrLifecycleViolation", err)
	}

	if InstalledPool() != first.Pool() {
		t.Error("first pool was displaced by the failed lifespan")
	}
	if ec.Pool() != nil {
		t.Error("failed lifespan left a pool on its execution context")
	}
	if second == nil || !second.Released() {
		t.Error("pool built by the failed lifespan was not released")
	}
}

func TestLifespanFactoryFailure(t *testing.T) {
	boom := errors.New("out of threads")
	factory := func(int, ...workerpool.Option) (*workerpool.Pool, error) {
		return nil, boom
	}

	ec := newTestExecutionContext()
	_, err := OpenLifespan(ec, LifespanConfig{Factory: factory})

	var initErr *RuntimeInitError
	if !errors.As(err, &initErr) {
		t.Fatalf("err = %v, want *RuntimeInitError", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("err does not wrap factory error: %v", err)
	}
	if InstalledPool() != nil {
		t.Error("pool installed despite factory failure")
	}
	if ec.Pool() != nil {
		t.Error("execution context has a pool despite factory failure")
	}
}

func TestLifespanInvalidCapacity(t *testing.T) {
	_, err := OpenLifespan(newTestExecutionContext(), LifespanConfig{Capacity: -3})

	var initErr *RuntimeInitError
	if !errors.As(err, &initErr) {
		t.Fatalf("err = %v, want *RuntimeInitError", err)
	}
	if !errors.Is(err, workerpool.ErrInvalidCapacity) {
		t.Errorf("err = %v, want wrapped ErrInvalidCapacity", err)
	}
}

func TestUninstallWithoutInstall(t *testing.T) {
	p, err := workerpool.Acquire(1)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer p.Release()

	if err := uninstall(p); !errors.Is(err, ErrLifecycleViolation) {
		t.Errorf("uninstall = %v, want ErrLifecycleViolation", err)
	}
}

func TestLifespanCloseDetachesBeforeDraining(t *testing.T) {
	ec := newTestExecutionContext()
	l, err := OpenLifespan(ec, LifespanConfig{Capacity: 1})
	if err != nil {
		t.Fatalf("OpenLifespan: %v", err)
	}
	ctx := withExecutionContext(t.Context(), ec)

	lateCall := NewCall("late", func(int) (int, error) { return 1, nil })
	late := Async(lateCall)

	started := make(chan struct{})
	lateErr := make(chan error, 1)
	err = l.Pool().Submit(t.Context(), func() {
		close(started)
		// Runs while Close is draining the pool.
		time.Sleep(30 * time.Millisecond)
		_, err := late.Run(ctx, 0)
		lateErr <- err
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-started

	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := <-lateErr; !errors.Is(err, ErrNoPoolInstalled) {
		t.Errorf("Async during Close = %v, want ErrNoPoolInstalled", err)
	}
}
