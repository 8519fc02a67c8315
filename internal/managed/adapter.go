package managed

import (
	"context"
	"fmt"
	"sync"
)

// Task is a context-aware operation: it may suspend and observes cancellation
// through its context.
type Task[A, R any] struct {
	name string
	fn   func(context.Context, A) (R, error)
}

// NewTask names fn as a Task. Each call returns a distinct identity.
func NewTask[A, R any](name string, fn func(context.Context, A) (R, error)) *Task[A, R] {
	return &Task[A, R]{name: name, fn: fn}
}

// Name returns the task name.
func (t *Task[A, R]) Name() string { return t.name }

// Run invokes the task.
func (t *Task[A, R]) Run(ctx context.Context, arg A) (R, error) {
	return t.fn(ctx, arg)
}

// Call is a blocking operation.
type Call[A, R any] struct {
	name string
	fn   func(A) (R, error)
}

// NewCall names fn as a Call. Each call returns a distinct identity.
func NewCall[A, R any](name string, fn func(A) (R, error)) *Call[A, R] {
	return &Call[A, R]{name: name, fn: fn}
}

// Name returns the call name.
func (c *Call[A, R]) Name() string { return c.name }

// Invoke runs the call on the calling goroutine.
func (c *Call[A, R]) Invoke(arg A) (R, error) {
	return c.fn(arg)
}

// syncKey identifies a Sync adaptation: the same task driven by two runners
// yields two calls.
type syncKey struct {
	runner *Runner
	task   any
}

// Adapter caches keyed by operation pointer. Entries are never evicted.
var (
	syncCache  sync.Map
	asyncCache sync.Map
)

// Sync adapts t into a blocking Call. Each Invoke drives a complete r.Run
// with t as the body and blocks until it completes, is cancelled by a signal,
// or fails. Sync(r, t) == Sync(r, t).
func Sync[A, R any](r *Runner, t *Task[A, R]) *Call[A, R] {
	key := syncKey{runner: r, task: t}
	if v, ok := syncCache.Load(key); ok {
		return v.(*Call[A, R])
	}

	call := NewCall(t.name, func(arg A) (R, error) {
		return RunValue(context.Background(), r, func(ctx context.Context) (R, error) {
			return t.Run(ctx, arg)
		})
	})

	v, loaded := syncCache.LoadOrStore(key, call)
	if !loaded {
		adapterEntries.WithLabelValues("sync").Inc()
	}
	return v.(*Call[A, R])
}

// Async adapts c into a Task that runs c on the worker pool of the
// surrounding run and waits for it. Outside a lifespan the task fails with
// ErrNoPoolInstalled. Async(c) == Async(c).
func Async[A, R any](c *Call[A, R]) *Task[A, R] {
	if v, ok := asyncCache.Load(c); ok {
		return v.(*Task[A, R])
	}

	task := NewTask(c.name, func(ctx context.Context, arg A) (R, error) {
		return offload(ctx, c, arg)
	})

	v, loaded := asyncCache.LoadOrStore(c, task)
	if !loaded {
		adapterEntries.WithLabelValues("async").Inc()
	}
	return v.(*Task[A, R])
}

// offload dispatches c onto the pool and waits for it or for ctx. If ctx ends
// first the call keeps running on its worker; releasing the pool waits for it.
func offload[A, R any](ctx context.Context, c *Call[A, R], arg A) (R, error) {
	var zero R

	ec := FromContext(ctx)
	if ec == nil {
		return zero, ErrNoPoolInstalled
	}
	pool := ec.Pool()
	if pool == nil {
		return zero, ErrNoPoolInstalled
	}

	var (
		result   R
		err      error
		panicked any
	)
	done := make(chan struct{})

	submitErr := pool.Submit(ctx, func() {
		defer close(done)
		defer func() { panicked = recover() }()
		result, err = c.Invoke(arg)
	})
	if submitErr != nil {
		return zero, fmt.Errorf("offload %s: %w", c.name, submitErr)
	}

	select {
	case <-done:
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	if panicked != nil {
		panic(panicked)
	}
	return result, err
}
