package managed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Observer is notified when a run starts and finishes. Both hooks run inside
// the lifespan, so they may offload work onto the pool with Async.
type Observer interface {
	RunStarted(ctx context.Context, ec *ExecutionContext)
	RunFinished(ctx context.Context, ec *ExecutionContext, err error)
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the runner's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithPoolCapacity overrides the worker pool size. Zero keeps the default.
func WithPoolCapacity(n int) Option {
	return func(r *Runner) { r.capacity = n }
}

// WithPoolFactory replaces the worker pool constructor.
func WithPoolFactory(f PoolFactory) Option {
	return func(r *Runner) { r.factory = f }
}

// WithSignalSource replaces the source of process signals.
func WithSignalSource(s SignalSource) Option {
	return func(r *Runner) { r.source = s }
}

// WithSignals sets which signals shut a run down.
func WithSignals(sigs ...os.Signal) Option {
	return func(r *Runner) { r.signals = sigs }
}

// WithScheduler sets the scheduler backend.
func WithScheduler(s Scheduler) Option {
	return func(r *Runner) {
		if s != nil {
			r.scheduler = s
		}
	}
}

// WithObserver adds a run observer.
func WithObserver(o Observer) Option {
	return func(r *Runner) { r.observers = append(r.observers, o) }
}

// Runner executes top-level operations under a managed lifecycle. A Runner is
// reusable, but only one run may be active in the process at a time.
type Runner struct {
	logger    *slog.Logger
	capacity  int
	factory   PoolFactory
	source    SignalSource
	signals   []os.Signal
	scheduler Scheduler
	observers []Observer
}

// NewRunner returns a Runner with the given options applied.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		logger:    slog.Default(),
		source:    OSSignals,
		signals:   DefaultSignals(),
		scheduler: plainScheduler{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// active guards against more than one execution context at a time.
var active atomic.Bool

// Run executes body inside a fresh execution context. It returns body's error
// unchanged, a *CancelledError when a signal shut the run down, or a setup
// error (*RuntimeInitError, ErrLifecycleViolation). When Run returns, the
// signal listener and body have exited and the pool has been released.
func (r *Runner) Run(ctx context.Context, body func(context.Context) error) (err error) {
	if !active.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: an execution context is already active", ErrLifecycleViolation)
	}
	defer active.Store(false)

	ec := newExecutionContext(r.logger)
	scope, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	scope = withExecutionContext(scope, ec)

	start := time.Now()
	ec.Logger().Debug("run starting", "scheduler", r.scheduler.Name())

	lifespan, err := OpenLifespan(ec, LifespanConfig{Capacity: r.capacity, Factory: r.factory})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := lifespan.Close(); cerr != nil && err == nil {
			err = cerr
		}
		r.record(ec, start, err)
	}()

	bridge := NewSignalBridge(r.source, r.signals, ec.Shutdown(), cancel, ec.Logger())
	if err := bridge.Start(); err != nil {
		return &RuntimeInitError{Component: "signal bridge", Err: err}
	}
	defer bridge.Stop()

	r.notifyStarted(scope, ec)
	defer func() {
		r.notifyFinished(context.WithoutCancel(scope), ec, err)
	}()

	listenCtx, stopListening := context.WithCancel(scope)
	defer stopListening()

	var (
		g       errgroup.Group
		bodyErr error
	)
	r.scheduler.Spawn(&g, listenCtx, "signal-bridge", bridge.Listen)
	r.scheduler.Spawn(&g, scope, "main", func(ctx context.Context) error {
		defer stopListening()
		bodyErr = body(ctx)
		bridge.Settle()
		return nil
	})
	_ = g.Wait()

	return outcome(bridge, ec, bodyErr)
}

// outcome maps the body's result onto the run result. A body that unwound
// because of the signal becomes a CancelledError; any other error, including
// one raised while shutting down, is returned as is.
func outcome(bridge *SignalBridge, ec *ExecutionContext, bodyErr error) error {
	if !bridge.Triggered() {
		return bodyErr
	}
	if bodyErr == nil || errors.Is(bodyErr, context.Canceled) || errors.Is(bodyErr, ErrCancelled) {
		return &CancelledError{Signal: ec.Shutdown().Signal()}
	}
	return bodyErr
}

func (r *Runner) notifyStarted(ctx context.Context, ec *ExecutionContext) {
	for _, o := range r.observers {
		o.RunStarted(ctx, ec)
	}
}

func (r *Runner) notifyFinished(ctx context.Context, ec *ExecutionContext, err error) {
	for _, o := range r.observers {
		o.RunFinished(ctx, ec, err)
	}
}

func (r *Runner) record(ec *ExecutionContext, start time.Time, err error) {
	elapsed := time.Since(start)
	runDuration.Observe(elapsed.Seconds())

	switch {
	case err == nil:
		runsTotal.WithLabelValues(outcomeCompleted).Inc()
		ec.Logger().Debug("run completed", "duration_ms", elapsed.Milliseconds())
	case errors.Is(err, ErrCancelled):
		runsTotal.WithLabelValues(outcomeCancelled).Inc()
		ec.Logger().Info("run cancelled", "duration_ms", elapsed.Milliseconds())
	default:
		runsTotal.WithLabelValues(outcomeFailed).Inc()
		ec.Logger().Debug("run failed", "duration_ms", elapsed.Milliseconds(), "error", err)
	}
}

// RunValue is Run for bodies that produce a value.
func RunValue[T any](ctx context.Context, r *Runner, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := r.Run(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
