package managed

import (
	"errors"
	"fmt"
	"sync"

	"github.com/seantiz/vncmcp/internal/workerpool"
)

// offloadPoolName labels the pool that serves async-adapted calls.
const offloadPoolName = "offload"

// PoolFactory builds the worker pool for a lifespan.
type PoolFactory func(capacity int, opts ...workerpool.Option) (*workerpool.Pool, error)

// LifespanConfig configures OpenLifespan.
type LifespanConfig struct {
	// Capacity is the pool size; zero selects workerpool.DefaultCapacity.
	Capacity int
	// Factory defaults to workerpool.Acquire.
	Factory PoolFactory
}

// The process-wide default target for offloaded work. Only a Lifespan writes it.
var (
	installMu sync.Mutex
	installed *workerpool.Pool
)

func install(p *workerpool.Pool) error {
	installMu.Lock()
	defer installMu.Unlock()

	if installed != nil {
		return fmt.Errorf("%w: worker pool %q is already installed", ErrLifecycleViolation, installed.Name())
	}
	installed = p
	return nil
}

func uninstall(p *workerpool.Pool) error {
	installMu.Lock()
	defer installMu.Unlock()

	if installed == nil || installed != p {
		return fmt.Errorf("%w: worker pool %q is not installed", ErrLifecycleViolation, p.Name())
	}
	installed = nil
	return nil
}

// InstalledPool returns the pool currently installed as the default target,
// or nil.
func InstalledPool() *workerpool.Pool {
	installMu.Lock()
	defer installMu.Unlock()
	return installed
}

// Lifespan binds a worker pool to an ExecutionContext for the duration of a
// scope. Close must be called on every exit path; it runs exactly once.
type Lifespan struct {
	ec   *ExecutionContext
	pool *workerpool.Pool
	prev *workerpool.Pool

	once sync.Once
	err  error
}

// OpenLifespan builds a pool, installs it as the process default and records
// it on ec. On failure nothing is left installed.
func OpenLifespan(ec *ExecutionContext, cfg LifespanConfig) (*Lifespan, error) {
	factory := cfg.Factory
	if factory == nil {
		factory = workerpool.Acquire
	}

	pool, err := factory(cfg.Capacity,
		workerpool.WithName(offloadPoolName),
		workerpool.WithLogger(ec.Logger()),
	)
	if err == nil && pool == nil {
		err = errors.New("factory returned no pool")
	}
	if err != nil {
		return nil, &RuntimeInitError{Component: "worker pool", Err: err}
	}

	if err := install(pool); err != nil {
		pool.Release()
		return nil, err
	}

	l := &Lifespan{
		ec:   ec,
		pool: pool,
		prev: ec.setPool(pool),
	}
	ec.Logger().Debug("worker pool installed", "capacity", pool.Capacity())
	return l, nil
}

// Pool returns the pool owned by this lifespan.
func (l *Lifespan) Pool() *workerpool.Pool {
	return l.pool
}

// Close waits for all outstanding work on the pool, releases it and restores
// the previous default. Later calls return the first call's result.
func (l *Lifespan) Close() error {
	l.once.Do(func() {
		l.ec.setPool(l.prev)
		l.err = uninstall(l.pool)
		l.pool.Release()

		stats := l.pool.Stats()
		l.ec.Logger().Debug("worker pool released",
			"completed", stats.Completed,
			"panics", stats.Panics,
		)
	})
	return l.err
}
