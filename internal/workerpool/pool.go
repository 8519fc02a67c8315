package workerpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// MaxDefaultCapacity caps the automatically sized pool.
const MaxDefaultCapacity = 32

var (
	// ErrReleased is returned by Submit once the pool has been released.
	ErrReleased = errors.New("worker pool released")

	// ErrInvalidCapacity is returned by Acquire for a negative capacity.
	ErrInvalidCapacity = errors.New("invalid worker pool capacity")
)

// DefaultCapacity returns min(NumCPU+4, MaxDefaultCapacity).
func DefaultCapacity() int {
	return min(runtime.NumCPU()+4, MaxDefaultCapacity)
}

// Stats is a point-in-time view of a pool.
type Stats struct {
	Name      string `json:"name"`
	Capacity  int    `json:"capacity"`
	Workers   int    `json:"workers"`
	Active    int    `json:"active"`
	Queued    int    `json:"queued"`
	Completed int64  `json:"completed"`
	Panics    int64  `json:"panics"`
	Released  bool   `json:"released"`
}

// Option configures a Pool.
type Option func(*Pool)

// WithName sets the pool name used in logs and metric labels.
func WithName(name string) Option {
	return func(p *Pool) {
		if name != "" {
			p.name = name
		}
	}
}

// WithLogger sets the logger used to report recovered panics.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// Pool is a fixed set of worker goroutines pulling from a bounded queue.
type Pool struct {
	name     string
	capacity int
	logger   *slog.Logger
	queue    chan func()

	mu       sync.RWMutex
	released bool
	once     sync.Once
	wg       sync.WaitGroup

	workers   atomic.Int32
	active    atomic.Int32
	completed atomic.Int64
	panics    atomic.Int64
}

// Acquire starts a pool with the given number of workers. A capacity of zero
// selects DefaultCapacity.
func Acquire(capacity int, opts ...Option) (*Pool, error) {
	if capacity < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}
	if capacity == 0 {
		capacity = DefaultCapacity()
	}

	p := &Pool{
		name:     "default",
		capacity: capacity,
		logger:   slog.Default(),
		queue:    make(chan func(), capacity),
	}
	for _, opt := range opts {
		opt(p)
	}

	for i := 0; i < capacity; i++ {
		p.wg.Add(1)
		p.workers.Add(1)
		go p.workerLoop(i)
	}
	workersGauge.WithLabelValues(p.name).Set(float64(capacity))

	return p, nil
}

// Name returns the pool name.
func (p *Pool) Name() string {
	return p.name
}

// Capacity returns the number of workers the pool was started with.
func (p *Pool) Capacity() int {
	return p.capacity
}

// Submit queues task for execution. It blocks while the queue is full until
// ctx is done.
func (p *Pool) Submit(ctx context.Context, task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.released {
		return ErrReleased
	}

	select {
	case p.queue <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release stops accepting work, waits for every queued and in-flight task to
// finish and then stops the workers. It is safe to call more than once; later
// calls block until the first one has returned.
func (p *Pool) Release() {
	p.once.Do(func() {
		p.mu.Lock()
		p.released = true
		close(p.queue)
		p.mu.Unlock()

		p.wg.Wait()
	})
}

// Released reports whether Release has been called.
func (p *Pool) Released() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.released
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Name:      p.name,
		Capacity:  p.capacity,
		Workers:   int(p.workers.Load()),
		Active:    int(p.active.Load()),
		Queued:    len(p.queue),
		Completed: p.completed.Load(),
		Panics:    p.panics.Load(),
		Released:  p.Released(),
	}
}

func (p *Pool) workerLoop(id int) {
	defer p.wg.Done()
	defer func() {
		n := p.workers.Add(-1)
		workersGauge.WithLabelValues(p.name).Set(float64(n))
	}()

	for task := range p.queue {
		p.execute(id, task)
	}
}

// execute runs one task, keeping the worker alive if it panics.
func (p *Pool) execute(id int, task func()) {
	p.active.Add(1)
	activeGauge.WithLabelValues(p.name).Inc()
	start := time.Now()

	defer func() {
		taskDuration.WithLabelValues(p.name).Observe(time.Since(start).Seconds())
		activeGauge.WithLabelValues(p.name).Dec()
		p.active.Add(-1)
		p.completed.Add(1)

		if r := recover(); r != nil {
			p.panics.Add(1)
			tasksTotal.WithLabelValues(p.name, resultPanic).Inc()
			p.logger.Error("worker task panicked", "pool", p.name, "worker", id, "panic", r)
			return
		}
		tasksTotal.WithLabelValues(p.name, resultOK).Inc()
	}()

	task()
}
