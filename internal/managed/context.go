package managed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/seantiz/vncmcp/internal/workerpool"
)

// ExecutionContext is the state of one managed run. It is created by
// Runner.Run and is reachable from any context derived from the run scope via
// FromContext.
type ExecutionContext struct {
	id        string
	startedAt time.Time
	logger    *slog.Logger
	shutdown  *ShutdownEvent

	mu   sync.RWMutex
	pool *workerpool.Pool
}

// Status is a serializable snapshot of an ExecutionContext.
type Status struct {
	RunID        string            `json:"run_id"`
	StartedAt    time.Time         `json:"started_at"`
	ShuttingDown bool              `json:"shutting_down"`
	Signal       string            `json:"signal,omitempty"`
	Pool         *workerpool.Stats `json:"pool,omitempty"`
}

func newExecutionContext(logger *slog.Logger) *ExecutionContext {
	id := ulid.Make().String()
	return &ExecutionContext{
		id:        id,
		startedAt: time.Now().UTC(),
		logger:    logger.With("run_id", id),
		shutdown:  NewShutdownEvent(),
	}
}

// ID returns the run identifier.
func (ec *ExecutionContext) ID() string {
	return ec.id
}

// StartedAt returns when the run began.
func (ec *ExecutionContext) StartedAt() time.Time {
	return ec.startedAt
}

// Logger returns the run-scoped logger.
func (ec *ExecutionContext) Logger() *slog.Logger {
	return ec.logger
}

// Shutdown returns the run's shutdown event.
func (ec *ExecutionContext) Shutdown() *ShutdownEvent {
	return ec.shutdown
}

// Pool returns the installed worker pool, or nil outside a lifespan.
func (ec *ExecutionContext) Pool() *workerpool.Pool {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	return ec.pool
}

// setPool replaces the pool and returns the previous one.
func (ec *ExecutionContext) setPool(p *workerpool.Pool) *workerpool.Pool {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	prev := ec.pool
	ec.pool = p
	return prev
}

// Status returns a snapshot for diagnostics.
func (ec *ExecutionContext) Status() Status {
	st := Status{
		RunID:        ec.id,
		StartedAt:    ec.startedAt,
		ShuttingDown: ec.shutdown.IsSet(),
	}
	if sig := ec.shutdown.Signal(); sig != nil {
		st.Signal = SignalName(sig)
	}
	if p := ec.Pool(); p != nil {
		stats := p.Stats()
		st.Pool = &stats
	}
	return st
}

type contextKey struct{}

func withExecutionContext(ctx context.Context, ec *ExecutionContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ec)
}

// FromContext returns the ExecutionContext of the run ctx belongs to, or nil.
func FromContext(ctx context.Context) *ExecutionContext {
	ec, _ := ctx.Value(contextKey{}).(*ExecutionContext)
	return ec
}
