package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/seantiz/vncmcp/internal/managed"
	"github.com/seantiz/vncmcp/internal/model"
	"github.com/seantiz/vncmcp/internal/remote"
	"github.com/seantiz/vncmcp/internal/store"
)

// JournalObserver records each run in a store. Store writes are blocking, so
// they go through the worker pool.
type JournalObserver struct {
	store  store.Store
	target remote.Config
	logger *slog.Logger

	create *managed.Task[*model.Run, struct{}]
	finish *managed.Task[finishRequest, struct{}]
}

type finishRequest struct {
	id  string
	out store.Outcome
}

var _ managed.Observer = (*JournalObserver)(nil)

// NewJournalObserver creates an observer writing to s. target is recorded
// with each run.
func NewJournalObserver(s store.Store, target remote.Config, logger *slog.Logger) *JournalObserver {
	if logger == nil {
		logger = slog.Default()
	}
	j := &JournalObserver{store: s, target: target, logger: logger}
	j.create = managed.Async(managed.NewCall("journal_create", func(r *model.Run) (struct{}, error) {
		return struct{}{}, s.CreateRun(context.Background(), r)
	}))
	j.finish = managed.Async(managed.NewCall("journal_finish", func(req finishRequest) (struct{}, error) {
		return struct{}{}, s.FinishRun(context.Background(), req.id, req.out)
	}))
	return j
}

// RunStarted inserts a running record.
func (j *JournalObserver) RunStarted(ctx context.Context, ec *managed.ExecutionContext) {
	r := &model.Run{
		ID:        ec.ID(),
		Status:    model.StatusRunning,
		Host:      j.target.Host,
		Port:      j.target.Port,
		StartedAt: ec.StartedAt(),
	}
	if _, err := j.create.Run(ctx, r); err != nil {
		j.logger.Error("failed to journal run start", "run_id", ec.ID(), "error", err)
	}
}

// RunFinished moves the record to its terminal status.
func (j *JournalObserver) RunFinished(ctx context.Context, ec *managed.ExecutionContext, err error) {
	out := Outcome(err, time.Now().UTC())
	if _, ferr := j.finish.Run(ctx, finishRequest{id: ec.ID(), out: out}); ferr != nil {
		j.logger.Error("failed to journal run finish", "run_id", ec.ID(), "error", ferr)
	}
}

// Outcome classifies a run result.
func Outcome(err error, finishedAt time.Time) store.Outcome {
	out := store.Outcome{Status: model.StatusCompleted, FinishedAt: finishedAt}
	var cancelled *managed.CancelledError
	switch {
	case err == nil:
	case errors.As(err, &cancelled):
		out.Status = model.StatusCancelled
		out.Signal = managed.SignalName(cancelled.Signal)
		out.Error = err.Error()
	default:
		out.Status = model.StatusFailed
		out.Error = err.Error()
	}
	return out
}
