package store

import (
	"context"
	"errors"
	"time"

	"github.com/seantiz/vncmcp/internal/model"
)

// ErrInvalidTransition is returned when a run status transition is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

// RunStats holds aggregate run statistics.
type RunStats struct {
	Total         int            `json:"total"`
	CountByStatus map[string]int `json:"count_by_status"`
	CountBySignal map[string]int `json:"count_by_signal"`
	AvgDurationMS float64        `json:"avg_duration_ms"`
}

// Outcome describes how a run ended.
type Outcome struct {
	Status     string
	Signal     string
	Error      string
	FinishedAt time.Time
}

// Store defines the persistence operations for the run journal.
type Store interface {
	CreateRun(ctx context.Context, r *model.Run) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*model.Run, int, error)
	FinishRun(ctx context.Context, id string, out Outcome) error
	GetRunStats(ctx context.Context) (*RunStats, error)
	Close() error
}
