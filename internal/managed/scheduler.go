package managed

import (
	"context"
	"fmt"
	"runtime/pprof"

	"golang.org/x/sync/errgroup"
)

// Scheduler modes accepted by ResolveScheduler.
const (
	SchedulerAuto    = "auto"
	SchedulerPlain   = "plain"
	SchedulerLabeled = "labeled"
)

// Scheduler spawns the top-level tasks of a run into a join group. Every
// implementation gives the same ordering and cancellation behaviour.
type Scheduler interface {
	Name() string
	Spawn(g *errgroup.Group, ctx context.Context, task string, fn func(context.Context) error)
}

// ResolveScheduler picks a Scheduler once at startup. In auto mode the labeled
// scheduler is used only when a profiler is exposed to read the labels.
func ResolveScheduler(mode string, profiling bool) (Scheduler, error) {
	switch mode {
	case "", SchedulerAuto:
		if profiling {
			return labeledScheduler{}, nil
		}
		return plainScheduler{}, nil
	case SchedulerPlain:
		return plainScheduler{}, nil
	case SchedulerLabeled:
		return labeledScheduler{}, nil
	default:
		return nil, fmt.Errorf("unknown scheduler %q", mode)
	}
}

type plainScheduler struct{}

func (plainScheduler) Name() string { return SchedulerPlain }

func (plainScheduler) Spawn(g *errgroup.Group, ctx context.Context, _ string, fn func(context.Context) error) {
	g.Go(func() error {
		return fn(ctx)
	})
}

// labeledScheduler tags each task goroutine with pprof labels so goroutine
// profiles can be attributed to a run.
type labeledScheduler struct{}

func (labeledScheduler) Name() string { return SchedulerLabeled }

func (labeledScheduler) Spawn(g *errgroup.Group, ctx context.Context, task string, fn func(context.Context) error) {
	labels := pprof.Labels("task", task)
	if ec := FromContext(ctx); ec != nil {
		labels = pprof.Labels("run", ec.ID(), "task", task)
	}

	g.Go(func() error {
		var err error
		pprof.Do(ctx, labels, func(ctx context.Context) {
			err = fn(ctx)
		})
		return err
	})
}
