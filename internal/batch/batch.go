// Package batch runs task lists in fixed-size concurrent groups with a pause
// between groups.
package batch

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/tibia-housing-crawler/internal/metrics"
)

// Task produces one result. Recoverable failures should be handled inside
// the task and turned into a fallback value; a returned error fails the run.
type Task[T any] func(ctx context.Context) (T, error)

// Options bound a run.
type Options struct {
	// Concurrency is the group size; values below 1 run tasks one at a time.
	Concurrency int
	// Delay is the pause between consecutive groups.
	Delay time.Duration
	// OnGroupDone is called after each group with the number of finished tasks.
	OnGroupDone func(done, total int)
}

// Run executes tasks in consecutive groups of opts.Concurrency, awaiting each
// group before pausing and starting the next. result[i] belongs to tasks[i].
// The first task error cancels its siblings and stops the run.
func Run[T any](ctx context.Context, tasks []Task[T], opts Options) ([]T, error) {
	size := opts.Concurrency
	if size < 1 {
		size = 1
	}
	results := make([]T, len(tasks))

	for start := 0; start < len(tasks); start += size {
		if start > 0 && opts.Delay > 0 {
			if err := wait(ctx, opts.Delay); err != nil {
				return results, err
			}
		}
		if err := ctx.Err(); err != nil {
			return results, err
		}

		end := min(start+size, len(tasks))
		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			g.Go(func() error {
				metrics.IncTasksInFlight()
				defer metrics.DecTasksInFlight()
				out, err := tasks[i](gctx)
				if err != nil {
					return fmt.Errorf("task %d: %w", i, err)
				}
				results[i] = out
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return results, err
		}
		if opts.OnGroupDone != nil {
			opts.OnGroupDone(end, len(tasks))
		}
	}
	return results, nil
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
