package bench

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"go.alexhamlin.co/taskbench/internal/sched"
	"go.alexhamlin.co/taskbench/internal/scope"
	"go.alexhamlin.co/taskbench/internal/task"
)

// DefaultSettle is how long the runner pauses after forcing a collection,
// to let the measurement baseline stabilize.
const DefaultSettle = 100 * time.Millisecond

// Runner drives N uniform tasks through a scheduler and produces one
// [Sample] per run.
type Runner struct {
	// Settle overrides the post-GC stabilization pause. Zero means
	// [DefaultSettle].
	Settle time.Duration
}

// Run submits taskCount copies of workload to s, joins them all, and
// measures wall-clock time and heap growth. If any task fails, Run surfaces
// that failure and produces no sample.
func (r *Runner) Run(ctx context.Context, s sched.Scheduler[sched.NoValue], label string, taskCount int, workload Workload) (Sample, error) {
	if taskCount <= 0 {
		return Sample{}, fmt.Errorf("bench: task count must be positive, got %d", taskCount)
	}

	r.quiesce()
	var before runtime.MemStats
	runtime.ReadMemStats(&before)

	sc := scope.New(ctx, scope.ShutdownOnFailure, s)
	defer sc.Close()

	start := time.Now()
	handles := make([]*task.Handle[sched.NoValue], 0, taskCount)
	for range taskCount {
		handles = append(handles, sc.Fork(func(ctx context.Context) (sched.NoValue, error) {
			return sched.NoValue{}, workload(ctx)
		}))
	}

	var g errgroup.Group
	for _, h := range handles {
		g.Go(func() error {
			_, err := h.Join()
			if errors.Is(err, task.ErrCancelled) {
				// A cancelled sibling means another task already failed;
				// the scope reports that representative cause below.
				return nil
			}
			return err
		})
	}
	joinErr := g.Wait()
	elapsed := time.Since(start)

	if err := sc.Join(); err != nil {
		return Sample{}, err
	}
	if err := sc.Err(); err != nil {
		return Sample{}, fmt.Errorf("bench: task failed: %w", err)
	}
	if joinErr != nil {
		return Sample{}, fmt.Errorf("bench: task failed: %w", joinErr)
	}

	var after runtime.MemStats
	runtime.ReadMemStats(&after)

	return Sample{
		Scheduler:   label,
		TaskCount:   taskCount,
		Duration:    elapsed,
		MemoryDelta: int64(after.HeapAlloc) - int64(before.HeapAlloc),
	}, nil
}

// quiesce forces a collection and pauses briefly so that leftover garbage
// from earlier runs does not pollute the heap delta.
func (r *Runner) quiesce() {
	runtime.GC()
	settle := r.Settle
	if settle == 0 {
		settle = DefaultSettle
	}
	time.Sleep(settle)
}
