// Package sched provides pluggable task-scheduling backends behind a common
// Scheduler interface. The two backends trade off differently under blocking
// workloads: a bounded pool of persistent workers, and an unbounded
// goroutine-per-submission spawner.
package sched

import (
	"context"
	"time"

	"go.alexhamlin.co/taskbench/internal/task"
)

// NoValue is the canonical empty value type for schedulers whose tasks do
// not produce values.
type NoValue = struct{}

// Work is a unit of work submitted to a scheduler. It observes cancellation
// cooperatively through ctx, at its own suspension points.
type Work[V any] func(ctx context.Context) (V, error)

// Scheduler executes submitted work and returns an observable handle for
// each unit.
type Scheduler[V any] interface {
	// Submit enqueues work for execution under ctx and returns its handle
	// immediately. The returned handle's context descends from ctx.
	Submit(ctx context.Context, work Work[V]) *task.Handle[V]

	// InFlight returns the number of tasks currently executing.
	InFlight() int

	// Close waits for all submitted work to settle and releases the
	// scheduler's resources. The behavior of Submit after Close is
	// undefined; handles from racing submissions finish Cancelled.
	Close()
}

// Option configures a scheduler at construction.
type Option func(*options)

type options struct {
	observer task.Observer
}

// WithObserver registers an observer for the lifecycle of every task the
// scheduler runs.
func WithObserver(obs task.Observer) Option {
	return func(o *options) { o.observer = obs }
}

// Sleep simulates a blocking I/O operation of the given length. It is a
// designated suspension point: it returns ctx.Err() early if ctx is
// cancelled before the duration elapses.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
