package sched

import (
	"context"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"

	"go.alexhamlin.co/taskbench/internal/task"
)

// Unbounded runs every submission on its own goroutine. Blocking operations
// park the goroutine without occupying any fixed execution unit, so
// concurrency is limited only by memory rather than by a pool size.
//
// Unbounded applies no backpressure: submitting more tasks than the system
// can track degrades gracefully only up to memory exhaustion. This is an
// accepted property of the design, not a defect.
type Unbounded[V any] struct {
	obs      task.Observer
	inflight mapset.Set[uint64]
	wg       sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewUnbounded creates a goroutine-per-task scheduler.
func NewUnbounded[V any](opts ...Option) *Unbounded[V] {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &Unbounded[V]{
		obs:      o.observer,
		inflight: mapset.NewSet[uint64](),
	}
}

// Submit implements [Scheduler].
func (u *Unbounded[V]) Submit(ctx context.Context, work Work[V]) *task.Handle[V] {
	h := task.New[V](ctx, u.obs)

	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		h.Cancel()
		h.Run(work)
		return h
	}
	u.wg.Add(1)
	u.mu.Unlock()

	go func() {
		defer u.wg.Done()
		u.inflight.Add(h.ID())
		h.Run(work)
		u.inflight.Remove(h.ID())
	}()
	return h
}

// InFlight returns the number of tasks currently executing.
func (u *Unbounded[V]) InFlight() int {
	return u.inflight.Cardinality()
}

// Close waits for all submitted tasks to settle.
func (u *Unbounded[V]) Close() {
	u.mu.Lock()
	u.closed = true
	u.mu.Unlock()
	u.wg.Wait()
}
