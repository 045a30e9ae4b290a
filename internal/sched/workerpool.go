package sched

import (
	"context"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"

	"go.alexhamlin.co/taskbench/internal/task"
)

// WorkerPool runs submitted work on a fixed number of persistent worker
// goroutines. Excess submissions queue FIFO without bound. A blocking
// operation inside a task occupies its worker for the operation's duration,
// which is what limits this scheduler's scalability under large numbers of
// blocking tasks.
type WorkerPool[V any] struct {
	workers int
	obs     task.Observer

	queue   []*submission[V]
	queueMu sync.Mutex
	closed  bool

	// ready is buffered to the number of workers and provides readiness
	// tokens that activate a worker to pull from the queue. Every push to
	// the queue attempts to send one token without blocking: if the buffer
	// is full, that is already enough to eventually activate all workers.
	ready chan struct{}

	inflight mapset.Set[uint64]
	wg       sync.WaitGroup
}

type submission[V any] struct {
	handle *task.Handle[V]
	work   Work[V]
}

// NewWorkerPool creates a pool with exactly workers persistent execution
// units. Panics if workers <= 0.
func NewWorkerPool[V any](workers int, opts ...Option) *WorkerPool[V] {
	if workers <= 0 {
		panic("sched: NewWorkerPool requires workers > 0")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	p := &WorkerPool[V]{
		workers:  workers,
		obs:      o.observer,
		ready:    make(chan struct{}, workers),
		inflight: mapset.NewSet[uint64](),
	}
	p.wg.Add(workers)
	for range workers {
		go p.worker()
	}
	return p
}

// Submit implements [Scheduler].
func (p *WorkerPool[V]) Submit(ctx context.Context, work Work[V]) *task.Handle[V] {
	h := task.New[V](ctx, p.obs)

	p.queueMu.Lock()
	if p.closed {
		p.queueMu.Unlock()
		h.Cancel()
		h.Run(work) // context already cancelled; finishes Cancelled without running work
		return h
	}
	p.queue = append(p.queue, &submission[V]{handle: h, work: work})
	// The token send stays under queueMu so it is ordered against Close
	// setting the closed flag; Close only closes ready after that flag is
	// visible to every later Submit.
	select {
	case p.ready <- struct{}{}:
	default:
	}
	p.queueMu.Unlock()
	return h
}

// InFlight returns the number of tasks currently occupying workers. It never
// exceeds the pool size.
func (p *WorkerPool[V]) InFlight() int {
	return p.inflight.Cardinality()
}

// Queued returns the number of submissions waiting for a worker.
func (p *WorkerPool[V]) Queued() int {
	p.queueMu.Lock()
	defer p.queueMu.Unlock()
	return len(p.queue)
}

// Workers returns the pool size fixed at creation.
func (p *WorkerPool[V]) Workers() int { return p.workers }

// Close drains the queue, waits for every worker to exit, and releases the
// pool. No work may be submitted after Close.
func (p *WorkerPool[V]) Close() {
	p.queueMu.Lock()
	alreadyClosed := p.closed
	p.closed = true
	p.queueMu.Unlock()
	if !alreadyClosed {
		close(p.ready)
	}
	p.wg.Wait()
}

func (p *WorkerPool[V]) worker() {
	defer p.wg.Done()
	for {
		if sub := p.pop(); sub != nil {
			p.inflight.Add(sub.handle.ID())
			sub.handle.Run(sub.work)
			p.inflight.Remove(sub.handle.ID())
			continue
		}
		if _, ok := <-p.ready; !ok {
			// Closed with an empty queue: this worker retires. Workers keep
			// pulling from the queue above until it is fully drained, so
			// close never strands a queued submission.
			return
		}
	}
}

func (p *WorkerPool[V]) pop() *submission[V] {
	p.queueMu.Lock()
	defer p.queueMu.Unlock()
	if len(p.queue) == 0 {
		return nil
	}
	sub := p.queue[0]
	p.queue = p.queue[1:]
	return sub
}
