// Package task provides observable handles for single units of concurrent
// work. A Handle tracks one task from submission through a terminal state,
// supports blocking joins, and requests cooperative cancellation through the
// task's context.
package task

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// State is the lifecycle state of a task. States only move forward: a task
// starts Pending, becomes Running once a scheduler picks it up, and ends in
// exactly one of the terminal states.
type State int32

const (
	Pending State = iota
	Running
	Completed
	Failed
	Cancelled
)

// Terminal reports whether s is one of the final states.
func (s State) Terminal() bool {
	return s == Completed || s == Failed || s == Cancelled
}

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ErrCancelled is returned from [Handle.Join] for tasks that ended in the
// Cancelled state. Cancellation is a normal outcome rather than a task
// failure; owners that cancel a task should treat this result as expected.
var ErrCancelled = errors.New("task cancelled")

// Observer receives task lifecycle notifications. Implementations must be
// safe for concurrent use and must not block.
type Observer interface {
	TaskStarted(id uint64)

	// TaskFinished reports a terminal transition. started is false for
	// tasks cancelled before ever running, in which case d is zero.
	TaskFinished(id uint64, state State, started bool, d time.Duration)
}

var nextID atomic.Uint64

// Handle is the observable result slot for one submitted task. Schedulers
// create handles with [New] and drive them with [Handle.Run]; everyone else
// only reads from them.
type Handle[V any] struct {
	id    uint64
	state atomic.Int32
	done  chan struct{}

	ctx       context.Context
	cancelCtx context.CancelFunc
	cancelled atomic.Bool

	// Written by the running goroutine before done is closed, read only
	// after done is closed.
	value   V
	err     error
	started time.Time
	ended   time.Time

	obs Observer
}

// New creates a Pending handle whose task context descends from parent.
// A nil obs disables lifecycle notifications.
func New[V any](parent context.Context, obs Observer) *Handle[V] {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Handle[V]{
		id:        nextID.Add(1),
		done:      make(chan struct{}),
		ctx:       ctx,
		cancelCtx: cancel,
		obs:       obs,
	}
}

// ID returns the handle's process-unique identity.
func (h *Handle[V]) ID() uint64 { return h.id }

// State returns the task's current lifecycle state.
func (h *Handle[V]) State() State { return State(h.state.Load()) }

// Context returns the task's own context. It is cancelled by [Handle.Cancel]
// and by cancellation of the context the task was submitted under.
func (h *Handle[V]) Context() context.Context { return h.ctx }

// Done returns a channel that is closed when the task reaches a terminal
// state.
func (h *Handle[V]) Done() <-chan struct{} { return h.done }

// Cancel requests cooperative cancellation. It is idempotent and has no
// effect once the task is terminal. The task observes the request only at
// its own suspension points; a task past its last suspension point still
// runs to completion.
func (h *Handle[V]) Cancel() {
	if h.State().Terminal() {
		return
	}
	h.cancelled.Store(true)
	h.cancelCtx()
}

// CancelRequested reports whether Cancel has been called on this handle.
func (h *Handle[V]) CancelRequested() bool { return h.cancelled.Load() }

// Join blocks until the task is terminal, then returns its value or failure
// cause. Cancelled tasks yield [ErrCancelled].
func (h *Handle[V]) Join() (V, error) {
	<-h.done
	return h.value, h.err
}

// StartedAt returns the time the task began running. It is the zero time for
// tasks that were cancelled before starting, and is only stable once the
// task is terminal.
func (h *Handle[V]) StartedAt() time.Time { return h.started }

// EndedAt returns the time the task reached its terminal state. It is only
// stable once the task is terminal.
func (h *Handle[V]) EndedAt() time.Time { return h.ended }

// Run executes work on the calling goroutine and drives the handle to a
// terminal state. It must be called exactly once, by the scheduler that owns
// the handle. Panics in work are confined and recorded as failures carrying
// a [*PanicError].
func (h *Handle[V]) Run(work func(context.Context) (V, error)) {
	var zero V

	// A task whose context is already cancelled never starts; dequeueing is
	// a suspension point.
	if h.ctx.Err() != nil {
		h.finish(Cancelled, zero, ErrCancelled)
		return
	}

	h.started = time.Now()
	h.state.Store(int32(Running))
	if h.obs != nil {
		h.obs.TaskStarted(h.id)
	}

	value, err := confine(h.ctx, work)
	switch {
	case err == nil:
		h.finish(Completed, value, nil)
	case errors.Is(err, context.Canceled) && h.ctx.Err() != nil:
		h.finish(Cancelled, zero, ErrCancelled)
	default:
		h.finish(Failed, zero, err)
	}
}

func (h *Handle[V]) finish(state State, value V, err error) {
	h.value = value
	h.err = err
	h.ended = time.Now()
	h.state.Store(int32(state))
	h.cancelCtx()
	close(h.done)
	if h.obs != nil {
		started := !h.started.IsZero()
		var d time.Duration
		if started {
			d = h.ended.Sub(h.started)
		}
		h.obs.TaskFinished(h.id, state, started, d)
	}
}
