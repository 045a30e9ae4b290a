// Package scope provides structured grouping of concurrent child tasks over
// a pluggable scheduler. A scope owns every task it forks, joins them at a
// single point, and applies one of two cancellation policies: shut down the
// group on the first failure, or on the first success. No child outlives its
// owning scope.
package scope

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.alexhamlin.co/taskbench/internal/sched"
	"go.alexhamlin.co/taskbench/internal/task"
)

// Policy selects how a scope reacts to child outcomes during join.
type Policy int

const (
	// ShutdownOnFailure waits for every child unless one fails; the first
	// chronological failure is captured and all other non-terminal children
	// are cancelled. Failures beyond the first are discarded. This loss is
	// deliberate: the captured failure is the group's representative cause.
	ShutdownOnFailure Policy = iota

	// ShutdownOnSuccess waits for the first child to succeed, captures its
	// value, and cancels the rest. If every child fails, the scope reports
	// an [*AggregateError] carrying each cause in completion order.
	ShutdownOnSuccess
)

func (p Policy) String() string {
	switch p {
	case ShutdownOnFailure:
		return "shutdown-on-failure"
	case ShutdownOnSuccess:
		return "shutdown-on-success"
	default:
		return "unknown"
	}
}

const (
	stateOpen int32 = iota
	stateJoining
	stateClosed
)

type successCapture[V any] struct{ value V }

type failureCapture struct{ err error }

// Scope is a structured group of child tasks sharing one cancellation
// policy and one join point. Create one with [New], fork children while
// Open, call [Scope.Join] exactly once, and always defer [Scope.Close].
type Scope[V any] struct {
	ctx    context.Context
	cancel context.CancelFunc
	policy Policy
	sched  sched.Scheduler[V]

	state atomic.Int32

	mu      sync.Mutex
	handles []*task.Handle[V]
	causes  []error // genuine failures, in completion order

	// The capture slots transition exactly once under concurrent
	// completions, claimed with a single compare-and-swap. They are never
	// guarded by a lock, so no lock is ever held across a suspension point.
	firstFailure atomic.Pointer[failureCapture]
	firstSuccess atomic.Pointer[successCapture[V]]

	won chan struct{} // closed when firstSuccess is claimed
}

// New creates an Open scope bound to the given scheduler. Bindings carried
// by ctx (see [WithBindings]) propagate to every forked child.
func New[V any](ctx context.Context, policy Policy, s sched.Scheduler[V]) *Scope[V] {
	if ctx == nil {
		ctx = context.Background()
	}
	sctx, cancel := context.WithCancel(ctx)
	return &Scope[V]{
		ctx:    sctx,
		cancel: cancel,
		policy: policy,
		sched:  s,
		won:    make(chan struct{}),
	}
}

// Context returns the scope's context. It is cancelled when the scope
// closes, and is the parent context for every forked child.
func (s *Scope[V]) Context() context.Context { return s.ctx }

// Policy returns the scope's cancellation policy.
func (s *Scope[V]) Policy() Policy { return s.policy }

// Fork submits work as a child of the scope and returns its handle. The
// child receives a deep-copied snapshot of the scope's bindings taken at
// spawn time. Fork panics with an [*InvalidStateError] if the scope is no
// longer Open.
func (s *Scope[V]) Fork(work sched.Work[V]) *task.Handle[V] {
	ctx := WithBindings(s.ctx, Bound(s.ctx).snapshot())
	wrapped := func(ctx context.Context) (V, error) {
		v, err := work(ctx)
		s.record(ctx, v, err)
		return v, err
	}

	s.mu.Lock()
	if s.state.Load() != stateOpen {
		s.mu.Unlock()
		panic(&InvalidStateError{Op: "fork", Reason: "scope is not open"})
	}
	h := s.sched.Submit(ctx, wrapped)
	s.handles = append(s.handles, h)
	s.mu.Unlock()
	return h
}

// record classifies one child outcome as it completes. It runs on the
// child's own execution unit, immediately before the handle turns terminal.
func (s *Scope[V]) record(ctx context.Context, value V, err error) {
	switch {
	case err == nil:
		if s.policy != ShutdownOnSuccess {
			return
		}
		if s.firstSuccess.CompareAndSwap(nil, &successCapture[V]{value: value}) {
			close(s.won)
			s.cancelChildren()
		}

	case ctx.Err() != nil && errors.Is(err, context.Canceled):
		// Cancellation is an internal signal, not a failure.

	default:
		claimed := s.firstFailure.CompareAndSwap(nil, &failureCapture{err: err})
		if s.policy == ShutdownOnSuccess {
			s.mu.Lock()
			s.causes = append(s.causes, err)
			s.mu.Unlock()
		}
		if claimed && s.policy == ShutdownOnFailure {
			s.cancelChildren()
		}
	}
}

// Join drives the scope's cancellation and completion state machine, then
// transitions it to Closed. It must be called exactly once; a second call
// returns an [*InvalidStateError].
//
// Under ShutdownOnFailure, Join returns once every child has settled. Under
// ShutdownOnSuccess, Join returns once a first success has been captured and
// the cancelled remainder has settled, or once every child has failed.
func (s *Scope[V]) Join() error {
	if !s.state.CompareAndSwap(stateOpen, stateJoining) {
		return &InvalidStateError{Op: "join", Reason: "scope already joined or closed"}
	}
	defer s.state.Store(stateClosed)

	handles := s.children()
	switch s.policy {
	case ShutdownOnSuccess:
		allDone := make(chan struct{})
		go func() {
			defer close(allDone)
			waitAll(handles)
		}()
		select {
		case <-s.won:
			s.cancelChildren()
		case <-allDone:
		}
		<-allDone

	default:
		waitAll(handles)
	}
	return nil
}

// Err returns the captured first failure, if any. Additional concurrent
// failures past the first were discarded during join. Err returns an
// [*InvalidStateError] if the scope has not been joined.
func (s *Scope[V]) Err() error {
	if s.state.Load() != stateClosed {
		return &InvalidStateError{Op: "err", Reason: "scope has not been joined"}
	}
	if f := s.firstFailure.Load(); f != nil {
		return f.err
	}
	return nil
}

// Result returns the captured first success of a ShutdownOnSuccess scope.
// If every child failed it returns an [*AggregateError] with each cause in
// completion order. Result returns an [*InvalidStateError] if the scope has
// not been joined or does not use ShutdownOnSuccess.
func (s *Scope[V]) Result() (V, error) {
	var zero V
	if s.policy != ShutdownOnSuccess {
		return zero, &InvalidStateError{Op: "result", Reason: "scope does not use shutdown-on-success"}
	}
	if s.state.Load() != stateClosed {
		return zero, &InvalidStateError{Op: "result", Reason: "scope has not been joined"}
	}
	if w := s.firstSuccess.Load(); w != nil {
		return w.value, nil
	}
	s.mu.Lock()
	causes := make([]error, len(s.causes))
	copy(causes, s.causes)
	s.mu.Unlock()
	return zero, &AggregateError{Causes: causes}
}

// Close releases the scope. If the scope was never joined, Close performs an
// implicit shutdown: it requests cancellation of every still-running child
// and waits for settlement before returning, so no child outlives the scope.
// Close is idempotent and safe to defer alongside Join.
func (s *Scope[V]) Close() {
	if s.state.CompareAndSwap(stateOpen, stateJoining) {
		s.cancel()
		waitAll(s.children())
		s.state.Store(stateClosed)
	}
	s.cancel()
}

// Children returns a snapshot of the handles the scope has forked so far.
func (s *Scope[V]) Children() []*task.Handle[V] {
	return s.children()
}

func (s *Scope[V]) children() []*task.Handle[V] {
	s.mu.Lock()
	defer s.mu.Unlock()
	handles := make([]*task.Handle[V], len(s.handles))
	copy(handles, s.handles)
	return handles
}

func (s *Scope[V]) cancelChildren() {
	for _, h := range s.children() {
		h.Cancel()
	}
}

func waitAll[V any](handles []*task.Handle[V]) {
	for _, h := range handles {
		<-h.Done()
	}
}
