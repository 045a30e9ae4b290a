package sched

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"go.alexhamlin.co/taskbench/internal/task"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// highWater tracks the peak number of concurrent callers.
type highWater struct {
	current atomic.Int64
	peak    atomic.Int64
}

func (hw *highWater) enter() {
	n := hw.current.Add(1)
	for {
		peak := hw.peak.Load()
		if n <= peak || hw.peak.CompareAndSwap(peak, n) {
			return
		}
	}
}

func (hw *highWater) exit() { hw.current.Add(-1) }

func TestWorkerPoolNeverExceedsSize(t *testing.T) {
	const (
		workers     = 4
		submissions = 48
	)
	p := NewWorkerPool[NoValue](workers)
	defer p.Close()

	var hw highWater
	handles := make([]*task.Handle[NoValue], 0, submissions)
	for range submissions {
		handles = append(handles, p.Submit(context.Background(), func(ctx context.Context) (NoValue, error) {
			hw.enter()
			defer hw.exit()
			return NoValue{}, Sleep(ctx, 5*time.Millisecond)
		}))
	}
	for _, h := range handles {
		if _, err := h.Join(); err != nil {
			t.Fatalf("Join() returned unexpected error: %v", err)
		}
	}

	if peak := hw.peak.Load(); peak > workers {
		t.Errorf("pool ran %d tasks concurrently, want at most %d", peak, workers)
	}
}

func TestWorkerPoolQueuesFIFO(t *testing.T) {
	const submissions = 16
	p := NewWorkerPool[int](1)
	defer p.Close()

	var order []int
	handles := make([]*task.Handle[int], 0, submissions)
	for i := range submissions {
		handles = append(handles, p.Submit(context.Background(), func(context.Context) (int, error) {
			order = append(order, i) // single worker, no race
			return i, nil
		}))
	}
	for _, h := range handles {
		if _, err := h.Join(); err != nil {
			t.Fatalf("Join() returned unexpected error: %v", err)
		}
	}

	want := make([]int, submissions)
	for i := range want {
		want[i] = i
	}
	if diff := cmp.Diff(want, order); diff != "" {
		t.Errorf("tasks ran out of submission order (-want +got): %s", diff)
	}
}

func TestWorkerPoolCloseDrainsQueue(t *testing.T) {
	const submissions = 20
	p := NewWorkerPool[NoValue](2)

	var ran atomic.Int64
	handles := make([]*task.Handle[NoValue], 0, submissions)
	for range submissions {
		handles = append(handles, p.Submit(context.Background(), func(context.Context) (NoValue, error) {
			ran.Add(1)
			return NoValue{}, nil
		}))
	}
	p.Close()

	for _, h := range handles {
		if state := h.State(); state != task.Completed {
			t.Errorf("handle state after Close = %v, want %v", state, task.Completed)
		}
	}
	if got := ran.Load(); got != submissions {
		t.Errorf("%d tasks ran, want %d", got, submissions)
	}
}

func TestWorkerPoolCancelWhileQueued(t *testing.T) {
	p := NewWorkerPool[NoValue](1)
	defer p.Close()

	release := make(chan struct{})
	occupying := p.Submit(context.Background(), func(context.Context) (NoValue, error) {
		<-release
		return NoValue{}, nil
	})

	var ran atomic.Bool
	queued := p.Submit(context.Background(), func(context.Context) (NoValue, error) {
		ran.Store(true)
		return NoValue{}, nil
	})

	queued.Cancel()
	close(release)

	if _, err := occupying.Join(); err != nil {
		t.Fatalf("Join() returned unexpected error: %v", err)
	}
	<-queued.Done()

	if ran.Load() {
		t.Error("cancelled queued task still ran")
	}
	if state := queued.State(); state != task.Cancelled {
		t.Errorf("queued handle state = %v, want %v", state, task.Cancelled)
	}
}

func TestWorkerPoolOccupiedByBlocking(t *testing.T) {
	// Two blocking tasks on a one-worker pool must serialize: the pool's
	// unit stays occupied for the full blocking duration.
	const latency = 30 * time.Millisecond
	p := NewWorkerPool[NoValue](1)
	defer p.Close()

	start := time.Now()
	a := p.Submit(context.Background(), func(ctx context.Context) (NoValue, error) {
		return NoValue{}, Sleep(ctx, latency)
	})
	b := p.Submit(context.Background(), func(ctx context.Context) (NoValue, error) {
		return NoValue{}, Sleep(ctx, latency)
	})
	for _, h := range []*task.Handle[NoValue]{a, b} {
		if _, err := h.Join(); err != nil {
			t.Fatalf("Join() returned unexpected error: %v", err)
		}
	}

	if elapsed := time.Since(start); elapsed < 2*latency {
		t.Errorf("two blocking tasks on one worker finished in %v, want at least %v", elapsed, 2*latency)
	}
}

func TestUnboundedScalesWithBlockingTasks(t *testing.T) {
	const (
		submissions = 10_000
		latency     = 100 * time.Millisecond
	)
	u := NewUnbounded[NoValue]()
	defer u.Close()

	start := time.Now()
	handles := make([]*task.Handle[NoValue], 0, submissions)
	for range submissions {
		handles = append(handles, u.Submit(context.Background(), func(ctx context.Context) (NoValue, error) {
			return NoValue{}, Sleep(ctx, latency)
		}))
	}
	for _, h := range handles {
		if _, err := h.Join(); err != nil {
			t.Fatalf("Join() returned unexpected error: %v", err)
		}
	}
	elapsed := time.Since(start)

	if elapsed < latency {
		t.Errorf("%d blocking tasks finished in %v, faster than the task latency %v", submissions, elapsed, latency)
	}
	// Wall time should track the per-task latency, not the task count. The
	// bound is generous to tolerate loaded test machines.
	if elapsed > 20*latency {
		t.Errorf("%d blocking tasks took %v, want close to %v", submissions, elapsed, latency)
	}
}

func TestSubmitAfterCloseFinishesCancelled(t *testing.T) {
	p := NewWorkerPool[NoValue](1)
	p.Close()

	h := p.Submit(context.Background(), func(context.Context) (NoValue, error) {
		t.Error("task submitted after Close ran")
		return NoValue{}, nil
	})
	if _, err := h.Join(); err != task.ErrCancelled {
		t.Errorf("Join() error = %v, want %v", err, task.ErrCancelled)
	}

	u := NewUnbounded[NoValue]()
	u.Close()
	h = u.Submit(context.Background(), func(context.Context) (NoValue, error) {
		t.Error("task submitted after Close ran")
		return NoValue{}, nil
	})
	if _, err := h.Join(); err != task.ErrCancelled {
		t.Errorf("Join() error = %v, want %v", err, task.ErrCancelled)
	}
}

func TestSleepHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Sleep(ctx, time.Minute)
	}()

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Sleep() = %v, want %v", err, context.Canceled)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Sleep did not observe cancellation")
	}
}

func TestInFlightTracking(t *testing.T) {
	p := NewWorkerPool[NoValue](2)
	defer p.Close()

	running := make(chan struct{}, 2)
	release := make(chan struct{})
	for range 2 {
		p.Submit(context.Background(), func(context.Context) (NoValue, error) {
			running <- struct{}{}
			<-release
			return NoValue{}, nil
		})
	}
	<-running
	<-running

	if got := p.InFlight(); got != 2 {
		t.Errorf("InFlight() = %d, want 2", got)
	}
	close(release)
}
