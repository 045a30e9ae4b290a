package bench

import (
	"context"
	"time"

	"github.com/hackebrot/go-fibonacci"

	"go.alexhamlin.co/taskbench/internal/sched"
)

// Workload is the uniform body every benchmarked task runs.
type Workload func(ctx context.Context) error

// FixedLatency simulates a single blocking I/O call of length d.
func FixedLatency(d time.Duration) Workload {
	return func(ctx context.Context) error {
		return sched.Sleep(ctx, d)
	}
}

// StagedRequest simulates handling one request: 50ms of network I/O, a 30ms
// database query, and 20ms of response processing, with a suspension point
// between stages.
func StagedRequest() Workload {
	stages := []time.Duration{
		50 * time.Millisecond,
		30 * time.Millisecond,
		20 * time.Millisecond,
	}
	return func(ctx context.Context) error {
		for _, d := range stages {
			if err := sched.Sleep(ctx, d); err != nil {
				return err
			}
		}
		return nil
	}
}

// Fibonacci computes the nth Fibonacci number recursively. It is the
// CPU-bound contrast case: it never suspends, so it neither yields a worker
// nor observes cancellation mid-computation.
func Fibonacci(n int) Workload {
	strategy := fibonacci.NewRecursive()
	return func(context.Context) error {
		strategy.Compute(n)
		return nil
	}
}
