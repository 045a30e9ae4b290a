// Command taskbench compares a bounded worker-pool scheduler against an
// unbounded goroutine-per-task scheduler under uniform blocking workloads,
// and reports the speedup and memory ratio for each task count.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	flag "github.com/spf13/pflag"

	"go.alexhamlin.co/taskbench/internal/bench"
	"go.alexhamlin.co/taskbench/internal/grid"
	"go.alexhamlin.co/taskbench/internal/log"
	"go.alexhamlin.co/taskbench/internal/metrics"
	"go.alexhamlin.co/taskbench/internal/sched"
	"go.alexhamlin.co/taskbench/internal/task"
)

var (
	gridPath    = flag.String("grid", "", "HCL benchmark grid file (default: built-in comparison matrix)")
	taskCounts  = flag.IntSlice("tasks", nil, "Task counts to benchmark, overriding the grid")
	latency     = flag.Duration("latency", 0, "Simulated per-task latency, overriding the grid")
	workers     = flag.Int("workers", 0, "Worker pool size, overriding the grid")
	workload    = flag.String("workload", "", "Workload: sleep, staged, or cpu (default sleep)")
	metricsAddr = flag.String("metrics-addr", "", "Serve Prometheus metrics on this address while running")
	verbose     = flag.BoolP("verbose", "v", false, "Print debug logs")
)

func main() {
	flag.Parse()
	log.Setup(*verbose)
	if err := run(context.Background()); err != nil {
		slog.Error("benchmark failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	g, err := loadGrid()
	if err != nil {
		return err
	}

	var obs task.Observer
	if *metricsAddr != "" {
		registry := prometheus.NewRegistry()
		obs = metrics.New(registry)
		go serveMetrics(*metricsAddr, registry)
	}

	runner := &bench.Runner{}
	for _, r := range g.Runs {
		if err := runComparison(ctx, runner, g, r, obs); err != nil {
			return err
		}
	}
	return nil
}

func runComparison(ctx context.Context, runner *bench.Runner, g *grid.Grid, r grid.Run, obs task.Observer) error {
	perTask := g.Latency(r)
	if *latency > 0 {
		perTask = *latency
	}
	poolSize := g.PoolWorkers(r)
	if *workers > 0 {
		poolSize = *workers
	}
	counts := r.TaskCounts
	if len(*taskCounts) > 0 {
		counts = *taskCounts
	}
	work, workName, err := resolveWorkload(r, perTask)
	if err != nil {
		return err
	}

	fmt.Printf("=== %s ===\n", r.Name)
	fmt.Printf("workload: %s, pool size: %d\n\n", workName, poolSize)

	comparisons := make([]bench.Comparison, 0, len(counts))
	for _, n := range counts {
		slog.Debug("running configuration", "run", r.Name, "tasks", n)

		poolLabel := fmt.Sprintf("pool(%d)", poolSize)
		poolSample, err := runOne(ctx, runner, poolLabel, n, work, func() sched.Scheduler[sched.NoValue] {
			return sched.NewWorkerPool[sched.NoValue](poolSize, sched.WithObserver(obs))
		})
		if err != nil {
			return err
		}
		fmt.Printf("  %s\n", poolSample)

		spawnSample, err := runOne(ctx, runner, "goroutine-per-task", n, work, func() sched.Scheduler[sched.NoValue] {
			return sched.NewUnbounded[sched.NoValue](sched.WithObserver(obs))
		})
		if err != nil {
			return err
		}
		fmt.Printf("  %s\n", spawnSample)

		comparison := bench.Compare(poolSample, spawnSample)
		fmt.Printf("  %s\n\n", comparison)
		comparisons = append(comparisons, comparison)
	}

	fmt.Println(bench.RenderTable(comparisons))
	fmt.Println()
	return nil
}

func runOne(ctx context.Context, runner *bench.Runner, label string, n int, work bench.Workload, newScheduler func() sched.Scheduler[sched.NoValue]) (bench.Sample, error) {
	s := newScheduler()
	defer s.Close()
	return runner.Run(ctx, s, label, n, work)
}

func loadGrid() (*grid.Grid, error) {
	if *gridPath == "" {
		return grid.Default(), nil
	}
	return grid.Load(*gridPath)
}

func resolveWorkload(r grid.Run, perTask time.Duration) (bench.Workload, string, error) {
	name := r.Workload
	if *workload != "" {
		name = *workload
	}
	switch name {
	case "", "sleep":
		return bench.FixedLatency(perTask), fmt.Sprintf("sleep(%v)", perTask), nil
	case "staged":
		return bench.StagedRequest(), "staged request (50+30+20ms)", nil
	case "cpu":
		const fibN = 30
		return bench.Fibonacci(fibN), fmt.Sprintf("fibonacci(%d)", fibN), nil
	default:
		return nil, "", fmt.Errorf("unknown workload %q", name)
	}
}

func serveMetrics(addr string, registry *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(registry))
	slog.Info("serving metrics", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("metrics server stopped", "error", err)
	}
}
