// Package grid loads benchmark-matrix configuration from HCL files. A grid
// names the task counts, per-task latency, and pool size for each
// comparison run:
//
//	defaults {
//	  latency_ms = 100
//	  workers    = 200
//	}
//
//	run "comparison" {
//	  task_counts = [100, 1000, 10000]
//	}
//
// The eval context exposes cpus, the machine's logical CPU count, for use
// in expressions such as workers = cpus * 25.
package grid

import (
	"fmt"
	"runtime"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

// Built-in defaults, matching the comparison harness this tool descends
// from: 100ms of simulated I/O per task against a 200-worker pool.
const (
	DefaultLatency = 100 * time.Millisecond
	DefaultWorkers = 200
)

// DefaultTaskCounts is the task-count ladder used when no grid file is
// given.
var DefaultTaskCounts = []int{100, 1_000, 10_000, 50_000}

// Grid is a parsed benchmark configuration.
type Grid struct {
	Defaults *Defaults `hcl:"defaults,block"`
	Runs     []Run     `hcl:"run,block"`
}

// Defaults applies to every run that does not override the value.
type Defaults struct {
	LatencyMS int64 `hcl:"latency_ms,optional"`
	Workers   int   `hcl:"workers,optional"`
}

// Run is one named benchmark matrix row set.
type Run struct {
	Name       string `hcl:"name,label"`
	TaskCounts []int  `hcl:"task_counts"`
	LatencyMS  int64  `hcl:"latency_ms,optional"`
	Workers    int    `hcl:"workers,optional"`
	Workload   string `hcl:"workload,optional"`
}

// Latency resolves the per-task simulated latency for r under g's defaults.
func (g *Grid) Latency(r Run) time.Duration {
	if r.LatencyMS > 0 {
		return time.Duration(r.LatencyMS) * time.Millisecond
	}
	if g.Defaults != nil && g.Defaults.LatencyMS > 0 {
		return time.Duration(g.Defaults.LatencyMS) * time.Millisecond
	}
	return DefaultLatency
}

// PoolWorkers resolves the worker-pool size for r under g's defaults.
func (g *Grid) PoolWorkers(r Run) int {
	if r.Workers > 0 {
		return r.Workers
	}
	if g.Defaults != nil && g.Defaults.Workers > 0 {
		return g.Defaults.Workers
	}
	return DefaultWorkers
}

// Load parses and validates the grid file at path.
func Load(path string) (*Grid, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, diags
	}
	return decode(file)
}

// Parse decodes grid configuration from an in-memory buffer.
func Parse(src []byte, filename string) (*Grid, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, diags
	}
	return decode(file)
}

// Default returns the grid used when no configuration file is given.
func Default() *Grid {
	return &Grid{
		Runs: []Run{{Name: "comparison", TaskCounts: DefaultTaskCounts}},
	}
}

func decode(file *hcl.File) (*Grid, error) {
	var g Grid
	if diags := gohcl.DecodeBody(file.Body, evalContext(), &g); diags.HasErrors() {
		return nil, diags
	}
	if len(g.Runs) == 0 {
		return nil, fmt.Errorf("grid: no run blocks defined")
	}
	for _, r := range g.Runs {
		if len(r.TaskCounts) == 0 {
			return nil, fmt.Errorf("grid: run %q has no task counts", r.Name)
		}
		for _, n := range r.TaskCounts {
			if n <= 0 {
				return nil, fmt.Errorf("grid: run %q has non-positive task count %d", r.Name, n)
			}
		}
	}
	return &g, nil
}

func evalContext() *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"cpus": cty.NumberIntVal(int64(runtime.NumCPU())),
		},
	}
}
