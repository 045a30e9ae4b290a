package grid

import (
	"runtime"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestParseFullGrid(t *testing.T) {
	src := `
defaults {
  latency_ms = 100
  workers    = 200
}

run "comparison" {
  task_counts = [100, 1000, 10000]
}

run "staged" {
  task_counts = [500]
  workload    = "staged"
  workers     = 50
}
`
	g, err := Parse([]byte(src), "grid.hcl")
	if err != nil {
		t.Fatalf("Parse() returned unexpected error: %v", err)
	}

	want := &Grid{
		Defaults: &Defaults{LatencyMS: 100, Workers: 200},
		Runs: []Run{
			{Name: "comparison", TaskCounts: []int{100, 1000, 10000}},
			{Name: "staged", TaskCounts: []int{500}, Workload: "staged", Workers: 50},
		},
	}
	if diff := cmp.Diff(want, g); diff != "" {
		t.Errorf("Parse() mismatch (-want +got): %s", diff)
	}
}

func TestResolutionFallsBackToDefaults(t *testing.T) {
	g, err := Parse([]byte(`
defaults {
  latency_ms = 50
}

run "a" {
  task_counts = [10]
}

run "b" {
  task_counts = [10]
  latency_ms  = 200
  workers     = 8
}
`), "grid.hcl")
	if err != nil {
		t.Fatalf("Parse() returned unexpected error: %v", err)
	}

	a, b := g.Runs[0], g.Runs[1]
	if got := g.Latency(a); got != 50*time.Millisecond {
		t.Errorf("Latency(a) = %v, want 50ms from defaults", got)
	}
	if got := g.PoolWorkers(a); got != DefaultWorkers {
		t.Errorf("PoolWorkers(a) = %d, want built-in default %d", got, DefaultWorkers)
	}
	if got := g.Latency(b); got != 200*time.Millisecond {
		t.Errorf("Latency(b) = %v, want the run's own 200ms", got)
	}
	if got := g.PoolWorkers(b); got != 8 {
		t.Errorf("PoolWorkers(b) = %d, want 8", got)
	}
}

func TestCpusVariable(t *testing.T) {
	g, err := Parse([]byte(`
run "scaled" {
  task_counts = [10]
  workers     = cpus * 2
}
`), "grid.hcl")
	if err != nil {
		t.Fatalf("Parse() returned unexpected error: %v", err)
	}

	if got, want := g.Runs[0].Workers, runtime.NumCPU()*2; got != want {
		t.Errorf("workers = %d, want cpus*2 = %d", got, want)
	}
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name string
		src  string
	}{
		{"no runs", `defaults {}`},
		{"empty task counts", `run "x" { task_counts = [] }`},
		{"non-positive task count", `run "x" { task_counts = [0] }`},
		{"malformed", `run "x" {`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse([]byte(tc.src), "grid.hcl"); err == nil {
				t.Errorf("Parse(%q) succeeded, want error", tc.src)
			}
		})
	}
}

func TestDefaultGrid(t *testing.T) {
	g := Default()
	if len(g.Runs) != 1 {
		t.Fatalf("Default() has %d runs, want 1", len(g.Runs))
	}
	r := g.Runs[0]
	if diff := cmp.Diff(DefaultTaskCounts, r.TaskCounts); diff != "" {
		t.Errorf("default task counts mismatch (-want +got): %s", diff)
	}
	if got := g.Latency(r); got != DefaultLatency {
		t.Errorf("Latency() = %v, want %v", got, DefaultLatency)
	}
}
