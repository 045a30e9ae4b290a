// Package bench drives uniform task workloads through a chosen scheduler
// and compares the resulting measurements across scheduling backends.
package bench

import (
	"fmt"
	"time"
)

// Sample is one benchmark measurement: N uniform tasks driven through a
// single scheduler. Samples are immutable once produced.
type Sample struct {
	Scheduler   string
	TaskCount   int
	Duration    time.Duration
	MemoryDelta int64 // bytes of heap growth across the run
}

// Throughput returns tasks completed per second.
func (s Sample) Throughput() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.TaskCount) / s.Duration.Seconds()
}

func (s Sample) String() string {
	return fmt.Sprintf("%s: %d tasks in %v (%.2f tasks/sec, %s heap)",
		s.Scheduler, s.TaskCount, s.Duration.Round(time.Millisecond), s.Throughput(), formatBytes(s.MemoryDelta))
}

func formatBytes(n int64) string {
	const mib = 1 << 20
	if n >= mib || n <= -mib {
		return fmt.Sprintf("%.1f MiB", float64(n)/mib)
	}
	return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
}
