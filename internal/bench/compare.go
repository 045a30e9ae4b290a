package bench

import (
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
)

// Comparison relates two samples of the same task count. Speedup and
// MemoryRatio are A relative to B: a speedup above 1 means B finished
// faster than A.
type Comparison struct {
	A, B        Sample
	Speedup     float64
	MemoryRatio float64
}

// Compare derives a comparison from two samples for the same task count. It
// is a pure function with no side effects.
func Compare(a, b Sample) Comparison {
	c := Comparison{A: a, B: b}
	if b.Duration > 0 {
		c.Speedup = float64(a.Duration) / float64(b.Duration)
	}
	if b.MemoryDelta > 0 && a.MemoryDelta > 0 {
		c.MemoryRatio = float64(a.MemoryDelta) / float64(b.MemoryDelta)
	}
	return c
}

func (c Comparison) String() string {
	return fmt.Sprintf("%s vs %s at n=%d: %.2fx speedup, %.2fx memory",
		c.A.Scheduler, c.B.Scheduler, c.A.TaskCount, c.Speedup, c.MemoryRatio)
}

// RenderTable formats a set of comparisons as an aligned text table, one row
// per task count.
func RenderTable(comparisons []Comparison) string {
	if len(comparisons) == 0 {
		return ""
	}
	header := fmt.Sprintf("%10s  %12s  %12s  %10s  %10s",
		"tasks", comparisons[0].A.Scheduler, comparisons[0].B.Scheduler, "speedup", "memory")
	rows := lo.Map(comparisons, func(c Comparison, _ int) string {
		return fmt.Sprintf("%10d  %12v  %12v  %9.2fx  %9.2fx",
			c.A.TaskCount,
			c.A.Duration.Round(time.Millisecond),
			c.B.Duration.Round(time.Millisecond),
			c.Speedup,
			c.MemoryRatio)
	})
	return header + "\n" + strings.Join(rows, "\n")
}

