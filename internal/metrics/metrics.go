// Package metrics exports task lifecycle counters to Prometheus. It
// implements the task.Observer interface so either scheduler backend can be
// instrumented without knowing about the metrics stack.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go.alexhamlin.co/taskbench/internal/task"
)

// TaskMetrics observes task lifecycle events and maintains Prometheus
// collectors for them.
type TaskMetrics struct {
	started  prometheus.Counter
	finished *prometheus.CounterVec
	inflight prometheus.Gauge
	duration prometheus.Histogram
}

// New registers task collectors on reg and returns the observer.
func New(reg prometheus.Registerer) *TaskMetrics {
	factory := promauto.With(reg)
	return &TaskMetrics{
		started: factory.NewCounter(prometheus.CounterOpts{
			Name: "taskbench_tasks_started_total",
			Help: "Tasks that began running on a scheduler.",
		}),
		finished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "taskbench_tasks_finished_total",
			Help: "Tasks that reached a terminal state, by state.",
		}, []string{"state"}),
		inflight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "taskbench_tasks_inflight",
			Help: "Tasks currently running.",
		}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "taskbench_task_duration_seconds",
			Help:    "Wall-clock task duration from start to terminal state.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
	}
}

// TaskStarted implements [task.Observer].
func (m *TaskMetrics) TaskStarted(uint64) {
	m.started.Inc()
	m.inflight.Inc()
}

// TaskFinished implements [task.Observer].
func (m *TaskMetrics) TaskFinished(_ uint64, state task.State, started bool, d time.Duration) {
	m.finished.WithLabelValues(state.String()).Inc()
	if started {
		// Tasks cancelled before running never occupied the gauge and have
		// no meaningful duration.
		m.inflight.Dec()
		m.duration.Observe(d.Seconds())
	}
}

// Handler serves reg's collected metrics over HTTP.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
