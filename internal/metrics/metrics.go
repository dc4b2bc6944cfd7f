// Package metrics exposes Prometheus counters for the task pipeline.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

// TaskMetrics tracks task lifecycle and phase failures. A nil *TaskMetrics is valid and
// records nothing.
type TaskMetrics struct {
	started     *prometheus.CounterVec
	finished    *prometheus.CounterVec
	phaseErrors *prometheus.CounterVec
	inProgress  *prometheus.GaugeVec
	duration    *prometheus.HistogramVec
}

// New registers the task metrics, prefixed by namespace, with reg.
// It panics if the names are already registered.
func New(namespace string, reg prometheus.Registerer) *TaskMetrics {
	m := &TaskMetrics{
		started: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_tasks_started_total", namespace),
			Help: "Tasks dispatched, by kind.",
		}, []string{"kind"}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_tasks_finished_total", namespace),
			Help: "Tasks that reached a terminal state, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		phaseErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_phase_errors_total", namespace),
			Help: "Failed task phases, by phase.",
		}, []string{"phase"}),
		inProgress: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: fmt.Sprintf("%s_tasks_in_progress", namespace),
			Help: "Tasks currently in the registry, by kind.",
		}, []string{"kind"}),
		// downloads run from seconds to hours
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    fmt.Sprintf("%s_task_duration_seconds", namespace),
			Help:    "Wall-clock task duration, by kind.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}, []string{"kind"}),
	}
	reg.MustRegister(m.started, m.finished, m.phaseErrors, m.inProgress, m.duration)
	return m
}

func (m *TaskMetrics) TaskStarted(kind string) {
	if m == nil {
		return
	}
	m.started.WithLabelValues(kind).Inc()
	m.inProgress.WithLabelValues(kind).Inc()
}

func (m *TaskMetrics) TaskFinished(kind, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.finished.WithLabelValues(kind, outcome).Inc()
	m.inProgress.WithLabelValues(kind).Dec()
	m.duration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

func (m *TaskMetrics) PhaseFailed(phase string) {
	if m == nil {
		return
	}
	m.phaseErrors.WithLabelValues(phase).Inc()
}
