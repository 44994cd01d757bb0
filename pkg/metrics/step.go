package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func (m *Manager) initStepMetrics(cfg Config) {
	m.stepExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_executions_total",
			Help:      "Total number of step executions by final status",
		},
		[]string{"status"},
	)

	m.stepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Step execution duration in seconds, including retries",
			Buckets:   cfg.StepDurationBuckets,
		},
	)

	m.stepRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_retries_total",
			Help:      "Total number of step retry attempts",
		},
	)

	m.registry.MustRegister(m.stepExecutions)
	m.registry.MustRegister(m.stepDuration)
	m.registry.MustRegister(m.stepRetries)
}

// RecordStepExecution records a finished step by its final status.
func (m *Manager) RecordStepExecution(status string) {
	if !m.enabled {
		return
	}
	m.stepExecutions.WithLabelValues(status).Inc()
}

// RecordStepDuration records how long a step ran across all attempts.
func (m *Manager) RecordStepDuration(duration time.Duration) {
	if !m.enabled {
		return
	}
	m.stepDuration.Observe(duration.Seconds())
}

// RecordStepRetry records a single retry attempt.
func (m *Manager) RecordStepRetry() {
	if !m.enabled {
		return
	}
	m.stepRetries.Inc()
}
