package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func (m *Manager) initWorkflowMetrics(cfg Config) {
	m.workflowSubmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_submissions_total",
			Help:      "Total number of workflow submissions by status",
		},
		[]string{"status"},
	)

	m.workflowDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_duration_seconds",
			Help:      "Workflow execution duration in seconds by final status",
			Buckets:   cfg.WorkflowDurationBuckets,
		},
		[]string{"status"},
	)

	m.workflowsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workflows_active",
			Help:      "Current number of workflows being executed",
		},
	)

	m.registry.MustRegister(m.workflowSubmissions)
	m.registry.MustRegister(m.workflowDuration)
	m.registry.MustRegister(m.workflowsActive)
}

// RecordWorkflowSubmission records a workflow submission event.
func (m *Manager) RecordWorkflowSubmission(status string) {
	if !m.enabled {
		return
	}
	m.workflowSubmissions.WithLabelValues(status).Inc()
}

// RecordWorkflowDuration records how long a workflow ran before reaching
// the given terminal status.
func (m *Manager) RecordWorkflowDuration(status string, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.workflowDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// IncActiveWorkflows increments the active workflow gauge.
func (m *Manager) IncActiveWorkflows() {
	if !m.enabled {
		return
	}
	m.workflowsActive.Inc()
}

// DecActiveWorkflows decrements the active workflow gauge.
func (m *Manager) DecActiveWorkflows() {
	if !m.enabled {
		return
	}
	m.workflowsActive.Dec()
}
