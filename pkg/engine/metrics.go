package engine

import "time"

// MetricsRecorder receives engine-level measurements. The metrics package
// Manager implements it; the engine falls back to a no-op recorder.
type MetricsRecorder interface {
	RecordWorkflowSubmission(status string)
	RecordWorkflowDuration(status string, duration time.Duration)
	IncActiveWorkflows()
	DecActiveWorkflows()

	RecordStepExecution(status string)
	RecordStepDuration(duration time.Duration)
	RecordStepRetry()
}

type nopMetrics struct{}

func (nopMetrics) RecordWorkflowSubmission(string)              {}
func (nopMetrics) RecordWorkflowDuration(string, time.Duration) {}
func (nopMetrics) IncActiveWorkflows()                          {}
func (nopMetrics) DecActiveWorkflows()                          {}
func (nopMetrics) RecordStepExecution(string)                   {}
func (nopMetrics) RecordStepDuration(time.Duration)             {}
func (nopMetrics) RecordStepRetry()                             {}
