package engine

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const engineTracerName = "flowmill.engine"

const (
	spanWorkflowExecute = "workflow.execute"
	spanStepRun         = "workflow.step.run"
)

func engineTracer() trace.Tracer {
	return otel.Tracer(engineTracerName)
}
