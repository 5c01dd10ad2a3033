package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/grovelabs/stepflow"
)

// MetricsHandler translates stepflow run events into OpenTelemetry metrics.
// It records counters and histograms for step executions, failures, and run
// durations.
type MetricsHandler struct {
	stepExecutions metric.Int64Counter
	stepFailures   metric.Int64Counter
	stepDuration   metric.Float64Histogram
	runDuration    metric.Float64Histogram
}

// NewMetricsHandler creates a MetricsHandler that uses the given meter to
// create instruments for recording stepflow run metrics.
func NewMetricsHandler(meter metric.Meter) (*MetricsHandler, error) {
	stepExec, err := meter.Int64Counter("stepflow.step.executions",
		metric.WithDescription("Number of step executions"),
	)
	if err != nil {
		return nil, err
	}

	stepFail, err := meter.Int64Counter("stepflow.step.failures",
		metric.WithDescription("Number of step failures"),
	)
	if err != nil {
		return nil, err
	}

	stepDur, err := meter.Float64Histogram("stepflow.step.duration",
		metric.WithDescription("Duration of step execution in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	runDur, err := meter.Float64Histogram("stepflow.run.duration",
		metric.WithDescription("Duration of workflow run in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &MetricsHandler{
		stepExecutions: stepExec,
		stepFailures:   stepFail,
		stepDuration:   stepDur,
		runDuration:    runDur,
	}, nil
}

// Handle processes a run event and records the appropriate metrics.
// It implements stepflow.EventHandler semantics.
func (h *MetricsHandler) Handle(e stepflow.Event) {
	switch e.Kind {
	case stepflow.EventStepFinished:
		h.handleStepFinished(e)
	case stepflow.EventStepFailed:
		h.handleStepFailed(e)
	case stepflow.EventRunFinished:
		h.handleRunFinished(e)
	}
}

// handleStepFinished increments the execution counter and records duration.
func (h *MetricsHandler) handleStepFinished(e stepflow.Event) {
	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("step_id", e.StepID),
	)
	h.stepExecutions.Add(ctx, 1, attrs)
	h.stepDuration.Record(ctx, e.Elapsed.Seconds(), attrs)
}

// handleStepFailed increments the failure counter.
func (h *MetricsHandler) handleStepFailed(e stepflow.Event) {
	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("step_id", e.StepID),
	)
	h.stepFailures.Add(ctx, 1, attrs)
}

// handleRunFinished records the workflow run duration.
func (h *MetricsHandler) handleRunFinished(e stepflow.Event) {
	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("run_id", e.RunID),
	)
	h.runDuration.Record(ctx, e.Elapsed.Seconds(), attrs)
}
