// Package otel provides OpenTelemetry integration for stepflow run events.
package otel

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/grovelabs/stepflow"
)

// TracingHandler translates stepflow run events into OpenTelemetry spans.
// It maintains maps of active run and step spans, creating and ending them
// based on event kind.
type TracingHandler struct {
	tracer trace.Tracer

	mu        sync.RWMutex
	runSpans  map[string]trace.Span      // runID -> span
	runCtxs   map[string]context.Context // runID -> context (for child spans)
	stepSpans map[string]trace.Span      // runID:stepID -> span
}

// NewTracingHandler creates a new TracingHandler that uses the given tracer
// to create spans from run events.
func NewTracingHandler(tracer trace.Tracer) *TracingHandler {
	return &TracingHandler{
		tracer:    tracer,
		runSpans:  make(map[string]trace.Span),
		runCtxs:   make(map[string]context.Context),
		stepSpans: make(map[string]trace.Span),
	}
}

// Handle processes a run event and creates or ends spans accordingly.
// It implements stepflow.EventHandler semantics.
func (h *TracingHandler) Handle(e stepflow.Event) {
	switch e.Kind {
	case stepflow.EventRunStarted:
		h.handleRunStarted(e)
	case stepflow.EventStepStarted:
		h.handleStepStarted(e)
	case stepflow.EventStepFinished:
		h.handleStepFinished(e)
	case stepflow.EventStepFailed:
		h.handleStepFailed(e)
	case stepflow.EventDecision:
		h.handleDecision(e)
	case stepflow.EventRunFinished:
		h.handleRunFinished(e)
	}
}

// handleRunStarted creates a root span for the run.
func (h *TracingHandler) handleRunStarted(e stepflow.Event) {
	graphName := ""
	if name, ok := e.Payload["graph"]; ok {
		if s, ok := name.(string); ok {
			graphName = s
		}
	}

	spanName := "run:" + e.RunID
	if graphName != "" {
		spanName = "run:" + graphName
	}

	ctx, span := h.tracer.Start(context.Background(), spanName,
		trace.WithAttributes(
			attribute.String("stepflow.run_id", e.RunID),
		),
		trace.WithTimestamp(e.Time),
	)

	if graphName != "" {
		span.SetAttributes(attribute.String("stepflow.graph", graphName))
	}

	h.mu.Lock()
	h.runSpans[e.RunID] = span
	h.runCtxs[e.RunID] = ctx
	h.mu.Unlock()
}

// handleStepStarted creates a child span under the run span. Loop iterations
// of the same step are distinguished by the iteration attribute.
func (h *TracingHandler) handleStepStarted(e stepflow.Event) {
	h.mu.RLock()
	parentCtx, ok := h.runCtxs[e.RunID]
	h.mu.RUnlock()

	if !ok {
		// No parent run span; start from background context.
		parentCtx = context.Background()
	}

	spanName := "step:" + e.StepID

	_, span := h.tracer.Start(parentCtx, spanName,
		trace.WithAttributes(
			attribute.String("stepflow.run_id", e.RunID),
			attribute.String("stepflow.step_id", e.StepID),
			attribute.Int("stepflow.iteration", e.Iteration),
		),
		trace.WithTimestamp(e.Time),
	)

	key := e.RunID + ":" + e.StepID
	h.mu.Lock()
	h.stepSpans[key] = span
	h.mu.Unlock()
}

// handleStepFinished ends the step span with success status.
func (h *TracingHandler) handleStepFinished(e stepflow.Event) {
	key := e.RunID + ":" + e.StepID

	h.mu.Lock()
	span, ok := h.stepSpans[key]
	if ok {
		delete(h.stepSpans, key)
	}
	h.mu.Unlock()

	if ok {
		span.SetAttributes(
			attribute.String("stepflow.duration", e.Elapsed.String()),
		)
		span.SetStatus(codes.Ok, "")
		span.End(trace.WithTimestamp(e.Time))
	}
}

// handleStepFailed ends the step span with error status.
func (h *TracingHandler) handleStepFailed(e stepflow.Event) {
	key := e.RunID + ":" + e.StepID

	h.mu.Lock()
	span, ok := h.stepSpans[key]
	if ok {
		delete(h.stepSpans, key)
	}
	h.mu.Unlock()

	if ok {
		errMsg := "unknown error"
		if msg, found := e.Payload["error"]; found {
			if s, ok := msg.(string); ok {
				errMsg = s
			}
		}
		span.SetStatus(codes.Error, errMsg)
		span.RecordError(
			spanError(errMsg),
			trace.WithTimestamp(e.Time),
		)
		span.End(trace.WithTimestamp(e.Time))
	}
}

// handleDecision records the next-step decision as an event on the run span.
func (h *TracingHandler) handleDecision(e stepflow.Event) {
	h.mu.RLock()
	span, ok := h.runSpans[e.RunID]
	h.mu.RUnlock()

	if !ok {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("stepflow.step_id", e.StepID),
	}
	if kind, found := e.Payload["kind"]; found {
		if s, ok := kind.(string); ok {
			attrs = append(attrs, attribute.String("stepflow.decision", s))
		}
	}
	if target, found := e.Payload["target"]; found {
		if s, ok := target.(string); ok && s != "" {
			attrs = append(attrs, attribute.String("stepflow.target", s))
		}
	}

	span.AddEvent(string(e.Kind), trace.WithTimestamp(e.Time), trace.WithAttributes(attrs...))
}

// handleRunFinished ends the root run span.
func (h *TracingHandler) handleRunFinished(e stepflow.Event) {
	h.mu.Lock()
	span, ok := h.runSpans[e.RunID]
	if ok {
		delete(h.runSpans, e.RunID)
		delete(h.runCtxs, e.RunID)
	}
	h.mu.Unlock()

	if ok {
		status := ""
		if s, found := e.Payload["status"]; found {
			if str, ok := s.(string); ok {
				status = str
			}
		}

		span.SetAttributes(
			attribute.String("stepflow.duration", e.Elapsed.String()),
			attribute.String("stepflow.status", status),
		)

		if status == "failed" {
			errMsg := "run failed"
			if msg, found := e.Payload["error"]; found {
				if s, ok := msg.(string); ok {
					errMsg = s
				}
			}
			span.SetStatus(codes.Error, errMsg)
		} else {
			span.SetStatus(codes.Ok, "")
		}

		span.End(trace.WithTimestamp(e.Time))
	}
}

// ActiveSpanContext returns the SpanContext for the active step span
// identified by runID and stepID. Returns an empty SpanContext if not found.
func (h *TracingHandler) ActiveSpanContext(runID, stepID string) trace.SpanContext {
	key := runID + ":" + stepID

	h.mu.RLock()
	span, ok := h.stepSpans[key]
	h.mu.RUnlock()

	if !ok {
		return trace.SpanContext{}
	}
	return span.SpanContext()
}

// ActiveRunSpanContext returns the SpanContext for the active run span
// identified by runID. Returns an empty SpanContext if not found.
func (h *TracingHandler) ActiveRunSpanContext(runID string) trace.SpanContext {
	h.mu.RLock()
	span, ok := h.runSpans[runID]
	h.mu.RUnlock()

	if !ok {
		return trace.SpanContext{}
	}
	return span.SpanContext()
}

// spanError is a simple error type for recording span errors.
type spanError string

func (e spanError) Error() string { return string(e) }
