package stepflow

import (
	"time"
)

// EventKind identifies the type of event emitted by the executor.
type EventKind string

const (
	// EventRunStarted is emitted when a graph run begins.
	EventRunStarted EventKind = "run.started"

	// EventStepStarted is emitted when a step begins execution.
	EventStepStarted EventKind = "step.started"

	// EventStepFailed is emitted when a step's handler fails.
	EventStepFailed EventKind = "step.failed"

	// EventStepFinished is emitted when a step completes successfully.
	EventStepFinished EventKind = "step.finished"

	// EventDecision is emitted after next-step resolution for an iteration.
	EventDecision EventKind = "decision.resolved"

	// EventRunFinished is emitted when a graph run completes.
	EventRunFinished EventKind = "run.finished"
)

// String returns the string representation of the EventKind.
func (k EventKind) String() string {
	return string(k)
}

// Event is a structured, streamable record of what happened during execution.
// Events should be kept small; the full state snapshot lives in the run
// registry, not in event payloads.
type Event struct {
	// Kind identifies the event type.
	Kind EventKind `json:"kind"`

	// RunID is the unique identifier for this run.
	RunID string `json:"run_id"`

	// StepID is the step that produced this event (empty for run-level events).
	StepID string `json:"step_id,omitempty"`

	// Time is when the event occurred.
	Time time.Time `json:"time"`

	// Iteration is the 1-indexed loop iteration the event belongs to
	// (0 for run-level events).
	Iteration int `json:"iteration,omitempty"`

	// Elapsed is the duration since the run or step started.
	Elapsed time.Duration `json:"elapsed"`

	// Seq is a monotonic sequence number per run (1-indexed).
	Seq uint64 `json:"seq"`

	// TraceID is the OpenTelemetry trace ID, when tracing is enabled.
	TraceID string `json:"trace_id,omitempty"`

	// SpanID is the OpenTelemetry span ID, when tracing is enabled.
	SpanID string `json:"span_id,omitempty"`

	// Payload contains event-specific data.
	Payload map[string]any `json:"payload,omitempty"`
}

// NewEvent creates a new event with the current timestamp.
func NewEvent(kind EventKind, runID string) Event {
	return Event{
		Kind:    kind,
		RunID:   runID,
		Time:    time.Now(),
		Payload: make(map[string]any),
	}
}

// WithStep sets the step information on the event.
func (e Event) WithStep(stepID string, iteration int) Event {
	e.StepID = stepID
	e.Iteration = iteration
	return e
}

// WithElapsed sets the elapsed duration on the event.
func (e Event) WithElapsed(elapsed time.Duration) Event {
	e.Elapsed = elapsed
	return e
}

// WithPayload adds a key-value pair to the event payload.
func (e Event) WithPayload(key string, value any) Event {
	if e.Payload == nil {
		e.Payload = make(map[string]any)
	}
	e.Payload[key] = value
	return e
}

// EventEmitter is a function type for emitting events.
type EventEmitter func(Event)

// EventEmitterDecorator wraps an emitter, e.g. to stamp trace context.
type EventEmitterDecorator func(EventEmitter) EventEmitter

// EventHandler is a function type for handling events.
// Implementations can log, store, or forward events as needed.
type EventHandler func(Event)

// EventPublisher distributes events to subscribers; satisfied by bus.MemBus.
type EventPublisher interface {
	Publish(Event)
}

// MultiEventHandler combines multiple handlers into one.
func MultiEventHandler(handlers ...EventHandler) EventHandler {
	return func(e Event) {
		for _, h := range handlers {
			if h != nil {
				h(e)
			}
		}
	}
}

// ChannelEventHandler returns a handler that sends events to a channel.
// Events are dropped if the channel is full.
func ChannelEventHandler(ch chan<- Event) EventHandler {
	return func(e Event) {
		select {
		case ch <- e:
		default:
			// Drop event if channel is full
		}
	}
}
