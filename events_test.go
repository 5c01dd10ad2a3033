package stepflow

import (
	"testing"
	"time"
)

func TestNewEvent(t *testing.T) {
	e := NewEvent(EventRunStarted, "run-123")

	if e.Kind != EventRunStarted {
		t.Errorf("Kind = %v, want %v", e.Kind, EventRunStarted)
	}
	if e.RunID != "run-123" {
		t.Errorf("RunID = %v, want run-123", e.RunID)
	}
	if e.Time.IsZero() {
		t.Error("Time was not set")
	}
	if e.Payload == nil {
		t.Error("Payload should be initialized")
	}
}

func TestEvent_Builders(t *testing.T) {
	e := NewEvent(EventStepFinished, "run-1").
		WithStep("lint", 3).
		WithElapsed(2 * time.Second).
		WithPayload("score", 70)

	if e.StepID != "lint" {
		t.Errorf("StepID = %v, want lint", e.StepID)
	}
	if e.Iteration != 3 {
		t.Errorf("Iteration = %v, want 3", e.Iteration)
	}
	if e.Elapsed != 2*time.Second {
		t.Errorf("Elapsed = %v, want 2s", e.Elapsed)
	}
	if e.Payload["score"] != 70 {
		t.Errorf("Payload[score] = %v, want 70", e.Payload["score"])
	}
}

func TestEvent_WithPayloadNilMap(t *testing.T) {
	e := Event{Kind: EventRunFinished}
	e = e.WithPayload("status", "completed")

	if e.Payload["status"] != "completed" {
		t.Error("WithPayload should initialize a nil payload map")
	}
}

func TestEventKind_String(t *testing.T) {
	if got := EventDecision.String(); got != "decision.resolved" {
		t.Errorf("String() = %v, want decision.resolved", got)
	}
}

func TestMultiEventHandler(t *testing.T) {
	var first, second []Event

	h := MultiEventHandler(
		func(e Event) { first = append(first, e) },
		nil, // nil handlers are skipped
		func(e Event) { second = append(second, e) },
	)

	h(NewEvent(EventRunStarted, "run-1"))

	if len(first) != 1 || len(second) != 1 {
		t.Errorf("handlers received %v and %v events, want 1 and 1", len(first), len(second))
	}
}

func TestChannelEventHandler(t *testing.T) {
	ch := make(chan Event, 1)
	h := ChannelEventHandler(ch)

	h(NewEvent(EventRunStarted, "run-1"))
	h(NewEvent(EventRunFinished, "run-1")) // dropped, channel full

	if len(ch) != 1 {
		t.Errorf("len(ch) = %v, want 1", len(ch))
	}
	e := <-ch
	if e.Kind != EventRunStarted {
		t.Errorf("received Kind = %v, want %v", e.Kind, EventRunStarted)
	}
}

func TestSeqGen_Monotonic(t *testing.T) {
	var g seqGen

	if g.current() != 0 {
		t.Errorf("current() = %v, want 0 before any next()", g.current())
	}
	for i := uint64(1); i <= 5; i++ {
		if got := g.next(); got != i {
			t.Errorf("next() = %v, want %v", got, i)
		}
	}
	if g.current() != 5 {
		t.Errorf("current() = %v, want 5", g.current())
	}
}
