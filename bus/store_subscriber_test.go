package bus

import (
	"context"
	"testing"

	"github.com/grovelabs/stepflow"
)

func TestStoreSubscriber_PersistsEvents(t *testing.T) {
	store := NewMemEventStore()
	sub := NewStoreSubscriber(store, nil)

	e := stepflow.NewEvent(stepflow.EventRunStarted, "run-1")
	e.Seq = 1
	sub.Handle(e)

	events, err := store.List(context.Background(), "run-1", 0, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("len(events) = %v, want 1", len(events))
	}
	if events[0].Kind != stepflow.EventRunStarted {
		t.Errorf("Kind = %v, want %v", events[0].Kind, stepflow.EventRunStarted)
	}
}

func TestStoreSubscriber_AsEventHandler(t *testing.T) {
	// StoreSubscriber.Handle satisfies stepflow.EventHandler, so the
	// executor can persist its own event stream.
	store := NewMemEventStore()
	sub := NewStoreSubscriber(store, nil)

	g := stepflow.NewGraph("persist", "")
	g.AddStep("only", stepflow.NoopHandler(), "")

	x := stepflow.NewExecutor(nil)
	opts := stepflow.DefaultRunOptions()
	opts.RunID = "run-persist"
	opts.EventHandler = sub.Handle

	if _, err := x.Run(context.Background(), g, nil, opts); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	seq, err := store.LatestSeq(context.Background(), "run-persist")
	if err != nil {
		t.Fatalf("LatestSeq() error = %v", err)
	}
	if seq != 5 {
		t.Errorf("LatestSeq() = %v, want 5", seq)
	}
}
