package stepflow

import (
	"context"
)

// Handler is the capability a step supplies: given the current state, produce
// a partial update or fail. The executor invokes a handler and waits for its
// result unconditionally, so implementations may return immediately or block
// on I/O; both look identical at the call site.
type Handler interface {
	Handle(ctx context.Context, st *State) (Delta, error)
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, st *State) (Delta, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, st *State) (Delta, error) {
	return f(ctx, st)
}

// NoopHandler returns a handler that produces an empty update. Useful for
// placeholder steps and graphs declared over the API without bound logic.
func NoopHandler() Handler {
	return HandlerFunc(func(context.Context, *State) (Delta, error) {
		return Delta{}, nil
	})
}

// Step is a named unit of work within a graph. A step is owned by the graph
// that declares it and is immutable after declaration, except for being the
// endpoint of edge declarations.
type Step struct {
	// ID is the step's unique name within its graph.
	ID string

	// Handler performs the step's work.
	Handler Handler

	// Description is a human-readable summary of what the step does.
	Description string
}

// Ensure interface compliance at compile time.
var _ Handler = (HandlerFunc)(nil)
