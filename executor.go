package stepflow

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"
)

// Execution errors
var (
	ErrIterationLimit = errors.New("iteration limit exceeded")
	ErrRunCanceled    = errors.New("run was canceled")
	ErrHandlerFailed  = errors.New("step handler failed")
)

// RunOptions controls execution behavior.
type RunOptions struct {
	// MaxIterations bounds the number of handler invocations in one run
	// (default: 1000). It is the sole cycle guard; legitimate loops run
	// freely beneath it.
	MaxIterations int

	// RunID overrides the generated run identifier (for testing).
	RunID string

	// Now provides the current time (for testing). If nil, uses time.Now.
	Now func() time.Time

	// EventHandler receives events during execution.
	EventHandler EventHandler

	// EventBus, when set, receives every event for fan-out to subscribers.
	EventBus EventPublisher

	// EventEmitterDecorator wraps the emitter, e.g. to stamp trace context.
	EventEmitterDecorator EventEmitterDecorator
}

// DefaultRunOptions returns sensible default options.
func DefaultRunOptions() RunOptions {
	return RunOptions{
		MaxIterations: 1000,
	}
}

// Result is the outcome of a successful run.
type Result struct {
	// RunID identifies the run.
	RunID string

	// FinalState is the domain vars at termination. Control directives
	// never appear here.
	FinalState map[string]any

	// Log is the run's audit trail.
	Log []LogEntry

	// Iterations is the number of handler invocations performed.
	Iterations int
}

// Executor runs graphs sequentially and emits events.
type Executor struct {
	registry *RunRegistry
	eventCh  chan Event
}

// NewExecutor creates an executor. The registry may be nil, in which case
// runs are not tracked.
func NewExecutor(registry *RunRegistry) *Executor {
	return &Executor{
		registry: registry,
		eventCh:  make(chan Event, 100), // buffered channel
	}
}

// Events returns the event channel.
func (x *Executor) Events() <-chan Event {
	return x.eventCh
}

// Registry returns the run registry, which may be nil.
func (x *Executor) Registry() *RunRegistry {
	return x.registry
}

// Run executes the graph from its entry step until a terminate decision,
// a failure, or the iteration limit. The initial map seeds the domain vars;
// the returned Result carries the final snapshot and the audit log.
//
// On failure the registry still records the partial log and last snapshot,
// so observers can inspect how far the run got.
func (x *Executor) Run(ctx context.Context, g *Graph, initial map[string]any, opts RunOptions) (*Result, error) {
	// Apply defaults
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 1000
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	if err := g.Validate(); err != nil {
		return nil, err
	}

	runID := opts.RunID
	if runID == "" {
		runID = generateRunID()
	}

	st := NewState(initial)
	st.Control.RunID = runID

	// Build the emitter chain: sequence stamping, then the optional
	// decorator, fanning out to handler, bus, and the executor channel.
	seq := &seqGen{}
	var emit EventEmitter = func(e Event) {
		e.Seq = seq.next()
		if opts.EventHandler != nil {
			opts.EventHandler(e)
		}
		if opts.EventBus != nil {
			opts.EventBus.Publish(e)
		}
		select {
		case x.eventCh <- e:
		default:
			// Drop if channel is full
		}
	}
	if opts.EventEmitterDecorator != nil {
		emit = opts.EventEmitterDecorator(emit)
	}

	runStart := opts.Now()
	if x.registry != nil {
		x.registry.Begin(runID, g.ID(), st.Vars, runStart)
	}

	emit(NewEvent(EventRunStarted, runID).
		WithPayload("graph", g.Name()).
		WithPayload("entry", g.Entry()))

	result, err := x.loop(ctx, g, st, runID, opts, emit, runStart)

	runElapsed := opts.Now().Sub(runStart)
	finishEvent := NewEvent(EventRunFinished, runID).
		WithElapsed(runElapsed)

	if err != nil {
		finishEvent = finishEvent.
			WithPayload("status", "failed").
			WithPayload("error", err.Error())
		if x.registry != nil {
			x.registry.Fail(runID, err.Error(), opts.Now())
		}
	} else {
		finishEvent = finishEvent.
			WithPayload("status", "completed")
		if x.registry != nil {
			x.registry.Complete(runID, opts.Now())
		}
	}
	emit(finishEvent)

	return result, err
}

// loop is the interpreter: resolve the current step, invoke its handler,
// merge the delta, then resolve the next step. It owns the state for the
// duration of the run.
func (x *Executor) loop(
	ctx context.Context,
	g *Graph,
	st *State,
	runID string,
	opts RunOptions,
	emit EventEmitter,
	runStart time.Time,
) (*Result, error) {
	var log Log
	current := g.Entry()
	iterations := 0

	snapshot := func() {
		if x.registry != nil {
			x.registry.Update(runID, st.Vars, log.Entries(), iterations)
		}
	}

	for {
		// Check context cancellation
		select {
		case <-ctx.Done():
			snapshot()
			return nil, fmt.Errorf("%w: %v", ErrRunCanceled, ctx.Err())
		default:
		}

		if iterations >= opts.MaxIterations {
			snapshot()
			return nil, fmt.Errorf("%w: %d iterations", ErrIterationLimit, opts.MaxIterations)
		}
		iterations++
		st.Control.Iteration = iterations

		step, ok := g.StepByID(current)
		if !ok {
			snapshot()
			return nil, fmt.Errorf("%w: %q (known steps: %v)", ErrStepNotFound, current, g.StepIDs())
		}

		stepStart := opts.Now()
		log.Begin(current, stepStart)
		snapshot()

		emit(NewEvent(EventStepStarted, runID).
			WithStep(current, iterations).
			WithElapsed(stepStart.Sub(runStart)))

		delta, err := step.Handler.Handle(ctx, st)
		stepElapsed := opts.Now().Sub(stepStart)

		if err != nil {
			log.Fail(opts.Now(), err.Error())
			snapshot()
			emit(NewEvent(EventStepFailed, runID).
				WithStep(current, iterations).
				WithElapsed(stepElapsed).
				WithPayload("error", err.Error()))
			return nil, fmt.Errorf("%w: step %q: %w", ErrHandlerFailed, current, err)
		}

		st.apply(delta)
		log.Complete(opts.Now())
		snapshot()

		emit(NewEvent(EventStepFinished, runID).
			WithStep(current, iterations).
			WithElapsed(stepElapsed))

		decision := resolveNext(g, current, &st.Control)
		emit(NewEvent(EventDecision, runID).
			WithStep(current, iterations).
			WithElapsed(opts.Now().Sub(runStart)).
			WithPayload("kind", string(decision.Kind)).
			WithPayload("target", decision.Target).
			WithPayload("exit", g.IsExit(current)))

		if decision.Terminates() {
			break
		}
		current = decision.Target
	}

	snapshot()
	return &Result{
		RunID:      runID,
		FinalState: st.Snapshot(),
		Log:        log.Entries(),
		Iterations: iterations,
	}, nil
}

// generateRunID creates a unique run identifier.
// Uses crypto/rand for secure random generation.
func generateRunID() string {
	b := make([]byte, 16)
	_, err := rand.Read(b)
	if err != nil {
		// Fallback to timestamp-based ID if crypto/rand fails
		return fmt.Sprintf("run-%d", time.Now().UnixNano())
	}
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
}
