package stepflow

import (
	"errors"
	"fmt"
	"sort"
)

// Graph errors
var (
	ErrStepNotFound  = errors.New("step not found")
	ErrDuplicateStep = errors.New("duplicate step ID")
	ErrInvalidEdge   = errors.New("invalid edge")
	ErrNoEntryStep   = errors.New("no entry step defined")
	ErrEmptyGraph    = errors.New("graph has no steps")
)

// Graph is a directed graph of named steps. Topology is mutable while the
// graph is being declared and treated as read-only once execution starts;
// a single Graph may back any number of concurrent runs.
//
// Edges are unconditioned: conditional branching is expressed at run time
// through the control channel (Delta.Next), not through edge annotations.
type Graph struct {
	id         string
	name       string
	steps      map[string]*Step
	stepOrder  []string // preserves insertion order
	successors map[string][]string
	edgeCount  int
	entry      string
	exits      map[string]struct{}
}

// NewGraph creates a new empty graph with the given ID and display name.
func NewGraph(id, name string) *Graph {
	if name == "" {
		name = "Unnamed Workflow"
	}
	return &Graph{
		id:         id,
		name:       name,
		steps:      make(map[string]*Step),
		successors: make(map[string][]string),
		exits:      make(map[string]struct{}),
	}
}

// ID returns the graph's identifier.
func (g *Graph) ID() string {
	return g.id
}

// Name returns the graph's display name.
func (g *Graph) Name() string {
	return g.name
}

// Steps returns all steps in insertion order.
func (g *Graph) Steps() []*Step {
	steps := make([]*Step, 0, len(g.stepOrder))
	for _, id := range g.stepOrder {
		steps = append(steps, g.steps[id])
	}
	return steps
}

// StepIDs returns the declared step IDs sorted lexically. Error messages use
// this so that "known steps" listings are deterministic.
func (g *Graph) StepIDs() []string {
	ids := make([]string, 0, len(g.steps))
	for id := range g.steps {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// StepByID retrieves a step by its ID.
func (g *Graph) StepByID(id string) (*Step, bool) {
	s, ok := g.steps[id]
	return s, ok
}

// Entry returns the entry step ID for execution.
func (g *Graph) Entry() string {
	return g.entry
}

// Exits returns the exit step IDs in step-insertion order.
func (g *Graph) Exits() []string {
	out := make([]string, 0, len(g.exits))
	for _, id := range g.stepOrder {
		if _, ok := g.exits[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// IsExit reports whether the given step is in the exit set.
func (g *Graph) IsExit(id string) bool {
	_, ok := g.exits[id]
	return ok
}

// Successors returns the successor list of a step in edge-declaration order.
func (g *Graph) Successors(id string) []string {
	return g.successors[id]
}

// StepCount returns the number of declared steps.
func (g *Graph) StepCount() int {
	return len(g.steps)
}

// EdgeCount returns the number of declared edges, duplicates included.
func (g *Graph) EdgeCount() int {
	return g.edgeCount
}

// AddStep declares a step. The first step added becomes the entry point
// unless SetEntry is called afterward.
// Returns ErrDuplicateStep if the ID is already declared.
func (g *Graph) AddStep(id string, handler Handler, description string) error {
	if id == "" {
		return errors.New("step ID is required")
	}
	if _, exists := g.steps[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateStep, id)
	}

	g.steps[id] = &Step{ID: id, Handler: handler, Description: description}
	g.stepOrder = append(g.stepOrder, id)

	if g.entry == "" {
		g.entry = id
	}
	return nil
}

// AddEdge declares a directed edge between two existing steps. Both endpoints
// must already be declared; the edge is appended to the source's successor
// list, so repeated AddEdge calls with the same pair are redundant but legal.
func (g *Graph) AddEdge(from, to string) error {
	if _, ok := g.steps[from]; !ok {
		return fmt.Errorf("%w: source step %q not found (known steps: %v)", ErrInvalidEdge, from, g.StepIDs())
	}
	if _, ok := g.steps[to]; !ok {
		return fmt.Errorf("%w: target step %q not found (known steps: %v)", ErrInvalidEdge, to, g.StepIDs())
	}

	g.successors[from] = append(g.successors[from], to)
	g.edgeCount++
	return nil
}

// SetEntry sets the entry step for execution.
func (g *Graph) SetEntry(id string) error {
	if _, ok := g.steps[id]; !ok {
		return fmt.Errorf("%w: entry %q", ErrStepNotFound, id)
	}
	g.entry = id
	return nil
}

// SetExits replaces the exit set. Every ID must be a declared step.
func (g *Graph) SetExits(ids ...string) error {
	for _, id := range ids {
		if _, ok := g.steps[id]; !ok {
			return fmt.Errorf("%w: exit %q", ErrStepNotFound, id)
		}
	}
	g.exits = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		g.exits[id] = struct{}{}
	}
	return nil
}

// Validate checks the graph for structural issues that would prevent a run
// from starting.
func (g *Graph) Validate() error {
	if len(g.steps) == 0 {
		return ErrEmptyGraph
	}
	if g.entry == "" {
		return ErrNoEntryStep
	}
	if _, ok := g.steps[g.entry]; !ok {
		return fmt.Errorf("%w: entry step %q", ErrStepNotFound, g.entry)
	}
	return nil
}

// Reachable returns all step IDs reachable from the given start step by
// following declared edges. Control-channel jumps are not modeled here.
func (g *Graph) Reachable(startID string) []string {
	visited := make(map[string]bool)
	result := make([]string, 0)

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		result = append(result, id)
		for _, succ := range g.successors[id] {
			visit(succ)
		}
	}

	visit(startID)
	return result
}
