package stepflow

// State is the data bag threaded through a run. Domain data lives in Vars;
// interpreter directives live in the separate Control struct, so reserved
// fields can never collide with domain keys and never leak into a run's
// final state.
//
// A State is owned exclusively by its run's loop while the run is active.
type State struct {
	// Vars is the caller-visible domain data. Each step's returned Delta is
	// shallow-merged into it, later keys overwriting earlier ones.
	Vars map[string]any

	// Control carries the interpreter's reserved channels.
	Control Control
}

// Control holds the reserved channels consumed by the executor: run identity,
// the iteration counter, and the branching/looping directives a step may set
// through its Delta.
type Control struct {
	// RunID identifies the run this state belongs to.
	RunID string

	// Iteration is the 1-indexed count of step invocations so far.
	Iteration int

	// Next is the explicit next-step override. Consumed (read and cleared)
	// once per iteration; it always wins over the loop channel and edges.
	Next string

	// Loop is the loop flag. While set, next-step resolution ignores edges.
	Loop bool

	// LoopOK is the loop condition. It defaults to true whenever the flag
	// is set; a false value clears the flag and ends resolution for the
	// iteration.
	LoopOK bool

	// LoopTarget is the step to jump to while looping. Empty means self-loop.
	LoopTarget string
}

// NewState creates a state seeded with a copy of the given domain vars.
func NewState(vars map[string]any) *State {
	st := &State{Vars: make(map[string]any, len(vars))}
	for k, v := range vars {
		st.Vars[k] = v
	}
	return st
}

// GetVar retrieves a domain variable by name.
func (s *State) GetVar(name string) (any, bool) {
	if s.Vars == nil {
		return nil, false
	}
	v, ok := s.Vars[name]
	return v, ok
}

// GetString retrieves a domain variable as a string.
// Returns empty string if not found or not a string.
func (s *State) GetString(name string) string {
	v, ok := s.GetVar(name)
	if !ok {
		return ""
	}
	str, ok := v.(string)
	if !ok {
		return ""
	}
	return str
}

// GetInt retrieves a domain variable as an int. JSON-decoded numbers arrive
// as float64, so those are truncated; anything else yields the fallback.
func (s *State) GetInt(name string, fallback int) int {
	v, ok := s.GetVar(name)
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return fallback
	}
}

// GetFloat retrieves a domain variable as a float64.
func (s *State) GetFloat(name string, fallback float64) float64 {
	v, ok := s.GetVar(name)
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return fallback
	}
}

// SetVar sets a domain variable, initializing the map if needed.
func (s *State) SetVar(name string, value any) {
	if s.Vars == nil {
		s.Vars = make(map[string]any)
	}
	s.Vars[name] = value
}

// Snapshot returns a shallow copy of the domain vars. Values may still
// reference shared memory; callers treat snapshots as read-only.
func (s *State) Snapshot() map[string]any {
	out := make(map[string]any, len(s.Vars))
	for k, v := range s.Vars {
		out[k] = v
	}
	return out
}

// apply shallow-merges a step's Delta into the state: domain vars first,
// then the control directives. Directive fields are only written when the
// Delta carries them, so an empty Delta leaves the control channel alone.
func (s *State) apply(d Delta) {
	for k, v := range d.Vars {
		s.SetVar(k, v)
	}
	if d.Next != "" {
		s.Control.Next = d.Next
	}
	if d.Loop != nil {
		s.Control.Loop = d.Loop.Continue
		s.Control.LoopTarget = d.Loop.Target
		s.Control.LoopOK = true
		if d.Loop.Condition != nil {
			s.Control.LoopOK = *d.Loop.Condition
		}
	}
}

// Delta is the partial update a handler returns. Vars are merged into the
// domain bag; Next and Loop feed the control channel for the next-step
// resolution of the same iteration.
type Delta struct {
	// Vars are domain updates, shallow-merged over the current state.
	Vars map[string]any

	// Next directs the run to a specific step, overriding loop state and
	// declared edges. The target is not validated against the graph until
	// the next iteration resolves it.
	Next string

	// Loop updates the loop channel; nil leaves it untouched.
	Loop *LoopDirective
}

// LoopDirective drives the loop control channel.
type LoopDirective struct {
	// Continue sets the loop flag. False clears an active loop.
	Continue bool

	// Condition optionally guards the next hop; nil means true. A false
	// condition clears the flag and ends the iteration's resolution without
	// consulting edges.
	Condition *bool

	// Target is the step to jump to while looping; empty self-loops.
	Target string
}

// ContinueLoop is shorthand for a directive that keeps looping toward target.
func ContinueLoop(target string) *LoopDirective {
	return &LoopDirective{Continue: true, Target: target}
}

// StopLoop is shorthand for a directive that clears the loop flag.
func StopLoop() *LoopDirective {
	return &LoopDirective{Continue: false}
}
