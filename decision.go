package stepflow

// DecisionKind tags how the next step of an iteration was chosen.
type DecisionKind string

const (
	// DecisionExplicit means a handler directed the run via Delta.Next.
	DecisionExplicit DecisionKind = "explicit"

	// DecisionLoop means the loop channel directed the run.
	DecisionLoop DecisionKind = "loop"

	// DecisionFollowEdge means the first declared edge was followed.
	DecisionFollowEdge DecisionKind = "edge"

	// DecisionTerminate means there is nowhere left to go.
	DecisionTerminate DecisionKind = "terminate"
)

// Decision is the outcome of next-step resolution for one iteration.
// Target is empty exactly when Kind is DecisionTerminate.
type Decision struct {
	Kind   DecisionKind
	Target string
}

// Terminates reports whether the decision ends the run.
func (d Decision) Terminates() bool {
	return d.Kind == DecisionTerminate
}

// resolveNext chooses the next step after current, applying the strict
// priority order: explicit override, then the loop channel, then the first
// declared edge, then termination. It consumes the directives it reads: the
// explicit override is cleared on use, and a failed loop condition clears
// the loop flag.
func resolveNext(g *Graph, current string, ctl *Control) Decision {
	if ctl.Next != "" {
		target := ctl.Next
		ctl.Next = ""
		return Decision{Kind: DecisionExplicit, Target: target}
	}

	if ctl.Loop {
		if ctl.LoopOK {
			target := ctl.LoopTarget
			if target == "" {
				target = current
			}
			return Decision{Kind: DecisionLoop, Target: target}
		}
		ctl.Loop = false
		return Decision{Kind: DecisionTerminate}
	}

	if succ := g.Successors(current); len(succ) > 0 {
		return Decision{Kind: DecisionFollowEdge, Target: succ[0]}
	}

	return Decision{Kind: DecisionTerminate}
}
