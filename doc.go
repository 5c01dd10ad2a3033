// Package stepflow is a workflow engine that executes directed graphs of
// named steps. A graph declares steps, edges, an entry point, and an exit
// set; the executor walks it one step at a time, merging each handler's
// returned delta into the shared run state.
//
// Branching and looping are runtime decisions, not edge annotations: a
// handler steers the run through the state's control channel (an explicit
// next-step override or a loop directive), and the executor falls back to
// declared edges only when no directive is live. Every run produces an
// audit log and a stream of events, and is observable through a RunRegistry
// while in flight and after it finishes.
package stepflow
