package stepflow

import (
	"sync/atomic"
)

// seqGen produces monotonically increasing sequence numbers for events
// within a single run. Sequence numbers are 1-indexed.
type seqGen struct {
	counter atomic.Uint64
}

// next returns the next sequence number.
func (g *seqGen) next() uint64 {
	return g.counter.Add(1)
}

// current returns the most recently issued sequence number without
// advancing the counter.
func (g *seqGen) current() uint64 {
	return g.counter.Load()
}
