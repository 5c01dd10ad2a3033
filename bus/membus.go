package bus

import (
	"sync"

	"github.com/grovelabs/stepflow"
)

// MemBusConfig configures an in-memory event bus.
type MemBusConfig struct {
	// SubscriberBufferSize is the channel buffer size per subscriber (default: 256).
	SubscriberBufferSize int
}

// MemBus is an in-memory event bus implementation.
type MemBus struct {
	mu         sync.RWMutex
	subs       map[string][]*memSub // runID -> subscribers
	globalSubs []*memSub            // subscribers for all runs
	bufSize    int
	closed     bool
}

// NewMemBus creates a new in-memory event bus with the given configuration.
func NewMemBus(config MemBusConfig) *MemBus {
	bufSize := config.SubscriberBufferSize
	if bufSize <= 0 {
		bufSize = 256
	}
	return &MemBus{
		subs:    make(map[string][]*memSub),
		bufSize: bufSize,
	}
}

// Publish sends an event to all matching subscribers.
// Run-specific subscribers receive events matching their run ID,
// and global subscribers receive all events. If the bus is closed,
// the event is silently dropped.
func (b *MemBus) Publish(event stepflow.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	// Send to run-specific subscribers.
	for _, sub := range b.subs[event.RunID] {
		sub.send(event)
	}

	// Send to global subscribers.
	for _, sub := range b.globalSubs {
		sub.send(event)
	}
}

// Subscribe registers a subscriber for a specific run.
// Returns a Subscription that must be closed when done.
func (b *MemBus) Subscribe(runID string) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := newMemSub(b.bufSize)
	sub.detach = func() { b.removeRunSub(runID, sub) }
	b.subs[runID] = append(b.subs[runID], sub)
	return sub
}

// SubscribeAll registers a subscriber that receives events from all runs.
// Returns a Subscription that must be closed when done.
func (b *MemBus) SubscribeAll() Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := newMemSub(b.bufSize)
	sub.detach = func() { b.removeGlobalSub(sub) }
	b.globalSubs = append(b.globalSubs, sub)
	return sub
}

// removeRunSub drops a closed run-specific subscription so the bus
// does not accumulate dead entries over the process lifetime.
func (b *MemBus) removeRunSub(runID string, target *memSub) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[runID]
	for i, sub := range subs {
		if sub == target {
			b.subs[runID] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subs[runID]) == 0 {
		delete(b.subs, runID)
	}
}

// removeGlobalSub drops a closed global subscription.
func (b *MemBus) removeGlobalSub(target *memSub) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.globalSubs {
		if sub == target {
			b.globalSubs = append(b.globalSubs[:i], b.globalSubs[i+1:]...)
			break
		}
	}
}

// Close shuts down the bus and all active subscriptions.
func (b *MemBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true

	// Close all run-specific subscriptions.
	for _, subs := range b.subs {
		for _, sub := range subs {
			sub.close()
		}
	}

	// Close all global subscriptions.
	for _, sub := range b.globalSubs {
		sub.close()
	}

	return nil
}

// memSub is an in-memory subscription.
type memSub struct {
	ch     chan stepflow.Event
	mu     sync.Mutex
	closed bool
	detach func() // removes this subscription from the bus registry
}

func newMemSub(bufSize int) *memSub {
	return &memSub{
		ch: make(chan stepflow.Event, bufSize),
	}
}

// Events returns a channel of events for this subscription.
func (s *memSub) Events() <-chan stepflow.Event {
	return s.ch
}

// Close unsubscribes and releases resources.
func (s *memSub) Close() error {
	s.close()
	// Detach outside the sub lock to keep lock ordering bus -> sub.
	if s.detach != nil {
		s.detach()
	}
	return nil
}

// close performs the actual channel close, guarded against double-close.
func (s *memSub) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// send delivers an event to the subscription's channel.
// If the channel is full or the subscription is closed, the event is dropped.
func (s *memSub) send(event stepflow.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	select {
	case s.ch <- event:
	default:
		// Drop if channel full.
	}
}

// Compile-time interface checks.
var _ EventBus = (*MemBus)(nil)
var _ Subscription = (*memSub)(nil)
