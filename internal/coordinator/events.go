package coordinator

import (
	"sync"

	"modelmgr/pkg/types"
)

// Event is one slot state transition. Minimal and stable: name + slot +
// model id, extras via key/values.
type Event struct {
	Name    string
	Slot    types.Slot
	ModelID string
	Fields  map[string]any
}

// Transition names. Every operation publishes at least a started and a
// terminal event.
const (
	EventLoadStarted      = "load_started"
	EventLoadCompleted    = "load_completed"
	EventLoadFailed       = "load_failed"
	EventUnloadStarted    = "unload_started"
	EventUnloadCompleted  = "unload_completed"
	EventSwapUnloadFailed = "swap_unload_failed"
)

// EventPublisher receives coordinator events. Implementations should be
// lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}

// MemoryPublisher stores events in-memory for tests.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryPublisher() *MemoryPublisher { return &MemoryPublisher{} }

func (p *MemoryPublisher) Publish(e Event) {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
}

func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

// Broadcast fans events out to subscribers registered at runtime.
type Broadcast struct {
	mu   sync.Mutex
	next int
	subs map[int]func(Event)
}

func NewBroadcast() *Broadcast { return &Broadcast{subs: make(map[int]func(Event))} }

// Subscribe registers fn and returns its unsubscribe func.
func (b *Broadcast) Subscribe(fn func(Event)) func() {
	b.mu.Lock()
	token := b.next
	b.next++
	b.subs[token] = fn
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		delete(b.subs, token)
		b.mu.Unlock()
	}
}

func (b *Broadcast) Publish(e Event) {
	b.mu.Lock()
	fns := make([]func(Event), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()
	for _, fn := range fns {
		fn(e)
	}
}
