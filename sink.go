package reagent

import "sync"

// EventSink receives a fire-and-forget copy of every run event, for
// cross-process observation (buses, websocket fan-out, metrics). Sinks must
// not block; slow consumers drop rather than stall the run. Not required
// for correctness of the engine.
type EventSink interface {
	Publish(Event)
}

// Bus is an in-process fan-out EventSink. Subscribers get buffered channels;
// events are dropped per-subscriber when a buffer is full. Nil-safe: Publish
// on a nil *Bus is a no-op, so components need no guard checks.
type Bus struct {
	mu     sync.Mutex
	subs   []chan Event
	closed bool
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a listener. The channel closes when the bus closes.
func (b *Bus) Subscribe() <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}
	ch := make(chan Event, 32)
	b.subs = append(b.subs, ch)
	return ch
}

// Publish delivers ev to every subscriber without blocking.
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close closes all subscriber channels. Publish becomes a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		close(ch)
	}
	b.closed = true
}
