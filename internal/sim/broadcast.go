package sim

import "sync"

// EventType names an event on the broadcast bus.
type EventType string

const (
	// EventTick tells subscribers to pull a fresh Snapshot and redraw.
	EventTick EventType = "tick"
	// EventLog carries a batch of log lines in its payload.
	EventLog EventType = "log"
	// EventClock carries a wall-clock timestamp.
	EventClock EventType = "clock"
	// EventButtonState carries the label the start/pause control should show.
	EventButtonState EventType = "button-state"
)

// Event is a named message delivered to bus subscribers.
type Event struct {
	Type    EventType `json:"type"`
	Payload string    `json:"payload,omitempty"`
}

// Bus is a single-writer, many-reader event channel. Delivery is at most
// once per subscriber per publish: a subscriber whose buffer is full misses
// the event, and late subscribers get no replay.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber with the given channel buffer and returns
// its event channel plus a cancel function. Cancel closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers ev to every current subscriber without blocking.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			// Subscriber is not keeping up; the event is lost for it.
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
