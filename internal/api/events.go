package api

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Event is one dispatch outcome broadcast to /events subscribers.
type Event struct {
	ID   int64
	Type string
	At   time.Time
	Data []byte
}

// EventHub is an in-memory pub/sub with a small ring buffer so clients that
// reconnect with Last-Event-ID can replay recent history. It implements
// dispatch.EventPublisher.
type EventHub struct {
	nextID atomic.Int64

	mu    sync.Mutex
	ring  []Event
	start int
	size  int

	subs      map[int]chan Event
	nextSubID int
}

// NewEventHub creates a hub retaining the last capacity events.
func NewEventHub(capacity int) *EventHub {
	if capacity <= 0 {
		capacity = 1
	}
	return &EventHub{
		ring: make([]Event, capacity),
		subs: make(map[int]chan Event),
	}
}

// Publish broadcasts an event to current subscribers and records it in the
// ring. data is marshalled to JSON; a marshal failure degrades to "{}".
func (h *EventHub) Publish(eventType string, data any) {
	body := []byte("{}")
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			body = b
		}
	}

	ev := Event{
		ID:   h.nextID.Add(1),
		Type: eventType,
		At:   time.Now().UTC(),
		Data: body,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.pushLocked(ev)
	for _, ch := range h.subs {
		// Slow clients lose events rather than blocking the dispatcher.
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe registers a new subscriber. The returned cancel func must be
// called when the subscriber goes away.
func (h *EventHub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextSubID
	h.nextSubID++
	ch := make(chan Event, 32)
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// SnapshotSince returns buffered events with ID > lastID, oldest first.
func (h *EventHub) SnapshotSince(lastID int64) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Event, 0, h.size)
	for i := 0; i < h.size; i++ {
		ev := h.ring[(h.start+i)%len(h.ring)]
		if ev.ID > lastID {
			out = append(out, ev)
		}
	}
	return out
}

func (h *EventHub) pushLocked(ev Event) {
	capacity := len(h.ring)
	if h.size < capacity {
		h.ring[(h.start+h.size)%capacity] = ev
		h.size++
		return
	}
	h.ring[h.start] = ev
	h.start = (h.start + 1) % capacity
}
