package session

import "sync"

// EventType names a session event pushed to subscribers.
type EventType string

const (
	EventTick      EventType = "tick"
	EventAnswer    EventType = "answer"
	EventFlag      EventType = "flag"
	EventNavigate  EventType = "navigate"
	EventCompleted EventType = "completed"
	EventError     EventType = "error"
)

// Event is one message fanned out to subscribers.
type Event struct {
	Type EventType `json:"event"`
	Data any       `json:"data,omitempty"`
}

// Broadcaster fans events out to subscribers. Publish never blocks: a
// subscriber whose buffer is full misses the event.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan Event)}
}

// Subscribe returns a buffered event channel and a func that removes it.
// On a closed broadcaster the channel is already closed.
func (b *Broadcaster) Subscribe(buffer int) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
}

// Publish delivers e to every subscriber with room for it.
func (b *Broadcaster) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Close closes every subscriber channel. Later Publish calls are no-ops.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

// Len returns the number of live subscribers.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
