package emit

import "sync"

// BufferedEmitter implements Emitter by collecting events in memory.
//
// Primarily used in tests to assert on the exact sequence of lifecycle
// events a workflow produced. Thread-safe.
type BufferedEmitter struct {
	mu     sync.Mutex
	events []Event
}

// NewBufferedEmitter creates an empty BufferedEmitter.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{events: make([]Event, 0)}
}

// Emit appends the event to the buffer.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

// Events returns a copy of all buffered events in emission order.
func (b *BufferedEmitter) Events() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}

// ByMsg returns buffered events with the given message, in emission order.
func (b *BufferedEmitter) ByMsg(msg string) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []Event
	for _, e := range b.events {
		if e.Msg == msg {
			out = append(out, e)
		}
	}
	return out
}

// Reset clears the buffer.
func (b *BufferedEmitter) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = b.events[:0]
}
