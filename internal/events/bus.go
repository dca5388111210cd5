package events

import "context"

// DefaultBuffer is the default bus capacity.
const DefaultBuffer = 256

// Bus is a multi-producer, single-consumer channel of pipeline events.
// Producers block when the buffer is full; events are never silently
// dropped. Delivery order is FIFO per producer.
type Bus struct {
	ch chan Event
}

// NewBus creates a bus with the given buffer capacity. A non-positive
// buffer falls back to DefaultBuffer.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Bus{ch: make(chan Event, buffer)}
}

// Publish enqueues an event, blocking while the buffer is full. It returns
// the context error if ctx is cancelled before the event is accepted.
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	select {
	case b.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events exposes the consumer side of the bus.
func (b *Bus) Events() <-chan Event {
	return b.ch
}

// Poll drains and returns all currently queued events without blocking.
func (b *Bus) Poll() []Event {
	var out []Event
	for {
		select {
		case ev := <-b.ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

// Len reports the number of queued events.
func (b *Bus) Len() int {
	return len(b.ch)
}
