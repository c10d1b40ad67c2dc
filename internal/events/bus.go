// Package events carries controller state changes to observers that live
// outside the task graph.
package events

import (
	"github.com/kelindar/event"
)

// Bus wraps a kelindar/event dispatcher. Subscribers are called on their own
// goroutine, in publish order.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{dispatcher: event.NewDispatcher()}
}

// Close stops delivery to all subscribers.
func (b *Bus) Close() error {
	return b.dispatcher.Close()
}

// Publish sends ev to every subscriber of its type. A nil bus drops it.
func Publish[T Event](b *Bus, ev T) {
	if b == nil {
		return
	}
	event.Publish(b.dispatcher, ev)
}

// Subscribe registers handler for events of type T and returns an
// unsubscribe function.
func Subscribe[T Event](b *Bus, handler func(T)) func() {
	return event.Subscribe(b.dispatcher, handler)
}
