// Package bus is the in-process fallback delivery path for notification
// events. The shared feed subscription is known to go silent when more than
// one consumer hangs off the same table stream, so producers mirror events
// here and the coordinator funnels both paths into one handler.
package bus

import (
	"sync"

	"github.com/google/uuid"
)

type Handler func(payload []byte)

type Bus struct {
	mu   sync.RWMutex
	subs map[string]map[string]Handler // topic -> subscriber id -> handler
}

func New() *Bus {
	return &Bus{
		subs: make(map[string]map[string]Handler),
	}
}

// Subscribe registers a handler for a topic and returns an unsubscribe
// function. Unsubscribing twice is safe.
func (b *Bus) Subscribe(topic string, h Handler) func() {
	id := uuid.NewString()

	b.mu.Lock()
	handlers, ok := b.subs[topic]
	if !ok {
		handlers = make(map[string]Handler)
		b.subs[topic] = handlers
	}
	handlers[id] = h
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		if handlers, ok := b.subs[topic]; ok {
			delete(handlers, id)
			if len(handlers) == 0 {
				delete(b.subs, topic)
			}
		}
		b.mu.Unlock()
	}
}

// Publish delivers payload to every subscriber of topic, sequentially.
func (b *Bus) Publish(topic string, payload []byte) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[topic]))
	for _, h := range b.subs[topic] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(payload)
	}
}
