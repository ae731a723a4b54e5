// Package bus implements the in-process event bus. Subscribers are invoked
// synchronously from Publish in registration order; a wildcard subscription
// receives every envelope regardless of type.
package bus

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/slashbot/slashbot/pkg/models"
)

// WildcardAll subscribes to every event type.
const WildcardAll = "*"

// Subscriber receives published envelopes.
type Subscriber func(models.EventEnvelope)

// Disposer removes a subscription.
type Disposer func()

type subscription struct {
	id      string
	handler Subscriber
}

// Bus is a typed publish/subscribe event bus.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]subscription // event type -> subscribers
	logger *slog.Logger
}

// New creates an event bus.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subs:   make(map[string][]subscription),
		logger: logger.With("component", "bus"),
	}
}

// Subscribe registers a handler for one event type. The returned disposer
// removes the subscription.
func (b *Bus) Subscribe(eventType string, handler Subscriber) Disposer {
	sub := subscription{id: uuid.New().String(), handler: handler}

	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[eventType]
		for i, s := range list {
			if s.id == sub.id {
				b.subs[eventType] = append(list[:i], list[i+1:]...)
				return
			}
		}
	}
}

// SubscribeAll registers a wildcard handler invoked for every envelope.
func (b *Bus) SubscribeAll(handler Subscriber) Disposer {
	return b.Subscribe(WildcardAll, handler)
}

// Publish delivers an envelope to typed subscribers then wildcard
// subscribers, synchronously. A panicking subscriber is isolated and
// logged; remaining subscribers still run.
func (b *Bus) Publish(env models.EventEnvelope) {
	b.mu.RLock()
	typed := append([]subscription(nil), b.subs[env.Type]...)
	wild := append([]subscription(nil), b.subs[WildcardAll]...)
	b.mu.RUnlock()

	for _, sub := range typed {
		b.invoke(sub, env)
	}
	for _, sub := range wild {
		b.invoke(sub, env)
	}
}

func (b *Bus) invoke(sub subscription, env models.EventEnvelope) {
	defer func() {
		if p := recover(); p != nil {
			b.logger.Warn("event subscriber panic", "type", env.Type, "panic", p)
		}
	}()
	sub.handler(env)
}

// SubscriberCount returns the number of subscribers for an event type.
func (b *Bus) SubscriberCount(eventType string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[eventType])
}
