// Package bus provides the in-process broadcaster for outbound portal
// events. It is owned by the stream transport and torn down with it.
package bus

import (
	"log/slog"
	"sync"

	"github.com/basket/droid-portal/internal/event"
)

// Handler receives a published event. Handlers run synchronously on the
// publisher's goroutine, in subscriber-registration order.
type Handler func(event.Event)

// Subscription is the handle returned by Subscribe; passing it to
// Unsubscribe prunes the handler so closed connections are not leaked.
type Subscription struct {
	id      int
	handler Handler
}

// Hub fans every published event out to all currently registered
// subscribers. There is no buffering and no replay: a subscriber
// registered after a publish never sees that event.
type Hub struct {
	mu     sync.Mutex
	subs   []*Subscription
	nextID int
}

// New creates a new Hub.
func New() *Hub {
	return &Hub{}
}

// Subscribe registers a handler invoked for every subsequent publication.
func (h *Hub) Subscribe(fn Handler) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	sub := &Subscription{id: h.nextID, handler: fn}
	h.subs = append(h.subs, sub)
	return sub
}

// Unsubscribe removes a subscription. Unsubscribing twice, or passing
// nil, is a no-op.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, s := range h.subs {
		if s.id == sub.id {
			h.subs = append(h.subs[:i], h.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers the event to every registered handler, in registration
// order. Delivery is at-most-once per subscriber per publication; a
// handler that panics does not prevent delivery to subsequent handlers.
// Publish calls are serialized, so per-subscriber delivery order matches
// publish order.
func (h *Hub) Publish(ev event.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.subs {
		deliver(sub, ev)
	}
}

func deliver(sub *Subscription, ev event.Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("bus: subscriber panicked", "event_type", ev.Type, "panic", r)
		}
	}()
	sub.handler(ev)
}

// SubscriberCount returns the number of active subscriptions.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
