// Package broadcast fans settings change notifications out to other
// execution contexts. Delivery is fire-and-forget: a slow or absent
// subscriber never blocks the writer, and no responses flow back.
package broadcast

import (
	"sync"

	"github.com/google/uuid"

	"github.com/mkraev/prefsync/internal/settings"
)

// Message is one normalized change notification.
type Message struct {
	ID        string           `json:"id"`
	Namespace string           `json:"namespace"`
	Changes   settings.Changes `json:"changes"`
}

// NewMessage stamps a change set with a fresh id.
func NewMessage(changes settings.Changes, namespace string) Message {
	return Message{ID: uuid.NewString(), Namespace: namespace, Changes: changes}
}

// Notifier is the outbound notification sink.
type Notifier interface {
	// Send must not block and must not surface delivery failures.
	Send(msg Message)
}

// Hub is an in-process Notifier that fans messages out to subscriber
// channels. Messages to subscribers with full buffers are dropped.
type Hub struct {
	mu   sync.Mutex
	subs map[chan Message]struct{}
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan Message]struct{})}
}

// Subscribe returns a channel of future messages and a cancel function
// that releases the subscription. Cancel is idempotent.
func (h *Hub) Subscribe() (<-chan Message, func()) {
	ch := make(chan Message, 16)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
	}
	return ch, cancel
}

// Subscribers reports how many subscriptions are currently attached.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Send delivers msg to every current subscriber without blocking.
func (h *Hub) Send(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- msg:
		default:
			// Subscriber is not keeping up; drop rather than block.
		}
	}
}
