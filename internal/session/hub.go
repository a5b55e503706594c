package session

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/meetstream/meeting-gateway/internal/observability"
)

// Subscriber is one live delivery target (e.g. an open client
// connection). Send must apply its own bounded timeout; the hub treats
// any returned error as fatal for that subscriber.
type Subscriber interface {
	Send(Event) error
	Close() error
}

// Hub fans events out to a session's subscribers. A failing subscriber is
// dropped; delivery to the rest continues and no failure ever reaches the
// ingestion path.
type Hub struct {
	mu     sync.RWMutex
	subs   map[Subscriber]struct{}
	logger zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		subs:   make(map[Subscriber]struct{}),
		logger: logger,
	}
}

// Add registers a subscriber.
func (h *Hub) Add(sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.subs[sub]; exists {
		return
	}
	h.subs[sub] = struct{}{}
	observability.SubscriberAdded()
}

// Remove unregisters a subscriber without closing it.
func (h *Hub) Remove(sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sub)
}

func (h *Hub) removeLocked(sub Subscriber) {
	if _, exists := h.subs[sub]; !exists {
		return
	}
	delete(h.subs, sub)
	observability.SubscriberRemoved()
}

// Count returns the number of registered subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Broadcast delivers the event to a snapshot of the current subscriber
// set. Each delivery is independent; failures unsubscribe the failing
// handle and are otherwise swallowed.
func (h *Hub) Broadcast(event Event) {
	h.mu.RLock()
	snapshot := make([]Subscriber, 0, len(h.subs))
	for sub := range h.subs {
		snapshot = append(snapshot, sub)
	}
	h.mu.RUnlock()

	for _, sub := range snapshot {
		if err := sub.Send(event); err != nil {
			h.logger.Warn().Err(err).Msg("Subscriber delivery failed, dropping subscriber")
			observability.RecordBroadcastFailure()

			h.mu.Lock()
			h.removeLocked(sub)
			h.mu.Unlock()
			sub.Close()
		}
	}
}

// CloseAll closes and unregisters every subscriber.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	snapshot := make([]Subscriber, 0, len(h.subs))
	for sub := range h.subs {
		snapshot = append(snapshot, sub)
		delete(h.subs, sub)
		observability.SubscriberRemoved()
	}
	h.mu.Unlock()

	for _, sub := range snapshot {
		sub.Close()
	}
}
