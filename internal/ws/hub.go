package ws

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"ephemeral-chat/internal/observability"
)

// Subscriber receives invalidation signals. Invalidate is called with the hub
// read lock held, so it must not block or call back into the hub.
type Subscriber interface {
	Invalidate(topic string)
}

// Hub is the process-wide subscription registry of the sync coordinator.
// Subscriptions are keyed by (session, topic) and live exactly as long as the
// session is registered.
type Hub struct {
	mu        sync.RWMutex
	sessions  map[string]Subscriber
	topics    map[string]map[string]struct{}
	bySession map[string]map[string]struct{}
	log       *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		sessions:  make(map[string]Subscriber),
		topics:    make(map[string]map[string]struct{}),
		bySession: make(map[string]map[string]struct{}),
		log:       log,
	}
}

// Register adds a session with no subscriptions.
func (h *Hub) Register(sessionID string, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[sessionID] = sub
	if _, ok := h.bySession[sessionID]; !ok {
		h.bySession[sessionID] = make(map[string]struct{})
	}
}

// Unregister removes the session and every subscription it holds. Publishes
// signal under the read lock, so once Unregister returns the session receives
// no further Invalidate calls.
func (h *Hub) Unregister(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	removed := 0
	for topic := range h.bySession[sessionID] {
		h.unsubscribeLocked(sessionID, topic)
		removed++
	}
	delete(h.bySession, sessionID)
	delete(h.sessions, sessionID)
	if removed > 0 {
		observability.AddSubscriptions(-removed)
	}
}

// Subscribe adds one subscription. It reports false for unknown sessions and
// for subscriptions that already exist.
func (h *Hub) Subscribe(sessionID, topic string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.subscribeLocked(sessionID, topic) {
		return false
	}
	observability.AddSubscriptions(1)
	return true
}

// Unsubscribe removes one subscription.
func (h *Hub) Unsubscribe(sessionID, topic string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.bySession[sessionID][topic]; !ok {
		return false
	}
	h.unsubscribeLocked(sessionID, topic)
	observability.AddSubscriptions(-1)
	return true
}

// SetTopics replaces the topic set of a session and returns the difference.
func (h *Hub) SetTopics(sessionID string, topics []string) (added, removed []string) {
	want := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		want[t] = struct{}{}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	current, ok := h.bySession[sessionID]
	if !ok {
		return nil, nil
	}
	for t := range current {
		if _, keep := want[t]; !keep {
			removed = append(removed, t)
		}
	}
	for _, t := range removed {
		h.unsubscribeLocked(sessionID, t)
	}
	for t := range want {
		if h.subscribeLocked(sessionID, t) {
			added = append(added, t)
		}
	}
	observability.AddSubscriptions(len(added) - len(removed))
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}

func (h *Hub) subscribeLocked(sessionID, topic string) bool {
	mine, ok := h.bySession[sessionID]
	if !ok {
		return false
	}
	if _, dup := mine[topic]; dup {
		return false
	}
	mine[topic] = struct{}{}
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[string]struct{})
		h.topics[topic] = subs
	}
	subs[sessionID] = struct{}{}
	return true
}

func (h *Hub) unsubscribeLocked(sessionID, topic string) {
	delete(h.bySession[sessionID], topic)
	if subs, ok := h.topics[topic]; ok {
		delete(subs, sessionID)
		if len(subs) == 0 {
			delete(h.topics, topic)
		}
	}
}

// Publish signals every session subscribed to topic and returns how many
// were signalled.
func (h *Hub) Publish(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	observability.IncInvalidation(topic)
	for id := range h.topics[topic] {
		h.sessions[id].Invalidate(topic)
	}
	return len(h.topics[topic])
}

// PublishAll signals every subscription. It is used when notifications may
// have been lost, such as after the change stream reconnects.
func (h *Hub) PublishAll() int {
	h.mu.RLock()
	n := 0
	for id, topics := range h.bySession {
		for t := range topics {
			h.sessions[id].Invalidate(t)
			n++
		}
	}
	h.mu.RUnlock()

	h.log.Info("invalidated all subscriptions", zap.Int("subscriptions", n))
	return n
}

// Topics returns the sorted topic set of a session.
func (h *Hub) Topics(sessionID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.bySession[sessionID]))
	for t := range h.bySession[sessionID] {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Sessions returns the number of registered sessions.
func (h *Hub) Sessions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}
