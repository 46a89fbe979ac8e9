// Package ws provides live WebSocket delivery of session messages.
package ws

import (
	"log/slog"
	"sync"

	"github.com/charlalabs/charla/internal/domain"
)

// subscriberBuffer bounds the per-subscriber queue. A subscriber that falls
// this far behind is dropped rather than block the turn pipeline.
const subscriberBuffer = 16

type subscriber struct {
	userID string
	ch     chan *domain.Message
}

// Hub routes messages appended by completed turns to the WebSocket
// subscribers of their session. It implements chat.Publisher.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscriber]struct{}
	logger *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:   make(map[string]map[*subscriber]struct{}),
		logger: logger,
	}
}

// Subscribe registers a listener for one session and returns its message
// channel plus a cancel function. The channel is closed on cancel.
func (h *Hub) Subscribe(sessionID, userID string) (<-chan *domain.Message, func()) {
	sub := &subscriber{userID: userID, ch: make(chan *domain.Message, subscriberBuffer)}

	h.mu.Lock()
	if _, ok := h.subs[sessionID]; !ok {
		h.subs[sessionID] = make(map[*subscriber]struct{})
	}
	h.subs[sessionID][sub] = struct{}{}
	h.mu.Unlock()

	h.logger.Info("websocket subscriber registered", "session_id", sessionID, "user_id", userID)

	cancel := func() {
		h.remove(sessionID, sub)
	}
	return sub.ch, cancel
}

func (h *Hub) remove(sessionID string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.subs[sessionID]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subs, sessionID)
	}
	close(sub.ch)
}

// Publish delivers a message to every subscriber of its session. Slow
// subscribers are dropped so publishing never blocks a turn.
func (h *Hub) Publish(sessionID string, message *domain.Message) {
	h.mu.RLock()
	var slow []*subscriber
	for sub := range h.subs[sessionID] {
		select {
		case sub.ch <- message:
		default:
			slow = append(slow, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range slow {
		h.logger.Warn("dropping slow websocket subscriber", "session_id", sessionID, "user_id", sub.userID)
		h.remove(sessionID, sub)
	}
}

// SubscriberCount reports the number of listeners for a session.
func (h *Hub) SubscriberCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sessionID])
}
