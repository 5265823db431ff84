package alerts

import (
	"context"
	"log/slog"
	"sync"
)

// Hub fans alerts out to subscribed admin clients. It implements Notifier.
type Hub struct {
	log *slog.Logger

	mu      sync.RWMutex
	clients map[string]*Client
}

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{log: log, clients: make(map[string]*Client)}
}

// Subscribe registers c.
func (h *Hub) Subscribe(c *Client) {
	if h == nil || c == nil || c.ID == "" {
		return
	}
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()

	h.log.Info("alerts.subscriber.join", "client_id", c.ID)
}

// Unsubscribe removes the client and then signals it to stop, so no
// broadcaster still holds it while it tears down.
func (h *Hub) Unsubscribe(id string) {
	if h == nil || id == "" {
		return
	}
	h.mu.Lock()
	c := h.clients[id]
	delete(h.clients, id)
	h.mu.Unlock()

	if c != nil {
		c.Close()
		h.log.Info("alerts.subscriber.leave", "client_id", id)
	}
}

// Len returns the number of subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast offers a to every subscriber and returns how many accepted it.
// Slow subscribers miss the alert instead of stalling the others.
func (h *Hub) Broadcast(a Alert) int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for _, c := range h.clients {
		select {
		case <-c.Done():
			continue
		default:
		}

		select {
		case c.Send <- a:
			delivered++
		default:
			h.log.Warn("alerts.subscriber.drop", "client_id", c.ID, "alert_id", a.ID)
		}
	}
	return delivered
}

// SendSecurityAlert broadcasts a. Having no subscribers is not an error.
func (h *Hub) SendSecurityAlert(_ context.Context, a Alert) error {
	h.Broadcast(a)
	return nil
}
