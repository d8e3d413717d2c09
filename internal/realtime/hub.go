package realtime

import (
	"encoding/json"
	"log"
	"sync"
	"time"
)

// Client represents a single websocket subscriber connection.
// We keep it minimal here; the actual network conn is managed in the ws handler.
type Client interface {
	Send(message []byte) bool
	Close()
}

// Event is one cache-lifecycle or sync-replay notification pushed to
// subscribers.
type Event struct {
	Kind   string    `json:"kind"`
	Detail string    `json:"detail"`
	At     time.Time `json:"at"`
}

// Hub maintains active subscriber connections and broadcasts cache events to
// them. Construct one per gateway; there is no package-level instance.
type Hub struct {
	mu      sync.RWMutex
	clients map[Client]struct{}
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[Client]struct{})}
}

// Register adds a subscriber.
func (h *Hub) Register(client Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = struct{}{}
}

// Unregister removes a subscriber.
func (h *Hub) Unregister(client Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, client)
}

// Publish broadcasts one event to every subscriber. Implements the offline
// controller's event sink. Send failures are ignored here; the ws handler
// notices dead connections on its own read loop.
func (h *Hub) Publish(kind, detail string) {
	msg, err := json.Marshal(Event{Kind: kind, Detail: detail, At: time.Now()})
	if err != nil {
		log.Printf("realtime: marshal event failed: %v", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.Send(msg)
	}
}

// Subscribers returns the current connection count, for diagnostics.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
