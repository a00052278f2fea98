package push

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"photogram/internal/gateway"
	"photogram/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	// Max connections per user (one per open tab, with headroom).
	maxConnsPerUser = 8
	// Max total connections; the daemon serves a single household of UIs.
	maxTotalConns = 256
)

// Hub maps userID -> connected UI clients and fans cache events out to them.
type Hub struct {
	mu         sync.RWMutex
	conns      map[string]map[*Client]struct{}
	totalConns int

	logger *observability.WSLogger
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		conns:  make(map[string]map[*Client]struct{}),
		logger: observability.NewWSLogger("push"),
	}
}

// Register adds a connection for userID. Returns an error when limits are hit.
func (h *Hub) Register(userID string, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()

	if h.totalConns >= maxTotalConns {
		h.mu.Unlock()
		return nil, errors.New("connection limit reached")
	}

	m, ok := h.conns[userID]
	if !ok {
		m = make(map[*Client]struct{})
		h.conns[userID] = m
	}
	if len(m) >= maxConnsPerUser {
		h.mu.Unlock()
		return nil, errors.New("user connection limit reached")
	}

	client := NewClient(h, conn, userID)
	m[client] = struct{}{}
	h.totalConns++
	h.mu.Unlock()

	observability.WebSocketConnectionsTotal.Inc()
	h.logger.LogConnect(context.Background(), userID)
	return client, nil
}

// UnregisterClient removes a connection and closes its send channel.
func (h *Hub) UnregisterClient(client *Client) {
	h.mu.Lock()
	removed := false
	if m, ok := h.conns[client.UserID]; ok {
		if _, exists := m[client]; exists {
			delete(m, client)
			h.totalConns--
			removed = true
		}
		if len(m) == 0 {
			delete(h.conns, client.UserID)
		}
	}
	h.mu.Unlock()

	if removed {
		close(client.Send)
		observability.WebSocketConnectionsTotal.Dec()
		h.logger.LogDisconnect(context.Background(), client.UserID, "unregistered")
	}
}

// Broadcast sends an event to every connected client. Slow clients drop the
// event rather than blocking the fan-out.
func (h *Hub) Broadcast(ev gateway.Event) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return
	}

	h.mu.RLock()
	for _, m := range h.conns {
		for client := range m {
			select {
			case client.Send <- raw:
				observability.WebSocketEventsTotal.WithLabelValues(string(ev.Type)).Inc()
			default:
			}
		}
	}
	h.mu.RUnlock()
}

// Forward watches the cache and broadcasts every event until ctx is canceled.
func (h *Hub) Forward(ctx context.Context, cache *gateway.Cache) {
	events := cache.Watch()
	go func() {
		defer cache.Unwatch(events)
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-events:
				h.Broadcast(ev)
			}
		}
	}()
}

// Shutdown disconnects every client.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	clients := make([]*Client, 0, h.totalConns)
	for _, m := range h.conns {
		for c := range m {
			clients = append(clients, c)
		}
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.UnregisterClient(c)
		_ = c.Conn.Close()
	}
	return nil
}
