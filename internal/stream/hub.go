// Package stream broadcasts sale events to WebSocket subscribers. The
// hub is an event sink: everything the engine emits is fanned out to
// every connected client in emission order.
package stream

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"crowdsale-engine/internal/domain"
	"crowdsale-engine/internal/observability"
)

// HubConfig configures hub behavior.
type HubConfig struct {
	// WriteTimeout is timeout for writing a frame to a client.
	WriteTimeout time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// PongWait is how long to wait for a pong before dropping the client.
	PongWait time.Duration
	// SendBuffer is the per-client outbound queue size. A client whose
	// queue fills up is evicted rather than allowed to stall the hub.
	SendBuffer int
}

// DefaultHubConfig returns default hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		WriteTimeout: 10 * time.Second,
		PingInterval: 30 * time.Second,
		PongWait:     60 * time.Second,
		SendBuffer:   64,
	}
}

// Hub manages WebSocket subscribers and broadcasts events to them.
type Hub struct {
	config  HubConfig
	logger  *log.Logger
	metrics *observability.Metrics

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a hub. A nil config uses defaults; a nil logger uses
// the process default; a nil metrics uses the default instance.
func NewHub(config *HubConfig, logger *log.Logger, metrics *observability.Metrics) *Hub {
	cfg := DefaultHubConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = log.Default()
	}
	if metrics == nil {
		metrics = observability.DefaultMetrics
	}

	return &Hub{
		config:  cfg,
		logger:  logger,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request to a WebSocket subscription.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("websocket upgrade failed: %v", err)
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, h.config.SendBuffer),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.metrics.WSClientsConnected.Set(float64(n))

	go h.writePump(c)
	go h.readPump(c)
}

// Emit implements the event sink: marshal once, queue to every client.
func (h *Hub) Emit(_ context.Context, e *domain.SaleEvent) {
	payload, err := json.Marshal(wireEvent(e))
	if err != nil {
		h.logger.Printf("marshal event %s: %v", e.EventID, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			// Slow client: evict instead of blocking the broadcast.
			h.removeClientLocked(c)
			h.metrics.WSClientsEvicted.Inc()
			h.logger.Printf("evicted slow websocket client %s", c.conn.RemoteAddr())
		}
	}
}

// Close disconnects all clients and stops accepting new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.removeClientLocked(c)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// removeClientLocked must be called with h.mu held. Closing send makes
// the write pump close the connection, which unblocks the read pump.
func (h *Hub) removeClientLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.metrics.WSClientsConnected.Set(float64(len(h.clients)))
}

func (h *Hub) removeClient(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeClientLocked(c)
}

// writePump drains the client queue and keeps the connection alive.
func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(h.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				c.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.removeClient(c)
				return
			}
			h.metrics.WSMessagesSent.Inc()
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.removeClient(c)
				return
			}
		}
	}
}

// readPump discards inbound frames; subscribers are read-only. It exists
// to process pongs and to notice the peer going away.
func (h *Hub) readPump(c *client) {
	defer h.removeClient(c)

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(h.config.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(h.config.PongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
