// Package websocket is the live-feed gateway: one hub fans bus events out
// to connected clients, each narrowing the feed with subject filters.
package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/sparkq/sparkq/internal/common/logger"
	ws "github.com/sparkq/sparkq/pkg/websocket"
)

// feedItem pairs an outbound frame with the bus subject it came from, so
// the hub can match it against per-client filters.
type feedItem struct {
	subject string
	msg     *ws.Message
}

// Hub manages all feed connections.
type Hub struct {
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan feedItem

	dispatcher *ws.Dispatcher

	mu     sync.RWMutex
	logger *logger.Logger
}

// NewHub creates a hub routing request frames through the dispatcher.
func NewHub(dispatcher *ws.Dispatcher, log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan feedItem, 256),
		dispatcher: dispatcher,
		logger:     log.WithFields(zap.String("component", "ws_hub")),
	}
}

// Run is the hub's main loop. It returns when ctx is cancelled, after
// closing every client.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("WebSocket hub started")
	defer h.logger.Info("WebSocket hub stopped")

	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debug("Client registered", zap.String("client_id", client.ID))

		case client := <-h.unregister:
			h.removeClient(client)

		case item := <-h.broadcast:
			h.broadcastItem(item)
		}
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	h.logger.Debug("Client unregistered", zap.String("client_id", client.ID))
}

// broadcastItem marshals once and delivers to every client whose filters
// accept the subject. A client with a full send buffer is skipped; its
// write pump will tear the connection down if it stays stuck.
func (h *Hub) broadcastItem(item feedItem) {
	data, err := json.Marshal(item.msg)
	if err != nil {
		h.logger.Error("Failed to marshal broadcast message", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if !client.wants(item.subject) {
			continue
		}
		select {
		case client.send <- data:
		default:
		}
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Broadcast queues a frame for delivery to clients subscribed to the
// subject. Never blocks the caller; the feed is best-effort.
func (h *Hub) Broadcast(subject string, msg *ws.Message) {
	select {
	case h.broadcast <- feedItem{subject: subject, msg: msg}:
	default:
		h.logger.Warn("Feed backlog full, dropping event", zap.String("subject", subject))
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
