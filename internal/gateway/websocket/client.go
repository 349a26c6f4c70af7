package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sparkq/sparkq/internal/common/apperr"
	"github.com/sparkq/sparkq/internal/common/logger"
	"github.com/sparkq/sparkq/internal/events/bus"
	ws "github.com/sparkq/sparkq/pkg/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512 * 1024 // 512KB
)

// Client is a single feed connection. Until it subscribes it receives
// every event; filters narrow the feed to matching subjects.
type Client struct {
	ID      string
	conn    *websocket.Conn
	hub     *Hub
	send    chan []byte
	filters []bus.SubjectFilter
	mu      sync.RWMutex
	logger  *logger.Logger
}

// NewClient creates a feed client for an upgraded connection.
func NewClient(id string, conn *websocket.Conn, hub *Hub, log *logger.Logger) *Client {
	return &Client{
		ID:     id,
		conn:   conn,
		hub:    hub,
		send:   make(chan []byte, 256),
		logger: log.WithFields(zap.String("client_id", id)),
	}
}

// wants reports whether the client should receive an event on the subject.
// No filters means the full firehose.
func (c *Client) wants(subject string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.filters) == 0 {
		return true
	}
	for _, f := range c.filters {
		if f.Matches(subject) {
			return true
		}
	}
	return false
}

// ReadPump pumps frames from the connection into the dispatcher.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket read error", zap.Error(err))
			}
			break
		}

		var msg ws.Message
		if err := json.Unmarshal(message, &msg); err != nil {
			c.logger.Error("Failed to parse message", zap.Error(err))
			c.sendError("", "", ws.ErrorCodeBadRequest, "Invalid message format", nil)
			continue
		}

		c.handleMessage(ctx, &msg)
	}
}

// handleMessage processes an incoming frame. Subscription actions mutate
// the client itself; everything else goes through the dispatcher.
func (c *Client) handleMessage(ctx context.Context, msg *ws.Message) {
	c.logger.Debug("Received message",
		zap.String("action", msg.Action),
		zap.String("id", msg.ID))

	switch msg.Action {
	case ws.ActionFeedSubscribe:
		c.handleSubscribe(msg)
		return
	case ws.ActionFeedUnsubscribe:
		c.handleUnsubscribe(msg)
		return
	}

	response, err := c.hub.dispatcher.Dispatch(ctx, msg)
	if err != nil {
		c.logger.Error("Handler error",
			zap.String("action", msg.Action),
			zap.Error(err))
		c.sendError(msg.ID, msg.Action, errorCode(err), err.Error(), nil)
		return
	}

	if response != nil {
		c.sendMessage(response)
	}
}

// SubscribeRequest is the payload for feed.subscribe and feed.unsubscribe.
type SubscribeRequest struct {
	Subjects []string `json:"subjects"`
}

func (c *Client) handleSubscribe(msg *ws.Message) {
	var req SubscribeRequest
	if err := msg.ParsePayload(&req); err != nil {
		c.sendError(msg.ID, msg.Action, ws.ErrorCodeBadRequest, "Invalid payload: "+err.Error(), nil)
		return
	}

	if len(req.Subjects) == 0 {
		c.sendError(msg.ID, msg.Action, ws.ErrorCodeValidation, "subjects is required", nil)
		return
	}

	c.mu.Lock()
	for _, subject := range req.Subjects {
		if c.hasFilterLocked(subject) {
			continue
		}
		c.filters = append(c.filters, bus.NewSubjectFilter(subject))
	}
	patterns := c.patternsLocked()
	c.mu.Unlock()

	resp, _ := ws.NewResponse(msg.ID, msg.Action, map[string]interface{}{
		"success":  true,
		"subjects": patterns,
	})
	c.sendMessage(resp)
}

func (c *Client) handleUnsubscribe(msg *ws.Message) {
	var req SubscribeRequest
	if err := msg.ParsePayload(&req); err != nil {
		c.sendError(msg.ID, msg.Action, ws.ErrorCodeBadRequest, "Invalid payload: "+err.Error(), nil)
		return
	}

	if len(req.Subjects) == 0 {
		c.sendError(msg.ID, msg.Action, ws.ErrorCodeValidation, "subjects is required", nil)
		return
	}

	drop := make(map[string]bool, len(req.Subjects))
	for _, subject := range req.Subjects {
		drop[subject] = true
	}

	c.mu.Lock()
	kept := c.filters[:0]
	for _, f := range c.filters {
		if !drop[f.Pattern()] {
			kept = append(kept, f)
		}
	}
	c.filters = kept
	patterns := c.patternsLocked()
	c.mu.Unlock()

	resp, _ := ws.NewResponse(msg.ID, msg.Action, map[string]interface{}{
		"success":  true,
		"subjects": patterns,
	})
	c.sendMessage(resp)
}

func (c *Client) hasFilterLocked(pattern string) bool {
	for _, f := range c.filters {
		if f.Pattern() == pattern {
			return true
		}
	}
	return false
}

func (c *Client) patternsLocked() []string {
	patterns := make([]string, 0, len(c.filters))
	for _, f := range c.filters {
		patterns = append(patterns, f.Pattern())
	}
	return patterns
}

// errorCode maps a handler error onto a wire error code.
func errorCode(err error) string {
	switch {
	case apperr.IsValidation(err):
		return ws.ErrorCodeValidation
	case apperr.IsNotFound(err):
		return ws.ErrorCodeNotFound
	case apperr.IsConflict(err):
		return ws.ErrorCodeConflict
	default:
		return ws.ErrorCodeInternalError
	}
}

// sendMessage queues a frame for the write pump.
func (c *Client) sendMessage(msg *ws.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("Failed to marshal message", zap.Error(err))
		return
	}

	select {
	case c.send <- data:
	default:
		c.logger.Warn("Client send buffer full")
	}
}

// sendError queues an error frame for the write pump.
func (c *Client) sendError(id, action, code, message string, details map[string]interface{}) {
	msg, err := ws.NewError(id, action, code, message, details)
	if err != nil {
		c.logger.Error("Failed to create error message", zap.Error(err))
		return
	}
	c.sendMessage(msg)
}

// WritePump pumps queued frames to the connection and keeps it alive
// with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Batch additional queued messages
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
