package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sparkq/sparkq/internal/common/logger"
	ws "github.com/sparkq/sparkq/pkg/websocket"
)

// FeedCallbacks receive frames from the live feed. Nil callbacks are
// skipped. OnEvent's action is the bus subject of the event.
type FeedCallbacks struct {
	OnEvent     func(action string, payload json.RawMessage)
	OnError     func(code, message string)
	OnConnected func()
}

// FeedStream is an open live-feed connection.
type FeedStream struct {
	conn      *websocket.Conn
	closeCh   chan struct{}
	closeOnce sync.Once
	logger    *logger.Logger
}

// StreamFeed connects to the daemon's event feed. With no subjects the
// feed delivers everything; otherwise only events matching one of the
// subject patterns (task.>, queue.created, ...) arrive. The stream closes
// itself when ctx is cancelled.
func (c *Client) StreamFeed(ctx context.Context, subjects []string, callbacks FeedCallbacks) (*FeedStream, error) {
	wsURL := "ws" + c.baseURL[4:] + "/ws"
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to event feed: %w", err)
	}

	if len(subjects) > 0 {
		sub, err := ws.NewRequest(uuid.New().String(), ws.ActionFeedSubscribe, map[string]interface{}{
			"subjects": subjects,
		})
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
		if err := conn.WriteJSON(sub); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to subscribe: %w", err)
		}
	}

	c.logger.Debug("connected to event feed", zap.String("url", wsURL), zap.Strings("subjects", subjects))

	stream := &FeedStream{
		conn:    conn,
		closeCh: make(chan struct{}),
		logger:  c.logger,
	}

	if callbacks.OnConnected != nil {
		callbacks.OnConnected()
	}

	go func() {
		select {
		case <-ctx.Done():
			stream.Close()
		case <-stream.closeCh:
		}
	}()

	go func() {
		defer stream.Close()
		for {
			// The server batches queued frames into one message separated
			// by newlines; each line is a complete envelope.
			_, data, err := conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					select {
					case <-stream.closeCh:
					default:
						c.logger.Debug("event feed read error", zap.Error(err))
					}
				}
				return
			}
			for _, frame := range bytes.Split(data, []byte{'\n'}) {
				if len(bytes.TrimSpace(frame)) == 0 {
					continue
				}
				var msg ws.Message
				if err := json.Unmarshal(frame, &msg); err != nil {
					c.logger.Debug("dropping unparsable feed frame", zap.Error(err))
					continue
				}
				switch msg.Type {
				case ws.MessageTypeNotification:
					if callbacks.OnEvent != nil {
						callbacks.OnEvent(msg.Action, msg.Payload)
					}
				case ws.MessageTypeError:
					if callbacks.OnError != nil {
						var payload ws.ErrorPayload
						if err := msg.ParsePayload(&payload); err == nil {
							callbacks.OnError(payload.Code, payload.Message)
						}
					}
				}
			}
		}
	}()

	return stream, nil
}

// Close closes the stream. Safe to call more than once.
func (s *FeedStream) Close() {
	s.closeOnce.Do(func() {
		close(s.closeCh)
		if err := s.conn.Close(); err != nil {
			s.logger.Debug("failed to close event feed connection", zap.Error(err))
		}
	})
}

// Done is closed when the stream has shut down.
func (s *FeedStream) Done() <-chan struct{} {
	return s.closeCh
}
