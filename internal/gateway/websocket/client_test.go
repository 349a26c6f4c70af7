package websocket

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/sparkq/sparkq/internal/common/apperr"
	"github.com/sparkq/sparkq/internal/common/logger"
	ws "github.com/sparkq/sparkq/pkg/websocket"
)

func newTestGatewayLogger() *logger.Logger {
	log, _ := logger.NewLogger(logger.LoggingConfig{
		Level:  "error",
		Format: "json",
	})
	return log
}

// drainFrame reads the next queued frame off the client's send buffer.
func drainFrame(t *testing.T, c *Client) *ws.Message {
	t.Helper()
	select {
	case data := <-c.send:
		var msg ws.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("invalid frame on send buffer: %v", err)
		}
		return &msg
	default:
		t.Fatal("expected a frame on the send buffer")
		return nil
	}
}

func subscribeFrame(t *testing.T, subjects ...string) *ws.Message {
	t.Helper()
	msg, err := ws.NewRequest("req-1", ws.ActionFeedSubscribe, SubscribeRequest{Subjects: subjects})
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	return msg
}

func TestClientDefaultsToFirehose(t *testing.T) {
	c := NewClient("c1", nil, nil, newTestGatewayLogger())

	for _, subject := range []string{"task.enqueued", "queue.created", "session.ended", "config.updated"} {
		if !c.wants(subject) {
			t.Errorf("unfiltered client should want %q", subject)
		}
	}
}

func TestClientSubscribeNarrowsFeed(t *testing.T) {
	c := NewClient("c1", nil, nil, newTestGatewayLogger())

	c.handleSubscribe(subscribeFrame(t, "task.>", "queue.created"))

	resp := drainFrame(t, c)
	if resp.Type != ws.MessageTypeResponse {
		t.Fatalf("expected response frame, got %s", resp.Type)
	}
	if resp.ID != "req-1" {
		t.Errorf("response should echo the request id, got %q", resp.ID)
	}

	var payload struct {
		Success  bool     `json:"success"`
		Subjects []string `json:"subjects"`
	}
	if err := resp.ParsePayload(&payload); err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}
	if !payload.Success {
		t.Error("expected success true")
	}
	if len(payload.Subjects) != 2 {
		t.Errorf("expected 2 active subjects, got %v", payload.Subjects)
	}

	wants := map[string]bool{
		"task.enqueued":    true,
		"task.auto_failed": true,
		"queue.created":    true,
		"queue.deleted":    false,
		"session.created":  false,
	}
	for subject, want := range wants {
		if got := c.wants(subject); got != want {
			t.Errorf("wants(%q) = %v, want %v", subject, got, want)
		}
	}
}

func TestClientSubscribeIsIdempotent(t *testing.T) {
	c := NewClient("c1", nil, nil, newTestGatewayLogger())

	c.handleSubscribe(subscribeFrame(t, "task.>"))
	drainFrame(t, c)
	c.handleSubscribe(subscribeFrame(t, "task.>"))
	resp := drainFrame(t, c)

	var payload struct {
		Subjects []string `json:"subjects"`
	}
	if err := resp.ParsePayload(&payload); err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}
	if len(payload.Subjects) != 1 {
		t.Errorf("duplicate subscribe should not add a second filter, got %v", payload.Subjects)
	}
}

func TestClientUnsubscribeWidensFeed(t *testing.T) {
	c := NewClient("c1", nil, nil, newTestGatewayLogger())

	c.handleSubscribe(subscribeFrame(t, "task.>", "queue.>"))
	drainFrame(t, c)

	msg, _ := ws.NewRequest("req-2", ws.ActionFeedUnsubscribe, SubscribeRequest{Subjects: []string{"queue.>"}})
	c.handleUnsubscribe(msg)
	resp := drainFrame(t, c)

	var payload struct {
		Subjects []string `json:"subjects"`
	}
	if err := resp.ParsePayload(&payload); err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}
	if len(payload.Subjects) != 1 || payload.Subjects[0] != "task.>" {
		t.Errorf("expected only task.> to remain, got %v", payload.Subjects)
	}
	if c.wants("queue.created") {
		t.Error("queue events should be filtered out after unsubscribe")
	}

	// Removing the last filter goes back to everything.
	msg, _ = ws.NewRequest("req-3", ws.ActionFeedUnsubscribe, SubscribeRequest{Subjects: []string{"task.>"}})
	c.handleUnsubscribe(msg)
	drainFrame(t, c)

	if !c.wants("queue.created") || !c.wants("session.ended") {
		t.Error("client with no filters should receive everything again")
	}
}

func TestClientSubscribeValidation(t *testing.T) {
	c := NewClient("c1", nil, nil, newTestGatewayLogger())

	msg, _ := ws.NewRequest("req-1", ws.ActionFeedSubscribe, SubscribeRequest{})
	c.handleSubscribe(msg)

	resp := drainFrame(t, c)
	if resp.Type != ws.MessageTypeError {
		t.Fatalf("expected error frame, got %s", resp.Type)
	}
	var payload ws.ErrorPayload
	if err := resp.ParsePayload(&payload); err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}
	if payload.Code != ws.ErrorCodeValidation {
		t.Errorf("expected %s, got %s", ws.ErrorCodeValidation, payload.Code)
	}
}

func TestClientSubscribeBadPayload(t *testing.T) {
	c := NewClient("c1", nil, nil, newTestGatewayLogger())

	msg := &ws.Message{
		ID:      "req-1",
		Type:    ws.MessageTypeRequest,
		Action:  ws.ActionFeedSubscribe,
		Payload: json.RawMessage(`"not an object"`),
	}
	c.handleSubscribe(msg)

	resp := drainFrame(t, c)
	if resp.Type != ws.MessageTypeError {
		t.Fatalf("expected error frame, got %s", resp.Type)
	}
	var payload ws.ErrorPayload
	if err := resp.ParsePayload(&payload); err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}
	if payload.Code != ws.ErrorCodeBadRequest {
		t.Errorf("expected %s, got %s", ws.ErrorCodeBadRequest, payload.Code)
	}
}

func TestErrorCodeMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"validation", apperr.Validation("name is required"), ws.ErrorCodeValidation},
		{"not found", apperr.NotFound("task", "t-1"), ws.ErrorCodeNotFound},
		{"conflict", apperr.Conflict("queue is ended"), ws.ErrorCodeConflict},
		{"internal", apperr.Internal("db down", errors.New("io")), ws.ErrorCodeInternalError},
		{"plain error", errors.New("boom"), ws.ErrorCodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorCode(tt.err); got != tt.want {
				t.Errorf("errorCode() = %s, want %s", got, tt.want)
			}
		})
	}
}
