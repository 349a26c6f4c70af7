// Package client provides a typed HTTP client for the SparkQ daemon API.
// Server errors come back as apperr values so callers can branch on the
// kind (and the CLI can derive its exit code) without parsing messages.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sparkq/sparkq/internal/common/apperr"
	"github.com/sparkq/sparkq/internal/common/logger"
	v1 "github.com/sparkq/sparkq/pkg/api/v1"
)

// Client talks to a SparkQ daemon over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger
}

// New creates a client for the daemon at baseURL, e.g. http://127.0.0.1:8716.
func New(baseURL string, log *logger.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: log.WithFields(zap.String("component", "api-client")),
	}
}

// BaseURL returns the base URL the client was created with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// do performs one API request. A non-nil body is sent as JSON; a non-nil
// out receives the decoded response. A 204 leaves out untouched.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return apperr.Validationf("encode request: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := readResponseBody(resp)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, respBody)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response (status %d, body: %s): %w", resp.StatusCode, truncateBody(respBody), err)
	}
	return nil
}

// decodeError turns a non-2xx answer back into the apperr the server
// started from. Responses that are not the uniform error envelope (a
// proxy in the way, a crash before the handler) still map to a kind by
// status code.
func decodeError(status int, body []byte) error {
	var envelope v1.ErrorResponse
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return &apperr.Error{Kind: normalizeKind(envelope.Error.Kind), Message: envelope.Error.Message}
	}
	return &apperr.Error{
		Kind:    kindForStatus(status),
		Message: fmt.Sprintf("server answered %d: %s", status, truncateBody(body)),
	}
}

func normalizeKind(kind string) string {
	switch kind {
	case apperr.KindValidation, apperr.KindNotFound, apperr.KindConflict, apperr.KindInternal:
		return kind
	}
	return apperr.KindInternal
}

func kindForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return apperr.KindValidation
	case http.StatusNotFound:
		return apperr.KindNotFound
	case http.StatusConflict:
		return apperr.KindConflict
	}
	return apperr.KindInternal
}

// Health checks daemon liveness.
func (c *Client) Health(ctx context.Context) (*v1.HealthResponse, error) {
	var out v1.HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ProjectStats returns project-wide totals.
func (c *Client) ProjectStats(ctx context.Context) (*v1.ProjectStats, error) {
	var out v1.ProjectStats
	if err := c.do(ctx, http.MethodGet, "/api/v1/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListPrompts returns the prompt catalog.
func (c *Client) ListPrompts(ctx context.Context) (*v1.PromptList, error) {
	var out v1.PromptList
	if err := c.do(ctx, http.MethodGet, "/api/v1/prompts", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetPrompt returns one prompt by name.
func (c *Client) GetPrompt(ctx context.Context, name string) (*v1.Prompt, error) {
	var out v1.Prompt
	if err := c.do(ctx, http.MethodGet, "/api/v1/prompts/"+escapeSegment(name), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// escapeSegment makes a user-supplied name safe as a single path segment.
func escapeSegment(s string) string {
	return url.PathEscape(s)
}

func readResponseBody(resp *http.Response) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// truncateBody truncates body for error messages to avoid huge logs
func truncateBody(body []byte) string {
	const maxLen = 200
	if len(body) > maxLen {
		return string(body[:maxLen]) + "..."
	}
	return string(body)
}
