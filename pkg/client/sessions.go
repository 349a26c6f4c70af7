package client

import (
	"context"
	"net/http"
	"net/url"

	v1 "github.com/sparkq/sparkq/pkg/api/v1"
)

// CreateSession creates a new session.
func (c *Client) CreateSession(ctx context.Context, req v1.CreateSessionRequest) (*v1.Session, error) {
	var out v1.Session
	if err := c.do(ctx, http.MethodPost, "/api/v1/sessions", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListSessions lists sessions, optionally filtered by a name substring.
func (c *Client) ListSessions(ctx context.Context, query string) (*v1.SessionList, error) {
	path := "/api/v1/sessions"
	if query != "" {
		path += "?q=" + url.QueryEscape(query)
	}
	var out v1.SessionList
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSession returns one session by id.
func (c *Client) GetSession(ctx context.Context, id string) (*v1.Session, error) {
	var out v1.Session
	if err := c.do(ctx, http.MethodGet, "/api/v1/sessions/"+id, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSessionByName returns one session by its unique name.
func (c *Client) GetSessionByName(ctx context.Context, name string) (*v1.Session, error) {
	var out v1.Session
	if err := c.do(ctx, http.MethodGet, "/api/v1/sessions/by-name/"+escapeSegment(name), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateSession renames a session or changes its description.
func (c *Client) UpdateSession(ctx context.Context, id string, req v1.UpdateSessionRequest) (*v1.Session, error) {
	var out v1.Session
	if err := c.do(ctx, http.MethodPatch, "/api/v1/sessions/"+id, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// EndSession marks a session ended. Ending twice is a conflict.
func (c *Client) EndSession(ctx context.Context, id string) (*v1.Session, error) {
	var out v1.Session
	if err := c.do(ctx, http.MethodPost, "/api/v1/sessions/"+id+"/end", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteSession removes a session and everything under it.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/sessions/"+id, nil, nil)
}
