package client

import (
	"context"
	"net/http"

	v1 "github.com/sparkq/sparkq/pkg/api/v1"
)

// Config returns the fully resolved configuration with per-entry sources.
func (c *Client) Config(ctx context.Context) (v1.ResolvedConfig, error) {
	var out v1.ResolvedConfig
	if err := c.do(ctx, http.MethodGet, "/api/v1/config", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PutConfig writes a value into the database config layer and returns the
// new resolved view.
func (c *Client) PutConfig(ctx context.Context, namespace, key string, value interface{}) (v1.ResolvedConfig, error) {
	var out v1.ResolvedConfig
	path := "/api/v1/config/" + escapeSegment(namespace) + "/" + escapeSegment(key)
	if err := c.do(ctx, http.MethodPut, path, v1.PutConfigRequest{Value: value}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteConfig removes a database-layer entry so the file or builtin value
// shows through again.
func (c *Client) DeleteConfig(ctx context.Context, namespace, key string) (v1.ResolvedConfig, error) {
	var out v1.ResolvedConfig
	path := "/api/v1/config/" + escapeSegment(namespace) + "/" + escapeSegment(key)
	if err := c.do(ctx, http.MethodDelete, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ValidateConfig checks a proposed value without writing it. A rejected
// value is not an error; the verdict carries the problems.
func (c *Client) ValidateConfig(ctx context.Context, namespace, key string, value interface{}) (*v1.ValidateConfigResponse, error) {
	var out v1.ValidateConfigResponse
	req := v1.ValidateConfigRequest{Namespace: namespace, Key: key, Value: value}
	if err := c.do(ctx, http.MethodPost, "/api/v1/config/validate", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ReloadConfig re-reads the daemon's config file and returns the new
// resolved view.
func (c *Client) ReloadConfig(ctx context.Context) (v1.ResolvedConfig, error) {
	var out v1.ResolvedConfig
	if err := c.do(ctx, http.MethodPost, "/api/v1/config/reload", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
