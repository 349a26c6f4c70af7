package client

import (
	"context"
	"net/http"
	"net/url"

	v1 "github.com/sparkq/sparkq/pkg/api/v1"
)

// ListQueuesOptions filter a queue listing. Zero values mean no filter.
type ListQueuesOptions struct {
	SessionID string
	Query     string
}

// CreateQueue creates a queue under a session.
func (c *Client) CreateQueue(ctx context.Context, sessionID string, req v1.CreateQueueRequest) (*v1.Queue, error) {
	var out v1.Queue
	if err := c.do(ctx, http.MethodPost, "/api/v1/sessions/"+sessionID+"/queues", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListQueues lists queues with their task stats attached.
func (c *Client) ListQueues(ctx context.Context, opts ListQueuesOptions) (*v1.QueueList, error) {
	q := url.Values{}
	if opts.SessionID != "" {
		q.Set("session_id", opts.SessionID)
	}
	if opts.Query != "" {
		q.Set("q", opts.Query)
	}
	path := "/api/v1/queues"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out v1.QueueList
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetQueue returns one queue by id, stats attached.
func (c *Client) GetQueue(ctx context.Context, id string) (*v1.Queue, error) {
	var out v1.Queue
	if err := c.do(ctx, http.MethodGet, "/api/v1/queues/"+id, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetQueueByName returns one queue by its unique name.
func (c *Client) GetQueueByName(ctx context.Context, name string) (*v1.Queue, error) {
	var out v1.Queue
	if err := c.do(ctx, http.MethodGet, "/api/v1/queues/by-name/"+escapeSegment(name), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateQueue renames a queue or changes its instructions.
func (c *Client) UpdateQueue(ctx context.Context, id string, req v1.UpdateQueueRequest) (*v1.Queue, error) {
	var out v1.Queue
	if err := c.do(ctx, http.MethodPatch, "/api/v1/queues/"+id, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// EndQueue marks a queue ended; it stops accepting tasks.
func (c *Client) EndQueue(ctx context.Context, id string) (*v1.Queue, error) {
	var out v1.Queue
	if err := c.do(ctx, http.MethodPost, "/api/v1/queues/"+id+"/end", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ArchiveQueue archives a queue.
func (c *Client) ArchiveQueue(ctx context.Context, id string) (*v1.Queue, error) {
	var out v1.Queue
	if err := c.do(ctx, http.MethodPost, "/api/v1/queues/"+id+"/archive", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UnarchiveQueue restores an archived queue to active.
func (c *Client) UnarchiveQueue(ctx context.Context, id string) (*v1.Queue, error) {
	var out v1.Queue
	if err := c.do(ctx, http.MethodPost, "/api/v1/queues/"+id+"/unarchive", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteQueue removes a queue and its tasks.
func (c *Client) DeleteQueue(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/queues/"+id, nil, nil)
}

// ClaimTask atomically claims the oldest queued task in a queue. A drained
// queue returns (nil, nil). The worker id is echoed into the claim event
// but never persisted.
func (c *Client) ClaimTask(ctx context.Context, queueID, workerID string) (*v1.Task, error) {
	var body interface{}
	if workerID != "" {
		body = v1.ClaimTaskRequest{WorkerID: workerID}
	}
	var out v1.ClaimTaskResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/queues/"+queueID+"/claim", body, &out); err != nil {
		return nil, err
	}
	return out.Task, nil
}
