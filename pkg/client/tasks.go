package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	v1 "github.com/sparkq/sparkq/pkg/api/v1"
)

// ListTasksOptions filter a task listing. Zero values mean no filter.
type ListTasksOptions struct {
	QueueID string
	Status  v1.TaskStatus
	Limit   int
	Offset  int
}

// EnqueueTask appends a task to a queue.
func (c *Client) EnqueueTask(ctx context.Context, req v1.CreateTaskRequest) (*v1.Task, error) {
	var out v1.Task
	if err := c.do(ctx, http.MethodPost, "/api/v1/tasks", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// QuickAdd enqueues a task from a compact llm or script description.
func (c *Client) QuickAdd(ctx context.Context, req v1.QuickAddRequest) (*v1.Task, error) {
	var out v1.Task
	if err := c.do(ctx, http.MethodPost, "/api/v1/tasks/quick-add", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListTasks lists tasks oldest first.
func (c *Client) ListTasks(ctx context.Context, opts ListTasksOptions) (*v1.TaskList, error) {
	q := url.Values{}
	if opts.QueueID != "" {
		q.Set("queue_id", opts.QueueID)
	}
	if opts.Status != "" {
		q.Set("status", string(opts.Status))
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}
	path := "/api/v1/tasks"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out v1.TaskList
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTask returns one task by id.
func (c *Client) GetTask(ctx context.Context, id string) (*v1.Task, error) {
	var out v1.Task
	if err := c.do(ctx, http.MethodGet, "/api/v1/tasks/"+id, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateTask edits the work definition of a task.
func (c *Client) UpdateTask(ctx context.Context, id string, req v1.UpdateTaskRequest) (*v1.Task, error) {
	var out v1.Task
	if err := c.do(ctx, http.MethodPatch, "/api/v1/tasks/"+id, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteTask removes a task.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/tasks/"+id, nil, nil)
}

// CompleteTask marks a running task succeeded.
func (c *Client) CompleteTask(ctx context.Context, id string, req v1.CompleteTaskRequest) (*v1.Task, error) {
	var out v1.Task
	if err := c.do(ctx, http.MethodPost, "/api/v1/tasks/"+id+"/complete", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FailTask marks a queued or running task failed.
func (c *Client) FailTask(ctx context.Context, id string, req v1.FailTaskRequest) (*v1.Task, error) {
	var out v1.Task
	if err := c.do(ctx, http.MethodPost, "/api/v1/tasks/"+id+"/fail", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RequeueTask clones a terminal task into a fresh queued one and returns
// the clone.
func (c *Client) RequeueTask(ctx context.Context, id string) (*v1.Task, error) {
	var out v1.Task
	if err := c.do(ctx, http.MethodPost, "/api/v1/tasks/"+id+"/requeue", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
