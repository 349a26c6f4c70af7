package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sparkq/sparkq/internal/queue/models"
	v1 "github.com/sparkq/sparkq/pkg/api/v1"
)

// withStats converts a queue and embeds its task counts.
func (h *Handlers) withStats(ctx context.Context, queue *models.Queue) (*v1.Queue, error) {
	stats, err := h.service.QueueStats(ctx, queue.ID)
	if err != nil {
		return nil, err
	}
	out := queue.ToAPI()
	out.Stats = stats
	return out, nil
}

func (h *Handlers) httpListQueues(c *gin.Context) {
	queues, err := h.service.ListQueues(c.Request.Context(), c.Query("session_id"), c.Query("q"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	out := make([]*v1.Queue, 0, len(queues))
	for _, q := range queues {
		withStats, err := h.withStats(c.Request.Context(), q)
		if err != nil {
			respondError(c, h.logger, err)
			return
		}
		out = append(out, withStats)
	}
	c.JSON(http.StatusOK, v1.QueueList{Queues: out, Total: len(out)})
}

func (h *Handlers) httpGetQueue(c *gin.Context) {
	queue, err := h.service.GetQueue(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	out, err := h.withStats(c.Request.Context(), queue)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handlers) httpGetQueueByName(c *gin.Context) {
	queue, err := h.service.GetQueueByName(c.Request.Context(), c.Param("name"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	out, err := h.withStats(c.Request.Context(), queue)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handlers) httpUpdateQueue(c *gin.Context) {
	var req v1.UpdateQueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, h.logger, err)
		return
	}
	queue, err := h.service.UpdateQueue(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, queue.ToAPI())
}

func (h *Handlers) httpEndQueue(c *gin.Context) {
	queue, err := h.service.EndQueue(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, queue.ToAPI())
}

func (h *Handlers) httpArchiveQueue(c *gin.Context) {
	queue, err := h.service.ArchiveQueue(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, queue.ToAPI())
}

func (h *Handlers) httpUnarchiveQueue(c *gin.Context) {
	queue, err := h.service.UnarchiveQueue(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, queue.ToAPI())
}

func (h *Handlers) httpDeleteQueue(c *gin.Context) {
	if err := h.service.DeleteQueue(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// httpClaimTask hands out the oldest queued task. The body is optional; a
// drained queue answers 204 rather than an error.
func (h *Handlers) httpClaimTask(c *gin.Context) {
	var req v1.ClaimTaskRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, h.logger, err)
			return
		}
	}

	task, err := h.service.ClaimTask(c.Request.Context(), c.Param("id"), req.WorkerID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if task == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, v1.ClaimTaskResponse{Task: task.ToAPI(), WorkerID: req.WorkerID})
}
