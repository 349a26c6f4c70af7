package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/sparkq/sparkq/internal/common/apperr"
	"github.com/sparkq/sparkq/internal/queue/repository"
	v1 "github.com/sparkq/sparkq/pkg/api/v1"
)

func (h *Handlers) httpEnqueueTask(c *gin.Context) {
	var req v1.CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, h.logger, err)
		return
	}
	task, err := h.service.EnqueueTask(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, task.ToAPI())
}

func (h *Handlers) httpListTasks(c *gin.Context) {
	opts := repository.ListTasksOptions{QueueID: c.Query("queue_id")}

	if status := c.Query("status"); status != "" {
		switch v1.TaskStatus(status) {
		case v1.TaskStatusQueued, v1.TaskStatusRunning, v1.TaskStatusSucceeded, v1.TaskStatusFailed:
			opts.Status = v1.TaskStatus(status)
		default:
			respondError(c, h.logger, apperr.Validationf("unknown status %q", status))
			return
		}
	}
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			opts.Limit = parsed
		}
	}
	if o := c.Query("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed > 0 {
			opts.Offset = parsed
		}
	}

	tasks, total, err := h.service.ListTasks(c.Request.Context(), opts)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	out := make([]*v1.Task, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.ToAPI())
	}
	c.JSON(http.StatusOK, v1.TaskList{
		Tasks:  out,
		Total:  total,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}

func (h *Handlers) httpGetTask(c *gin.Context) {
	task, err := h.service.GetTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, task.ToAPI())
}

func (h *Handlers) httpUpdateTask(c *gin.Context) {
	var req v1.UpdateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, h.logger, err)
		return
	}
	task, err := h.service.UpdateTask(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, task.ToAPI())
}

func (h *Handlers) httpDeleteTask(c *gin.Context) {
	if err := h.service.DeleteTask(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) httpCompleteTask(c *gin.Context) {
	var req v1.CompleteTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, h.logger, err)
		return
	}
	task, err := h.service.CompleteTask(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, task.ToAPI())
}

func (h *Handlers) httpFailTask(c *gin.Context) {
	var req v1.FailTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, h.logger, err)
		return
	}
	task, err := h.service.FailTask(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, task.ToAPI())
}

func (h *Handlers) httpRequeueTask(c *gin.Context) {
	task, err := h.service.RequeueTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, task.ToAPI())
}

func (h *Handlers) httpQuickAddTask(c *gin.Context) {
	var req v1.QuickAddRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, h.logger, err)
		return
	}
	task, err := h.service.QuickAdd(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, task.ToAPI())
}
