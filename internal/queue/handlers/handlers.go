// Package handlers exposes the queue service over HTTP. Routes live under
// /api/v1; every error leaves as the uniform kind+message envelope.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sparkq/sparkq/internal/common/logger"
	"github.com/sparkq/sparkq/internal/events/bus"
	"github.com/sparkq/sparkq/internal/queue/service"
	"github.com/sparkq/sparkq/internal/registry"
	v1 "github.com/sparkq/sparkq/pkg/api/v1"
)

type Handlers struct {
	service  *service.Service
	registry *registry.Registry
	eventBus bus.EventBus
	version  string
	logger   *logger.Logger
}

func NewHandlers(svc *service.Service, reg *registry.Registry, eventBus bus.EventBus, version string, log *logger.Logger) *Handlers {
	return &Handlers{
		service:  svc,
		registry: reg,
		eventBus: eventBus,
		version:  version,
		logger:   log.WithFields(zap.String("component", "http-handlers")),
	}
}

// RegisterRoutes mounts every API endpoint on the router.
func RegisterRoutes(router *gin.Engine, svc *service.Service, reg *registry.Registry, eventBus bus.EventBus, version string, log *logger.Logger) *Handlers {
	h := NewHandlers(svc, reg, eventBus, version, log)
	h.register(router)
	return h
}

func (h *Handlers) register(router *gin.Engine) {
	router.GET("/health", h.httpHealth)

	api := router.Group("/api/v1")

	api.POST("/sessions", h.httpCreateSession)
	api.GET("/sessions", h.httpListSessions)
	api.GET("/sessions/:id", h.httpGetSession)
	api.GET("/sessions/by-name/:name", h.httpGetSessionByName)
	api.PATCH("/sessions/:id", h.httpUpdateSession)
	api.POST("/sessions/:id/end", h.httpEndSession)
	api.DELETE("/sessions/:id", h.httpDeleteSession)
	api.POST("/sessions/:id/queues", h.httpCreateQueue)

	api.GET("/queues", h.httpListQueues)
	api.GET("/queues/:id", h.httpGetQueue)
	api.GET("/queues/by-name/:name", h.httpGetQueueByName)
	api.PATCH("/queues/:id", h.httpUpdateQueue)
	api.POST("/queues/:id/end", h.httpEndQueue)
	api.POST("/queues/:id/archive", h.httpArchiveQueue)
	api.POST("/queues/:id/unarchive", h.httpUnarchiveQueue)
	api.DELETE("/queues/:id", h.httpDeleteQueue)
	api.POST("/queues/:id/claim", h.httpClaimTask)

	api.POST("/tasks", h.httpEnqueueTask)
	api.GET("/tasks", h.httpListTasks)
	api.POST("/tasks/quick-add", h.httpQuickAddTask)
	api.GET("/tasks/:id", h.httpGetTask)
	api.PATCH("/tasks/:id", h.httpUpdateTask)
	api.DELETE("/tasks/:id", h.httpDeleteTask)
	api.POST("/tasks/:id/complete", h.httpCompleteTask)
	api.POST("/tasks/:id/fail", h.httpFailTask)
	api.POST("/tasks/:id/requeue", h.httpRequeueTask)

	api.GET("/config", h.httpGetConfig)
	api.PUT("/config/:namespace/:key", h.httpPutConfig)
	api.DELETE("/config/:namespace/:key", h.httpDeleteConfig)
	api.POST("/config/validate", h.httpValidateConfig)
	api.POST("/config/reload", h.httpReloadConfig)

	api.GET("/prompts", h.httpListPrompts)
	api.GET("/prompts/:name", h.httpGetPrompt)

	api.GET("/stats", h.httpProjectStats)
}

func (h *Handlers) httpHealth(c *gin.Context) {
	c.JSON(http.StatusOK, v1.HealthResponse{
		Status:   "ok",
		Version:  h.version,
		UIBuild:  h.registry.UIBuildID(),
		Features: h.registry.Features(),
	})
}

func (h *Handlers) httpProjectStats(c *gin.Context) {
	stats, err := h.service.ProjectStats(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handlers) httpListPrompts(c *gin.Context) {
	prompts, err := h.service.ListPrompts(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	out := make([]*v1.Prompt, 0, len(prompts))
	for _, p := range prompts {
		out = append(out, p.ToAPI())
	}
	c.JSON(http.StatusOK, v1.PromptList{Prompts: out, Total: len(out)})
}

func (h *Handlers) httpGetPrompt(c *gin.Context) {
	prompt, err := h.service.GetPrompt(c.Request.Context(), c.Param("name"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, prompt.ToAPI())
}
