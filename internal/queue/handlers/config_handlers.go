package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sparkq/sparkq/internal/common/apperr"
	"github.com/sparkq/sparkq/internal/events"
	"github.com/sparkq/sparkq/internal/events/bus"
	v1 "github.com/sparkq/sparkq/pkg/api/v1"
)

func (h *Handlers) httpGetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.registry.Resolved())
}

func (h *Handlers) httpPutConfig(c *gin.Context) {
	var req v1.PutConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, h.logger, err)
		return
	}

	ns, key := c.Param("namespace"), c.Param("key")
	if err := h.registry.Put(c.Request.Context(), ns, key, req.Value); err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.publishConfigEvent(c, events.ConfigUpdated, ns, key)
	c.JSON(http.StatusOK, h.registry.Resolved())
}

func (h *Handlers) httpDeleteConfig(c *gin.Context) {
	ns, key := c.Param("namespace"), c.Param("key")
	if err := h.registry.Delete(c.Request.Context(), ns, key); err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.publishConfigEvent(c, events.ConfigDeleted, ns, key)
	c.JSON(http.StatusOK, h.registry.Resolved())
}

// httpValidateConfig checks a proposed value without persisting it. The
// outcome is reported in the body; a rejected value is still a 200.
func (h *Handlers) httpValidateConfig(c *gin.Context) {
	var req v1.ValidateConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, h.logger, err)
		return
	}

	if err := h.registry.Validate(req.Namespace, req.Key, req.Value); err != nil {
		c.JSON(http.StatusOK, v1.ValidateConfigResponse{
			Valid:  false,
			Errors: apperr.Details(err),
		})
		return
	}
	c.JSON(http.StatusOK, v1.ValidateConfigResponse{Valid: true})
}

func (h *Handlers) httpReloadConfig(c *gin.Context) {
	if err := h.registry.Reload(c.Request.Context()); err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.publishConfigEvent(c, events.ConfigReloaded, "", "")
	c.JSON(http.StatusOK, h.registry.Resolved())
}

func (h *Handlers) publishConfigEvent(c *gin.Context, eventType, ns, key string) {
	if h.eventBus == nil {
		return
	}
	data := map[string]interface{}{}
	if ns != "" {
		data["namespace"] = ns
		data["key"] = key
	}
	event := bus.NewEvent(eventType, "sparkq-api", data)
	if err := h.eventBus.Publish(c.Request.Context(), eventType, event); err != nil {
		h.logger.WithError(err).Warn("Failed to publish config event",
			zap.String("event_type", eventType))
	}
}
