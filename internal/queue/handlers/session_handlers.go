package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	v1 "github.com/sparkq/sparkq/pkg/api/v1"
)

func (h *Handlers) httpCreateSession(c *gin.Context) {
	var req v1.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, h.logger, err)
		return
	}
	session, err := h.service.CreateSession(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, session.ToAPI())
}

func (h *Handlers) httpListSessions(c *gin.Context) {
	sessions, err := h.service.ListSessions(c.Request.Context(), c.Query("q"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	out := make([]*v1.Session, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.ToAPI())
	}
	c.JSON(http.StatusOK, v1.SessionList{Sessions: out, Total: len(out)})
}

func (h *Handlers) httpGetSession(c *gin.Context) {
	session, err := h.service.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, session.ToAPI())
}

func (h *Handlers) httpGetSessionByName(c *gin.Context) {
	session, err := h.service.GetSessionByName(c.Request.Context(), c.Param("name"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, session.ToAPI())
}

func (h *Handlers) httpUpdateSession(c *gin.Context) {
	var req v1.UpdateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, h.logger, err)
		return
	}
	session, err := h.service.UpdateSession(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, session.ToAPI())
}

func (h *Handlers) httpEndSession(c *gin.Context) {
	session, err := h.service.EndSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, session.ToAPI())
}

func (h *Handlers) httpDeleteSession(c *gin.Context) {
	if err := h.service.DeleteSession(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) httpCreateQueue(c *gin.Context) {
	var req v1.CreateQueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, h.logger, err)
		return
	}
	queue, err := h.service.CreateQueue(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, queue.ToAPI())
}
