package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sparkq/sparkq/internal/common/apperr"
	"github.com/sparkq/sparkq/internal/common/logger"
	v1 "github.com/sparkq/sparkq/pkg/api/v1"
)

// respondError writes the uniform error envelope. The status code and kind
// come from the error's apperr kind; anything untyped is an internal error.
func respondError(c *gin.Context, log *logger.Logger, err error) {
	status := apperr.HTTPStatus(err)

	message := err.Error()
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		message = appErr.Message
	}

	if status >= http.StatusInternalServerError {
		log.WithContext(c.Request.Context()).Error("request failed",
			zap.String("path", c.FullPath()), zap.Error(err))
	}

	c.JSON(status, v1.ErrorResponse{Error: v1.ErrorBody{
		Kind:    apperr.KindOf(err),
		Message: message,
	}})
}

// respondBindError maps a gin binding failure onto a validation error.
func respondBindError(c *gin.Context, log *logger.Logger, err error) {
	respondError(c, log, apperr.Validationf("invalid request body: %v", err))
}
