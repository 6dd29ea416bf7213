package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"ephemeral-chat/internal/apperr"
	"ephemeral-chat/internal/middleware"
	"ephemeral-chat/internal/telemetry"
)

func requestIDFromContext(c *gin.Context) string {
	if id := c.GetString(middleware.RequestIDKey); id != "" {
		return id
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(middleware.RequestIDKey, requestID)
	return requestID
}

func userIDFromContext(c *gin.Context) string {
	return c.GetString(middleware.UserIDKey)
}

func userIDPtr(c *gin.Context) *string {
	id := userIDFromContext(c)
	if id == "" {
		return nil
	}
	return &id
}

// responder writes error bodies and audits authorization faults.
type responder struct {
	audit *telemetry.AuditEmitter
	log   *zap.Logger
}

func (r responder) fail(c *gin.Context, err error) {
	code, message := apperr.Describe(err)
	status := apperr.HTTPStatus(err)

	switch apperr.KindOf(err) {
	case apperr.KindNotAuthorized:
		r.audit.Denied(c.Request.Context(), err, requestIDFromContext(c), userIDPtr(c), map[string]string{
			"method": c.Request.Method,
			"route":  c.FullPath(),
		})
	case apperr.KindInternal, apperr.KindTransient:
		r.log.Error("request failed",
			zap.String("route", c.FullPath()),
			zap.String("request_id", requestIDFromContext(c)),
			zap.Error(err),
		)
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": message, "code": code})
}

func (r responder) badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": message, "code": apperr.ErrInvalidInput.Code})
}
