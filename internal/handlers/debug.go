package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ephemeral-chat/internal/apperr"
	"ephemeral-chat/internal/telemetry"
	"ephemeral-chat/internal/ws"
)

// SyncRegistry is the part of the sync hub exposed for inspection.
type SyncRegistry interface {
	Sessions() int
	Topics(sessionID string) []string
	Publish(topic string) int
}

// RegisterDebugRoutes wires endpoints that inspect and poke the sync hub.
// They are only mounted in debug mode.
func RegisterDebugRoutes(router gin.IRoutes, registry SyncRegistry, emitter *telemetry.AuditEmitter, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/sync", func(c *gin.Context) {
		body := gin.H{"sessions": registry.Sessions()}
		if id := c.Query("session_id"); id != "" {
			body["session_id"] = id
			body["topics"] = registry.Topics(id)
		}
		c.JSON(http.StatusOK, body)
	})

	// Forces a refresh of every view subscribed to topic, as a change
	// notification would.
	router.POST("/debug/sync/publish", func(c *gin.Context) {
		var req struct {
			Topic string `json:"topic" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": apperr.ErrInvalidInput.Code})
			return
		}
		if _, _, err := ws.ParseTopic(req.Topic); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": apperr.ErrInvalidInput.Code})
			return
		}

		signalled := registry.Publish(req.Topic)
		emitter.Emit(c.Request.Context(), telemetry.LevelInfo, "manual invalidation", requestIDFromContext(c), userIDPtr(c), map[string]string{
			"topic": req.Topic,
		})
		c.JSON(http.StatusOK, gin.H{"topic": req.Topic, "signalled": signalled})
	})
}
