package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ephemeral-chat/internal/media"
	"ephemeral-chat/internal/services"
	"ephemeral-chat/internal/telemetry"
)

// SyncHandler serves the full resync fallback and media upload targets.
type SyncHandler struct {
	agg   *services.Aggregator
	media media.Store
	responder
}

func NewSyncHandler(agg *services.Aggregator, store media.Store, audit *telemetry.AuditEmitter, log *zap.Logger) *SyncHandler {
	return &SyncHandler{agg: agg, media: store, responder: responder{audit: audit, log: log}}
}

// FullResync returns everything a client renders, independent of the push channel.
func (h *SyncHandler) FullResync(c *gin.Context) {
	snap, err := h.agg.FullResync(c.Request.Context(), userIDFromContext(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// UploadURL issues a presigned upload target for a message attachment.
func (h *SyncHandler) UploadURL(c *gin.Context) {
	var req struct {
		FileName    string `json:"file_name" binding:"required"`
		ContentType string `json:"content_type" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err.Error())
		return
	}

	upload, err := h.media.UploadURL(c.Request.Context(), userIDFromContext(c), req.FileName, req.ContentType)
	switch {
	case errors.Is(err, media.ErrDisabled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "code": "MEDIA_DISABLED"})
		return
	case errors.Is(err, media.ErrUnsupportedContent):
		h.badRequest(c, err.Error())
		return
	case err != nil:
		h.log.Error("upload url not issued", zap.String("user_id", userIDFromContext(c)), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "media storage unavailable", "code": "MEDIA_UNAVAILABLE"})
		return
	}
	c.JSON(http.StatusOK, upload)
}
