package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ephemeral-chat/internal/models"
	"ephemeral-chat/internal/services"
	"ephemeral-chat/internal/telemetry"
)

// FriendHandler serves the friend graph.
type FriendHandler struct {
	social *services.SocialService
	agg    *services.Aggregator
	responder
}

func NewFriendHandler(social *services.SocialService, agg *services.Aggregator, audit *telemetry.AuditEmitter, log *zap.Logger) *FriendHandler {
	return &FriendHandler{social: social, agg: agg, responder: responder{audit: audit, log: log}}
}

// ListFriends returns the caller's friends with presence.
func (h *FriendHandler) ListFriends(c *gin.Context) {
	friends, err := h.agg.FriendsList(c.Request.Context(), userIDFromContext(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"friends": friends})
}

// SendRequest opens a friend request to the user with the given username.
func (h *FriendHandler) SendRequest(c *gin.Context) {
	var req struct {
		Username string  `json:"username" binding:"required"`
		Message  *string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err.Error())
		return
	}

	created, receiver, err := h.social.SendRequest(c.Request.Context(), userIDFromContext(c), req.Username, req.Message)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"request": created, "receiver": receiver})
}

// Respond accepts or rejects a pending request addressed to the caller.
func (h *FriendHandler) Respond(c *gin.Context) {
	requestID, err := strconv.ParseInt(c.Param("request_id"), 10, 64)
	if err != nil || requestID <= 0 {
		h.badRequest(c, "invalid request_id")
		return
	}
	var req struct {
		Decision models.Decision `json:"decision" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err.Error())
		return
	}

	updated, friendship, err := h.social.Respond(c.Request.Context(), requestID, userIDFromContext(c), req.Decision)
	if err != nil {
		h.fail(c, err)
		return
	}
	body := gin.H{"request": updated}
	if friendship != nil {
		body["friendship"] = friendship
	}
	c.JSON(http.StatusOK, body)
}

// ListPending lists pending requests; direction is received unless set to sent.
func (h *FriendHandler) ListPending(c *gin.Context) {
	direction := models.Direction(c.DefaultQuery("direction", string(models.DirectionReceived)))
	pending, err := h.social.ListPending(c.Request.Context(), userIDFromContext(c), direction)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": pending, "direction": direction})
}
