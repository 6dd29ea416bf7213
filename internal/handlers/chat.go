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

// ChatHandler serves chats and their messages.
type ChatHandler struct {
	chats    *services.ChatService
	messages *services.MessageService
	agg      *services.Aggregator
	responder
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(chats *services.ChatService, messages *services.MessageService, agg *services.Aggregator, audit *telemetry.AuditEmitter, log *zap.Logger) *ChatHandler {
	return &ChatHandler{
		chats:     chats,
		messages:  messages,
		agg:       agg,
		responder: responder{audit: audit, log: log},
	}
}

// ListChats returns the chat list of the caller, most recent first.
func (h *ChatHandler) ListChats(c *gin.Context) {
	list, err := h.agg.ChatList(c.Request.Context(), userIDFromContext(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": list})
}

// StartDirectChat creates or returns the 1:1 chat with a friend.
func (h *ChatHandler) StartDirectChat(c *gin.Context) {
	var req struct {
		FriendID string `json:"friend_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err.Error())
		return
	}

	chat, err := h.chats.CreateDirectChat(c.Request.Context(), userIDFromContext(c), req.FriendID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, chat)
}

// CreateGroupChat creates a group chat with friends of the caller.
func (h *ChatHandler) CreateGroupChat(c *gin.Context) {
	var req struct {
		Name      string   `json:"name"`
		MemberIDs []string `json:"member_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err.Error())
		return
	}

	chat, err := h.chats.CreateGroupChat(c.Request.Context(), userIDFromContext(c), req.Name, req.MemberIDs)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, chat)
}

// GetChat returns a chat with its participants.
func (h *ChatHandler) GetChat(c *gin.Context) {
	chatID, ok := h.idParam(c, "chat_id")
	if !ok {
		return
	}
	chat, err := h.chats.GetChat(c.Request.Context(), chatID, userIDFromContext(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, chat)
}

// LeaveChat removes the caller from a group chat.
func (h *ChatHandler) LeaveChat(c *gin.Context) {
	chatID, ok := h.idParam(c, "chat_id")
	if !ok {
		return
	}
	if err := h.chats.LeaveChat(c.Request.Context(), chatID, userIDFromContext(c)); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListMessages returns a page of messages projected for the caller. The
// before query parameter pages backwards by message id.
func (h *ChatHandler) ListMessages(c *gin.Context) {
	chatID, ok := h.idParam(c, "chat_id")
	if !ok {
		return
	}
	var query struct {
		Before int64 `form:"before"`
		Limit  int   `form:"limit"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		h.badRequest(c, "invalid paging parameters")
		return
	}

	msgs, err := h.messages.ListMessages(c.Request.Context(), chatID, userIDFromContext(c), query.Before, query.Limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PostMessage sends a message to the chat.
func (h *ChatHandler) PostMessage(c *gin.Context) {
	chatID, ok := h.idParam(c, "chat_id")
	if !ok {
		return
	}
	var req struct {
		Content               string             `json:"content"`
		Type                  models.MessageType `json:"type"`
		MediaRef              *string            `json:"media_ref"`
		MaxViews              *int               `json:"max_views"`
		DisappearAfterSeconds *int               `json:"disappear_after_seconds"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err.Error())
		return
	}
	if req.Type == "" {
		req.Type = models.MessageText
	}

	msg, err := h.messages.SendMessage(c.Request.Context(), services.SendMessageInput{
		ChatID:                chatID,
		SenderID:              userIDFromContext(c),
		Content:               req.Content,
		Type:                  req.Type,
		MediaRef:              req.MediaRef,
		MaxViews:              req.MaxViews,
		DisappearAfterSeconds: req.DisappearAfterSeconds,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// GetMessage returns one message projected for the caller.
func (h *ChatHandler) GetMessage(c *gin.Context) {
	messageID, ok := h.idParam(c, "message_id")
	if !ok {
		return
	}
	msg, err := h.messages.GetMessage(c.Request.Context(), messageID, userIDFromContext(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// ViewMessage records the caller's view and returns the message as now seen.
func (h *ChatHandler) ViewMessage(c *gin.Context) {
	messageID, ok := h.idParam(c, "message_id")
	if !ok {
		return
	}
	msg, err := h.messages.RecordView(c.Request.Context(), messageID, userIDFromContext(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// GetMessageContent returns only the content visible to the caller.
func (h *ChatHandler) GetMessageContent(c *gin.Context) {
	messageID, ok := h.idParam(c, "message_id")
	if !ok {
		return
	}
	content, err := h.messages.VisibleContent(c.Request.Context(), messageID, userIDFromContext(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message_id": messageID, "content": content})
}

func (h *ChatHandler) idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		h.badRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}
