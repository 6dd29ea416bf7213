package services

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"ephemeral-chat/internal/apperr"
	"ephemeral-chat/internal/config"
	"ephemeral-chat/internal/ephemeral"
	"ephemeral-chat/internal/media"
	"ephemeral-chat/internal/models"
	"ephemeral-chat/internal/repositories"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// MessageService implements the message store operations on top of the
// repositories: validation, per-viewer projection and view recording.
type MessageService struct {
	chats    repositories.ChatRepository
	messages repositories.MessageRepository
	media    media.Store
	events   EventPublisher
	retry    config.RetryConfig
	log      *zap.Logger
	now      func() time.Time
}

func NewMessageService(chats repositories.ChatRepository, messages repositories.MessageRepository, store media.Store, events EventPublisher, retry config.RetryConfig, log *zap.Logger) *MessageService {
	return &MessageService{
		chats:    chats,
		messages: messages,
		media:    store,
		events:   events,
		retry:    retry,
		log:      log,
		now:      time.Now,
	}
}

// SendMessageInput is the caller-facing shape of sendMessage.
type SendMessageInput struct {
	ChatID                int64
	SenderID              string
	Content               string
	Type                  models.MessageType
	MediaRef              *string
	MaxViews              *int
	DisappearAfterSeconds *int
}

// SendMessage validates and stores a message from a participant.
func (s *MessageService) SendMessage(ctx context.Context, in SendMessageInput) (models.VisibleMessage, error) {
	msg, err := s.validate(in)
	if err != nil {
		return models.VisibleMessage{}, err
	}
	return s.store(ctx, msg)
}

// postSystem stores a service generated message in a chat.
func (s *MessageService) postSystem(ctx context.Context, chatID int64, senderID, text string) error {
	_, err := s.store(ctx, models.NewMessage{ChatID: chatID, SenderID: senderID, Content: text, Type: models.MessageSystem})
	return err
}

func (s *MessageService) store(ctx context.Context, msg models.NewMessage) (models.VisibleMessage, error) {
	stored, err := s.messages.SendMessage(ctx, msg)
	if err != nil {
		logFault(s.log, err, msg.SenderID, zap.Int64("chat_id", msg.ChatID))
		return models.VisibleMessage{}, err
	}

	if chat, err := s.chats.GetChat(ctx, stored.ChatID); err != nil {
		s.log.Warn("message recipients not loaded", zap.Int64("chat_id", stored.ChatID), zap.Error(err))
	} else {
		publishEvent(ctx, s.events, s.log, models.DomainEvent{
			Name:       models.EventMessageCreated,
			ActorID:    stored.SenderID,
			Recipients: otherParticipants(chat, stored.SenderID),
			Attributes: map[string]string{
				"chat_id":    strconv.FormatInt(stored.ChatID, 10),
				"message_id": strconv.FormatInt(stored.ID, 10),
				"type":       string(stored.Type),
			},
		})
	}
	return s.project(ctx, stored, stored.SenderID, s.now()), nil
}

func (s *MessageService) validate(in SendMessageInput) (models.NewMessage, error) {
	if in.ChatID <= 0 {
		return models.NewMessage{}, apperr.Invalid("chat id is required")
	}
	if !in.Type.Valid() || in.Type == models.MessageSystem {
		return models.NewMessage{}, apperr.Invalid("type must be text, image or video")
	}
	content, err := cleanBounded("content", in.Content, maxContentRunes)
	if err != nil {
		return models.NewMessage{}, err
	}

	switch {
	case in.Type.HasMedia():
		if in.MediaRef == nil || *in.MediaRef == "" {
			return models.NewMessage{}, apperr.Invalid("media messages require a media reference")
		}
		if !s.media.Owns(*in.MediaRef, in.SenderID) {
			return models.NewMessage{}, apperr.Invalid("media reference was not issued to the sender")
		}
	case in.MediaRef != nil:
		return models.NewMessage{}, apperr.Invalid("text messages cannot carry media")
	case content == "":
		return models.NewMessage{}, apperr.Invalid("content is required")
	}

	if in.MaxViews != nil && *in.MaxViews < 1 {
		return models.NewMessage{}, apperr.Invalid("max views must be at least 1")
	}
	if in.DisappearAfterSeconds != nil && (*in.DisappearAfterSeconds < 1 || *in.DisappearAfterSeconds > maxDisappearAfter) {
		return models.NewMessage{}, apperr.Invalid("disappear after seconds is out of range")
	}

	return models.NewMessage{
		ChatID:                in.ChatID,
		SenderID:              in.SenderID,
		Content:               content,
		Type:                  in.Type,
		MediaRef:              in.MediaRef,
		MaxViews:              in.MaxViews,
		DisappearAfterSeconds: in.DisappearAfterSeconds,
	}, nil
}

// RecordView counts the first view of viewerID and returns the message as the
// viewer now sees it. Transient store failures are retried; the operation is
// idempotent so a retry after an unacknowledged commit is harmless.
func (s *MessageService) RecordView(ctx context.Context, messageID int64, viewerID string) (models.VisibleMessage, error) {
	result, err := withRetry(ctx, s.retry, "record_view", s.log, func() (models.ViewResult, error) {
		return s.messages.RecordView(ctx, messageID, viewerID, s.now())
	})
	if err != nil {
		logFault(s.log, err, viewerID, zap.Int64("message_id", messageID))
		return models.VisibleMessage{}, err
	}
	if result.Recorded {
		s.log.Debug("view recorded", zap.Int64("message_id", messageID), zap.String("viewer_id", viewerID), zap.Int("view_count", result.Message.ViewCount))
	}
	return s.project(ctx, result.Message, viewerID, s.now()), nil
}

// GetMessage returns a single message projected for viewerID.
func (s *MessageService) GetMessage(ctx context.Context, messageID int64, viewerID string) (models.VisibleMessage, error) {
	msg, err := s.messages.GetMessage(ctx, messageID)
	if err != nil {
		return models.VisibleMessage{}, err
	}
	if err := s.requireParticipant(ctx, msg.ChatID, viewerID); err != nil {
		return models.VisibleMessage{}, err
	}
	return s.project(ctx, msg, viewerID, s.now()), nil
}

// VisibleContent is getVisibleContent for a stored message.
func (s *MessageService) VisibleContent(ctx context.Context, messageID int64, viewerID string) (string, error) {
	msg, err := s.messages.GetMessage(ctx, messageID)
	if err != nil {
		return "", err
	}
	if err := s.requireParticipant(ctx, msg.ChatID, viewerID); err != nil {
		return "", err
	}
	return ephemeral.VisibleContent(msg, viewerID, s.now()), nil
}

// ListMessages returns a page of the chat projected for viewerID.
func (s *MessageService) ListMessages(ctx context.Context, chatID int64, viewerID string, beforeID int64, limit int) ([]models.VisibleMessage, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if err := s.requireParticipant(ctx, chatID, viewerID); err != nil {
		return nil, err
	}
	msgs, err := s.messages.ListMessages(ctx, chatID, beforeID, limit)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]models.VisibleMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, s.project(ctx, m, viewerID, now))
	}
	return out, nil
}

func (s *MessageService) requireParticipant(ctx context.Context, chatID int64, userID string) error {
	ok, err := s.chats.IsParticipant(ctx, chatID, userID)
	if err != nil {
		return err
	}
	if !ok {
		logFault(s.log, apperr.ErrNotAParticipant, userID, zap.Int64("chat_id", chatID))
		return apperr.ErrNotAParticipant
	}
	return nil
}

// project applies the visibility rules and resolves a read URL for media the
// viewer may still see.
func (s *MessageService) project(ctx context.Context, m models.Message, viewerID string, now time.Time) models.VisibleMessage {
	vm := ephemeral.Project(m, viewerID, now)
	if vm.Expired || vm.MediaRef == nil {
		return vm
	}
	url, err := s.media.ReadURL(ctx, *vm.MediaRef)
	if err != nil {
		s.log.Warn("media read url not issued", zap.Int64("message_id", m.ID), zap.Error(err))
		return vm
	}
	vm.MediaURL = url
	return vm
}

// logFault records authorization failures, which indicate a client bug or a
// probing attempt.
func logFault(log *zap.Logger, err error, userID string, fields ...zap.Field) {
	if apperr.KindOf(err) != apperr.KindNotAuthorized {
		return
	}
	code := ""
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		code = appErr.Code
	}
	log.Warn("unauthorized access", append(fields, zap.String("user_id", userID), zap.String("code", code))...)
}
