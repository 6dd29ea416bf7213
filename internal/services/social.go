package services

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"ephemeral-chat/internal/apperr"
	"ephemeral-chat/internal/models"
	"ephemeral-chat/internal/repositories"
)

// SocialService implements the friend-request state machine.
type SocialService struct {
	users   repositories.UserRepository
	friends repositories.FriendRepository
	chats   repositories.ChatRepository
	events  EventPublisher
	log     *zap.Logger
}

func NewSocialService(users repositories.UserRepository, friends repositories.FriendRepository, chats repositories.ChatRepository, events EventPublisher, log *zap.Logger) *SocialService {
	return &SocialService{users: users, friends: friends, chats: chats, events: events, log: log}
}

// SendRequest resolves the receiver by username and opens a pending request.
func (s *SocialService) SendRequest(ctx context.Context, senderID, receiverUsername string, note *string) (models.FriendRequest, models.Profile, error) {
	receiverUsername = strings.TrimSpace(receiverUsername)
	if receiverUsername == "" {
		return models.FriendRequest{}, models.Profile{}, apperr.Invalid("receiver username is required")
	}
	if note != nil {
		cleaned, err := cleanBounded("message", *note, maxNoteRunes)
		if err != nil {
			return models.FriendRequest{}, models.Profile{}, err
		}
		note = &cleaned
		if cleaned == "" {
			note = nil
		}
	}

	receiver, err := s.users.GetByUsername(ctx, receiverUsername)
	if err != nil {
		return models.FriendRequest{}, models.Profile{}, err
	}
	if receiver.ID == senderID {
		return models.FriendRequest{}, models.Profile{}, apperr.ErrSelfRequest
	}

	req, err := s.friends.SendRequest(ctx, senderID, receiver.ID, note)
	if err != nil {
		return models.FriendRequest{}, models.Profile{}, err
	}

	s.log.Info("friend request sent", zap.Int64("request_id", req.ID), zap.String("sender_id", senderID), zap.String("receiver_id", receiver.ID))
	publishEvent(ctx, s.events, s.log, models.DomainEvent{
		Name:       models.EventFriendRequestCreated,
		ActorID:    senderID,
		Recipients: []string{receiver.ID},
		Attributes: map[string]string{"request_id": strconv.FormatInt(req.ID, 10)},
	})
	return req, receiver.Profile(), nil
}

// Respond applies the receiver's decision. Accepting also opens the direct
// chat of the new friends; that step is idempotent and a failure there does
// not undo the acceptance, since the chat can be created on demand later.
func (s *SocialService) Respond(ctx context.Context, requestID int64, responderID string, decision models.Decision) (models.FriendRequest, *models.Friendship, error) {
	req, friendship, err := s.friends.Respond(ctx, requestID, responderID, decision)
	if err != nil {
		logFault(s.log, err, responderID, zap.Int64("request_id", requestID))
		return models.FriendRequest{}, nil, err
	}

	name := models.EventFriendRequestRejected
	if req.Status == models.FriendRequestAccepted {
		name = models.EventFriendRequestAccepted
		if _, _, err := s.chats.CreateOrGetDirectChat(ctx, req.ReceiverID, req.SenderID); err != nil {
			s.log.Warn("direct chat not opened after acceptance", zap.Int64("request_id", req.ID), zap.Error(err))
		}
	}

	s.log.Info("friend request answered", zap.Int64("request_id", req.ID), zap.String("status", string(req.Status)))
	publishEvent(ctx, s.events, s.log, models.DomainEvent{
		Name:       name,
		ActorID:    responderID,
		Recipients: []string{req.SenderID},
		Attributes: map[string]string{"request_id": strconv.FormatInt(req.ID, 10)},
	})
	return req, friendship, nil
}

// ListPending lists pending requests in one direction.
func (s *SocialService) ListPending(ctx context.Context, userID string, direction models.Direction) ([]models.PendingRequest, error) {
	if !direction.Valid() {
		return nil, apperr.Invalid("direction must be sent or received")
	}
	return s.friends.ListPending(ctx, userID, direction)
}

// SyncProfile mirrors the identity provider's profile of an authenticated user.
func (s *SocialService) SyncProfile(ctx context.Context, user models.User) (models.User, error) {
	return s.users.UpsertProfile(ctx, user)
}
