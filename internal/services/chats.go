package services

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"ephemeral-chat/internal/apperr"
	"ephemeral-chat/internal/models"
	"ephemeral-chat/internal/repositories"
)

// ChatService creates and leaves chats, enforcing the friendship rules.
type ChatService struct {
	chats    repositories.ChatRepository
	friends  repositories.FriendRepository
	users    repositories.UserRepository
	messages *MessageService
	events   EventPublisher
	log      *zap.Logger
}

func NewChatService(chats repositories.ChatRepository, friends repositories.FriendRepository, users repositories.UserRepository, messages *MessageService, events EventPublisher, log *zap.Logger) *ChatService {
	return &ChatService{chats: chats, friends: friends, users: users, messages: messages, events: events, log: log}
}

// CreateDirectChat returns the 1:1 chat with friendID, creating it if needed.
// The two users must be friends.
func (s *ChatService) CreateDirectChat(ctx context.Context, userID, friendID string) (models.Chat, error) {
	if friendID == "" || friendID == userID {
		return models.Chat{}, apperr.Invalid("friend id must name another user")
	}
	ok, err := s.friends.AreFriends(ctx, userID, friendID)
	if err != nil {
		return models.Chat{}, err
	}
	if !ok {
		logFault(s.log, apperr.ErrNotFriends, userID, zap.String("friend_id", friendID))
		return models.Chat{}, apperr.ErrNotFriends
	}

	chat, created, err := s.chats.CreateOrGetDirectChat(ctx, userID, friendID)
	if err != nil {
		return models.Chat{}, err
	}
	if created {
		s.publishCreated(ctx, chat, userID, []string{friendID})
	}
	return s.chats.GetChat(ctx, chat.ID)
}

// CreateGroupChat creates a group of the creator and memberIDs. The creator
// must be friends with every invitee.
func (s *ChatService) CreateGroupChat(ctx context.Context, creatorID, name string, memberIDs []string) (models.Chat, error) {
	name, err := cleanBounded("group name", name, maxGroupNameRunes)
	if err != nil {
		return models.Chat{}, err
	}

	invitees := make([]string, 0, len(memberIDs))
	seen := map[string]bool{creatorID: true}
	for _, id := range memberIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		invitees = append(invitees, id)
	}
	if len(invitees) == 0 {
		return models.Chat{}, apperr.Invalid("a group chat needs at least one other member")
	}
	if len(invitees)+1 > maxGroupMembers {
		return models.Chat{}, apperr.Invalid("too many group members")
	}

	strangers, err := s.friends.NonFriends(ctx, creatorID, invitees)
	if err != nil {
		return models.Chat{}, err
	}
	if len(strangers) > 0 {
		logFault(s.log, apperr.ErrNotFriends, creatorID, zap.Strings("strangers", strangers))
		return models.Chat{}, apperr.ErrNotFriends
	}

	chat, err := s.chats.CreateGroupChat(ctx, creatorID, name, invitees)
	if err != nil {
		return models.Chat{}, err
	}
	s.publishCreated(ctx, chat, creatorID, invitees)

	if err := s.messages.postSystem(ctx, chat.ID, creatorID, s.displayName(ctx, creatorID)+" created the group"); err != nil {
		s.log.Warn("group creation notice not posted", zap.Int64("chat_id", chat.ID), zap.Error(err))
	}
	return s.chats.GetChat(ctx, chat.ID)
}

// LeaveChat removes userID from a group chat. A notice is posted while the
// user is still a participant.
func (s *ChatService) LeaveChat(ctx context.Context, chatID int64, userID string) error {
	chat, err := s.chats.GetChat(ctx, chatID)
	if err != nil {
		return err
	}
	if !chat.HasParticipant(userID) {
		logFault(s.log, apperr.ErrNotAParticipant, userID, zap.Int64("chat_id", chatID))
		return apperr.ErrNotAParticipant
	}
	if !chat.IsGroup {
		return apperr.Invalid("cannot leave a direct chat")
	}

	if err := s.messages.postSystem(ctx, chatID, userID, s.displayName(ctx, userID)+" left the group"); err != nil {
		s.log.Warn("leave notice not posted", zap.Int64("chat_id", chatID), zap.Error(err))
	}
	if err := s.chats.LeaveChat(ctx, chatID, userID); err != nil {
		return err
	}
	s.log.Info("participant left chat", zap.Int64("chat_id", chatID), zap.String("user_id", userID))
	return nil
}

// GetChat returns a chat the viewer participates in.
func (s *ChatService) GetChat(ctx context.Context, chatID int64, viewerID string) (models.Chat, error) {
	chat, err := s.chats.GetChat(ctx, chatID)
	if err != nil {
		return models.Chat{}, err
	}
	if !chat.HasParticipant(viewerID) {
		logFault(s.log, apperr.ErrNotAParticipant, viewerID, zap.Int64("chat_id", chatID))
		return models.Chat{}, apperr.ErrNotAParticipant
	}
	return chat, nil
}

func (s *ChatService) displayName(ctx context.Context, userID string) string {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return "Someone"
	}
	return profileName(user.Profile())
}

func (s *ChatService) publishCreated(ctx context.Context, chat models.Chat, actorID string, recipients []string) {
	publishEvent(ctx, s.events, s.log, models.DomainEvent{
		Name:       models.EventChatCreated,
		ActorID:    actorID,
		Recipients: recipients,
		Attributes: map[string]string{
			"chat_id":  strconv.FormatInt(chat.ID, 10),
			"is_group": strconv.FormatBool(chat.IsGroup),
		},
	})
}
