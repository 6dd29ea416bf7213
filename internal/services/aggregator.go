package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ephemeral-chat/internal/ephemeral"
	"ephemeral-chat/internal/models"
	"ephemeral-chat/internal/presence"
	"ephemeral-chat/internal/repositories"
)

// Aggregator builds the read models shown to clients. It never mutates state,
// so running it twice for the same invalidation is harmless.
type Aggregator struct {
	chats    repositories.ChatRepository
	friends  repositories.FriendRepository
	presence presence.Tracker
	messages *MessageService
	log      *zap.Logger
	now      func() time.Time
}

func NewAggregator(chats repositories.ChatRepository, friends repositories.FriendRepository, tracker presence.Tracker, messages *MessageService, log *zap.Logger) *Aggregator {
	return &Aggregator{
		chats:    chats,
		friends:  friends,
		presence: tracker,
		messages: messages,
		log:      log,
		now:      time.Now,
	}
}

// ChatList returns the chat summaries of userID, most recent first. The
// digests behind it are loaded in one batched pass.
func (a *Aggregator) ChatList(ctx context.Context, userID string) ([]models.ChatSummary, error) {
	digests, err := a.chats.ListChatDigests(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := a.now()
	out := make([]models.ChatSummary, 0, len(digests))
	for _, d := range digests {
		out = append(out, Summarize(d, userID, now))
	}
	return out, nil
}

// Summarize is chatSummary: the chat-list row of one chat for viewerID.
func Summarize(d models.ChatDigest, viewerID string, now time.Time) models.ChatSummary {
	summary := models.ChatSummary{
		ChatID:        d.Chat.ID,
		IsGroup:       d.Chat.IsGroup,
		DisplayName:   chatDisplayName(d.Chat, viewerID),
		LastMessageAt: d.Chat.LastMessageAt,
		UnreadCount:   d.UnreadCount,
	}
	if d.LastMessage != nil {
		summary.LastMessagePreview = ephemeral.Preview(*d.LastMessage, viewerID, now)
		if summary.LastMessageAt == nil {
			at := d.LastMessage.CreatedAt
			summary.LastMessageAt = &at
		}
	}
	return summary
}

// chatDisplayName names a 1:1 chat after the other participant, and a group
// after its name or, when unnamed, after its first other member plus a count.
func chatDisplayName(chat models.Chat, viewerID string) string {
	others := make([]models.Profile, 0, len(chat.Participants))
	for _, p := range chat.Participants {
		if p.ID != viewerID {
			others = append(others, p)
		}
	}

	if !chat.IsGroup {
		if len(others) == 0 {
			return "Unknown"
		}
		return profileName(others[0])
	}
	if chat.GroupName != nil && *chat.GroupName != "" {
		return *chat.GroupName
	}
	switch len(others) {
	case 0:
		return "Group"
	case 1:
		return profileName(others[0])
	}
	return fmt.Sprintf("%s +%d", profileName(others[0]), len(others)-1)
}

func profileName(p models.Profile) string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	if p.Username != "" {
		return p.Username
	}
	return "Unknown"
}

// FriendsList is friendsList: friendship partners with presence. Presence is
// best effort; when the tracker fails everyone is reported offline.
func (a *Aggregator) FriendsList(ctx context.Context, userID string) ([]models.Friend, error) {
	friends, err := a.friends.ListFriends(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(friends) == 0 {
		return friends, nil
	}

	ids := make([]string, len(friends))
	for i, f := range friends {
		ids[i] = f.ID
	}
	online, err := a.presence.Online(ctx, ids)
	if err != nil {
		a.log.Warn("presence lookup failed", zap.String("user_id", userID), zap.Error(err))
		return friends, nil
	}
	for i := range friends {
		friends[i].Online = online[friends[i].ID]
	}
	return friends, nil
}

// ChatMessages returns the latest page of a chat projected for userID.
func (a *Aggregator) ChatMessages(ctx context.Context, chatID int64, userID string) ([]models.VisibleMessage, error) {
	return a.messages.ListMessages(ctx, chatID, userID, 0, defaultPageSize)
}

// FriendGraph is FriendsList plus both pending request lists. It backs the
// user friends topic, which also changes when requests are created or
// answered.
func (a *Aggregator) FriendGraph(ctx context.Context, userID string) (models.FriendGraph, error) {
	var graph models.FriendGraph

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		graph.Friends, err = a.FriendsList(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		graph.PendingReceived, err = a.friends.ListPending(gctx, userID, models.DirectionReceived)
		return err
	})
	g.Go(func() error {
		var err error
		graph.PendingSent, err = a.friends.ListPending(gctx, userID, models.DirectionSent)
		return err
	})
	if err := g.Wait(); err != nil {
		return models.FriendGraph{}, err
	}
	return graph, nil
}

// FullResync loads everything a client renders in one call, independent of
// the push channel.
func (a *Aggregator) FullResync(ctx context.Context, userID string) (models.Snapshot, error) {
	snap := models.Snapshot{SyncedAt: a.now().UTC()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snap.Chats, err = a.ChatList(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		snap.FriendGraph, err = a.FriendGraph(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return models.Snapshot{}, err
	}
	return snap, nil
}
