package ws

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"ephemeral-chat/internal/models"
	"ephemeral-chat/internal/observability"
)

// Refresher re-runs the read models a session renders. Every call is a pure
// read, so a duplicate or late invalidation only costs a redundant query.
type Refresher interface {
	ChatList(ctx context.Context, userID string) ([]models.ChatSummary, error)
	FriendGraph(ctx context.Context, userID string) (models.FriendGraph, error)
	ChatMessages(ctx context.Context, chatID int64, userID string) ([]models.VisibleMessage, error)
	FullResync(ctx context.Context, userID string) (models.Snapshot, error)
}

// Frame types sent to clients.
const (
	FrameChats    = "chats"
	FrameFriends  = "friends"
	FrameMessages = "messages"
	FrameSnapshot = "snapshot"
	FrameError    = "error"
)

// Frame is one server to client message. Data holds the freshly computed
// view model; frames never carry diffs.
type Frame struct {
	Type   string `json:"type"`
	ChatID int64  `json:"chat_id,omitempty"`
	Data   any    `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
}

// resyncTopic is queued by a client resync request.
const resyncTopic = "resync"

// Session is the server side of one client connection. Invalidations are
// coalesced per topic while a refresh is running, so a burst of changes to
// one chat costs one re-read.
type Session struct {
	info      ConnInfo
	hub       *Hub
	refresher Refresher
	log       *zap.Logger

	mu      sync.Mutex
	pending map[string]struct{}
	wake    chan struct{}
	out     chan Frame
}

func NewSession(info ConnInfo, hub *Hub, refresher Refresher, sendBuffer int, log *zap.Logger) *Session {
	if sendBuffer <= 0 {
		sendBuffer = 16
	}
	return &Session{
		info:      info,
		hub:       hub,
		refresher: refresher,
		log:       log.With(zap.String("session_id", info.SessionID), zap.String("user_id", info.UserID)),
		pending:   make(map[string]struct{}),
		wake:      make(chan struct{}, 1),
		out:       make(chan Frame, sendBuffer),
	}
}

func (s *Session) ID() string { return s.info.SessionID }

// Frames is the outbound queue drained by the connection writer.
func (s *Session) Frames() <-chan Frame { return s.out }

// Invalidate marks topic stale and wakes the refresh worker.
func (s *Session) Invalidate(topic string) {
	s.mu.Lock()
	s.pending[topic] = struct{}{}
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Resync asks for a full snapshot, independent of any notification.
func (s *Session) Resync() {
	s.Invalidate(resyncTopic)
}

// Start registers the session with the hub, subscribes its base topics and
// queues the initial load.
func (s *Session) Start() {
	s.hub.Register(s.ID(), s)
	s.hub.SetTopics(s.ID(), BaseTopics(s.info.UserID))
	s.Invalidate(UserChatsTopic(s.info.UserID))
	s.Invalidate(UserFriendsTopic(s.info.UserID))
}

// Stop removes every subscription of the session. It must run before the
// connection is released.
func (s *Session) Stop() {
	s.hub.Unregister(s.ID())
}

// Run refreshes stale views until ctx is done.
func (s *Session) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		}
		for _, topic := range s.drain() {
			if ctx.Err() != nil {
				return
			}
			s.refresh(ctx, topic)
		}
	}
}

// drain takes the pending set. A chat topic also stales the chat list, since
// previews and unread counts change with the chat. The chat list is refreshed
// first so the topic set is current before per-chat reads. A resync replaces
// the list and friend reads but not the per-chat ones, which follow it.
func (s *Session) drain() []string {
	s.mu.Lock()
	pending := s.pending
	s.pending = make(map[string]struct{})
	s.mu.Unlock()

	chats := UserChatsTopic(s.info.UserID)
	var (
		topics     []string
		chatTopics []string
		resync     bool
		refresh    bool
	)
	for t := range pending {
		switch t {
		case resyncTopic:
			resync = true
		case chats:
			refresh = true
		default:
			if kind, _, err := ParseTopic(t); err == nil && kind == KindChat {
				refresh = true
				chatTopics = append(chatTopics, t)
			}
			topics = append(topics, t)
		}
	}
	if resync {
		sort.Strings(chatTopics)
		return append([]string{resyncTopic}, chatTopics...)
	}
	sort.Strings(topics)
	if refresh {
		topics = append([]string{chats}, topics...)
	}
	return topics
}

func (s *Session) refresh(ctx context.Context, topic string) {
	if topic == resyncTopic {
		snap, err := s.refresher.FullResync(ctx, s.info.UserID)
		observability.IncRefresh(FrameSnapshot, err)
		if err != nil {
			s.fail(ctx, FrameSnapshot, 0, err)
			return
		}
		s.syncTopics(snap.Chats)
		s.send(ctx, Frame{Type: FrameSnapshot, Data: snap})
		return
	}

	kind, chatID, err := ParseTopic(topic)
	if err != nil {
		s.log.Warn("ignoring invalidation", zap.String("topic", topic), zap.Error(err))
		return
	}
	switch kind {
	case KindUserChats:
		list, err := s.refresher.ChatList(ctx, s.info.UserID)
		observability.IncRefresh(FrameChats, err)
		if err != nil {
			s.fail(ctx, FrameChats, 0, err)
			return
		}
		s.syncTopics(list)
		s.send(ctx, Frame{Type: FrameChats, Data: list})
	case KindUserFriends:
		graph, err := s.refresher.FriendGraph(ctx, s.info.UserID)
		observability.IncRefresh(FrameFriends, err)
		if err != nil {
			s.fail(ctx, FrameFriends, 0, err)
			return
		}
		s.send(ctx, Frame{Type: FrameFriends, Data: graph})
	case KindChat:
		if !s.subscribed(topic) {
			return
		}
		msgs, err := s.refresher.ChatMessages(ctx, chatID, s.info.UserID)
		observability.IncRefresh(FrameMessages, err)
		if err != nil {
			s.fail(ctx, FrameMessages, chatID, err)
			return
		}
		s.send(ctx, Frame{Type: FrameMessages, ChatID: chatID, Data: msgs})
	}
}

// syncTopics makes the subscriptions match the chats the user is in.
func (s *Session) syncTopics(list []models.ChatSummary) {
	topics := BaseTopics(s.info.UserID)
	for _, c := range list {
		topics = append(topics, ChatTopic(c.ChatID))
	}
	added, removed := s.hub.SetTopics(s.ID(), topics)
	if len(added) > 0 || len(removed) > 0 {
		s.log.Debug("topics changed", zap.Strings("added", added), zap.Strings("removed", removed))
	}
}

func (s *Session) subscribed(topic string) bool {
	for _, t := range s.hub.Topics(s.ID()) {
		if t == topic {
			return true
		}
	}
	return false
}

func (s *Session) fail(ctx context.Context, view string, chatID int64, err error) {
	if ctx.Err() != nil {
		return
	}
	s.log.Warn("refresh failed", zap.String("view", view), zap.Int64("chat_id", chatID), zap.Error(err))
	s.send(ctx, Frame{Type: FrameError, ChatID: chatID, Error: view + " refresh failed"})
}

func (s *Session) send(ctx context.Context, f Frame) {
	select {
	case s.out <- f:
	case <-ctx.Done():
	}
}
