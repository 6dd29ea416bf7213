package ws

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ephemeral-chat/internal/models"
)

type fakeRefresher struct {
	mu       sync.Mutex
	chats    []models.ChatSummary
	received []models.PendingRequest
	calls    map[string]int
	failView string
}

func newFakeRefresher(chatIDs ...int64) *fakeRefresher {
	f := &fakeRefresher{calls: map[string]int{}}
	for _, id := range chatIDs {
		f.chats = append(f.chats, models.ChatSummary{ChatID: id})
	}
	return f
}

func (f *fakeRefresher) record(view string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[view]++
	if view == f.failView {
		return errors.New("boom")
	}
	return nil
}

func (f *fakeRefresher) setChats(ids ...int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chats = nil
	for _, id := range ids {
		f.chats = append(f.chats, models.ChatSummary{ChatID: id})
	}
}

func (f *fakeRefresher) count(view string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[view]
}

func (f *fakeRefresher) ChatList(context.Context, string) ([]models.ChatSummary, error) {
	err := f.record(FrameChats)
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ChatSummary(nil), f.chats...), err
}

func (f *fakeRefresher) FriendGraph(context.Context, string) (models.FriendGraph, error) {
	err := f.record(FrameFriends)
	f.mu.Lock()
	defer f.mu.Unlock()
	return models.FriendGraph{
		Friends:         []models.Friend{},
		PendingReceived: append([]models.PendingRequest(nil), f.received...),
		PendingSent:     []models.PendingRequest{},
	}, err
}

func (f *fakeRefresher) ChatMessages(context.Context, int64, string) ([]models.VisibleMessage, error) {
	return []models.VisibleMessage{}, f.record(FrameMessages)
}

func (f *fakeRefresher) FullResync(ctx context.Context, userID string) (models.Snapshot, error) {
	chats, _ := f.ChatList(ctx, userID)
	return models.Snapshot{Chats: chats}, f.record(FrameSnapshot)
}

func startSession(t *testing.T, refresher Refresher) (*Session, *Hub) {
	t.Helper()
	hub := NewHub(zap.NewNop())
	sess := NewSession(ConnInfo{SessionID: "s1", UserID: "alice"}, hub, refresher, 8, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sess.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		sess.Stop()
		cancel()
		<-done
	})
	return sess, hub
}

func nextFrame(t *testing.T, sess *Session) Frame {
	t.Helper()
	select {
	case f := <-sess.Frames():
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
	}
	return Frame{}
}

func TestSessionInitialLoadSubscribesChats(t *testing.T) {
	refresher := newFakeRefresher(1, 2)
	sess, hub := startSession(t, refresher)
	sess.Start()

	types := map[string]bool{}
	for n := 0; n < 2; n++ {
		types[nextFrame(t, sess).Type] = true
	}
	assert.True(t, types[FrameChats])
	assert.True(t, types[FrameFriends])
	assert.Equal(t, []string{"chat:1", "chat:2", "user:alice:chats", "user:alice:friends"}, hub.Topics("s1"))
}

func TestSessionChatInvalidationRefreshesListAndMessages(t *testing.T) {
	refresher := newFakeRefresher(5)
	sess, hub := startSession(t, refresher)
	sess.Start()
	nextFrame(t, sess)
	nextFrame(t, sess)

	assert.Equal(t, 1, hub.Publish("chat:5"))
	first, second := nextFrame(t, sess), nextFrame(t, sess)
	assert.Equal(t, FrameChats, first.Type)
	assert.Equal(t, FrameMessages, second.Type)
	assert.Equal(t, int64(5), second.ChatID)
}

func TestSessionLeavingChatUnsubscribes(t *testing.T) {
	refresher := newFakeRefresher(5, 6)
	sess, hub := startSession(t, refresher)
	sess.Start()
	nextFrame(t, sess)
	nextFrame(t, sess)
	require.Contains(t, hub.Topics("s1"), "chat:6")

	refresher.setChats(5)
	hub.Publish(UserChatsTopic("alice"))
	assert.Equal(t, FrameChats, nextFrame(t, sess).Type)
	assert.NotContains(t, hub.Topics("s1"), "chat:6")
	assert.Equal(t, 0, hub.Publish("chat:6"))
}

func TestSessionCoalescesDuplicateInvalidations(t *testing.T) {
	refresher := newFakeRefresher()
	hub := NewHub(zap.NewNop())
	sess := NewSession(ConnInfo{SessionID: "s1", UserID: "alice"}, hub, refresher, 8, zap.NewNop())
	hub.Register("s1", sess)
	hub.SetTopics("s1", BaseTopics("alice"))

	for n := 0; n < 5; n++ {
		hub.Publish(UserFriendsTopic("alice"))
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sess.Run(ctx)

	assert.Equal(t, FrameFriends, nextFrame(t, sess).Type)
	select {
	case f := <-sess.Frames():
		t.Fatalf("unexpected frame %q", f.Type)
	case <-time.After(100 * time.Millisecond):
	}
	assert.Equal(t, 1, refresher.count(FrameFriends))
}

func TestSessionResyncSendsSnapshot(t *testing.T) {
	refresher := newFakeRefresher(3)
	sess, hub := startSession(t, refresher)
	hub.Register("s1", sess)

	sess.Resync()
	f := nextFrame(t, sess)
	assert.Equal(t, FrameSnapshot, f.Type)
	snap, ok := f.Data.(models.Snapshot)
	require.True(t, ok)
	assert.Len(t, snap.Chats, 1)
	assert.Contains(t, hub.Topics("s1"), "chat:3")
}

func TestSessionFriendsInvalidationCarriesPendingRequests(t *testing.T) {
	refresher := newFakeRefresher()
	sess, hub := startSession(t, refresher)
	sess.Start()
	nextFrame(t, sess)
	nextFrame(t, sess)

	refresher.mu.Lock()
	refresher.received = []models.PendingRequest{{FriendRequest: models.FriendRequest{ID: 12, SenderID: "bob", ReceiverID: "alice"}}}
	refresher.mu.Unlock()

	require.Equal(t, 1, hub.Publish(UserFriendsTopic("alice")))
	f := nextFrame(t, sess)
	assert.Equal(t, FrameFriends, f.Type)
	graph, ok := f.Data.(models.FriendGraph)
	require.True(t, ok)
	require.Len(t, graph.PendingReceived, 1)
	assert.Equal(t, int64(12), graph.PendingReceived[0].ID)
}

func TestSessionResyncKeepsPendingChatRefresh(t *testing.T) {
	refresher := newFakeRefresher(3)
	hub := NewHub(zap.NewNop())
	sess := NewSession(ConnInfo{SessionID: "s1", UserID: "alice"}, hub, refresher, 8, zap.NewNop())
	hub.Register("s1", sess)

	sess.Invalidate(UserFriendsTopic("alice"))
	sess.Invalidate(ChatTopic(3))
	sess.Resync()
	assert.Equal(t, []string{resyncTopic, "chat:3"}, sess.drain())

	sess.Invalidate(ChatTopic(3))
	sess.Resync()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sess.Run(ctx)

	assert.Equal(t, FrameSnapshot, nextFrame(t, sess).Type)
	f := nextFrame(t, sess)
	assert.Equal(t, FrameMessages, f.Type)
	assert.Equal(t, int64(3), f.ChatID)
	assert.Equal(t, 1, refresher.count(FrameChats))
	assert.Zero(t, refresher.count(FrameFriends))
}

func TestSessionReportsRefreshFailure(t *testing.T) {
	refresher := newFakeRefresher()
	refresher.failView = FrameFriends
	sess, hub := startSession(t, refresher)
	hub.Register("s1", sess)
	hub.SetTopics("s1", BaseTopics("alice"))

	hub.Publish(UserFriendsTopic("alice"))
	f := nextFrame(t, sess)
	assert.Equal(t, FrameError, f.Type)
	assert.NotEmpty(t, f.Error)
}

func TestSessionIgnoresChatsItLeft(t *testing.T) {
	refresher := newFakeRefresher()
	sess, hub := startSession(t, refresher)
	hub.Register("s1", sess)

	sess.Invalidate("chat:9")
	assert.Equal(t, FrameChats, nextFrame(t, sess).Type)
	select {
	case f := <-sess.Frames():
		t.Fatalf("unexpected frame %q", f.Type)
	case <-time.After(100 * time.Millisecond):
	}
	assert.Zero(t, refresher.count(FrameMessages))
}

func TestListenerDispatch(t *testing.T) {
	hub := NewHub(zap.NewNop())
	rec := &recorder{}
	hub.Register("a", rec)
	hub.Subscribe("a", "chat:1")
	l := NewListener(configForTest(), hub, zap.NewNop())

	l.dispatch(`{"topic":"chat:1"}`)
	l.dispatch(`{"topic":""}`)
	l.dispatch(`not json`)
	assert.Equal(t, []string{"chat:1"}, rec.seen())
}
