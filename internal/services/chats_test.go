package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ephemeral-chat/internal/apperr"
	"ephemeral-chat/internal/config"
	"ephemeral-chat/internal/mocks"
	"ephemeral-chat/internal/models"
)

type chatFixture struct {
	svc      *ChatService
	chats    *mocks.ChatRepositoryMock
	friends  *mocks.FriendRepositoryMock
	users    *mocks.UserRepositoryMock
	messages *mocks.MessageRepositoryMock
	events   *mocks.PublisherMock
}

func newChatFixture() chatFixture {
	f := chatFixture{
		chats:    new(mocks.ChatRepositoryMock),
		friends:  new(mocks.FriendRepositoryMock),
		users:    new(mocks.UserRepositoryMock),
		messages: new(mocks.MessageRepositoryMock),
		events:   new(mocks.PublisherMock),
	}
	msgs := NewMessageService(f.chats, f.messages, new(mocks.MediaStoreMock), f.events, config.RetryConfig{MaxAttempts: 1, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}, zap.NewNop())
	f.svc = NewChatService(f.chats, f.friends, f.users, msgs, f.events, zap.NewNop())
	return f
}

func groupChat(id int64, name *string, ids ...string) models.Chat {
	chat := models.Chat{ID: id, IsGroup: true, GroupName: name}
	for _, uid := range ids {
		chat.Participants = append(chat.Participants, models.Profile{ID: uid, DisplayName: uid})
	}
	return chat
}

func TestCreateDirectChatRequiresFriendship(t *testing.T) {
	f := newChatFixture()
	f.friends.On("AreFriends", mock.Anything, "alice", "mallory").Return(false, nil).Once()

	_, err := f.svc.CreateDirectChat(context.Background(), "alice", "mallory")
	assert.ErrorIs(t, err, apperr.ErrNotFriends)
	f.chats.AssertNotCalled(t, "CreateOrGetDirectChat", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateDirectChatRejectsSelf(t *testing.T) {
	f := newChatFixture()
	_, err := f.svc.CreateDirectChat(context.Background(), "alice", "alice")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestCreateDirectChatPublishesOnlyWhenCreated(t *testing.T) {
	for _, created := range []bool{true, false} {
		f := newChatFixture()
		ctx := context.Background()
		f.friends.On("AreFriends", ctx, "alice", "bob").Return(true, nil).Once()
		f.chats.On("CreateOrGetDirectChat", ctx, "alice", "bob").Return(models.Chat{ID: 5}, created, nil).Once()
		f.chats.On("GetChat", ctx, int64(5)).Return(directChat(5, "alice", "bob"), nil).Once()
		if created {
			f.events.On("Publish", ctx, models.EventChatCreated, mock.Anything).Return(nil).Once()
		}

		chat, err := f.svc.CreateDirectChat(ctx, "alice", "bob")
		require.NoError(t, err)
		assert.Len(t, chat.Participants, 2)
		f.events.AssertExpectations(t)
		if !created {
			f.events.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
		}
	}
}

func TestCreateGroupChatRequiresFriendshipWithEveryInvitee(t *testing.T) {
	f := newChatFixture()
	f.friends.On("NonFriends", mock.Anything, "alice", []string{"bob", "mallory"}).Return([]string{"mallory"}, nil).Once()

	_, err := f.svc.CreateGroupChat(context.Background(), "alice", "Trip", []string{"bob", "mallory", "bob", "alice"})
	assert.ErrorIs(t, err, apperr.ErrNotFriends)
	f.chats.AssertNotCalled(t, "CreateGroupChat", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateGroupChatValidation(t *testing.T) {
	f := newChatFixture()
	_, err := f.svc.CreateGroupChat(context.Background(), "alice", "Solo", []string{"alice", ""})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	many := make([]string, maxGroupMembers)
	for i := range many {
		many[i] = string(rune('a'+i%26)) + string(rune('0'+i/26))
	}
	_, err = f.svc.CreateGroupChat(context.Background(), "creator", "Crowd", many)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestCreateGroupChatPostsCreationNotice(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()
	name := "Trip"
	chat := groupChat(9, &name, "alice", "bob", "carol")

	f.friends.On("NonFriends", ctx, "alice", []string{"bob", "carol"}).Return([]string{}, nil).Once()
	f.chats.On("CreateGroupChat", ctx, "alice", "Trip", []string{"bob", "carol"}).Return(models.Chat{ID: 9, IsGroup: true, GroupName: &name}, nil).Once()
	f.chats.On("GetChat", ctx, int64(9)).Return(chat, nil)
	f.users.On("GetByID", ctx, "alice").Return(models.User{ID: "alice", DisplayName: "Alice"}, nil).Once()
	f.messages.On("SendMessage", ctx, models.NewMessage{ChatID: 9, SenderID: "alice", Content: "Alice created the group", Type: models.MessageSystem}).
		Return(models.Message{ID: 1, ChatID: 9, SenderID: "alice", Type: models.MessageSystem}, nil).Once()
	f.events.On("Publish", ctx, models.EventChatCreated, mock.MatchedBy(func(e models.DomainEvent) bool {
		return assert.ObjectsAreEqual([]string{"bob", "carol"}, e.Recipients)
	})).Return(nil).Once()
	f.events.On("Publish", ctx, models.EventMessageCreated, mock.Anything).Return(nil).Once()

	got, err := f.svc.CreateGroupChat(ctx, "alice", " Trip ", []string{"bob", "carol"})
	require.NoError(t, err)
	assert.Equal(t, int64(9), got.ID)
	assert.Len(t, got.Participants, 3)
	f.messages.AssertExpectations(t)
	f.events.AssertExpectations(t)
}

func TestLeaveChat(t *testing.T) {
	t.Run("direct chat", func(t *testing.T) {
		f := newChatFixture()
		f.chats.On("GetChat", mock.Anything, int64(5)).Return(directChat(5, "alice", "bob"), nil).Once()
		err := f.svc.LeaveChat(context.Background(), 5, "alice")
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	})

	t.Run("outsider", func(t *testing.T) {
		f := newChatFixture()
		f.chats.On("GetChat", mock.Anything, int64(9)).Return(groupChat(9, nil, "alice", "bob"), nil).Once()
		err := f.svc.LeaveChat(context.Background(), 9, "mallory")
		assert.ErrorIs(t, err, apperr.ErrNotAParticipant)
	})

	t.Run("member", func(t *testing.T) {
		f := newChatFixture()
		ctx := context.Background()
		f.chats.On("GetChat", ctx, int64(9)).Return(groupChat(9, nil, "alice", "bob", "carol"), nil)
		f.users.On("GetByID", ctx, "bob").Return(models.User{ID: "bob", Username: "bobby"}, nil).Once()
		f.messages.On("SendMessage", ctx, models.NewMessage{ChatID: 9, SenderID: "bob", Content: "bobby left the group", Type: models.MessageSystem}).
			Return(models.Message{ID: 2, ChatID: 9, SenderID: "bob", Type: models.MessageSystem}, nil).Once()
		f.events.On("Publish", ctx, models.EventMessageCreated, mock.Anything).Return(nil).Once()
		f.chats.On("LeaveChat", ctx, int64(9), "bob").Return(nil).Once()

		require.NoError(t, f.svc.LeaveChat(ctx, 9, "bob"))
		f.chats.AssertExpectations(t)
		f.messages.AssertExpectations(t)
	})
}

func TestGetChatHidesForeignChats(t *testing.T) {
	f := newChatFixture()
	f.chats.On("GetChat", mock.Anything, int64(9)).Return(groupChat(9, nil, "alice", "bob"), nil)

	_, err := f.svc.GetChat(context.Background(), 9, "mallory")
	assert.ErrorIs(t, err, apperr.ErrNotAParticipant)

	chat, err := f.svc.GetChat(context.Background(), 9, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(9), chat.ID)
}
