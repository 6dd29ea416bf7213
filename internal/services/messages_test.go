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
	"ephemeral-chat/internal/ephemeral"
	"ephemeral-chat/internal/mocks"
	"ephemeral-chat/internal/models"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type messageFixture struct {
	svc      *MessageService
	chats    *mocks.ChatRepositoryMock
	messages *mocks.MessageRepositoryMock
	media    *mocks.MediaStoreMock
	events   *mocks.PublisherMock
}

func newMessageFixture() messageFixture {
	f := messageFixture{
		chats:    new(mocks.ChatRepositoryMock),
		messages: new(mocks.MessageRepositoryMock),
		media:    new(mocks.MediaStoreMock),
		events:   new(mocks.PublisherMock),
	}
	retry := config.RetryConfig{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
	f.svc = NewMessageService(f.chats, f.messages, f.media, f.events, retry, zap.NewNop())
	f.svc.now = func() time.Time { return fixedNow }
	return f
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

func directChat(id int64, a, b string) models.Chat {
	return models.Chat{ID: id, Participants: []models.Profile{{ID: a, DisplayName: "Alice"}, {ID: b, DisplayName: "Bob"}}}
}

func TestSendMessageStoresAndNotifiesRecipients(t *testing.T) {
	f := newMessageFixture()
	ctx := context.Background()

	expected := models.NewMessage{ChatID: 7, SenderID: "alice", Content: "hi there", Type: models.MessageText, MaxViews: intPtr(1)}
	stored := models.Message{ID: 11, ChatID: 7, SenderID: "alice", Content: "hi there", Type: models.MessageText, MaxViews: intPtr(1), CreatedAt: fixedNow}
	f.messages.On("SendMessage", ctx, expected).Return(stored, nil).Once()
	f.chats.On("GetChat", ctx, int64(7)).Return(directChat(7, "alice", "bob"), nil).Once()
	f.events.On("Publish", ctx, models.EventMessageCreated, mock.MatchedBy(func(e models.DomainEvent) bool {
		return e.ActorID == "alice" && assert.ObjectsAreEqual([]string{"bob"}, e.Recipients) && e.Attributes["message_id"] == "11"
	})).Return(nil).Once()

	got, err := f.svc.SendMessage(ctx, SendMessageInput{ChatID: 7, SenderID: "alice", Content: "  <b>hi</b> there ", Type: models.MessageText, MaxViews: intPtr(1)})
	require.NoError(t, err)
	assert.Equal(t, int64(11), got.ID)
	assert.Equal(t, "hi there", got.Content)
	assert.True(t, got.Viewed)
	assert.False(t, got.Expired)

	f.messages.AssertExpectations(t)
	f.chats.AssertExpectations(t)
	f.events.AssertExpectations(t)
}

func TestSendMessageSurvivesPublishFailure(t *testing.T) {
	f := newMessageFixture()
	ctx := context.Background()

	f.messages.On("SendMessage", ctx, mock.Anything).Return(models.Message{ID: 1, ChatID: 7, SenderID: "alice", Content: "x", Type: models.MessageText}, nil).Once()
	f.chats.On("GetChat", ctx, int64(7)).Return(directChat(7, "alice", "bob"), nil).Once()
	f.events.On("Publish", ctx, mock.Anything, mock.Anything).Return(assert.AnError).Once()

	_, err := f.svc.SendMessage(ctx, SendMessageInput{ChatID: 7, SenderID: "alice", Content: "x", Type: models.MessageText})
	require.NoError(t, err)
}

func TestSendMessageValidation(t *testing.T) {
	cases := []struct {
		name string
		in   SendMessageInput
	}{
		{"missing chat", SendMessageInput{SenderID: "alice", Content: "x", Type: models.MessageText}},
		{"system type", SendMessageInput{ChatID: 1, SenderID: "alice", Content: "x", Type: models.MessageSystem}},
		{"unknown type", SendMessageInput{ChatID: 1, SenderID: "alice", Content: "x", Type: "sticker"}},
		{"empty text", SendMessageInput{ChatID: 1, SenderID: "alice", Content: "  <p></p> ", Type: models.MessageText}},
		{"text with media", SendMessageInput{ChatID: 1, SenderID: "alice", Content: "x", Type: models.MessageText, MediaRef: strPtr("k")}},
		{"image without media", SendMessageInput{ChatID: 1, SenderID: "alice", Type: models.MessageImage}},
		{"zero max views", SendMessageInput{ChatID: 1, SenderID: "alice", Content: "x", Type: models.MessageText, MaxViews: intPtr(0)}},
		{"zero window", SendMessageInput{ChatID: 1, SenderID: "alice", Content: "x", Type: models.MessageText, DisappearAfterSeconds: intPtr(0)}},
		{"window too long", SendMessageInput{ChatID: 1, SenderID: "alice", Content: "x", Type: models.MessageText, DisappearAfterSeconds: intPtr(maxDisappearAfter + 1)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newMessageFixture()
			_, err := f.svc.SendMessage(context.Background(), tc.in)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
			f.messages.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything)
		})
	}
}

func TestSendMessageRejectsForeignMedia(t *testing.T) {
	f := newMessageFixture()
	f.media.On("Owns", "media/mallory/x.png", "alice").Return(false).Once()

	_, err := f.svc.SendMessage(context.Background(), SendMessageInput{ChatID: 1, SenderID: "alice", Type: models.MessageImage, MediaRef: strPtr("media/mallory/x.png")})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	f.media.AssertExpectations(t)
}

func TestSendMessageWithMediaResolvesReadURL(t *testing.T) {
	f := newMessageFixture()
	ctx := context.Background()
	ref := "media/alice/p.png"

	f.media.On("Owns", ref, "alice").Return(true).Once()
	f.media.On("ReadURL", ctx, ref).Return("https://bucket/p.png?sig", nil).Once()
	f.messages.On("SendMessage", ctx, mock.Anything).Return(models.Message{ID: 2, ChatID: 1, SenderID: "alice", Type: models.MessageImage, MediaRef: &ref}, nil).Once()
	f.chats.On("GetChat", ctx, int64(1)).Return(directChat(1, "alice", "bob"), nil).Once()
	f.events.On("Publish", ctx, mock.Anything, mock.Anything).Return(nil).Once()

	got, err := f.svc.SendMessage(ctx, SendMessageInput{ChatID: 1, SenderID: "alice", Type: models.MessageImage, MediaRef: &ref})
	require.NoError(t, err)
	assert.Equal(t, "https://bucket/p.png?sig", got.MediaURL)
	f.media.AssertExpectations(t)
}

func TestSendMessageNotParticipant(t *testing.T) {
	f := newMessageFixture()
	f.messages.On("SendMessage", mock.Anything, mock.Anything).Return(nil, apperr.ErrNotAParticipant).Once()

	_, err := f.svc.SendMessage(context.Background(), SendMessageInput{ChatID: 3, SenderID: "mallory", Content: "x", Type: models.MessageText})
	assert.ErrorIs(t, err, apperr.ErrNotAParticipant)
	f.events.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestRecordViewRetriesTransientErrors(t *testing.T) {
	f := newMessageFixture()
	ctx := context.Background()

	viewed := models.Message{ID: 5, ChatID: 1, SenderID: "alice", Content: "secret", Type: models.MessageText, MaxViews: intPtr(1), ViewCount: 1,
		ViewedBy: []models.MessageView{{MessageID: 5, UserID: "bob", ViewedAt: fixedNow}}}
	f.messages.On("RecordView", ctx, int64(5), "bob", fixedNow).Return(nil, apperr.Transient(assert.AnError)).Once()
	f.messages.On("RecordView", ctx, int64(5), "bob", fixedNow).Return(models.ViewResult{Message: viewed, Recorded: true}, nil).Once()

	got, err := f.svc.RecordView(ctx, 5, "bob")
	require.NoError(t, err)
	assert.Equal(t, "secret", got.Content)
	assert.True(t, got.Viewed)
	assert.Equal(t, 1, got.ViewCount)
	f.messages.AssertNumberOfCalls(t, "RecordView", 2)
}

func TestRecordViewGivesUpAfterMaxAttempts(t *testing.T) {
	f := newMessageFixture()
	f.messages.On("RecordView", mock.Anything, int64(5), "bob", mock.Anything).Return(nil, apperr.Transient(assert.AnError))

	_, err := f.svc.RecordView(context.Background(), 5, "bob")
	assert.True(t, apperr.IsTransient(err))
	f.messages.AssertNumberOfCalls(t, "RecordView", 3)
}

func TestRecordViewDoesNotRetryPermanentErrors(t *testing.T) {
	for _, sentinel := range []error{apperr.ErrMessageExpired, apperr.ErrNotAParticipant, apperr.ErrMessageNotFound} {
		f := newMessageFixture()
		f.messages.On("RecordView", mock.Anything, int64(5), "carol", mock.Anything).Return(nil, sentinel)

		_, err := f.svc.RecordView(context.Background(), 5, "carol")
		assert.ErrorIs(t, err, sentinel)
		f.messages.AssertNumberOfCalls(t, "RecordView", 1)
	}
}

func TestGetMessageHidesExpiredContent(t *testing.T) {
	f := newMessageFixture()
	ctx := context.Background()
	ref := "media/alice/v.mp4"

	msg := models.Message{ID: 9, ChatID: 1, SenderID: "alice", Content: "", Type: models.MessageVideo, MediaRef: &ref,
		DisappearAfterSeconds: intPtr(10), ViewCount: 1,
		ViewedBy: []models.MessageView{{MessageID: 9, UserID: "bob", ViewedAt: fixedNow.Add(-time.Minute)}}}
	f.messages.On("GetMessage", ctx, int64(9)).Return(msg, nil)
	f.chats.On("IsParticipant", ctx, int64(1), "bob").Return(true, nil)
	f.chats.On("IsParticipant", ctx, int64(1), "alice").Return(true, nil)
	f.media.On("ReadURL", ctx, ref).Return("https://signed", nil).Once()

	got, err := f.svc.GetMessage(ctx, 9, "bob")
	require.NoError(t, err)
	assert.True(t, got.Expired)
	assert.Equal(t, ephemeral.ExpiredPlaceholder, got.Content)
	assert.Nil(t, got.MediaRef)
	assert.Empty(t, got.MediaURL)

	sender, err := f.svc.GetMessage(ctx, 9, "alice")
	require.NoError(t, err)
	assert.False(t, sender.Expired)
	assert.Equal(t, "https://signed", sender.MediaURL)
	assert.Len(t, sender.ViewedBy, 1)
	f.media.AssertExpectations(t)
}

func TestVisibleContent(t *testing.T) {
	f := newMessageFixture()
	ctx := context.Background()

	msg := models.Message{ID: 4, ChatID: 2, SenderID: "alice", Content: "once", Type: models.MessageText, MaxViews: intPtr(1), ViewCount: 1,
		ViewedBy: []models.MessageView{{MessageID: 4, UserID: "bob", ViewedAt: fixedNow}}}
	f.messages.On("GetMessage", ctx, int64(4)).Return(msg, nil)
	f.chats.On("IsParticipant", ctx, int64(2), mock.Anything).Return(true, nil)

	content, err := f.svc.VisibleContent(ctx, 4, "bob")
	require.NoError(t, err)
	assert.Equal(t, "once", content)

	content, err = f.svc.VisibleContent(ctx, 4, "carol")
	require.NoError(t, err)
	assert.Equal(t, ephemeral.ExpiredPlaceholder, content)
}

func TestListMessagesRequiresParticipant(t *testing.T) {
	f := newMessageFixture()
	f.chats.On("IsParticipant", mock.Anything, int64(3), "mallory").Return(false, nil).Once()

	_, err := f.svc.ListMessages(context.Background(), 3, "mallory", 0, 10)
	assert.ErrorIs(t, err, apperr.ErrNotAParticipant)
	f.messages.AssertNotCalled(t, "ListMessages", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestListMessagesClampsPageSize(t *testing.T) {
	f := newMessageFixture()
	ctx := context.Background()

	f.chats.On("IsParticipant", ctx, int64(3), "bob").Return(true, nil)
	f.messages.On("ListMessages", ctx, int64(3), int64(0), maxPageSize).Return([]models.Message{
		{ID: 1, ChatID: 3, SenderID: "alice", Content: "a", Type: models.MessageText},
		{ID: 2, ChatID: 3, SenderID: "bob", Content: "b", Type: models.MessageText},
	}, nil).Once()
	f.messages.On("ListMessages", ctx, int64(3), int64(40), defaultPageSize).Return([]models.Message{}, nil).Once()

	got, err := f.svc.ListMessages(ctx, 3, "bob", 0, 10_000)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.False(t, got[0].Viewed)
	assert.True(t, got[1].Viewed)

	got, err = f.svc.ListMessages(ctx, 3, "bob", 40, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
	f.messages.AssertExpectations(t)
}
