package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ephemeral-chat/internal/apperr"
	"ephemeral-chat/internal/models"
)

func TestSanitizeText(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Tom & Jerry", "Tom & Jerry"},
		{"it's 3 < 5", "it's 3 < 5"},
		{`say "hi"`, `say "hi"`},
		{"<b>bold</b> move", "bold move"},
		{"<script>alert(1)</script>ok", "ok"},
		{"  nul\x00 byte  ", "nul byte"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, sanitizeText(tc.in), tc.in)
	}
}

func TestCleanBoundedCountsDecodedRunes(t *testing.T) {
	in := strings.Repeat("&", maxContentRunes)
	out, err := cleanBounded("content", in, maxContentRunes)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = cleanBounded("content", in+"&", maxContentRunes)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestSendMessageKeepsPunctuation(t *testing.T) {
	for _, content := range []string{"Tom & Jerry", "it's 3 < 5", `say "hi"`, strings.Repeat("&", 1000)} {
		t.Run(content[:min(len(content), 12)], func(t *testing.T) {
			f := newMessageFixture()
			ctx := context.Background()

			f.messages.On("SendMessage", ctx, mock.MatchedBy(func(m models.NewMessage) bool {
				return m.Content == content
			})).Return(models.Message{ID: 4, ChatID: 7, SenderID: "alice", Content: content, Type: models.MessageText}, nil).Once()
			f.chats.On("GetChat", ctx, int64(7)).Return(directChat(7, "alice", "bob"), nil).Once()
			f.events.On("Publish", ctx, mock.Anything, mock.Anything).Return(nil).Once()

			got, err := f.svc.SendMessage(ctx, SendMessageInput{ChatID: 7, SenderID: "alice", Content: content, Type: models.MessageText})
			require.NoError(t, err)
			assert.Equal(t, content, got.Content)
			f.messages.AssertExpectations(t)
		})
	}
}
