package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ephemeral-chat/internal/middleware"
	"ephemeral-chat/internal/mocks"
	"ephemeral-chat/internal/telemetry"
	"ephemeral-chat/internal/ws"
)

type countingSubscriber struct{ n int }

func (s *countingSubscriber) Invalidate(string) { s.n++ }

func setupDebugRouter(t *testing.T, enabled bool) (*gin.Engine, *ws.Hub, *mocks.PublisherMock) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := ws.NewHub(zap.NewNop())
	audit := new(mocks.PublisherMock)
	emitter := telemetry.NewAuditEmitter(audit, "audit.chat", "ephemeral-chat", "test", zap.NewNop())

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.UserIDKey, "alice")
		c.Set(middleware.RequestIDKey, "req-7")
		c.Next()
	})
	RegisterDebugRoutes(r, hub, emitter, enabled)
	return r, hub, audit
}

func serve(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestDebugSyncListsSessionTopics(t *testing.T) {
	r, hub, _ := setupDebugRouter(t, true)
	hub.Register("s1", &countingSubscriber{})
	hub.SetTopics("s1", append(ws.BaseTopics("alice"), ws.ChatTopic(4)))

	rec := serve(r, http.MethodGet, "/debug/sync?session_id=s1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Sessions int      `json:"sessions"`
		Topics   []string `json:"topics"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Sessions)
	assert.Equal(t, []string{"chat:4", "user:alice:chats", "user:alice:friends"}, body.Topics)
}

func TestDebugPublishSignalsSubscribers(t *testing.T) {
	r, hub, audit := setupDebugRouter(t, true)
	sub := &countingSubscriber{}
	hub.Register("s1", sub)
	hub.Subscribe("s1", "chat:4")
	audit.On("Publish", mock.Anything, "audit.chat", mock.MatchedBy(func(e telemetry.AuditEnvelope) bool {
		return e.RequestID == "req-7" && e.Payload.Attrs["topic"] == "chat:4"
	})).Return(nil).Once()

	rec := serve(r, http.MethodPost, "/debug/sync/publish", `{"topic":"chat:4"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, sub.n)
	assert.Contains(t, rec.Body.String(), `"signalled":1`)
	audit.AssertExpectations(t)
}

func TestDebugPublishRejectsUnknownTopic(t *testing.T) {
	r, _, audit := setupDebugRouter(t, true)

	rec := serve(r, http.MethodPost, "/debug/sync/publish", `{"topic":"room:1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	audit.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestDebugRoutesDisabled(t *testing.T) {
	r, _, _ := setupDebugRouter(t, false)

	rec := serve(r, http.MethodGet, "/debug/sync", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
