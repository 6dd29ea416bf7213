package ws

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"ephemeral-chat/internal/config"
	"ephemeral-chat/internal/identity"
	"ephemeral-chat/internal/models"
	"ephemeral-chat/internal/observability"
	"ephemeral-chat/internal/presence"
	"ephemeral-chat/internal/telemetry"
)

const (
	writeWait      = 10 * time.Second
	maxClientFrame = 4096
)

// ProfileSyncer mirrors the identity provider's profile of a connecting user.
type ProfileSyncer interface {
	SyncProfile(ctx context.Context, user models.User) (models.User, error)
}

// Handler upgrades authenticated requests to sync sessions.
type Handler struct {
	hub       *Hub
	refresher Refresher
	verifier  *identity.Verifier
	profiles  ProfileSyncer
	presence  presence.Tracker
	audit     *telemetry.AuditEmitter
	cfg       config.WebSocketConfig
	log       *zap.Logger
}

// NewHandler constructs a Handler.
func NewHandler(hub *Hub, refresher Refresher, verifier *identity.Verifier, profiles ProfileSyncer, tracker presence.Tracker, audit *telemetry.AuditEmitter, cfg config.WebSocketConfig, log *zap.Logger) *Handler {
	return &Handler{
		hub:       hub,
		refresher: refresher,
		verifier:  verifier,
		profiles:  profiles,
		presence:  tracker,
		audit:     audit,
		cfg:       cfg,
		log:       log,
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type clientFrame struct {
	Type string `json:"type"`
}

// Handle authenticates the token from the Authorization header or the token
// query parameter and serves the session until the client goes away.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("ephemeral-chat/ws").Start(c.Request.Context(), "ws.handshake")
	c.Request = c.Request.WithContext(ctx)

	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	if token == "" {
		token = c.Query("token")
	}
	user, err := h.verifier.Verify(token)
	if err != nil {
		span.End()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "code": "UNAUTHENTICATED"})
		return
	}
	if _, err := h.profiles.SyncProfile(ctx, user); err != nil {
		h.log.Warn("profile sync failed", zap.String("user_id", user.ID), zap.Error(err))
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		span.End()
		h.log.Warn("websocket upgrade failed", zap.String("user_id", user.ID), zap.Error(err))
		return
	}
	info := newConnInfo(c.Request, user.ID, span.SpanContext().TraceID().String())
	span.End()

	h.serve(conn, info)
}

func (h *Handler) serve(conn *websocket.Conn, info ConnInfo) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	log := h.log.With(info.fields()...)

	sess := NewSession(info, h.hub, h.refresher, h.cfg.SendBuffer, h.log)
	sess.Start()
	observability.IncWSActive()
	observability.IncWSEvent("connect")
	if err := h.presence.Connect(ctx, info.UserID); err != nil {
		log.Warn("presence connect failed", zap.Error(err))
	}
	log.Info("ws connected")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		sess.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		h.writeLoop(ctx, conn, sess, log)
	}()

	reason, abnormal := h.readLoop(ctx, conn, sess, info.UserID)

	sess.Stop()
	cancel()
	conn.Close()
	wg.Wait()

	if err := h.presence.Disconnect(context.Background(), info.UserID); err != nil {
		log.Warn("presence disconnect failed", zap.Error(err))
	}
	observability.DecWSActive()
	observability.IncWSEvent("disconnect")
	duration := time.Since(info.ConnectedAt)
	log.Info("ws disconnected", zap.Duration("duration", duration), zap.String("reason", reason))

	if abnormal {
		observability.IncWSEvent("error")
		userID := info.UserID
		h.audit.Emit(observability.WithRequestID(context.Background(), info.RequestID), telemetry.LevelWarn, "websocket closed abnormally", info.RequestID, &userID, map[string]string{
			"session_id":  info.SessionID,
			"device_id":   info.DeviceID,
			"ip":          info.IP,
			"trace_id":    info.TraceID,
			"duration_ms": duration.Round(time.Millisecond).String(),
			"reason":      reason,
		})
	}
}

// readLoop consumes client frames until the connection fails. It reports the
// close reason and whether the close was abnormal.
func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, sess *Session, userID string) (string, bool) {
	conn.SetReadLimit(maxClientFrame)
	alive := func() {
		_ = conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
		if err := h.presence.Refresh(ctx, userID); err != nil {
			h.log.Debug("presence refresh failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	_ = conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		alive()
		return nil
	})

	for {
		var frame clientFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || ctx.Err() != nil {
				return err.Error(), false
			}
			return err.Error(), true
		}
		switch frame.Type {
		case "resync":
			observability.IncWSEvent("resync")
			sess.Resync()
		case "heartbeat":
			alive()
		default:
			h.log.Debug("unknown client frame", zap.String("session_id", sess.ID()), zap.String("type", frame.Type))
		}
	}
}

func (h *Handler) writeLoop(ctx context.Context, conn *websocket.Conn, sess *Session, log *zap.Logger) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case frame := <-sess.Frames():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(frame); err != nil {
				log.Debug("websocket write failed", zap.Error(err))
				conn.Close()
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Debug("websocket ping failed", zap.Error(err))
				conn.Close()
				return
			}
		}
	}
}
