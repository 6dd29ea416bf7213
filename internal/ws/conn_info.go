package ws

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ephemeral-chat/internal/observability"
)

// ConnInfo identifies one websocket session for logs and audit records.
type ConnInfo struct {
	SessionID   string
	UserID      string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

func newConnInfo(r *http.Request, userID, traceID string) ConnInfo {
	return ConnInfo{
		SessionID:   uuid.NewString(),
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(r),
		IP:          observability.IPFromRequest(r),
		RequestID:   observability.RequestIDFromRequest(r),
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
}

func (i ConnInfo) fields() []zap.Field {
	return []zap.Field{
		zap.String("session_id", i.SessionID),
		zap.String("user_id", i.UserID),
		zap.String("device_id", i.DeviceID),
		zap.String("ip", i.IP),
		zap.String("request_id", i.RequestID),
		zap.String("trace_id", i.TraceID),
	}
}
