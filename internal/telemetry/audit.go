package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"ephemeral-chat/internal/apperr"
)

const (
	auditSchemaVersion = 1
	auditEventType     = "audit_log"

	LevelInfo = "INFO"
	LevelWarn = "WARN"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// AuditEmitter publishes audit records for security-relevant faults such as
// a user acting on a chat or request they do not belong to.
type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
	log         *zap.Logger
	now         func() time.Time
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	TraceID       string       `json:"trace_id,omitempty"`
	UserID        *string      `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level string            `json:"level"`
	Text  string            `json:"text"`
	Attrs map[string]string `json:"attrs,omitempty"`
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string, log *zap.Logger) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		log:         log,
		now:         time.Now,
	}
}

// Denied records an authorization fault. The error code is added to attrs.
func (e *AuditEmitter) Denied(ctx context.Context, err error, requestID string, userID *string, attrs map[string]string) {
	if attrs == nil {
		attrs = map[string]string{}
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		attrs["code"] = appErr.Code
	}
	e.Emit(ctx, LevelWarn, "access denied", requestID, userID, attrs)
}

// Emit publishes one record. Publishing failures are logged and swallowed.
func (e *AuditEmitter) Emit(ctx context.Context, level, text, requestID string, userID *string, attrs map[string]string) {
	if e == nil || e.publisher == nil {
		return
	}

	envelope := AuditEnvelope{
		SchemaVersion: auditSchemaVersion,
		EventType:     auditEventType,
		OccurredAt:    e.now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     requestID,
		UserID:        userID,
		Payload:       AuditPayload{Level: level, Text: text, Attrs: attrs},
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		envelope.TraceID = sc.TraceID().String()
	}

	log := e.log.With(zap.String("audit_level", level), zap.String("request_id", requestID))
	if userID != nil {
		log = log.With(zap.String("user_id", *userID))
	}
	log.Info("audit record", zap.String("text", text), zap.Any("attrs", attrs))

	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		log.Warn("audit publish failed", zap.Error(err))
	}
}
