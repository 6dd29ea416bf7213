package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"ephemeral-chat/internal/models"
	"ephemeral-chat/internal/observability"
)

// EventPublisher hands domain events to the broker. Delivery failures never
// fail the originating operation.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

func publishEvent(ctx context.Context, pub EventPublisher, log *zap.Logger, event models.DomainEvent) {
	if pub == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	err := pub.Publish(ctx, event.Name, event)
	observability.IncDomainEvent(event.Name, err)
	if err != nil {
		log.Warn("domain event not published", zap.String("event", event.Name), zap.Error(err))
	}
}

// otherParticipants returns the participant ids except userID.
func otherParticipants(chat models.Chat, userID string) []string {
	out := make([]string, 0, len(chat.Participants))
	for _, p := range chat.Participants {
		if p.ID != userID {
			out = append(out, p.ID)
		}
	}
	return out
}
