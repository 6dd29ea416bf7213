package rabbitmq

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"ephemeral-chat/internal/config"
	"ephemeral-chat/internal/observability"
)

const appID = "ephemeral-chat"

// Publisher publishes domain and audit events.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// NewPublisher builds a RabbitMQ publisher on a durable topic exchange, or a
// noop publisher when the broker is not configured or unreachable. Event
// delivery is best effort, so a missing broker never blocks startup.
func NewPublisher(cfg config.AMQPConfig, log *zap.Logger) Publisher {
	if cfg.URL == "" {
		return fallback(log, "empty amqp url")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return fallback(log, err.Error())
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fallback(log, err.Error())
	}
	// durable, not auto-deleted, not internal, wait for the broker
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fallback(log, err.Error())
	}

	log.Info("rabbitmq connected", zap.String("exchange", cfg.Exchange))
	return &amqpPublisher{conn: conn, ch: ch, exchange: cfg.Exchange, log: log}
}

func fallback(log *zap.Logger, reason string) Publisher {
	log.Warn("rabbitmq disabled, using noop", zap.String("reason", reason))
	return noopPublisher{reason: reason, log: log}
}

// amqpPublisher shares one channel between request goroutines; a channel is
// not safe for concurrent publishing, so mu serializes Publish.
type amqpPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	log      *zap.Logger
}

// Publish sends event as a persistent JSON message. The routing key doubles
// as the message type so consumers can bind per event name.
func (p *amqpPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	headers := amqp.Table{}
	for key, value := range observability.HeadersFromContext(ctx) {
		headers[key] = value
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Type:         routingKey,
		AppId:        appID,
		Timestamp:    time.Now(),
		Headers:      headers,
		Body:         body,
	}

	p.mu.Lock()
	err = p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
	p.mu.Unlock()
	if err != nil {
		observability.IncAMQPPublishError()
		p.log.Warn("rabbitmq publish failed", zap.String("routing_key", routingKey), zap.String("message_id", msg.MessageId), zap.Error(err))
	}
	return err
}

func (p *amqpPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

type noopPublisher struct {
	reason string
	log    *zap.Logger
}

func (p noopPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	p.log.Debug("rabbitmq noop publish", zap.String("routing_key", routingKey), zap.Any("event", event))
	return nil
}

func (noopPublisher) Close() error {
	return nil
}

// PublisherMode reports the publisher mode for startup logs.
func PublisherMode(p Publisher) string {
	switch p.(type) {
	case *amqpPublisher:
		return "amqp"
	case noopPublisher:
		return "noop"
	default:
		return "unknown"
	}
}

// PublisherNoopReason explains why events are being dropped, empty for a live publisher.
func PublisherNoopReason(p Publisher) string {
	if publisher, ok := p.(noopPublisher); ok {
		return publisher.reason
	}
	return ""
}
