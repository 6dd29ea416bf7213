package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"ephemeral-chat/internal/config"
	"ephemeral-chat/internal/db"
	"ephemeral-chat/internal/observability"
)

const listenerPingInterval = 90 * time.Second

// Publisher is the part of the hub the listener feeds.
type Publisher interface {
	Publish(topic string) int
	PublishAll() int
}

// Listener relays the datastore change stream into the hub. Delivery is at
// least once and unordered across topics.
type Listener struct {
	cfg config.DatabaseConfig
	hub Publisher
	log *zap.Logger
}

func NewListener(cfg config.DatabaseConfig, hub Publisher, log *zap.Logger) *Listener {
	return &Listener{cfg: cfg, hub: hub, log: log}
}

// Run listens until ctx is done. Reconnects are handled by pq.Listener; since
// notifications sent while disconnected are lost, every subscription is
// invalidated after a reconnect.
func (l *Listener) Run(ctx context.Context) error {
	listener := pq.NewListener(l.cfg.DSN, l.cfg.ListenerMinReconnect, l.cfg.ListenerMaxReconnect, l.event)
	defer listener.Close()
	if err := listener.Listen(db.SyncChannel); err != nil {
		return err
	}
	l.log.Info("listening for changes", zap.String("channel", db.SyncChannel))

	ping := time.NewTicker(listenerPingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-listener.Notify:
			if n == nil {
				l.hub.PublishAll()
				continue
			}
			l.dispatch(n.Extra)
		case <-ping.C:
			go func() {
				if err := listener.Ping(); err != nil {
					l.log.Warn("change stream ping failed", zap.Error(err))
				}
			}()
		}
	}
}

func (l *Listener) event(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventDisconnected:
		l.log.Warn("change stream disconnected", zap.Error(err))
	case pq.ListenerEventReconnected:
		observability.IncListenerReconnect()
		l.log.Info("change stream reconnected")
	case pq.ListenerEventConnectionAttemptFailed:
		l.log.Warn("change stream reconnect failed", zap.Error(err))
	}
}

type notification struct {
	Topic string `json:"topic"`
}

func (l *Listener) dispatch(payload string) {
	var n notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil || n.Topic == "" {
		l.log.Warn("malformed change notification", zap.String("payload", payload), zap.Error(err))
		return
	}
	l.hub.Publish(n.Topic)
}
