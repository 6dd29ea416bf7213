// Package presence tracks which users hold at least one live session.
package presence

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"ephemeral-chat/internal/config"
)

const keyPrefix = "ephemeral:presence:"

// Tracker records session liveness per user. A user is online while the
// number of their connected sessions is positive.
type Tracker interface {
	Connect(ctx context.Context, userID string) error
	Refresh(ctx context.Context, userID string) error
	Disconnect(ctx context.Context, userID string) error
	Online(ctx context.Context, userIDs []string) (map[string]bool, error)
	Close() error
}

// New returns a Redis tracker, or a noop tracker when Redis is not configured
// or unreachable.
func New(cfg config.RedisConfig, log *zap.Logger) Tracker {
	if cfg.Addr == "" {
		log.Info("presence disabled: empty redis addr")
		return Noop{}
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("presence disabled: redis ping failed", zap.String("addr", cfg.Addr), zap.Error(err))
		_ = client.Close()
		return Noop{}
	}
	log.Info("presence connected", zap.String("addr", cfg.Addr))
	return NewRedisTracker(client, cfg.PresenceTTL)
}

// RedisTracker keeps a per-user session counter that expires after ttl
// without a refresh, so crashed processes do not leave users online forever.
type RedisTracker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisTracker(client *redis.Client, ttl time.Duration) *RedisTracker {
	return &RedisTracker{client: client, ttl: ttl}
}

func key(userID string) string {
	return keyPrefix + userID
}

func (t *RedisTracker) Connect(ctx context.Context, userID string) error {
	pipe := t.client.TxPipeline()
	pipe.Incr(ctx, key(userID))
	pipe.Expire(ctx, key(userID), t.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("presence connect: %w", err)
	}
	return nil
}

func (t *RedisTracker) Refresh(ctx context.Context, userID string) error {
	return t.client.Expire(ctx, key(userID), t.ttl).Err()
}

func (t *RedisTracker) Disconnect(ctx context.Context, userID string) error {
	n, err := t.client.Decr(ctx, key(userID)).Result()
	if err != nil {
		return fmt.Errorf("presence disconnect: %w", err)
	}
	if n <= 0 {
		return t.client.Del(ctx, key(userID)).Err()
	}
	return nil
}

// Online reports the presence of every user in userIDs with a single MGET.
func (t *RedisTracker) Online(ctx context.Context, userIDs []string) (map[string]bool, error) {
	out := make(map[string]bool, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = key(id)
	}
	vals, err := t.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("presence lookup: %w", err)
	}
	for i, v := range vals {
		out[userIDs[i]] = sessionCount(v) > 0
	}
	return out, nil
}

func sessionCount(v interface{}) int64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func (t *RedisTracker) Close() error {
	return t.client.Close()
}

// Noop reports every user offline.
type Noop struct{}

func (Noop) Connect(context.Context, string) error    { return nil }
func (Noop) Refresh(context.Context, string) error    { return nil }
func (Noop) Disconnect(context.Context, string) error { return nil }
func (Noop) Close() error                             { return nil }

func (Noop) Online(_ context.Context, userIDs []string) (map[string]bool, error) {
	out := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		out[id] = false
	}
	return out, nil
}
