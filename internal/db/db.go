package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"ephemeral-chat/internal/config"
)

// SyncChannel is the Postgres NOTIFY channel carrying change events.
const SyncChannel = "sync_events"

// Connect opens the database pool and applies migrations.
func Connect(ctx context.Context, cfg config.DatabaseConfig, log *zap.Logger) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetMaxOpenConns(cfg.MaxOpen)
	db.SetConnMaxLifetime(time.Hour)

	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	log.Info("database migrations applied")
	return db, nil
}

func runMigrations(ctx context.Context, db *sqlx.DB) error {
	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
        id TEXT PRIMARY KEY,
        display_name TEXT NOT NULL DEFAULT '',
        username TEXT NOT NULL UNIQUE,
        email TEXT NOT NULL DEFAULT '',
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    );`,
	`CREATE TABLE IF NOT EXISTS friend_requests (
        id BIGSERIAL PRIMARY KEY,
        sender_id TEXT NOT NULL REFERENCES users(id),
        receiver_id TEXT NOT NULL REFERENCES users(id),
        message TEXT,
        status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'accepted', 'rejected')),
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        responded_at TIMESTAMPTZ,
        CHECK (sender_id <> receiver_id)
    );`,
	// A pair may hold at most one request that is still pending or was
	// accepted; rejected requests do not block a new one.
	`CREATE UNIQUE INDEX IF NOT EXISTS friend_requests_open_pair
        ON friend_requests (LEAST(sender_id, receiver_id), GREATEST(sender_id, receiver_id))
        WHERE status IN ('pending', 'accepted');`,
	`CREATE INDEX IF NOT EXISTS friend_requests_receiver ON friend_requests (receiver_id, status);`,
	`CREATE INDEX IF NOT EXISTS friend_requests_sender ON friend_requests (sender_id, status);`,
	`CREATE TABLE IF NOT EXISTS friendships (
        user_a TEXT NOT NULL REFERENCES users(id),
        user_b TEXT NOT NULL REFERENCES users(id),
        since TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        request_id BIGINT NOT NULL REFERENCES friend_requests(id),
        PRIMARY KEY (user_a, user_b),
        CHECK (user_a < user_b)
    );`,
	`CREATE INDEX IF NOT EXISTS friendships_user_b ON friendships (user_b);`,
	`CREATE TABLE IF NOT EXISTS chats (
        id BIGSERIAL PRIMARY KEY,
        is_group BOOLEAN NOT NULL DEFAULT FALSE,
        group_name TEXT,
        direct_key TEXT UNIQUE,
        created_by TEXT NOT NULL REFERENCES users(id),
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        last_message_at TIMESTAMPTZ
    );`,
	`CREATE TABLE IF NOT EXISTS chat_participants (
        chat_id BIGINT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
        user_id TEXT NOT NULL REFERENCES users(id),
        joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        PRIMARY KEY (chat_id, user_id)
    );`,
	`CREATE INDEX IF NOT EXISTS chat_participants_user ON chat_participants (user_id);`,
	`CREATE TABLE IF NOT EXISTS messages (
        id BIGSERIAL PRIMARY KEY,
        chat_id BIGINT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
        sender_id TEXT NOT NULL REFERENCES users(id),
        content TEXT NOT NULL,
        type TEXT NOT NULL CHECK (type IN ('text', 'image', 'video', 'system')),
        media_ref TEXT,
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        max_views INT CHECK (max_views IS NULL OR max_views > 0),
        disappear_after_seconds INT CHECK (disappear_after_seconds IS NULL OR disappear_after_seconds > 0),
        view_count INT NOT NULL DEFAULT 0 CHECK (view_count >= 0)
    );`,
	`CREATE INDEX IF NOT EXISTS messages_chat_created ON messages (chat_id, created_at DESC, id DESC);`,
	`CREATE TABLE IF NOT EXISTS message_views (
        message_id BIGINT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
        user_id TEXT NOT NULL REFERENCES users(id),
        viewed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        PRIMARY KEY (message_id, user_id)
    );`,
	`CREATE INDEX IF NOT EXISTS message_views_user ON message_views (user_id);`,

	// Change notification: every mutation of a synced table emits the
	// topics it invalidates on the sync_events channel.
	`CREATE OR REPLACE FUNCTION notify_topic(topic TEXT) RETURNS VOID AS $$
    BEGIN
        PERFORM pg_notify('` + SyncChannel + `', json_build_object('topic', topic)::text);
    END;
    $$ LANGUAGE plpgsql;`,
	`CREATE OR REPLACE FUNCTION notify_message_change() RETURNS TRIGGER AS $$
    BEGIN
        PERFORM notify_topic('chat:' || NEW.chat_id);
        RETURN NEW;
    END;
    $$ LANGUAGE plpgsql;`,
	`CREATE OR REPLACE FUNCTION notify_participant_change() RETURNS TRIGGER AS $$
    BEGIN
        IF TG_OP = 'DELETE' THEN
            PERFORM notify_topic('user:' || OLD.user_id || ':chats');
            PERFORM notify_topic('chat:' || OLD.chat_id);
        ELSE
            PERFORM notify_topic('user:' || NEW.user_id || ':chats');
            PERFORM notify_topic('chat:' || NEW.chat_id);
        END IF;
        RETURN NULL;
    END;
    $$ LANGUAGE plpgsql;`,
	`CREATE OR REPLACE FUNCTION notify_request_change() RETURNS TRIGGER AS $$
    BEGIN
        PERFORM notify_topic('user:' || NEW.sender_id || ':friends');
        PERFORM notify_topic('user:' || NEW.receiver_id || ':friends');
        RETURN NEW;
    END;
    $$ LANGUAGE plpgsql;`,
	`CREATE OR REPLACE FUNCTION notify_friendship_change() RETURNS TRIGGER AS $$
    BEGIN
        PERFORM notify_topic('user:' || NEW.user_a || ':friends');
        PERFORM notify_topic('user:' || NEW.user_b || ':friends');
        RETURN NEW;
    END;
    $$ LANGUAGE plpgsql;`,
	`DROP TRIGGER IF EXISTS messages_sync ON messages;`,
	`CREATE TRIGGER messages_sync AFTER INSERT OR UPDATE ON messages
        FOR EACH ROW EXECUTE FUNCTION notify_message_change();`,
	`DROP TRIGGER IF EXISTS message_views_sync ON message_views;`,
	`CREATE OR REPLACE FUNCTION notify_view_change() RETURNS TRIGGER AS $$
    BEGIN
        PERFORM notify_topic('chat:' || (SELECT chat_id FROM messages WHERE id = NEW.message_id));
        RETURN NEW;
    END;
    $$ LANGUAGE plpgsql;`,
	`CREATE TRIGGER message_views_sync AFTER INSERT ON message_views
        FOR EACH ROW EXECUTE FUNCTION notify_view_change();`,
	`DROP TRIGGER IF EXISTS chat_participants_sync ON chat_participants;`,
	`CREATE TRIGGER chat_participants_sync AFTER INSERT OR DELETE ON chat_participants
        FOR EACH ROW EXECUTE FUNCTION notify_participant_change();`,
	`DROP TRIGGER IF EXISTS friend_requests_sync ON friend_requests;`,
	`CREATE TRIGGER friend_requests_sync AFTER INSERT OR UPDATE ON friend_requests
        FOR EACH ROW EXECUTE FUNCTION notify_request_change();`,
	`DROP TRIGGER IF EXISTS friendships_sync ON friendships;`,
	`CREATE TRIGGER friendships_sync AFTER INSERT ON friendships
        FOR EACH ROW EXECUTE FUNCTION notify_friendship_change();`,
}
