package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"ephemeral-chat/internal/apperr"
	"ephemeral-chat/internal/ephemeral"
	"ephemeral-chat/internal/models"
)

// MessageRepository defines interactions for chat messages and their views.
type MessageRepository interface {
	SendMessage(ctx context.Context, msg models.NewMessage) (models.Message, error)
	RecordView(ctx context.Context, messageID int64, viewerID string, now time.Time) (models.ViewResult, error)
	GetMessage(ctx context.Context, messageID int64) (models.Message, error)
	ListMessages(ctx context.Context, chatID int64, beforeID int64, limit int) ([]models.Message, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, chat_id, sender_id, content, type, media_ref, created_at, max_views, disappear_after_seconds, view_count`

// SendMessage appends a message to the chat and advances chat.last_message_at
// in one transaction.
func (r *MessageRepo) SendMessage(ctx context.Context, in models.NewMessage) (models.Message, error) {
	var msg models.Message
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := requireParticipant(ctx, tx, in.ChatID, in.SenderID); err != nil {
			return err
		}
		if err := tx.GetContext(ctx, &msg, `INSERT INTO messages (chat_id, sender_id, content, type, media_ref, max_views, disappear_after_seconds)
            VALUES ($1, $2, $3, $4, $5, $6, $7)
            RETURNING `+messageColumns,
			in.ChatID, in.SenderID, in.Content, in.Type, in.MediaRef, in.MaxViews, in.DisappearAfterSeconds); err != nil {
			return err
		}
		// GREATEST ignores NULL, so the first message initializes the column.
		_, err := tx.ExecContext(ctx, `UPDATE chats SET last_message_at = GREATEST(last_message_at, $2) WHERE id=$1`, in.ChatID, msg.CreatedAt)
		return err
	})
	if err != nil {
		return models.Message{}, err
	}
	msg.ViewedBy = []models.MessageView{}
	return msg, nil
}

// requireParticipant fails with ErrChatNotFound or ErrNotAParticipant.
func requireParticipant(ctx context.Context, tx *sqlx.Tx, chatID int64, userID string) error {
	var state struct {
		ChatExists bool `db:"chat_exists"`
		Member     bool `db:"member"`
	}
	if err := tx.GetContext(ctx, &state, `SELECT
            EXISTS(SELECT 1 FROM chats WHERE id=$1) AS chat_exists,
            EXISTS(SELECT 1 FROM chat_participants WHERE chat_id=$1 AND user_id=$2) AS member`, chatID, userID); err != nil {
		return err
	}
	if !state.ChatExists {
		return apperr.ErrChatNotFound
	}
	if !state.Member {
		return apperr.ErrNotAParticipant
	}
	return nil
}

// RecordView counts the first view of viewerID. The message row is locked for
// the duration of the transaction, which serializes concurrent viewers of the
// same message. A repeated view is a no-op and reports Recorded=false.
func (r *MessageRepo) RecordView(ctx context.Context, messageID int64, viewerID string, now time.Time) (models.ViewResult, error) {
	var result models.ViewResult
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var msg models.Message
		err := tx.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id=$1 FOR UPDATE`, messageID)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.ErrMessageNotFound
		}
		if err != nil {
			return err
		}
		if err := requireParticipant(ctx, tx, msg.ChatID, viewerID); err != nil {
			return err
		}
		if msg.ViewedBy, err = viewsOf(ctx, tx, msg.ID); err != nil {
			return err
		}

		// The sender never consumes the view budget.
		if viewerID == msg.SenderID {
			result = models.ViewResult{Message: msg}
			return nil
		}
		ok, err := ephemeral.CheckViewable(msg, viewerID, now)
		if err != nil {
			return err
		}
		if !ok {
			result = models.ViewResult{Message: msg}
			return nil
		}

		if _, err := tx.ExecContext(ctx, `INSERT INTO message_views (message_id, user_id, viewed_at) VALUES ($1, $2, $3)`, msg.ID, viewerID, now); err != nil {
			return err
		}
		if err := tx.GetContext(ctx, &msg.ViewCount, `UPDATE messages SET view_count = view_count + 1 WHERE id=$1 RETURNING view_count`, msg.ID); err != nil {
			return err
		}
		msg.ViewedBy = append(msg.ViewedBy, models.MessageView{MessageID: msg.ID, UserID: viewerID, ViewedAt: now})
		result = models.ViewResult{Message: msg, Recorded: true}
		return nil
	})
	if err != nil {
		return models.ViewResult{}, err
	}
	return result, nil
}

func viewsOf(ctx context.Context, q sqlx.QueryerContext, messageID int64) ([]models.MessageView, error) {
	views := []models.MessageView{}
	err := sqlx.SelectContext(ctx, q, &views, `SELECT message_id, user_id, viewed_at FROM message_views WHERE message_id=$1 ORDER BY viewed_at, user_id`, messageID)
	return views, err
}

// GetMessage retrieves a single message with its views.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int64) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, apperr.ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, classify(err)
	}
	if msg.ViewedBy, err = viewsOf(ctx, r.db, messageID); err != nil {
		return models.Message{}, classify(err)
	}
	return msg, nil
}

// ListMessages returns up to limit messages of the chat older than beforeID
// (all when beforeID is 0) in chronological order, views included. Views for
// the whole page are loaded with one query.
func (r *MessageRepo) ListMessages(ctx context.Context, chatID int64, beforeID int64, limit int) ([]models.Message, error) {
	msgs := []models.Message{}
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages
        WHERE chat_id=$1 AND ($2::bigint = 0 OR id < $2::bigint)
        ORDER BY id DESC
        LIMIT $3`, chatID, beforeID, limit)
	if err != nil {
		return nil, classify(err)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	if len(msgs) == 0 {
		return msgs, nil
	}

	ids := make([]int64, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	var views []models.MessageView
	if err := r.db.SelectContext(ctx, &views, `SELECT message_id, user_id, viewed_at FROM message_views
        WHERE message_id = ANY($1) ORDER BY viewed_at, user_id`, pq.Array(ids)); err != nil {
		return nil, classify(err)
	}
	byMessage := make(map[int64][]models.MessageView, len(msgs))
	for _, v := range views {
		byMessage[v.MessageID] = append(byMessage[v.MessageID], v)
	}
	for i := range msgs {
		msgs[i].ViewedBy = byMessage[msgs[i].ID]
		if msgs[i].ViewedBy == nil {
			msgs[i].ViewedBy = []models.MessageView{}
		}
	}
	return msgs, nil
}
