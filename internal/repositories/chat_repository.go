package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"ephemeral-chat/internal/apperr"
	"ephemeral-chat/internal/models"
)

// ChatRepository abstracts chat persistence.
type ChatRepository interface {
	CreateOrGetDirectChat(ctx context.Context, userID, friendID string) (models.Chat, bool, error)
	CreateGroupChat(ctx context.Context, creatorID, name string, memberIDs []string) (models.Chat, error)
	LeaveChat(ctx context.Context, chatID int64, userID string) error
	IsParticipant(ctx context.Context, chatID int64, userID string) (bool, error)
	GetChat(ctx context.Context, chatID int64) (models.Chat, error)
	ListChatDigests(ctx context.Context, userID string) ([]models.ChatDigest, error)
	ChatIDs(ctx context.Context, userID string) ([]int64, error)
}

// ChatRepo is a sqlx implementation of ChatRepository.
type ChatRepo struct {
	db *sqlx.DB
}

// NewChatRepo constructs a ChatRepo.
func NewChatRepo(db *sqlx.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

const chatColumns = `id, is_group, group_name, created_by, created_at, last_message_at`

// directKey is the unique key of the 1:1 chat of an unordered pair.
func directKey(a, b string) string {
	a, b = models.OrderedPair(a, b)
	return fmt.Sprintf("%d:%s:%s", len(a), a, b)
}

// CreateOrGetDirectChat returns the 1:1 chat of the pair, creating it if
// needed. The boolean reports whether the chat was created by this call.
func (r *ChatRepo) CreateOrGetDirectChat(ctx context.Context, userID, friendID string) (models.Chat, bool, error) {
	if userID == friendID {
		return models.Chat{}, false, apperr.Invalid("cannot create chat with self")
	}

	var (
		chat    models.Chat
		created bool
	)
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		key := directKey(userID, friendID)
		err := tx.GetContext(ctx, &chat, `INSERT INTO chats (is_group, direct_key, created_by) VALUES (FALSE, $1, $2)
            ON CONFLICT (direct_key) DO NOTHING
            RETURNING `+chatColumns, key, userID)
		if errors.Is(err, sql.ErrNoRows) {
			return tx.GetContext(ctx, &chat, `SELECT `+chatColumns+` FROM chats WHERE direct_key=$1`, key)
		}
		if err != nil {
			return err
		}
		created = true
		return insertParticipants(ctx, tx, chat.ID, []string{userID, friendID})
	})
	if err != nil {
		return models.Chat{}, false, err
	}
	return chat, created, nil
}

// CreateGroupChat creates a group chat and its participants atomically. The
// creator is always a participant.
func (r *ChatRepo) CreateGroupChat(ctx context.Context, creatorID, name string, memberIDs []string) (models.Chat, error) {
	memberSet := map[string]struct{}{creatorID: {}}
	for _, id := range memberIDs {
		memberSet[id] = struct{}{}
	}
	ids := make([]string, 0, len(memberSet))
	for id := range memberSet {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if len(ids) < 2 {
		return models.Chat{}, apperr.Invalid("a group chat needs at least one other member")
	}

	var chat models.Chat
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &chat, `INSERT INTO chats (is_group, group_name, created_by) VALUES (TRUE, $1, $2)
            RETURNING `+chatColumns, name, creatorID); err != nil {
			return err
		}
		return insertParticipants(ctx, tx, chat.ID, ids)
	})
	if isForeignKeyViolation(err) {
		return models.Chat{}, apperr.Wrap(apperr.ErrUserNotFound, err)
	}
	return chat, err
}

func insertParticipants(ctx context.Context, tx *sqlx.Tx, chatID int64, userIDs []string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO chat_participants (chat_id, user_id)
        SELECT $1, unnest($2::text[]) ON CONFLICT DO NOTHING`, chatID, pq.Array(userIDs))
	return err
}

// LeaveChat removes userID from a group chat.
func (r *ChatRepo) LeaveChat(ctx context.Context, chatID int64, userID string) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var isGroup bool
		err := tx.GetContext(ctx, &isGroup, `SELECT is_group FROM chats WHERE id=$1 FOR UPDATE`, chatID)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.ErrChatNotFound
		}
		if err != nil {
			return err
		}
		if !isGroup {
			return apperr.Invalid("cannot leave a direct chat")
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM chat_participants WHERE chat_id=$1 AND user_id=$2`, chatID, userID)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return apperr.ErrNotAParticipant
		}
		return nil
	})
}

// IsParticipant checks whether a user belongs to the chat.
func (r *ChatRepo) IsParticipant(ctx context.Context, chatID int64, userID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM chat_participants WHERE chat_id=$1 AND user_id=$2)`, chatID, userID)
	return exists, classify(err)
}

// GetChat fetches a chat by id with its participants.
func (r *ChatRepo) GetChat(ctx context.Context, chatID int64) (models.Chat, error) {
	var chat models.Chat
	err := r.db.GetContext(ctx, &chat, `SELECT `+chatColumns+` FROM chats WHERE id=$1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, apperr.ErrChatNotFound
	}
	if err != nil {
		return models.Chat{}, classify(err)
	}
	participants, err := r.participants(ctx, []int64{chatID})
	if err != nil {
		return models.Chat{}, err
	}
	chat.Participants = participants[chatID]
	return chat, nil
}

// ChatIDs lists the chats userID participates in.
func (r *ChatRepo) ChatIDs(ctx context.Context, userID string) ([]int64, error) {
	ids := []int64{}
	err := r.db.SelectContext(ctx, &ids, `SELECT chat_id FROM chat_participants WHERE user_id=$1 ORDER BY chat_id`, userID)
	return ids, classify(err)
}

// digestRow is one row of the batched chat-list query. The lm_ columns hold
// the latest message of the chat and are all NULL for an empty chat.
type digestRow struct {
	models.Chat
	UnreadCount            int        `db:"unread_count"`
	LastID                 *int64     `db:"lm_id"`
	LastSenderID           *string    `db:"lm_sender_id"`
	LastContent            *string    `db:"lm_content"`
	LastType               *string    `db:"lm_type"`
	LastMediaRef           *string    `db:"lm_media_ref"`
	LastCreatedAt          *time.Time `db:"lm_created_at"`
	LastMaxViews           *int       `db:"lm_max_views"`
	LastDisappearAfterSecs *int       `db:"lm_disappear_after_seconds"`
	LastViewCount          *int       `db:"lm_view_count"`
	LastViewedAt           *time.Time `db:"lm_viewed_at"`
}

func (row digestRow) lastMessage(viewerID string) *models.Message {
	if row.LastID == nil {
		return nil
	}
	m := &models.Message{
		ID:                    *row.LastID,
		ChatID:                row.Chat.ID,
		SenderID:              *row.LastSenderID,
		Content:               *row.LastContent,
		Type:                  models.MessageType(*row.LastType),
		MediaRef:              row.LastMediaRef,
		CreatedAt:             *row.LastCreatedAt,
		MaxViews:              row.LastMaxViews,
		DisappearAfterSeconds: row.LastDisappearAfterSecs,
		ViewCount:             *row.LastViewCount,
	}
	if row.LastViewedAt != nil {
		m.ViewedBy = []models.MessageView{{MessageID: m.ID, UserID: viewerID, ViewedAt: *row.LastViewedAt}}
	}
	return m
}

// ListChatDigests loads every chat of userID with its latest message and the
// viewer's unread count. The whole list costs two queries regardless of the
// number of chats: one for chats, last messages and unread counts, one for
// participants. The last message carries only the viewer's own view.
func (r *ChatRepo) ListChatDigests(ctx context.Context, userID string) ([]models.ChatDigest, error) {
	var rows []digestRow
	err := r.db.SelectContext(ctx, &rows, `WITH my_chats AS (
            SELECT c.id, c.is_group, c.group_name, c.created_by, c.created_at, c.last_message_at
            FROM chats c
            JOIN chat_participants cp ON cp.chat_id = c.id
            WHERE cp.user_id = $1
        ), unread AS (
            SELECT m.chat_id, COUNT(*) AS unread_count
            FROM messages m
            JOIN my_chats mc ON mc.id = m.chat_id
            WHERE m.sender_id <> $1
            AND NOT EXISTS (SELECT 1 FROM message_views v WHERE v.message_id = m.id AND v.user_id = $1)
            GROUP BY m.chat_id
        )
        SELECT mc.id, mc.is_group, mc.group_name, mc.created_by, mc.created_at, mc.last_message_at,
            COALESCE(u.unread_count, 0) AS unread_count,
            lm.id AS lm_id, lm.sender_id AS lm_sender_id, lm.content AS lm_content, lm.type AS lm_type,
            lm.media_ref AS lm_media_ref, lm.created_at AS lm_created_at, lm.max_views AS lm_max_views,
            lm.disappear_after_seconds AS lm_disappear_after_seconds, lm.view_count AS lm_view_count,
            lv.viewed_at AS lm_viewed_at
        FROM my_chats mc
        LEFT JOIN unread u ON u.chat_id = mc.id
        LEFT JOIN LATERAL (
            SELECT m.id, m.sender_id, m.content, m.type, m.media_ref, m.created_at,
                m.max_views, m.disappear_after_seconds, m.view_count
            FROM messages m
            WHERE m.chat_id = mc.id
            ORDER BY m.created_at DESC, m.id DESC
            LIMIT 1
        ) lm ON TRUE
        LEFT JOIN message_views lv ON lv.message_id = lm.id AND lv.user_id = $1
        ORDER BY COALESCE(mc.last_message_at, mc.created_at) DESC, mc.id DESC`, userID)
	if err != nil {
		return nil, classify(err)
	}

	chatIDs := make([]int64, 0, len(rows))
	for _, row := range rows {
		chatIDs = append(chatIDs, row.Chat.ID)
	}
	participants, err := r.participants(ctx, chatIDs)
	if err != nil {
		return nil, err
	}

	digests := make([]models.ChatDigest, 0, len(rows))
	for _, row := range rows {
		chat := row.Chat
		chat.Participants = participants[chat.ID]
		digests = append(digests, models.ChatDigest{
			Chat:        chat,
			LastMessage: row.lastMessage(userID),
			UnreadCount: row.UnreadCount,
		})
	}
	return digests, nil
}

func (r *ChatRepo) participants(ctx context.Context, chatIDs []int64) (map[int64][]models.Profile, error) {
	out := make(map[int64][]models.Profile, len(chatIDs))
	if len(chatIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		ChatID int64 `db:"chat_id"`
		models.Profile
	}
	if err := r.db.SelectContext(ctx, &rows, `SELECT cp.chat_id, u.id, u.display_name, u.username
        FROM chat_participants cp
        JOIN users u ON u.id = cp.user_id
        WHERE cp.chat_id = ANY($1)
        ORDER BY cp.chat_id, cp.joined_at, u.id`, pq.Array(chatIDs)); err != nil {
		return nil, classify(err)
	}
	for _, row := range rows {
		out[row.ChatID] = append(out[row.ChatID], row.Profile)
	}
	return out, nil
}
