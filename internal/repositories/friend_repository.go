package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"ephemeral-chat/internal/apperr"
	"ephemeral-chat/internal/models"
)

// FriendRepository persists friend requests and the friendships they materialize.
type FriendRepository interface {
	SendRequest(ctx context.Context, senderID, receiverID string, message *string) (models.FriendRequest, error)
	Respond(ctx context.Context, requestID int64, responderID string, decision models.Decision) (models.FriendRequest, *models.Friendship, error)
	GetRequest(ctx context.Context, requestID int64) (models.FriendRequest, error)
	ListFriends(ctx context.Context, userID string) ([]models.Friend, error)
	ListPending(ctx context.Context, userID string, direction models.Direction) ([]models.PendingRequest, error)
	AreFriends(ctx context.Context, userID, otherID string) (bool, error)
	NonFriends(ctx context.Context, userID string, candidates []string) ([]string, error)
}

// FriendRepo is a sqlx implementation of FriendRepository.
type FriendRepo struct {
	db *sqlx.DB
}

// NewFriendRepo constructs a FriendRepo.
func NewFriendRepo(db *sqlx.DB) *FriendRepo {
	return &FriendRepo{db: db}
}

const requestColumns = `id, sender_id, receiver_id, message, status, created_at, responded_at`

// SendRequest creates a pending request. Pair uniqueness is enforced by the
// friend_requests_open_pair index, so of two concurrent requests for the same
// pair in either direction exactly one insert succeeds.
func (r *FriendRepo) SendRequest(ctx context.Context, senderID, receiverID string, message *string) (models.FriendRequest, error) {
	if senderID == receiverID {
		return models.FriendRequest{}, apperr.ErrSelfRequest
	}

	a, b := models.OrderedPair(senderID, receiverID)
	var req models.FriendRequest
	err := r.db.GetContext(ctx, &req, `INSERT INTO friend_requests (sender_id, receiver_id, message)
        SELECT $1, $2, $3
        WHERE NOT EXISTS (SELECT 1 FROM friendships WHERE user_a=$4 AND user_b=$5)
        RETURNING `+requestColumns, senderID, receiverID, message, a, b)
	switch {
	case err == nil:
		return req, nil
	case errors.Is(err, sql.ErrNoRows):
		return models.FriendRequest{}, apperr.ErrAlreadyFriends
	case isUniqueViolation(err):
		return models.FriendRequest{}, r.openPairConflict(ctx, a, b, err)
	case isForeignKeyViolation(err):
		return models.FriendRequest{}, apperr.Wrap(apperr.ErrUserNotFound, err)
	}
	return models.FriendRequest{}, classify(err)
}

// openPairConflict reports which open request blocked an insert.
func (r *FriendRepo) openPairConflict(ctx context.Context, a, b string, cause error) error {
	var status models.FriendRequestStatus
	err := r.db.GetContext(ctx, &status, `SELECT status FROM friend_requests
        WHERE LEAST(sender_id, receiver_id)=$1 AND GREATEST(sender_id, receiver_id)=$2
        AND status IN ('pending', 'accepted')
        LIMIT 1`, a, b)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return classify(err)
	}
	if status == models.FriendRequestAccepted {
		return apperr.Wrap(apperr.ErrAlreadyFriends, cause)
	}
	return apperr.Wrap(apperr.ErrDuplicatePending, cause)
}

// Respond moves a pending request to its terminal state. Accepting
// materializes the friendship in the same transaction.
func (r *FriendRepo) Respond(ctx context.Context, requestID int64, responderID string, decision models.Decision) (models.FriendRequest, *models.Friendship, error) {
	if !decision.Valid() {
		return models.FriendRequest{}, nil, apperr.Invalid("decision must be accept or reject")
	}

	var (
		req        models.FriendRequest
		friendship *models.Friendship
	)
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &req, `SELECT `+requestColumns+` FROM friend_requests WHERE id=$1 FOR UPDATE`, requestID)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.ErrRequestNotFound
		}
		if err != nil {
			return err
		}
		if req.ReceiverID != responderID {
			return apperr.ErrNotTheReceiver
		}
		if req.Status != models.FriendRequestPending {
			return apperr.ErrAlreadyResolved
		}

		status := models.FriendRequestRejected
		if decision == models.DecisionAccept {
			status = models.FriendRequestAccepted
		}
		if err := tx.GetContext(ctx, &req, `UPDATE friend_requests SET status=$2, responded_at=NOW()
            WHERE id=$1 RETURNING `+requestColumns, requestID, status); err != nil {
			return err
		}
		if status != models.FriendRequestAccepted {
			return nil
		}

		a, b := models.OrderedPair(req.SenderID, req.ReceiverID)
		var f models.Friendship
		if _, err := tx.ExecContext(ctx, `INSERT INTO friendships (user_a, user_b, request_id)
            VALUES ($1, $2, $3) ON CONFLICT (user_a, user_b) DO NOTHING`, a, b, req.ID); err != nil {
			return err
		}
		if err := tx.GetContext(ctx, &f, `SELECT user_a, user_b, since, request_id FROM friendships WHERE user_a=$1 AND user_b=$2`, a, b); err != nil {
			return err
		}
		friendship = &f
		return nil
	})
	if err != nil {
		return models.FriendRequest{}, nil, err
	}
	return req, friendship, nil
}

// GetRequest fetches a request by id.
func (r *FriendRepo) GetRequest(ctx context.Context, requestID int64) (models.FriendRequest, error) {
	var req models.FriendRequest
	err := r.db.GetContext(ctx, &req, `SELECT `+requestColumns+` FROM friend_requests WHERE id=$1`, requestID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.FriendRequest{}, apperr.ErrRequestNotFound
	}
	return req, classify(err)
}

// ListFriends returns the partners of every friendship of userID.
func (r *FriendRepo) ListFriends(ctx context.Context, userID string) ([]models.Friend, error) {
	friends := []models.Friend{}
	err := r.db.SelectContext(ctx, &friends, `SELECT u.id, u.display_name, u.username, f.since
        FROM friendships f
        JOIN users u ON u.id = CASE WHEN f.user_a=$1 THEN f.user_b ELSE f.user_a END
        WHERE f.user_a=$1 OR f.user_b=$1
        ORDER BY u.display_name, u.id`, userID)
	return friends, classify(err)
}

// ListPending returns pending requests sent or received by userID together
// with the profile of the other side.
func (r *FriendRepo) ListPending(ctx context.Context, userID string, direction models.Direction) ([]models.PendingRequest, error) {
	if !direction.Valid() {
		return nil, apperr.Invalid("direction must be sent or received")
	}
	self, other := "receiver_id", "sender_id"
	if direction == models.DirectionSent {
		self, other = "sender_id", "receiver_id"
	}

	pending := []models.PendingRequest{}
	err := r.db.SelectContext(ctx, &pending, `SELECT fr.id, fr.sender_id, fr.receiver_id, fr.message, fr.status, fr.created_at, fr.responded_at,
            u.id AS "counterpart.id", u.display_name AS "counterpart.display_name", u.username AS "counterpart.username"
        FROM friend_requests fr
        JOIN users u ON u.id = fr.`+other+`
        WHERE fr.`+self+`=$1 AND fr.status='pending'
        ORDER BY fr.created_at DESC`, userID)
	return pending, classify(err)
}

// AreFriends reports whether a friendship exists for the pair.
func (r *FriendRepo) AreFriends(ctx context.Context, userID, otherID string) (bool, error) {
	a, b := models.OrderedPair(userID, otherID)
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM friendships WHERE user_a=$1 AND user_b=$2)`, a, b)
	return exists, classify(err)
}

// NonFriends returns the candidates that are not friends with userID.
func (r *FriendRepo) NonFriends(ctx context.Context, userID string, candidates []string) ([]string, error) {
	missing := []string{}
	if len(candidates) == 0 {
		return missing, nil
	}
	err := r.db.SelectContext(ctx, &missing, `SELECT t.c FROM unnest($2::text[]) AS t(c)
        WHERE NOT EXISTS (
            SELECT 1 FROM friendships f
            WHERE (f.user_a=$1 AND f.user_b=t.c) OR (f.user_b=$1 AND f.user_a=t.c)
        )`, userID, pq.Array(candidates))
	return missing, classify(err)
}
