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

// UserRepository stores the profiles mirrored from the identity provider.
type UserRepository interface {
	UpsertProfile(ctx context.Context, user models.User) (models.User, error)
	GetByID(ctx context.Context, userID string) (models.User, error)
	GetByUsername(ctx context.Context, username string) (models.User, error)
	BulkProfiles(ctx context.Context, userIDs []string) (map[string]models.Profile, error)
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// UpsertProfile inserts the user or refreshes its profile fields. The id is immutable.
func (r *UserRepo) UpsertProfile(ctx context.Context, user models.User) (models.User, error) {
	var out models.User
	err := r.db.GetContext(ctx, &out, `INSERT INTO users (id, display_name, username, email)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (id) DO UPDATE SET
            display_name = EXCLUDED.display_name,
            username = EXCLUDED.username,
            email = EXCLUDED.email,
            updated_at = NOW()
        RETURNING id, display_name, username, email, created_at, updated_at`,
		user.ID, user.DisplayName, user.Username, user.Email)
	if isUniqueViolation(err) {
		return models.User{}, apperr.Wrap(apperr.New(apperr.KindConflict, "USERNAME_TAKEN", "username already taken"), err)
	}
	return out, classify(err)
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, userID string) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT id, display_name, username, email, created_at, updated_at FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, apperr.ErrUserNotFound
	}
	return user, classify(err)
}

// GetByUsername resolves a unique handle to a user.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT id, display_name, username, email, created_at, updated_at FROM users WHERE username=$1`, username)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, apperr.ErrUserNotFound
	}
	return user, classify(err)
}

// BulkProfiles loads the public profiles of several users in one query.
func (r *UserRepo) BulkProfiles(ctx context.Context, userIDs []string) (map[string]models.Profile, error) {
	out := make(map[string]models.Profile, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	var profiles []models.Profile
	if err := r.db.SelectContext(ctx, &profiles, `SELECT id, display_name, username FROM users WHERE id = ANY($1)`, pq.Array(userIDs)); err != nil {
		return nil, classify(err)
	}
	for _, p := range profiles {
		out[p.ID] = p
	}
	return out, nil
}
