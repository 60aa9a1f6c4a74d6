package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

var ErrTokenNotFound = errors.New("token not found")

// TokenRepository stores opaque session tokens, at most one per user.
type TokenRepository interface {
	GetOrCreate(ctx context.Context, userID int, candidate string) (string, error)
	UserIDByToken(ctx context.Context, token string) (int, error)
}

// TokenRepo is a sqlx implementation of TokenRepository.
type TokenRepo struct {
	db *sqlx.DB
}

// NewTokenRepo constructs a TokenRepo.
func NewTokenRepo(db *sqlx.DB) *TokenRepo {
	return &TokenRepo{db: db}
}

// GetOrCreate stores candidate as the user's token unless one already
// exists, and returns whichever token is current. Re-issuing never creates
// a second row.
func (r *TokenRepo) GetOrCreate(ctx context.Context, userID int, candidate string) (string, error) {
	if _, err := r.db.ExecContext(ctx, `INSERT INTO auth_tokens (user_id, token) VALUES ($1, $2)
        ON CONFLICT (user_id) DO NOTHING`, userID, candidate); err != nil {
		return "", err
	}
	var token string
	err := r.db.GetContext(ctx, &token, `SELECT token FROM auth_tokens WHERE user_id=$1`, userID)
	return token, err
}

// UserIDByToken resolves a token to the owning user id.
func (r *TokenRepo) UserIDByToken(ctx context.Context, token string) (int, error) {
	var userID int
	err := r.db.GetContext(ctx, &userID, `SELECT user_id FROM auth_tokens WHERE token=$1`, token)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrTokenNotFound
	}
	return userID, err
}
