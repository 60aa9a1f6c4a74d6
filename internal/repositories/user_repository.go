package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"chat-backend/internal/models"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrDuplicateUsername = errors.New("username already taken")
)

const pqUniqueViolation = "23505"

// UserRepository abstracts user and avatar profile persistence.
type UserRepository interface {
	CreateUser(ctx context.Context, username, passwordHash string) (models.User, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
	GetUserByID(ctx context.Context, userID int) (models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	IDsByUsernames(ctx context.Context, usernames []string) ([]int, error)
	SetAvatarKey(ctx context.Context, userID int, key string) error
	AvatarKey(ctx context.Context, userID int) (string, error)
	AvatarKeys(ctx context.Context) (map[int]string, error)
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// CreateUser inserts a new user. A username collision surfaces as
// ErrDuplicateUsername.
func (r *UserRepo) CreateUser(ctx context.Context, username, passwordHash string) (models.User, error) {
	var user models.User
	err := r.db.QueryRowxContext(ctx, `INSERT INTO users (username, password_hash) VALUES ($1, $2) RETURNING id, username, password_hash, created_at`, username, passwordHash).
		StructScan(&user)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return models.User{}, ErrDuplicateUsername
		}
		return models.User{}, err
	}
	return user, nil
}

// GetUserByUsername fetches a user by username.
func (r *UserRepo) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT id, username, password_hash, created_at FROM users WHERE username=$1`, username)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// GetUserByID fetches a user by id.
func (r *UserRepo) GetUserByID(ctx context.Context, userID int) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT id, username, password_hash, created_at FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// ListUsers returns every registered user.
func (r *UserRepo) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := r.db.SelectContext(ctx, &users, `SELECT id, username, password_hash, created_at FROM users ORDER BY id ASC`)
	return users, err
}

// IDsByUsernames resolves usernames to user ids. Unknown usernames are
// skipped silently, so the result may be shorter than the input.
func (r *UserRepo) IDsByUsernames(ctx context.Context, usernames []string) ([]int, error) {
	if len(usernames) == 0 {
		return nil, nil
	}
	var ids []int
	err := r.db.SelectContext(ctx, &ids, `SELECT id FROM users WHERE username = ANY($1) ORDER BY id ASC`, pq.Array(usernames))
	return ids, err
}

// SetAvatarKey stores the avatar object key, creating the profile row on
// first upload and overwriting any previous key afterwards.
func (r *UserRepo) SetAvatarKey(ctx context.Context, userID int, key string) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO profiles (user_id, avatar_key) VALUES ($1, $2)
        ON CONFLICT (user_id) DO UPDATE SET avatar_key = EXCLUDED.avatar_key`, userID, key)
	return err
}

// AvatarKey returns the stored avatar object key, or "" when the user has
// no profile or no avatar. It never fails on absence.
func (r *UserRepo) AvatarKey(ctx context.Context, userID int) (string, error) {
	var key string
	err := r.db.GetContext(ctx, &key, `SELECT avatar_key FROM profiles WHERE user_id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return key, err
}

// AvatarKeys returns the avatar key for every user that has one set.
func (r *UserRepo) AvatarKeys(ctx context.Context) (map[int]string, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT user_id, avatar_key FROM profiles WHERE avatar_key <> ''`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := map[int]string{}
	for rows.Next() {
		var userID int
		var key string
		if err := rows.Scan(&userID, &key); err != nil {
			return nil, err
		}
		keys[userID] = key
	}
	return keys, rows.Err()
}
