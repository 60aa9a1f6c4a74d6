package models

import "time"

// User is a registered identity.
type User struct {
	ID           int       `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Profile holds the optional per-user avatar reference. At most one row
// exists per user, enforced by a unique constraint on user_id.
type Profile struct {
	ID        int    `db:"id" json:"id"`
	UserID    int    `db:"user_id" json:"user_id"`
	AvatarKey string `db:"avatar_key" json:"-"`
}

// UserView is the API-facing shape of a user, with the avatar resolved
// to an absolute URL (empty when no avatar is set).
type UserView struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}
