package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"chat-backend/internal/models"
)

// MessageRepository defines interactions for private messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, senderID int, receiverID int, content string) (models.Message, error)
	ListConversation(ctx context.Context, userID int, otherID int) ([]models.Message, error)
	UnreadCountsBySender(ctx context.Context, userID int) (map[int]int, error)
}

// MessageRepo is a sqlx-backed implementation.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage stores a private message, unread, timestamped by the server.
func (r *MessageRepo) CreateMessage(ctx context.Context, senderID int, receiverID int, content string) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages (sender_id, receiver_id, content) VALUES ($1, $2, $3)
        RETURNING id, sender_id, receiver_id, content, read, created_at`, senderID, receiverID, content).
		StructScan(&msg)
	return msg, err
}

// ListConversation returns both directions of the conversation between
// userID and otherID ordered by creation time. Opening the conversation is
// the read contract: every unread message addressed to userID from otherID
// is flipped to read in the same transaction, before the select, so the
// returned rows already reflect it.
func (r *MessageRepo) ListConversation(ctx context.Context, userID int, otherID int) ([]models.Message, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE messages SET read = TRUE
        WHERE receiver_id=$1 AND sender_id=$2 AND read = FALSE`, userID, otherID); err != nil {
		return nil, err
	}

	var msgs []models.Message
	if err := tx.SelectContext(ctx, &msgs, `SELECT id, sender_id, receiver_id, content, read, created_at
        FROM messages
        WHERE (sender_id=$1 AND receiver_id=$2) OR (sender_id=$2 AND receiver_id=$1)
        ORDER BY created_at ASC`, userID, otherID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return msgs, nil
}

// UnreadCountsBySender counts unread messages addressed to userID, grouped
// by sender. Senders with nothing unread do not appear.
func (r *MessageRepo) UnreadCountsBySender(ctx context.Context, userID int) (map[int]int, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT sender_id, COUNT(*) FROM messages
        WHERE receiver_id=$1 AND read = FALSE GROUP BY sender_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[int]int{}
	for rows.Next() {
		var senderID, count int
		if err := rows.Scan(&senderID, &count); err != nil {
			return nil, err
		}
		counts[senderID] = count
	}
	return counts, rows.Err()
}
