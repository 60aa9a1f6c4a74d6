package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"chat-backend/internal/models"
)

// GroupMessageRepository defines interactions for group messages and their
// per-member read-by sets.
type GroupMessageRepository interface {
	CreateGroupMessage(ctx context.Context, groupID int, senderID int, content string) (models.GroupMessage, error)
	ListGroupMessages(ctx context.Context, groupID int, readerID int) ([]models.GroupMessage, error)
	UnreadCountsByGroup(ctx context.Context, userID int) (map[int]int, error)
}

// GroupMessageRepo is a sqlx-backed implementation.
type GroupMessageRepo struct {
	db *sqlx.DB
}

// NewGroupMessageRepo constructs a GroupMessageRepo.
func NewGroupMessageRepo(db *sqlx.DB) *GroupMessageRepo {
	return &GroupMessageRepo{db: db}
}

// CreateGroupMessage persists a group message. The sender is not added to
// the read-by set.
func (r *GroupMessageRepo) CreateGroupMessage(ctx context.Context, groupID int, senderID int, content string) (models.GroupMessage, error) {
	var msg models.GroupMessage
	err := r.db.QueryRowxContext(ctx, `INSERT INTO group_messages (group_id, sender_id, content) VALUES ($1, $2, $3)
        RETURNING id, group_id, sender_id, content, created_at`, groupID, senderID, content).
		StructScan(&msg)
	return msg, err
}

// ListGroupMessages returns the group's messages ordered by creation time.
// Viewing is the read contract: the reader is added to the read-by set of
// every message they did not send, in the same transaction. The insert uses
// ON CONFLICT DO NOTHING, so repeated views and concurrent readers only ever
// grow the set.
func (r *GroupMessageRepo) ListGroupMessages(ctx context.Context, groupID int, readerID int) ([]models.GroupMessage, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO group_message_reads (message_id, user_id)
        SELECT id, $2 FROM group_messages WHERE group_id=$1 AND sender_id <> $2
        ON CONFLICT (message_id, user_id) DO NOTHING`, groupID, readerID); err != nil {
		return nil, err
	}

	var msgs []models.GroupMessage
	if err := tx.SelectContext(ctx, &msgs, `SELECT id, group_id, sender_id, content, created_at
        FROM group_messages WHERE group_id=$1 ORDER BY created_at ASC`, groupID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return msgs, nil
}

// UnreadCountsByGroup counts, for every group the user belongs to, the
// messages sent by others that the user has not seen. Groups with nothing
// unread are present with a zero count.
func (r *GroupMessageRepo) UnreadCountsByGroup(ctx context.Context, userID int) (map[int]int, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT gm.group_id, COUNT(m.id)
        FROM group_members gm
        LEFT JOIN group_messages m
          ON m.group_id = gm.group_id
         AND m.sender_id <> gm.user_id
         AND NOT EXISTS (
             SELECT 1 FROM group_message_reads r
             WHERE r.message_id = m.id AND r.user_id = gm.user_id)
        WHERE gm.user_id=$1
        GROUP BY gm.group_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[int]int{}
	for rows.Next() {
		var groupID, count int
		if err := rows.Scan(&groupID, &count); err != nil {
			return nil, err
		}
		counts[groupID] = count
	}
	return counts, rows.Err()
}
