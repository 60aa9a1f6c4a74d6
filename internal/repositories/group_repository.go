package repositories

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"chat-backend/internal/models"
)

var ErrGroupNotFound = errors.New("group not found")

// GroupRepository abstracts group and membership persistence. Membership is
// a set: add and remove are idempotent.
type GroupRepository interface {
	CreateGroup(ctx context.Context, creatorID int, name string, memberIDs []int) (models.Group, error)
	ListGroupsForUser(ctx context.Context, userID int) ([]models.Group, error)
	GetGroup(ctx context.Context, groupID int) (models.Group, error)
	MembersByGroups(ctx context.Context, groupIDs []int) (map[int][]models.User, error)
	IsMember(ctx context.Context, groupID int, userID int) (bool, error)
	AddMember(ctx context.Context, groupID int, userID int) error
	RemoveMember(ctx context.Context, groupID int, userID int) error
	DeleteGroup(ctx context.Context, groupID int) error
}

// GroupRepo is a sqlx implementation of GroupRepository.
type GroupRepo struct {
	db *sqlx.DB
}

// NewGroupRepo constructs a GroupRepo.
func NewGroupRepo(db *sqlx.DB) *GroupRepo {
	return &GroupRepo{db: db}
}

// CreateGroup creates a group and its members atomically. The creator is
// always part of the initial member set, whether or not listed in memberIDs.
func (r *GroupRepo) CreateGroup(ctx context.Context, creatorID int, name string, memberIDs []int) (models.Group, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Group{}, err
	}
	defer tx.Rollback()

	var group models.Group
	if err := tx.QueryRowxContext(ctx, `INSERT INTO groups (name, creator_id) VALUES ($1, $2)
        RETURNING id, name, creator_id, created_at`, name, creatorID).
		StructScan(&group); err != nil {
		return models.Group{}, err
	}

	memberSet := map[int]struct{}{creatorID: {}}
	for _, id := range memberIDs {
		memberSet[id] = struct{}{}
	}
	ids := make([]int, 0, len(memberSet))
	for id := range memberSet {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `INSERT INTO group_members (group_id, user_id) VALUES ($1, $2)`, group.ID, id); err != nil {
			return models.Group{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return models.Group{}, err
	}
	return group, nil
}

// ListGroupsForUser returns only the groups the user is a member of.
func (r *GroupRepo) ListGroupsForUser(ctx context.Context, userID int) ([]models.Group, error) {
	var groups []models.Group
	err := r.db.SelectContext(ctx, &groups, `SELECT g.id, g.name, g.creator_id, g.created_at
        FROM groups g INNER JOIN group_members gm ON gm.group_id = g.id
        WHERE gm.user_id=$1 ORDER BY g.created_at DESC`, userID)
	return groups, err
}

// GetGroup fetches a single group.
func (r *GroupRepo) GetGroup(ctx context.Context, groupID int) (models.Group, error) {
	var group models.Group
	err := r.db.GetContext(ctx, &group, `SELECT id, name, creator_id, created_at FROM groups WHERE id=$1`, groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Group{}, ErrGroupNotFound
	}
	return group, err
}

// MembersByGroups loads the member sets for the given groups in one query.
func (r *GroupRepo) MembersByGroups(ctx context.Context, groupIDs []int) (map[int][]models.User, error) {
	members := map[int][]models.User{}
	if len(groupIDs) == 0 {
		return members, nil
	}

	rows, err := r.db.QueryxContext(ctx, `SELECT gm.group_id, u.id, u.username, u.created_at
        FROM group_members gm INNER JOIN users u ON u.id = gm.user_id
        WHERE gm.group_id = ANY($1) ORDER BY u.id ASC`, pq.Array(groupIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var groupID int
		var user models.User
		if err := rows.Scan(&groupID, &user.ID, &user.Username, &user.CreatedAt); err != nil {
			return nil, err
		}
		members[groupID] = append(members[groupID], user)
	}
	return members, rows.Err()
}

// IsMember checks membership.
func (r *GroupRepo) IsMember(ctx context.Context, groupID int, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM group_members WHERE group_id=$1 AND user_id=$2)`, groupID, userID)
	return exists, err
}

// AddMember adds a user to the group. Adding an existing member is a no-op.
func (r *GroupRepo) AddMember(ctx context.Context, groupID int, userID int) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO group_members (group_id, user_id) VALUES ($1, $2)
        ON CONFLICT (group_id, user_id) DO NOTHING`, groupID, userID)
	return err
}

// RemoveMember removes a user from the group. Removing a non-member is a
// no-op.
func (r *GroupRepo) RemoveMember(ctx context.Context, groupID int, userID int) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM group_members WHERE group_id=$1 AND user_id=$2`, groupID, userID)
	return err
}

// DeleteGroup removes the group; membership and messages cascade.
func (r *GroupRepo) DeleteGroup(ctx context.Context, groupID int) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM groups WHERE id=$1`, groupID)
	return err
}
