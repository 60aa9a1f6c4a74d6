package models

import "time"

// Group is a named collection of users with shared messaging. CreatorID
// is nullable so a group row can outlive its creator account.
type Group struct {
	ID        int       `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatorID *int      `db:"creator_id" json:"creator_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// GroupSummary is the API-facing shape of a group including its member set.
type GroupSummary struct {
	Group
	Members []UserView `json:"members"`
}

// GroupMessage is a message sent in a group. Which members have seen it is
// tracked in a separate read-by set that only ever grows.
type GroupMessage struct {
	ID        int       `db:"id" json:"id"`
	GroupID   int       `db:"group_id" json:"group_id"`
	SenderID  int       `db:"sender_id" json:"sender_id"`
	Content   string    `db:"content" json:"content"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
