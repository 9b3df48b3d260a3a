package model

import "time"

type Group struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

type GroupMember struct {
	UserID   string    `db:"user_id" json:"userId"`
	GroupID  string    `db:"group_id" json:"groupId"`
	JoinedAt time.Time `db:"joined_at" json:"joinedAt"`
}
