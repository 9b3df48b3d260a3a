package model

import "time"

type User struct {
	ID             string    `db:"id" json:"id"`
	Username       string    `db:"username" json:"username"`
	ProfilePicture *string   `db:"profile_picture" json:"profilePicture,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}
