package models

import "time"

// User mirrors a profile supplied by the identity provider.
type User struct {
	ID          string    `db:"id" json:"id"`
	DisplayName string    `db:"display_name" json:"display_name"`
	Username    string    `db:"username" json:"username"`
	Email       string    `db:"email" json:"email,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"-"`
	UpdatedAt   time.Time `db:"updated_at" json:"-"`
}

// Profile is the public projection of a user shown to other users.
type Profile struct {
	ID          string `db:"id" json:"id"`
	DisplayName string `db:"display_name" json:"display_name"`
	Username    string `db:"username" json:"username"`
}

func (u User) Profile() Profile {
	return Profile{ID: u.ID, DisplayName: u.DisplayName, Username: u.Username}
}
