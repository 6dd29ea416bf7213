package models

import "time"

// Chat is a direct or group conversation.
type Chat struct {
	ID            int64      `db:"id" json:"id"`
	IsGroup       bool       `db:"is_group" json:"is_group"`
	GroupName     *string    `db:"group_name" json:"group_name,omitempty"`
	CreatedBy     string     `db:"created_by" json:"created_by"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	LastMessageAt *time.Time `db:"last_message_at" json:"last_message_at,omitempty"`
	Participants  []Profile  `db:"-" json:"participants,omitempty"`
}

// HasParticipant reports whether userID is among the loaded participants.
func (c Chat) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p.ID == userID {
			return true
		}
	}
	return false
}

// ChatDigest is the raw per-chat aggregate loaded in one batched pass for a viewer.
type ChatDigest struct {
	Chat        Chat
	LastMessage *Message
	UnreadCount int
}

// ChatSummary is the chat-list view model rendered for one viewer.
type ChatSummary struct {
	ChatID             int64      `json:"chat_id"`
	IsGroup            bool       `json:"is_group"`
	DisplayName        string     `json:"display_name"`
	LastMessagePreview string     `json:"last_message_preview"`
	LastMessageAt      *time.Time `json:"last_message_at,omitempty"`
	UnreadCount        int        `json:"unread_count"`
}
