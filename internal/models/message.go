package models

import "time"

type MessageType string

const (
	MessageText   MessageType = "text"
	MessageImage  MessageType = "image"
	MessageVideo  MessageType = "video"
	MessageSystem MessageType = "system"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageVideo, MessageSystem:
		return true
	}
	return false
}

// HasMedia reports whether the type carries a media reference.
func (t MessageType) HasMedia() bool {
	return t == MessageImage || t == MessageVideo
}

// Message is a chat message. Expiry is never stored; it is derived from
// ViewCount, MaxViews, ViewedBy and DisappearAfterSeconds.
type Message struct {
	ID                    int64         `db:"id" json:"id"`
	ChatID                int64         `db:"chat_id" json:"chat_id"`
	SenderID              string        `db:"sender_id" json:"sender_id"`
	Content               string        `db:"content" json:"content"`
	Type                  MessageType   `db:"type" json:"type"`
	MediaRef              *string       `db:"media_ref" json:"media_ref,omitempty"`
	CreatedAt             time.Time     `db:"created_at" json:"created_at"`
	MaxViews              *int          `db:"max_views" json:"max_views,omitempty"`
	DisappearAfterSeconds *int          `db:"disappear_after_seconds" json:"disappear_after_seconds,omitempty"`
	ViewCount             int           `db:"view_count" json:"view_count"`
	ViewedBy              []MessageView `db:"-" json:"viewed_by,omitempty"`
}

// ViewOf returns the recorded view of userID, if any.
func (m Message) ViewOf(userID string) (MessageView, bool) {
	for _, v := range m.ViewedBy {
		if v.UserID == userID {
			return v, true
		}
	}
	return MessageView{}, false
}

// MessageView records the first time a user viewed a message.
type MessageView struct {
	MessageID int64     `db:"message_id" json:"-"`
	UserID    string    `db:"user_id" json:"user_id"`
	ViewedAt  time.Time `db:"viewed_at" json:"viewed_at"`
}

// NewMessage carries the validated input of sendMessage.
type NewMessage struct {
	ChatID                int64
	SenderID              string
	Content               string
	Type                  MessageType
	MediaRef              *string
	MaxViews              *int
	DisappearAfterSeconds *int
}

// ViewResult reports the outcome of recordView. Recorded is false when the
// viewer had already been counted.
type ViewResult struct {
	Message  Message
	Recorded bool
}

// VisibleMessage is a message projected for one viewer.
type VisibleMessage struct {
	ID                    int64         `json:"id"`
	ChatID                int64         `json:"chat_id"`
	SenderID              string        `json:"sender_id"`
	Type                  MessageType   `json:"type"`
	Content               string        `json:"content"`
	MediaRef              *string       `json:"media_ref,omitempty"`
	MediaURL              string        `json:"media_url,omitempty"`
	CreatedAt             time.Time     `json:"created_at"`
	MaxViews              *int          `json:"max_views,omitempty"`
	DisappearAfterSeconds *int          `json:"disappear_after_seconds,omitempty"`
	ViewCount             int           `json:"view_count"`
	Expired               bool          `json:"expired"`
	Viewed                bool          `json:"viewed"`
	ExpiresAt             *time.Time    `json:"expires_at,omitempty"`
	ViewedBy              []MessageView `json:"viewed_by,omitempty"`
}
