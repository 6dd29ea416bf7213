package models

import "time"

// DomainEvent is published to the message broker for downstream consumers
// such as push notification delivery.
type DomainEvent struct {
	Name       string            `json:"name"`
	OccurredAt time.Time         `json:"occurred_at"`
	ActorID    string            `json:"actor_id"`
	Recipients []string          `json:"recipients"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

const (
	EventFriendRequestCreated  = "friend_request.created"
	EventFriendRequestAccepted = "friend_request.accepted"
	EventFriendRequestRejected = "friend_request.rejected"
	EventMessageCreated        = "message.created"
	EventChatCreated           = "chat.created"
)
