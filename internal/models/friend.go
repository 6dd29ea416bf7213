package models

import "time"

type FriendRequestStatus string

const (
	FriendRequestPending  FriendRequestStatus = "pending"
	FriendRequestAccepted FriendRequestStatus = "accepted"
	FriendRequestRejected FriendRequestStatus = "rejected"
)

// Decision is the receiver's answer to a pending request.
type Decision string

const (
	DecisionAccept Decision = "accept"
	DecisionReject Decision = "reject"
)

func (d Decision) Valid() bool {
	return d == DecisionAccept || d == DecisionReject
}

// Direction selects which side of pending requests to list.
type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

func (d Direction) Valid() bool {
	return d == DirectionSent || d == DirectionReceived
}

// FriendRequest is a request between two users. Status moves from pending
// to accepted or rejected exactly once.
type FriendRequest struct {
	ID          int64               `db:"id" json:"id"`
	SenderID    string              `db:"sender_id" json:"sender_id"`
	ReceiverID  string              `db:"receiver_id" json:"receiver_id"`
	Message     *string             `db:"message" json:"message,omitempty"`
	Status      FriendRequestStatus `db:"status" json:"status"`
	CreatedAt   time.Time           `db:"created_at" json:"created_at"`
	RespondedAt *time.Time          `db:"responded_at" json:"responded_at,omitempty"`
}

// PendingRequest is a request joined with the profile of the other side.
type PendingRequest struct {
	FriendRequest
	Counterpart Profile `json:"counterpart"`
}

// Friendship is the symmetric relation materialized from an accepted request.
// UserA always sorts before UserB.
type Friendship struct {
	UserA     string    `db:"user_a" json:"user_a"`
	UserB     string    `db:"user_b" json:"user_b"`
	Since     time.Time `db:"since" json:"since"`
	RequestID int64     `db:"request_id" json:"request_id"`
}

// Friend is a friendship partner with display metadata.
type Friend struct {
	Profile
	Since  time.Time `db:"since" json:"since"`
	Online bool      `db:"-" json:"online"`
}

// OrderedPair returns the two ids sorted, the canonical key of an unordered pair.
func OrderedPair(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}
