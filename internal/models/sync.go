package models

import "time"

// FriendGraph is the social state of one user: accepted friends plus the
// requests still waiting in either direction.
type FriendGraph struct {
	Friends         []Friend         `json:"friends"`
	PendingReceived []PendingRequest `json:"pending_received"`
	PendingSent     []PendingRequest `json:"pending_sent"`
}

// Snapshot is the full state of one user, returned by the resync fallback.
type Snapshot struct {
	Chats []ChatSummary `json:"chats"`
	FriendGraph
	SyncedAt time.Time `json:"synced_at"`
}
