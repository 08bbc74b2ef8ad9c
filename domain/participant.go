// Package domain contains core concepts of the chat system.
// This file defines Participant entities and related invariants.
// No runtime, network, or UI logic should be added here.
package domain

import "time"

const (
	DefaultRole   = "member"
	MaxRoleLength = 24
)

// Participant is the membership of a user in a conversation.
// There is at most one per (ConversationID, UserID).
type Participant struct {
	ConversationID    int64
	UserID            int64
	Role              string
	LastReadMessageID *int64
	JoinedAt          time.Time
}
