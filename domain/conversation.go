// Package domain contains core concepts of the chat system.
// This file defines conversations.
package domain

import "time"

const MaxTitleLength = 200

// Conversation is a direct (two people) or group exchange of messages.
type Conversation struct {
	ID        int64
	IsGroup   bool
	Title     *string
	CreatedAt time.Time
}
