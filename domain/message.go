// Package domain contains core concepts of the chat system.
// This file defines Message events and related rules.
// Messages are immutable once stored.
package domain

import (
	"strings"
	"time"
)

const (
	DefaultKind   = "text"
	MaxKindLength = 24
)

// Message is a stored chat message. Messages of a conversation are ordered
// by (CreatedAt, Seq); Seq is assigned at insertion and breaks ties.
type Message struct {
	ID             int64
	ConversationID int64
	Seq            uint64
	SenderID       int64
	Body           *string
	AttachmentURL  *string
	AttachmentMime *string
	Kind           string
	CreatedAt      time.Time
}

// HasContent reports whether the message carries a non-blank body or an attachment.
func (m Message) HasContent() bool {
	return !isBlank(m.Body) || !isBlank(m.AttachmentURL)
}

func isBlank(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}
