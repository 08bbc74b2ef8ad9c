package event

import (
	"gigchat/domain"
	"time"
)

// DomainEvent is published after a conversation changed.
type DomainEvent interface {
	ConversationID() int64
}

type MessagePosted struct {
	Message domain.Message
}

func (m MessagePosted) ConversationID() int64 {
	return m.Message.ConversationID
}

type ParticipantRemoved struct {
	Conversation int64
	UserID       int64
	At           time.Time
}

func (p ParticipantRemoved) ConversationID() int64 {
	return p.Conversation
}
