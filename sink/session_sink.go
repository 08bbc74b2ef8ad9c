package sink

import (
	"context"
	"gigchat/domain/event"
	"gigchat/errors"
)

// SessionSink buffers the events of one live session until its connection
// writer takes them. A full buffer drops events instead of stalling the
// fanout.
type SessionSink struct {
	events chan event.DomainEvent
}

func NewSessionSink(bufferSize int) *SessionSink {
	return &SessionSink{events: make(chan event.DomainEvent, bufferSize)}
}

func (s *SessionSink) Consume(ctx context.Context, e event.DomainEvent) error {
	select {
	case s.events <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return errors.ErrSinkFull
	}
}

// Events is drained by the connection writer.
func (s *SessionSink) Events() <-chan event.DomainEvent {
	return s.events
}
