package workers

import (
	"context"
	"gigchat/contract"
	"gigchat/domain/event"
	"log/slog"
	"time"
)

const DefaultSinkTimeout = 2 * time.Second

// EventFanout delivers domain events to the live sessions subscribed to
// their conversation.
//
// Delivery is best effort: a sink that fails or does not accept the event
// within the sink timeout misses it. Events are handed to each sink in the
// order they were published.
type EventFanout struct {
	log         *slog.Logger
	events      <-chan event.DomainEvent
	registry    contract.IRegistry
	sinkTimeout time.Duration
}

func NewEventFanout(log *slog.Logger, events <-chan event.DomainEvent, registry contract.IRegistry, sinkTimeout time.Duration) *EventFanout {
	return &EventFanout{log: log, events: events, registry: registry, sinkTimeout: sinkTimeout}
}

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case evt, ok := <-w.events:
			if !ok {
				w.log.Debug("Event channel closed, stopping fanout")
				return nil
			}
			w.Fanout(ctx, evt)
		case <-ctx.Done():
			w.log.Debug("Context done, stopping fanout")
			return nil
		}
	}
}

// Fanout hands evt to every sink of its conversation. Sessions of a removed
// participant receive the removal, then stop listening.
func (w *EventFanout) Fanout(ctx context.Context, evt event.DomainEvent) {
	for _, sink := range w.registry.GetSinksForConversation(evt.ConversationID()) {
		w.deliver(ctx, sink, evt)
	}
	if removed, ok := evt.(event.ParticipantRemoved); ok {
		w.registry.RemoveUser(removed.Conversation, removed.UserID)
	}
}

func (w *EventFanout) deliver(ctx context.Context, sink contract.EventSink, evt event.DomainEvent) {
	sinkCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
	defer cancel()
	if err := sink.Consume(sinkCtx, evt); err != nil {
		w.log.Debug("Event not delivered", "conversation_id", evt.ConversationID(), "error", err)
	}
}
