package services

import (
	"context"
	stderrors "errors"
	"fmt"
	"gigchat/domain"
	"gigchat/domain/event"
	"gigchat/domain/mimetypes"
	"gigchat/errors"
	"gigchat/repositories"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

const (
	// MaxMessagesPerFetch caps every message read.
	MaxMessagesPerFetch = 100
	DefaultPageSize     = 50
)

var validate = validator.New()

type IChatService interface {
	CreateConversation(ctx context.Context, cmd domain.CreateConversationCommand) (int64, error)
	GetConversation(ctx context.Context, conversationID int64) (domain.Conversation, error)
	DeleteConversation(ctx context.Context, conversationID int64) error
	AddParticipant(ctx context.Context, conversationID, userID int64, role string) (domain.Participant, error)
	UpdateParticipantRole(ctx context.Context, conversationID, userID int64, role string) (domain.Participant, error)
	RemoveParticipant(ctx context.Context, conversationID, userID int64) error
	ListParticipants(ctx context.Context, conversationID int64) ([]domain.Participant, error)
	IsParticipant(ctx context.Context, conversationID, userID int64) (bool, error)
	SendMessage(ctx context.Context, cmd domain.SendMessageCommand) (domain.Message, error)
	GetRecentMessages(ctx context.Context, conversationID int64, limit int) ([]domain.Message, error)
	GetMessages(ctx context.Context, conversationID int64, cursor *string, limit int) (domain.Page, error)
	MarkRead(ctx context.Context, conversationID, userID, messageID int64) (domain.Participant, error)
}

// ChatService applies the conversation rules on top of the repository and
// publishes what changed for live delivery.
type ChatService struct {
	repository repositories.IConversationRepository
	log        *slog.Logger
	events     chan<- event.DomainEvent
	now        func() time.Time
}

func NewChatService(log *slog.Logger, repository repositories.IConversationRepository, events chan<- event.DomainEvent) *ChatService {
	return &ChatService{repository: repository, log: log, events: events, now: time.Now}
}

func (s *ChatService) CreateConversation(_ context.Context, cmd domain.CreateConversationCommand) (int64, error) {
	if err := validate.Struct(cmd); err != nil {
		return 0, fmt.Errorf("%w: %v", errors.ErrInvalidInput, err)
	}
	conversation, err := s.repository.CreateConversation(cmd.IsGroup, cmd.Title, cmd.ParticipantUserIDs, s.now())
	if err != nil {
		return 0, err
	}
	s.log.Debug("Conversation created", "conversation_id", conversation.ID, "participants", len(cmd.ParticipantUserIDs))
	return conversation.ID, nil
}

func (s *ChatService) GetConversation(_ context.Context, conversationID int64) (domain.Conversation, error) {
	return s.repository.GetConversation(conversationID)
}

func (s *ChatService) DeleteConversation(_ context.Context, conversationID int64) error {
	return s.repository.DeleteConversation(conversationID)
}

// AddParticipant is idempotent: adding an existing participant returns it as
// stored and ignores role. Use UpdateParticipantRole to change a role.
func (s *ChatService) AddParticipant(_ context.Context, conversationID, userID int64, role string) (domain.Participant, error) {
	role, err := normalizeRole(role)
	if err != nil {
		return domain.Participant{}, err
	}
	participant, created, err := s.repository.AddParticipant(conversationID, userID, role, s.now())
	if err != nil {
		return domain.Participant{}, err
	}
	if created {
		s.log.Debug("Participant added", "conversation_id", conversationID, "user_id", userID, "role", role)
	}
	return participant, nil
}

func (s *ChatService) UpdateParticipantRole(_ context.Context, conversationID, userID int64, role string) (domain.Participant, error) {
	role, err := normalizeRole(role)
	if err != nil {
		return domain.Participant{}, err
	}
	return s.repository.UpdateParticipantRole(conversationID, userID, role)
}

func (s *ChatService) RemoveParticipant(ctx context.Context, conversationID, userID int64) error {
	if err := s.repository.RemoveParticipant(conversationID, userID); err != nil {
		return err
	}
	s.publish(ctx, event.ParticipantRemoved{Conversation: conversationID, UserID: userID, At: s.now()})
	return nil
}

func (s *ChatService) ListParticipants(_ context.Context, conversationID int64) ([]domain.Participant, error) {
	return s.repository.ListParticipants(conversationID)
}

func (s *ChatService) IsParticipant(_ context.Context, conversationID, userID int64) (bool, error) {
	_, err := s.repository.GetParticipant(conversationID, userID)
	switch {
	case err == nil:
		return true, nil
	case stderrors.Is(err, errors.ErrParticipantNotFound):
		return false, nil
	default:
		return false, err
	}
}

// SendMessage stores a message from a participant of the conversation and
// publishes it. The creation time is assigned here.
func (s *ChatService) SendMessage(ctx context.Context, cmd domain.SendMessageCommand) (domain.Message, error) {
	message, err := s.toMessage(cmd)
	if err != nil {
		return domain.Message{}, err
	}
	stored, err := s.repository.AppendMessage(message)
	if err != nil {
		return domain.Message{}, err
	}
	s.publish(ctx, event.MessagePosted{Message: stored})
	return stored, nil
}

// GetRecentMessages returns the newest messages first. At most
// MaxMessagesPerFetch are read; limit truncates them when positive.
func (s *ChatService) GetRecentMessages(_ context.Context, conversationID int64, limit int) ([]domain.Message, error) {
	messages, err := s.repository.GetMessages(conversationID, nil, MaxMessagesPerFetch)
	if err != nil {
		return nil, err
	}
	if limit > 0 && limit < len(messages) {
		messages = messages[:limit]
	}
	return messages, nil
}

// GetMessages pages through a conversation from the newest message. cursor
// is the NextCursor of the previous page, nil for the first one.
func (s *ChatService) GetMessages(_ context.Context, conversationID int64, cursor *string, limit int) (domain.Page, error) {
	var before *uint64
	if cursor != nil {
		seq, err := strconv.ParseUint(strings.TrimSpace(*cursor), 10, 64)
		if err != nil || seq == 0 {
			return domain.Page{}, fmt.Errorf("%w: %q", errors.ErrInvalidCursor, *cursor)
		}
		before = &seq
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	limit = min(limit, MaxMessagesPerFetch)

	// One extra message tells whether an older page exists
	messages, err := s.repository.GetMessages(conversationID, before, limit+1)
	if err != nil {
		return domain.Page{}, err
	}
	page := domain.Page{Messages: messages}
	if len(messages) > limit {
		page.Messages = messages[:limit]
		page.NextCursor = lo.ToPtr(strconv.FormatUint(page.Messages[limit-1].Seq, 10))
	}
	return page, nil
}

func (s *ChatService) MarkRead(_ context.Context, conversationID, userID, messageID int64) (domain.Participant, error) {
	return s.repository.MarkRead(conversationID, userID, messageID)
}

func (s *ChatService) toMessage(cmd domain.SendMessageCommand) (domain.Message, error) {
	if err := validate.Struct(cmd); err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrInvalidInput, err)
	}
	kind := strings.TrimSpace(cmd.Kind)
	if kind == "" {
		kind = domain.DefaultKind
	}

	message := domain.Message{
		ConversationID: cmd.ConversationID,
		SenderID:       cmd.SenderUserID,
		Body:           cmd.Body,
		AttachmentURL:  trimmed(cmd.AttachmentURL),
		Kind:           kind,
		CreatedAt:      s.now(),
	}
	if !message.HasContent() {
		return domain.Message{}, fmt.Errorf("%w: a message needs a body or an attachment", errors.ErrInvalidInput)
	}

	if cmd.AttachmentMime != nil {
		if message.AttachmentURL == nil {
			return domain.Message{}, fmt.Errorf("%w: attachment mime without attachment url", errors.ErrInvalidInput)
		}
		mime, ok := mimetypes.Canonical(*cmd.AttachmentMime)
		if !ok {
			return domain.Message{}, fmt.Errorf("%w: malformed attachment mime %q", errors.ErrInvalidInput, *cmd.AttachmentMime)
		}
		message.AttachmentMime = lo.ToPtr(string(mime))
	}
	return message, nil
}

// publish hands an event to live delivery without ever blocking the caller.
// Stored state is the reference: clients that miss an event can read it back.
func (s *ChatService) publish(ctx context.Context, e event.DomainEvent) {
	if s.events == nil {
		return
	}
	select {
	case s.events <- e:
	case <-ctx.Done():
	default:
		s.log.Warn("Event channel full, live delivery skipped", "conversation_id", e.ConversationID(), "event", fmt.Sprintf("%T", e))
	}
}

func normalizeRole(role string) (string, error) {
	role = strings.TrimSpace(role)
	if role == "" {
		return domain.DefaultRole, nil
	}
	if len([]rune(role)) > domain.MaxRoleLength {
		return "", fmt.Errorf("%w: role longer than %d characters", errors.ErrInvalidInput, domain.MaxRoleLength)
	}
	return role, nil
}

// trimmed returns nil for blank values.
func trimmed(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return lo.ToPtr(strings.TrimSpace(*s))
}
