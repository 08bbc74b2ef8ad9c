package services

import (
	"context"
	"fmt"
	"gigchat/domain"
	"gigchat/domain/event"
	"gigchat/errors"
	"gigchat/mocks"
	"gigchat/repositories"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func messagesWithSeqs(seqs ...uint64) []domain.Message {
	return lo.Map(seqs, func(seq uint64, _ int) domain.Message {
		return domain.Message{ID: int64(seq), ConversationID: 1, Seq: seq, Body: lo.ToPtr(fmt.Sprintf("m%d", seq))}
	})
}

func TestChatService_SendMessage(t *testing.T) {
	ctrl := gomock.NewController(t)
	repository := mocks.NewMockIConversationRepository(ctrl)
	events := make(chan event.DomainEvent, 1)
	svc := NewChatService(slog.Default(), repository, events)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	t.Run("should store with defaults and publish", func(t *testing.T) {
		req := require.New(t)
		repository.EXPECT().
			AppendMessage(gomock.Any()).
			DoAndReturn(func(m domain.Message) (domain.Message, error) {
				req.Equal(domain.DefaultKind, m.Kind)
				req.Equal(now, m.CreatedAt)
				req.Equal("image/png", *m.AttachmentMime)
				m.ID, m.Seq = 10, 1
				return m, nil
			})

		message, err := svc.SendMessage(context.Background(), domain.SendMessageCommand{
			ConversationID: 1,
			SenderUserID:   2,
			AttachmentURL:  lo.ToPtr(" https://cdn.example.com/a.png "),
			AttachmentMime: lo.ToPtr("IMAGE/PNG"),
		})

		req.NoError(err)
		req.Equal(int64(10), message.ID)
		req.Equal("https://cdn.example.com/a.png", *message.AttachmentURL)
		published := <-events
		req.Equal(event.MessagePosted{Message: message}, published)
	})

	t.Run("should keep vendor attachment types", func(t *testing.T) {
		req := require.New(t)
		repository.EXPECT().
			AppendMessage(gomock.Any()).
			DoAndReturn(func(m domain.Message) (domain.Message, error) {
				m.ID, m.Seq = 11, 2
				return m, nil
			})

		message, err := svc.SendMessage(context.Background(), domain.SendMessageCommand{
			ConversationID: 1,
			SenderUserID:   2,
			AttachmentURL:  lo.ToPtr("https://cdn.example.com/sheet"),
			AttachmentMime: lo.ToPtr("application/vnd.acme.sheet; version=2"),
		})

		req.NoError(err)
		req.Equal("application/vnd.acme.sheet", *message.AttachmentMime)
		<-events
	})

	t.Run("should reject invalid messages before storage", func(t *testing.T) {
		repository.EXPECT().AppendMessage(gomock.Any()).Times(0)
		tests := []struct {
			name string
			cmd  domain.SendMessageCommand
		}{
			{"no content", domain.SendMessageCommand{ConversationID: 1, SenderUserID: 2}},
			{"blank body", domain.SendMessageCommand{ConversationID: 1, SenderUserID: 2, Body: lo.ToPtr("   ")}},
			{"malformed mime", domain.SendMessageCommand{ConversationID: 1, SenderUserID: 2,
				AttachmentURL: lo.ToPtr("https://x/y"), AttachmentMime: lo.ToPtr("not a mime")}},
			{"mime without url", domain.SendMessageCommand{ConversationID: 1, SenderUserID: 2,
				Body: lo.ToPtr("hi"), AttachmentMime: lo.ToPtr("image/png")}},
			{"kind too long", domain.SendMessageCommand{ConversationID: 1, SenderUserID: 2,
				Body: lo.ToPtr("hi"), Kind: "a-kind-that-is-far-too-long-for-storage"}},
			{"missing sender", domain.SendMessageCommand{ConversationID: 1, Body: lo.ToPtr("hi")}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := svc.SendMessage(context.Background(), tt.cmd)
				require.ErrorIs(t, err, errors.ErrInvalidInput)
			})
		}
	})

	t.Run("should not publish when the sender is not a participant", func(t *testing.T) {
		req := require.New(t)
		repository.EXPECT().
			AppendMessage(gomock.Any()).
			Return(domain.Message{}, errors.ErrNotAParticipant)

		_, err := svc.SendMessage(context.Background(), domain.SendMessageCommand{ConversationID: 1, SenderUserID: 3, Body: lo.ToPtr("hi")})

		req.ErrorIs(err, errors.ErrNotAParticipant)
		req.Empty(events)
	})
}

func TestChatService_SendMessageNeverBlocksOnFullEventChannel(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	repository := mocks.NewMockIConversationRepository(ctrl)
	events := make(chan event.DomainEvent)
	svc := NewChatService(slog.Default(), repository, events)

	repository.EXPECT().AppendMessage(gomock.Any()).DoAndReturn(func(m domain.Message) (domain.Message, error) {
		return m, nil
	})

	_, err := svc.SendMessage(context.Background(), domain.SendMessageCommand{ConversationID: 1, SenderUserID: 2, Body: lo.ToPtr("hi")})

	req.NoError(err)
}

func TestChatService_GetRecentMessages(t *testing.T) {
	ctrl := gomock.NewController(t)
	repository := mocks.NewMockIConversationRepository(ctrl)
	svc := NewChatService(slog.Default(), repository, nil)

	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{"truncated to limit", 2, 2},
		{"limit above stored count", 50, 3},
		{"zero means the cap", 0, 3},
		{"negative means the cap", -1, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repository.EXPECT().
				GetMessages(int64(1), nil, MaxMessagesPerFetch).
				Return(messagesWithSeqs(3, 2, 1), nil)

			messages, err := svc.GetRecentMessages(context.Background(), 1, tt.limit)

			require.NoError(t, err)
			require.Len(t, messages, tt.want)
			require.Equal(t, uint64(3), messages[0].Seq)
		})
	}
}

func TestChatService_GetMessagesPages(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	repository := mocks.NewMockIConversationRepository(ctrl)
	svc := NewChatService(slog.Default(), repository, nil)

	// Given more messages than the page size
	repository.EXPECT().
		GetMessages(int64(1), nil, 3).
		Return(messagesWithSeqs(5, 4, 3), nil)

	page, err := svc.GetMessages(context.Background(), 1, nil, 2)
	req.NoError(err)
	req.Len(page.Messages, 2)
	req.Equal("4", *page.NextCursor)

	// When following the cursor to the last page
	repository.EXPECT().
		GetMessages(int64(1), lo.ToPtr(uint64(4)), 3).
		Return(messagesWithSeqs(3, 2), nil)

	page, err = svc.GetMessages(context.Background(), 1, page.NextCursor, 2)

	// Then there is no further cursor
	req.NoError(err)
	req.Len(page.Messages, 2)
	req.Nil(page.NextCursor)
}

func TestChatService_GetMessagesRejectsBadCursor(t *testing.T) {
	ctrl := gomock.NewController(t)
	repository := mocks.NewMockIConversationRepository(ctrl)
	svc := NewChatService(slog.Default(), repository, nil)

	for _, cursor := range []string{"", "abc", "-1", "0"} {
		t.Run(cursor, func(t *testing.T) {
			_, err := svc.GetMessages(context.Background(), 1, lo.ToPtr(cursor), 10)
			require.ErrorIs(t, err, errors.ErrInvalidCursor)
		})
	}
}

func TestChatService_GetMessagesDefaultAndCappedLimit(t *testing.T) {
	ctrl := gomock.NewController(t)
	repository := mocks.NewMockIConversationRepository(ctrl)
	svc := NewChatService(slog.Default(), repository, nil)

	repository.EXPECT().GetMessages(int64(1), nil, DefaultPageSize+1).Return(nil, nil)
	repository.EXPECT().GetMessages(int64(1), nil, MaxMessagesPerFetch+1).Return(nil, nil)

	_, err := svc.GetMessages(context.Background(), 1, nil, 0)
	require.NoError(t, err)
	_, err = svc.GetMessages(context.Background(), 1, nil, 1000)
	require.NoError(t, err)
}

func TestChatService_AddParticipant(t *testing.T) {
	ctrl := gomock.NewController(t)
	repository := mocks.NewMockIConversationRepository(ctrl)
	svc := NewChatService(slog.Default(), repository, nil)

	t.Run("should default the role", func(t *testing.T) {
		repository.EXPECT().
			AddParticipant(int64(1), int64(2), domain.DefaultRole, gomock.Any()).
			Return(domain.Participant{ConversationID: 1, UserID: 2, Role: domain.DefaultRole}, true, nil)

		participant, err := svc.AddParticipant(context.Background(), 1, 2, "  ")

		require.NoError(t, err)
		require.Equal(t, domain.DefaultRole, participant.Role)
	})

	t.Run("should reject a role longer than 24 characters", func(t *testing.T) {
		repository.EXPECT().AddParticipant(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		_, err := svc.AddParticipant(context.Background(), 1, 2, "an-extremely-long-role-name")

		require.ErrorIs(t, err, errors.ErrInvalidInput)
	})
}

func TestChatService_RemoveParticipantPublishes(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	repository := mocks.NewMockIConversationRepository(ctrl)
	events := make(chan event.DomainEvent, 1)
	svc := NewChatService(slog.Default(), repository, events)

	repository.EXPECT().RemoveParticipant(int64(1), int64(2)).Return(nil)

	req.NoError(svc.RemoveParticipant(context.Background(), 1, 2))

	removed, ok := (<-events).(event.ParticipantRemoved)
	req.True(ok)
	req.Equal(int64(2), removed.UserID)
	req.Equal(int64(1), removed.ConversationID())
}

func TestChatService_IsParticipant(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	repository := mocks.NewMockIConversationRepository(ctrl)
	svc := NewChatService(slog.Default(), repository, nil)

	repository.EXPECT().GetParticipant(int64(1), int64(2)).Return(domain.Participant{}, nil)
	repository.EXPECT().GetParticipant(int64(1), int64(3)).Return(domain.Participant{}, errors.ErrParticipantNotFound)
	repository.EXPECT().GetParticipant(int64(9), int64(2)).Return(domain.Participant{}, errors.ErrConversationNotFound)

	ok, err := svc.IsParticipant(context.Background(), 1, 2)
	req.NoError(err)
	req.True(ok)
	ok, err = svc.IsParticipant(context.Background(), 1, 3)
	req.NoError(err)
	req.False(ok)
	_, err = svc.IsParticipant(context.Background(), 9, 2)
	req.ErrorIs(err, errors.ErrConversationNotFound)
}

func TestChatService_CreateConversationRejectsLongTitle(t *testing.T) {
	ctrl := gomock.NewController(t)
	repository := mocks.NewMockIConversationRepository(ctrl)
	svc := NewChatService(slog.Default(), repository, nil)

	title := lo.ToPtr(string(make([]rune, domain.MaxTitleLength+1)))
	_, err := svc.CreateConversation(context.Background(), domain.CreateConversationCommand{Title: title})

	require.ErrorIs(t, err, errors.ErrInvalidInput)
}

// Scenario: users 1 and 2 chat, user 3 is not part of the conversation.
func TestChatService_EndToEnd(t *testing.T) {
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	defer db.Close()

	users, err := repositories.NewUserRepository(db)
	req.NoError(err)
	defer users.Close()
	conversations, err := repositories.NewConversationRepository(db, slog.Default())
	req.NoError(err)
	defer conversations.Close()

	for _, email := range []string{"u1@example.com", "u2@example.com", "u3@example.com"} {
		_, err = users.CreateUser(email, "hash")
		req.NoError(err)
	}

	events := make(chan event.DomainEvent, 10)
	svc := NewChatService(slog.Default(), conversations, events)
	ctx := context.Background()

	id, err := svc.CreateConversation(ctx, domain.CreateConversationCommand{ParticipantUserIDs: []int64{1, 2}})
	req.NoError(err)

	_, err = svc.SendMessage(ctx, domain.SendMessageCommand{ConversationID: id, SenderUserID: 1, Body: lo.ToPtr("hi")})
	req.NoError(err)
	_, err = svc.SendMessage(ctx, domain.SendMessageCommand{ConversationID: id, SenderUserID: 2, Body: lo.ToPtr("hey")})
	req.NoError(err)

	recent, err := svc.GetRecentMessages(ctx, id, 0)
	req.NoError(err)
	req.Equal([]string{"hey", "hi"}, lo.Map(recent, func(m domain.Message, _ int) string { return *m.Body }))

	_, err = svc.SendMessage(ctx, domain.SendMessageCommand{ConversationID: id, SenderUserID: 3, Body: lo.ToPtr("intrude")})
	req.ErrorIs(err, errors.ErrNotAParticipant)

	// Adding an existing participant with another role changes nothing
	participant, err := svc.AddParticipant(ctx, id, 2, "admin")
	req.NoError(err)
	req.Equal(domain.DefaultRole, participant.Role)

	participant, err = svc.UpdateParticipantRole(ctx, id, 2, "admin")
	req.NoError(err)
	req.Equal("admin", participant.Role)

	req.Len(events, 2)
}
