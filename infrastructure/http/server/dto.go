package server

import (
	"gigchat/domain"
	"time"

	"github.com/samber/lo"
)

type createConversationRequest struct {
	IsGroup            bool    `json:"isGroup"`
	Title              *string `json:"title"`
	ParticipantUserIDs []int64 `json:"participantUserIds"`
}

type addParticipantRequest struct {
	UserID int64  `json:"userId" binding:"required,gt=0"`
	Role   string `json:"role"`
}

type updateRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

type sendMessageRequest struct {
	SenderUserID   int64   `json:"senderUserId" binding:"required,gt=0"`
	Body           *string `json:"body"`
	AttachmentURL  *string `json:"attachmentUrl"`
	AttachmentMime *string `json:"attachmentMime"`
	Kind           string  `json:"kind"`
}

type markReadRequest struct {
	UserID    int64 `json:"userId" binding:"required,gt=0"`
	MessageID int64 `json:"messageId" binding:"required,gt=0"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

type idResponse struct {
	ID int64 `json:"id"`
}

type conversationResponse struct {
	ID        int64     `json:"id"`
	IsGroup   bool      `json:"isGroup"`
	Title     *string   `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
}

type participantResponse struct {
	ConversationID    int64     `json:"conversationId"`
	UserID            int64     `json:"userId"`
	Role              string    `json:"role"`
	LastReadMessageID *int64    `json:"lastReadMessageId"`
	JoinedAt          time.Time `json:"joinedAt"`
}

type messageResponse struct {
	ID             int64     `json:"id"`
	SenderUserID   int64     `json:"senderUserId"`
	Body           *string   `json:"body"`
	AttachmentURL  *string   `json:"attachmentUrl"`
	AttachmentMime *string   `json:"attachmentMime"`
	Kind           string    `json:"kind"`
	CreatedAt      time.Time `json:"createdAt"`
}

type pageResponse struct {
	Messages   []messageResponse `json:"messages"`
	NextCursor *string           `json:"nextCursor"`
}

func toConversationResponse(c domain.Conversation) conversationResponse {
	return conversationResponse{ID: c.ID, IsGroup: c.IsGroup, Title: c.Title, CreatedAt: c.CreatedAt}
}

func toParticipantResponse(p domain.Participant) participantResponse {
	return participantResponse{
		ConversationID:    p.ConversationID,
		UserID:            p.UserID,
		Role:              p.Role,
		LastReadMessageID: p.LastReadMessageID,
		JoinedAt:          p.JoinedAt,
	}
}

func toParticipantResponses(participants []domain.Participant) []participantResponse {
	return lo.Map(participants, func(p domain.Participant, _ int) participantResponse {
		return toParticipantResponse(p)
	})
}

func toMessageResponse(m domain.Message) messageResponse {
	return messageResponse{
		ID:             m.ID,
		SenderUserID:   m.SenderID,
		Body:           m.Body,
		AttachmentURL:  m.AttachmentURL,
		AttachmentMime: m.AttachmentMime,
		Kind:           m.Kind,
		CreatedAt:      m.CreatedAt,
	}
}

// toMessageResponses encodes an empty history as [] rather than null.
func toMessageResponses(messages []domain.Message) []messageResponse {
	return lo.Map(messages, func(m domain.Message, _ int) messageResponse {
		return toMessageResponse(m)
	})
}
