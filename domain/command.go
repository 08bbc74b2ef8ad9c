package domain

type CreateConversationCommand struct {
	IsGroup            bool
	Title              *string `validate:"omitempty,max=200"`
	ParticipantUserIDs []int64 `validate:"dive,gt=0"`
}

type SendMessageCommand struct {
	ConversationID int64   `validate:"gt=0"`
	SenderUserID   int64   `validate:"gt=0"`
	Body           *string `validate:"omitempty,max=10000"`
	AttachmentURL  *string `validate:"omitempty,max=2048"`
	AttachmentMime *string `validate:"omitempty,max=100"`
	Kind           string  `validate:"max=24"`
}

// Page is a slice of messages, newest first, and the cursor to pass to get
// the next (older) one. NextCursor is nil on the last page.
type Page struct {
	Messages   []Message
	NextCursor *string
}
