//go:generate go run go.uber.org/mock/mockgen -source=conversation.go -destination=../mocks/mock_conversation_repository.go -package=mocks
package repositories

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"gigchat/domain"
	"gigchat/errors"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
)

type IConversationRepository interface {
	CreateConversation(isGroup bool, title *string, participantUserIDs []int64, at time.Time) (domain.Conversation, error)
	GetConversation(id int64) (domain.Conversation, error)
	DeleteConversation(id int64) error
	AddParticipant(conversationID, userID int64, role string, at time.Time) (domain.Participant, bool, error)
	UpdateParticipantRole(conversationID, userID int64, role string) (domain.Participant, error)
	RemoveParticipant(conversationID, userID int64) error
	GetParticipant(conversationID, userID int64) (domain.Participant, error)
	ListParticipants(conversationID int64) ([]domain.Participant, error)
	AppendMessage(message domain.Message) (domain.Message, error)
	GetMessages(conversationID int64, beforeSeq *uint64, limit int) ([]domain.Message, error)
	MarkRead(conversationID, userID, messageID int64) (domain.Participant, error)
}

// ConversationRepository stores conversations, their participants and their
// messages in BadgerDB.
type ConversationRepository struct {
	db             *badger.DB
	log            *slog.Logger
	conversationID *badger.Sequence
	messageID      *badger.Sequence
	locks          conversationLocks
}

func NewConversationRepository(db *badger.DB, log *slog.Logger) (*ConversationRepository, error) {
	conversationID, err := db.GetSequence([]byte(conversationSequence), sequenceBandwidth)
	if err != nil {
		return nil, fmt.Errorf("conversation sequence: %w", err)
	}
	messageID, err := db.GetSequence([]byte(messageSequence), sequenceBandwidth)
	if err != nil {
		_ = conversationID.Release()
		return nil, fmt.Errorf("message sequence: %w", err)
	}
	return &ConversationRepository{db: db, log: log, conversationID: conversationID, messageID: messageID}, nil
}

// Close returns the unused leased ids to the database.
func (r *ConversationRepository) Close() error {
	return stderrors.Join(r.conversationID.Release(), r.messageID.Release())
}

type diskConversation struct {
	ID        int64   `json:"id"`
	IsGroup   bool    `json:"isGroup"`
	Title     *string `json:"title,omitempty"`
	CreatedAt int64   `json:"createdAt"`
}

type diskParticipant struct {
	ConversationID    int64  `json:"conversationId"`
	UserID            int64  `json:"userId"`
	Role              string `json:"role"`
	LastReadMessageID *int64 `json:"lastReadMessageId,omitempty"`
	JoinedAt          int64  `json:"joinedAt"`
}

type diskMessage struct {
	ID             int64   `json:"id"`
	ConversationID int64   `json:"conversationId"`
	Seq            uint64  `json:"seq"`
	SenderID       int64   `json:"senderId"`
	Body           *string `json:"body,omitempty"`
	AttachmentURL  *string `json:"attachmentUrl,omitempty"`
	AttachmentMime *string `json:"attachmentMime,omitempty"`
	Kind           string  `json:"kind"`
	CreatedAt      int64   `json:"createdAt"`
}

// head tracks the last message of a conversation.
type head struct {
	Seq    uint64 `json:"seq"`
	LastAt int64  `json:"lastAt"`
}

type messageRef struct {
	ConversationID int64  `json:"conversationId"`
	Seq            uint64 `json:"seq"`
}

// CreateConversation persists a conversation and its initial participants.
// Every participant must be a known user; duplicates are ignored.
func (r *ConversationRepository) CreateConversation(isGroup bool, title *string, participantUserIDs []int64, at time.Time) (domain.Conversation, error) {
	id, err := nextID(r.conversationID)
	if err != nil {
		return domain.Conversation{}, err
	}
	conversation := domain.Conversation{ID: id, IsGroup: isGroup, Title: title, CreatedAt: at.UTC()}

	err = update(r.db, func(txn *badger.Txn) error {
		for _, userID := range lo.Uniq(participantUserIDs) {
			if err := exists(txn, userKey(userID), errors.ErrUserNotFound); err != nil {
				return fmt.Errorf("%w: %d", err, userID)
			}
			participant := domain.Participant{ConversationID: id, UserID: userID, Role: domain.DefaultRole, JoinedAt: at.UTC()}
			if err := setJSON(txn, participantKey(id, userID), fromParticipant(participant)); err != nil {
				return err
			}
		}
		return setJSON(txn, conversationKey(id), fromConversation(conversation))
	})
	if err != nil {
		return domain.Conversation{}, err
	}
	return conversation, nil
}

func (r *ConversationRepository) GetConversation(id int64) (domain.Conversation, error) {
	var disk diskConversation
	err := r.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, conversationKey(id), &disk)
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return domain.Conversation{}, errors.ErrConversationNotFound
	}
	if err != nil {
		return domain.Conversation{}, err
	}
	return toConversation(disk), nil
}

// DeleteConversation removes a conversation with its participants and messages.
//
// Messages go first, in chunks. The last transaction removes the
// participants, the head and the conversation itself. Every transaction
// reads the conversation and its head, so a concurrent write to either
// makes it retry.
func (r *ConversationRepository) DeleteConversation(id int64) error {
	unlock := r.locks.lock(id)
	defer unlock()

	removed := 0
	for done := false; !done; {
		var count int
		err := update(r.db, func(txn *badger.Txn) error {
			keys, last, err := r.deletionChunk(txn, id)
			if err != nil {
				return err
			}
			for _, key := range keys {
				if err := txn.Delete(key); err != nil {
					return err
				}
			}
			count, done = len(keys), last
			return nil
		})
		if err != nil {
			return err
		}
		removed += count
	}
	r.log.Debug("Conversation deleted", "conversation_id", id, "keys", removed)
	return nil
}

// deletionChunk returns the next keys to delete and whether they are the
// last ones of the conversation.
func (r *ConversationRepository) deletionChunk(txn *badger.Txn, id int64) ([][]byte, bool, error) {
	if err := exists(txn, conversationKey(id), errors.ErrConversationNotFound); err != nil {
		return nil, false, err
	}
	if _, err := txn.Get(headKey(id)); err != nil && !stderrors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, err
	}

	options := badger.DefaultIteratorOptions
	options.PrefetchValues = false
	it := txn.NewIterator(options)
	defer it.Close()

	var keys [][]byte
	messages := 0
	prefix := messagePrefix(id)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		if messages == deleteChunkSize {
			return keys, false, nil
		}
		var disk diskMessage
		if err := it.Item().Value(func(val []byte) error { return unmarshal(val, &disk) }); err != nil {
			return nil, false, err
		}
		keys = append(keys, it.Item().KeyCopy(nil), messageIDKey(disk.ID))
		messages++
	}

	prefix = participantPrefix(id)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	return append(keys, headKey(id), conversationKey(id)), true, nil
}

// AddParticipant adds userID to the conversation. When the user already is a
// participant, the stored row is returned untouched and created is false.
func (r *ConversationRepository) AddParticipant(conversationID, userID int64, role string, at time.Time) (domain.Participant, bool, error) {
	unlock := r.locks.lock(conversationID)
	defer unlock()

	var participant domain.Participant
	var created bool
	err := update(r.db, func(txn *badger.Txn) error {
		created = false
		if err := exists(txn, conversationKey(conversationID), errors.ErrConversationNotFound); err != nil {
			return err
		}
		if err := exists(txn, userKey(userID), errors.ErrUserNotFound); err != nil {
			return err
		}

		var disk diskParticipant
		err := getJSON(txn, participantKey(conversationID, userID), &disk)
		if err == nil {
			participant = toParticipant(disk)
			return nil
		}
		if !stderrors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		participant = domain.Participant{ConversationID: conversationID, UserID: userID, Role: role, JoinedAt: at.UTC()}
		created = true
		return setJSON(txn, participantKey(conversationID, userID), fromParticipant(participant))
	})
	if err != nil {
		return domain.Participant{}, false, err
	}
	return participant, created, nil
}

func (r *ConversationRepository) UpdateParticipantRole(conversationID, userID int64, role string) (domain.Participant, error) {
	var participant domain.Participant
	err := update(r.db, func(txn *badger.Txn) error {
		disk, err := r.participant(txn, conversationID, userID, errors.ErrParticipantNotFound)
		if err != nil {
			return err
		}
		disk.Role = role
		participant = toParticipant(disk)
		return setJSON(txn, participantKey(conversationID, userID), disk)
	})
	return participant, err
}

func (r *ConversationRepository) RemoveParticipant(conversationID, userID int64) error {
	return update(r.db, func(txn *badger.Txn) error {
		if _, err := r.participant(txn, conversationID, userID, errors.ErrParticipantNotFound); err != nil {
			return err
		}
		return txn.Delete(participantKey(conversationID, userID))
	})
}

func (r *ConversationRepository) GetParticipant(conversationID, userID int64) (domain.Participant, error) {
	var participant domain.Participant
	err := r.db.View(func(txn *badger.Txn) error {
		disk, err := r.participant(txn, conversationID, userID, errors.ErrParticipantNotFound)
		participant = toParticipant(disk)
		return err
	})
	return participant, err
}

// ListParticipants returns the participants ordered by user id.
func (r *ConversationRepository) ListParticipants(conversationID int64) ([]domain.Participant, error) {
	var participants []domain.Participant
	err := r.db.View(func(txn *badger.Txn) error {
		if err := exists(txn, conversationKey(conversationID), errors.ErrConversationNotFound); err != nil {
			return err
		}
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := participantPrefix(conversationID)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var disk diskParticipant
			if err := it.Item().Value(func(val []byte) error { return unmarshal(val, &disk) }); err != nil {
				return err
			}
			participants = append(participants, toParticipant(disk))
		}
		return nil
	})
	return participants, err
}

// AppendMessage stores a message sent by a current participant.
//
// The membership check and the insert share one transaction: a concurrent
// removal of the sender makes one of the two fail with a conflict, and the
// retry then observes the committed state. Seq is the next value of the
// conversation head and CreatedAt never goes below the previous message's.
// Appends to one conversation are serialized.
func (r *ConversationRepository) AppendMessage(message domain.Message) (domain.Message, error) {
	id, err := nextID(r.messageID)
	if err != nil {
		return domain.Message{}, err
	}
	message.ID = id

	unlock := r.locks.lock(message.ConversationID)
	defer unlock()

	var stored domain.Message
	err = update(r.db, func(txn *badger.Txn) error {
		if err := exists(txn, conversationKey(message.ConversationID), errors.ErrConversationNotFound); err != nil {
			return err
		}
		if err := exists(txn, userKey(message.SenderID), errors.ErrUserNotFound); err != nil {
			return err
		}
		if err := exists(txn, participantKey(message.ConversationID, message.SenderID), errors.ErrNotAParticipant); err != nil {
			return err
		}

		var h head
		err := getJSON(txn, headKey(message.ConversationID), &h)
		if err != nil && !stderrors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		h.Seq++
		at := message.CreatedAt.UTC().UnixNano()
		if at < h.LastAt {
			at = h.LastAt
		}
		h.LastAt = at

		stored = message
		stored.Seq = h.Seq
		stored.CreatedAt = time.Unix(0, at).UTC()

		if err := setJSON(txn, messageKey(stored.ConversationID, stored.Seq), fromMessage(stored)); err != nil {
			return err
		}
		ref := messageRef{ConversationID: stored.ConversationID, Seq: stored.Seq}
		if err := setJSON(txn, messageIDKey(stored.ID), ref); err != nil {
			return err
		}
		return setJSON(txn, headKey(stored.ConversationID), h)
	})
	if err != nil {
		return domain.Message{}, err
	}
	return stored, nil
}

// GetMessages returns up to limit messages, newest first, starting strictly
// before beforeSeq when it is set.
func (r *ConversationRepository) GetMessages(conversationID int64, beforeSeq *uint64, limit int) ([]domain.Message, error) {
	var messages []domain.Message
	err := r.db.View(func(txn *badger.Txn) error {
		if err := exists(txn, conversationKey(conversationID), errors.ErrConversationNotFound); err != nil {
			return err
		}
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		prefix := messagePrefix(conversationID)
		var seekKey []byte
		switch beforeSeq {
		case nil:
			// Past the newest possible key, then walk back
			seekKey = append(bytes.Clone(prefix), []byte("9999999999999999999")...)
		default:
			seekKey = messageKey(conversationID, *beforeSeq)
		}

		it.Seek(seekKey)
		if beforeSeq != nil && it.ValidForPrefix(prefix) && bytes.Equal(it.Item().Key(), seekKey) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix) && len(messages) < limit; it.Next() {
			var disk diskMessage
			if err := it.Item().Value(func(val []byte) error { return unmarshal(val, &disk) }); err != nil {
				return err
			}
			messages = append(messages, toMessage(disk))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// MarkRead moves the last read marker of a participant forward to messageID.
// Marking an older message than the current marker is a no-op.
func (r *ConversationRepository) MarkRead(conversationID, userID, messageID int64) (domain.Participant, error) {
	var participant domain.Participant
	err := update(r.db, func(txn *badger.Txn) error {
		disk, err := r.participant(txn, conversationID, userID, errors.ErrNotAParticipant)
		if err != nil {
			return err
		}

		var ref messageRef
		if err := getJSON(txn, messageIDKey(messageID), &ref); err != nil {
			if stderrors.Is(err, badger.ErrKeyNotFound) {
				return errors.ErrMessageNotFound
			}
			return err
		}
		if ref.ConversationID != conversationID {
			return errors.ErrMessageNotFound
		}

		if disk.LastReadMessageID != nil {
			var current messageRef
			err := getJSON(txn, messageIDKey(*disk.LastReadMessageID), &current)
			if err != nil && !stderrors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			if err == nil && current.Seq >= ref.Seq {
				participant = toParticipant(disk)
				return nil
			}
		}

		disk.LastReadMessageID = lo.ToPtr(messageID)
		participant = toParticipant(disk)
		return setJSON(txn, participantKey(conversationID, userID), disk)
	})
	return participant, err
}

// participant reads a participant row of an existing conversation.
func (r *ConversationRepository) participant(txn *badger.Txn, conversationID, userID int64, notFound error) (diskParticipant, error) {
	if err := exists(txn, conversationKey(conversationID), errors.ErrConversationNotFound); err != nil {
		return diskParticipant{}, err
	}
	var disk diskParticipant
	err := getJSON(txn, participantKey(conversationID, userID), &disk)
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return diskParticipant{}, notFound
	}
	return disk, err
}

func fromConversation(c domain.Conversation) diskConversation {
	return diskConversation{ID: c.ID, IsGroup: c.IsGroup, Title: c.Title, CreatedAt: c.CreatedAt.UnixNano()}
}

func toConversation(d diskConversation) domain.Conversation {
	return domain.Conversation{ID: d.ID, IsGroup: d.IsGroup, Title: d.Title, CreatedAt: time.Unix(0, d.CreatedAt).UTC()}
}

func fromParticipant(p domain.Participant) diskParticipant {
	return diskParticipant{
		ConversationID:    p.ConversationID,
		UserID:            p.UserID,
		Role:              p.Role,
		LastReadMessageID: p.LastReadMessageID,
		JoinedAt:          p.JoinedAt.UnixNano(),
	}
}

func toParticipant(d diskParticipant) domain.Participant {
	return domain.Participant{
		ConversationID:    d.ConversationID,
		UserID:            d.UserID,
		Role:              d.Role,
		LastReadMessageID: d.LastReadMessageID,
		JoinedAt:          time.Unix(0, d.JoinedAt).UTC(),
	}
}

func fromMessage(m domain.Message) diskMessage {
	return diskMessage{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Seq:            m.Seq,
		SenderID:       m.SenderID,
		Body:           m.Body,
		AttachmentURL:  m.AttachmentURL,
		AttachmentMime: m.AttachmentMime,
		Kind:           m.Kind,
		CreatedAt:      m.CreatedAt.UnixNano(),
	}
}

func toMessage(d diskMessage) domain.Message {
	return domain.Message{
		ID:             d.ID,
		ConversationID: d.ConversationID,
		Seq:            d.Seq,
		SenderID:       d.SenderID,
		Body:           d.Body,
		AttachmentURL:  d.AttachmentURL,
		AttachmentMime: d.AttachmentMime,
		Kind:           d.Kind,
		CreatedAt:      time.Unix(0, d.CreatedAt).UTC(),
	}
}
