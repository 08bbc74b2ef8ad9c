//go:generate go run go.uber.org/mock/mockgen -source=reset_token.go -destination=../mocks/mock_reset_token_repository.go -package=mocks
package repositories

import (
	stderrors "errors"
	"gigchat/errors"
	"time"

	"github.com/dgraph-io/badger/v4"
)

type IResetTokenRepository interface {
	Save(token ResetToken) error
	Consume(tokenHash string, now time.Time) (ResetToken, error)
	PurgeExpired(now time.Time) (int, error)
}

// ResetToken is a password reset grant. Only the hash of the token handed
// to the user is stored.
type ResetToken struct {
	TokenHash string    `json:"tokenHash"`
	UserID    int64     `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
	Used      bool      `json:"used"`
}

type ResetTokenRepository struct {
	db *badger.DB
}

func NewResetTokenRepository(db *badger.DB) *ResetTokenRepository {
	return &ResetTokenRepository{db: db}
}

func (r *ResetTokenRepository) Save(token ResetToken) error {
	return update(r.db, func(txn *badger.Txn) error {
		return setJSON(txn, resetTokenKey(token.TokenHash), token)
	})
}

// Consume marks a token used and returns it. Unknown, used and expired
// tokens all fail with ErrInvalidResetToken.
func (r *ResetTokenRepository) Consume(tokenHash string, now time.Time) (ResetToken, error) {
	var token ResetToken
	err := update(r.db, func(txn *badger.Txn) error {
		if err := getJSON(txn, resetTokenKey(tokenHash), &token); err != nil {
			if stderrors.Is(err, badger.ErrKeyNotFound) {
				return errors.ErrInvalidResetToken
			}
			return err
		}
		if token.Used || !now.Before(token.ExpiresAt) {
			return errors.ErrInvalidResetToken
		}
		token.Used = true
		return setJSON(txn, resetTokenKey(tokenHash), token)
	})
	if err != nil {
		return ResetToken{}, err
	}
	return token, nil
}

// PurgeExpired deletes tokens that expired before now, used or not.
func (r *ResetTokenRepository) PurgeExpired(now time.Time) (int, error) {
	var expired [][]byte
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte("reset:")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var token ResetToken
			if err := it.Item().Value(func(val []byte) error { return unmarshal(val, &token) }); err != nil {
				return err
			}
			if token.ExpiresAt.Before(now) {
				expired = append(expired, it.Item().KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil || len(expired) == 0 {
		return 0, err
	}

	batch := r.db.NewWriteBatch()
	defer batch.Cancel()
	for _, key := range expired {
		if err := batch.Delete(key); err != nil {
			return 0, err
		}
	}
	if err := batch.Flush(); err != nil {
		return 0, err
	}
	return len(expired), nil
}
