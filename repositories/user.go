//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	stderrors "errors"
	"fmt"
	"gigchat/errors"
	"time"

	"github.com/dgraph-io/badger/v4"
)

type IUserRepository interface {
	CreateUser(email, hashedPassword string) (User, error)
	GetUser(id int64) (User, error)
	GetUserByEmail(email string) (User, error)
	UpdatePassword(id int64, hashedPassword string) error
	ListUsers() ([]User, error)
}

// UserRepository reads and writes the accounts chat operations refer to.
type UserRepository struct {
	db *badger.DB
	id *badger.Sequence
}

func NewUserRepository(db *badger.DB) (*UserRepository, error) {
	id, err := db.GetSequence([]byte(userSequence), sequenceBandwidth)
	if err != nil {
		return nil, fmt.Errorf("user sequence: %w", err)
	}
	return &UserRepository{db: db, id: id}, nil
}

func (u *UserRepository) Close() error {
	return u.id.Release()
}

// User is the repository view of an account. Emails are stored normalized.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash"`
	CreatedAt    time.Time `json:"createdAt"`
}

// CreateUser persists a user and returns it with its new id.
func (u *UserRepository) CreateUser(email, hashedPassword string) (User, error) {
	id, err := nextID(u.id)
	if err != nil {
		return User{}, err
	}
	user := User{ID: id, Email: email, PasswordHash: hashedPassword, CreatedAt: time.Now().UTC()}

	err = update(u.db, func(txn *badger.Txn) error {
		if _, err := txn.Get(emailKey(email)); err == nil {
			return errors.ErrUserAlreadyExists
		} else if !stderrors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(emailKey(email), userKey(id)); err != nil {
			return err
		}
		return setJSON(txn, userKey(id), user)
	})
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (u *UserRepository) GetUser(id int64) (User, error) {
	var user User
	err := u.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, userKey(id), &user)
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return User{}, errors.ErrUserNotFound
	}
	return user, err
}

func (u *UserRepository) GetUserByEmail(email string) (User, error) {
	var user User
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(emailKey(email))
		if err != nil {
			return err
		}
		key, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return getJSON(txn, key, &user)
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return User{}, errors.ErrUserNotFound
	}
	return user, err
}

func (u *UserRepository) UpdatePassword(id int64, hashedPassword string) error {
	return update(u.db, func(txn *badger.Txn) error {
		var user User
		if err := getJSON(txn, userKey(id), &user); err != nil {
			if stderrors.Is(err, badger.ErrKeyNotFound) {
				return errors.ErrUserNotFound
			}
			return err
		}
		user.PasswordHash = hashedPassword
		return setJSON(txn, userKey(id), user)
	})
}

// ListUsers returns every user ordered by id.
func (u *UserRepository) ListUsers() ([]User, error) {
	var users []User
	err := u.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte("user:")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var user User
			if err := it.Item().Value(func(val []byte) error { return unmarshal(val, &user) }); err != nil {
				return err
			}
			users = append(users, user)
		}
		return nil
	})
	return users, err
}
