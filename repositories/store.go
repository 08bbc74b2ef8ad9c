package repositories

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Key layout. Ids are zero padded so that keys sort numerically.
//
//	conv:{conv}                 conversation
//	conv:{conv}:head            last seq and creation time of its messages
//	part:{conv}:{user}          participant
//	msg:{conv}:{seq}            message
//	msgid:{id}                  conv and seq of a message
//	user:{id}                   user
//	email:{email}               user id
//	reset:{hash}                password reset token
const (
	conversationSequence = "seq:conversation"
	messageSequence      = "seq:message"
	userSequence         = "seq:user"
	sequenceBandwidth    = 100

	conversationLockStripes = 64
	deleteChunkSize         = 500

	maxTxnRetries = 10
	retryBaseWait = 2 * time.Millisecond
	retryMaxWait  = 50 * time.Millisecond
)

func conversationKey(id int64) []byte { return fmt.Appendf(nil, "conv:%019d", id) }
func headKey(id int64) []byte         { return fmt.Appendf(nil, "conv:%019d:head", id) }
func participantPrefix(conv int64) []byte {
	return fmt.Appendf(nil, "part:%019d:", conv)
}
func participantKey(conv, user int64) []byte {
	return fmt.Appendf(nil, "part:%019d:%019d", conv, user)
}
func messagePrefix(conv int64) []byte { return fmt.Appendf(nil, "msg:%019d:", conv) }
func messageKey(conv int64, seq uint64) []byte {
	return fmt.Appendf(nil, "msg:%019d:%019d", conv, seq)
}
func messageIDKey(id int64) []byte     { return fmt.Appendf(nil, "msgid:%019d", id) }
func userKey(id int64) []byte          { return fmt.Appendf(nil, "user:%019d", id) }
func emailKey(email string) []byte     { return []byte("email:" + email) }
func resetTokenKey(hash string) []byte { return []byte("reset:" + hash) }

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return unmarshal(val, v)
	})
}

func unmarshal(val []byte, v any) error {
	if err := json.Unmarshal(val, v); err != nil {
		return fmt.Errorf("unmarshal failed: %w", err)
	}
	return nil
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	return txn.Set(key, data)
}

// exists maps badger.ErrKeyNotFound to notFound.
func exists(txn *badger.Txn, key []byte, notFound error) error {
	_, err := txn.Get(key)
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return notFound
	}
	return err
}

// update runs fn in a read-write transaction, retrying when a concurrent
// transaction committed a write to a key fn read.
func update(db *badger.DB, fn func(txn *badger.Txn) error) error {
	var err error
	wait := retryBaseWait
	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		err = db.Update(fn)
		if !stderrors.Is(err, badger.ErrConflict) {
			return err
		}
		time.Sleep(wait)
		wait = min(wait*2, retryMaxWait)
	}
	return err
}

// conversationLocks serializes writers of one conversation. Appends all
// rewrite the conversation head, so without it they would keep conflicting
// with each other.
type conversationLocks struct {
	stripes [conversationLockStripes]sync.Mutex
}

func (l *conversationLocks) lock(conversationID int64) func() {
	mu := &l.stripes[uint64(conversationID)%conversationLockStripes]
	mu.Lock()
	return mu.Unlock
}

// nextID draws from a badger sequence. Sequences start at zero, ids at one.
func nextID(seq *badger.Sequence) (int64, error) {
	n, err := seq.Next()
	if err != nil {
		return 0, err
	}
	return int64(n) + 1, nil
}
