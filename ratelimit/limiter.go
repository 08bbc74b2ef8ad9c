//go:generate go run go.uber.org/mock/mockgen -source=limiter.go -destination=../mocks/mock_bucket_store.go -package=mocks
package ratelimit

import (
	"context"
	"log/slog"
	"time"
)

// Bucket is the admission count of one key within its current window.
type Bucket struct {
	Key         string
	WindowStart time.Time
	Count       int
}

// IBucketStore holds fixed-window buckets. Take admits one request for key
// when the window allows it, resetting the window lazily once it is over.
// A rejected request never increments the count.
type IBucketStore interface {
	Take(ctx context.Context, key string, now time.Time, max int, window time.Duration) (bool, error)
}

// Sweeper is implemented by stores that need expired buckets removed.
type Sweeper interface {
	Sweep(now time.Time, window time.Duration) int
}

// Limiter admits at most max requests per key per window.
type Limiter struct {
	store  IBucketStore
	log    *slog.Logger
	max    int
	window time.Duration
	now    func() time.Time
}

type Option func(*Limiter)

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func NewLimiter(log *slog.Logger, store IBucketStore, max int, window time.Duration, opts ...Option) *Limiter {
	l := &Limiter{store: store, log: log, max: max, window: window, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow reports whether a request for key is admitted. Store failures reject.
func (l *Limiter) Allow(ctx context.Context, key string) bool {
	allowed, err := l.store.Take(ctx, key, l.now(), l.max, l.window)
	if err != nil {
		l.log.Warn("Rate limit store failed, rejecting", "key", key, "error", err)
		return false
	}
	if !allowed {
		l.log.Debug("Rate limit exceeded", "key", key, "max", l.max, "window", l.window)
	}
	return allowed
}

// Sweep drops the buckets whose window is over. It returns how many were
// removed, zero for stores that expire buckets on their own.
func (l *Limiter) Sweep() int {
	sweeper, ok := l.store.(Sweeper)
	if !ok {
		return 0
	}
	return sweeper.Sweep(l.now(), l.window)
}
