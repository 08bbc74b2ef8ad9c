package workers

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper drops expired rate limit buckets.
type Sweeper interface {
	Sweep() int
}

// BucketSweeper periodically removes the buckets of finished windows from
// an in-memory rate limiter.
type BucketSweeper struct {
	log      *slog.Logger
	sweeper  Sweeper
	interval time.Duration
}

func NewBucketSweeper(log *slog.Logger, sweeper Sweeper, interval time.Duration) *BucketSweeper {
	return &BucketSweeper{log: log, sweeper: sweeper, interval: interval}
}

func (w *BucketSweeper) Run(ctx context.Context) error {
	return every(ctx, w.interval, func() {
		if removed := w.sweeper.Sweep(); removed > 0 {
			w.log.Debug("Rate limit buckets swept", "removed", removed)
		}
	})
}

// KeyRefresher reloads signing keys.
type KeyRefresher interface {
	Refresh(ctx context.Context) error
}

// KeySetRefresher loads the signing keys at startup and then every interval,
// so that handshakes rarely wait for the key source.
type KeySetRefresher struct {
	log      *slog.Logger
	keys     KeyRefresher
	interval time.Duration
}

func NewKeySetRefresher(log *slog.Logger, keys KeyRefresher, interval time.Duration) *KeySetRefresher {
	return &KeySetRefresher{log: log, keys: keys, interval: interval}
}

func (w *KeySetRefresher) Run(ctx context.Context) error {
	refresh := func() {
		// Failures keep the previous keys; handshakes will retry on demand
		if err := w.keys.Refresh(ctx); err != nil && ctx.Err() == nil {
			w.log.Warn("Key set prefetch failed", "error", err)
		}
	}
	refresh()
	return every(ctx, w.interval, refresh)
}

// TokenPurger deletes expired password reset tokens.
type TokenPurger interface {
	PurgeExpired(ctx context.Context) (int, error)
}

type ResetTokenPurger struct {
	log      *slog.Logger
	purger   TokenPurger
	interval time.Duration
}

func NewResetTokenPurger(log *slog.Logger, purger TokenPurger, interval time.Duration) *ResetTokenPurger {
	return &ResetTokenPurger{log: log, purger: purger, interval: interval}
}

func (w *ResetTokenPurger) Run(ctx context.Context) error {
	return every(ctx, w.interval, func() {
		if _, err := w.purger.PurgeExpired(ctx); err != nil {
			w.log.Warn("Reset token purge failed", "error", err)
		}
	})
}

// every calls fn on each tick until ctx is done.
func every(ctx context.Context, interval time.Duration, fn func()) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fn()
		}
	}
}
