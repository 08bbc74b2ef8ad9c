package workers

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingSweeper struct{ calls atomic.Int32 }

func (s *countingSweeper) Sweep() int {
	s.calls.Add(1)
	return 1
}

type flakyKeys struct{ calls atomic.Int32 }

func (k *flakyKeys) Refresh(context.Context) error {
	if k.calls.Add(1) == 1 {
		return fmt.Errorf("key source down")
	}
	return nil
}

type countingPurger struct{ calls atomic.Int32 }

func (p *countingPurger) PurgeExpired(context.Context) (int, error) {
	p.calls.Add(1)
	return 0, nil
}

func TestBucketSweeper_SweepsOnEveryTick(t *testing.T) {
	req := require.New(t)
	sweeper := &countingSweeper{}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := NewBucketSweeper(slog.Default(), sweeper, 10*time.Millisecond).Run(ctx)

	req.NoError(err)
	req.GreaterOrEqual(sweeper.calls.Load(), int32(3))
}

func TestKeySetRefresher_RefreshesAtStartupAndKeepsGoingOnFailure(t *testing.T) {
	req := require.New(t)
	keys := &flakyKeys{}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	// Given a first refresh failing
	err := NewKeySetRefresher(slog.Default(), keys, 20*time.Millisecond).Run(ctx)

	// Then the worker did not stop on it
	req.NoError(err)
	req.GreaterOrEqual(keys.calls.Load(), int32(2))
}

func TestResetTokenPurger(t *testing.T) {
	req := require.New(t)
	purger := &countingPurger{}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	req.NoError(NewResetTokenPurger(slog.Default(), purger, 10*time.Millisecond).Run(ctx))
	req.GreaterOrEqual(purger.calls.Load(), int32(3))
}
