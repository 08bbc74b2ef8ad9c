package ratelimit

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

const (
	DefaultShards  = 64
	DefaultMaxKeys = 100_000
)

// MemoryStore keeps buckets in a table of independently locked shards.
// The number of tracked keys is bounded. A full shard first drops its expired
// buckets; when every bucket is still inside its window, new keys are refused
// until one expires. Active buckets are never evicted, so their counts cannot
// be reset by flooding the store with new keys.
type MemoryStore struct {
	shards      []*shard
	maxPerShard int
}

type shard struct {
	mu      sync.Mutex
	buckets map[string]*Bucket
}

type MemoryOption func(*memoryConfig)

type memoryConfig struct {
	shards  int
	maxKeys int
}

func WithShards(n int) MemoryOption {
	return func(c *memoryConfig) { c.shards = n }
}

func WithMaxKeys(n int) MemoryOption {
	return func(c *memoryConfig) { c.maxKeys = n }
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	cfg := memoryConfig{shards: DefaultShards, maxKeys: DefaultMaxKeys}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.shards < 1 {
		cfg.shards = 1
	}
	if cfg.maxKeys < cfg.shards {
		cfg.maxKeys = cfg.shards
	}

	s := &MemoryStore{
		shards:      make([]*shard, cfg.shards),
		maxPerShard: (cfg.maxKeys + cfg.shards - 1) / cfg.shards,
	}
	for i := range s.shards {
		s.shards[i] = &shard{buckets: make(map[string]*Bucket)}
	}
	return s
}

func (s *MemoryStore) Take(_ context.Context, key string, now time.Time, max int, window time.Duration) (bool, error) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	b, ok := sh.buckets[key]
	switch {
	case !ok:
		if len(sh.buckets) >= s.maxPerShard && sh.purgeExpired(now, window) == 0 {
			return false, nil
		}
		b = &Bucket{Key: key, WindowStart: now}
		sh.buckets[key] = b
	case now.Sub(b.WindowStart) >= window:
		b.WindowStart = now
		b.Count = 0
	}

	if b.Count >= max {
		return false, nil
	}
	b.Count++
	return true, nil
}

// Sweep removes every bucket whose window is over at now.
func (s *MemoryStore) Sweep(now time.Time, window time.Duration) int {
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		removed += sh.purgeExpired(now, window)
		sh.mu.Unlock()
	}
	return removed
}

// Len returns the number of tracked keys.
func (s *MemoryStore) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.buckets)
		sh.mu.Unlock()
	}
	return n
}

// Bucket returns a copy of the bucket tracked for key.
func (s *MemoryStore) Bucket(key string) (Bucket, bool) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	b, ok := sh.buckets[key]
	if !ok {
		return Bucket{}, false
	}
	return *b, true
}

func (s *MemoryStore) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

// purgeExpired must be called with the shard lock held.
func (sh *shard) purgeExpired(now time.Time, window time.Duration) int {
	removed := 0
	for key, b := range sh.buckets {
		if now.Sub(b.WindowStart) >= window {
			delete(sh.buckets, key)
			removed++
		}
	}
	return removed
}
