package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// takeScript admits a request when the counter is below ARGV[1]. The window
// starts with the first admission: the key expires ARGV[2] ms later.
var takeScript = redis.NewScript(`
local count = tonumber(redis.call('GET', KEYS[1]) or '0')
if count >= tonumber(ARGV[1]) then
	return 0
end
count = redis.call('INCR', KEYS[1])
if count == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 1
`)

// RedisStore shares buckets between instances through Redis.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

type RedisOption func(*RedisStore)

func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.prefix = strings.Trim(prefix, ":") }
}

func NewRedisStore(rdb *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{rdb: rdb, prefix: "ratelimit"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Take ignores now: windows are measured by the Redis key expiry.
func (s *RedisStore) Take(ctx context.Context, key string, _ time.Time, max int, window time.Duration) (bool, error) {
	if max <= 0 {
		return false, nil
	}
	admitted, err := takeScript.Run(ctx, s.rdb, []string{s.prefix + ":" + key}, max, window.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("rate limit script: %w", err)
	}
	return admitted == 1, nil
}
