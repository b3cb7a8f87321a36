package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore shares counters across instances using INCR with a PEXPIRE set
// when a window opens.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore constructs a RedisStore using the given key prefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ratelimit:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Hit(ctx context.Context, key string, length time.Duration, now time.Time) (int, time.Time, error) {
	redisKey := s.prefix + key
	count, err := s.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return 0, time.Time{}, err
	}
	if count == 1 {
		if err := s.client.PExpire(ctx, redisKey, length).Err(); err != nil {
			return 0, time.Time{}, err
		}
		return 1, now.Add(length), nil
	}
	ttl, err := s.client.PTTL(ctx, redisKey).Result()
	if err != nil {
		return 0, time.Time{}, err
	}
	if ttl < 0 {
		// Counter without expiry, e.g. the PEXPIRE after INCR never ran.
		if err := s.client.PExpire(ctx, redisKey, length).Err(); err != nil {
			return 0, time.Time{}, err
		}
		ttl = length
	}
	return int(count), now.Add(ttl), nil
}
