package apicache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "apicache:"

// RedisStore shares entries across instances. Entries expire in redis with
// their TTL; tag sets track the keys written under each tag.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore constructs a RedisStore using the given key prefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) entryKey(key string) string { return s.prefix + "entry:" + key }
func (s *RedisStore) tagKey(tag string) string   { return s.prefix + "tag:" + tag }

func (s *RedisStore) Get(ctx context.Context, key string) (Entry, error) {
	raw, err := s.client.Get(ctx, s.entryKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, ErrMiss
	}
	if err != nil {
		return Entry{}, err
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Entry{}, fmt.Errorf("apicache: decode entry: %w", err)
	}
	return entry, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, entry Entry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.entryKey(key), raw, entry.TTL)
		for _, tag := range entry.Tags {
			pipe.SAdd(ctx, s.tagKey(tag), key)
			pipe.PExpire(ctx, s.tagKey(tag), entry.TTL)
		}
		return nil
	})
	return err
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, s.entryKey(k))
	}
	return s.client.Del(ctx, full...).Err()
}

func (s *RedisStore) InvalidateTag(ctx context.Context, tag string) (int, error) {
	keys, err := s.client.SMembers(ctx, s.tagKey(tag)).Result()
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, s.entryKey(k))
	}
	var removed *redis.IntCmd
	if _, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.Del(ctx, full...)
		pipe.Del(ctx, s.tagKey(tag))
		return nil
	}); err != nil {
		return 0, err
	}
	return int(removed.Val()), nil
}

func (s *RedisStore) InvalidatePattern(ctx context.Context, pattern string) (int, error) {
	var (
		cursor uint64
		total  int
	)
	match := s.entryKey(pattern)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, match, 200).Result()
		if err != nil {
			return total, err
		}
		if len(keys) > 0 {
			n, err := s.client.Del(ctx, keys...).Result()
			if err != nil {
				return total, err
			}
			total += int(n)
		}
		cursor = next
		if cursor == 0 {
			return total, nil
		}
	}
}
