package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient captures the subset of redis.Client used by the backend.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	TxPipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)
	FlushDB(ctx context.Context) *redis.StatusCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

var errRedisUnavailable = errors.New("redis cache client unavailable")

type redisBackend struct {
	client RedisClient
	prefix string
}

func newRedisBackend(client RedisClient, prefix string) Backend {
	return &redisBackend{
		client: client,
		prefix: prefix,
	}
}

func (s *redisBackend) Driver() Driver {
	return DriverRedis
}

func (s *redisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s.client == nil {
		return nil, false, errRedisUnavailable
	}
	value, err := s.client.Get(ctx, s.cacheKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	// Bytes aliases the reply string; hand out a private copy.
	return cloneBytes(value), true, nil
}

func (s *redisBackend) Set(ctx context.Context, key string, value []byte) error {
	if s.client == nil {
		return errRedisUnavailable
	}
	return s.client.Set(ctx, s.cacheKey(key), value, 0).Err()
}

func (s *redisBackend) Increment(ctx context.Context, key string) (int64, error) {
	if s.client == nil {
		return 0, errRedisUnavailable
	}
	return s.client.Incr(ctx, s.cacheKey(key)).Result()
}

func (s *redisBackend) Push(ctx context.Context, entries ...ListEntry) error {
	if s.client == nil {
		return errRedisUnavailable
	}
	switch len(entries) {
	case 0:
		return nil
	case 1:
		return s.client.RPush(ctx, s.cacheKey(entries[0].Key), entries[0].Value).Err()
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, entry := range entries {
			pipe.RPush(ctx, s.cacheKey(entry.Key), entry.Value)
		}
		return nil
	})
	return err
}

func (s *redisBackend) Range(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	if s.client == nil {
		return nil, errRedisUnavailable
	}
	values, err := s.client.LRange(ctx, s.cacheKey(key), start, stop).Result()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, len(values))
	for _, v := range values {
		out = append(out, []byte(v))
	}
	return out, nil
}

func (s *redisBackend) Flush(ctx context.Context) error {
	if s.client == nil {
		return errRedisUnavailable
	}
	if s.prefix == "" {
		return s.client.FlushDB(ctx).Err()
	}
	pattern := s.cacheKey("*")
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

func (s *redisBackend) cacheKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + ":" + key
}
