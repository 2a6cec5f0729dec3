package cachify

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient captures the subset of redis.Client used by the store.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// releaseScript deletes the key only while it still holds the caller's
// token, making release safe against locks that expired and were reacquired.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`

type redisStore struct {
	client     RedisClient
	defaultTTL time.Duration
}

func newRedisStore(client RedisClient, defaultTTL time.Duration) Store {
	if defaultTTL <= 0 {
		defaultTTL = defaultCacheTTL
	}
	return &redisStore{
		client:     client,
		defaultTTL: defaultTTL,
	}
}

func (s *redisStore) Driver() Driver {
	return DriverRedis
}

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s.client == nil {
		return nil, false, errors.New("redis client unavailable")
	}
	value, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return value, true, nil
}

func (s *redisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s.client == nil {
		return errors.New("redis client unavailable")
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *redisStore) Delete(ctx context.Context, key string) error {
	if s.client == nil {
		return errors.New("redis client unavailable")
	}
	return s.client.Del(ctx, key).Err()
}

func (s *redisStore) TryAcquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	if s.client == nil {
		return false, errors.New("redis client unavailable")
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	// SET NX EX: one round trip, exactly one winner under contention.
	return s.client.SetNX(ctx, key, token, ttl).Result()
}

func (s *redisStore) Release(ctx context.Context, key, token string) (bool, error) {
	if s.client == nil {
		return false, errors.New("redis client unavailable")
	}
	deleted, err := s.client.Eval(ctx, releaseScript, []string{key}, token).Int64()
	if err != nil {
		return false, err
	}
	return deleted == 1, nil
}
