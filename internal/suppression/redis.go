package suppression

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "detect:dedupe:"

// RedisStore is the shared Store for multi-replica deployments. Duplicate
// detection uses SET NX so the check and the record are one atomic call;
// expiry is delegated to Redis TTLs.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Store backed by the given Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) CheckAndRecord(ctx context.Context, key string, window time.Duration) (bool, error) {
	if window <= 0 {
		return false, nil
	}

	set, err := s.client.SetNX(ctx, redisKeyPrefix+key, 1, window).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record dedupe key: %w", err)
	}
	// SETNX returning false means the key already existed.
	return !set, nil
}

func (s *RedisStore) Size(ctx context.Context) (int, error) {
	keys, err := s.client.Keys(ctx, redisKeyPrefix+"*").Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count dedupe keys: %w", err)
	}
	return len(keys), nil
}

// Ping verifies connectivity, for readiness checks.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
