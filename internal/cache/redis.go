package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisPredictionStore implements PredictionStore on a single Redis hash
// so replicas share one memo table. HSETNX gives write-once semantics.
type RedisPredictionStore struct {
	client *redis.Client
	hash   string
}

type RedisConfig struct {
	Prefix string
}

// NewRedisPredictionStore creates a Redis-backed store.
func NewRedisPredictionStore(client *redis.Client, config RedisConfig) *RedisPredictionStore {
	return &RedisPredictionStore{
		client: client,
		hash:   hashName(config.Prefix),
	}
}

// hashName builds the Redis key of the predictions hash.
func hashName(prefix string) string {
	if prefix == "" {
		return "predictions"
	}
	return prefix + ":predictions"
}

// Get retrieves a value from the predictions hash.
func (s *RedisPredictionStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, fmt.Errorf("context error: %w", err)
	}

	res, err := s.client.HGet(ctx, s.hash, key).Bytes()
	if errors.Is(err, redis.Nil) {
		// Field does not exist: clean miss.
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis hget failed: %w", err)
	}

	return res, true, nil
}

// PutIfAbsent stores value with HSETNX. When another writer got there
// first, the stored value is read back and returned instead.
func (s *RedisPredictionStore) PutIfAbsent(ctx context.Context, key string, value []byte) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, fmt.Errorf("context error: %w", err)
	}

	inserted, err := s.client.HSetNX(ctx, s.hash, key, value).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis hsetnx failed: %w", err)
	}
	if inserted {
		return value, true, nil
	}

	existing, err := s.client.HGet(ctx, s.hash, key).Bytes()
	if err != nil {
		return nil, false, fmt.Errorf("redis hget after hsetnx failed: %w", err)
	}
	return existing, false, nil
}

// Len returns the number of fields in the predictions hash.
func (s *RedisPredictionStore) Len(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("context error: %w", err)
	}
	n, err := s.client.HLen(ctx, s.hash).Result()
	if err != nil {
		return 0, fmt.Errorf("redis hlen failed: %w", err)
	}
	return int(n), nil
}

// Ping checks if Redis connection is healthy.
func (s *RedisPredictionStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}
	return s.client.Ping(ctx).Err()
}
