package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps every pair in a single Redis hash. HSET replaces a field
// atomically, so readers never observe a partial value.
type RedisStore struct {
	client *redis.Client
	hash   string
}

// NewRedisStore creates a Redis-backed store using the hash "<prefix>rules".
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "activitygate:"
	}
	return &RedisStore{client: client, hash: prefix + "rules"}
}

// List returns the whole hash.
func (r *RedisStore) List(ctx context.Context) (map[string]string, error) {
	values, err := r.client.HGetAll(ctx, r.hash).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall %s: %w", r.hash, err)
	}
	return values, nil
}

// Get returns one field of the hash.
func (r *RedisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := r.client.HGet(ctx, r.hash, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("redis hget %s: %w", key, err)
	}
	return v, nil
}

// Put sets one field of the hash.
func (r *RedisStore) Put(ctx context.Context, key, value string) error {
	if err := r.client.HSet(ctx, r.hash, key, value).Err(); err != nil {
		return fmt.Errorf("redis hset %s: %w", key, err)
	}
	return nil
}

// Delete removes one field of the hash.
func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.HDel(ctx, r.hash, key).Err(); err != nil {
		return fmt.Errorf("redis hdel %s: %w", key, err)
	}
	return nil
}

// Close closes the underlying client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
