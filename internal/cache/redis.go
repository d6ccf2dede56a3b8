package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Cache key pattern:
// - chat:snapshot:{user_id} - one snapshot per user

// RedisConfig contains configuration for the Redis snapshot store.
type RedisConfig struct {
	SnapshotTTL time.Duration // TTL for the snapshot (default 30 days)
}

// DefaultRedisConfig returns sensible defaults.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		SnapshotTTL: 30 * 24 * time.Hour,
	}
}

// RedisStore keeps the snapshot in Redis, for clients that share a
// cache across hosts (kiosk deployments, desktop shells).
type RedisStore struct {
	client *goredis.Client
	userID string
	config RedisConfig
}

// NewRedisStore creates a Redis-backed snapshot store for one user.
func NewRedisStore(client *goredis.Client, userID string, config RedisConfig) *RedisStore {
	return &RedisStore{
		client: client,
		userID: userID,
		config: config,
	}
}

func (r *RedisStore) key() string {
	return fmt.Sprintf("chat:snapshot:%s", r.userID)
}

func (r *RedisStore) Load() (*Snapshot, error) {
	ctx := context.Background()
	data, err := r.client.Get(ctx, r.key()).Result()
	if err == goredis.Nil {
		return nil, nil // Cache miss
	}
	if err != nil {
		return nil, err
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, nil
	}
	return &snap, nil
}

func (r *RedisStore) Save(snap *Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return r.client.Set(context.Background(), r.key(), data, r.config.SnapshotTTL).Err()
}

func (r *RedisStore) Clear() error {
	return r.client.Del(context.Background(), r.key()).Err()
}

// Ping checks if Redis is available.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
