package state

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/fraudlens/fraudlens/internal/domain"
)

// RedisProfileStore backs the profile table with Redis, letting several
// pipeline instances share one materialized view. Snapshots are stored as
// JSON under a fraudlens key prefix with no expiry; the compacted topic is
// the source of truth and overwrites on every snapshot.
type RedisProfileStore struct {
	client *redis.Client
	prefix string
}

// NewRedisProfileStore connects a profile table to the given Redis address.
func NewRedisProfileStore(addr string, db int) *RedisProfileStore {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,

		PoolSize:     10,
		MinIdleConns: 2,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,

		MaxRetries:      3,
		MinRetryBackoff: 100 * time.Millisecond,
		MaxRetryBackoff: 500 * time.Millisecond,
	})
	return &RedisProfileStore{client: client, prefix: "fraudlens:profile:"}
}

// NewRedisProfileStoreWithClient wraps an existing client; used by tests.
func NewRedisProfileStoreWithClient(client *redis.Client) *RedisProfileStore {
	return &RedisProfileStore{client: client, prefix: "fraudlens:profile:"}
}

func (s *RedisProfileStore) key(customerID string) string {
	return s.prefix + customerID
}

// Put upserts the latest snapshot for a customer.
func (s *RedisProfileStore) Put(ctx context.Context, profile domain.Profile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to marshal profile %s: %w", profile.CustomerID, err)
	}
	if err := s.client.Set(ctx, s.key(profile.CustomerID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store profile %s: %w", profile.CustomerID, err)
	}
	return nil
}

// Get returns the current snapshot, if any. A miss is not an error.
func (s *RedisProfileStore) Get(ctx context.Context, customerID string) (*domain.Profile, bool, error) {
	result, err := s.client.Get(ctx, s.key(customerID)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read profile %s: %w", customerID, err)
	}

	var profile domain.Profile
	if err := json.Unmarshal([]byte(result), &profile); err != nil {
		return nil, false, fmt.Errorf("failed to decode profile %s: %w", customerID, err)
	}
	return &profile, true, nil
}

// Len reports how many customers have profiles.
func (s *RedisProfileStore) Len(ctx context.Context) (int64, error) {
	keys, err := s.client.Keys(ctx, s.prefix+"*").Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count profiles: %w", err)
	}
	return int64(len(keys)), nil
}

// Ping verifies connectivity for health checks.
func (s *RedisProfileStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (s *RedisProfileStore) Close() error {
	return s.client.Close()
}
