// Package redis provides a Redis-backed signal cache.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tokenradar/internal/domain"
	"tokenradar/internal/storage"
)

// SignalCache implements storage.SignalCache on Redis. Entries expire via
// the native TTL, so repeated analyze calls within the window reuse the
// scored signal instead of re-prompting the validator.
type SignalCache struct {
	client *redis.Client
}

// NewSignalCache connects to Redis and verifies the connection.
func NewSignalCache(ctx context.Context, addr, password string, db int) (*SignalCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &SignalCache{client: client}, nil
}

// NewSignalCacheWithClient wraps an existing client, used by tests.
func NewSignalCacheWithClient(client *redis.Client) *SignalCache {
	return &SignalCache{client: client}
}

// Compile-time interface check.
var _ storage.SignalCache = (*SignalCache)(nil)

// Close releases the underlying client.
func (c *SignalCache) Close() error {
	return c.client.Close()
}

// Get retrieves a cached signal. Returns ErrNotFound on miss.
func (c *SignalCache) Get(ctx context.Context, key domain.TokenKey) (*domain.Signal, error) {
	data, err := c.client.Get(ctx, cacheKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get signal: %w", err)
	}

	var s domain.Signal
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal signal: %w", err)
	}
	return &s, nil
}

// Put stores a signal with the given TTL.
func (c *SignalCache) Put(ctx context.Context, key domain.TokenKey, s *domain.Signal, ttl time.Duration) error {
	if s == nil {
		return storage.ErrInvalidInput
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal signal: %w", err)
	}
	if err := c.client.Set(ctx, cacheKey(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("set signal: %w", err)
	}
	return nil
}

func cacheKey(key domain.TokenKey) string {
	return fmt.Sprintf("signal:%s:%s", key.Chain, key.Address)
}
