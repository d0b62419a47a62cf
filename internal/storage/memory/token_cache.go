package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"tokenradar/internal/domain"
	"tokenradar/internal/storage"
)

// Default cache bounds.
const (
	DefaultMaxEntries = 200
	DefaultTTL        = 48 * time.Hour
)

// TokenCache is an in-memory implementation of storage.TokenCache with
// FIFO capacity eviction and per-record TTL expiry. All operations take a
// single lock, so upsert-then-evict is atomic for readers.
type TokenCache struct {
	mu         sync.RWMutex
	data       map[domain.TokenKey]*domain.TokenRecord
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
}

// NewTokenCache creates a token cache with the given bounds. Non-positive
// arguments fall back to the defaults.
func NewTokenCache(maxEntries int, ttl time.Duration) *TokenCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &TokenCache{
		data:       make(map[domain.TokenKey]*domain.TokenRecord),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
	}
}

// Upsert replaces any existing entry for the record's key, then evicts the
// oldest records by scanned_at until the live count fits the capacity.
func (c *TokenCache) Upsert(_ context.Context, r *domain.TokenRecord) error {
	if r == nil || r.Address == "" || !r.Chain.Valid() {
		return storage.ErrInvalidInput
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.dropExpiredLocked()

	recordCopy := *r
	c.data[r.Key()] = &recordCopy

	for len(c.data) > c.maxEntries {
		c.evictOldestLocked()
	}
	return nil
}

// Get retrieves the current record. Returns ErrNotFound if absent or expired.
func (c *TokenCache) Get(_ context.Context, address string, chain domain.Chain) (*domain.TokenRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	r, exists := c.data[domain.TokenKey{Address: address, Chain: chain}]
	if !exists || c.expired(r) {
		return nil, storage.ErrNotFound
	}

	recordCopy := *r
	return &recordCopy, nil
}

// List returns records ordered by scanned_at descending.
func (c *TokenCache) List(_ context.Context, limit, offset int, f storage.TokenFilter) ([]*domain.TokenRecord, int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var matched []*domain.TokenRecord
	for _, r := range c.data {
		if c.expired(r) || !matches(r, f) {
			continue
		}
		matched = append(matched, r)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].ScannedAt.After(matched[j].ScannedAt)
	})

	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}

	result := make([]*domain.TokenRecord, len(matched))
	for i, r := range matched {
		recordCopy := *r
		result[i] = &recordCopy
	}
	return result, total, nil
}

// PurgeOlderThan deletes records scanned before the cutoff.
func (c *TokenCache) PurgeOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, r := range c.data {
		if r.ScannedAt.Before(cutoff) {
			delete(c.data, key)
			removed++
		}
	}
	return removed, nil
}

// Stats returns live counts and the age of the oldest entry.
func (c *TokenCache) Stats(_ context.Context) (*storage.CacheStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.dropExpiredLocked()

	stats := &storage.CacheStats{PerChain: make(map[domain.Chain]int)}
	var oldest time.Time
	for _, r := range c.data {
		stats.Live++
		stats.PerChain[r.Chain]++
		if r.IsSafe {
			stats.Safe++
		} else {
			stats.Dangerous++
		}
		if oldest.IsZero() || r.ScannedAt.Before(oldest) {
			oldest = r.ScannedAt
		}
	}
	if !oldest.IsZero() {
		stats.OldestAge = c.now().Sub(oldest)
	}
	return stats, nil
}

func (c *TokenCache) expired(r *domain.TokenRecord) bool {
	return c.now().Sub(r.ScannedAt) > c.ttl
}

func (c *TokenCache) dropExpiredLocked() {
	for key, r := range c.data {
		if c.expired(r) {
			delete(c.data, key)
		}
	}
}

func (c *TokenCache) evictOldestLocked() {
	var oldestKey domain.TokenKey
	var oldest time.Time
	first := true
	for key, r := range c.data {
		if first || r.ScannedAt.Before(oldest) {
			oldestKey, oldest = key, r.ScannedAt
			first = false
		}
	}
	if !first {
		delete(c.data, oldestKey)
	}
}

func matches(r *domain.TokenRecord, f storage.TokenFilter) bool {
	if f.Chain != "" && r.Chain != f.Chain {
		return false
	}
	if f.SafeOnly && !r.IsSafe {
		return false
	}
	if f.MinLiquidity > 0 && r.Market.LiquidityUSD < f.MinLiquidity {
		return false
	}
	if f.MaxRiskScore > 0 && r.Indicators.RiskScore > f.MaxRiskScore {
		return false
	}
	return true
}

// Verify interface compliance at compile time.
var _ storage.TokenCache = (*TokenCache)(nil)
