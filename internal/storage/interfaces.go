package storage

import (
	"context"
	"time"

	"tokenradar/internal/domain"
)

// TokenFilter narrows List results. Zero values disable a predicate.
type TokenFilter struct {
	Chain        domain.Chain
	SafeOnly     bool
	MinLiquidity float64

	// MaxRiskScore filters when > 0.
	MaxRiskScore float64
}

// CacheStats is a snapshot of the token cache.
type CacheStats struct {
	Live      int
	PerChain  map[domain.Chain]int
	Safe      int
	Dangerous int
	OldestAge time.Duration
}

// TokenCache provides access to the bounded scanned-token cache.
// Exactly one live record exists per (address, chain); insertion order is
// preserved as a FIFO queue bounded by the configured capacity, and every
// record carries a TTL from its scanned_at timestamp.
type TokenCache interface {
	// Upsert replaces any existing entry for the record's key. When the
	// insert would push the live count above capacity, the oldest records
	// by scanned_at are evicted until the count fits. Upsert-then-evict is
	// atomic with respect to readers.
	Upsert(ctx context.Context, r *domain.TokenRecord) error

	// Get retrieves the current record. Returns ErrNotFound if absent or expired.
	Get(ctx context.Context, address string, chain domain.Chain) (*domain.TokenRecord, error)

	// List returns records ordered by scanned_at descending, with the total
	// count matching the filter before limit/offset.
	List(ctx context.Context, limit, offset int, f TokenFilter) ([]*domain.TokenRecord, int, error)

	// PurgeOlderThan deletes records scanned before the cutoff and reports
	// how many were removed.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error)

	// Stats returns live counts and the age of the oldest entry.
	Stats(ctx context.Context) (*CacheStats, error)
}

// PositionStore provides access to positions storage. Positions are never
// deleted; closed positions are retained as history.
type PositionStore interface {
	// Insert adds a new position. Returns ErrDuplicateKey if the ID exists.
	Insert(ctx context.Context, p *domain.Position) error

	// GetByID retrieves a position. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.Position, error)

	// GetOpen retrieves all OPEN positions, ordered by opened_at ASC.
	GetOpen(ctx context.Context) ([]*domain.Position, error)

	// GetByUser retrieves a user's positions, newest first. An empty status
	// matches all statuses.
	GetByUser(ctx context.Context, userID string, status domain.PositionStatus) ([]*domain.Position, error)

	// Update persists a mutated position. Returns ErrNotFound if absent and
	// ErrPositionClosed when the stored position already left OPEN.
	Update(ctx context.Context, p *domain.Position) error

	// CountOpenedSince counts positions opened at or after the cutoff.
	CountOpenedSince(ctx context.Context, since time.Time) (int, error)

	// RealizedPnLSince sums realized PnL of positions closed at or after
	// the cutoff.
	RealizedPnLSince(ctx context.Context, since time.Time) (float64, error)
}

// FavoriteStore provides access to user token bookmarks.
type FavoriteStore interface {
	// Add inserts a favorite. Returns ErrDuplicateKey if (user, address, chain) exists.
	Add(ctx context.Context, f *domain.Favorite) error

	// Remove deletes a favorite. Returns ErrNotFound if not exists.
	Remove(ctx context.Context, userID, address string, chain domain.Chain) error

	// ListByUser retrieves a user's favorites, newest first.
	ListByUser(ctx context.Context, userID string) ([]*domain.Favorite, error)
}

// SnapshotArchive receives every committed token record for offline
// analysis. Appends are best effort; failures must not fail the scan tick.
type SnapshotArchive interface {
	Append(ctx context.Context, r *domain.TokenRecord) error
}

// SignalCache holds recent scoring results so repeated analyze calls do not
// recompute or re-prompt the validator.
type SignalCache interface {
	// Get retrieves a cached signal. Returns ErrNotFound on miss.
	Get(ctx context.Context, key domain.TokenKey) (*domain.Signal, error)

	// Put stores a signal with the given TTL.
	Put(ctx context.Context, key domain.TokenKey, s *domain.Signal, ttl time.Duration) error
}
