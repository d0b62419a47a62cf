package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"tokenradar/internal/domain"
	"tokenradar/internal/storage"
)

// PositionStore is an in-memory implementation of storage.PositionStore.
type PositionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Position // keyed by position ID
}

// NewPositionStore creates a new in-memory position store.
func NewPositionStore() *PositionStore {
	return &PositionStore{
		data: make(map[string]*domain.Position),
	}
}

// Insert adds a new position. Returns ErrDuplicateKey if the ID exists.
func (s *PositionStore) Insert(_ context.Context, p *domain.Position) error {
	if p == nil || p.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[p.ID]; exists {
		return storage.ErrDuplicateKey
	}

	positionCopy := *p
	s.data[p.ID] = &positionCopy
	return nil
}

// GetByID retrieves a position. Returns ErrNotFound if not exists.
func (s *PositionStore) GetByID(_ context.Context, id string) (*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}

	positionCopy := *p
	return &positionCopy, nil
}

// GetOpen retrieves all OPEN positions, ordered by opened_at ASC.
func (s *PositionStore) GetOpen(_ context.Context) ([]*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Position
	for _, p := range s.data {
		if p.Status == domain.PositionOpen {
			positionCopy := *p
			result = append(result, &positionCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].OpenedAt.Before(result[j].OpenedAt)
	})

	return result, nil
}

// GetByUser retrieves a user's positions, newest first.
func (s *PositionStore) GetByUser(_ context.Context, userID string, status domain.PositionStatus) ([]*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Position
	for _, p := range s.data {
		if p.UserID != userID {
			continue
		}
		if status != "" && p.Status != status {
			continue
		}
		positionCopy := *p
		result = append(result, &positionCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].OpenedAt.After(result[j].OpenedAt)
	})

	return result, nil
}

// Update persists a mutated position. The stored status must be OPEN or
// ERROR: closed positions never transition again.
func (s *PositionStore) Update(_ context.Context, p *domain.Position) error {
	if p == nil || p.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.data[p.ID]
	if !exists {
		return storage.ErrNotFound
	}
	if current.IsClosed() {
		return storage.ErrPositionClosed
	}

	positionCopy := *p
	s.data[p.ID] = &positionCopy
	return nil
}

// CountOpenedSince counts positions opened at or after the cutoff.
func (s *PositionStore) CountOpenedSince(_ context.Context, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, p := range s.data {
		if !p.OpenedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// RealizedPnLSince sums realized PnL of positions closed at or after the cutoff.
func (s *PositionStore) RealizedPnLSince(_ context.Context, since time.Time) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total float64
	for _, p := range s.data {
		if p.ClosedAt == nil || p.ClosedAt.Before(since) {
			continue
		}
		total += p.PnLUSD
	}
	return total, nil
}

// Verify interface compliance at compile time.
var _ storage.PositionStore = (*PositionStore)(nil)
