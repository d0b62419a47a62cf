package memory

import (
	"context"
	"sort"
	"sync"

	"tokenradar/internal/domain"
	"tokenradar/internal/storage"
)

type favoriteKey struct {
	userID  string
	address string
	chain   domain.Chain
}

// FavoriteStore is an in-memory implementation of storage.FavoriteStore.
type FavoriteStore struct {
	mu   sync.RWMutex
	data map[favoriteKey]*domain.Favorite
}

// NewFavoriteStore creates a new in-memory favorite store.
func NewFavoriteStore() *FavoriteStore {
	return &FavoriteStore{
		data: make(map[favoriteKey]*domain.Favorite),
	}
}

// Add inserts a favorite. Returns ErrDuplicateKey if (user, address, chain) exists.
func (s *FavoriteStore) Add(_ context.Context, f *domain.Favorite) error {
	if f == nil || f.UserID == "" || f.Address == "" || !f.Chain.Valid() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := favoriteKey{userID: f.UserID, address: f.Address, chain: f.Chain}
	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}

	favoriteCopy := *f
	s.data[key] = &favoriteCopy
	return nil
}

// Remove deletes a favorite. Returns ErrNotFound if not exists.
func (s *FavoriteStore) Remove(_ context.Context, userID, address string, chain domain.Chain) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := favoriteKey{userID: userID, address: address, chain: chain}
	if _, exists := s.data[key]; !exists {
		return storage.ErrNotFound
	}
	delete(s.data, key)
	return nil
}

// ListByUser retrieves a user's favorites, newest first.
func (s *FavoriteStore) ListByUser(_ context.Context, userID string) ([]*domain.Favorite, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Favorite
	for _, f := range s.data {
		if f.UserID == userID {
			favoriteCopy := *f
			result = append(result, &favoriteCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].AddedAt.After(result[j].AddedAt)
	})

	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.FavoriteStore = (*FavoriteStore)(nil)
