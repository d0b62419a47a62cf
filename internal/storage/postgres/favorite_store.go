package postgres

import (
	"context"
	"fmt"

	"tokenradar/internal/domain"
	"tokenradar/internal/storage"
)

// FavoriteStore implements storage.FavoriteStore using PostgreSQL.
type FavoriteStore struct {
	pool *Pool
}

// NewFavoriteStore creates a new FavoriteStore.
func NewFavoriteStore(pool *Pool) *FavoriteStore {
	return &FavoriteStore{pool: pool}
}

// Compile-time interface check.
var _ storage.FavoriteStore = (*FavoriteStore)(nil)

// Add inserts a favorite. Returns ErrDuplicateKey if (user, address, chain) exists.
func (s *FavoriteStore) Add(ctx context.Context, f *domain.Favorite) error {
	if f == nil || f.ID == "" || f.UserID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO favorites (id, user_id, address, chain, symbol, added_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.pool.Exec(ctx, query,
		f.ID, f.UserID, f.Address, string(f.Chain), f.Symbol, f.AddedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert favorite: %w", err)
	}
	return nil
}

// Remove deletes a favorite. Returns ErrNotFound if not exists.
func (s *FavoriteStore) Remove(ctx context.Context, userID, address string, chain domain.Chain) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM favorites WHERE user_id = $1 AND address = $2 AND chain = $3`,
		userID, address, string(chain),
	)
	if err != nil {
		return fmt.Errorf("delete favorite: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListByUser retrieves a user's favorites, newest first.
func (s *FavoriteStore) ListByUser(ctx context.Context, userID string) ([]*domain.Favorite, error) {
	query := `
		SELECT id, user_id, address, chain, symbol, added_at
		FROM favorites
		WHERE user_id = $1
		ORDER BY added_at DESC, id DESC
	`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	defer rows.Close()

	var favorites []*domain.Favorite
	for rows.Next() {
		var f domain.Favorite
		var chain string
		if err := rows.Scan(&f.ID, &f.UserID, &f.Address, &chain, &f.Symbol, &f.AddedAt); err != nil {
			return nil, fmt.Errorf("scan favorite row: %w", err)
		}
		f.Chain = domain.Chain(chain)
		favorites = append(favorites, &f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate favorite rows: %w", err)
	}
	return favorites, nil
}
