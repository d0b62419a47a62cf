package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"tokenradar/internal/domain"
	"tokenradar/internal/storage"
)

func testFavorite(id, userID, address string) *domain.Favorite {
	return &domain.Favorite{
		ID:      id,
		UserID:  userID,
		Address: address,
		Chain:   domain.ChainEthereum,
		Symbol:  "GOOD",
		AddedAt: time.Now().UTC(),
	}
}

func TestFavoriteStoreAddAndList(t *testing.T) {
	s := NewFavoriteStore()
	ctx := context.Background()

	older := testFavorite("fav-1", "alice", "0xaaa")
	older.AddedAt = time.Now().UTC().Add(-time.Hour)
	newer := testFavorite("fav-2", "alice", "0xbbb")
	other := testFavorite("fav-3", "bob", "0xaaa")

	for _, f := range []*domain.Favorite{older, newer, other} {
		if err := s.Add(ctx, f); err != nil {
			t.Fatalf("Add(%s): %v", f.ID, err)
		}
	}

	favs, err := s.ListByUser(ctx, "alice")
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(favs) != 2 {
		t.Fatalf("len = %d, want 2", len(favs))
	}
	if favs[0].ID != "fav-2" || favs[1].ID != "fav-1" {
		t.Errorf("order = %s, %s, want fav-2, fav-1", favs[0].ID, favs[1].ID)
	}
}

func TestFavoriteStoreDuplicate(t *testing.T) {
	s := NewFavoriteStore()
	ctx := context.Background()

	if err := s.Add(ctx, testFavorite("fav-1", "alice", "0xaaa")); err != nil {
		t.Fatalf("Add: %v", err)
	}

	// Same (user, address, chain) under a new ID is still a duplicate.
	err := s.Add(ctx, testFavorite("fav-2", "alice", "0xaaa"))
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("err = %v, want ErrDuplicateKey", err)
	}
}

func TestFavoriteStoreRemove(t *testing.T) {
	s := NewFavoriteStore()
	ctx := context.Background()

	f := testFavorite("fav-1", "alice", "0xaaa")
	if err := s.Add(ctx, f); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := s.Remove(ctx, "alice", "0xaaa", domain.ChainEthereum); err != nil {
		t.Errorf("Remove: %v", err)
	}
	if err := s.Remove(ctx, "alice", "0xaaa", domain.ChainEthereum); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second Remove err = %v, want ErrNotFound", err)
	}
}

func TestFavoriteStoreInvalidInput(t *testing.T) {
	s := NewFavoriteStore()
	ctx := context.Background()

	bad := testFavorite("fav-1", "", "0xaaa")
	if err := s.Add(ctx, bad); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}
