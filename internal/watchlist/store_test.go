package watchlist

import (
	"context"
	"path/filepath"
	"testing"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "watchlist.db"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_ListEmpty(t *testing.T) {
	store := setupTestStore(t)

	symbols, err := store.List(context.Background(), "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(symbols) != 0 {
		t.Errorf("expected empty list, got %v", symbols)
	}
}

func TestStore_AddAndList(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.Add(ctx, "u1", "aapl"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := store.Add(ctx, "u1", "NVDA"); err != nil {
		t.Fatalf("add: %v", err)
	}

	symbols, err := store.List(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(symbols) != 2 {
		t.Fatalf("expected 2 symbols, got %d", len(symbols))
	}
	if symbols[0] != "AAPL" {
		t.Errorf("symbols[0] = %q, want AAPL (uppercased)", symbols[0])
	}
	if symbols[1] != "NVDA" {
		t.Errorf("symbols[1] = %q, want NVDA", symbols[1])
	}
}

func TestStore_AddDuplicateIgnored(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	store.Add(ctx, "u1", "AAPL")
	store.Add(ctx, "u1", "AAPL")

	symbols, err := store.List(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(symbols) != 1 {
		t.Errorf("expected 1 symbol after duplicate add, got %v", symbols)
	}
}

func TestStore_Remove(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	store.Add(ctx, "u1", "AAPL")
	store.Add(ctx, "u1", "NVDA")

	if err := store.Remove(ctx, "u1", "aapl"); err != nil {
		t.Fatalf("remove: %v", err)
	}

	symbols, _ := store.List(ctx, "u1")
	if len(symbols) != 1 || symbols[0] != "NVDA" {
		t.Errorf("after remove, list = %v", symbols)
	}
}

func TestStore_PerUserIsolation(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	store.Add(ctx, "u1", "AAPL")
	store.Add(ctx, "u2", "TSLA")

	u1, _ := store.List(ctx, "u1")
	u2, _ := store.List(ctx, "u2")
	if len(u1) != 1 || u1[0] != "AAPL" {
		t.Errorf("u1 list = %v", u1)
	}
	if len(u2) != 1 || u2[0] != "TSLA" {
		t.Errorf("u2 list = %v", u2)
	}
}

func TestStore_RemoveNonexistentNoOp(t *testing.T) {
	store := setupTestStore(t)

	if err := store.Remove(context.Background(), "u1", "MSFT"); err != nil {
		t.Errorf("remove nonexistent: %v", err)
	}
}
