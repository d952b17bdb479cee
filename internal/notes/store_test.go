package notes

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "notes_test.db")
	s, err := NewStore(dbPath)
	if err != nil {
		t.Fatalf("NewStore(%q): %v", dbPath, err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAddAndRecent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	for i, body := range []string{"first", "second", "third"} {
		_, err := s.Add(ctx, Note{
			UserID:    "u1",
			Body:      body,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	got, err := s.Recent(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d notes, want 2", len(got))
	}
	// Newest first.
	if got[0].Body != "third" || got[1].Body != "second" {
		t.Errorf("bodies = [%s, %s], want [third, second]", got[0].Body, got[1].Body)
	}
}

func TestAddGeneratesID(t *testing.T) {
	s := testStore(t)

	id, err := s.Add(context.Background(), Note{UserID: "u1", Body: "watch margins"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if id == "" {
		t.Error("Add returned empty ID")
	}
}

func TestBySymbol(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for _, n := range []Note{
		{UserID: "u1", Symbol: "AAPL", Body: "services growth thesis"},
		{UserID: "u1", Symbol: "MSFT", Body: "azure margin watch"},
		{UserID: "u2", Symbol: "AAPL", Body: "other user's note"},
	} {
		if _, err := s.Add(ctx, n); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	got, err := s.BySymbol(ctx, "u1", "AAPL")
	if err != nil {
		t.Fatalf("BySymbol: %v", err)
	}
	if len(got) != 1 || got[0].Body != "services growth thesis" {
		t.Errorf("got %+v", got)
	}
}

func TestSearch(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for _, body := range []string{
		"dividend reinvestment plan notes",
		"sell half if it doubles",
		"dividend cut risk in telecom",
	} {
		if _, err := s.Add(ctx, Note{UserID: "u1", Body: body}); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	got, err := s.Search(ctx, "u1", "dividend")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("got %d notes, want 2", len(got))
	}
}

func TestRecentEmpty(t *testing.T) {
	s := testStore(t)

	got, err := s.Recent(context.Background(), "nobody", 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d notes, want 0", len(got))
	}
}
