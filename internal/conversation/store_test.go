package conversation

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/finsight-ai/finsight/internal/prompts"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "conv_test.db")
	s, err := NewStore(dbPath)
	if err != nil {
		t.Fatalf("NewStore(%q): %v", dbPath, err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndHistory(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	pairs := []struct{ role, content string }{
		{"user", "what's AAPL at?"},
		{"assistant", "AAPL is trading at $231.50, up 0.9% today."},
		{"user", "and MSFT?"},
	}
	for _, p := range pairs {
		if err := s.Append(ctx, "conv-1", p.role, p.content); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := s.History(ctx, "conv-1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d messages, want 3", len(got))
	}
	for i, p := range pairs {
		if got[i].Role != p.role || got[i].Content != p.content {
			t.Errorf("message %d = %s/%q, want %s/%q", i, got[i].Role, got[i].Content, p.role, p.content)
		}
	}
}

func TestHistoryIsolatesConversations(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, "conv-a", "user", "hello a"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Append(ctx, "conv-b", "user", "hello b"); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := s.History(ctx, "conv-a")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(got) != 1 || got[0].Content != "hello a" {
		t.Errorf("got %+v", got)
	}
}

func TestAppendTruncatesLongContent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	long := strings.Repeat("x", maxStoredContentChars+500)
	if err := s.Append(ctx, "conv-1", "user", long); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := s.History(ctx, "conv-1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(got[0].Content) != maxStoredContentChars {
		t.Errorf("stored %d chars, want %d", len(got[0].Content), maxStoredContentChars)
	}
}

func TestAppendTruncatesOnRuneBoundary(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	// Two-byte runes; a byte-index cut would split one in half.
	long := strings.Repeat("é", maxStoredContentChars)
	if err := s.Append(ctx, "conv-1", "user", long); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := s.History(ctx, "conv-1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if !utf8.ValidString(got[0].Content) {
		t.Error("truncated content is not valid UTF-8")
	}
	if len(got[0].Content) > maxStoredContentChars {
		t.Errorf("stored %d bytes, want at most %d", len(got[0].Content), maxStoredContentChars)
	}
}

func TestClear(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if err := s.Append(ctx, "conv-1", "user", fmt.Sprintf("msg %d", i)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	n, err := s.Clear(ctx, "conv-1")
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if n != 4 {
		t.Errorf("Clear removed %d rows, want 4", n)
	}

	count, err := s.Count(ctx, "conv-1")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 0 {
		t.Errorf("Count = %d after Clear, want 0", count)
	}
}

func TestOlderBelowThreshold(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := s.Append(ctx, "conv-1", "user", fmt.Sprintf("msg %d", i)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	old, err := s.Older(ctx, "conv-1", 10)
	if err != nil {
		t.Fatalf("Older: %v", err)
	}
	if len(old) != 0 {
		t.Errorf("got %d old messages, want 0", len(old))
	}
}

func TestCompactReplacesOldWithSummary(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		if err := s.Append(ctx, "conv-1", role, fmt.Sprintf("msg %d", i)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	old, err := s.Older(ctx, "conv-1", 10)
	if err != nil {
		t.Fatalf("Older: %v", err)
	}
	if len(old) != 5 {
		t.Fatalf("got %d old messages, want 5", len(old))
	}

	if err := s.Compact(ctx, "conv-1", old, "Discussed AAPL earnings and position sizing."); err != nil {
		t.Fatalf("Compact: %v", err)
	}

	count, err := s.Count(ctx, "conv-1")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 11 { // summary + 10 kept
		t.Errorf("Count = %d after compact, want 11", count)
	}

	hist, err := s.History(ctx, "conv-1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	// Summary sorts first and is surfaced as a user message.
	if hist[0].Role != "user" {
		t.Errorf("summary role = %s, want user", hist[0].Role)
	}
	if !strings.HasPrefix(hist[0].Content, prompts.SummaryPrefix) {
		t.Errorf("summary content = %q, want %q prefix", hist[0].Content, prompts.SummaryPrefix)
	}
	if hist[1].Content != "msg 5" {
		t.Errorf("first kept message = %q, want %q", hist[1].Content, "msg 5")
	}
}

func TestTranscript(t *testing.T) {
	rows := []StoredMessage{
		{Role: "user", Content: "buy or sell?"},
		{Role: "assistant", Content: "neither, hold"},
	}
	got := Transcript(rows)
	want := "user: buy or sell?\nassistant: neither, hold\n"
	if got != want {
		t.Errorf("Transcript = %q, want %q", got, want)
	}
}
