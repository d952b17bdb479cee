// Package notes persists a user's investment notes in SQLite. Notes
// are free-form text optionally tagged with a ticker symbol; the
// personal-data tools surface them to the model on request.
package notes

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Note is one saved investment note.
type Note struct {
	ID        string
	UserID    string
	Symbol    string // optional ticker tag
	Body      string
	CreatedAt time.Time
}

// Store persists notes in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore creates a notes store at the given database path, running
// migrations on first use.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open notes database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate notes schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS notes (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			symbol     TEXT,
			body       TEXT NOT NULL,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_notes_user ON notes(user_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_notes_symbol ON notes(user_id, symbol);
	`)
	return err
}

// Add persists a note. If n.ID is empty, a UUIDv7 is generated. The
// assigned ID is returned.
func (s *Store) Add(ctx context.Context, n Note) (string, error) {
	if n.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return "", fmt.Errorf("generate note ID: %w", err)
		}
		n.ID = id.String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notes (id, user_id, symbol, body, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		n.ID, n.UserID, n.Symbol, n.Body,
		n.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return "", fmt.Errorf("insert note: %w", err)
	}
	return n.ID, nil
}

// Recent returns up to limit notes for a user, newest first. A limit
// of zero defaults to 10.
func (s *Store) Recent(ctx context.Context, userID string, limit int) ([]Note, error) {
	if limit == 0 {
		limit = 10
	}
	return s.query(ctx,
		`SELECT id, user_id, symbol, body, created_at
		 FROM notes WHERE user_id = ?
		 ORDER BY created_at DESC LIMIT ?`,
		userID, limit,
	)
}

// BySymbol returns all of a user's notes tagged with the given symbol,
// newest first.
func (s *Store) BySymbol(ctx context.Context, userID, symbol string) ([]Note, error) {
	return s.query(ctx,
		`SELECT id, user_id, symbol, body, created_at
		 FROM notes WHERE user_id = ? AND symbol = ?
		 ORDER BY created_at DESC`,
		userID, symbol,
	)
}

// Search returns a user's notes whose body contains the term, newest
// first. Matching is case-insensitive for ASCII.
func (s *Store) Search(ctx context.Context, userID, term string) ([]Note, error) {
	return s.query(ctx,
		`SELECT id, user_id, symbol, body, created_at
		 FROM notes WHERE user_id = ? AND body LIKE '%' || ? || '%'
		 ORDER BY created_at DESC`,
		userID, term,
	)
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]Note, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query notes: %w", err)
	}
	defer rows.Close()

	var notes []Note
	for rows.Next() {
		var n Note
		var symbol sql.NullString
		var created string
		if err := rows.Scan(&n.ID, &n.UserID, &symbol, &n.Body, &created); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		n.Symbol = symbol.String
		n.CreatedAt, _ = time.Parse(time.RFC3339, created)
		notes = append(notes, n)
	}
	return notes, rows.Err()
}
