// Package watchlist manages per-user sets of watched symbols whose live
// quotes are injected into the system prompt each turn. Symbols are
// persisted in SQLite so watchlists survive restarts.
package watchlist

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// Store persists watched symbols in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore creates a watchlist store at the given database path,
// running migrations on first use.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open watchlist db: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate watchlist: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS watched_symbols (
			user_id  TEXT NOT NULL,
			symbol   TEXT NOT NULL,
			added_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, symbol)
		)
	`)
	return err
}

// Add inserts a symbol into the user's watchlist. Symbols are stored
// uppercase; duplicates are silently ignored.
func (s *Store) Add(ctx context.Context, userID, symbol string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO watched_symbols (user_id, symbol) VALUES (?, ?)`,
		userID, strings.ToUpper(symbol),
	)
	return err
}

// Remove deletes a symbol from the user's watchlist. Absent symbols are
// a no-op.
func (s *Store) Remove(ctx context.Context, userID, symbol string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM watched_symbols WHERE user_id = ? AND symbol = ?`,
		userID, strings.ToUpper(symbol),
	)
	return err
}

// List returns the user's watched symbols in insertion order.
func (s *Store) List(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT symbol FROM watched_symbols WHERE user_id = ? ORDER BY added_at ASC, symbol ASC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, err
		}
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}
