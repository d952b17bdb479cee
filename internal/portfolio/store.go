// Package portfolio persists per-user holdings in SQLite. Holdings are
// read by the personal-data tools and by the router, which uses the
// owned symbol set to recognize portfolio-relevant questions.
package portfolio

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Holding is one position in a user's portfolio.
type Holding struct {
	UserID    string
	Symbol    string
	Shares    float64
	CostBasis float64 // average per-share cost in USD
	UpdatedAt time.Time
}

// Store persists holdings in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore creates a portfolio store at the given database path,
// running migrations on first use.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open portfolio database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate portfolio schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS holdings (
			user_id    TEXT NOT NULL,
			symbol     TEXT NOT NULL,
			shares     REAL NOT NULL,
			cost_basis REAL NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (user_id, symbol)
		)
	`)
	return err
}

// Upsert inserts or replaces a holding. A zero-share upsert removes the
// position.
func (s *Store) Upsert(ctx context.Context, h Holding) error {
	if h.Shares == 0 {
		return s.Remove(ctx, h.UserID, h.Symbol)
	}
	if h.UpdatedAt.IsZero() {
		h.UpdatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO holdings (user_id, symbol, shares, cost_basis, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, symbol) DO UPDATE SET
			shares = excluded.shares,
			cost_basis = excluded.cost_basis,
			updated_at = excluded.updated_at`,
		h.UserID, h.Symbol, h.Shares, h.CostBasis,
		h.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upsert holding: %w", err)
	}
	return nil
}

// Remove deletes a position. Non-existent positions are a no-op.
func (s *Store) Remove(ctx context.Context, userID, symbol string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM holdings WHERE user_id = ? AND symbol = ?`,
		userID, symbol,
	)
	return err
}

// List returns all holdings for a user, sorted by symbol.
func (s *Store) List(ctx context.Context, userID string) ([]Holding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, symbol, shares, cost_basis, updated_at
		 FROM holdings WHERE user_id = ? ORDER BY symbol ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list holdings: %w", err)
	}
	defer rows.Close()

	var holdings []Holding
	for rows.Next() {
		var h Holding
		var updated string
		if err := rows.Scan(&h.UserID, &h.Symbol, &h.Shares, &h.CostBasis, &updated); err != nil {
			return nil, fmt.Errorf("scan holding: %w", err)
		}
		h.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
		holdings = append(holdings, h)
	}
	return holdings, rows.Err()
}

// Symbols returns the set of symbols a user holds, sorted. The router
// uses this to recognize questions about owned positions.
func (s *Store) Symbols(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT symbol FROM holdings WHERE user_id = ? ORDER BY symbol ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, fmt.Errorf("scan symbol: %w", err)
		}
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}
