// Package conversation persists per-conversation message history in
// SQLite and compacts old history into summaries in the background.
package conversation

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	_ "github.com/mattn/go-sqlite3"

	"github.com/finsight-ai/finsight/internal/llm"
	"github.com/finsight-ai/finsight/internal/prompts"
)

// maxStoredContentChars truncates pathological messages before they are
// persisted. Tool results are already capped upstream; this is a
// backstop for direct user input.
const maxStoredContentChars = 10000

// StoredMessage is one persisted history row.
type StoredMessage struct {
	Seq            int64
	ConversationID string
	Role           string
	Content        string
	IsSummary      bool
	CreatedAt      time.Time
}

// Store persists conversation history in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore creates a conversation store at the given database path,
// running migrations on first use.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open conversation database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate conversation schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS messages (
			seq             INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id TEXT NOT NULL,
			role            TEXT NOT NULL,
			content         TEXT NOT NULL,
			is_summary      INTEGER NOT NULL DEFAULT 0,
			created_at      TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, seq);
	`)
	return err
}

// Append persists one message at the end of a conversation.
func (s *Store) Append(ctx context.Context, conversationID, role, content string) error {
	if len(content) > maxStoredContentChars {
		cut := maxStoredContentChars
		for cut > 0 && !utf8.RuneStart(content[cut]) {
			cut--
		}
		content = content[:cut]
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (conversation_id, role, content, is_summary, created_at)
		 VALUES (?, ?, ?, 0, ?)`,
		conversationID, role, content,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// Count returns the number of stored messages in a conversation,
// including any summary row.
func (s *Store) Count(ctx context.Context, conversationID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE conversation_id = ?`,
		conversationID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

// History returns a conversation's messages in chronological order,
// ready to send to the model. Summary rows are stored with role
// "system" but returned as user messages because the messages array
// only accepts user/assistant roles.
func (s *Store) History(ctx context.Context, conversationID string) ([]llm.Message, error) {
	rows, err := s.listRows(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	msgs := make([]llm.Message, 0, len(rows))
	for _, r := range rows {
		role := r.Role
		if role == "system" {
			role = "user"
		}
		msgs = append(msgs, llm.Message{Role: role, Content: r.Content})
	}
	return msgs, nil
}

// Clear removes all messages in a conversation and returns the number
// deleted.
func (s *Store) Clear(ctx context.Context, conversationID string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM messages WHERE conversation_id = ?`,
		conversationID,
	)
	if err != nil {
		return 0, fmt.Errorf("clear conversation: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Older returns the messages that would be compacted away if the
// conversation kept only its last keepRecent rows, in chronological
// order. Existing summary rows are included so their content folds into
// the next summary.
func (s *Store) Older(ctx context.Context, conversationID string, keepRecent int) ([]StoredMessage, error) {
	rows, err := s.listRows(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if len(rows) <= keepRecent {
		return nil, nil
	}
	return rows[:len(rows)-keepRecent], nil
}

// Compact replaces the given old rows with a single summary row placed
// before the surviving messages. The operation is transactional: on
// error the history is unchanged.
func (s *Store) Compact(ctx context.Context, conversationID string, old []StoredMessage, summary string) error {
	if len(old) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin compact: %w", err)
	}
	defer tx.Rollback()

	for _, r := range old {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM messages WHERE seq = ?`, r.Seq,
		); err != nil {
			return fmt.Errorf("delete old message: %w", err)
		}
	}

	// Reuse the oldest deleted seq so the summary sorts before the
	// surviving messages.
	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (seq, conversation_id, role, content, is_summary, created_at)
		 VALUES (?, ?, 'system', ?, 1, ?)`,
		old[0].Seq, conversationID,
		prompts.SummaryPrefix+summary,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert summary: %w", err)
	}

	return tx.Commit()
}

// Transcript renders rows as "role: content" lines for the summary
// prompt.
func Transcript(rows []StoredMessage) string {
	var sb strings.Builder
	for _, r := range rows {
		sb.WriteString(r.Role)
		sb.WriteString(": ")
		sb.WriteString(r.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}

func (s *Store) listRows(ctx context.Context, conversationID string) ([]StoredMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, conversation_id, role, content, is_summary, created_at
		 FROM messages WHERE conversation_id = ? ORDER BY seq ASC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []StoredMessage
	for rows.Next() {
		var m StoredMessage
		var created string
		if err := rows.Scan(&m.Seq, &m.ConversationID, &m.Role, &m.Content, &m.IsSummary, &created); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.CreatedAt, _ = time.Parse(time.RFC3339, created)
		out = append(out, m)
	}
	return out, rows.Err()
}
