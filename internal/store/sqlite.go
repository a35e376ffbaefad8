// ABOUTME: SQLite-backed session event ledger using modernc.org/sqlite
// ABOUTME: Append-only record of spawns, exits, and closes with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SessionEvent is one row of the ledger: something happened to an agent
// session at a point in time.
type SessionEvent struct {
	ID        int64
	AgentKey  string
	Kind      string
	Detail    string
	CreatedAt time.Time
}

// SQLiteStore persists session events. The ledger survives hub restarts
// and answers "what happened to this branch" after the session is gone.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) the ledger database at path. Parent
// directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL keeps readers unblocked while the hub appends.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("session ledger initialized", "path", path)
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS session_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			agent_key TEXT NOT NULL,
			kind TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_session_events_agent
			ON session_events(agent_key, created_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// Record appends one event. Satisfies the hub's Recorder.
func (s *SQLiteStore) Record(ctx context.Context, kind, agentKey, detail string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_events (agent_key, kind, detail, created_at) VALUES (?, ?, ?, ?)`,
		agentKey, kind, detail, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("recording %s event for %s: %w", kind, agentKey, err)
	}
	return nil
}

// EventsFor returns an agent's events, oldest first, capped at limit.
func (s *SQLiteStore) EventsFor(ctx context.Context, agentKey string, limit int) ([]SessionEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agent_key, kind, detail, created_at
		 FROM session_events WHERE agent_key = ?
		 ORDER BY created_at ASC, id ASC LIMIT ?`,
		agentKey, limit)
	if err != nil {
		return nil, fmt.Errorf("querying events for %s: %w", agentKey, err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// RecentEvents returns the newest events across all agents, newest first.
func (s *SQLiteStore) RecentEvents(ctx context.Context, limit int) ([]SessionEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agent_key, kind, detail, created_at
		 FROM session_events
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]SessionEvent, error) {
	var events []SessionEvent
	for rows.Next() {
		var e SessionEvent
		if err := rows.Scan(&e.ID, &e.AgentKey, &e.Kind, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}
	return events, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
