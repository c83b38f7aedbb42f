package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure Go SQLite driver

	"github.com/flowline/runtime/pkg/flowline/errorkit"
	"github.com/flowline/runtime/pkg/flowline/event"
)

// SQLiteStore persists event logs to an embedded SQLite database. Suitable
// for single-process production use; durable across restarts.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore opens (creating if needed) a SQLite store at path, or
// ":memory:" for an ephemeral database.
//
// The database file is created with restrictive permissions (0600) before
// sql.Open ever touches it, avoiding a TOCTOU window where it is briefly
// world-readable.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			f, createErr := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
			if createErr == nil {
				if closeErr := f.Close(); closeErr != nil {
					slog.Warn("failed to close store file after creation",
						slog.String("path", path), slog.String("error", closeErr.Error()))
				}
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL,
			last_event_at TEXT NOT NULL,
			event_count INTEGER NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sessions table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			name TEXT NOT NULL,
			payload_json TEXT NOT NULL,
			timestamp_iso TEXT NOT NULL,
			caused_by TEXT,
			ordinal INTEGER NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create events table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_events_session_ordinal
		ON events(session_id, ordinal)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}

	if path != ":memory:" {
		if err := os.Chmod(path, 0600); err != nil {
			slog.Warn("failed to set restrictive permissions on store file",
				slog.String("path", path), slog.String("error", err.Error()))
		}
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Append(ctx context.Context, sessionID string, e event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errorkit.NewStoreError("STORE_CLOSED", "store is closed", nil)
	}

	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return errorkit.NewStoreError("WRITE_FAILED", "marshal payload", err)
	}

	var causedBy *string
	if e.CausedBy != nil {
		s := e.CausedBy.String()
		causedBy = &s
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errorkit.NewStoreError("WRITE_FAILED", "begin transaction", err)
	}
	defer tx.Rollback()

	var ordinal int
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(ordinal), -1) + 1 FROM events WHERE session_id = ?
	`, sessionID).Scan(&ordinal)
	if err != nil {
		return errorkit.NewStoreError("WRITE_FAILED", "compute ordinal", err)
	}

	ts := e.Timestamp.UTC().Format(time.RFC3339Nano)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO events (id, session_id, name, payload_json, timestamp_iso, caused_by, ordinal)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.ID.String(), sessionID, e.Name, string(payload), ts, causedBy, ordinal)
	if err != nil {
		return errorkit.NewStoreError("WRITE_FAILED", "duplicate event id or insert failure", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, created_at, last_event_at, event_count)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(id) DO UPDATE SET
			last_event_at = excluded.last_event_at,
			event_count = event_count + 1
	`, sessionID, ts, ts)
	if err != nil {
		return errorkit.NewStoreError("WRITE_FAILED", "update session metadata", err)
	}

	if err := tx.Commit(); err != nil {
		return errorkit.NewStoreError("WRITE_FAILED", "commit transaction", err)
	}
	return nil
}

func (s *SQLiteStore) Events(ctx context.Context, sessionID string) ([]event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errorkit.NewStoreError("STORE_CLOSED", "store is closed", nil)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, payload_json, timestamp_iso, caused_by
		FROM events WHERE session_id = ? ORDER BY ordinal
	`, sessionID)
	if err != nil {
		return nil, errorkit.NewStoreError("READ_FAILED", "query events", err)
	}
	defer rows.Close()

	var out []event.Event
	for rows.Next() {
		var idStr, name, payloadJSON, ts string
		var causedByStr sql.NullString
		if err := rows.Scan(&idStr, &name, &payloadJSON, &ts, &causedByStr); err != nil {
			return nil, errorkit.NewStoreError("READ_FAILED", "scan event row", err)
		}

		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, errorkit.NewStoreError("READ_FAILED", "parse event id", err)
		}

		timestamp, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, errorkit.NewStoreError("READ_FAILED", "parse event timestamp", err)
		}

		var payload any
		if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
			return nil, errorkit.NewStoreError("READ_FAILED", "unmarshal payload", err)
		}

		var causedBy *uuid.UUID
		if causedByStr.Valid {
			parsed, err := uuid.Parse(causedByStr.String)
			if err != nil {
				return nil, errorkit.NewStoreError("READ_FAILED", "parse caused_by", err)
			}
			causedBy = &parsed
		}

		out = append(out, event.Event{
			ID:        id,
			Name:      name,
			Payload:   payload,
			Timestamp: timestamp,
			CausedBy:  causedBy,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, errorkit.NewStoreError("READ_FAILED", "iterate events", err)
	}
	if out == nil {
		out = []event.Event{}
	}
	return out, nil
}

func (s *SQLiteStore) Sessions(ctx context.Context) ([]SessionMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errorkit.NewStoreError("STORE_CLOSED", "store is closed", nil)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, last_event_at, event_count FROM sessions
	`)
	if err != nil {
		return nil, errorkit.NewStoreError("READ_FAILED", "query sessions", err)
	}
	defer rows.Close()

	var out []SessionMetadata
	for rows.Next() {
		var id, createdAt, lastEventAt string
		var count int
		if err := rows.Scan(&id, &createdAt, &lastEventAt, &count); err != nil {
			return nil, errorkit.NewStoreError("READ_FAILED", "scan session row", err)
		}
		created, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, errorkit.NewStoreError("READ_FAILED", "parse created_at", err)
		}
		last, err := time.Parse(time.RFC3339Nano, lastEventAt)
		if err != nil {
			return nil, errorkit.NewStoreError("READ_FAILED", "parse last_event_at", err)
		}
		out = append(out, SessionMetadata{ID: id, CreatedAt: created, LastEventAt: last, EventCount: count})
	}
	if err := rows.Err(); err != nil {
		return nil, errorkit.NewStoreError("READ_FAILED", "iterate sessions", err)
	}
	if out == nil {
		out = []SessionMetadata{}
	}
	return out, nil
}

func (s *SQLiteStore) Clear(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errorkit.NewStoreError("STORE_CLOSED", "store is closed", nil)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errorkit.NewStoreError("WRITE_FAILED", "begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE session_id = ?`, sessionID); err != nil {
		return errorkit.NewStoreError("WRITE_FAILED", "delete events", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID); err != nil {
		return errorkit.NewStoreError("WRITE_FAILED", "delete session", err)
	}
	if err := tx.Commit(); err != nil {
		return errorkit.NewStoreError("WRITE_FAILED", "commit transaction", err)
	}
	return nil
}

// Snapshot is unimplemented: SQLite replay is fast enough at the scale
// this runtime targets that a cached fold buys nothing.
func (s *SQLiteStore) Snapshot(ctx context.Context, sessionID string, position int) (*StateSnapshot, error) {
	return nil, nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
