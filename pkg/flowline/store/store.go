// Package store provides the append-only, per-session event log contract
// plus two implementations: an in-memory store and an embedded-SQL
// (SQLite) store.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/flowline/runtime/pkg/flowline/event"
)

// SessionMetadata describes a session's position in time.
type SessionMetadata struct {
	ID          string
	CreatedAt   time.Time
	LastEventAt time.Time
	EventCount  int
}

// StateSnapshot is an optional precomputed fold result a store may cache
// at a given log position. Stores that don't implement snapshotting
// return (nil, nil) from Snapshot.
type StateSnapshot struct {
	State    []byte
	Position int
	EventID  uuid.UUID
}

// Store is an append-only event log keyed by session id.
//
// Implementations MUST NOT mutate or reorder events once appended;
// Events must return them in the order Append received them.
type Store interface {
	// Append adds event e to sessionID's log. A duplicate e.ID within the
	// same store is a StoreError{Code: "WRITE_FAILED"}.
	Append(ctx context.Context, sessionID string, e event.Event) error

	// Events returns sessionID's log in append order. An unknown session
	// returns an empty slice, never an error.
	Events(ctx context.Context, sessionID string) ([]event.Event, error)

	// Sessions returns metadata for every known session.
	Sessions(ctx context.Context) ([]SessionMetadata, error)

	// Clear removes all events and metadata for sessionID. A no-op if
	// sessionID is unknown.
	Clear(ctx context.Context, sessionID string) error

	// Snapshot returns a cached fold result at position, or (nil, nil) if
	// the store doesn't implement snapshotting.
	Snapshot(ctx context.Context, sessionID string, position int) (*StateSnapshot, error)

	// Close releases any resources held by the store.
	Close() error
}
