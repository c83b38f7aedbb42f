package store

import (
	"context"
	"sync"
	"time"

	"github.com/flowline/runtime/pkg/flowline/errorkit"
	"github.com/flowline/runtime/pkg/flowline/event"
)

type session struct {
	events    []event.Event
	ids       map[string]struct{}
	createdAt time.Time
	lastAt    time.Time
}

// MemoryStore is a process-lifetime Store. Data is lost when the process
// exits.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*session
	closed   bool
}

// NewMemoryStore creates a new in-memory Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*session)}
}

func (m *MemoryStore) Append(ctx context.Context, sessionID string, e event.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errorkit.NewStoreError("STORE_CLOSED", "store is closed", nil)
	}

	s, ok := m.sessions[sessionID]
	if !ok {
		s = &session{ids: make(map[string]struct{}), createdAt: e.Timestamp}
		m.sessions[sessionID] = s
	}

	if _, exists := s.ids[e.ID.String()]; exists {
		return errorkit.NewStoreError("WRITE_FAILED", "duplicate event id", nil)
	}

	s.ids[e.ID.String()] = struct{}{}
	s.events = append(s.events, e)
	s.lastAt = e.Timestamp
	return nil
}

func (m *MemoryStore) Events(ctx context.Context, sessionID string) ([]event.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return []event.Event{}, nil
	}
	out := make([]event.Event, len(s.events))
	copy(out, s.events)
	return out, nil
}

func (m *MemoryStore) Sessions(ctx context.Context) ([]SessionMetadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]SessionMetadata, 0, len(m.sessions))
	for id, s := range m.sessions {
		out = append(out, SessionMetadata{
			ID:          id,
			CreatedAt:   s.createdAt,
			LastEventAt: s.lastAt,
			EventCount:  len(s.events),
		})
	}
	return out, nil
}

func (m *MemoryStore) Clear(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}

// Snapshot is unimplemented: pure replay from the log is always
// sufficient for a memory store, so there is no need to cache folds.
func (m *MemoryStore) Snapshot(ctx context.Context, sessionID string, position int) (*StateSnapshot, error) {
	return nil, nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.sessions = nil
	return nil
}
