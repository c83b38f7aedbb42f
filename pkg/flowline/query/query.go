// Package query provides read-only introspection of a running or
// completed session: status, progress, the last event seen, session
// variables, and any pending human-in-the-loop task. Queries never
// mutate the session they inspect.
package query

import (
	"context"
	"fmt"
	"sync"
)

// Handler answers a named query for a session.
type Handler func(ctx context.Context, sessionID string, args any) (any, error)

// Registry maps query names to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds a handler to a query name. A duplicate name is an
// error.
func (r *Registry) Register(name string, h Handler) error {
	if name == "" {
		return fmt.Errorf("query: name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("query: handler for %q already registered", name)
	}
	r.handlers[name] = h
	return nil
}

func (r *Registry) get(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// ErrNotFound is returned when a query name has no registered handler.
var ErrNotFound = fmt.Errorf("query: not found")

// ErrSessionNotFound is returned when the session loader cannot resolve
// sessionID.
var ErrSessionNotFound = fmt.Errorf("query: session not found")

// PendingTask describes a human-in-the-loop task a session is blocked
// on.
type PendingTask struct {
	TaskID      string
	Title       string
	Description string
	CreatedAt   string
}

// State is the queryable projection of a session's runtime state, built
// by a Workflow's StateLoader from its internal typed state.
type State struct {
	SessionID   string
	Status      string // "running", "terminated", "failed"
	Progress    float64
	LastEvent   string
	Variables   map[string]any
	PendingTask *PendingTask
}

// Loader retrieves the current queryable State for a session.
type Loader func(ctx context.Context, sessionID string) (*State, error)

// Executor runs registered queries against a Loader.
type Executor struct {
	registry *Registry
	loader   Loader
}

// NewExecutor builds an Executor.
func NewExecutor(registry *Registry, loader Loader) *Executor {
	return &Executor{registry: registry, loader: loader}
}

// Execute runs the named query against sessionID.
func (e *Executor) Execute(ctx context.Context, sessionID, name string, args any) (any, error) {
	h, ok := e.registry.get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return h(ctx, sessionID, args)
}

// Built-in query names.
const (
	QueryStatus      = "status"
	QueryProgress    = "progress"
	QueryLastEvent   = "last_event"
	QueryVariables   = "variables"
	QueryPendingTask = "pending_task"
	QueryState       = "state"
)

// RegisterBuiltins registers the standard query handlers, backed by
// loader.
func RegisterBuiltins(registry *Registry, loader Loader) error {
	load := func(ctx context.Context, sessionID string) (*State, error) {
		st, err := loader(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if st == nil {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		return st, nil
	}

	builtins := map[string]Handler{
		QueryStatus: func(ctx context.Context, sessionID string, _ any) (any, error) {
			st, err := load(ctx, sessionID)
			if err != nil {
				return nil, err
			}
			return st.Status, nil
		},
		QueryProgress: func(ctx context.Context, sessionID string, _ any) (any, error) {
			st, err := load(ctx, sessionID)
			if err != nil {
				return nil, err
			}
			return st.Progress, nil
		},
		QueryLastEvent: func(ctx context.Context, sessionID string, _ any) (any, error) {
			st, err := load(ctx, sessionID)
			if err != nil {
				return nil, err
			}
			return st.LastEvent, nil
		},
		QueryVariables: func(ctx context.Context, sessionID string, args any) (any, error) {
			st, err := load(ctx, sessionID)
			if err != nil {
				return nil, err
			}
			if name, ok := args.(string); ok && name != "" {
				val, exists := st.Variables[name]
				if !exists {
					return nil, fmt.Errorf("query: variable %q not found", name)
				}
				return val, nil
			}
			return st.Variables, nil
		},
		QueryPendingTask: func(ctx context.Context, sessionID string, _ any) (any, error) {
			st, err := load(ctx, sessionID)
			if err != nil {
				return nil, err
			}
			return st.PendingTask, nil
		},
		QueryState: func(ctx context.Context, sessionID string, _ any) (any, error) {
			return load(ctx, sessionID)
		},
	}

	for name, h := range builtins {
		if err := registry.Register(name, h); err != nil {
			return fmt.Errorf("query: register builtin %q: %w", name, err)
		}
	}
	return nil
}
