package handler

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/flowline/runtime/pkg/flowline/errorkit"
	"github.com/flowline/runtime/pkg/flowline/event"
)

// Registry resolves an event to its named handler and optional catch-all,
// then folds them in sequence. At most one handler may be registered per
// exact name; a single "*" handler may additionally be registered and
// always runs after the named handler.
type Registry[S any] struct {
	mu       sync.RWMutex
	byName   map[string]Handler[S]
	wildcard Handler[S]
	logger   *slog.Logger
}

// NewRegistry builds an empty Registry. A nil logger discards log output.
func NewRegistry[S any](logger *slog.Logger) *Registry[S] {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry[S]{byName: make(map[string]Handler[S]), logger: logger}
}

// Register adds h to the registry. Registering a second handler for the
// same exact name returns HandlerRegistryError; the "*" name is exempt
// from this check and instead fills the single wildcard slot (a second
// "*" registration is still rejected).
func (r *Registry[S]) Register(h Handler[S]) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := h.Name()
	if name == "*" {
		if r.wildcard != nil {
			return &errorkit.HandlerRegistryError{Name: name, Message: "catch-all handler already registered"}
		}
		r.wildcard = h
		return nil
	}

	if _, exists := r.byName[name]; exists {
		return &errorkit.HandlerRegistryError{Name: name, Message: "handler already registered for this event name"}
	}
	r.byName[name] = h
	return nil
}

// Reduce runs the named handler for e (if any) followed by the catch-all
// (if any) against state, returning the final state and the concatenation
// of both handlers' emitted events. An event with no matching handler at
// all is logged and leaves state unchanged.
func (r *Registry[S]) Reduce(e event.Event, state S) (S, []event.Event) {
	r.mu.RLock()
	named := r.byName[e.Name]
	wildcard := r.wildcard
	r.mu.RUnlock()

	if named == nil && wildcard == nil {
		r.logger.Warn("no handler registered for event", slog.String("event_name", e.Name))
		return state, nil
	}

	var emitted []event.Event
	if named != nil {
		var fromNamed []event.Event
		state, fromNamed = named.Handle(e, state)
		emitted = append(emitted, attachCause(fromNamed, e.ID)...)
	}
	if wildcard != nil {
		var fromWildcard []event.Event
		state, fromWildcard = wildcard.Handle(e, state)
		emitted = append(emitted, attachCause(fromWildcard, e.ID)...)
	}
	return state, emitted
}

// Fold replays events over initial using this registry, returning the
// final state. It ignores emitted events, matching the determinism
// invariant: emissions are only meaningful once they are themselves
// present in the log.
func (r *Registry[S]) Fold(events []event.Event, initial S) S {
	state := initial
	for _, e := range events {
		state, _ = r.Reduce(e, state)
	}
	return state
}

// attachCause fills in CausedBy on any emitted event that didn't already
// set one, so I2 holds even for handlers that forget to pass causedBy to
// Definition.Create.
func attachCause(events []event.Event, causeID uuid.UUID) []event.Event {
	for i := range events {
		if events[i].CausedBy == nil {
			id := causeID
			events[i].CausedBy = &id
		}
	}
	return events
}
