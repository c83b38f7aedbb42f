// Package event provides the atomic record type of the runtime: an
// immutable, causality-tracked Event plus the pattern language used to
// select events for dispatch.
package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is an immutable record of something that happened.
//
// Name follows the pattern "domain:action"; colons are part of the name.
// "*", "prefix:*" and "*:suffix" are reserved for pattern matching (see
// Matches) and must never be used as literal event names.
type Event struct {
	ID        uuid.UUID
	Name      string
	Payload   any
	Timestamp time.Time
	CausedBy  *uuid.UUID
}

// PayloadAs unmarshals the event payload into a value of type T, going
// through JSON so callers get the same behavior whether the payload
// originated as a typed struct (in-process) or a map[string]any (loaded
// from a store).
func PayloadAs[T any](e Event) (T, error) {
	var out T
	switch p := e.Payload.(type) {
	case T:
		return p, nil
	default:
		raw, err := json.Marshal(e.Payload)
		if err != nil {
			return out, err
		}
		if err := json.Unmarshal(raw, &out); err != nil {
			return out, err
		}
		return out, nil
	}
}

// Definition binds a name to a payload type, giving callers a typed
// constructor instead of hand-assembling Event values.
type Definition[P any] struct {
	name string
}

// Define registers a new event definition for the given name. It does not
// touch any registry; uniqueness of names across a workflow is enforced
// where definitions are actually wired to handlers (see handler.Registry).
func Define[P any](name string) Definition[P] {
	return Definition[P]{name: name}
}

// Name returns the event name this definition produces.
func (d Definition[P]) Name() string {
	return d.name
}

// Create builds a new Event of this definition's name carrying payload.
// When causedBy is supplied, the first element becomes the event's
// CausedBy reference (later elements are ignored); this mirrors the
// teacher's variadic-option ergonomics without requiring an empty-UUID
// sentinel for "no parent".
func (d Definition[P]) Create(payload P, causedBy ...uuid.UUID) Event {
	e := Event{
		ID:        uuid.New(),
		Name:      d.name,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
	if len(causedBy) > 0 {
		id := causedBy[0]
		e.CausedBy = &id
	}
	return e
}

// Is reports whether evt was produced by this definition.
func (d Definition[P]) Is(evt Event) bool {
	return evt.Name == d.name
}
