// Package tape provides an immutable cursor over a session's event log
// that derives state on demand by folding a handler.Registry over a
// prefix of the log.
package tape

import (
	"context"

	"github.com/flowline/runtime/pkg/flowline/event"
	"github.com/flowline/runtime/pkg/flowline/handler"
)

// Tape is an immutable cursor over a fixed event log. Every Step*
// operation returns a new Tape; the receiver is unchanged.
type Tape[S any] struct {
	events   []event.Event
	initial  S
	handlers *handler.Registry[S]
	position int // index of the last event folded in, -1 means none
}

// New builds a Tape at position -1 (no events applied) over events,
// folding with handlers starting from initial.
func New[S any](events []event.Event, handlers *handler.Registry[S], initial S) *Tape[S] {
	return &Tape[S]{events: events, initial: initial, handlers: handlers, position: -1}
}

// Position returns the index of the event last applied, or -1 if none.
func (t *Tape[S]) Position() int { return t.position }

// Length returns the number of events in the underlying log.
func (t *Tape[S]) Length() int { return len(t.events) }

// Events returns the full underlying event list. Callers must not modify
// the returned slice.
func (t *Tape[S]) Events() []event.Event { return t.events }

// State folds handlers over events[0..position] and returns the result.
func (t *Tape[S]) State() S {
	return t.StateAt(t.position)
}

// StateAt is a pure query: fold over events[0..n] without moving the
// cursor. n < 0 returns the initial state.
func (t *Tape[S]) StateAt(n int) S {
	if n < 0 {
		return t.initial
	}
	if n >= len(t.events) {
		n = len(t.events) - 1
	}
	return t.handlers.Fold(t.events[:n+1], t.initial)
}

// Current returns the event at position, if any.
func (t *Tape[S]) Current() (event.Event, bool) {
	if t.position < 0 || t.position >= len(t.events) {
		return event.Event{}, false
	}
	return t.events[t.position], true
}

// Step returns a new Tape advanced by one position. Stepping past the end
// of the log is a no-op (returns a Tape at the last valid position).
func (t *Tape[S]) Step() *Tape[S] {
	return t.StepTo(t.position + 1)
}

// StepBack returns a new Tape retreated by one position. Stepping before
// the start is a no-op (returns a Tape at position -1).
func (t *Tape[S]) StepBack() *Tape[S] {
	return t.StepTo(t.position - 1)
}

// StepTo returns a new Tape at the absolute position n, clamped to
// [-1, len(events)-1].
func (t *Tape[S]) StepTo(n int) *Tape[S] {
	if n < -1 {
		n = -1
	}
	if n >= len(t.events) {
		n = len(t.events) - 1
	}
	return &Tape[S]{events: t.events, initial: t.initial, handlers: t.handlers, position: n}
}

// Rewind returns a new Tape at position 0 (the first event applied).
func (t *Tape[S]) Rewind() *Tape[S] {
	return t.StepTo(0)
}

// Play advances one step at a time to the last position, checking ctx
// between steps so cancellation is observed cooperatively.
func (t *Tape[S]) Play(ctx context.Context) (*Tape[S], error) {
	cur := t
	for cur.position < len(cur.events)-1 {
		if err := ctx.Err(); err != nil {
			return cur, err
		}
		cur = cur.Step()
	}
	return cur, nil
}
