// Package handler provides the pure reducer abstraction: a function from
// (event, state) to (state, emitted events), keyed by event name.
package handler

import (
	"github.com/flowline/runtime/pkg/flowline/event"
)

// Handler is a registered reducer. It is generic in the state type S only,
// so heterogeneous handlers over the same S can live in one registry; the
// payload type P is erased by Define's closure.
type Handler[S any] interface {
	// Name is the event name this handler is registered for, or "*" for
	// the catch-all.
	Name() string
	// Handle runs the reducer against e and the current state.
	Handle(e event.Event, state S) (S, []event.Event)
}

// Func is the reducer signature for a handler over a decoded payload P.
type Func[P any, S any] func(payload P, e event.Event, state S) (S, []event.Event)

type definedHandler[P any, S any] struct {
	def Definition[P]
	fn  Func[P, S]
}

// Definition is the subset of event.Definition[P] a handler needs: its
// name and how to decode an event's payload.
type Definition[P any] interface {
	Name() string
}

func (h definedHandler[P, S]) Name() string { return h.def.Name() }

func (h definedHandler[P, S]) Handle(e event.Event, state S) (S, []event.Event) {
	payload, err := event.PayloadAs[P](e)
	if err != nil {
		// A handler registered for this name received a payload that
		// doesn't decode to P; leave state unchanged rather than panic.
		return state, nil
	}
	return h.fn(payload, e, state)
}

// Define builds a Handler[S] bound to def's event name, decoding each
// dispatched event's payload as P before calling fn.
func Define[P any, S any](def Definition[P], fn Func[P, S]) Handler[S] {
	return definedHandler[P, S]{def: def, fn: fn}
}

// DefineAny builds a catch-all ("*") Handler[S] that receives the raw
// event without payload decoding.
func DefineAny[S any](fn func(e event.Event, state S) (S, []event.Event)) Handler[S] {
	return anyHandler[S]{fn: fn}
}

type anyHandler[S any] struct {
	fn func(e event.Event, state S) (S, []event.Event)
}

func (h anyHandler[S]) Name() string { return "*" }

func (h anyHandler[S]) Handle(e event.Event, state S) (S, []event.Event) {
	return h.fn(e, state)
}
