package agent

import (
	"sync"

	"github.com/flowline/runtime/pkg/flowline/errorkit"
	"github.com/flowline/runtime/pkg/flowline/event"
)

// Registry holds agents in registration order; activation for a given
// event considers them in that order (I5 uniqueness, §4.3 "Activation
// order ... is registration order").
type Registry[S any] struct {
	mu     sync.RWMutex
	byName map[string]Agent[S]
	order  []Agent[S]
}

// NewRegistry builds an empty Registry.
func NewRegistry[S any]() *Registry[S] {
	return &Registry[S]{byName: make(map[string]Agent[S])}
}

// Register adds a to the registry. A duplicate name returns
// AgentRegistryError.
func (r *Registry[S]) Register(a Agent[S]) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[a.Name()]; exists {
		return &errorkit.AgentRegistryError{Name: a.Name(), Message: "agent already registered"}
	}
	r.byName[a.Name()] = a
	r.order = append(r.order, a)
	return nil
}

// Activated returns, in registration order, every agent whose activation
// pattern and guard both match for the given event and state.
func (r *Registry[S]) Activated(e event.Event, state S) []Agent[S] {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Agent[S]
	for _, a := range r.order {
		if a.Activated(e, state) {
			out = append(out, a)
		}
	}
	return out
}
