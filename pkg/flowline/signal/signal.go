// Package signal provides fire-and-forget message delivery into a running
// workflow session, plus the specific pause/resume primitive the runtime
// loop checks at every phase boundary.
//
// Design influences: Temporal workflow signals (fire-and-forget, no
// response channel) and the condition-variable-style wait/notify used to
// park a goroutine until an external actor releases it.
package signal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the delivery state of a Signal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusProcessed Status = "processed"
	StatusFailed    Status = "failed"
)

// Signal is a fire-and-forget message addressed to a session: a
// cancellation request, a human-in-the-loop response, or any other
// out-of-band input a running session needs to observe without blocking
// the sender.
type Signal struct {
	ID        string
	Name      string
	TargetID  string
	Payload   map[string]any
	SenderID  string
	Status    Status
	SentAt    time.Time
	Processed *time.Time
	Error     string
}

// New builds a pending Signal addressed to targetID.
func New(name, targetID string, payload map[string]any) *Signal {
	return &Signal{
		ID:       fmt.Sprintf("sig-%s", uuid.New().String()[:8]),
		Name:     name,
		TargetID: targetID,
		Payload:  payload,
		Status:   StatusPending,
		SentAt:   time.Now(),
	}
}

// Handler processes a delivered signal.
type Handler func(ctx context.Context, targetID string, sig *Signal) error

// Registry maps signal names to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds a handler to a signal name. A duplicate name is an
// error.
func (r *Registry) Register(name string, h Handler) error {
	if name == "" {
		return fmt.Errorf("signal: name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("signal: handler for %q already registered", name)
	}
	r.handlers[name] = h
	return nil
}

// Get returns the handler registered for name, if any.
func (r *Registry) Get(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// ErrNoHandler is returned when no handler exists for a delivered signal.
var ErrNoHandler = fmt.Errorf("signal: no handler registered")

// Dispatcher delivers signals to their targets' registered handlers.
type Dispatcher struct {
	registry *Registry
}

// NewDispatcher builds a Dispatcher over registry.
func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// Send delivers sig synchronously to its handler, marking it processed
// or failed. Grounded on the "enqueue + process" split of a broader
// signal bus, collapsed to a direct call since the runtime loop is
// already single-threaded cooperative per session and has no separate
// delivery queue to drain.
func (d *Dispatcher) Send(ctx context.Context, sig *Signal) error {
	h, ok := d.registry.Get(sig.Name)
	if !ok {
		sig.Status = StatusFailed
		sig.Error = ErrNoHandler.Error()
		return ErrNoHandler
	}
	if err := h(ctx, sig.TargetID, sig); err != nil {
		sig.Status = StatusFailed
		sig.Error = err.Error()
		return err
	}
	now := time.Now()
	sig.Status = StatusProcessed
	sig.Processed = &now
	return nil
}

// PauseSwitch is a boolean-plus-waiter gate a runtime loop checks at
// every phase/task boundary. Pause() sets the gate closed; Resume() sets
// it open and wakes every goroutine blocked in Wait(). The gate starts
// open.
type PauseSwitch struct {
	mu     sync.Mutex
	cond   *sync.Cond
	paused bool
}

// NewPauseSwitch builds an open (not paused) PauseSwitch.
func NewPauseSwitch() *PauseSwitch {
	ps := &PauseSwitch{}
	ps.cond = sync.NewCond(&ps.mu)
	return ps
}

// Pause closes the gate. Goroutines already blocked in Wait, and any
// future callers, block until Resume.
func (p *PauseSwitch) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = true
}

// Resume opens the gate and wakes every blocked Wait call.
func (p *PauseSwitch) Resume() {
	p.mu.Lock()
	p.paused = false
	p.mu.Unlock()
	p.cond.Broadcast()
}

// Paused reports whether the gate is currently closed.
func (p *PauseSwitch) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// Wait blocks until the gate is open or ctx is done. A cancelled ctx
// returns ctx.Err(); an already-open gate returns immediately.
func (p *PauseSwitch) Wait(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.cond.Broadcast()
	})
	defer stop()

	p.mu.Lock()
	defer p.mu.Unlock()
	for p.paused {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.cond.Wait()
	}
	return nil
}
