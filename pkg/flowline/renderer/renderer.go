// Package renderer implements the pure-observer fan-out: renderers watch
// events as they dispatch but never mutate state or emit events.
package renderer

import (
	"context"
	"log/slog"
	"sync"

	"github.com/flowline/runtime/pkg/flowline/errorkit"
	"github.com/flowline/runtime/pkg/flowline/event"
)

// Renderer is a pure observer invoked per matching event.
type Renderer[S any] interface {
	Name() string
	Patterns() []string
	Render(ctx context.Context, e event.Event, state S)
}

// Config describes a renderer's declarative behavior.
type Config[S any] struct {
	Name     string
	Patterns []string
	Render   func(ctx context.Context, e event.Event, state S)
}

type renderer[S any] struct {
	cfg Config[S]
}

// New constructs a Renderer[S].
func New[S any](cfg Config[S]) Renderer[S] {
	return &renderer[S]{cfg: cfg}
}

func (r *renderer[S]) Name() string       { return r.cfg.Name }
func (r *renderer[S]) Patterns() []string { return r.cfg.Patterns }

func (r *renderer[S]) Render(ctx context.Context, e event.Event, state S) {
	r.cfg.Render(ctx, e, state)
}

// Registry holds renderers in registration order.
type Registry[S any] struct {
	mu     sync.RWMutex
	byName map[string]Renderer[S]
	order  []Renderer[S]
	logger *slog.Logger
}

// NewRegistry builds an empty Registry. A nil logger discards log output.
func NewRegistry[S any](logger *slog.Logger) *Registry[S] {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry[S]{byName: make(map[string]Renderer[S]), logger: logger}
}

// Register adds r to the registry. A duplicate name returns
// RendererRegistryError (I5).
func (reg *Registry[S]) Register(r Renderer[S]) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, exists := reg.byName[r.Name()]; exists {
		return &errorkit.RendererRegistryError{Name: r.Name(), Message: "renderer already registered"}
	}
	reg.byName[r.Name()] = r
	reg.order = append(reg.order, r)
	return nil
}

// matching returns, in registration order, every renderer whose pattern
// set matches e's name.
func (reg *Registry[S]) matching(e event.Event) []Renderer[S] {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	var out []Renderer[S]
	for _, r := range reg.order {
		if event.MatchesAny(e.Name, r.Patterns()) {
			out = append(out, r)
		}
	}
	return out
}

// RenderEvent synchronously invokes every matching renderer, in
// registration order. A panicking renderer is recovered and logged at
// Warn; it never propagates to the caller (I3).
func (reg *Registry[S]) RenderEvent(ctx context.Context, e event.Event, state S) {
	for _, r := range reg.matching(e) {
		reg.safeRender(ctx, r, e, state)
	}
}

// RenderEventAsync schedules every matching renderer as a fire-and-forget
// goroutine. Ordering across renderers for the same event is unspecified.
func (reg *Registry[S]) RenderEventAsync(ctx context.Context, e event.Event, state S) {
	for _, r := range reg.matching(e) {
		go reg.safeRender(ctx, r, e, state)
	}
}

func (reg *Registry[S]) safeRender(ctx context.Context, r Renderer[S], e event.Event, state S) {
	defer func() {
		if rec := recover(); rec != nil {
			reg.logger.Warn("renderer panicked",
				slog.String("renderer_name", r.Name()),
				slog.Any("recovered", rec))
		}
	}()
	r.Render(ctx, e, state)
}
