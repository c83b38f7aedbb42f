// Package workflow is the top-level runtime loop: it dequeues events,
// folds them through a handler.Registry, dispatches matching agents and
// renderers, and decides when a session is done.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowline/runtime/pkg/flowline/agent"
	"github.com/flowline/runtime/pkg/flowline/config"
	"github.com/flowline/runtime/pkg/flowline/errorkit"
	"github.com/flowline/runtime/pkg/flowline/event"
	"github.com/flowline/runtime/pkg/flowline/handler"
	"github.com/flowline/runtime/pkg/flowline/observability"
	"github.com/flowline/runtime/pkg/flowline/provider"
	"github.com/flowline/runtime/pkg/flowline/query"
	"github.com/flowline/runtime/pkg/flowline/renderer"
	"github.com/flowline/runtime/pkg/flowline/signal"
	"github.com/flowline/runtime/pkg/flowline/store"
	"github.com/flowline/runtime/pkg/flowline/tape"
)

// UserInput is the event that seeds every run: the caller's raw input
// text, wrapped so handlers can pattern-match on "user:*".
var UserInput = event.Define[UserInputPayload]("user:input")

// UserInputPayload is the payload of a user:input event.
type UserInputPayload struct {
	Text string `json:"text"`
}

// Config describes a workflow's wiring: the reducer, the agent and
// renderer fan-out, the persistence layer, and the termination
// condition.
type Config[S any] struct {
	Name         string
	InitialState S
	Handlers     *handler.Registry[S]
	Agents       *agent.Registry[S]
	Renderers    *renderer.Registry[S]
	Store        store.Store
	Until        func(state S) bool
	Provider     provider.Provider
	// ProviderConfig carries loosely-typed provider tuning (timeouts,
	// default model, retry knobs). The workflow keeps it on its Config but
	// neither reads it nor forwards it to Provider.
	ProviderConfig config.Config
	Logger         *slog.Logger
}

// RunInput is the input to a single Run call.
type RunInput struct {
	Input     string
	Record    bool
	SessionID string
}

// RunResult is the outcome of a Run call.
type RunResult[S any] struct {
	State      S
	Events     []event.Event
	Tape       *tape.Tape[S]
	Terminated bool
	SessionID  string
}

// Workflow is a constructed, runnable session driver bound to one
// Config[S].
type Workflow[S any] struct {
	cfg     Config[S]
	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
	pause   *signal.PauseSwitch

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// New validates cfg and constructs a Workflow[S]. Handlers is required;
// the rest are optional, and Agents, Renderers and Logger default to
// empty/no-op values.
func New[S any](cfg Config[S]) (*Workflow[S], error) {
	if cfg.Handlers == nil {
		return nil, &errorkit.WorkflowRuntimeError{Code: "INVALID_CONFIG", Message: "Handlers registry is required"}
	}
	if cfg.Agents == nil {
		cfg.Agents = agent.NewRegistry[S]()
	}
	if cfg.Renderers == nil {
		cfg.Renderers = renderer.NewRegistry[S](cfg.Logger)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Workflow[S]{
		cfg:     cfg,
		logger:  cfg.Logger.With(slog.String("workflow", cfg.Name)),
		metrics: observability.NewMetricsRecorder(),
		spans:   observability.NewSpanManager(),
		pause:   signal.NewPauseSwitch(),
		cancels: make(map[string]context.CancelFunc),
	}, nil
}

// Pause closes the runtime's phase-boundary gate; every in-flight and
// future Run call blocks at its next event-loop iteration until Resume.
func (w *Workflow[S]) Pause() { w.pause.Pause() }

// Resume reopens the gate, waking every Run call blocked in Pause.
func (w *Workflow[S]) Resume() { w.pause.Resume() }

// Run drives one session to completion: dequeue an event, record it,
// reduce it, enqueue what it emits, dispatch agents and renderers, and
// repeat until the queue drains or Until reports the state is done.
func (w *Workflow[S]) Run(ctx context.Context, in RunInput) (RunResult[S], error) {
	sessionID := in.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.cancels[sessionID] = cancel
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		delete(w.cancels, sessionID)
		w.mu.Unlock()
		cancel()
	}()

	spanCtx, span := w.spans.StartSessionSpan(runCtx, w.cfg.Name, sessionID)
	start := time.Now()
	observability.LogSessionStart(w.logger, w.cfg.Name, sessionID)

	state := w.cfg.InitialState
	queue := []event.Event{UserInput.Create(UserInputPayload{Text: in.Input})}
	var allEvents []event.Event
	terminated := false

	var runErr error
	for len(queue) > 0 {
		if err := w.pause.Wait(spanCtx); err != nil {
			runErr = err
			break
		}
		if err := spanCtx.Err(); err != nil {
			runErr = err
			break
		}

		e := queue[0]
		queue = queue[1:]

		eventStart := time.Now()

		if in.Record && w.cfg.Store != nil {
			storeStart := time.Now()
			if err := w.cfg.Store.Append(spanCtx, sessionID, e); err != nil {
				runErr = &errorkit.WorkflowRuntimeError{Code: "STORE_APPEND_FAILED", Message: err.Error(), Err: err}
				break
			}
			w.metrics.RecordStoreAppend(spanCtx, sessionID, time.Since(storeStart))
		}

		newState, emitted := w.reduceSafely(e, state)
		state = newState
		allEvents = append(allEvents, e)
		queue = append(queue, emitted...)

		if dispatchErr := w.dispatchAgents(spanCtx, sessionID, e, in.Record, &state, &allEvents, &queue); dispatchErr != nil {
			runErr = dispatchErr
			break
		}

		w.cfg.Renderers.RenderEventAsync(spanCtx, e, state)

		w.metrics.RecordEventDispatch(spanCtx, sessionID, e.Name, time.Since(eventStart))
		observability.LogEventDispatched(w.logger, sessionID, e.Name, len(emitted))

		if w.cfg.Until != nil && w.cfg.Until(state) {
			terminated = true
			break
		}
	}

	w.spans.EndSpanWithError(span, runErr)
	if runErr != nil {
		observability.LogSessionError(w.logger, sessionID, runErr)
		return RunResult[S]{
			State:      state,
			Events:     allEvents,
			Tape:       tape.New(allEvents, w.cfg.Handlers, w.cfg.InitialState).StepTo(len(allEvents) - 1),
			Terminated: true,
			SessionID:  sessionID,
		}, runErr
	}

	observability.LogSessionComplete(w.logger, sessionID, len(allEvents), time.Since(start))

	return RunResult[S]{
		State:      state,
		Events:     allEvents,
		Tape:       tape.New(allEvents, w.cfg.Handlers, w.cfg.InitialState).StepTo(len(allEvents) - 1),
		Terminated: terminated,
		SessionID:  sessionID,
	}, nil
}

// reduceSafely runs the handler registry, recovering a handler panic
// into an error:occurred event rather than crashing the loop (grounded
// on the teacher's execute.go per-node panic recovery).
func (w *Workflow[S]) reduceSafely(e event.Event, state S) (next S, emitted []event.Event) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("handler panicked", slog.String("event_name", e.Name), slog.Any("recovered", r))
			next = state
			emitted = []event.Event{agent.ErrorOccurred.Create(agent.ErrorPayload{
				Kind: "handler", Message: fmt.Sprintf("%v", r), Retryable: false,
			}, e.ID)}
		}
	}()
	return w.cfg.Handlers.Reduce(e, state)
}

// dispatchAgents runs every agent activated by e concurrently. Each
// agent streams its events (including translated provider events) back
// over a shared channel as they arrive; this loop drains that channel
// on the single runtime goroutine, reducing and rendering every event
// live rather than waiting for the whole invocation to finish. It does
// not return to the caller — advancing to the next top-level queue item
// — until every agent's stream has closed (joined via sync.WaitGroup).
func (w *Workflow[S]) dispatchAgents(ctx context.Context, sessionID string, e event.Event, record bool, state *S, allEvents *[]event.Event, queue *[]event.Event) error {
	activated := w.cfg.Agents.Activated(e, *state)
	if len(activated) == 0 {
		return nil
	}

	results := make(chan event.Event)
	var wg sync.WaitGroup
	for _, a := range activated {
		wg.Add(1)
		go func(a agent.Agent[S]) {
			defer wg.Done()
			agentStart := time.Now()
			agentCtx, agentSpan := w.spans.StartAgentSpan(ctx, a.Name())
			observability.LogAgentStarted(w.logger, sessionID, a.Name(), e.Name)
			var runErr error
			for evt := range a.Run(agentCtx, w.cfg.Provider, e, *state) {
				if agent.ErrorOccurred.Is(evt) {
					runErr = fmt.Errorf("agent %q reported an error event", a.Name())
				}
				results <- evt
			}
			w.spans.EndSpanWithError(agentSpan, runErr)
			w.metrics.RecordAgentInvocation(ctx, a.Name(), time.Since(agentStart), runErr)
			if runErr == nil {
				observability.LogAgentCompleted(w.logger, sessionID, a.Name(), time.Since(agentStart))
			} else {
				observability.LogAgentError(w.logger, sessionID, a.Name(), runErr)
			}
		}(a)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	for evt := range results {
		if record && w.cfg.Store != nil {
			if err := w.cfg.Store.Append(ctx, sessionID, evt); err != nil {
				return &errorkit.WorkflowRuntimeError{Code: "STORE_APPEND_FAILED", Message: err.Error(), Err: err}
			}
		}
		newState, emitted := w.reduceSafely(evt, *state)
		*state = newState
		*allEvents = append(*allEvents, evt)
		*queue = append(*queue, emitted...)
		w.cfg.Renderers.RenderEventAsync(ctx, evt, *state)
	}
	return nil
}

// Load restores a Tape over sessionID's persisted event log, positioned
// at its last event.
func (w *Workflow[S]) Load(ctx context.Context, sessionID string) (*tape.Tape[S], error) {
	if w.cfg.Store == nil {
		return nil, &errorkit.WorkflowRuntimeError{Code: "NO_STORE", Message: "workflow has no configured store"}
	}
	events, err := w.cfg.Store.Events(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return tape.New(events, w.cfg.Handlers, w.cfg.InitialState).StepTo(len(events) - 1), nil
}

// Dispose cancels every in-flight Run call's context and unregisters no
// further work. It does not close the Store; callers own that lifecycle.
func (w *Workflow[S]) Dispose(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, cancel := range w.cancels {
		cancel()
	}
	w.cancels = make(map[string]context.CancelFunc)
	return nil
}

// QueryLoader adapts a Workflow's persisted state into a query.Loader by
// replaying the session's event log and projecting it with toState.
func QueryLoader[S any](w *Workflow[S], toState func(sessionID string, state S, lastEvent string, terminated bool) *query.State) query.Loader {
	return func(ctx context.Context, sessionID string) (*query.State, error) {
		tp, err := w.Load(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		played, err := tp.Play(ctx)
		if err != nil {
			return nil, err
		}
		lastEvent := ""
		if cur, ok := played.Current(); ok {
			lastEvent = cur.Name
		}
		terminated := w.cfg.Until != nil && w.cfg.Until(played.State())
		return toState(sessionID, played.State(), lastEvent, terminated), nil
	}
}
