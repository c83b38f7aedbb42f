// Package agent implements the declarative LLM-invocation wrapper: an
// activation pattern plus guard, a prompt projector, a mandatory output
// schema, and an emission mapper, executed against a provider.Provider.
package agent

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/flowline/runtime/pkg/flowline/errorkit"
	"github.com/flowline/runtime/pkg/flowline/event"
	"github.com/flowline/runtime/pkg/flowline/provider"
	"github.com/flowline/runtime/pkg/flowline/template"
)

var (
	// AgentStarted is emitted when an agent begins execution.
	AgentStarted = event.Define[StartedPayload]("agent:started")
	// AgentCompleted is emitted when an agent finishes successfully.
	AgentCompleted = event.Define[CompletedPayload]("agent:completed")
	// ErrorOccurred is emitted on agent or provider failure.
	ErrorOccurred = event.Define[ErrorPayload]("error:occurred")
)

// StartedPayload is the payload of an agent:started event.
type StartedPayload struct {
	AgentName string `json:"agentName"`
}

// CompletedPayload is the payload of an agent:completed event.
type CompletedPayload struct {
	AgentName string `json:"agentName"`
	Output    any    `json:"output"`
}

// ErrorPayload is the payload of an error:occurred event.
type ErrorPayload struct {
	AgentName string `json:"agentName"`
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// PromptParts is the output of an agent's prompt projector: the messages
// sent to the provider for this invocation.
type PromptParts struct {
	System   string
	Messages []provider.Message
}

// RetryPolicy is the optional ambient-stack enrichment described in
// SPEC_FULL.md §4.3: transient provider errors retry with backoff;
// escalatable errors may re-invoke against a stronger model.
type RetryPolicy struct {
	Retry      errorkit.RetryConfig
	Escalation errorkit.EscalationChain
}

// Config describes an agent's declarative behavior.
type Config[S any, O any] struct {
	Name         string
	ActivatesOn  []string
	Emits        []string
	OutputSchema any
	Prompt       func(state S, e event.Event) PromptParts
	When         func(state S) bool
	OnOutput     func(output O, triggeringEvent event.Event) []event.Event
	Retry        *RetryPolicy
	Logger       *slog.Logger
}

// Agent is a constructed, activatable agent bound to a Provider. It is
// generic in S only (the output type O is erased), so heterogeneous agents
// over different output types can share one workflow's agent registry.
type Agent[S any] interface {
	Name() string
	ActivatesOn() []string
	// Activated reports whether e should trigger this agent against
	// state, combining pattern match with the When guard.
	Activated(e event.Event, state S) bool
	// Run executes the agent against the triggering event and streams the
	// events it produces (agent:started, translated provider events as
	// they arrive off the provider's Stream, agent:completed/onOutput, or
	// error:occurred) onto the returned channel, which is closed when the
	// invocation ends.
	Run(ctx context.Context, p provider.Provider, e event.Event, state S) <-chan event.Event
}

type agent[S any, O any] struct {
	cfg      Config[S, O]
	expander *template.Expander
}

// New constructs an Agent[S]. Constructing without OutputSchema fails
// synchronously with MissingOutputSchemaError, per §6.
func New[S any, O any](cfg Config[S, O]) (Agent[S], error) {
	if cfg.OutputSchema == nil {
		return nil, &errorkit.MissingOutputSchemaError{AgentName: cfg.Name}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &agent[S, O]{cfg: cfg, expander: template.NewExpander()}, nil
}

func (a *agent[S, O]) Name() string          { return a.cfg.Name }
func (a *agent[S, O]) ActivatesOn() []string { return a.cfg.ActivatesOn }

func (a *agent[S, O]) Activated(e event.Event, state S) bool {
	if !event.MatchesAny(e.Name, a.cfg.ActivatesOn) {
		return false
	}
	if a.cfg.When != nil && !a.cfg.When(state) {
		return false
	}
	return true
}

func (a *agent[S, O]) Run(ctx context.Context, p provider.Provider, e event.Event, state S) <-chan event.Event {
	out := make(chan event.Event)

	go func() {
		defer close(out)
		logger := a.cfg.Logger.With(slog.String("agent_name", a.cfg.Name))

		out <- AgentStarted.Create(StartedPayload{AgentName: a.cfg.Name}, e.ID)

		parts := a.cfg.Prompt(state, e)
		vars := promptVars(state, e)
		if expanded, expandErr := a.expander.Expand(parts.System, vars); expandErr == nil {
			parts.System = expanded
		}
		for i := range parts.Messages {
			if expanded, expandErr := a.expander.Expand(parts.Messages[i].Content, vars); expandErr == nil {
				parts.Messages[i].Content = expanded
			}
		}

		runOnce := func(ctx context.Context, model errorkit.ModelName) (provider.QueryResult, error) {
			req := provider.QueryRequest{
				Messages:  parts.Messages,
				Model:     string(model),
				AgentName: a.cfg.Name,
				OutputFormat: &provider.OutputFormat{
					Type:   "json_schema",
					Schema: a.cfg.OutputSchema,
				},
			}
			return a.streamOnce(ctx, p, req, e.ID, out)
		}

		var result provider.QueryResult
		var err error

		if a.cfg.Retry != nil {
			res := errorkit.Execute(ctx, a.cfg.Retry.Retry, a.cfg.Retry.Escalation, "", runOnce)
			result, err = res.Value, res.Err
		} else {
			result, err = runOnce(ctx, "")
		}

		if err != nil {
			logger.Warn("agent invocation failed", slog.String("error", err.Error()))
			kind := "provider"
			retryable := errorkit.IsRetryable(err)
			out <- ErrorOccurred.Create(ErrorPayload{
				AgentName: a.cfg.Name, Kind: kind, Message: err.Error(), Retryable: retryable,
			}, e.ID)
			return
		}

		var output O
		if result.Output != nil {
			if decoded, ok := result.Output.(O); ok {
				output = decoded
			} else if raw, marshalErr := json.Marshal(result.Output); marshalErr == nil {
				_ = json.Unmarshal(raw, &output)
			}
		} else if result.Text != "" {
			if unmarshalErr := json.Unmarshal([]byte(result.Text), &output); unmarshalErr != nil {
				out <- ErrorOccurred.Create(ErrorPayload{
					AgentName: a.cfg.Name, Kind: "parse", Message: unmarshalErr.Error(), Retryable: false,
				}, e.ID)
				return
			}
		}

		out <- AgentCompleted.Create(CompletedPayload{AgentName: a.cfg.Name, Output: output}, e.ID)

		if a.cfg.OnOutput != nil {
			emitted := a.cfg.OnOutput(output, e)
			for i := range emitted {
				if emitted[i].CausedBy == nil {
					id := e.ID
					emitted[i].CausedBy = &id
				}
				if emitted[i].ID == uuid.Nil {
					emitted[i].ID = uuid.New()
				}
				out <- emitted[i]
			}
		}
	}()

	return out
}

// streamOnce drives one provider turn to completion against p.Stream,
// forwarding every translated event onto out as it arrives rather than
// waiting for the whole turn to finish, and accumulates the final text
// result for structured-output parsing.
func (a *agent[S, O]) streamOnce(ctx context.Context, p provider.Provider, req provider.QueryRequest, causeID uuid.UUID, out chan<- event.Event) (provider.QueryResult, error) {
	ch, err := p.Stream(ctx, req)
	if err != nil {
		return provider.QueryResult{}, err
	}

	var result provider.QueryResult
	var text strings.Builder
	for chunk := range ch {
		if chunk.Err != nil {
			return provider.QueryResult{}, chunk.Err
		}
		if chunk.Event.CausedBy == nil {
			id := causeID
			chunk.Event.CausedBy = &id
		}
		out <- chunk.Event
		result.Events = append(result.Events, chunk.Event)
		switch chunk.Kind {
		case "text":
			if p, ok := chunk.Event.Payload.(provider.TextDeltaPayload); ok {
				text.WriteString(p.Delta)
			}
		case "stop":
			if p, ok := chunk.Event.Payload.(provider.TextCompletePayload); ok {
				text.Reset()
				text.WriteString(p.FullText)
			}
		}
	}
	result.Text = text.String()
	result.SessionID = req.SessionID
	result.StopReason = "end_turn"
	return result, nil
}

// promptVars flattens state and the triggering event's payload into a
// single substitution map for template.Expander, keyed by their JSON
// field names, plus "eventName". Event fields take precedence over
// same-named state fields.
func promptVars(state any, e event.Event) map[string]any {
	vars := map[string]any{"eventName": e.Name}
	merge := func(v any) {
		raw, err := json.Marshal(v)
		if err != nil {
			return
		}
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			return
		}
		for k, val := range m {
			vars[k] = val
		}
	}
	merge(state)
	merge(e.Payload)
	return vars
}
