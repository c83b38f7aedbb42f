package errorkit

import "context"

// ModelName identifies an LLM model by its provider-facing name.
type ModelName string

// EscalationChain is an ordered list of models to climb through, weakest
// first, when an escalatable error keeps recurring.
type EscalationChain []ModelName

// EscalationState tracks progress through an EscalationChain for a single
// agent invocation.
type EscalationState struct {
	chain        EscalationChain
	CurrentModel ModelName
	idx          int
	failures     int
	maxFailures  int
}

// NewEscalationState starts tracking escalation from startModel. If
// startModel isn't in chain, escalation starts from the chain's first
// entry on the first recorded failure.
func NewEscalationState(chain EscalationChain, startModel ModelName) *EscalationState {
	idx := -1
	for i, m := range chain {
		if m == startModel {
			idx = i
			break
		}
	}
	return &EscalationState{chain: chain, CurrentModel: startModel, idx: idx, maxFailures: 1}
}

// RecordFailure registers a failure at the current model. It returns
// false once the chain is exhausted (no stronger model remains).
func (s *EscalationState) RecordFailure(err error) bool {
	s.failures++
	if s.failures < s.maxFailures {
		return true
	}
	s.failures = 0
	for i, m := range s.chain {
		if m == s.CurrentModel && i+1 < len(s.chain) {
			s.idx = i + 1
			s.CurrentModel = s.chain[s.idx]
			return true
		}
	}
	if s.idx+1 < len(s.chain) {
		s.idx++
		s.CurrentModel = s.chain[s.idx]
		return true
	}
	return false
}

// Exhausted reports whether escalation has run out of stronger models.
func (s *EscalationState) Exhausted() bool {
	return s.idx >= len(s.chain)-1
}

// EscalationResult is the outcome of Execute.
type EscalationResult[T any] struct {
	Value       T
	Err         error
	FinalModel  ModelName
	Attempts    int
	Escalations int
}

// Execute runs fn under cfg's retry policy, escalating to the next model
// in chain whenever an escalatable error exhausts its retries, until the
// chain itself is exhausted.
func Execute[T any](
	ctx context.Context,
	cfg RetryConfig,
	chain EscalationChain,
	startModel ModelName,
	fn func(ctx context.Context, model ModelName) (T, error),
) EscalationResult[T] {
	currentModel := startModel
	totalAttempts := 0
	escalations := 0
	state := NewEscalationState(chain, startModel)

	for {
		result := WithRetryContext(ctx, cfg, func(ctx context.Context) (T, error) {
			return fn(ctx, currentModel)
		})
		totalAttempts += result.Attempts

		if result.Err == nil {
			return EscalationResult[T]{Value: result.Value, FinalModel: currentModel, Attempts: totalAttempts, Escalations: escalations}
		}

		if !IsEscalatable(result.Err) {
			return EscalationResult[T]{Err: result.Err, FinalModel: currentModel, Attempts: totalAttempts, Escalations: escalations}
		}

		if !state.RecordFailure(result.Err) {
			return EscalationResult[T]{Err: result.Err, FinalModel: currentModel, Attempts: totalAttempts, Escalations: escalations}
		}
		if state.CurrentModel == currentModel {
			return EscalationResult[T]{Err: result.Err, FinalModel: currentModel, Attempts: totalAttempts, Escalations: escalations}
		}
		currentModel = state.CurrentModel
		escalations++
	}
}
