// Package errorkit is the runtime's stable error taxonomy plus the
// categorization/retry/escalation machinery agents and providers use to
// decide whether a failure is worth retrying.
package errorkit

import "fmt"

// StoreError is returned by Store operations. Code is one of a small
// stable set ("NOT_FOUND", "WRITE_FAILED", ...); callers are expected to
// switch on Code rather than parse Error().
type StoreError struct {
	Code    string
	Message string
	Err     error
}

func (e *StoreError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("store error [%s]: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("store error [%s]", e.Code)
}

func (e *StoreError) Unwrap() error { return e.Err }

// NewStoreError builds a StoreError with the given code.
func NewStoreError(code, message string, cause error) *StoreError {
	return &StoreError{Code: code, Message: message, Err: cause}
}

// ProviderError is returned by Provider.Query/Stream. Retryable indicates
// whether the caller may safely retry the same request.
type ProviderError struct {
	Code      string
	Message   string
	Retryable bool
	Err       error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error [%s] retryable=%t: %s", e.Code, e.Retryable, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NewProviderError builds a ProviderError.
func NewProviderError(code, message string, retryable bool, cause error) *ProviderError {
	return &ProviderError{Code: code, Message: message, Retryable: retryable, Err: cause}
}

// WorkflowRuntimeError is returned by the Workflow Run loop for
// unrecoverable internal failures (store death, invariant violations).
type WorkflowRuntimeError struct {
	Code    string
	Message string
	Err     error
}

func (e *WorkflowRuntimeError) Error() string {
	return fmt.Sprintf("workflow runtime error [%s]: %s", e.Code, e.Message)
}

func (e *WorkflowRuntimeError) Unwrap() error { return e.Err }

// HandlerRegistryError is returned at construction time when a handler
// registration violates I5 (duplicate name, or a second "*" handler).
// Handler names are not otherwise validated.
type HandlerRegistryError struct {
	Name    string
	Message string
}

func (e *HandlerRegistryError) Error() string {
	return fmt.Sprintf("handler registry error for %q: %s", e.Name, e.Message)
}

// AgentRegistryError is returned at construction time for duplicate agent
// names. Activation patterns are not validated at registration.
type AgentRegistryError struct {
	Name    string
	Message string
}

func (e *AgentRegistryError) Error() string {
	return fmt.Sprintf("agent registry error for %q: %s", e.Name, e.Message)
}

// EventBusError indicates the bus could not dispatch or enqueue an event.
type EventBusError struct {
	Message string
	Err     error
}

func (e *EventBusError) Error() string { return fmt.Sprintf("event bus error: %s", e.Message) }
func (e *EventBusError) Unwrap() error { return e.Err }

// RendererRegistryError is returned at construction time for duplicate
// renderer names.
type RendererRegistryError struct {
	Name    string
	Message string
}

func (e *RendererRegistryError) Error() string {
	return fmt.Sprintf("renderer registry error for %q: %s", e.Name, e.Message)
}

// MissingOutputSchemaError is returned synchronously by agent.New when an
// agent is constructed without an OutputSchema.
type MissingOutputSchemaError struct {
	AgentName string
}

func (e *MissingOutputSchemaError) Error() string {
	return fmt.Sprintf("agent %q: output schema is required", e.AgentName)
}
