// Package provider abstracts a streaming LLM backend and translates its
// native message sequence into the core event vocabulary
// (text:delta/complete, tool:called/result).
package provider

import (
	"context"

	"github.com/flowline/runtime/pkg/flowline/event"
)

// Message is one turn in a conversation sent to a Provider. Role "tool"
// carries a previously-executed tool's result back to the model for its
// next turn; ToolUseID and IsError are only meaningful for that role.
type Message struct {
	Role      string // "user", "assistant", "system", "tool"
	Content   string
	ToolUseID string
	IsError   bool
}

// QueryRequest is the input to Provider.Query/Stream.
type QueryRequest struct {
	Messages       []Message
	Model          string
	OutputFormat   *OutputFormat
	SessionID      string
	MaxTurns       int
	PermissionMode string
	AgentName      string
}

// OutputFormat requests structured output conforming to Schema.
type OutputFormat struct {
	Type   string // "json_schema"
	Schema any
}

// QueryResult is the outcome of a completed Query call.
type QueryResult struct {
	Events     []event.Event
	SessionID  string
	Text       string
	Output     any
	StopReason string
}

// StreamChunk is one unit of a Stream call. Kind is one of "text",
// "tool_use", "tool_result", "stop"; a chunk carrying Err has no Kind.
type StreamChunk struct {
	Kind  string
	Event event.Event
	Err   error
}

// ProviderInfo describes a Provider instance.
type ProviderInfo struct {
	Type      string
	Name      string
	Model     string
	Connected bool
}

// Provider encapsulates a streaming LLM backend.
type Provider interface {
	// Query runs req to completion and returns every core event produced
	// along the way plus the final text/structured output.
	Query(ctx context.Context, req QueryRequest) (QueryResult, error)
	// Stream runs req and delivers core events as they are translated.
	// The channel is closed when the turn ends (success, error, or abort).
	Stream(ctx context.Context, req QueryRequest) (<-chan StreamChunk, error)
	// Info describes this provider instance.
	Info() ProviderInfo
}

// Core event definitions shared by every Provider adapter's translation
// layer (§4.4). Every adapter MUST emit exactly these names.
var (
	TextDelta    = event.Define[TextDeltaPayload]("text:delta")
	TextComplete = event.Define[TextCompletePayload]("text:complete")
	ToolCalled   = event.Define[ToolCalledPayload]("tool:called")
	ToolResult   = event.Define[ToolResultPayload]("tool:result")
)

// TextDeltaPayload is the payload of a text:delta event.
type TextDeltaPayload struct {
	Delta     string `json:"delta"`
	AgentName string `json:"agentName,omitempty"`
}

// TextCompletePayload is the payload of a text:complete event.
type TextCompletePayload struct {
	FullText  string `json:"fullText"`
	AgentName string `json:"agentName,omitempty"`
}

// ToolCalledPayload is the payload of a tool:called event.
type ToolCalledPayload struct {
	ToolName  string         `json:"toolName"`
	ToolID    string         `json:"toolId"`
	Input     map[string]any `json:"input"`
	AgentName string         `json:"agentName,omitempty"`
}

// ToolResultPayload is the payload of a tool:result event.
type ToolResultPayload struct {
	ToolID    string `json:"toolId"`
	Output    any    `json:"output"`
	IsError   bool   `json:"isError"`
	AgentName string `json:"agentName,omitempty"`
}
