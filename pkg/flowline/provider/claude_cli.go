package provider

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/flowline/runtime/pkg/flowline/config"
	"github.com/flowline/runtime/pkg/flowline/errorkit"
)

// ClaudeCLIProvider shells out to a claude-style CLI binary, scanning its
// "--output-format stream-json" lines and translating them into the core
// event vocabulary.
type ClaudeCLIProvider struct {
	path    string
	model   string
	workdir string
	timeout time.Duration
}

// NewClaudeCLIProvider builds a ClaudeCLIProvider from cfg. Recognized
// keys: "path" (default "claude"), "model", "workdir", "timeout"
// (duration, default 5m).
func NewClaudeCLIProvider(cfg config.Config) *ClaudeCLIProvider {
	return &ClaudeCLIProvider{
		path:    cfg.String("path", "claude"),
		model:   cfg.String("model", ""),
		workdir: cfg.String("workdir", ""),
		timeout: cfg.Duration("timeout", 5*time.Minute),
	}
}

func (p *ClaudeCLIProvider) Info() ProviderInfo {
	return ProviderInfo{Type: "cli", Name: "claude-cli", Model: p.model, Connected: true}
}

func (p *ClaudeCLIProvider) Query(ctx context.Context, req QueryRequest) (QueryResult, error) {
	ch, err := p.Stream(ctx, req)
	if err != nil {
		return QueryResult{}, err
	}

	var result QueryResult
	var text strings.Builder
	for chunk := range ch {
		if chunk.Err != nil {
			return QueryResult{}, chunk.Err
		}
		result.Events = append(result.Events, chunk.Event)
		if chunk.Kind == "text" {
			if p, ok := chunk.Event.Payload.(TextDeltaPayload); ok {
				text.WriteString(p.Delta)
			}
		}
	}
	result.Text = text.String()
	result.SessionID = req.SessionID
	result.StopReason = "end_turn"
	return result, nil
}

func (p *ClaudeCLIProvider) Stream(ctx context.Context, req QueryRequest) (<-chan StreamChunk, error) {
	ownCtx := ctx
	if ownCtx == nil {
		ownCtx = context.Background()
	}
	var cancel context.CancelFunc
	if p.timeout > 0 {
		ownCtx, cancel = context.WithTimeout(ownCtx, p.timeout)
	} else if ctx == nil {
		ownCtx, cancel = context.WithCancel(ownCtx)
	}

	args := p.buildArgs(req)
	cmd := exec.CommandContext(ownCtx, p.path, args...)
	if p.workdir != "" {
		cmd.Dir = p.workdir
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		if cancel != nil {
			cancel()
		}
		return nil, errorkit.NewProviderError("PROVIDER_ERROR", fmt.Sprintf("create stdout pipe: %v", err), false, err)
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		if cancel != nil {
			cancel()
		}
		return nil, errorkit.NewProviderError("PROVIDER_ERROR", fmt.Sprintf("start command: %v", err), false, err)
	}

	ch := make(chan StreamChunk)
	go func() {
		defer close(ch)
		defer func() {
			_ = cmd.Wait()
			if cancel != nil {
				cancel()
			}
		}()

		for _, m := range req.Messages {
			if m.Role != "tool" {
				continue
			}
			payload := ToolResultPayload{ToolID: m.ToolUseID, Output: m.Content, IsError: m.IsError, AgentName: req.AgentName}
			if !sendChunk(ownCtx, ch, StreamChunk{Kind: "tool_result", Event: ToolResult.Create(payload)}) {
				return
			}
		}

		scanner := bufio.NewScanner(stdout)
		var fullText strings.Builder
		sawDelta := false
		toolByIndex := make(map[int64]*cliToolState)

		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}

			var ev cliStreamEvent
			if err := json.Unmarshal([]byte(line), &ev); err != nil {
				continue
			}

			switch ev.Type {
			case "content_block_start":
				if ev.ContentBlock != nil && ev.ContentBlock.Type == "tool_use" {
					toolByIndex[ev.Index] = &cliToolState{id: ev.ContentBlock.ID, name: ev.ContentBlock.Name}
				}
			case "content_block_delta":
				if ev.Delta != nil && ev.Delta.Type == "input_json_delta" {
					if t, ok := toolByIndex[ev.Index]; ok {
						t.input.WriteString(ev.Delta.PartialJSON)
					}
					break
				}
				if ev.Delta != nil && ev.Delta.Text != "" {
					fullText.WriteString(ev.Delta.Text)
					sawDelta = true
					payload := TextDeltaPayload{Delta: ev.Delta.Text, AgentName: req.AgentName}
					if !sendChunk(ownCtx, ch, StreamChunk{Kind: "text", Event: TextDelta.Create(payload)}) {
						return
					}
				}
			case "content_block_stop":
				if t, ok := toolByIndex[ev.Index]; ok {
					var input map[string]any
					if t.input.Len() > 0 {
						_ = json.Unmarshal([]byte(t.input.String()), &input)
					}
					payload := ToolCalledPayload{ToolName: t.name, ToolID: t.id, Input: input, AgentName: req.AgentName}
					if !sendChunk(ownCtx, ch, StreamChunk{Kind: "tool_use", Event: ToolCalled.Create(payload)}) {
						return
					}
					delete(toolByIndex, ev.Index)
				}
			case "tool_result":
				if ev.ToolResult != nil {
					payload := ToolResultPayload{
						ToolID: ev.ToolResult.ToolUseID, Output: ev.ToolResult.Content,
						IsError: ev.ToolResult.IsError, AgentName: req.AgentName,
					}
					if !sendChunk(ownCtx, ch, StreamChunk{Kind: "tool_result", Event: ToolResult.Create(payload)}) {
						return
					}
				}
			case "message_stop":
				if sawDelta {
					payload := TextCompletePayload{FullText: fullText.String(), AgentName: req.AgentName}
					if !sendChunk(ownCtx, ch, StreamChunk{Kind: "stop", Event: TextComplete.Create(payload)}) {
						return
					}
				}
			}
		}

		if err := scanner.Err(); err != nil {
			sendChunk(ownCtx, ch, StreamChunk{Err: errorkit.NewProviderError("NETWORK_ERROR", err.Error(), true, err)})
			return
		}

		if stderr.Len() > 0 && !sawDelta {
			msg := stderr.String()
			retryable := isRetryableError(msg)
			sendChunk(ownCtx, ch, StreamChunk{Err: errorkit.NewProviderError("PROVIDER_ERROR", msg, retryable, nil)})
		}
	}()

	return ch, nil
}

func sendChunk(ctx context.Context, ch chan<- StreamChunk, chunk StreamChunk) bool {
	select {
	case ch <- chunk:
		return true
	case <-ctx.Done():
		select {
		case ch <- StreamChunk{Err: errorkit.NewProviderError("ABORTED", "context canceled", false, ctx.Err())}:
		default:
		}
		return false
	}
}

func (p *ClaudeCLIProvider) buildArgs(req QueryRequest) []string {
	args := []string{"--print", "--output-format", "stream-json"}

	model := p.model
	if req.Model != "" {
		model = req.Model
	}
	if model != "" {
		args = append(args, "--model", model)
	}
	if req.MaxTurns > 0 {
		args = append(args, "--max-turns", fmt.Sprintf("%d", req.MaxTurns))
	}
	if req.PermissionMode != "" {
		args = append(args, "--permission-mode", req.PermissionMode)
	}
	if req.SessionID != "" {
		args = append(args, "--resume", req.SessionID)
	}

	var prompt strings.Builder
	for _, msg := range req.Messages {
		switch msg.Role {
		case "user":
			prompt.WriteString(msg.Content)
			prompt.WriteString("\n")
		case "assistant":
			if prompt.Len() > 0 {
				prompt.WriteString("\nAssistant: ")
				prompt.WriteString(msg.Content)
				prompt.WriteString("\n\nUser: ")
			}
		}
	}
	if promptStr := strings.TrimSpace(prompt.String()); promptStr != "" {
		args = append(args, "-p", promptStr)
	}
	return args
}

// isRetryableError checks for well-known transient-failure substrings in
// a CLI stderr message.
func isRetryableError(errMsg string) bool {
	lower := strings.ToLower(errMsg)
	for _, substr := range []string{"rate limit", "timeout", "overloaded", "503", "529"} {
		if strings.Contains(lower, substr) {
			return true
		}
	}
	return false
}

type cliStreamEvent struct {
	Type         string           `json:"type"`
	Index        int64            `json:"index"`
	Delta        *cliDelta        `json:"delta,omitempty"`
	ContentBlock *cliContentBlock `json:"content_block,omitempty"`
	ToolResult   *cliToolResult   `json:"tool_result,omitempty"`
	Usage        cliUsageInfo     `json:"usage,omitempty"`
}

type cliDelta struct {
	Type        string `json:"type"`
	Text        string `json:"text"`
	PartialJSON string `json:"partial_json"`
}

// cliContentBlock mirrors the stream-json "content_block_start" shape for
// a tool_use block, the CLI's counterpart to the SDK's ContentBlockStart.
type cliContentBlock struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Name string `json:"name"`
}

// cliToolResult mirrors the stream-json record the CLI emits once its own
// tool loop has executed a tool_use block and produced a result.
type cliToolResult struct {
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
	IsError   bool   `json:"is_error"`
}

// cliToolState accumulates one tool_use block's streamed input fragments,
// indexed by content-block index, mirroring the SDK adapter's toolState.
type cliToolState struct {
	id, name string
	input    strings.Builder
}

type cliUsageInfo struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}
