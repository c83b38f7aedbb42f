package provider

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/flowline/runtime/pkg/flowline/config"
	"github.com/flowline/runtime/pkg/flowline/errorkit"
)

// AnthropicSDKProvider talks to the Anthropic Messages API (or a
// Bedrock-fronted equivalent) through the real streaming SDK, translating
// its message-event sequence into the core event vocabulary.
type AnthropicSDKProvider struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
}

// NewAnthropicSDKProvider builds an AnthropicSDKProvider against the
// direct Anthropic API. Recognized cfg keys: "model", "apiKey",
// "maxTokens" (default 4096), "temperature" (default 1.0).
func NewAnthropicSDKProvider(cfg config.Config) *AnthropicSDKProvider {
	opts := []option.RequestOption{}
	if key := cfg.String("apiKey", ""); key != "" {
		opts = append(opts, option.WithAPIKey(key))
	}
	return &AnthropicSDKProvider{
		client:      anthropic.NewClient(opts...),
		model:       cfg.String("model", string(anthropic.ModelClaudeSonnet4_5)),
		maxTokens:   int64(cfg.Int("maxTokens", 4096)),
		temperature: cfg.Float("temperature", 1.0),
	}
}

func (p *AnthropicSDKProvider) Info() ProviderInfo {
	return ProviderInfo{Type: "sdk", Name: "anthropic-sdk", Model: p.model, Connected: true}
}

func (p *AnthropicSDKProvider) Query(ctx context.Context, req QueryRequest) (QueryResult, error) {
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
			if payload, ok := chunk.Event.Payload.(TextDeltaPayload); ok {
				text.WriteString(payload.Delta)
			}
		}
	}
	result.Text = text.String()
	result.SessionID = req.SessionID
	result.StopReason = "end_turn"
	return result, nil
}

func (p *AnthropicSDKProvider) Stream(ctx context.Context, req QueryRequest) (<-chan StreamChunk, error) {
	ownCtx := ctx
	var cancel context.CancelFunc
	if ctx == nil {
		ownCtx, cancel = context.WithCancel(context.Background())
	}

	model := p.model
	if req.Model != "" {
		model = req.Model
	}

	var sdkMessages []anthropic.MessageParam
	var systemPrompt string
	var priorToolResults []StreamChunk
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			systemPrompt = m.Content
		case "assistant":
			sdkMessages = append(sdkMessages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		case "tool":
			sdkMessages = append(sdkMessages, anthropic.NewUserMessage(anthropic.NewToolResultBlock(m.ToolUseID, m.Content, m.IsError)))
			payload := ToolResultPayload{ToolID: m.ToolUseID, Output: m.Content, IsError: m.IsError, AgentName: req.AgentName}
			priorToolResults = append(priorToolResults, StreamChunk{Kind: "tool_result", Event: ToolResult.Create(payload)})
		default:
			sdkMessages = append(sdkMessages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		Messages:    sdkMessages,
		MaxTokens:   p.maxTokens,
		Temperature: anthropic.Float(p.temperature),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}

	stream := p.client.Messages.NewStreaming(ownCtx, params)

	ch := make(chan StreamChunk)
	go func() {
		defer close(ch)
		defer func() {
			if cancel != nil {
				cancel()
			}
		}()

		for _, chunk := range priorToolResults {
			if !sendChunk(ownCtx, ch, chunk) {
				return
			}
		}

		var fullText strings.Builder
		sawDelta := false

		type toolState struct {
			id, name string
			input    strings.Builder
		}
		toolByIndex := make(map[int64]*toolState)

		for stream.Next() {
			ev := stream.Current()

			switch ev.Type {
			case "content_block_start":
				if ev.ContentBlock.Type == "tool_use" {
					toolByIndex[ev.Index] = &toolState{id: ev.ContentBlock.ID, name: ev.ContentBlock.Name}
				}

			case "content_block_delta":
				if ev.Delta.Type == "text_delta" && ev.Delta.Text != "" {
					fullText.WriteString(ev.Delta.Text)
					sawDelta = true
					payload := TextDeltaPayload{Delta: ev.Delta.Text, AgentName: req.AgentName}
					if !sendChunk(ownCtx, ch, StreamChunk{Kind: "text", Event: TextDelta.Create(payload)}) {
						return
					}
				}
				if ev.Delta.Type == "input_json_delta" {
					if t, ok := toolByIndex[ev.Index]; ok {
						t.input.WriteString(ev.Delta.PartialJSON)
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

			case "message_stop":
				if sawDelta {
					payload := TextCompletePayload{FullText: fullText.String(), AgentName: req.AgentName}
					if !sendChunk(ownCtx, ch, StreamChunk{Kind: "stop", Event: TextComplete.Create(payload)}) {
						return
					}
				}
			}
		}

		if err := stream.Err(); err != nil && err != io.EOF {
			retryable := errorkit.Categorize(errorkit.NewProviderError("PROVIDER_ERROR", err.Error(), false, err)) == errorkit.CategoryTransient
			sendChunk(ownCtx, ch, StreamChunk{Err: errorkit.NewProviderError("PROVIDER_ERROR", err.Error(), retryable, err)})
		}
	}()

	return ch, nil
}
