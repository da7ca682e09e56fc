// Package backend implements concrete ChatBackend adapters over real LLM
// wire protocols: Anthropic's Claude API and OpenAI's Chat Completions
// API. The engine treats the protocol as an external collaborator, but an
// abstract interface with no working implementation can't drive a real
// run, so these two adapters ship in-tree.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/skillrun/agentcore/internal/engine"
)

// maxEmptyAnthropicEvents bounds consecutive no-op stream events before
// the connection is treated as malformed, guarding against runaway SSE
// floods.
const maxEmptyAnthropicEvents = 300

// AnthropicConfig configures an AnthropicBackend. No retry knobs: the
// loop layer already owns retry/backoff decisions at the run level, so
// the backend adapter stays a thin protocol mapper.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
}

// AnthropicBackend implements engine.ChatBackend over the Anthropic
// Messages API, streaming content blocks as they arrive.
type AnthropicBackend struct {
	client       anthropic.Client
	defaultModel string
}

// NewAnthropicBackend builds an AnthropicBackend. Returns an error if no
// API key is configured.
func NewAnthropicBackend(cfg AnthropicConfig) (*AnthropicBackend, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("backend: anthropic API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-sonnet-4-20250514"
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &AnthropicBackend{client: anthropic.NewClient(opts...), defaultModel: cfg.DefaultModel}, nil
}

func (b *AnthropicBackend) Name() string { return "anthropic" }

// StreamChat converts req into an Anthropic streaming request and
// translates each server-sent event into a ChatChunk. Tool-call input
// JSON is accumulated across input_json_delta events before being
// surfaced as one complete engine.ToolCall.
func (b *AnthropicBackend) StreamChat(ctx context.Context, req engine.ChatRequest) (<-chan engine.ChatChunk, error) {
	messages, err := convertMessagesToAnthropic(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("backend: anthropic: convert messages: %w", err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(firstNonEmpty(req.Model, b.defaultModel)),
		Messages:  messages,
		MaxTokens: int64(firstPositive(req.MaxTokens, 4096)),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	}
	if len(req.Tools) > 0 {
		tools, err := convertToolsToAnthropic(req.Tools)
		if err != nil {
			return nil, fmt.Errorf("backend: anthropic: convert tools: %w", err)
		}
		params.Tools = tools
	}

	stream := b.client.Messages.NewStreaming(ctx, params)
	chunks := make(chan engine.ChatChunk)
	go processAnthropicStream(stream, chunks)
	return chunks, nil
}

// processAnthropicStream drains an Anthropic SSE stream, emitting a
// text_delta ChatChunk per text delta and accumulating tool_use input
// JSON across input_json_delta events. stop_reason "max_tokens" maps to
// FinishLength so the loop's context-recovery machine sees it the same
// way it would a true overflow.
func processAnthropicStream(stream *ssestream.Stream[anthropic.MessageStreamEventUnion], chunks chan<- engine.ChatChunk) {
	defer close(chunks)

	var pending []engine.ToolCall
	var currentCall *engine.ToolCall
	var currentInput strings.Builder
	var inputTokens, outputTokens int
	emptyEvents := 0

	for stream.Next() {
		event := stream.Current()
		processed := true

		switch event.Type {
		case "message_start":
			ms := event.AsMessageStart()
			if ms.Message.Usage.InputTokens > 0 {
				inputTokens = int(ms.Message.Usage.InputTokens)
			}
		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			if block.Type == "tool_use" {
				tu := block.AsToolUse()
				currentCall = &engine.ToolCall{CallID: tu.ID, Name: tu.Name}
				currentInput.Reset()
			} else {
				processed = false
			}
		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					chunks <- engine.ChatChunk{TextDelta: delta.Text}
				} else {
					processed = false
				}
			case "input_json_delta":
				if delta.PartialJSON != "" {
					currentInput.WriteString(delta.PartialJSON)
				} else {
					processed = false
				}
			default:
				processed = false
			}
		case "content_block_stop":
			if currentCall != nil {
				raw := currentInput.String()
				currentCall.RawArguments = &raw
				var args map[string]any
				if err := json.Unmarshal([]byte(raw), &args); err == nil {
					currentCall.Args = args
				} else {
					currentCall.Args = map[string]any{}
				}
				pending = append(pending, *currentCall)
				currentCall = nil
			} else {
				processed = false
			}
		case "message_delta":
			md := event.AsMessageDelta()
			if md.Usage.OutputTokens > 0 {
				outputTokens = int(md.Usage.OutputTokens)
			}
			if reason := string(md.Delta.StopReason); reason != "" {
				finish := anthropicFinishReason(reason, len(pending) > 0)
				for _, tc := range pending {
					tc := tc
					chunks <- engine.ChatChunk{ToolCall: &tc}
				}
				chunks <- engine.ChatChunk{Done: true, FinishReason: finish, InputTokens: inputTokens, OutputTokens: outputTokens}
				return
			}
		case "message_stop":
			for _, tc := range pending {
				tc := tc
				chunks <- engine.ChatChunk{ToolCall: &tc}
			}
			chunks <- engine.ChatChunk{Done: true, FinishReason: engine.FinishStop, InputTokens: inputTokens, OutputTokens: outputTokens}
			return
		case "error":
			chunks <- engine.ChatChunk{Err: fmt.Errorf("backend: anthropic stream error")}
			return
		default:
			processed = false
		}

		if processed {
			emptyEvents = 0
		} else {
			emptyEvents++
			if emptyEvents >= maxEmptyAnthropicEvents {
				chunks <- engine.ChatChunk{Err: fmt.Errorf("backend: anthropic stream appears malformed after %d empty events", emptyEvents)}
				return
			}
		}
	}
	if err := stream.Err(); err != nil {
		chunks <- engine.ChatChunk{Err: fmt.Errorf("backend: anthropic stream: %w", err)}
	}
}

// anthropicFinishReason maps Anthropic's stop_reason vocabulary onto the
// engine's closed FinishReason enum.
func anthropicFinishReason(stopReason string, hasToolCalls bool) engine.FinishReason {
	switch stopReason {
	case "max_tokens":
		return engine.FinishLength
	case "tool_use":
		return engine.FinishToolCalls
	default:
		if hasToolCalls {
			return engine.FinishToolCalls
		}
		return engine.FinishStop
	}
}

func convertMessagesToAnthropic(msgs []engine.ChatMessage) ([]anthropic.MessageParam, error) {
	var out []anthropic.MessageParam
	for _, m := range msgs {
		if m.Role == "system" {
			continue
		}
		var content []anthropic.ContentBlockParamUnion
		if m.Content != "" {
			content = append(content, anthropic.NewTextBlock(m.Content))
		}
		if m.Role == "tool" {
			content = append(content, anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false))
			out = append(out, anthropic.NewUserMessage(content...))
			continue
		}
		for _, tc := range m.ToolCalls {
			content = append(content, anthropic.NewToolUseBlock(tc.CallID, argsOrEmpty(tc), tc.Name))
		}
		if m.Role == "assistant" {
			out = append(out, anthropic.NewAssistantMessage(content...))
		} else {
			out = append(out, anthropic.NewUserMessage(content...))
		}
	}
	return out, nil
}

func argsOrEmpty(tc engine.ToolCall) map[string]any {
	if tc.Args != nil {
		return tc.Args
	}
	return map[string]any{}
}

func convertToolsToAnthropic(tools []engine.ToolSpec) ([]anthropic.ToolUnionParam, error) {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema anthropic.ToolInputSchemaParam
		if len(t.Parameters) > 0 {
			if err := json.Unmarshal(t.Parameters, &schema); err != nil {
				return nil, fmt.Errorf("invalid schema for %s: %w", t.Name, err)
			}
		}
		param := anthropic.ToolUnionParamOfTool(schema, t.Name)
		if param.OfTool == nil {
			return nil, fmt.Errorf("invalid tool definition for %s", t.Name)
		}
		param.OfTool.Description = anthropic.String(t.Description)
		out = append(out, param)
	}
	return out, nil
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func firstPositive(a, b int) int {
	if a > 0 {
		return a
	}
	return b
}
