package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/skillrun/agentcore/internal/engine"
)

// OpenAIConfig configures an OpenAIBackend.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
}

// OpenAIBackend implements engine.ChatBackend over OpenAI's Chat
// Completions streaming API: per-index tool-call accumulation across
// delta chunks, one chunk flush per completed call.
type OpenAIBackend struct {
	client       *openai.Client
	defaultModel string
}

// NewOpenAIBackend builds an OpenAIBackend.
func NewOpenAIBackend(cfg OpenAIConfig) (*OpenAIBackend, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("backend: openai API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gpt-4o"
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIBackend{client: openai.NewClientWithConfig(clientCfg), defaultModel: cfg.DefaultModel}, nil
}

func (b *OpenAIBackend) Name() string { return "openai" }

// StreamChat converts req into an OpenAI chat-completion streaming
// request and translates each chunk into an engine.ChatChunk.
func (b *OpenAIBackend) StreamChat(ctx context.Context, req engine.ChatRequest) (<-chan engine.ChatChunk, error) {
	messages := convertMessagesToOpenAI(req.Messages, req.System)

	chatReq := openai.ChatCompletionRequest{
		Model:    firstNonEmpty(req.Model, b.defaultModel),
		Messages: messages,
		Stream:   true,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertToolsToOpenAI(req.Tools)
	}

	stream, err := b.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("backend: openai: create stream: %w", err)
	}

	chunks := make(chan engine.ChatChunk)
	go processOpenAIStream(stream, chunks)
	return chunks, nil
}

type openaiToolCallBuilder struct {
	id   string
	name string
	args strings.Builder
}

// processOpenAIStream drains the OpenAI stream, accumulating per-index
// tool-call fragments (OpenAI streams function-call arguments as partial
// JSON strings keyed by array index, not by a stable call ID until the
// first fragment) and flushing each completed call once finish_reason
// arrives.
func processOpenAIStream(stream *openai.ChatCompletionStream, chunks chan<- engine.ChatChunk) {
	defer close(chunks)
	defer stream.Close()

	calls := map[int]*openaiToolCallBuilder{}
	var inputTokens, outputTokens int

	flush := func(finish engine.FinishReason) {
		indices := make([]int, 0, len(calls))
		for idx := range calls {
			indices = append(indices, idx)
		}
		sortInts(indices)
		for _, idx := range indices {
			b := calls[idx]
			if b.id == "" || b.name == "" {
				continue
			}
			raw := b.args.String()
			var args map[string]any
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				args = map[string]any{}
			}
			rawCopy := raw
			chunks <- engine.ChatChunk{ToolCall: &engine.ToolCall{CallID: b.id, Name: b.name, Args: args, RawArguments: &rawCopy}}
		}
		chunks <- engine.ChatChunk{Done: true, FinishReason: finish, InputTokens: inputTokens, OutputTokens: outputTokens}
	}

	for {
		resp, err := stream.Recv()
		if err != nil {
			if err == io.EOF {
				flush(engine.FinishStop)
				return
			}
			chunks <- engine.ChatChunk{Err: fmt.Errorf("backend: openai stream: %w", err)}
			return
		}
		if resp.Usage != nil {
			inputTokens = resp.Usage.PromptTokens
			outputTokens = resp.Usage.CompletionTokens
		}
		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]
		if choice.Delta.Content != "" {
			chunks <- engine.ChatChunk{TextDelta: choice.Delta.Content}
		}
		for _, tc := range choice.Delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			b, ok := calls[idx]
			if !ok {
				b = &openaiToolCallBuilder{}
				calls[idx] = b
			}
			if tc.ID != "" {
				b.id = tc.ID
			}
			if tc.Function.Name != "" {
				b.name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				b.args.WriteString(tc.Function.Arguments)
			}
		}
		switch choice.FinishReason {
		case openai.FinishReasonToolCalls, openai.FinishReasonFunctionCall:
			flush(engine.FinishToolCalls)
			return
		case openai.FinishReasonLength:
			flush(engine.FinishLength)
			return
		case openai.FinishReasonStop:
			flush(engine.FinishStop)
			return
		}
	}
}

func convertMessagesToOpenAI(msgs []engine.ChatMessage, system string) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs)+1)
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, m := range msgs {
		switch m.Role {
		case "system":
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: m.Content})
		case "assistant":
			msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Content}
			for _, tc := range m.ToolCalls {
				raw, _ := json.Marshal(argsOrEmpty(tc))
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID: tc.CallID, Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{Name: tc.Name, Arguments: string(raw)},
				})
			}
			out = append(out, msg)
		case "tool":
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleTool, Content: m.Content, ToolCallID: m.ToolCallID})
		default:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Content})
		}
	}
	return out
}

func convertToolsToOpenAI(tools []engine.ToolSpec) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		var schema map[string]any
		if len(t.Parameters) > 0 {
			if err := json.Unmarshal(t.Parameters, &schema); err != nil {
				schema = map[string]any{"type": "object", "properties": map[string]any{}}
			}
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name: t.Name, Description: t.Description, Parameters: schema,
			},
		})
	}
	return out
}

func sortInts(xs []int) {
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && xs[j-1] > xs[j]; j-- {
			xs[j-1], xs[j] = xs[j], xs[j-1]
		}
	}
}
