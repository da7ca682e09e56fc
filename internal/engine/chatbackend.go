package engine

import "context"

// ChatMessage is one turn of conversation history as the Agent Loop and a
// ChatBackend see it. History is a flat message list: each tool result is
// a plain tool-role message, linked back to the assistant's request by
// ToolCallID.
type ChatMessage struct {
	Role       string // system|user|assistant|tool
	Content    string
	ToolCalls  []ToolCall // set on role=assistant when the model requested tools
	ToolCallID string     // set on role=tool: which call this result answers
	Name       string     // set on role=tool: the tool name, for providers that want it
}

// ChatRequest is one streaming completion request.
type ChatRequest struct {
	Model     string
	System    string
	Messages  []ChatMessage
	Tools     []ToolSpec
	MaxTokens int
}

// FinishReason is the terminal state of one streamed completion.
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishToolCalls FinishReason = "tool_calls"
	FinishLength    FinishReason = "length" // context_length_exceeded trigger
	FinishCancelled FinishReason = "cancelled"
)

// ChatChunk is one element of a streamed completion. A chunk carries
// either a text delta, a fully-formed tool call, or (on the final chunk)
// Done=true with a FinishReason. Err signals a backend-level failure; the
// loop treats it as a terminal, unrecoverable turn.
type ChatChunk struct {
	TextDelta    string
	ToolCall     *ToolCall
	Done         bool
	FinishReason FinishReason
	Err          error
	InputTokens  int
	OutputTokens int
}

// ChatBackend is the abstract streaming-completion collaborator the
// Agent Loop drives every turn against: a channel of chunks over a flat
// ChatMessage history, terminated by a closed FinishReason enum rather
// than free-form stop strings.
type ChatBackend interface {
	Name() string
	StreamChat(ctx context.Context, req ChatRequest) (<-chan ChatChunk, error)
}

// HumanInputRequest is what request_user_input hands to the external
// human-interaction collaborator.
type HumanInputRequest struct {
	RunID   string
	Prompt  string
	Choices []string // empty means free-form text
}

// HumanIOProvider is the synchronous-under-the-hood human I/O collaborator
// the loop awaits off the hot path. Distinct from compaction.HumanProvider,
// which is scoped to the ask_first overflow-strategy decision only; this
// one answers the request_user_input tool's general free-form prompts.
type HumanIOProvider interface {
	RequestHumanInput(ctx context.Context, req HumanInputRequest) (string, error)
}
