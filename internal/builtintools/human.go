package builtintools

import (
	"encoding/base64"
	"encoding/json"
	"os"

	"github.com/skillrun/agentcore/internal/engine"
	"github.com/skillrun/agentcore/internal/registry"
)

// RequestUserInputSpec is request_user_input's registered contract:
// suspend the turn on a human-in-the-loop prompt answered by the wired
// HumanIOProvider.
var RequestUserInputSpec = engine.ToolSpec{
	Name:        "request_user_input",
	Description: "Ask the human operator a question and wait for their answer.",
	Parameters: json.RawMessage(`{
		"type": "object",
		"properties": {
			"prompt": {"type": "string"},
			"choices": {"type": "array", "items": {"type": "string"}}
		},
		"required": ["prompt"]
	}`),
	Idempotency: engine.IdempotencyUnsafe,
}

// RequestUserInput blocks on ec.HumanIO.RequestHumanInput, surfacing
// human_required when no provider is wired rather than silently skipping
// the question (fail-closed, the same posture as a missing approval
// provider).
func RequestUserInput(call engine.ToolCall, ec registry.ExecutionContext) engine.ToolResult {
	prompt, _ := call.Args["prompt"].(string)
	if prompt == "" {
		return errResult(engine.ErrorValidation, "prompt is required")
	}
	provider, ok := ec.HumanIO.(engine.HumanIOProvider)
	if !ok || provider == nil {
		return errResult(engine.ErrorHumanRequired, "no HumanIOProvider configured")
	}
	choices := stringSliceArg(call.Args["choices"])
	answer, err := provider.RequestHumanInput(ec.Context, engine.HumanInputRequest{
		RunID: ec.RunID, Prompt: prompt, Choices: choices,
	})
	if err != nil {
		return errResult(engine.ErrorHumanRequired, err.Error())
	}
	return okResult(answer, false)
}

const defaultMaxImageBytes = 8 << 20 // 8 MiB, matches typical vision-model upload caps

// ViewImageSpec is view_image's registered contract: read an image file
// from the workspace and return it as inline base64 data, since this
// ChatMessage history is text-only and the wire protocol encoding of
// multimodal content belongs to the backend adapters.
var ViewImageSpec = engine.ToolSpec{
	Name:        "view_image",
	Description: "Read an image file from the workspace and return it as base64-encoded data for display.",
	Parameters: json.RawMessage(`{
		"type": "object",
		"properties": {"path": {"type": "string"}},
		"required": ["path"]
	}`),
	Idempotency: engine.IdempotencySafe,
}

// ViewImage reads path and returns its bytes base64-encoded in Data,
// bounded by defaultMaxImageBytes so a single oversized file cannot blow
// up the WAL record.
func ViewImage(call engine.ToolCall, ec registry.ExecutionContext) engine.ToolResult {
	path, _ := call.Args["path"].(string)
	if path == "" {
		return errResult(engine.ErrorValidation, "path is required")
	}
	resolved, err := ec.ResolvePath(path)
	if err != nil {
		return errResult(engine.ErrorPermission, err.Error())
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return errResult(engine.ErrorNotFound, err.Error())
	}
	if info.Size() > defaultMaxImageBytes {
		return errResult(engine.ErrorValidation, "image exceeds the maximum viewable size")
	}
	raw, err := os.ReadFile(resolved)
	if err != nil {
		return errResult(engine.ErrorNotFound, err.Error())
	}
	data, _ := json.Marshal(map[string]any{
		"mime_type":  mimeTypeFor(path),
		"base64":     base64.StdEncoding.EncodeToString(raw),
		"size_bytes": len(raw),
	})
	return *engine.NewToolResult(engine.ToolResultPayload{OK: true, Data: data})
}

func mimeTypeFor(path string) string {
	switch {
	case hasSuffixFold(path, ".png"):
		return "image/png"
	case hasSuffixFold(path, ".jpg"), hasSuffixFold(path, ".jpeg"):
		return "image/jpeg"
	case hasSuffixFold(path, ".gif"):
		return "image/gif"
	case hasSuffixFold(path, ".webp"):
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

func hasSuffixFold(s, suffix string) bool {
	if len(s) < len(suffix) {
		return false
	}
	tail := s[len(s)-len(suffix):]
	for i := range tail {
		a, b := tail[i], suffix[i]
		if 'A' <= a && a <= 'Z' {
			a += 'a' - 'A'
		}
		if a != b {
			return false
		}
	}
	return true
}
