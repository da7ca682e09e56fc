package builtintools

import (
	"encoding/json"

	"github.com/skillrun/agentcore/internal/engine"
	"github.com/skillrun/agentcore/internal/execengine"
	"github.com/skillrun/agentcore/internal/registry"
)

// ShellExecSpec is shell_exec's registered contract: run a shell command
// line through /bin/sh -c, bounded by the Executor contract.
var ShellExecSpec = engine.ToolSpec{
	Name:        "shell_exec",
	Description: "Run a shell command line in the workspace, with output tail-truncation and a timeout.",
	Parameters: json.RawMessage(`{
		"type": "object",
		"properties": {
			"command": {"type": "string"},
			"cwd": {"type": "string"},
			"timeout_ms": {"type": "integer", "minimum": 0}
		},
		"required": ["command"]
	}`),
	RequiresApproval: true,
	Idempotency:      engine.IdempotencyUnknown,
}

// ShellExec runs ec.Executor against /bin/sh -c <command>.
func ShellExec(call engine.ToolCall, ec registry.ExecutionContext) engine.ToolResult {
	command, _ := call.Args["command"].(string)
	if command == "" {
		return errResult(engine.ErrorValidation, "command is required")
	}
	ex, ok := ec.Executor.(*execengine.Executor)
	if !ok || ex == nil {
		return errResult(engine.ErrorConfig, "no executor configured")
	}
	cwd, _ := call.Args["cwd"].(string)
	timeout := int64(intArg(call.Args, "timeout_ms", int(ec.DefaultTimeoutMs)))

	res, err := ex.RunCommand(ec.Context, []string{"/bin/sh", "-c", command}, cwd, ec.Env, timeout, ec.CancelChecker)
	if err != nil {
		return errResult(engine.ErrorUnknown, err.Error())
	}
	return commandResultToTool(res)
}

// ExecCommandSpec is exec_command's registered contract: run argv
// directly, without a shell.
var ExecCommandSpec = engine.ToolSpec{
	Name:        "exec_command",
	Description: "Run an argv command directly (no shell interpolation) in the workspace.",
	Parameters: json.RawMessage(`{
		"type": "object",
		"properties": {
			"argv": {"type": "array", "items": {"type": "string"}, "minItems": 1},
			"cwd": {"type": "string"},
			"timeout_ms": {"type": "integer", "minimum": 0}
		},
		"required": ["argv"]
	}`),
	RequiresApproval: true,
	Idempotency:      engine.IdempotencyUnknown,
}

// ExecCommand runs ec.Executor against a literal argv.
func ExecCommand(call engine.ToolCall, ec registry.ExecutionContext) engine.ToolResult {
	argv := stringSliceArg(call.Args["argv"])
	if len(argv) == 0 {
		return errResult(engine.ErrorValidation, "argv is required")
	}
	ex, ok := ec.Executor.(*execengine.Executor)
	if !ok || ex == nil {
		return errResult(engine.ErrorConfig, "no executor configured")
	}
	cwd, _ := call.Args["cwd"].(string)
	timeout := int64(intArg(call.Args, "timeout_ms", int(ec.DefaultTimeoutMs)))

	res, err := ex.RunCommand(ec.Context, argv, cwd, ec.Env, timeout, ec.CancelChecker)
	if err != nil {
		return errResult(engine.ErrorUnknown, err.Error())
	}
	return commandResultToTool(res)
}

// WriteStdinSpec is write_stdin's registered contract: feed characters
// to a running ExecSessions session and return its latest output.
var WriteStdinSpec = engine.ToolSpec{
	Name:        "write_stdin",
	Description: "Write characters to a running exec session's stdin and read back its output.",
	Parameters: json.RawMessage(`{
		"type": "object",
		"properties": {
			"session_id": {"type": "string"},
			"chars": {"type": "string"},
			"yield_time_ms": {"type": "integer", "minimum": 0},
			"max_output_bytes": {"type": "integer", "minimum": 0}
		},
		"required": ["session_id"]
	}`),
	Idempotency: engine.IdempotencyUnsafe,
}

// WriteStdin delegates to ec.ExecSessions.Write.
func WriteStdin(call engine.ToolCall, ec registry.ExecutionContext) engine.ToolResult {
	sessionID, _ := call.Args["session_id"].(string)
	if sessionID == "" {
		return errResult(engine.ErrorValidation, "session_id is required")
	}
	sessions, ok := ec.ExecSessions.(*execengine.ExecSessions)
	if !ok || sessions == nil {
		return errResult(engine.ErrorConfig, "no exec sessions configured")
	}
	chars, _ := call.Args["chars"].(string)
	yield := int64(intArg(call.Args, "yield_time_ms", 200))
	maxOut := intArg(call.Args, "max_output_bytes", 64*1024)

	res, err := sessions.Write(sessionID, chars, yield, maxOut)
	if err != nil {
		return errResult(engine.ErrorNotFound, err.Error())
	}
	payload := engine.ToolResultPayload{
		OK: true, Stdout: res.Stdout, Stderr: res.Stderr, Truncated: res.Truncated,
		ExitCode: res.ExitCode,
	}
	data, _ := json.Marshal(map[string]any{"running": res.Running})
	payload.Data = data
	return *engine.NewToolResult(payload)
}

func commandResultToTool(res execengine.CommandResult) engine.ToolResult {
	return *engine.NewToolResult(engine.ToolResultPayload{
		OK: res.OK, Stdout: res.Stdout, Stderr: res.Stderr, ExitCode: res.ExitCode,
		DurationMs: res.DurationMs, Truncated: res.Truncated, ErrorKind: res.ErrorKind,
		Message: res.Error,
	})
}

func stringSliceArg(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
