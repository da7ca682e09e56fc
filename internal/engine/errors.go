package engine

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors a caller can compare against with errors.Is.
var (
	ErrToolNotFound       = errors.New("engine: tool not found")
	ErrDuplicateTool      = errors.New("engine: tool already registered")
	ErrApprovalDenied     = errors.New("engine: approval denied")
	ErrApprovalTimeout    = errors.New("engine: approval timed out")
	ErrBudgetExceeded     = errors.New("engine: step or wall-time budget exceeded")
	ErrWorkspaceEscape    = errors.New("engine: path escapes workspace")
	ErrInvalidRawArgs     = errors.New("engine: raw_arguments is not a JSON object")
)

// ToolError wraps an ErrorKind with a human message and the call it came
// from, so retry logic can inspect IsRetryable() without parsing strings
// twice.
type ToolError struct {
	Kind     ErrorKind
	ToolCall string
	Message  string
	Attempts int
	cause    error
}

func (e *ToolError) Error() string {
	if e.ToolCall != "" {
		return fmt.Sprintf("tool %q: %s: %s", e.ToolCall, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ToolError) Unwrap() error { return e.cause }

// IsRetryable reports whether the dispatcher should retry this failure.
// Only transient classes are retryable; validation/permission/not_found are
// permanent by construction.
func (e *ToolError) IsRetryable() bool {
	switch e.Kind {
	case ErrorTimeout, ErrorExitCode, ErrorUnknown:
		return true
	default:
		return false
	}
}

// NewToolError classifies a raw error into the closed ErrorKind taxonomy
// by best-effort string matching on subprocess/IO failures, then wraps
// it.
func NewToolError(toolCall string, cause error) *ToolError {
	return &ToolError{Kind: classifyToolError(cause), ToolCall: toolCall, Message: cause.Error(), cause: cause}
}

// WithType overrides the classified kind.
func (e *ToolError) WithType(k ErrorKind) *ToolError { e.Kind = k; return e }

// WithAttempts records how many attempts were made before giving up.
func (e *ToolError) WithAttempts(n int) *ToolError { e.Attempts = n; return e }

func classifyToolError(err error) ErrorKind {
	if err == nil {
		return ErrorUnknown
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "context deadline exceeded"), strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		return ErrorTimeout
	case strings.Contains(msg, "context canceled"), strings.Contains(msg, "cancelled"), strings.Contains(msg, "canceled"):
		return ErrorCancelled
	case strings.Contains(msg, "permission denied"), strings.Contains(msg, "escapes workspace"), strings.Contains(msg, "not allowed"):
		return ErrorPermission
	case strings.Contains(msg, "no such file"), strings.Contains(msg, "not found"):
		return ErrorNotFound
	case strings.Contains(msg, "exit status"):
		return ErrorExitCode
	case strings.Contains(msg, "invalid"), strings.Contains(msg, "schema"), strings.Contains(msg, "unmarshal"):
		return ErrorValidation
	default:
		return ErrorUnknown
	}
}

// LoopPhase identifies which stage of the per-turn state machine an
// unrecoverable error occurred in.
type LoopPhase string

const (
	LoopPhaseInit         LoopPhase = "init"
	LoopPhaseStream       LoopPhase = "stream"
	LoopPhaseExecuteTools LoopPhase = "execute_tools"
	LoopPhaseContinue     LoopPhase = "continue"
	LoopPhaseComplete     LoopPhase = "complete"
)

// LoopError terminates a run; the loop converts it directly into a
// run_failed event.
type LoopError struct {
	Phase     LoopPhase
	Kind      ErrorKind
	Message   string
	Retryable bool
	cause     error
}

func (e *LoopError) Error() string {
	return fmt.Sprintf("loop[%s] %s: %s", e.Phase, e.Kind, e.Message)
}

func (e *LoopError) Unwrap() error { return e.cause }

// NewLoopError builds a terminal loop error.
func NewLoopError(phase LoopPhase, kind ErrorKind, message string) *LoopError {
	return &LoopError{Phase: phase, Kind: kind, Message: message}
}
