package execengine

import (
	"context"
	"testing"
	"time"

	"github.com/skillrun/agentcore/internal/engine"
)

func TestRunCommand_Success(t *testing.T) {
	ex := NewExecutor(t.TempDir())
	res, err := ex.RunCommand(context.Background(), []string{"echo", "hello"}, "", nil, 0, nil)
	if err != nil {
		t.Fatalf("RunCommand: %v", err)
	}
	if !res.OK || res.ExitCode == nil || *res.ExitCode != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Stdout != "hello\n" {
		t.Fatalf("stdout = %q, want %q", res.Stdout, "hello\n")
	}
}

func TestRunCommand_NonZeroExit(t *testing.T) {
	ex := NewExecutor(t.TempDir())
	res, err := ex.RunCommand(context.Background(), []string{"sh", "-c", "exit 3"}, "", nil, 0, nil)
	if err != nil {
		t.Fatalf("RunCommand: %v", err)
	}
	if res.OK || res.ExitCode == nil || *res.ExitCode != 3 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.ErrorKind != engine.ErrorExitCode {
		t.Fatalf("error_kind = %s, want exit_code", res.ErrorKind)
	}
}

func TestRunCommand_Timeout(t *testing.T) {
	ex := NewExecutor(t.TempDir())
	res, err := ex.RunCommand(context.Background(), []string{"sleep", "5"}, "", nil, 100, nil)
	if err != nil {
		t.Fatalf("RunCommand: %v", err)
	}
	if !res.Timeout || res.ErrorKind != engine.ErrorTimeout {
		t.Fatalf("expected timeout result, got %+v", res)
	}
}

func TestRunCommand_Cancelled(t *testing.T) {
	ex := NewExecutor(t.TempDir())
	start := time.Now()
	cancelled := false
	checker := func() bool {
		if time.Since(start) > 60*time.Millisecond {
			cancelled = true
		}
		return cancelled
	}
	res, err := ex.RunCommand(context.Background(), []string{"sleep", "5"}, "", nil, 0, checker)
	if err != nil {
		t.Fatalf("RunCommand: %v", err)
	}
	if res.ErrorKind != engine.ErrorCancelled {
		t.Fatalf("expected cancelled result, got %+v", res)
	}
}

func TestRunCommand_CancelCheckerPanicsFailOpen(t *testing.T) {
	ex := NewExecutor(t.TempDir())
	checker := func() bool { panic("boom") }
	res, err := ex.RunCommand(context.Background(), []string{"echo", "ok"}, "", nil, 1000, checker)
	if err != nil {
		t.Fatalf("RunCommand: %v", err)
	}
	if !res.OK {
		t.Fatalf("a panicking cancel checker must fail open, got %+v", res)
	}
}

func TestRunCommand_WorkspaceEscapeRejected(t *testing.T) {
	ex := NewExecutor(t.TempDir())
	res, err := ex.RunCommand(context.Background(), []string{"echo", "hi"}, "../../etc", nil, 0, nil)
	if err != nil {
		t.Fatalf("RunCommand: %v", err)
	}
	if res.OK || res.ErrorKind != engine.ErrorPermission {
		t.Fatalf("expected permission error for escaping cwd, got %+v", res)
	}
}

func TestTailBuffer_KeepsLastBytes(t *testing.T) {
	b := newTailBuffer(5)
	_, _ = b.Write([]byte("abcdefghij"))
	if got := b.String(); got != "fghij" {
		t.Fatalf("tailBuffer = %q, want %q", got, "fghij")
	}
	if !b.Truncated() {
		t.Fatalf("expected Truncated() true")
	}
}

func TestCombineCapped_PrefersStderr(t *testing.T) {
	stdout, stderr, truncated := combineCapped("0123456789", "abcde", 8)
	if !truncated {
		t.Fatalf("expected truncated")
	}
	if stderr != "abcde" {
		t.Fatalf("stderr should be preserved whole, got %q", stderr)
	}
	if len(stdout) != 3 {
		t.Fatalf("stdout should be trimmed to remaining budget, got %q", stdout)
	}
}
