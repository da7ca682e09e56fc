// Package execengine implements the Executor and ExecSessions contracts:
// bounded subprocess execution for the shell_exec/exec_command/
// write_stdin tools. Output is tail-truncated per stream and overall,
// and timeout/cancellation escalates SIGTERM then SIGKILL at the
// process-group level instead of killing only the direct child.
package execengine

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/google/uuid"

	"github.com/skillrun/agentcore/internal/engine"
	"github.com/skillrun/agentcore/internal/workspace"
)

const (
	defaultPerStreamCap = 64 * 1024
	defaultCombinedCap  = 128 * 1024
	killGrace           = 3 * time.Second
	pollInterval        = 50 * time.Millisecond

	// POSIX signal numbers; killProcessGroup's windows variant ignores
	// sig and always does a plain process kill.
	sigterm = 15
	sigkill = 9
)

// CommandResult is the Executor contract's result type.
type CommandResult struct {
	OK         bool
	ExitCode   *int
	Stdout     string
	Stderr     string
	DurationMs int64
	Timeout    bool
	Truncated  bool
	ErrorKind  engine.ErrorKind
	Error      string
}

// CancelChecker reports whether the caller asked for cancellation. A
// panicking checker is treated as fail-open (not cancelled), matching
// loopctl's convention.
type CancelChecker func() bool

// Executor runs bounded child processes rooted at a fixed workspace.
type Executor struct {
	resolver     workspace.Resolver
	perStreamCap int
	combinedCap  int
	sem          chan struct{} // bounds in-flight command count
}

// Option configures an Executor.
type Option func(*Executor)

// WithMaxConcurrency bounds the number of commands that may run at once.
func WithMaxConcurrency(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.sem = make(chan struct{}, n)
		}
	}
}

// NewExecutor builds an Executor rooted at workspaceRoot.
func NewExecutor(workspaceRoot string, opts ...Option) *Executor {
	e := &Executor{
		resolver:     workspace.Resolver{Root: workspaceRoot},
		perStreamCap: defaultPerStreamCap,
		combinedCap:  defaultCombinedCap,
		sem:          make(chan struct{}, 5),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunCommand runs argv[0] with argv[1:] under cwd (workspace-relative or
// empty for the root), enforcing timeoutMs and polling cancelChecker at
// short intervals. Never returns a Go error for command-level failures;
// those are reported in CommandResult.
func (e *Executor) RunCommand(ctx context.Context, argv []string, cwd string, env map[string]string, timeoutMs int64, cancelChecker CancelChecker) (CommandResult, error) {
	if len(argv) == 0 {
		return CommandResult{}, fmt.Errorf("execengine: argv is required")
	}

	e.sem <- struct{}{}
	defer func() { <-e.sem }()

	dir, err := e.resolver.ResolveDir(cwd)
	if err != nil {
		return CommandResult{OK: false, ErrorKind: engine.ErrorPermission, Error: err.Error()}, nil
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if timeoutMs > 0 {
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
		defer cancel()
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Env = mergeEnv(env)
	cmd.SysProcAttr = setpgidAttr()

	stdout := newTailBuffer(e.perStreamCap)
	stderr := newTailBuffer(e.perStreamCap)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return CommandResult{OK: false, ErrorKind: engine.ErrorNotFound, Error: err.Error()}, nil
	}

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	timedOut := false
	cancelled := false

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

waitLoop:
	for {
		select {
		case waitErr := <-waitCh:
			dur := time.Since(start)
			return e.finish(cmd, stdout, stderr, waitErr, dur, timedOut, cancelled), nil
		case <-runCtx.Done():
			timedOut = timeoutMs > 0 && runCtx.Err() == context.DeadlineExceeded
			sendSignal(cmd, sigterm)
			break waitLoop
		case <-ticker.C:
			if checkCancel(cancelChecker) {
				cancelled = true
				sendSignal(cmd, sigterm)
				break waitLoop
			}
		}
	}

	select {
	case waitErr := <-waitCh:
		return e.finish(cmd, stdout, stderr, waitErr, time.Since(start), timedOut, cancelled), nil
	case <-time.After(killGrace):
		sendSignal(cmd, sigkill)
		waitErr := <-waitCh
		return e.finish(cmd, stdout, stderr, waitErr, time.Since(start), timedOut, cancelled), nil
	}
}

// sendSignal signals the whole process group, so descendants are torn
// down with the direct child.
func sendSignal(cmd *exec.Cmd, sig int) {
	if cmd.Process == nil {
		return
	}
	killProcessGroup(cmd.Process.Pid, sig)
}

func (e *Executor) finish(cmd *exec.Cmd, stdout, stderr *tailBuffer, waitErr error, dur time.Duration, timedOut, cancelled bool) CommandResult {
	out, errStr, combinedTrunc := combineCapped(stdout.String(), stderr.String(), e.combinedCap)
	truncated := combinedTrunc || stdout.Truncated() || stderr.Truncated()

	result := CommandResult{
		Stdout:     out,
		Stderr:     errStr,
		DurationMs: dur.Milliseconds(),
		Truncated:  truncated,
		Timeout:    timedOut,
	}

	switch {
	case cancelled:
		result.OK = false
		result.ErrorKind = engine.ErrorCancelled
		result.Error = "cancelled"
	case timedOut:
		result.OK = false
		result.ErrorKind = engine.ErrorTimeout
		result.Error = "timeout"
	case waitErr != nil:
		code := exitCode(waitErr)
		result.ExitCode = &code
		result.OK = code == 0
		if !result.OK {
			result.ErrorKind = engine.ErrorExitCode
			result.Error = waitErr.Error()
		}
	default:
		code := 0
		if cmd.ProcessState != nil {
			code = cmd.ProcessState.ExitCode()
		}
		result.ExitCode = &code
		result.OK = true
	}
	return result
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}

func checkCancel(checker CancelChecker) (cancelled bool) {
	if checker == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			cancelled = false
		}
	}()
	return checker()
}

func mergeEnv(extra map[string]string) []string {
	if len(extra) == 0 {
		return nil
	}
	base := os.Environ()
	for k, v := range extra {
		base = append(base, k+"="+v)
	}
	return base
}

// sessionID generates a new exec-session identifier.
func sessionID() string { return uuid.NewString() }
