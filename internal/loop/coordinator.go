package loop

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/skillrun/agentcore/internal/engine"
	"github.com/skillrun/agentcore/internal/wal"
)

// Coordinator implements registry.AgentSpawner over a pool of child
// AgentLoop runs sharing this process's workspace, each on its own WAL
// file under the same runtime_dir. Parallel runs share no mutable state
// other than the WAL; Resume builds on wal.ForkRun.
type Coordinator struct {
	factory func() *AgentLoop // builds a fresh child AgentLoop sharing this process's collaborators
	cfg     Config

	mu       sync.Mutex
	children map[string]*childRun
}

type childRun struct {
	cancel context.CancelFunc
	input  chan string
	done   chan struct{}
	result RunResult
}

// NewCoordinator builds a Coordinator. factory must return a new
// *AgentLoop configured identically to the parent (same registry, gate,
// approvals, etc.) each time it is called, since AgentLoop holds
// per-construction state (the denial tracker) that must not be shared
// across concurrent runs.
func NewCoordinator(factory func() *AgentLoop, cfg Config) *Coordinator {
	return &Coordinator{factory: factory, cfg: cfg, children: map[string]*childRun{}}
}

// Spawn starts task on a fresh child AgentLoop and returns its run_id
// immediately; the run proceeds on its own goroutine.
func (c *Coordinator) Spawn(ctx context.Context, task string, parentRunID string) (string, error) {
	childID := engine.NewRunID()
	runCtx, cancel := context.WithCancel(context.Background())
	cr := &childRun{cancel: cancel, input: make(chan string, 8), done: make(chan struct{})}

	c.mu.Lock()
	c.children[childID] = cr
	c.mu.Unlock()

	child := c.factory()
	history := []engine.ChatMessage{{Role: "system", Content: fmt.Sprintf("spawned by run %s", parentRunID)}}

	go func() {
		defer close(cr.done)
		result := child.Run(runCtx, task, childID, history)
		// Input queued by SendInput while the run was in flight becomes
		// follow-up turns: one resumed run per message, appended to the
		// same WAL, since the ChatBackend contract has no mid-stream
		// injection point to splice text into a live turn.
		for runCtx.Err() == nil {
			select {
			case text := <-cr.input:
				result = child.Run(runCtx, text, childID, nil)
				continue
			default:
			}
			break
		}
		c.mu.Lock()
		cr.result = result
		c.mu.Unlock()
	}()

	return childID, nil
}

// Wait blocks (up to timeoutMs, 0 meaning no timeout) until childRunID
// reaches a terminal event.
func (c *Coordinator) Wait(ctx context.Context, childRunID string, timeoutMs int64) (map[string]any, error) {
	c.mu.Lock()
	cr, ok := c.children[childRunID]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("loop: unknown child run %q", childRunID)
	}

	var timeout <-chan time.Time
	if timeoutMs > 0 {
		t := time.NewTimer(time.Duration(timeoutMs) * time.Millisecond)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case <-cr.done:
		return map[string]any{
			"run_id":       childRunID,
			"status":       cr.result.Status,
			"final_output": cr.result.FinalOutput,
			"error_kind":   cr.result.ErrorKind,
			"message":      cr.result.Message,
		}, nil
	case <-timeout:
		return nil, fmt.Errorf("loop: wait for run %q timed out", childRunID)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SendInput queues text for a running child; it is delivered as the user
// message of a follow-up run on the same WAL once the in-flight run
// completes, not spliced into the live turn. Sending to an already
// finished child fails — Resume it first.
func (c *Coordinator) SendInput(ctx context.Context, childRunID, text string) error {
	c.mu.Lock()
	cr, ok := c.children[childRunID]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("loop: unknown child run %q", childRunID)
	}
	select {
	case <-cr.done:
		return fmt.Errorf("loop: child run %q already finished; resume it to send more input", childRunID)
	default:
	}
	select {
	case cr.input <- text:
		return nil
	default:
		return fmt.Errorf("loop: child run %q input queue is full", childRunID)
	}
}

// Close cancels a running child run.
func (c *Coordinator) Close(ctx context.Context, childRunID string) error {
	c.mu.Lock()
	cr, ok := c.children[childRunID]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("loop: unknown child run %q", childRunID)
	}
	cr.cancel()
	close(cr.input)
	return nil
}

// Resume forks childRunID's WAL in full (fork_run with no upper bound)
// into a fresh run_id and registers that run_id as an already-completed
// child whose result metadata carries resumed_from and previous_events.
// It emits no events and starts no run; rebuilding history from the
// forked WAL is left to the caller.
func (c *Coordinator) Resume(ctx context.Context, childRunID string) (string, error) {
	c.mu.Lock()
	_, ok := c.children[childRunID]
	c.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("loop: unknown child run %q", childRunID)
	}

	newID := engine.NewRunID()
	srcEvents := filepath.Join(wal.RunsDir(c.cfg.WorkspaceRoot, c.cfg.RuntimeDir, childRunID), "events.jsonl")
	dstEvents := filepath.Join(wal.RunsDir(c.cfg.WorkspaceRoot, c.cfg.RuntimeDir, newID), "events.jsonl")
	n, err := wal.ForkRun(srcEvents, dstEvents, 1<<30)
	if err != nil {
		return "", fmt.Errorf("loop: fork run for resume: %w", err)
	}

	c.mu.Lock()
	c.children[newID] = &childRun{done: make(chan struct{})}
	close(c.children[newID].done)
	c.children[newID].result = RunResult{Status: "completed", Metadata: map[string]any{"resumed_from": childRunID, "previous_events": n}}
	c.mu.Unlock()

	return newID, nil
}
