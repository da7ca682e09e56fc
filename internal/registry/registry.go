// Package registry implements the Tool Registry & Dispatcher: typed
// tool registration, JSON-Schema argument validation, and the seven-step
// dispatch algorithm that threads every tool call through the Safety
// Gate and Approval Hub before invoking its handler. Results carry the
// tagged ToolResultPayload and the closed ErrorKind taxonomy rather than
// a bare content/is-error pair.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/skillrun/agentcore/internal/engine"
)

// ExecutionContext is handed to every tool handler; handlers are pure
// functions of (ToolCall, ExecutionContext) and must not reach for
// package-level state.
type ExecutionContext struct {
	Context          context.Context
	WorkspaceRoot    string
	ResolvePath      func(path string) (string, error)
	Env              map[string]string
	CancelChecker    func() bool
	DefaultTimeoutMs int64
	RunID            string
	TurnID           string
	StepID           string

	// Optional references, present only when the owning run wired them.
	Executor     any
	ExecSessions any
	Skills       any
	HumanIO      any
	Agents       any
	WebSearcher  any
}

// AgentSpawner is the multi-agent coordination collaborator behind
// spawn_agent/wait_agent/send_input/close_agent/resume_agent: each
// child run is itself an AgentLoop, but registry cannot import loop
// (loop already imports registry), so the loop package implements this
// interface and hands it to ExecutionContext.Agents as `any`.
type AgentSpawner interface {
	// Spawn starts a new child run for task and returns its run_id
	// immediately; the child runs to completion on its own goroutine.
	Spawn(ctx context.Context, task string, parentRunID string) (string, error)
	// Wait blocks until childRunID reaches a terminal event, returning
	// its RunResult fields flattened into a map for JSON encoding.
	Wait(ctx context.Context, childRunID string, timeoutMs int64) (map[string]any, error)
	// SendInput queues additional task text for a still-running child;
	// loop.Coordinator delivers it as the user message of a follow-up run
	// once the in-flight run completes.
	SendInput(ctx context.Context, childRunID, text string) error
	// Close cancels a running child run.
	Close(ctx context.Context, childRunID string) error
	// Resume forks a child run's WAL into a new run_id and returns it;
	// loop.Coordinator starts no run on the fork.
	Resume(ctx context.Context, childRunID string) (string, error)
}

// Handler is a registered tool's pure implementation.
type Handler func(call engine.ToolCall, ec ExecutionContext) engine.ToolResult

// Entry is one registered tool: its LLM-facing contract plus its
// handler and compiled schema.
type Entry struct {
	Spec    engine.ToolSpec
	Handler Handler
	schema  *jsonschema.Schema
}

// Registry holds the live tool set for one run.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: map[string]*Entry{}}
}

// Register adds a tool. override=false rejects re-registering a name
// that is already present;
// override=true replaces it.
func (r *Registry) Register(spec engine.ToolSpec, handler Handler, override bool) error {
	schema, err := compileSchema(spec.Name, spec.Parameters)
	if err != nil {
		return fmt.Errorf("registry: compile schema for %q: %w", spec.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[spec.Name]; exists && !override {
		return fmt.Errorf("%w: %s", engine.ErrDuplicateTool, spec.Name)
	}
	r.entries[spec.Name] = &Entry{Spec: spec, Handler: handler, schema: schema}
	return nil
}

// Unregister removes a tool.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, name)
}

// Get returns a tool's spec and whether it exists.
func (r *Registry) Get(name string) (engine.ToolSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return engine.ToolSpec{}, false
	}
	return e.Spec, true
}

// Specs returns every registered tool's contract, for the LLM request's
// tool list.
func (r *Registry) Specs() []engine.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]engine.ToolSpec, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Spec)
	}
	return out
}

func (r *Registry) lookup(name string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// ValidateArgs checks call.Args against the tool's compiled JSON Schema;
// call.RawArguments is not consulted.
func (r *Registry) ValidateArgs(call engine.ToolCall) error {
	e, ok := r.lookup(call.Name)
	if !ok {
		return fmt.Errorf("%w: %s", engine.ErrToolNotFound, call.Name)
	}
	if e.schema == nil {
		return nil
	}
	return e.schema.Validate(argsAsAny(call))
}

func argsAsAny(call engine.ToolCall) map[string]any {
	if call.Args != nil {
		return call.Args
	}
	return map[string]any{}
}

func compileSchema(name string, raw json.RawMessage) (*jsonschema.Schema, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	compiler := jsonschema.NewCompiler()
	url := "mem://" + name + ".json"
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return compiler.Compile(url)
}
