package registry

import (
	"context"
	"testing"

	"github.com/skillrun/agentcore/internal/approval"
	"github.com/skillrun/agentcore/internal/engine"
	"github.com/skillrun/agentcore/internal/safety"
)

func echoSpec(name string) engine.ToolSpec {
	return engine.ToolSpec{Name: name, Parameters: []byte(`{"type":"object"}`)}
}

func collect() (Emit, *[]engine.EventType) {
	var types []engine.EventType
	return func(typ engine.EventType, _ map[string]any) { types = append(types, typ) }, &types
}

func TestDispatch_AllowRunsHandler(t *testing.T) {
	reg := NewRegistry()
	called := false
	if err := reg.Register(echoSpec("ping"), func(call engine.ToolCall, ec ExecutionContext) engine.ToolResult {
		called = true
		return *engine.NewToolResult(engine.ToolResultPayload{OK: true})
	}, false); err != nil {
		t.Fatalf("register: %v", err)
	}

	gate := safety.NewGate(safety.Policy{Mode: safety.ModeAllow}, safety.ShellPolicy{})
	d := NewDispatcher(reg, gate, nil, nil)
	emit, events := collect()

	res := d.Dispatch(context.Background(), engine.ToolCall{CallID: "c1", Name: "ping", Args: map[string]any{}}, ExecutionContext{}, emit)
	if !called {
		t.Fatalf("expected handler to run")
	}
	if !res.OK {
		t.Fatalf("expected ok result, got %+v", res)
	}
	wantSeq := []engine.EventType{engine.EventToolCallRequested, engine.EventToolCallStarted, engine.EventToolCallFinished}
	if len(*events) != len(wantSeq) {
		t.Fatalf("events = %v, want %v", *events, wantSeq)
	}
}

func TestDispatch_DenyShortCircuits(t *testing.T) {
	reg := NewRegistry()
	called := false
	_ = reg.Register(echoSpec("danger"), func(call engine.ToolCall, ec ExecutionContext) engine.ToolResult {
		called = true
		return engine.ToolResult{OK: true}
	}, false)

	gate := safety.NewGate(safety.Policy{Mode: safety.ModeDeny}, safety.ShellPolicy{})
	d := NewDispatcher(reg, gate, nil, nil)
	emit, events := collect()

	res := d.Dispatch(context.Background(), engine.ToolCall{CallID: "c1", Name: "danger", Args: map[string]any{}}, ExecutionContext{}, emit)
	if called {
		t.Fatalf("handler must not run on deny")
	}
	if res.OK || res.ErrorKind != engine.ErrorPermission {
		t.Fatalf("expected permission error, got %+v", res)
	}
	if len(*events) != 2 {
		t.Fatalf("expected requested+finished only, got %v", *events)
	}
}

func TestDispatch_AskDeniedSkipsHandler(t *testing.T) {
	reg := NewRegistry()
	called := false
	_ = reg.Register(echoSpec("ask_me"), func(call engine.ToolCall, ec ExecutionContext) engine.ToolResult {
		called = true
		return engine.ToolResult{OK: true}
	}, false)

	gate := safety.NewGate(safety.Policy{Mode: safety.ModeAsk}, safety.ShellPolicy{})
	hub := approval.NewHub("run1", approval.ProviderFunc(func(ctx context.Context, req approval.Request) (approval.Decision, error) {
		return approval.Denied, nil
	}), 0)
	d := NewDispatcher(reg, gate, hub, nil)
	emit, events := collect()

	res := d.Dispatch(context.Background(), engine.ToolCall{CallID: "c1", Name: "ask_me", Args: map[string]any{}}, ExecutionContext{}, emit)
	if called {
		t.Fatalf("handler must not run on denial")
	}
	if res.OK {
		t.Fatalf("expected denied result")
	}
	foundApprovalEvents := 0
	for _, e := range *events {
		if e == engine.EventApprovalRequested || e == engine.EventApprovalDecided {
			foundApprovalEvents++
		}
	}
	if foundApprovalEvents != 2 {
		t.Fatalf("expected approval_requested+approval_decided, got %v", *events)
	}
}

func TestDispatch_ToolNotFound(t *testing.T) {
	reg := NewRegistry()
	gate := safety.NewGate(safety.Policy{Mode: safety.ModeAllow}, safety.ShellPolicy{})
	d := NewDispatcher(reg, gate, nil, nil)
	emit, _ := collect()

	res := d.Dispatch(context.Background(), engine.ToolCall{CallID: "c1", Name: "missing"}, ExecutionContext{}, emit)
	if res.OK || res.ErrorKind != engine.ErrorNotFound {
		t.Fatalf("expected not_found, got %+v", res)
	}
}

func TestDispatch_RawArgumentsNotAnObject(t *testing.T) {
	reg := NewRegistry()
	_ = reg.Register(echoSpec("ping"), func(call engine.ToolCall, ec ExecutionContext) engine.ToolResult {
		return engine.ToolResult{OK: true}
	}, false)
	gate := safety.NewGate(safety.Policy{Mode: safety.ModeAllow}, safety.ShellPolicy{})
	d := NewDispatcher(reg, gate, nil, nil)
	emit, _ := collect()

	raw := `[1,2,3]`
	res := d.Dispatch(context.Background(), engine.ToolCall{CallID: "c1", Name: "ping", RawArguments: &raw}, ExecutionContext{}, emit)
	if res.OK || res.ErrorKind != engine.ErrorValidation {
		t.Fatalf("expected validation error, got %+v", res)
	}
}

func TestRegistry_DuplicateRejectedWithoutOverride(t *testing.T) {
	reg := NewRegistry()
	h := func(call engine.ToolCall, ec ExecutionContext) engine.ToolResult { return engine.ToolResult{OK: true} }
	if err := reg.Register(echoSpec("x"), h, false); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := reg.Register(echoSpec("x"), h, false); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
	if err := reg.Register(echoSpec("x"), h, true); err != nil {
		t.Fatalf("override register should succeed: %v", err)
	}
}
