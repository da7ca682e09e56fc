package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/skillrun/agentcore/internal/approval"
	"github.com/skillrun/agentcore/internal/engine"
	"github.com/skillrun/agentcore/internal/safety"
)

// Emit journals one event under the run's current turn/step IDs; bound
// by the caller (the Agent Loop) to its wal.Emitter.
type Emit func(typ engine.EventType, payload map[string]any)

// Dispatcher threads every tool call through a fixed pipeline:
// sanitize-and-journal the request, validate arguments,
// Safety Gate, Approval Hub, invoke the handler, then redact and journal
// the result.
type Dispatcher struct {
	Registry  *Registry
	Gate      *safety.Gate
	Approvals *approval.Hub
	Redactor  engine.Redactor
}

// NewDispatcher builds a Dispatcher over an already-populated Registry.
func NewDispatcher(reg *Registry, gate *safety.Gate, hub *approval.Hub, redactor engine.Redactor) *Dispatcher {
	return &Dispatcher{Registry: reg, Gate: gate, Approvals: hub, Redactor: redactor}
}

// Dispatch runs one tool call through the full decision order, emitting
// the tool_call_requested/started/finished events along the way.
func (d *Dispatcher) Dispatch(ctx context.Context, call engine.ToolCall, ec ExecutionContext, emit Emit) *engine.ToolResult {
	d.emitRequested(call, emit)

	if res, stop := d.validateRawArgs(call, emit); stop {
		return res
	}

	if _, ok := d.Registry.Get(call.Name); !ok {
		res := newResult(false, engine.ErrorNotFound, fmt.Sprintf("tool not found: %s", call.Name))
		d.emitFinished(call, res, emit)
		return res
	}

	if err := d.Registry.ValidateArgs(call); err != nil {
		res := newResult(false, engine.ErrorValidation, err.Error())
		d.emitFinished(call, res, emit)
		return res
	}

	decision := d.Gate.Decide(safety.Request{ToolName: call.Name, Argv: shellArgv(call), IsShell: isShellTool(call.Name)})
	switch decision.Action {
	case safety.ActionDeny:
		res := safety.PermissionResult(decision)
		d.emitFinished(call, res, emit)
		return res
	case safety.ActionAsk:
		if d.Approvals == nil {
			res := newResult(false, engine.ErrorConfig, "approval required but no ApprovalProvider configured")
			d.emitFinished(call, res, emit)
			return res
		}
		key := approvalKey(call)
		cached := d.Approvals.IsSessionApproved(key)
		sanitized := safety.SanitizeArgs(call.Name, call.Args, d.Redactor)
		if !cached {
			emit(engine.EventApprovalRequested, map[string]any{
				"call_id": call.CallID, "tool": call.Name, "approval_key": key,
				"summary": decision.Summary, "request": sanitized,
			})
		}
		outcome := d.Approvals.RequestApproval(ctx, approval.Request{
			ApprovalKey: key,
			Tool:        call.Name,
			Summary:     decision.Summary,
			Details:     sanitized,
		})
		if !cached {
			emit(engine.EventApprovalDecided, map[string]any{"call_id": call.CallID, "decision": outcome.Decision, "reason": outcome.Reason})
		}
		if outcome.Decision == approval.Denied || outcome.Decision == approval.Abort {
			res := approval.ToolResultForDecision(outcome.Decision, outcome.Reason)
			d.emitFinished(call, res, emit)
			return res
		}
	}

	emit(engine.EventToolCallStarted, map[string]any{"call_id": call.CallID, "name": call.Name})

	if call.Name == "request_user_input" {
		prompt, _ := call.Args["prompt"].(string)
		emit(engine.EventHumanRequest, map[string]any{"call_id": call.CallID, "prompt": prompt})
	}

	entry, _ := d.Registry.lookup(call.Name)
	result := entry.Handler(call, ec)
	result = d.redactResult(result)
	if call.Name == "request_user_input" && result.OK {
		emit(engine.EventHumanResponse, map[string]any{"call_id": call.CallID})
	}
	d.emitFinished(call, &result, emit)
	if call.Name == "update_plan" && result.OK {
		d.emitPlanUpdated(result, emit)
	}
	return &result
}

// emitPlanUpdated journals the plan_updated event. A handler cannot emit
// events itself (the emission path stays outside
// handler code), so the dispatcher special-cases the one built-in tool
// that needs a side-channel event the same way it special-cases
// isShellTool for Safety Gate argv extraction.
func (d *Dispatcher) emitPlanUpdated(result engine.ToolResult, emit Emit) {
	payload := result.AsPayload()
	var decoded map[string]any
	if len(payload.Data) > 0 {
		_ = json.Unmarshal(payload.Data, &decoded)
	}
	steps, _ := decoded["steps"]
	emit(engine.EventPlanUpdated, map[string]any{"steps": steps})
}

func (d *Dispatcher) emitRequested(call engine.ToolCall, emit Emit) {
	sanitizedArgs := safety.SanitizeArgs(call.Name, call.Args, d.Redactor)
	emit(engine.EventToolCallRequested, map[string]any{
		"call_id": call.CallID, "name": call.Name, "args": sanitizedArgs,
	})
}

func (d *Dispatcher) validateRawArgs(call engine.ToolCall, emit Emit) (*engine.ToolResult, bool) {
	if call.RawArguments == nil {
		return nil, false
	}
	raw := *call.RawArguments
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		sum := sha256.Sum256([]byte(raw))
		emit(engine.EventToolCallFinished, map[string]any{
			"call_id": call.CallID, "arguments_valid": false,
			"raw_arguments_len": len(raw), "raw_arguments_sha256": hex.EncodeToString(sum[:]),
		})
		return newResult(false, engine.ErrorValidation, "raw_arguments is not a JSON object"), true
	}
	return nil, false
}

func (d *Dispatcher) emitFinished(call engine.ToolCall, result *engine.ToolResult, emit Emit) {
	payload := result.AsPayload()
	emit(engine.EventToolCallFinished, map[string]any{
		"call_id": call.CallID, "name": call.Name, "result": payload,
	})
}

func (d *Dispatcher) redactResult(result engine.ToolResult) engine.ToolResult {
	if d.Redactor == nil {
		return result
	}
	payload := result.AsPayload()
	if s, ok := d.Redactor("stdout", payload.Stdout).(string); ok {
		payload.Stdout = s
	}
	if s, ok := d.Redactor("stderr", payload.Stderr).(string); ok {
		payload.Stderr = s
	}
	if s, ok := d.Redactor("message", result.Message).(string); ok {
		result.Message = s
	}
	payload.Message = result.Message
	rebuilt := engine.NewToolResult(payload)
	rebuilt.ErrorKind = result.ErrorKind
	rebuilt.Details = result.Details
	return *rebuilt
}

func newResult(ok bool, kind engine.ErrorKind, message string) *engine.ToolResult {
	return engine.NewToolResult(engine.ToolResultPayload{OK: ok, ErrorKind: kind, Message: message})
}

// approvalKey fingerprints a call into the Approval Hub's cache key.
func approvalKey(call engine.ToolCall) string {
	return engine.ApprovalKey(call.Name, call.Args)
}

func shellArgv(call engine.ToolCall) []string {
	if v, ok := call.Args["argv"]; ok {
		if arr, ok := v.([]any); ok {
			out := make([]string, 0, len(arr))
			for _, item := range arr {
				if s, ok := item.(string); ok {
					out = append(out, s)
				}
			}
			return out
		}
	}
	if cmd, ok := call.Args["command"].(string); ok {
		return []string{"/bin/sh", "-c", cmd}
	}
	return nil
}

func isShellTool(name string) bool {
	switch name {
	case "shell_exec", "exec_command":
		return true
	default:
		return false
	}
}
