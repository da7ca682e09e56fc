package builtintools

import (
	"encoding/json"

	"github.com/skillrun/agentcore/internal/engine"
	"github.com/skillrun/agentcore/internal/registry"
)

// PlanStep is one entry of update_plan's step list.
type PlanStep struct {
	Step   string `json:"step"`
	Status string `json:"status"` // pending|in_progress|completed
}

// UpdatePlanSpec is update_plan's registered contract: a lightweight
// scratchpad the model uses to narrate multi-step intent, journaled via
// plan_updated so a consumer UI can render it without parsing tool
// results.
var UpdatePlanSpec = engine.ToolSpec{
	Name:        "update_plan",
	Description: "Replace the current task plan with an ordered list of steps and their status.",
	Parameters: json.RawMessage(`{
		"type": "object",
		"properties": {
			"steps": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"step": {"type": "string"},
						"status": {"type": "string", "enum": ["pending", "in_progress", "completed"]}
					},
					"required": ["step", "status"]
				}
			}
		},
		"required": ["steps"]
	}`),
	Idempotency: engine.IdempotencySafe,
}

// UpdatePlan validates the step list and echoes it back as Data; the
// dispatcher (registry.Dispatcher) special-cases this tool name to also
// emit plan_updated, since a handler has no emitter of its own (handlers
// never journal directly, for the same reason they never redact
// directly).
func UpdatePlan(call engine.ToolCall, ec registry.ExecutionContext) engine.ToolResult {
	raw, ok := call.Args["steps"].([]any)
	if !ok {
		return errResult(engine.ErrorValidation, "steps must be an array")
	}
	steps := make([]PlanStep, 0, len(raw))
	for _, item := range raw {
		obj, ok := item.(map[string]any)
		if !ok {
			return errResult(engine.ErrorValidation, "each step must be an object")
		}
		step, _ := obj["step"].(string)
		status, _ := obj["status"].(string)
		switch status {
		case "pending", "in_progress", "completed":
		default:
			return errResult(engine.ErrorValidation, "step status must be pending, in_progress, or completed")
		}
		steps = append(steps, PlanStep{Step: step, Status: status})
	}
	data, _ := json.Marshal(map[string]any{"steps": steps})
	return *engine.NewToolResult(engine.ToolResultPayload{OK: true, Data: data})
}
