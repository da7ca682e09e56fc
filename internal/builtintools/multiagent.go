package builtintools

import (
	"encoding/json"

	"github.com/skillrun/agentcore/internal/engine"
	"github.com/skillrun/agentcore/internal/registry"
)

// SpawnAgentSpec is spawn_agent's registered contract: start a child run
// on its own WAL and return immediately with its run_id.
var SpawnAgentSpec = engine.ToolSpec{
	Name:        "spawn_agent",
	Description: "Start a new child agent run with the given task and return its run id.",
	Parameters: json.RawMessage(`{
		"type": "object",
		"properties": {"task": {"type": "string"}},
		"required": ["task"]
	}`),
	RequiresApproval: true,
	Idempotency:      engine.IdempotencyUnsafe,
}

// SpawnAgent delegates to ec.Agents.Spawn.
func SpawnAgent(call engine.ToolCall, ec registry.ExecutionContext) engine.ToolResult {
	task, _ := call.Args["task"].(string)
	if task == "" {
		return errResult(engine.ErrorValidation, "task is required")
	}
	spawner, ok := ec.Agents.(registry.AgentSpawner)
	if !ok || spawner == nil {
		return errResult(engine.ErrorConfig, "no AgentSpawner configured")
	}
	childID, err := spawner.Spawn(ec.Context, task, ec.RunID)
	if err != nil {
		return errResult(engine.ErrorUnknown, err.Error())
	}
	return dataResult(map[string]any{"run_id": childID})
}

// WaitAgentSpec is wait_agent's registered contract: block until a
// child run reaches a terminal event.
var WaitAgentSpec = engine.ToolSpec{
	Name:        "wait_agent",
	Description: "Wait for a child agent run to finish and return its result.",
	Parameters: json.RawMessage(`{
		"type": "object",
		"properties": {
			"run_id": {"type": "string"},
			"timeout_ms": {"type": "integer", "minimum": 0}
		},
		"required": ["run_id"]
	}`),
	Idempotency: engine.IdempotencySafe,
}

// WaitAgent delegates to ec.Agents.Wait.
func WaitAgent(call engine.ToolCall, ec registry.ExecutionContext) engine.ToolResult {
	runID, _ := call.Args["run_id"].(string)
	if runID == "" {
		return errResult(engine.ErrorValidation, "run_id is required")
	}
	spawner, ok := ec.Agents.(registry.AgentSpawner)
	if !ok || spawner == nil {
		return errResult(engine.ErrorConfig, "no AgentSpawner configured")
	}
	timeout := int64(intArg(call.Args, "timeout_ms", 0))
	result, err := spawner.Wait(ec.Context, runID, timeout)
	if err != nil {
		return errResult(engine.ErrorTimeout, err.Error())
	}
	return dataResult(result)
}

// SendInputSpec is send_input's registered contract: deliver extra task
// text to an already-running child run.
var SendInputSpec = engine.ToolSpec{
	Name:        "send_input",
	Description: "Send additional input text to a running child agent run.",
	Parameters: json.RawMessage(`{
		"type": "object",
		"properties": {"run_id": {"type": "string"}, "text": {"type": "string"}},
		"required": ["run_id", "text"]
	}`),
	RequiresApproval: true,
	Idempotency:      engine.IdempotencyUnsafe,
}

// SendInput delegates to ec.Agents.SendInput.
func SendInput(call engine.ToolCall, ec registry.ExecutionContext) engine.ToolResult {
	runID, _ := call.Args["run_id"].(string)
	text, _ := call.Args["text"].(string)
	if runID == "" || text == "" {
		return errResult(engine.ErrorValidation, "run_id and text are required")
	}
	spawner, ok := ec.Agents.(registry.AgentSpawner)
	if !ok || spawner == nil {
		return errResult(engine.ErrorConfig, "no AgentSpawner configured")
	}
	if err := spawner.SendInput(ec.Context, runID, text); err != nil {
		return errResult(engine.ErrorNotFound, err.Error())
	}
	return okResult("sent", false)
}

// CloseAgentSpec is close_agent's registered contract: cancel a running
// child run.
var CloseAgentSpec = engine.ToolSpec{
	Name:        "close_agent",
	Description: "Cancel a running child agent run.",
	Parameters: json.RawMessage(`{
		"type": "object",
		"properties": {"run_id": {"type": "string"}},
		"required": ["run_id"]
	}`),
	RequiresApproval: true,
	Idempotency:      engine.IdempotencyUnsafe,
}

// CloseAgent delegates to ec.Agents.Close.
func CloseAgent(call engine.ToolCall, ec registry.ExecutionContext) engine.ToolResult {
	runID, _ := call.Args["run_id"].(string)
	if runID == "" {
		return errResult(engine.ErrorValidation, "run_id is required")
	}
	spawner, ok := ec.Agents.(registry.AgentSpawner)
	if !ok || spawner == nil {
		return errResult(engine.ErrorConfig, "no AgentSpawner configured")
	}
	if err := spawner.Close(ec.Context, runID); err != nil {
		return errResult(engine.ErrorNotFound, err.Error())
	}
	return okResult("closed", false)
}

// ResumeAgentSpec is resume_agent's registered contract: fork a
// completed or cancelled child run's WAL under a new run id; with
// loop.Coordinator no run is started on the fork.
var ResumeAgentSpec = engine.ToolSpec{
	Name:        "resume_agent",
	Description: "Resume a finished child agent run from its WAL fork point under a new run id.",
	Parameters: json.RawMessage(`{
		"type": "object",
		"properties": {"run_id": {"type": "string"}},
		"required": ["run_id"]
	}`),
	RequiresApproval: true,
	Idempotency:      engine.IdempotencyUnsafe,
}

// ResumeAgent delegates to ec.Agents.Resume.
func ResumeAgent(call engine.ToolCall, ec registry.ExecutionContext) engine.ToolResult {
	runID, _ := call.Args["run_id"].(string)
	if runID == "" {
		return errResult(engine.ErrorValidation, "run_id is required")
	}
	spawner, ok := ec.Agents.(registry.AgentSpawner)
	if !ok || spawner == nil {
		return errResult(engine.ErrorConfig, "no AgentSpawner configured")
	}
	newID, err := spawner.Resume(ec.Context, runID)
	if err != nil {
		return errResult(engine.ErrorNotFound, err.Error())
	}
	return dataResult(map[string]any{"run_id": newID})
}

func dataResult(v map[string]any) engine.ToolResult {
	data, _ := json.Marshal(v)
	return *engine.NewToolResult(engine.ToolResultPayload{OK: true, Data: data})
}
