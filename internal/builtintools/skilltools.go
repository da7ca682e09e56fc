package builtintools

import (
	"encoding/json"

	"github.com/skillrun/agentcore/internal/engine"
	"github.com/skillrun/agentcore/internal/execengine"
	"github.com/skillrun/agentcore/internal/registry"
	"github.com/skillrun/agentcore/internal/skills"
)

// SkillRefReadSpec is skill_ref_read's registered contract: read one
// reference asset out of a resolved skill's bundle (or, for
// filesystem-sourced skills, its own directory).
var SkillRefReadSpec = engine.ToolSpec{
	Name:        "skill_ref_read",
	Description: "Read a reference asset (under references/) bundled with a skill.",
	Parameters: json.RawMessage(`{
		"type": "object",
		"properties": {
			"namespace": {"type": "string"},
			"skill_name": {"type": "string"},
			"ref_path": {"type": "string"}
		},
		"required": ["namespace", "skill_name", "ref_path"]
	}`),
	Idempotency: engine.IdempotencySafe,
}

// SkillRefRead resolves (namespace, skill_name), materializes its asset
// directory (extracting the bundle on first use), and returns ref_path's
// contents as text.
func SkillRefRead(call engine.ToolCall, ec registry.ExecutionContext) engine.ToolResult {
	facade, sk, res := lookupSkillForAssets(call, ec)
	if res != nil {
		return *res
	}
	refPath, _ := call.Args["ref_path"].(string)
	if refPath == "" {
		return errResult(engine.ErrorValidation, "ref_path is required")
	}
	data, err := facade.ReadAsset(sk, joinRef("references", refPath))
	if err != nil {
		return errResult(classifySkillAssetErr(err), err.Error())
	}
	return okResult(string(data), false)
}

// SkillExecSpec is skill_exec's registered contract: run one of a
// skill's bundled actions through the Executor.
var SkillExecSpec = engine.ToolSpec{
	Name:        "skill_exec",
	Description: "Run a bundled action script (under actions/) for a resolved skill.",
	Parameters: json.RawMessage(`{
		"type": "object",
		"properties": {
			"namespace": {"type": "string"},
			"skill_name": {"type": "string"},
			"action": {"type": "string"},
			"args": {"type": "array", "items": {"type": "string"}}
		},
		"required": ["namespace", "skill_name", "action"]
	}`),
	RequiresApproval: true,
	Idempotency:      engine.IdempotencyUnknown,
}

// SkillExec resolves the named skill's action script and runs it with
// args via ec.Executor, mirroring exec_command's argv contract.
func SkillExec(call engine.ToolCall, ec registry.ExecutionContext) engine.ToolResult {
	facade, sk, res := lookupSkillForAssets(call, ec)
	if res != nil {
		return *res
	}
	action, _ := call.Args["action"].(string)
	if action == "" {
		return errResult(engine.ErrorValidation, "action is required")
	}
	ex, ok := ec.Executor.(*execengine.Executor)
	if !ok || ex == nil {
		return errResult(engine.ErrorConfig, "no executor configured")
	}
	scriptPath, err := facade.ActionPath(sk, action)
	if err != nil {
		return errResult(classifySkillAssetErr(err), err.Error())
	}
	argv := append([]string{scriptPath}, stringSliceArg(call.Args["args"])...)
	out, err := ex.RunCommand(ec.Context, argv, "", ec.Env, ec.DefaultTimeoutMs, ec.CancelChecker)
	if err != nil {
		return errResult(engine.ErrorUnknown, err.Error())
	}
	return commandResultToTool(out)
}

func lookupSkillForAssets(call engine.ToolCall, ec registry.ExecutionContext) (*skills.Facade, skills.Skill, *engine.ToolResult) {
	namespace, _ := call.Args["namespace"].(string)
	name, _ := call.Args["skill_name"].(string)
	if namespace == "" || name == "" {
		r := errResult(engine.ErrorValidation, "namespace and skill_name are required")
		return nil, skills.Skill{}, &r
	}
	facade, ok := ec.Skills.(*skills.Facade)
	if !ok || facade == nil {
		r := errResult(engine.ErrorConfig, "no skills facade configured")
		return nil, skills.Skill{}, &r
	}
	if !facade.Spaces[namespace] {
		r := errResult(engine.ErrorPermission, skills.ErrSpaceNotConfigured.Error())
		return nil, skills.Skill{}, &r
	}
	sk, found := facade.Manager.Lookup(namespace, name)
	if !found {
		r := errResult(engine.ErrorNotFound, skills.ErrUnknownSkill.Error())
		return nil, skills.Skill{}, &r
	}
	return facade, sk, nil
}

func classifySkillAssetErr(err error) engine.ErrorKind {
	switch err {
	case skills.ErrBundleFingerprintBad, skills.ErrBundlesUnsupported:
		return engine.ErrorPermission
	default:
		return engine.ErrorNotFound
	}
}

func joinRef(prefix, rel string) string {
	if rel == "" {
		return prefix
	}
	return prefix + "/" + rel
}
