package builtintools

import (
	"github.com/skillrun/agentcore/internal/engine"
	"github.com/skillrun/agentcore/internal/registry"
)

// RegisterAll registers the canonical built-in tool set
// into reg. Called once per AgentLoop construction; override=false so a
// caller that accidentally registers twice fails loudly instead of
// silently shadowing a handler. Tools whose collaborator (Executor,
// Skills facade, WebSearcher, AgentSpawner) is left nil at
// ExecutionContext construction still register — they simply return
// config_error at dispatch time, the same fail-closed behavior the
// Safety Gate and Approval Hub require elsewhere. request_user_input
// with no HumanIO provider returns human_required instead.
func RegisterAll(reg *registry.Registry) error {
	entries := []struct {
		spec    engine.ToolSpec
		handler registry.Handler
	}{
		{ReadFileSpec, ReadFile},
		{ListDirSpec, ListDir},
		{GrepFilesSpec, GrepFiles},
		{FileWriteSpec, FileWrite},
		{ApplyPatchSpec, ApplyPatch},
		{ShellExecSpec, ShellExec},
		{ExecCommandSpec, ExecCommand},
		{WriteStdinSpec, WriteStdin},
		{UpdatePlanSpec, UpdatePlan},
		{RequestUserInputSpec, RequestUserInput},
		{ViewImageSpec, ViewImage},
		{WebSearchSpec, WebSearch},
		{SkillExecSpec, SkillExec},
		{SkillRefReadSpec, SkillRefRead},
		{SpawnAgentSpec, SpawnAgent},
		{WaitAgentSpec, WaitAgent},
		{SendInputSpec, SendInput},
		{CloseAgentSpec, CloseAgent},
		{ResumeAgentSpec, ResumeAgent},
	}
	for _, e := range entries {
		if err := reg.Register(e.spec, e.handler, false); err != nil {
			return err
		}
	}
	return nil
}
