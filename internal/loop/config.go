// Package loop implements the Agent Loop: the turn-by-turn orchestrator
// that composes the WAL emitter, Tool Registry & Dispatcher, Safety
// Gate, Approval Hub, Skills Manager, Loop Controller, and Context
// Recovery around a ChatBackend, driven by one goroutine per run that
// publishes Events over the WAL emitter's subscriber channel.
package loop

import (
	"github.com/skillrun/agentcore/internal/compaction"
	"github.com/skillrun/agentcore/internal/skills"
)

// Config is the static, per-run configuration surface (the run/prompt/
// skills slice; safety/sandbox config lives in the safety.Policy passed
// to the Gate separately).
type Config struct {
	WorkspaceRoot string
	RuntimeDir    string // default ".agentcore"
	AppVersion    string
	Environment   string

	MaxSteps          int
	MaxWallTimeSec    int
	ApprovalTimeoutMs int
	DenialThreshold   int

	DefaultToolTimeoutMs int64

	Model     string
	MaxTokens int

	SystemText        string
	DeveloperText     string
	IncludeSkillsList bool

	// HistoryMaxMessages/HistoryMaxChars bound what is sent to the
	// backend each turn (oldest messages dropped first); 0 means
	// unbounded. Distinct from compaction, which rewrites history on
	// overflow — these are a hard per-request ceiling.
	HistoryMaxMessages int
	HistoryMaxChars    int

	SkillSpaces            skills.SpaceSet
	SkillInjectionMaxBytes int
	EnvVarMissingPolicy    skills.EnvVarMissingPolicy

	ContextRecovery compaction.Config

	ResumeStrategy string // summary|replay
}

func (c Config) sanitized() Config {
	if c.RuntimeDir == "" {
		c.RuntimeDir = ".agentcore"
	}
	if c.ApprovalTimeoutMs <= 0 {
		c.ApprovalTimeoutMs = 60_000
	}
	if c.DenialThreshold <= 0 {
		c.DenialThreshold = 2
	}
	if c.DefaultToolTimeoutMs <= 0 {
		c.DefaultToolTimeoutMs = 30_000
	}
	if c.SkillInjectionMaxBytes <= 0 {
		c.SkillInjectionMaxBytes = 64 * 1024
	}
	if c.EnvVarMissingPolicy == "" {
		c.EnvVarMissingPolicy = skills.EnvPolicyFailFast
	}
	if c.ResumeStrategy == "" {
		c.ResumeStrategy = "summary"
	}
	return c
}
