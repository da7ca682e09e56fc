// Package config implements the recognized configuration surface: a Go
// struct tree unmarshaled from YAML via gopkg.in/yaml.v3, with strict
// unknown-key rejection at every nesting level.
package config

// Config is the root of the recognized configuration surface.
// Unrecognized keys at any nesting level cause Load to fail.
type Config struct {
	Run     RunConfig     `yaml:"run"`
	Safety  SafetyConfig  `yaml:"safety"`
	Sandbox SandboxConfig `yaml:"sandbox"`
	Skills  SkillsConfig  `yaml:"skills"`
	Prompt  PromptConfig  `yaml:"prompt"`

	// Backend selects which ChatBackend adapter the binary constructs —
	// the config-file equivalent of cmd/agentcore's --provider flag for
	// non-interactive use.
	Backend BackendConfig `yaml:"backend"`
}

// RunConfig is run.*: loop budgets and context-recovery policy.
type RunConfig struct {
	MaxSteps        int    `yaml:"max_steps"`
	MaxWallTimeSec  int    `yaml:"max_wall_time_sec"`
	HumanTimeoutMs  int    `yaml:"human_timeout_ms"`
	ResumeStrategy  string `yaml:"resume_strategy"` // summary|replay

	ContextRecovery ContextRecoveryConfig `yaml:"context_recovery"`
}

// ContextRecoveryConfig is run.context_recovery.*.
type ContextRecoveryConfig struct {
	Mode                           string `yaml:"mode"` // compact_first|ask_first|fail_fast
	MaxCompactionsPerRun           int    `yaml:"max_compactions_per_run"`
	AskFirstFallbackMode           string `yaml:"ask_first_fallback_mode"`
	CompactionHistoryMaxChars      int    `yaml:"compaction_history_max_chars"`
	CompactionKeepLastMessages     int    `yaml:"compaction_keep_last_messages"`
	IncreaseBudgetExtraSteps       int    `yaml:"increase_budget_extra_steps"`
	IncreaseBudgetExtraWallTimeSec int    `yaml:"increase_budget_extra_wall_time_sec"`
}

// SafetyConfig is safety.*: the Safety Gate's policy.
type SafetyConfig struct {
	Mode              string   `yaml:"mode"` // allow|ask|deny
	Allowlist         []string `yaml:"allowlist"`
	Denylist          []string `yaml:"denylist"`
	ToolAllowlist     []string `yaml:"tool_allowlist"`
	ToolDenylist      []string `yaml:"tool_denylist"`
	ApprovalTimeoutMs int      `yaml:"approval_timeout_ms"`
}

// SandboxConfig is sandbox.*. The execution sandbox itself is an
// external collaborator; this surface only carries the
// declarative policy an Executor implementation is configured with.
type SandboxConfig struct {
	DefaultPolicy string            `yaml:"default_policy"` // none|restricted
	Profile       string            `yaml:"profile"`        // dev|balanced|prod
	OS            map[string]string `yaml:"os"`
}

// SkillsConfig is skills.*.
type SkillsConfig struct {
	Strictness          map[string]any       `yaml:"strictness"`
	Spaces              []SkillSpaceConfig    `yaml:"spaces"`
	Sources             []SkillSourceConfig   `yaml:"sources"`
	Scan                SkillScanConfig       `yaml:"scan"`
	Injection           SkillInjectionConfig  `yaml:"injection"`
	Bundles             SkillBundlesConfig    `yaml:"bundles"`
	Actions             SkillActionsConfig    `yaml:"actions"`
	References          SkillReferencesConfig `yaml:"references"`
	EnvVarMissingPolicy string                `yaml:"env_var_missing_policy"` // ask_human|fail_fast|skip_skill
}

// SkillSpaceConfig is one entry of skills.spaces[].
type SkillSpaceConfig struct {
	ID        string   `yaml:"id"`
	Namespace string   `yaml:"namespace"`
	Sources   []string `yaml:"sources"`
	Enabled   bool     `yaml:"enabled"`
}

// SkillSourceConfig is one entry of skills.sources[]; Options is
// source-type-specific (dir for filesystem, path/table for sqlite,
// addr/prefix for redis, dsn/table for postgres).
type SkillSourceConfig struct {
	ID       string         `yaml:"id"`
	Type     string         `yaml:"type"` // filesystem|sqlite|redis|postgres|memory
	Priority int            `yaml:"priority"`
	SpaceID  string         `yaml:"space_id"`
	Options  map[string]any `yaml:"options"`
}

// SkillScanConfig is skills.scan.*.
type SkillScanConfig struct {
	RefreshPolicy string `yaml:"refresh_policy"` // always|ttl|manual
	TTLSec        int    `yaml:"ttl_sec"`
	Watch         bool   `yaml:"watch"`
}

// SkillInjectionConfig is skills.injection.*.
type SkillInjectionConfig struct {
	MaxBytes int `yaml:"max_bytes"`
}

// SkillBundlesConfig is skills.bundles.*.
type SkillBundlesConfig struct {
	MaxBytes int64  `yaml:"max_bytes"`
	CacheDir string `yaml:"cache_dir"`
}

// SkillActionsConfig is skills.actions.*.
type SkillActionsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// SkillReferencesConfig is skills.references.*.
type SkillReferencesConfig struct {
	Enabled         bool     `yaml:"enabled"`
	AllowAssets     []string `yaml:"allow_assets"`
	DefaultMaxBytes int64    `yaml:"default_max_bytes"`
}

// PromptConfig is prompt.*.
type PromptConfig struct {
	Template          string        `yaml:"template"`
	SystemText        string        `yaml:"system_text"`
	DeveloperText     string        `yaml:"developer_text"`
	SystemPath        string        `yaml:"system_path"`
	DeveloperPath     string        `yaml:"developer_path"`
	IncludeSkillsList bool          `yaml:"include_skills_list"`
	History           HistoryConfig `yaml:"history"`
}

// HistoryConfig is prompt.history.*.
type HistoryConfig struct {
	MaxMessages int `yaml:"max_messages"`
	MaxChars    int `yaml:"max_chars"`
}

// BackendConfig selects and configures the ChatBackend adapter
// (cmd/agentcore's --provider flag default).
type BackendConfig struct {
	Provider  string `yaml:"provider"` // openai|anthropic
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
	BaseURL   string `yaml:"base_url"`
}

// Default returns the Config that Load overlays the file onto, so a
// zero-value file (or one that omits a section entirely) still produces
// a runnable configuration. Where loop.Config.sanitized and
// compaction.Config.sanitized also fill a default, the values agree;
// the run budgets, safety/sandbox modes, scan, history and backend
// defaults are set only here.
func Default() Config {
	return Config{
		Run: RunConfig{
			MaxSteps:       100,
			MaxWallTimeSec: 600,
			HumanTimeoutMs: 60_000,
			ResumeStrategy: "summary",
			ContextRecovery: ContextRecoveryConfig{
				Mode:                       "compact_first",
				MaxCompactionsPerRun:       3,
				AskFirstFallbackMode:       "compact_first",
				CompactionKeepLastMessages: 6,
			},
		},
		Safety: SafetyConfig{
			Mode:              "ask",
			ApprovalTimeoutMs: 60_000,
		},
		Sandbox: SandboxConfig{
			DefaultPolicy: "restricted",
			Profile:       "balanced",
		},
		Skills: SkillsConfig{
			Scan:                SkillScanConfig{RefreshPolicy: "ttl", TTLSec: 30},
			Injection:           SkillInjectionConfig{MaxBytes: 64 * 1024},
			EnvVarMissingPolicy: "fail_fast",
			Actions:             SkillActionsConfig{Enabled: true},
			References:          SkillReferencesConfig{Enabled: true, DefaultMaxBytes: 1 << 20},
		},
		Prompt: PromptConfig{
			IncludeSkillsList: true,
			History:           HistoryConfig{MaxMessages: 200, MaxChars: 400_000},
		},
		Backend: BackendConfig{
			Provider:  "anthropic",
			MaxTokens: 4096,
		},
	}
}
