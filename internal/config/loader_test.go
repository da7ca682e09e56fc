package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadRecognizedKeys(t *testing.T) {
	path := writeConfig(t, `
run:
  max_steps: 25
  resume_strategy: replay
  context_recovery:
    mode: compact_first
    max_compactions_per_run: 2
safety:
  mode: ask
  allowlist: ["git status", "ls"]
  approval_timeout_ms: 15000
skills:
  env_var_missing_policy: skip_skill
  sources:
    - id: local
      type: filesystem
      options:
        dir: ./skills
prompt:
  include_skills_list: true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Run.MaxSteps != 25 || cfg.Run.ResumeStrategy != "replay" {
		t.Fatalf("run = %+v", cfg.Run)
	}
	if cfg.Run.ContextRecovery.Mode != "compact_first" || cfg.Run.ContextRecovery.MaxCompactionsPerRun != 2 {
		t.Fatalf("context_recovery = %+v", cfg.Run.ContextRecovery)
	}
	if cfg.Safety.Mode != "ask" || len(cfg.Safety.Allowlist) != 2 || cfg.Safety.ApprovalTimeoutMs != 15000 {
		t.Fatalf("safety = %+v", cfg.Safety)
	}
	if cfg.Skills.EnvVarMissingPolicy != "skip_skill" {
		t.Fatalf("skills = %+v", cfg.Skills)
	}
	if len(cfg.Skills.Sources) != 1 || cfg.Skills.Sources[0].Type != "filesystem" {
		t.Fatalf("sources = %+v", cfg.Skills.Sources)
	}
	if !cfg.Prompt.IncludeSkillsList {
		t.Fatalf("prompt = %+v", cfg.Prompt)
	}
}

func TestLoadRejectsUnknownTopLevelKey(t *testing.T) {
	path := writeConfig(t, "run:\n  max_steps: 5\nsurprise: true\n")
	if _, err := Load(path); err == nil {
		t.Fatal("unknown top-level key must fail load")
	}
}

func TestLoadRejectsUnknownNestedKey(t *testing.T) {
	path := writeConfig(t, `
run:
  max_steps: 5
  context_recovery:
    mode: fail_fast
    retry_backoff_ms: 100
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("unknown nested key must fail load")
	}
	if !strings.Contains(err.Error(), "retry_backoff_ms") {
		t.Fatalf("error should name the offending key: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("missing file must fail load")
	}
}

func TestLoadKeepsDefaultsForOmittedSections(t *testing.T) {
	path := writeConfig(t, "run:\n  max_steps: 3\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	def := Default()
	if cfg.Safety.Mode != def.Safety.Mode {
		t.Fatalf("omitted safety section must keep defaults: %q vs %q", cfg.Safety.Mode, def.Safety.Mode)
	}
	if cfg.Run.MaxSteps != 3 {
		t.Fatalf("max_steps = %d", cfg.Run.MaxSteps)
	}
}

func TestKnownKeysCoverConfigSurface(t *testing.T) {
	keys := KnownKeys()
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		set[k] = true
	}
	for _, want := range []string{
		"run.max_steps",
		"run.context_recovery.mode",
		"safety.approval_timeout_ms",
		"skills.env_var_missing_policy",
		"skills.sources.type",
		"prompt.history.max_messages",
	} {
		if !set[want] {
			t.Fatalf("KnownKeys missing %q; got %v", want, keys)
		}
	}
}
