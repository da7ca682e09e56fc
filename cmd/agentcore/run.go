package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/skillrun/agentcore/internal/approval"
	"github.com/skillrun/agentcore/internal/backend"
	"github.com/skillrun/agentcore/internal/builtintools"
	"github.com/skillrun/agentcore/internal/compaction"
	"github.com/skillrun/agentcore/internal/config"
	"github.com/skillrun/agentcore/internal/engine"
	"github.com/skillrun/agentcore/internal/execengine"
	"github.com/skillrun/agentcore/internal/loop"
	"github.com/skillrun/agentcore/internal/observability"
	"github.com/skillrun/agentcore/internal/registry"
	"github.com/skillrun/agentcore/internal/safety"
	"github.com/skillrun/agentcore/internal/skills"
)

func buildRunCmd() *cobra.Command {
	var (
		configPath   string
		provider     string
		model        string
		workspaceDir string
		runID        string
		autoApprove  bool
	)

	cmd := &cobra.Command{
		Use:   "run <task>",
		Short: "Run one agent task to completion",
		Long: `Run constructs a ChatBackend from --provider, loads run/safety/skills
configuration from --config, and drives one task through the agent loop,
printing the event stream to stdout as it's emitted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTask(cmd, args[0], runOptions{
				configPath:   configPath,
				provider:     provider,
				model:        model,
				workspaceDir: workspaceDir,
				runID:        runID,
				autoApprove:  autoApprove,
			})
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to a YAML config file (omitted sections get defaults)")
	cmd.Flags().StringVar(&provider, "provider", "", "ChatBackend provider: openai|anthropic (overrides config)")
	cmd.Flags().StringVar(&model, "model", "", "Model name (overrides config)")
	cmd.Flags().StringVar(&workspaceDir, "workspace", ".", "Workspace root the executor's file/shell tools operate against")
	cmd.Flags().StringVar(&runID, "run-id", "", "Resume an existing run by ID instead of starting a new one")
	cmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "Approve every ask-gated tool call without prompting (non-interactive use)")

	return cmd
}

type runOptions struct {
	configPath   string
	provider     string
	model        string
	workspaceDir string
	runID        string
	autoApprove  bool
}

func runTask(cmd *cobra.Command, task string, opts runOptions) error {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if opts.provider != "" {
		cfg.Backend.Provider = opts.provider
	}
	if opts.model != "" {
		cfg.Backend.Model = opts.model
	}

	chatBackend, err := buildBackend(cfg.Backend)
	if err != nil {
		return err
	}

	if cfg.Prompt.SystemText == "" && cfg.Prompt.SystemPath != "" {
		text, err := os.ReadFile(cfg.Prompt.SystemPath)
		if err != nil {
			return fmt.Errorf("read prompt.system_path: %w", err)
		}
		cfg.Prompt.SystemText = string(text)
	}
	if cfg.Prompt.DeveloperText == "" && cfg.Prompt.DeveloperPath != "" {
		text, err := os.ReadFile(cfg.Prompt.DeveloperPath)
		if err != nil {
			return fmt.Errorf("read prompt.developer_path: %w", err)
		}
		cfg.Prompt.DeveloperText = string(text)
	}

	reg := registry.NewRegistry()
	if err := builtintools.RegisterAll(reg); err != nil {
		return fmt.Errorf("register tools: %w", err)
	}

	gate := safety.NewGate(
		safety.Policy{
			Mode:              safety.Mode(orDefault(cfg.Safety.Mode, "ask")),
			Allow:             cfg.Safety.ToolAllowlist,
			Deny:              cfg.Safety.ToolDenylist,
			SandboxPermission: safety.SandboxDefault,
		},
		safety.ShellPolicy{Allow: cfg.Safety.Allowlist, Deny: cfg.Safety.Denylist},
	)

	approvalTimeout := time.Duration(cfg.Safety.ApprovalTimeoutMs) * time.Millisecond
	hub := approval.NewHub(opts.runID, approvalProvider(opts.autoApprove), approvalTimeout)

	skillsMgr := buildSkillsManager(cfg.Skills)
	executor := execengine.NewExecutor(opts.workspaceDir)
	execSessions := execengine.NewExecSessions(opts.workspaceDir)

	loopCfg := loop.Config{
		WorkspaceRoot:          opts.workspaceDir,
		Model:                  cfg.Backend.Model,
		MaxTokens:              cfg.Backend.MaxTokens,
		MaxSteps:               cfg.Run.MaxSteps,
		MaxWallTimeSec:         cfg.Run.MaxWallTimeSec,
		ApprovalTimeoutMs:      cfg.Safety.ApprovalTimeoutMs,
		SystemText:             cfg.Prompt.SystemText,
		DeveloperText:          cfg.Prompt.DeveloperText,
		IncludeSkillsList:      cfg.Prompt.IncludeSkillsList,
		HistoryMaxMessages:     cfg.Prompt.History.MaxMessages,
		HistoryMaxChars:        cfg.Prompt.History.MaxChars,
		SkillSpaces:            enabledSpaces(cfg.Skills.Spaces),
		SkillInjectionMaxBytes: cfg.Skills.Injection.MaxBytes,
		EnvVarMissingPolicy:    skills.EnvVarMissingPolicy(orDefault(cfg.Skills.EnvVarMissingPolicy, string(skills.EnvPolicyFailFast))),
		ContextRecovery: compaction.Config{
			Mode:                           compaction.Mode(orDefault(cfg.Run.ContextRecovery.Mode, string(compaction.ModeCompactFirst))),
			MaxCompactionsPerRun:           cfg.Run.ContextRecovery.MaxCompactionsPerRun,
			AskFirstFallbackMode:           compaction.Mode(orDefault(cfg.Run.ContextRecovery.AskFirstFallbackMode, string(compaction.ModeCompactFirst))),
			CompactionHistoryMaxChars:      cfg.Run.ContextRecovery.CompactionHistoryMaxChars,
			CompactionKeepLastMessages:     cfg.Run.ContextRecovery.CompactionKeepLastMessages,
			IncreaseBudgetExtraSteps:       cfg.Run.ContextRecovery.IncreaseBudgetExtraSteps,
			IncreaseBudgetExtraWallTimeSec: cfg.Run.ContextRecovery.IncreaseBudgetExtraWallTimeSec,
			HumanTimeoutMs:                 cfg.Run.HumanTimeoutMs,
		},
		ResumeStrategy: cfg.Run.ResumeStrategy,
	}

	summarizer := &backendSummarizer{backend: chatBackend, model: cfg.Backend.Model}
	agentLoop := loop.NewAgentLoop(loopCfg, chatBackend, reg, gate, hub, skillsMgr, executor, execSessions, nil, nil, summarizer, nil)

	if skillsMgr != nil {
		cacheDir := cfg.Skills.Bundles.CacheDir
		if cacheDir == "" {
			cacheDir = filepath.Join(opts.workspaceDir, ".agentcore", "bundles")
		}
		limits := skills.DefaultBundleLimits()
		if cfg.Skills.Bundles.MaxBytes > 0 {
			limits.MaxBytes = cfg.Skills.Bundles.MaxBytes
		}
		agentLoop.WithSkillsFacade(&skills.Facade{
			Manager:  skillsMgr,
			Spaces:   enabledSpaces(cfg.Skills.Spaces),
			Bundles:  skills.NewBundleExtractor(cacheDir, limits),
			MaxBytes: cfg.Skills.References.DefaultMaxBytes,
		})
	}

	// Child runs get their own approval hub and denial tracker; the rest
	// of the collaborators are shared.
	coordinator := loop.NewCoordinator(func() *loop.AgentLoop {
		childHub := approval.NewHub("", approvalProvider(opts.autoApprove), approvalTimeout)
		return loop.NewAgentLoop(loopCfg, chatBackend, reg, gate, childHub, skillsMgr, executor, execSessions, nil, nil, summarizer, nil)
	}, loopCfg)
	agentLoop.WithAgentSpawner(coordinator)

	if cfg.Skills.Scan.Watch && skillsMgr != nil {
		var roots []string
		for _, s := range cfg.Skills.Sources {
			if s.Type == "filesystem" {
				if dir, ok := s.Options["dir"].(string); ok && dir != "" {
					roots = append(roots, dir)
				}
			}
		}
		if len(roots) > 0 {
			watcher, err := skills.NewWatcher(skillsMgr, roots, slog.Default())
			if err != nil {
				slog.Warn("skill watch unavailable", "error", err)
			} else {
				go watcher.Run()
				defer watcher.Stop()
			}
		}
	}

	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName: "agentcore", ServiceVersion: version,
	})
	agentLoop.WithHook(tracer.Hook())
	metrics := observability.NewMetrics()
	agentLoop.WithHook(metrics.Hook())
	defer shutdownTracer(context.Background())

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	enc := json.NewEncoder(os.Stdout)
	for ev := range agentLoop.RunStream(ctx, task, opts.runID, nil) {
		_ = enc.Encode(ev)
	}
	return nil
}

func buildBackend(cfg config.BackendConfig) (engine.ChatBackend, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "anthropic":
		return backend.NewAnthropicBackend(backend.AnthropicConfig{
			APIKey:       os.Getenv("ANTHROPIC_API_KEY"),
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.Model,
		})
	case "openai":
		return backend.NewOpenAIBackend(backend.OpenAIConfig{
			APIKey:       os.Getenv("OPENAI_API_KEY"),
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.Model,
		})
	default:
		return nil, fmt.Errorf("run: unknown provider %q (want openai or anthropic)", cfg.Provider)
	}
}

func buildSkillsManager(cfg config.SkillsConfig) *skills.Manager {
	if len(cfg.Sources) == 0 {
		return nil
	}
	var sources []skills.Source
	for _, s := range cfg.Sources {
		switch s.Type {
		case "filesystem":
			dir, _ := s.Options["dir"].(string)
			sources = append(sources, skills.NewFilesystemSource(s.ID, s.Priority, s.SpaceID, dir))
		case "sqlite":
			path, _ := s.Options["path"].(string)
			table, _ := s.Options["table"].(string)
			src, err := skills.OpenSQLiteSource(s.ID, s.Priority, s.SpaceID, path, table)
			if err != nil {
				slog.Warn("skipping sqlite skill source", "id", s.ID, "error", err)
				continue
			}
			sources = append(sources, src)
		default:
			// redis/postgres sources need a live connection handle this
			// CLI's declarative config surface doesn't carry; a deployment
			// wiring those in embeds loop.NewAgentLoop directly instead of
			// going through this CLI.
		}
	}
	if len(sources) == 0 {
		return nil
	}
	refresh := skills.RefreshPolicy(orDefault(cfg.Scan.RefreshPolicy, string(skills.RefreshTTL)))
	ttl := time.Duration(cfg.Scan.TTLSec) * time.Second
	return skills.NewManager(sources, refresh, ttl)
}

// approvalProvider builds the Approval Hub's decision source: either an
// always-approve stub for non-interactive runs, or a stdin y/n prompt.
func approvalProvider(autoApprove bool) approval.Provider {
	if autoApprove {
		return approval.ProviderFunc(func(ctx context.Context, req approval.Request) (approval.Decision, error) {
			return approval.ApprovedOnce, nil
		})
	}
	reader := bufio.NewReader(os.Stdin)
	return approval.ProviderFunc(func(ctx context.Context, req approval.Request) (approval.Decision, error) {
		fmt.Fprintf(os.Stderr, "\napprove %q? %s\n[y]es-once / [s]ession / [n]o / [a]bort: ", req.Tool, req.Summary)
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, os.ErrClosed) {
			return approval.Denied, nil
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return approval.ApprovedOnce, nil
		case "s", "session":
			return approval.ApprovedForSession, nil
		case "a", "abort":
			return approval.Abort, nil
		default:
			return approval.Denied, nil
		}
	})
}

func enabledSpaces(spaces []config.SkillSpaceConfig) skills.SpaceSet {
	if len(spaces) == 0 {
		return nil
	}
	set := make(skills.SpaceSet, len(spaces))
	for _, s := range spaces {
		if !s.Enabled {
			continue
		}
		// Mentions resolve by namespace; the id is only the handle
		// sources reference in skills.spaces[].sources.
		ns := s.Namespace
		if ns == "" {
			ns = s.ID
		}
		set[ns] = true
	}
	return set
}

// backendSummarizer runs the one-shot compaction turn against the same
// ChatBackend the run itself uses, with a fixed summarization prompt.
type backendSummarizer struct {
	backend engine.ChatBackend
	model   string
}

const compactionPrompt = "Summarize the following conversation transcript for a continuation " +
	"of the same task. Preserve: the original task, decisions made, files or resources touched, " +
	"tool results that still matter, and any unresolved errors. Be concise; omit pleasantries."

func (s *backendSummarizer) Summarize(ctx context.Context, msgs []compaction.Message, cfg compaction.SummaryConfig) (string, error) {
	instructions := compactionPrompt
	if cfg.Instructions != "" {
		instructions = cfg.Instructions
	}
	history := make([]engine.ChatMessage, 0, len(msgs)+1)
	for _, m := range msgs {
		history = append(history, engine.ChatMessage{Role: "user", Content: fmt.Sprintf("[%s] %s", m.Role, m.Content)})
	}
	history = append(history, engine.ChatMessage{Role: "user", Content: instructions})

	chunks, err := s.backend.StreamChat(ctx, engine.ChatRequest{Model: s.model, Messages: history})
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for chunk := range chunks {
		if chunk.Err != nil {
			return "", chunk.Err
		}
		b.WriteString(chunk.TextDelta)
	}
	return b.String(), nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
