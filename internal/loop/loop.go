package loop

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/skillrun/agentcore/internal/approval"
	"github.com/skillrun/agentcore/internal/compaction"
	"github.com/skillrun/agentcore/internal/engine"
	"github.com/skillrun/agentcore/internal/execengine"
	"github.com/skillrun/agentcore/internal/loopctl"
	"github.com/skillrun/agentcore/internal/registry"
	"github.com/skillrun/agentcore/internal/safety"
	"github.com/skillrun/agentcore/internal/skills"
	"github.com/skillrun/agentcore/internal/wal"
	"github.com/skillrun/agentcore/internal/workspace"
)

// Run-level failure reasons carried in run_failed's error_kind payload
// field. These are a broader vocabulary than engine.ErrorKind (which is
// scoped to tool dispatch): budget_exceeded, approval_denied, and
// context_length_exceeded are run-level failures with no
// ToolResultPayload analogue.
const (
	reasonBudgetExceeded        = "budget_exceeded"
	reasonApprovalDenied        = "approval_denied"
	reasonConfigError           = "config_error"
	reasonContextLengthExceeded = "context_length_exceeded"
	reasonUnknown               = "unknown"
)

// RunResult is the Run facade's synchronous return value.
type RunResult struct {
	Status      string // completed|failed|cancelled
	FinalOutput string
	WalLocator  string
	Metadata    map[string]any
	ErrorKind   string
	Message     string
}

// AgentLoop composes the Loop Controller, Tool Registry & Dispatcher,
// Safety Gate, Approval Hub, Skills Manager, and Context Recovery around
// one ChatBackend, and drives a run to a terminal event.
type AgentLoop struct {
	cfg Config

	backend    engine.ChatBackend
	registry   *registry.Registry
	dispatcher *registry.Dispatcher
	gate       *safety.Gate
	approvals  *approval.Hub
	denials    *approval.DenialTracker
	skillsMgr  *skills.Manager

	executor     *execengine.Executor
	execSessions *execengine.ExecSessions

	skillsFacade *skills.Facade
	humanIO      engine.HumanIOProvider
	webSearcher  any
	agents       registry.AgentSpawner

	envStore      map[string]string
	cancelChecker func() bool

	summarizer    compaction.Summarizer
	humanProvider compaction.HumanProvider

	// hooks are registered onto every run's emitter in RunStream, so an
	// observability layer (metrics, tracing) can watch a run's event
	// stream without the turn-execution code in run()/executeToolsPhase
	// knowing it exists.
	hooks []wal.Hook

	// denialAbort is set by executeToolsPhase when a repeat-denial
	// threshold trips; run() checks it right after appending that turn's
	// tool results, rather than threading a third return value through.
	denialAbort bool
}

// NewAgentLoop wires one run's collaborators together. skillsMgr,
// executor, execSessions, summarizer, and humanProvider may be nil when
// a deployment doesn't need them (no skills, no approval-required tools,
// fail_fast context recovery).
func NewAgentLoop(
	cfg Config,
	backend engine.ChatBackend,
	reg *registry.Registry,
	gate *safety.Gate,
	approvals *approval.Hub,
	skillsMgr *skills.Manager,
	executor *execengine.Executor,
	execSessions *execengine.ExecSessions,
	envStore map[string]string,
	cancelChecker func() bool,
	summarizer compaction.Summarizer,
	humanProvider compaction.HumanProvider,
) *AgentLoop {
	if envStore == nil {
		envStore = map[string]string{}
	}
	if cancelChecker == nil {
		cancelChecker = func() bool { return false }
	}
	redactor := engine.DefaultRedactor(engine.MapEnvStore(envStore))
	return &AgentLoop{
		cfg:           cfg.sanitized(),
		backend:       backend,
		registry:      reg,
		dispatcher:    registry.NewDispatcher(reg, gate, approvals, redactor),
		gate:          gate,
		approvals:     approvals,
		denials:       approval.NewDenialTracker(cfg.DenialThreshold),
		skillsMgr:     skillsMgr,
		executor:      executor,
		execSessions:  execSessions,
		envStore:      envStore,
		cancelChecker: cancelChecker,
		summarizer:    summarizer,
		humanProvider: humanProvider,
	}
}

// WithSkillsFacade wires the skill_exec/skill_ref_read asset surface
// (bundle extraction across sources); left nil, those two tools
// fail-closed with config_error.
func (l *AgentLoop) WithSkillsFacade(f *skills.Facade) *AgentLoop { l.skillsFacade = f; return l }

// WithHumanIO wires request_user_input's external collaborator.
func (l *AgentLoop) WithHumanIO(p engine.HumanIOProvider) *AgentLoop { l.humanIO = p; return l }

// WithWebSearcher wires web_search's external collaborator.
func (l *AgentLoop) WithWebSearcher(s any) *AgentLoop { l.webSearcher = s; return l }

// WithAgentSpawner wires the multi-agent coordination tools
// (spawn_agent/wait_agent/send_input/close_agent/resume_agent).
func (l *AgentLoop) WithAgentSpawner(s registry.AgentSpawner) *AgentLoop { l.agents = s; return l }

// WithHook registers an observer invoked synchronously on every event a
// run emits, across every future call to RunStream. Used to attach
// metrics/tracing without threading an emitter reference through the
// loop's turn-execution code.
func (l *AgentLoop) WithHook(h wal.Hook) *AgentLoop { l.hooks = append(l.hooks, h); return l }

// Run drives one task to completion and returns the terminal result,
// draining the event stream internally — the synchronous facade over
// RunStream.
func (l *AgentLoop) Run(ctx context.Context, task, runID string, initialHistory []engine.ChatMessage) RunResult {
	result := RunResult{Status: "failed", ErrorKind: reasonUnknown, Message: "run produced no terminal event"}
	for ev := range l.RunStream(ctx, task, runID, initialHistory) {
		switch ev.Type {
		case engine.EventRunCompleted:
			result = RunResult{
				Status:      "completed",
				FinalOutput: stringField(ev.Payload, "final_output"),
				WalLocator:  stringField(ev.Payload, "wal_locator"),
				Metadata:    mapField(ev.Payload, "metadata"),
			}
		case engine.EventRunFailed:
			result = RunResult{
				Status:     "failed",
				WalLocator: stringField(ev.Payload, "wal_locator"),
				ErrorKind:  stringField(ev.Payload, "error_kind"),
				Message:    stringField(ev.Payload, "message"),
			}
		case engine.EventRunCancelled:
			result = RunResult{
				Status:     "cancelled",
				WalLocator: stringField(ev.Payload, "wal_locator"),
				Message:    stringField(ev.Payload, "message"),
			}
		}
	}
	return result
}

// RunStream drives one task and returns the live event stream; the
// channel closes once the run reaches its terminal event. Both the async
// SSE-gateway facade (RunStreamAsync) and the synchronous Run facade
// drain the same channel shape — a Go channel already is an async
// iterator, so no separate implementation is needed for the former.
func (l *AgentLoop) RunStream(ctx context.Context, task, runID string, initialHistory []engine.ChatMessage) <-chan engine.Event {
	if runID == "" {
		runID = engine.NewRunID()
	}

	eventsPath := filepath.Join(wal.RunsDir(l.cfg.WorkspaceRoot, l.cfg.RuntimeDir, runID), "events.jsonl")
	resuming := fileExists(eventsPath)

	backend, err := wal.NewFileBackend(l.cfg.WorkspaceRoot, l.cfg.RuntimeDir, runID, l.cfg.AppVersion, l.cfg.Environment)
	if err != nil {
		out := make(chan engine.Event, 1)
		out <- engine.Event{Type: engine.EventRunFailed, RunID: runID, Payload: map[string]any{
			"error_kind": reasonConfigError, "message": err.Error(),
		}}
		close(out)
		return out
	}

	emitter := wal.NewEmitter(runID, backend, engine.DefaultRedactor(engine.MapEnvStore(l.envStore)), nil)
	for _, h := range l.hooks {
		emitter.AddHook(h)
	}
	stream := emitter.Subscribe()

	go func() {
		defer backend.Close()
		defer emitter.Unsubscribe(stream)
		l.run(ctx, emitter, runID, task, initialHistory, resuming)
	}()

	return stream
}

// RunStreamAsync is RunStream under the name an async SSE gateway looks
// for; Go's channel is already the async iterator a consumer needs.
func (l *AgentLoop) RunStreamAsync(ctx context.Context, task, runID string, initialHistory []engine.ChatMessage) <-chan engine.Event {
	return l.RunStream(ctx, task, runID, initialHistory)
}

func (l *AgentLoop) run(ctx context.Context, emitter *wal.Emitter, runID, task string, initialHistory []engine.ChatMessage, resuming bool) {
	walLocator := filepath.Join(wal.RunsDir(l.cfg.WorkspaceRoot, l.cfg.RuntimeDir, runID), "events.jsonl")
	controller := loopctl.NewController(loopctl.Config{
		MaxSteps:       l.cfg.MaxSteps,
		MaxWallTimeSec: l.cfg.MaxWallTimeSec,
		CancelChecker:  l.cancelChecker,
	})
	resolver := workspace.Resolver{Root: l.cfg.WorkspaceRoot}
	artifactDir := filepath.Join(wal.RunsDir(l.cfg.WorkspaceRoot, l.cfg.RuntimeDir, runID), "artifacts")
	recovery := compaction.NewRecovery(l.cfg.ContextRecovery, l.summarizer, artifactDir, l.humanProvider)

	runStartedPayload := map[string]any{"config_digest": l.configDigest()}
	if resuming {
		runStartedPayload["resume"] = map[string]any{
			"enabled":         true,
			"strategy":        l.cfg.ResumeStrategy,
			"previous_events": countEvents(walLocator),
		}
	}
	emitter.Emit(engine.EventRunStarted, "", "", runStartedPayload)

	history, ok := l.seedConversation(emitter, runID, task, initialHistory, walLocator)
	if !ok {
		return
	}

	for {
		if v := controller.CheckBudget(); v != loopctl.ViolationNone {
			l.terminateOnBudget(emitter, v, walLocator)
			return
		}

		turnID := engine.TurnID(controller.NextTurn())
		emitter.Emit(engine.EventLLMRequestStarted, turnID, "", map[string]any{"model": l.cfg.Model})

		chunks, err := l.backend.StreamChat(ctx, engine.ChatRequest{
			Model:     l.cfg.Model,
			System:    "",
			Messages:  boundHistory(history, l.cfg.HistoryMaxMessages, l.cfg.HistoryMaxChars),
			Tools:     l.registry.Specs(),
			MaxTokens: l.cfg.MaxTokens,
		})
		if err != nil {
			l.failRun(emitter, reasonConfigError, err.Error(), walLocator)
			return
		}

		text, pending, finish, streamErr := consumeStream(emitter, turnID, chunks)
		if streamErr != nil {
			l.failRun(emitter, reasonUnknown, streamErr.Error(), walLocator)
			return
		}

		switch finish {
		case engine.FinishStop:
			if len(pending) == 0 {
				emitter.Emit(engine.EventRunCompleted, turnID, "", map[string]any{
					"final_output": text, "wal_locator": walLocator, "metadata": map[string]any{},
				})
				return
			}
			// model produced tool calls alongside a stop reason: dispatch
			// them as if tool_calls had been signalled.
			fallthrough
		case engine.FinishToolCalls:
			assistantMsg := engine.ChatMessage{Role: "assistant", Content: text, ToolCalls: pending}
			history = append(history, assistantMsg)
			emitter.Emit(engine.EventToolCalls, turnID, "", map[string]any{"count": len(pending)})

			results, budgetExceeded := l.executeToolsPhase(ctx, emitter, runID, turnID, controller, resolver, pending)
			for i, call := range pending {
				var res *engine.ToolResult
				if i < len(results) {
					res = results[i]
				} else {
					res = engine.NewToolResult(engine.ToolResultPayload{OK: false, ErrorKind: engine.ErrorCancelled, Message: "not dispatched: budget exceeded"})
				}
				history = append(history, engine.ChatMessage{Role: "tool", ToolCallID: call.CallID, Name: call.Name, Content: res.Content})
			}
			if budgetExceeded {
				l.failRun(emitter, reasonBudgetExceeded, "step budget exceeded mid-turn", walLocator)
				return
			}
			if l.denialAbort {
				l.failRun(emitter, reasonApprovalDenied, "approval repeatedly denied for the same request", walLocator)
				l.denialAbort = false
				return
			}
		case engine.FinishLength:
			msgs := toCompactionMessages(history)
			outcome, err := recovery.Recover(ctx, runID, msgs, func(typ engine.EventType, payload map[string]any) {
				emitter.Emit(typ, turnID, "", payload)
			})
			if err != nil {
				l.failRun(emitter, reasonUnknown, err.Error(), walLocator)
				return
			}
			switch outcome.Action {
			case compaction.ActionContinue:
				history = fromCompactionMessages(outcome.NewHistory)
				if outcome.BudgetStepsAdded > 0 {
					controller.IncreaseStepBudget(outcome.BudgetStepsAdded)
				}
				if outcome.BudgetWallTimeAdded > 0 {
					controller.ExtendWallTime(outcome.BudgetWallTimeAdded)
				}
			case compaction.ActionHandoff:
				emitter.Emit(engine.EventRunCompleted, turnID, "", map[string]any{
					"final_output": "", "wal_locator": walLocator,
					"metadata": map[string]any{"handoff_artifact": outcome.ArtifactPath},
				})
				return
			case compaction.ActionTerminate:
				emitter.Emit(engine.EventRunCancelled, turnID, "", map[string]any{"message": outcome.Reason, "wal_locator": walLocator})
				return
			case compaction.ActionFail:
				l.failRun(emitter, reasonContextLengthExceeded, outcome.Reason, walLocator)
				return
			}
		case engine.FinishCancelled:
			emitter.Emit(engine.EventRunCancelled, turnID, "", map[string]any{"message": "cancelled", "wal_locator": walLocator})
			return
		default:
			l.failRun(emitter, reasonUnknown, fmt.Sprintf("unrecognized finish reason %q", finish), walLocator)
			return
		}
	}
}

// seedConversation builds the system/developer messages, extracts skill
// mentions from task, resolves and injects each, and appends the user
// task message. Returns ok=false if a fail_fast condition (missing env
// var, no human provider) already terminated the run.
func (l *AgentLoop) seedConversation(emitter *wal.Emitter, runID, task string, initialHistory []engine.ChatMessage, walLocator string) ([]engine.ChatMessage, bool) {
	history := append([]engine.ChatMessage{}, initialHistory...)

	var available []skills.Skill
	if l.skillsMgr != nil {
		if report, err := l.skillsMgr.Scan(); err == nil {
			available = report.Skills
		}
	}
	if sys := buildSystemPrompt(l.cfg, available); sys != "" {
		history = append(history, engine.ChatMessage{Role: "system", Content: sys})
	}
	if dev := buildDeveloperPrompt(l.cfg); dev != "" {
		history = append(history, engine.ChatMessage{Role: "system", Content: dev})
	}

	if l.skillsMgr != nil {
		for _, m := range skills.ExtractMentions(task) {
			sk, err := skills.Resolve(l.skillsMgr, l.cfg.SkillSpaces, m)
			if err != nil {
				emitter.Emit(engine.EventSkillInjectSkipped, "", "", map[string]any{"mention_text": m.Text, "reason": err.Error()})
				continue
			}
			if len(sk.RequiredEnvVars) > 0 {
				resolved, missing := skills.EnvLookup(sk.RequiredEnvVars, l.envStore)
				for _, r := range resolved {
					emitter.Emit(engine.EventEnvVarSet, "", "", map[string]any{"env_var": r.Var, "source": r.Source})
				}
				if len(missing) > 0 {
					for _, v := range missing {
						emitter.Emit(engine.EventEnvVarRequired, "", "", map[string]any{"env_var": v, "source": "skill_dependency"})
					}
					switch l.cfg.EnvVarMissingPolicy {
					case skills.EnvPolicySkipSkill:
						emitter.Emit(engine.EventSkillInjectSkipped, "", "", map[string]any{
							"mention_text": m.Text, "skill_name": sk.SkillName, "reason": "missing_env_vars",
						})
						continue
					case skills.EnvPolicyAskHuman:
						if l.humanProvider == nil {
							l.failRun(emitter, reasonConfigError, "env_var_missing_policy=ask_human but no human provider configured", walLocator)
							return nil, false
						}
						l.failRun(emitter, reasonConfigError, "ask_human env-var resolution is not wired for skill dependencies", walLocator)
						return nil, false
					default: // fail_fast
						l.failRun(emitter, reasonConfigError, "missing required env vars for skill "+sk.SkillName, walLocator)
						return nil, false
					}
				}
			}
			injected, err := skills.Inject(m, sk, l.cfg.SkillInjectionMaxBytes)
			if err != nil {
				emitter.Emit(engine.EventSkillInjectSkipped, "", "", map[string]any{"mention_text": m.Text, "reason": err.Error()})
				continue
			}
			history = append(history, engine.ChatMessage{Role: "system", Content: injected.Envelope})
			emitter.Emit(engine.EventSkillInjected, "", "", map[string]any{
				"mention_text": injected.MentionText, "skill_name": injected.SkillName,
				"namespace": injected.Namespace, "locator": injected.Locator, "bytes": injected.Bytes,
			})
		}
	}

	history = append(history, engine.ChatMessage{Role: "user", Content: task})
	return history, true
}

func (l *AgentLoop) executeToolsPhase(ctx context.Context, emitter *wal.Emitter, runID, turnID string, controller *loopctl.Controller, resolver workspace.Resolver, calls []engine.ToolCall) ([]*engine.ToolResult, bool) {
	results := make([]*engine.ToolResult, 0, len(calls))
	budgetExceeded := false
	l.denialAbort = false

	for _, call := range calls {
		if budgetExceeded {
			break
		}
		if !controller.TryConsumeToolStep() {
			budgetExceeded = true
			break
		}
		stepID := engine.StepID(controller.StepsConsumed())

		// Unrecognized tools are not short-circuited here: Dispatch
		// synthesizes the not_found result itself, keeping the
		// requested-then-finished event pairing intact.
		ec := registry.ExecutionContext{
			Context:          ctx,
			WorkspaceRoot:    l.cfg.WorkspaceRoot,
			ResolvePath:      resolver.Resolve,
			Env:              l.envStore,
			CancelChecker:    l.cancelChecker,
			DefaultTimeoutMs: l.cfg.DefaultToolTimeoutMs,
			RunID:            runID,
			TurnID:           turnID,
			StepID:           stepID,
			Executor:         l.executor,
			ExecSessions:     l.execSessions,
			Skills:           l.skillsFacade,
			HumanIO:          l.humanIO,
			Agents:           l.agents,
			WebSearcher:      l.webSearcher,
		}

		key := engine.ApprovalKey(call.Name, call.Args)
		res := l.dispatcher.Dispatch(ctx, call, ec, func(typ engine.EventType, payload map[string]any) {
			emitter.Emit(typ, turnID, stepID, payload)
		})

		if res.ErrorKind == engine.ErrorPermission && strings.HasPrefix(res.Message, "approval ") {
			if l.denials.RecordDenial(key) {
				results = append(results, res)
				l.denialAbort = true
				break
			}
		} else if res.OK {
			l.denials.Reset(key)
		}

		results = append(results, res)
	}

	return results, budgetExceeded
}

func (l *AgentLoop) terminateOnBudget(emitter *wal.Emitter, v loopctl.BudgetViolation, walLocator string) {
	switch v {
	case loopctl.ViolationCancelled:
		emitter.Emit(engine.EventRunCancelled, "", "", map[string]any{"message": "cancelled", "wal_locator": walLocator})
	default:
		l.failRun(emitter, reasonBudgetExceeded, string(v), walLocator)
	}
}

func (l *AgentLoop) failRun(emitter *wal.Emitter, kind, message, walLocator string) {
	emitter.Emit(engine.EventRunFailed, "", "", map[string]any{
		"error_kind": kind, "message": message, "retryable": false, "wal_locator": walLocator,
	})
}

func (l *AgentLoop) configDigest() string {
	return fmt.Sprintf("max_steps=%d;model=%s", l.cfg.MaxSteps, l.cfg.Model)
}

// consumeStream drains one ChatBackend turn, forwarding text_delta events
// and buffering tool calls in emission order.
func consumeStream(emitter *wal.Emitter, turnID string, chunks <-chan engine.ChatChunk) (text string, pending []engine.ToolCall, finish engine.FinishReason, err error) {
	var b strings.Builder
	for chunk := range chunks {
		if chunk.Err != nil {
			return b.String(), pending, "", chunk.Err
		}
		if chunk.TextDelta != "" {
			b.WriteString(chunk.TextDelta)
			emitter.Emit(engine.EventTextDelta, turnID, "", map[string]any{"text": chunk.TextDelta})
		}
		if chunk.ToolCall != nil {
			pending = append(pending, *chunk.ToolCall)
		}
		if chunk.Done {
			finish = chunk.FinishReason
		}
	}
	if finish == "" {
		finish = engine.FinishStop
	}
	return b.String(), pending, finish, nil
}

// boundHistory enforces the per-request history ceiling, dropping the
// oldest messages first. The full history array is untouched — only what
// goes over the wire is bounded, so compaction still sees everything.
func boundHistory(history []engine.ChatMessage, maxMessages, maxChars int) []engine.ChatMessage {
	out := history
	if maxMessages > 0 && len(out) > maxMessages {
		out = out[len(out)-maxMessages:]
	}
	if maxChars > 0 {
		total := 0
		for i := len(out) - 1; i >= 0; i-- {
			total += len(out[i].Content)
			if total > maxChars {
				out = out[i+1:]
				break
			}
		}
	}
	return out
}

func toCompactionMessages(history []engine.ChatMessage) []compaction.Message {
	out := make([]compaction.Message, 0, len(history))
	for _, m := range history {
		out = append(out, compaction.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

func fromCompactionMessages(msgs []compaction.Message) []engine.ChatMessage {
	out := make([]engine.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, engine.ChatMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

func stringField(payload map[string]any, key string) string {
	if s, ok := payload[key].(string); ok {
		return s
	}
	return ""
}

func mapField(payload map[string]any, key string) map[string]any {
	if m, ok := payload[key].(map[string]any); ok {
		return m
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// countEvents counts the events already journaled at path, so a resumed
// run's run_started can report how much history precedes it. Counted
// before this run appends anything; a forked prefix of N events reports
// previous_events=N.
func countEvents(path string) int {
	r, err := wal.NewReader(path)
	if err != nil {
		return 0
	}
	defer r.Close()
	events, err := r.ReadAll()
	if err != nil {
		return len(events)
	}
	return len(events)
}
