package compaction

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/skillrun/agentcore/internal/engine"
)

// Mode selects the top-level strategy Context Recovery applies on a
// context_length_exceeded condition (run.context_recovery.mode).
type Mode string

const (
	ModeFailFast     Mode = "fail_fast"
	ModeCompactFirst Mode = "compact_first"
	ModeAskFirst     Mode = "ask_first"
)

// HumanChoice is what a human picks when asked how to handle an overflow
// under the ask_first strategy.
type HumanChoice string

const (
	ChoiceCompactContinue        HumanChoice = "compact_continue"
	ChoiceHandoffNewRun          HumanChoice = "handoff_new_run"
	ChoiceIncreaseBudgetContinue HumanChoice = "increase_budget_continue"
	ChoiceTerminate              HumanChoice = "terminate"
)

// OverflowRequest is what the human provider is asked to decide on.
type OverflowRequest struct {
	RunID          string
	HistoryTokens  int
	ContextWindow  int
	CompactionsSoFar int
}

// HumanProvider is the ask_first strategy's external decider. Timeout
// falls back to Config.AskFirstFallbackMode.
type HumanProvider interface {
	AskOverflow(ctx context.Context, req OverflowRequest) (HumanChoice, error)
}

// Config mirrors the run.context_recovery configuration surface.
type Config struct {
	Mode                           Mode
	MaxCompactionsPerRun           int
	AskFirstFallbackMode           Mode
	CompactionHistoryMaxChars      int
	CompactionKeepLastMessages     int
	IncreaseBudgetExtraSteps       int
	IncreaseBudgetExtraWallTimeSec int
	HumanTimeoutMs                 int
	ContextWindow                  int
}

func (c Config) sanitized() Config {
	if c.MaxCompactionsPerRun <= 0 {
		c.MaxCompactionsPerRun = 3
	}
	if c.AskFirstFallbackMode == "" {
		c.AskFirstFallbackMode = ModeCompactFirst
	}
	if c.CompactionKeepLastMessages <= 0 {
		c.CompactionKeepLastMessages = 6
	}
	if c.HumanTimeoutMs <= 0 {
		c.HumanTimeoutMs = 60_000
	}
	if c.ContextWindow <= 0 {
		c.ContextWindow = defaultWindow
	}
	return c
}

// Action is what the Agent Loop should do after Recover returns.
type Action string

const (
	ActionContinue Action = "continue" // rebuilt history; resume the loop
	ActionHandoff  Action = "handoff"  // terminate this run with a handoff artifact
	ActionTerminate Action = "terminate"
	ActionFail     Action = "fail" // fail_fast, or budget/compaction limit exhausted
)

// Outcome is Recover's result.
type Outcome struct {
	Action              Action
	NewHistory          []Message
	ArtifactPath        string
	SummaryLen          int
	SummarySHA256       string
	Reason              string
	BudgetStepsAdded    int
	BudgetWallTimeAdded int
}

// Emit journals one named event; the Agent Loop wires this to its WAL
// emitter with the run's turn/step IDs. Recovery never touches the WAL
// directly so it stays unit-testable without a filesystem.
type Emit func(typ engine.EventType, payload map[string]any)

// Recovery implements the Context Recovery state machine.
type Recovery struct {
	cfg         Config
	summarizer  Summarizer
	artifactDir string
	human       HumanProvider
	performed   int
}

// NewRecovery builds a Recovery bound to one run's artifact directory
// (<workspace>/<runtime_dir>/runs/<run_id>/artifacts).
func NewRecovery(cfg Config, summarizer Summarizer, artifactDir string, human HumanProvider) *Recovery {
	return &Recovery{cfg: cfg.sanitized(), summarizer: summarizer, artifactDir: artifactDir, human: human}
}

// CompactionsPerformed reports how many compactions this run has run.
func (r *Recovery) CompactionsPerformed() int { return r.performed }

// Recover handles one context_length_exceeded condition against the
// current history, per the configured mode.
func (r *Recovery) Recover(ctx context.Context, runID string, history []Message, emit Emit) (Outcome, error) {
	emit(engine.EventContextLenExceeded, map[string]any{"reason": "context_length_exceeded"})

	switch r.cfg.Mode {
	case ModeFailFast:
		return Outcome{Action: ActionFail, Reason: "fail_fast"}, nil
	case ModeCompactFirst:
		return r.compact(ctx, runID, history, emit, "compact_first")
	case ModeAskFirst:
		return r.askFirst(ctx, runID, history, emit)
	default:
		return Outcome{Action: ActionFail, Reason: "unknown mode " + string(r.cfg.Mode)}, nil
	}
}

func (r *Recovery) askFirst(ctx context.Context, runID string, history []Message, emit Emit) (Outcome, error) {
	if r.human == nil {
		return r.applyFallback(ctx, runID, history, emit, "no_provider")
	}

	tctx, cancel := context.WithTimeout(ctx, time.Duration(r.cfg.HumanTimeoutMs)*time.Millisecond)
	defer cancel()

	choiceCh := make(chan HumanChoice, 1)
	errCh := make(chan error, 1)
	go func() {
		c, err := r.human.AskOverflow(tctx, OverflowRequest{
			RunID: runID, HistoryTokens: EstimateTotal(history),
			ContextWindow: r.cfg.ContextWindow, CompactionsSoFar: r.performed,
		})
		if err != nil {
			errCh <- err
			return
		}
		choiceCh <- c
	}()

	select {
	case choice := <-choiceCh:
		return r.applyChoice(ctx, runID, history, emit, choice)
	case <-errCh:
		return r.applyFallback(ctx, runID, history, emit, "provider_error")
	case <-tctx.Done():
		return r.applyFallback(ctx, runID, history, emit, "human_timeout")
	}
}

func (r *Recovery) applyFallback(ctx context.Context, runID string, history []Message, emit Emit, reason string) (Outcome, error) {
	switch r.cfg.AskFirstFallbackMode {
	case ModeFailFast:
		return Outcome{Action: ActionFail, Reason: reason}, nil
	default:
		return r.compact(ctx, runID, history, emit, reason)
	}
}

func (r *Recovery) applyChoice(ctx context.Context, runID string, history []Message, emit Emit, choice HumanChoice) (Outcome, error) {
	switch choice {
	case ChoiceCompactContinue:
		return r.compact(ctx, runID, history, emit, "ask_first:compact_continue")
	case ChoiceHandoffNewRun:
		return r.handoff(ctx, runID, history, emit)
	case ChoiceIncreaseBudgetContinue:
		return r.increaseBudget(ctx, runID, history, emit)
	case ChoiceTerminate:
		return Outcome{Action: ActionTerminate, Reason: "ask_first:terminate"}, nil
	default:
		return Outcome{Action: ActionFail, Reason: "ask_first:invalid_choice"}, nil
	}
}

func (r *Recovery) increaseBudget(ctx context.Context, runID string, history []Message, emit Emit) (Outcome, error) {
	out, err := r.compact(ctx, runID, history, emit, "increase_budget_continue")
	if err != nil {
		return out, err
	}
	if out.Action != ActionContinue {
		return out, nil
	}
	out.BudgetStepsAdded = r.cfg.IncreaseBudgetExtraSteps
	out.BudgetWallTimeAdded = r.cfg.IncreaseBudgetExtraWallTimeSec
	emit(engine.EventBudgetIncreased, map[string]any{
		"extra_steps": r.cfg.IncreaseBudgetExtraSteps, "extra_wall_time_sec": r.cfg.IncreaseBudgetExtraWallTimeSec,
	})
	return out, nil
}

func (r *Recovery) handoff(ctx context.Context, runID string, history []Message, emit Emit) (Outcome, error) {
	out, err := r.compact(ctx, runID, history, emit, "handoff_new_run")
	if err != nil {
		return out, err
	}
	if out.Action != ActionContinue {
		return out, nil
	}
	out.Action = ActionHandoff
	return out, nil
}

// compact runs one compaction pass: bound the transcript, run a one-shot
// summarization turn, persist the artifact, and rebuild history as
// [{summary}, ...last K messages...].
func (r *Recovery) compact(ctx context.Context, runID string, history []Message, emit Emit, reason string) (Outcome, error) {
	if r.performed >= r.cfg.MaxCompactionsPerRun {
		return Outcome{Action: ActionFail, Reason: "max_compactions_per_run exceeded"}, nil
	}

	emit(engine.EventCompactionStarted, map[string]any{"reason": reason, "messages": len(history)})

	pruned := PruneKeepingLast(history, r.cfg.CompactionKeepLastMessages)
	toSummarize := history[:len(history)-len(pruned.Kept)]

	transcript := BoundHistoryChars(FormatForSummary(toSummarize), r.cfg.CompactionHistoryMaxChars)
	summaryInput := []Message{{Role: "system", Content: transcript}}

	summary, err := SummarizeInStages(ctx, summaryInput, r.summarizer, SummaryConfig{ContextWindow: r.cfg.ContextWindow})
	if err != nil {
		return Outcome{}, fmt.Errorf("compaction: summarize: %w", err)
	}

	artifactPath, err := r.writeArtifact(runID, summary)
	if err != nil {
		return Outcome{}, err
	}
	sum := sha256.Sum256([]byte(summary))
	sha := hex.EncodeToString(sum[:])

	r.performed++

	newHistory := append([]Message{{Role: "system", Content: summary}}, pruned.Kept...)

	emit(engine.EventContextCompacted, map[string]any{
		"reason": reason, "count": r.performed, "artifact_path": artifactPath,
		"summary_len": len(summary), "summary_sha256": sha,
	})
	emit(engine.EventCompactionFinished, map[string]any{"reason": reason, "count": r.performed})

	return Outcome{
		Action: ActionContinue, NewHistory: newHistory, ArtifactPath: artifactPath,
		SummaryLen: len(summary), SummarySHA256: sha, Reason: reason,
	}, nil
}

func (r *Recovery) writeArtifact(runID, summary string) (string, error) {
	if r.artifactDir == "" {
		return "", nil
	}
	if err := os.MkdirAll(r.artifactDir, 0o755); err != nil {
		return "", fmt.Errorf("compaction: create artifact dir: %w", err)
	}
	name := fmt.Sprintf("compaction-%d.txt", time.Now().UnixNano())
	path := filepath.Join(r.artifactDir, name)
	if err := os.WriteFile(path, []byte(summary), 0o644); err != nil {
		return "", fmt.Errorf("compaction: write artifact: %w", err)
	}
	return path, nil
}
