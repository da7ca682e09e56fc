package compaction

import (
	"context"
	"strings"
	"testing"

	"github.com/skillrun/agentcore/internal/engine"
)

type fakeSummarizer struct{}

func (fakeSummarizer) Summarize(ctx context.Context, msgs []Message, cfg SummaryConfig) (string, error) {
	var sb strings.Builder
	sb.WriteString("summary of ")
	for _, m := range msgs {
		sb.WriteString(m.Content)
	}
	return sb.String(), nil
}

func collectEvents() (Emit, *[]engine.EventType) {
	var types []engine.EventType
	return func(typ engine.EventType, _ map[string]any) { types = append(types, typ) }, &types
}

func TestRecovery_FailFast(t *testing.T) {
	r := NewRecovery(Config{Mode: ModeFailFast}, fakeSummarizer{}, "", nil)
	emit, events := collectEvents()
	out, err := r.Recover(context.Background(), "run1", []Message{{Role: "user", Content: "hi"}}, emit)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if out.Action != ActionFail {
		t.Fatalf("expected ActionFail, got %v", out.Action)
	}
	if len(*events) != 1 || (*events)[0] != engine.EventContextLenExceeded {
		t.Fatalf("expected only context_length_exceeded emitted, got %v", *events)
	}
}

func TestRecovery_CompactFirst(t *testing.T) {
	dir := t.TempDir()
	r := NewRecovery(Config{Mode: ModeCompactFirst, CompactionKeepLastMessages: 1}, fakeSummarizer{}, dir, nil)
	emit, events := collectEvents()

	history := []Message{
		{Role: "user", Content: "one"},
		{Role: "assistant", Content: "two"},
		{Role: "user", Content: "three"},
	}
	out, err := r.Recover(context.Background(), "run1", history, emit)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if out.Action != ActionContinue {
		t.Fatalf("expected ActionContinue, got %v", out.Action)
	}
	if len(out.NewHistory) != 2 { // summary + last 1 kept message
		t.Fatalf("expected rebuilt history of len 2, got %d", len(out.NewHistory))
	}
	if out.NewHistory[len(out.NewHistory)-1].Content != "three" {
		t.Fatalf("expected last kept message preserved, got %+v", out.NewHistory)
	}
	if out.ArtifactPath == "" {
		t.Fatalf("expected an artifact path to be recorded")
	}

	wantSeq := []engine.EventType{
		engine.EventContextLenExceeded, engine.EventCompactionStarted,
		engine.EventContextCompacted, engine.EventCompactionFinished,
	}
	if len(*events) != len(wantSeq) {
		t.Fatalf("events = %v, want %v", *events, wantSeq)
	}
	for i, want := range wantSeq {
		if (*events)[i] != want {
			t.Fatalf("event[%d] = %s, want %s", i, (*events)[i], want)
		}
	}
}

func TestRecovery_MaxCompactionsExceeded(t *testing.T) {
	r := NewRecovery(Config{Mode: ModeCompactFirst, MaxCompactionsPerRun: 1}, fakeSummarizer{}, t.TempDir(), nil)
	history := []Message{{Role: "user", Content: "a"}, {Role: "user", Content: "b"}}
	emit, _ := collectEvents()

	if _, err := r.Recover(context.Background(), "run1", history, emit); err != nil {
		t.Fatalf("first recover: %v", err)
	}
	out, err := r.Recover(context.Background(), "run1", history, emit)
	if err != nil {
		t.Fatalf("second recover: %v", err)
	}
	if out.Action != ActionFail {
		t.Fatalf("expected ActionFail once max_compactions_per_run is hit, got %v", out.Action)
	}
}

type fixedHuman struct{ choice HumanChoice }

func (f fixedHuman) AskOverflow(ctx context.Context, req OverflowRequest) (HumanChoice, error) {
	return f.choice, nil
}

func TestRecovery_AskFirstTerminate(t *testing.T) {
	r := NewRecovery(Config{Mode: ModeAskFirst}, fakeSummarizer{}, "", fixedHuman{choice: ChoiceTerminate})
	emit, _ := collectEvents()
	out, err := r.Recover(context.Background(), "run1", []Message{{Role: "user", Content: "x"}}, emit)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if out.Action != ActionTerminate {
		t.Fatalf("expected ActionTerminate, got %v", out.Action)
	}
}

func TestRecovery_AskFirstNoProviderFallsBack(t *testing.T) {
	r := NewRecovery(Config{Mode: ModeAskFirst, AskFirstFallbackMode: ModeCompactFirst}, fakeSummarizer{}, t.TempDir(), nil)
	emit, _ := collectEvents()
	out, err := r.Recover(context.Background(), "run1", []Message{{Role: "user", Content: "x"}}, emit)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if out.Action != ActionContinue {
		t.Fatalf("expected fallback to compact_first (ActionContinue), got %v", out.Action)
	}
}

func TestRecovery_IncreaseBudgetContinue(t *testing.T) {
	r := NewRecovery(Config{Mode: ModeAskFirst, IncreaseBudgetExtraSteps: 5, IncreaseBudgetExtraWallTimeSec: 30},
		fakeSummarizer{}, t.TempDir(), fixedHuman{choice: ChoiceIncreaseBudgetContinue})
	emit, events := collectEvents()
	out, err := r.Recover(context.Background(), "run1", []Message{{Role: "user", Content: "x"}}, emit)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if out.Action != ActionContinue || out.BudgetStepsAdded != 5 || out.BudgetWallTimeAdded != 30 {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	found := false
	for _, e := range *events {
		if e == engine.EventBudgetIncreased {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected budget_increased event, got %v", *events)
	}
}
