package compaction

import (
	"context"
	"fmt"
)

// SummaryConfig parameterizes one summarization pass: the token-budget
// tuning the chunking primitives need, plus an optional previous summary
// and instructions. The compaction_history_max_chars /
// compaction_keep_last_messages knobs are applied before a pass, by
// BoundHistoryChars and PruneKeepingLast.
type SummaryConfig struct {
	ContextWindow       int
	MaxChunkTokens      int
	Parts               int
	MinMessagesForSplit int
	PreviousSummary     string
	Instructions        string
}

func (c SummaryConfig) sanitized() SummaryConfig {
	if c.ContextWindow <= 0 {
		c.ContextWindow = defaultWindow
	}
	if c.Parts <= 0 {
		c.Parts = defaultParts
	}
	if c.MinMessagesForSplit <= 0 {
		c.MinMessagesForSplit = defaultMinSplit
	}
	return c
}

// Summarizer is the one-shot compaction turn's collaborator — in
// production, a fixed-prompt call against the executor model; in tests,
// a deterministic fake.
type Summarizer interface {
	Summarize(ctx context.Context, msgs []Message, cfg SummaryConfig) (string, error)
}

// SummarizerFunc adapts a function to Summarizer.
type SummarizerFunc func(ctx context.Context, msgs []Message, cfg SummaryConfig) (string, error)

func (f SummarizerFunc) Summarize(ctx context.Context, msgs []Message, cfg SummaryConfig) (string, error) {
	return f(ctx, msgs, cfg)
}

// SummarizeWithFallback summarizes msgs, setting aside any individually
// oversized message as a note rather than failing the whole pass.
func SummarizeWithFallback(ctx context.Context, msgs []Message, s Summarizer, cfg SummaryConfig) (string, error) {
	if len(msgs) == 0 {
		return fallbackSummary, nil
	}
	cfg = cfg.sanitized()

	var normal []Message
	var notes []string
	for _, m := range msgs {
		if IsOversized(m, cfg.ContextWindow) {
			notes = append(notes, fmt.Sprintf("[oversized %s message, %d tokens, content omitted]", m.Role, EstimateTokens(m)))
			continue
		}
		normal = append(normal, m)
	}

	summary := fallbackSummary
	if len(normal) > 0 {
		maxChunk := cfg.MaxChunkTokens
		if maxChunk <= 0 {
			maxChunk = int(float64(cfg.ContextWindow) * baseChunkRatio)
		}
		chunks := ChunkByMaxTokens(normal, maxChunk)
		var err error
		summary, err = summarizeChunks(ctx, chunks, s, cfg)
		if err != nil {
			return "", err
		}
	}
	for _, n := range notes {
		summary += "\n\n" + n
	}
	return summary, nil
}

func summarizeChunks(ctx context.Context, chunks [][]Message, s Summarizer, cfg SummaryConfig) (string, error) {
	if len(chunks) == 0 {
		return fallbackSummary, nil
	}
	if len(chunks) == 1 {
		return s.Summarize(ctx, chunks[0], cfg)
	}
	parts := make([]string, 0, len(chunks))
	for i, c := range chunks {
		summary, err := s.Summarize(ctx, c, cfg)
		if err != nil {
			return "", fmt.Errorf("compaction: summarize chunk %d: %w", i, err)
		}
		parts = append(parts, summary)
	}
	return mergeSummaries(ctx, parts, s, cfg)
}

func mergeSummaries(ctx context.Context, parts []string, s Summarizer, cfg SummaryConfig) (string, error) {
	if len(parts) == 0 {
		return fallbackSummary, nil
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	merged := make([]Message, len(parts))
	for i, p := range parts {
		merged[i] = Message{Role: "system", Content: fmt.Sprintf("chunk %d summary:\n%s", i+1, p)}
	}
	mergeCfg := cfg
	mergeCfg.Instructions = "Merge these chunk summaries into one coherent summary, preserving chronological order and key details."
	return s.Summarize(ctx, merged, mergeCfg)
}

// SummarizeInStages splits history into Parts shares, summarizes each
// independently, then merges — the path the compact_first strategy uses
// for large histories. Short histories fall straight through to
// SummarizeWithFallback.
func SummarizeInStages(ctx context.Context, msgs []Message, s Summarizer, cfg SummaryConfig) (string, error) {
	if len(msgs) == 0 {
		return fallbackSummary, nil
	}
	cfg = cfg.sanitized()
	if len(msgs) < cfg.MinMessagesForSplit {
		return SummarizeWithFallback(ctx, msgs, s, cfg)
	}
	partitions := SplitByShare(msgs, cfg.Parts)
	if len(partitions) <= 1 {
		return SummarizeWithFallback(ctx, msgs, s, cfg)
	}
	partSummaries := make([]string, 0, len(partitions))
	for i, p := range partitions {
		summary, err := SummarizeWithFallback(ctx, p, s, cfg)
		if err != nil {
			return "", fmt.Errorf("compaction: summarize part %d: %w", i, err)
		}
		partSummaries = append(partSummaries, summary)
	}
	if cfg.PreviousSummary != "" && cfg.PreviousSummary != fallbackSummary {
		partSummaries = append([]string{cfg.PreviousSummary}, partSummaries...)
	}
	return mergeSummaries(ctx, partSummaries, s, cfg)
}

// PruneResult reports what PruneKeepingLast dropped.
type PruneResult struct {
	Kept          []Message
	DroppedCount  int
	DroppedTokens int
	KeptTokens    int
}

// PruneKeepingLast keeps the last keepLast messages (the
// compaction_keep_last_messages knob), reporting what was dropped so the
// caller can fold it into the summary pass.
func PruneKeepingLast(msgs []Message, keepLast int) PruneResult {
	if keepLast < 0 {
		keepLast = 0
	}
	if keepLast >= len(msgs) {
		return PruneResult{Kept: msgs, KeptTokens: EstimateTotal(msgs)}
	}
	dropped := msgs[:len(msgs)-keepLast]
	kept := msgs[len(msgs)-keepLast:]
	return PruneResult{
		Kept:          kept,
		DroppedCount:  len(dropped),
		DroppedTokens: EstimateTotal(dropped),
		KeptTokens:    EstimateTotal(kept),
	}
}

// BoundHistoryChars truncates a formatted transcript to its last maxChars
// characters (the most recent content), per compaction_history_max_chars,
// and prefixes a "...[truncated]..." marker line, so a truncated result
// is longer than maxChars by the marker's length.
func BoundHistoryChars(transcript string, maxChars int) string {
	if maxChars <= 0 || len(transcript) <= maxChars {
		return transcript
	}
	return "...[truncated]...\n" + transcript[len(transcript)-maxChars:]
}
