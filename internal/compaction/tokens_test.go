package compaction

import "testing"

func TestEstimateTokens(t *testing.T) {
	m := Message{Content: "12345678"} // 8 chars / 4 = 2 tokens
	if got := EstimateTokens(m); got != 2 {
		t.Fatalf("EstimateTokens = %d, want 2", got)
	}
}

func TestChunkByMaxTokens_IsolatesOversizedMessage(t *testing.T) {
	msgs := []Message{
		{Content: "ab"},
		{Content: fill(300)},
		{Content: "cd"},
	}
	chunks := ChunkByMaxTokens(msgs, 10)
	if len(chunks) < 2 {
		t.Fatalf("expected the oversized message to split into its own chunk, got %d chunks", len(chunks))
	}
}

func TestPruneKeepingLast(t *testing.T) {
	msgs := []Message{{Content: "a"}, {Content: "b"}, {Content: "c"}}
	res := PruneKeepingLast(msgs, 2)
	if len(res.Kept) != 2 || res.Kept[0].Content != "b" || res.Kept[1].Content != "c" {
		t.Fatalf("unexpected kept messages: %+v", res.Kept)
	}
	if res.DroppedCount != 1 {
		t.Fatalf("expected 1 dropped message, got %d", res.DroppedCount)
	}
}

func TestPruneKeepingLast_KeepMoreThanLen(t *testing.T) {
	msgs := []Message{{Content: "a"}}
	res := PruneKeepingLast(msgs, 5)
	if len(res.Kept) != 1 {
		t.Fatalf("expected all messages kept, got %d", len(res.Kept))
	}
}

func fill(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = 'x'
	}
	return string(b)
}
