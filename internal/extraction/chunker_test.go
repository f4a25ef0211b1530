package extraction

import (
	"strings"
	"testing"

	"github.com/eidolabs/eidolon/internal/entity"
)

func msgOfTokens(id string, tokens int) entity.Message {
	return entity.Message{ID: id, Content: strings.Repeat("x", tokens*charsPerToken)}
}

func TestChunkMessagesSingleBatchWhenFits(t *testing.T) {
	analyze := []entity.Message{msgOfTokens("a", 10), msgOfTokens("b", 10)}
	batches := ChunkMessages(nil, analyze, systemPromptBuffer+1000)
	if len(batches) != 1 {
		t.Fatalf("batches = %d, want 1", len(batches))
	}
	if len(batches[0].Analyze) != 2 {
		t.Errorf("analyze len = %d, want 2", len(batches[0].Analyze))
	}
}

func TestChunkMessagesCoversEveryMessageInOrder(t *testing.T) {
	var analyze []entity.Message
	for i := 0; i < 40; i++ {
		analyze = append(analyze, msgOfTokens(string(rune('a'+i%26))+strings.Repeat("!", i/26+1), 30))
	}
	budget := systemPromptBuffer + 200

	batches := ChunkMessages(nil, analyze, budget)
	if len(batches) < 2 {
		t.Fatalf("expected multiple batches, got %d", len(batches))
	}

	var seen []string
	for _, b := range batches {
		for _, m := range b.Analyze {
			seen = append(seen, m.ID)
		}
	}
	if len(seen) != len(analyze) {
		t.Fatalf("covered %d of %d messages", len(seen), len(analyze))
	}
	for i, m := range analyze {
		if seen[i] != m.ID {
			t.Fatalf("order broken at %d: got %s, want %s", i, seen[i], m.ID)
		}
	}
}

func TestChunkMessagesCarriesSlidingContext(t *testing.T) {
	analyze := []entity.Message{
		msgOfTokens("a", 10), msgOfTokens("b", 10), msgOfTokens("c", 10), msgOfTokens("d", 10),
		msgOfTokens("e", 10), msgOfTokens("f", 10), msgOfTokens("g", 10), msgOfTokens("h", 10),
	}
	budget := systemPromptBuffer + 80

	batches := ChunkMessages(nil, analyze, budget)
	if len(batches) < 2 {
		t.Fatalf("expected multiple batches, got %d", len(batches))
	}
	if len(batches[0].Context) != 0 {
		t.Errorf("first batch context = %d messages, want 0", len(batches[0].Context))
	}
	second := batches[1]
	if len(second.Context) == 0 {
		t.Fatal("second batch has no sliding context")
	}
	// Context must come from the previous batch's tail.
	prev := batches[0].Analyze
	if second.Context[len(second.Context)-1].ID != prev[len(prev)-1].ID {
		t.Error("sliding context is not the previous batch's tail")
	}
}

func TestChunkMessagesOversizedSingleMessage(t *testing.T) {
	analyze := []entity.Message{msgOfTokens("huge", 50_000), msgOfTokens("after", 5)}
	batches := ChunkMessages(nil, analyze, 2000)
	if len(batches) == 0 {
		t.Fatal("oversized message produced no batches")
	}
	if batches[0].Analyze[0].ID != "huge" {
		t.Error("oversized message missing from first batch")
	}
	total := 0
	for _, b := range batches {
		total += len(b.Analyze)
	}
	if total != 2 {
		t.Errorf("covered %d messages, want 2", total)
	}
}

func TestChunkMessagesEmptyAnalyze(t *testing.T) {
	if got := ChunkMessages([]entity.Message{msgOfTokens("ctx", 5)}, nil, 8000); got != nil {
		t.Errorf("batches for empty analyze = %v, want nil", got)
	}
}

func TestTailWithinBudget(t *testing.T) {
	msgs := []entity.Message{msgOfTokens("a", 50), msgOfTokens("b", 50), msgOfTokens("c", 50)}
	tail := tailWithinBudget(msgs, MessageTokens(msgs[2])+MessageTokens(msgs[1]))
	if len(tail) != 2 || tail[0].ID != "b" {
		t.Errorf("tail = %v, want [b c]", tail)
	}
	if got := tailWithinBudget(msgs, 1); len(got) != 0 {
		t.Errorf("tail under tiny budget = %v, want empty", got)
	}
}

func TestEstimateTokensRoundsUp(t *testing.T) {
	if got := EstimateTokens("abcde"); got != 2 {
		t.Errorf("EstimateTokens(5 chars) = %d, want 2", got)
	}
	if got := EstimateTokens(""); got != 0 {
		t.Errorf("EstimateTokens(empty) = %d, want 0", got)
	}
}
