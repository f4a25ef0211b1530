package extraction

import "github.com/eidolabs/eidolon/internal/entity"

// Token estimation only needs to be a safe upper bound for chunking, so a
// cheap character heuristic is enough: roughly 4 characters per token,
// rounded up, plus a small per-message framing overhead.
const (
	charsPerToken    = 4
	perMessageTokens = 8

	// systemPromptBuffer reserves room for the rendered system prompt and
	// instructions on top of the message window.
	systemPromptBuffer = 1000
)

// EstimateTokens approximates the token cost of a text.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + charsPerToken - 1) / charsPerToken
}

// MessageTokens approximates the token cost of one message including
// framing.
func MessageTokens(m entity.Message) int {
	return EstimateTokens(m.Content) + perMessageTokens
}

// WindowTokens sums a message window.
func WindowTokens(msgs []entity.Message) int {
	total := 0
	for _, m := range msgs {
		total += MessageTokens(m)
	}
	return total
}
