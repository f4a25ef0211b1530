package extraction

import "github.com/eidolabs/eidolon/internal/entity"

// Batch is one prompt-sized slice of a message window: context messages
// for disambiguation only, analyze messages to extract from.
type Batch struct {
	Context []entity.Message
	Analyze []entity.Message
}

// contextShare is the fraction of the usable budget a sliding context tail
// may occupy in batches after the first.
const contextShare = 4 // 1/4

// ChunkMessages splits an oversized (context, analyze) window into
// sequential batches that each fit the token budget. Every analyze message
// lands in exactly one batch, in order; each batch after the first carries
// the previous batch's tail as its context window. A single message larger
// than the budget still gets its own batch; precision is not the goal,
// coverage is.
func ChunkMessages(ctxMsgs, analyze []entity.Message, budget int) []Batch {
	if len(analyze) == 0 {
		return nil
	}
	usable := budget - systemPromptBuffer
	if usable < 1 {
		usable = 1
	}

	if WindowTokens(ctxMsgs)+WindowTokens(analyze) <= usable {
		return []Batch{{Context: ctxMsgs, Analyze: analyze}}
	}

	var batches []Batch
	context := tailWithinBudget(ctxMsgs, usable/contextShare)
	remaining := analyze

	for len(remaining) > 0 {
		room := usable - WindowTokens(context)
		if room < 1 {
			room = 1
		}

		count := 0
		used := 0
		for _, m := range remaining {
			cost := MessageTokens(m)
			if count > 0 && used+cost > room {
				break
			}
			used += cost
			count++
		}

		batch := Batch{Context: context, Analyze: remaining[:count]}
		batches = append(batches, batch)
		remaining = remaining[count:]
		context = tailWithinBudget(batch.Analyze, usable/contextShare)
	}
	return batches
}

// tailWithinBudget returns the longest suffix of msgs fitting the budget.
func tailWithinBudget(msgs []entity.Message, budget int) []entity.Message {
	used := 0
	start := len(msgs)
	for i := len(msgs) - 1; i >= 0; i-- {
		cost := MessageTokens(msgs[i])
		if used+cost > budget {
			break
		}
		used += cost
		start = i
	}
	return msgs[start:]
}
