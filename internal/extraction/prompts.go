package extraction

import (
	"fmt"
	"strings"

	"github.com/eidolabs/eidolon/internal/entity"
)

const scanPrompt = `You are a careful archivist of everything a companion learns about its human.
Read the conversation below and propose zero or more candidate %ss about the human.
Use the context section only for disambiguation; extract only from the analyze section.

Return strict JSON: {"candidates":[{"name":"...","description":"...","sentiment":0.0}]}
sentiment is in [-1.0, 1.0]. Return {"candidates":[]} when nothing qualifies.

Context:
%s

Analyze:
%s`

const matchPrompt = `A new candidate %s was extracted from conversation. Decide whether it is the
same as one already known, or genuinely new.

Candidate:
name: %s
description: %s

Known items:
%s

Return strict JSON: {"id":"<existing id>"} for a match, or {"id":"new"} otherwise.`

const updatePrompt = `Produce the final stored form of this %s about the human, merging the candidate
with the existing item when one is given. Descriptions should be a concise third-person
sentence or two.

Candidate:
name: %s
description: %s

Existing item (may be empty):
%s

Conversation window:
%s

Return strict JSON: {"name":"...","description":"...","sentiment":0.0,"exposureDesired":0.5}
exposureDesired applies only to topics and people and is in [0.0, 1.0].`

// FormatWindow renders a message window the way prompts expect it.
func FormatWindow(msgs []entity.Message) string {
	if len(msgs) == 0 {
		return "(none)"
	}
	var sb strings.Builder
	for _, m := range msgs {
		sb.WriteString(fmt.Sprintf("[%s][%s]: %s\n", m.Timestamp.Format("2006-01-02 15:04"), m.Role, m.Content))
	}
	return strings.TrimSpace(sb.String())
}

// FormatItemRefs renders the stripped (id, name, description) list shown to
// the match step. Everything else is withheld to keep the prompt small.
func FormatItemRefs(items []ItemRef) string {
	if len(items) == 0 {
		return "(none)"
	}
	var sb strings.Builder
	for _, it := range items {
		sb.WriteString(fmt.Sprintf("- id: %s | name: %s | %s\n", it.ID, it.Name, it.Description))
	}
	return strings.TrimSpace(sb.String())
}
