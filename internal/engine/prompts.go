package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/eidolabs/eidolon/internal/entity"
	"github.com/eidolabs/eidolon/internal/extraction"
)

const replySystemPrompt = `You are %s. %s

You are talking with %s. What you know about them:
%s

Stay in character. Answer the conversation below with your next message only.
If you genuinely have nothing to add, answer exactly %s.`

const heartbeatSystemPrompt = `You are %s. %s

It has been quiet for a while. Decide whether to proactively message %s:
something you have been meaning to bring up, a topic you care about, or a
follow-up on earlier conversation. Topics you keep in mind:
%s

If now is not the moment, answer exactly %s. Otherwise answer with the
message itself, nothing else.`

// buildReplyRequest renders a high-priority conversational reply job for a
// persona, from its context window and its visible slice of human data.
func (e *Engine) buildReplyRequest(p *entity.Persona, now time.Time) *entity.LLMRequest {
	return &entity.LLMRequest{
		Type:     entity.RequestResponse,
		Priority: entity.PriorityHigh,
		Step:     entity.StepPersonaReply,
		System: fmt.Sprintf(replySystemPrompt, p.Name, p.Description,
			humanName(e.store), e.humanSummary(p), noMessageMarker),
		Prompt:    extraction.FormatWindow(p.ContextMessages(now)),
		Model:     p.Model,
		PersonaID: p.ID,
	}
}

// buildHeartbeatRequest renders a normal-priority "should I speak up"
// check for a persona whose heartbeat timer elapsed.
func (e *Engine) buildHeartbeatRequest(p *entity.Persona, now time.Time) *entity.LLMRequest {
	return &entity.LLMRequest{
		Type:     entity.RequestResponse,
		Priority: entity.PriorityNormal,
		Step:     entity.StepHeartbeat,
		System: fmt.Sprintf(heartbeatSystemPrompt, p.Name, p.Description,
			humanName(e.store), formatTopics(p.Topics), noMessageMarker),
		Prompt:    extraction.FormatWindow(p.ContextMessages(now)),
		Model:     p.Model,
		PersonaID: p.ID,
	}
}

// humanSummary renders the persona-visible slice of human data for a
// system prompt.
func (e *Engine) humanSummary(p *entity.Persona) string {
	var sb strings.Builder
	if facts := e.store.VisibleFacts(p); len(facts) > 0 {
		sb.WriteString("Facts:\n")
		for _, f := range facts {
			sb.WriteString(fmt.Sprintf("- %s: %s\n", f.Name, f.Description))
		}
	}
	if traits := e.store.VisibleTraits(p); len(traits) > 0 {
		sb.WriteString("Traits:\n")
		for _, t := range traits {
			sb.WriteString(fmt.Sprintf("- %s: %s\n", t.Name, t.Description))
		}
	}
	if topics := e.store.VisibleTopics(p); len(topics) > 0 {
		sb.WriteString("Topics they care about:\n")
		for _, t := range topics {
			sb.WriteString(fmt.Sprintf("- %s: %s\n", t.Name, t.Description))
		}
	}
	if people := e.store.VisiblePeople(p); len(people) > 0 {
		sb.WriteString("People in their life:\n")
		for _, per := range people {
			sb.WriteString(fmt.Sprintf("- %s: %s\n", per.Name, per.Description))
		}
	}
	if sb.Len() == 0 {
		return "(nothing yet)"
	}
	return strings.TrimSpace(sb.String())
}

func formatTopics(topics []entity.PersonaTopic) string {
	if len(topics) == 0 {
		return "(none)"
	}
	var sb strings.Builder
	for _, t := range topics {
		sb.WriteString(fmt.Sprintf("- %s: %s\n", t.Name, t.Description))
	}
	return strings.TrimSpace(sb.String())
}

func humanName(s *entity.Store) string {
	if s.Human.Name != "" {
		return s.Human.Name
	}
	return "your human"
}
