// Package ceremony drives the nightly four-phase batch (Exposure, Decay,
// Expire, Explore) that refreshes persona topics and exposure metrics.
package ceremony

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/eidolabs/eidolon/internal/entity"
	"github.com/eidolabs/eidolon/internal/extraction"
)

// Phase of the ceremony state machine.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseExposure
	PhaseDecay
	PhaseExpire
	PhaseExplore
)

func (p Phase) String() string {
	switch p {
	case PhaseExposure:
		return "exposure"
	case PhaseDecay:
		return "decay"
	case PhaseExpire:
		return "expire"
	case PhaseExplore:
		return "explore"
	default:
		return "idle"
	}
}

// ExposureBump is added to a persona topic's current exposure for each day
// the persona actually talked.
const ExposureBump = 0.1

// Orchestrator runs the phase machine. It never talks to the executor
// directly: it enqueues ceremony-tagged requests and is told when each one
// finishes. A failed phase job is skipped, never allowed to wedge the
// machine.
type Orchestrator struct {
	TopicCapacity int
	DecayRate     float64
	TimeOfDay     string // HH:MM

	phase   Phase
	pending int
	armed   bool
}

// New builds an orchestrator with the given tunables.
func New(topicCapacity int, decayRate float64, timeOfDay string) *Orchestrator {
	if topicCapacity <= 0 {
		topicCapacity = 7
	}
	if decayRate <= 0 {
		decayRate = DefaultDecayRate
	}
	if timeOfDay == "" {
		timeOfDay = "03:00"
	}
	return &Orchestrator{TopicCapacity: topicCapacity, DecayRate: decayRate, TimeOfDay: timeOfDay}
}

// Phase reports the current state.
func (o *Orchestrator) Phase() Phase { return o.phase }

// Running reports whether a ceremony is in progress.
func (o *Orchestrator) Running() bool { return o.phase != PhaseIdle }

// Arm marks the ceremony due. Called by the scheduler at the configured
// time of day; the run loop still gates the actual start on an empty
// queue.
func (o *Orchestrator) Arm() { o.armed = true }

// DueByClock is the trigger condition independent of the cron arm: a new
// calendar day has begun since the last ceremony and the time of day is
// past the configured mark.
func DueByClock(now, lastCeremony time.Time, timeOfDay string) bool {
	if sameDay(now, lastCeremony) {
		return false
	}
	hour, minute, ok := parseHHMM(timeOfDay)
	if !ok {
		return false
	}
	mark := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	return !now.Before(mark)
}

// ShouldStart decides whether to begin: due (armed or by clock), idle, and
// the queue empty; the ceremony never interleaves with live work.
func (o *Orchestrator) ShouldStart(now, lastCeremony time.Time, queueEmpty bool) bool {
	if o.phase != PhaseIdle || !queueEmpty {
		return false
	}
	if o.armed {
		return true
	}
	return DueByClock(now, lastCeremony, o.TimeOfDay)
}

// Begin starts the Exposure phase: for every persona that exchanged
// messages since the last ceremony, enqueue the detail-extraction chain
// (including traits and quotes) and bump its topic exposures. Phases with
// no outstanding jobs fall straight through.
func (o *Orchestrator) Begin(s *entity.Store, enqueue func(*entity.LLMRequest), budget int, now time.Time) {
	o.phase = PhaseExposure
	o.pending = 0
	log.Printf("[ceremony] starting: phase=%s", o.phase)

	since := s.LastCeremony
	for _, p := range s.Personas {
		if p.IsArchived {
			continue
		}
		analyze := messagesSince(p, since)
		if len(analyze) == 0 {
			continue
		}

		for i := range p.Topics {
			p.Topics[i].ExposureCurrent = entity.Clamp01(p.Topics[i].ExposureCurrent + ExposureBump)
			p.Topics[i].LastUpdated = now
		}

		context := p.ContextMessages(now)
		for _, batch := range extraction.ChunkMessages(context, analyze, budget) {
			for _, req := range extraction.ScanRequests(p, batch, extraction.CeremonyTypes, true) {
				enqueue(req)
				o.pending++
			}
		}
	}

	if o.pending == 0 {
		o.advance(s, enqueue, now)
	}
}

// AddPending registers ceremony-tagged follow-up jobs (match/update steps
// spawned by a ceremony scan).
func (o *Orchestrator) AddPending(n int) {
	if o.phase != PhaseIdle {
		o.pending += n
	}
}

// JobFinished is called for every completed or dead-lettered
// ceremony-tagged job. When the current phase's jobs are all accounted
// for, the machine advances.
func (o *Orchestrator) JobFinished(s *entity.Store, enqueue func(*entity.LLMRequest), now time.Time) {
	if o.phase == PhaseIdle {
		return
	}
	if o.pending > 0 {
		o.pending--
	}
	if o.pending == 0 {
		o.advance(s, enqueue, now)
	}
}

func (o *Orchestrator) advance(s *entity.Store, enqueue func(*entity.LLMRequest), now time.Time) {
	for {
		switch o.phase {
		case PhaseExposure:
			o.phase = PhaseDecay
			o.runDecay(s, now)
			continue

		case PhaseDecay:
			o.phase = PhaseExpire
			o.pending = o.enqueueExpire(s, enqueue)
			log.Printf("[ceremony] phase=%s jobs=%d", o.phase, o.pending)
			if o.pending == 0 {
				continue
			}
			return

		case PhaseExpire:
			o.phase = PhaseExplore
			o.pending = o.enqueueExplore(s, enqueue)
			log.Printf("[ceremony] phase=%s jobs=%d", o.phase, o.pending)
			if o.pending == 0 {
				continue
			}
			return

		case PhaseExplore:
			o.phase = PhaseIdle
			o.armed = false
			s.LastCeremony = now
			log.Printf("[ceremony] complete")
			return

		default:
			return
		}
	}
}

// runDecay applies exposure decay to every exposure value in the system:
// human topics and people, and every persona's topics.
func (o *Orchestrator) runDecay(s *entity.Store, now time.Time) {
	log.Printf("[ceremony] phase=decay")
	for i := range s.Human.Topics {
		t := &s.Human.Topics[i]
		h := hoursSince(t.LastUpdated, now)
		t.ExposureCurrent = Decay(t.ExposureCurrent, h, o.DecayRate)
		t.ExposureDesired = Decay(t.ExposureDesired, h, o.DecayRate)
	}
	for i := range s.Human.People {
		per := &s.Human.People[i]
		h := hoursSince(per.LastUpdated, now)
		per.ExposureCurrent = Decay(per.ExposureCurrent, h, o.DecayRate)
		per.ExposureDesired = Decay(per.ExposureDesired, h, o.DecayRate)
	}
	for _, p := range s.Personas {
		for i := range p.Topics {
			t := &p.Topics[i]
			h := hoursSince(t.LastUpdated, now)
			t.ExposureCurrent = Decay(t.ExposureCurrent, h, o.DecayRate)
		}
	}
}

func (o *Orchestrator) enqueueExpire(s *entity.Store, enqueue func(*entity.LLMRequest)) int {
	count := 0
	for _, p := range s.Personas {
		if p.IsArchived || len(p.Topics) == 0 {
			continue
		}
		enqueue(&entity.LLMRequest{
			Type:      entity.RequestJSON,
			Priority:  entity.PriorityLow,
			Step:      entity.StepCeremonyExpire,
			Prompt:    fmt.Sprintf(expirePrompt, p.Name, formatPersonaTopics(p.Topics)),
			PersonaID: p.ID,
			Ceremony:  true,
		})
		count++
	}
	return count
}

func (o *Orchestrator) enqueueExplore(s *entity.Store, enqueue func(*entity.LLMRequest)) int {
	count := 0
	for _, p := range s.Personas {
		if p.IsArchived || len(p.Topics) >= o.TopicCapacity {
			continue
		}
		room := o.TopicCapacity - len(p.Topics)
		enqueue(&entity.LLMRequest{
			Type:      entity.RequestJSON,
			Priority:  entity.PriorityLow,
			Step:      entity.StepCeremonyExplore,
			Prompt: fmt.Sprintf(explorePrompt, p.Name, o.TopicCapacity,
				formatPersonaTopics(p.Topics), formatHumanInterests(s, p), room),
			PersonaID: p.ID,
			Ceremony:  true,
		})
		count++
	}
	return count
}

// ApplyExpire removes the persona topics the model judged stale.
func ApplyExpire(p *entity.Persona, v any) int {
	obj, ok := v.(map[string]any)
	if !ok {
		return 0
	}
	raw, ok := obj["expired"].([]any)
	if !ok {
		return 0
	}
	removed := 0
	for _, idv := range raw {
		id, ok := idv.(string)
		if !ok {
			continue
		}
		for i := range p.Topics {
			if p.Topics[i].ID == id {
				p.Topics = append(p.Topics[:i], p.Topics[i+1:]...)
				removed++
				break
			}
		}
	}
	return removed
}

// ApplyExplore adds proposed persona topics up to capacity.
func ApplyExplore(p *entity.Persona, v any, capacity int, now time.Time) int {
	obj, ok := v.(map[string]any)
	if !ok {
		return 0
	}
	raw, ok := obj["topics"].([]any)
	if !ok {
		return 0
	}
	added := 0
	for _, item := range raw {
		if len(p.Topics) >= capacity {
			break
		}
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name, _ := m["name"].(string)
		if strings.TrimSpace(name) == "" {
			continue
		}
		if hasTopicNamed(p, name) {
			continue
		}
		desc, _ := m["description"].(string)
		desired := 0.5
		if d, ok := m["exposureDesired"].(float64); ok {
			desired = entity.Clamp01(d)
		}
		p.Topics = append(p.Topics, entity.PersonaTopic{
			ID:          entity.NewID(),
			Name:        strings.TrimSpace(name),
			Description: desc,
			Exposure:    entity.Exposure{ExposureDesired: desired},
			LastUpdated: now,
		})
		added++
	}
	return added
}

const expirePrompt = `These are conversation topics the persona %q keeps available, with how much
each has actually come up recently (exposureCurrent, 0 to 1). Pick the ones that have
lost relevance (low exposure, ignored by the human) and should be dropped.

Topics:
%s

Return strict JSON: {"expired":["<id>", ...]}. Return {"expired":[]} to keep all.`

const explorePrompt = `The persona %q has room for up to %d conversation topics and currently holds:
%s

What the human cares about:
%s

Propose up to %d new topics this persona could bring up. Return strict JSON:
{"topics":[{"name":"...","description":"...","exposureDesired":0.5}]}`

func formatPersonaTopics(topics []entity.PersonaTopic) string {
	if len(topics) == 0 {
		return "(none)"
	}
	var sb strings.Builder
	for _, t := range topics {
		sb.WriteString(fmt.Sprintf("- id: %s | %s | exposureCurrent=%.2f | %s\n",
			t.ID, t.Name, t.ExposureCurrent, t.Description))
	}
	return strings.TrimSpace(sb.String())
}

func formatHumanInterests(s *entity.Store, p *entity.Persona) string {
	topics := s.VisibleTopics(p)
	if len(topics) == 0 {
		return "(nothing recorded yet)"
	}
	var sb strings.Builder
	for _, t := range topics {
		sb.WriteString(fmt.Sprintf("- %s: %s\n", t.Name, t.Description))
	}
	return strings.TrimSpace(sb.String())
}

func hasTopicNamed(p *entity.Persona, name string) bool {
	for _, t := range p.Topics {
		if strings.EqualFold(t.Name, strings.TrimSpace(name)) {
			return true
		}
	}
	return false
}

func messagesSince(p *entity.Persona, since time.Time) []entity.Message {
	var out []entity.Message
	for _, m := range p.Messages {
		if m.Timestamp.After(since) {
			out = append(out, m)
		}
	}
	return out
}

func hoursSince(t, now time.Time) float64 {
	if t.IsZero() || !now.After(t) {
		return 0
	}
	return now.Sub(t).Hours()
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func parseHHMM(s string) (int, int, bool) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, false
	}
	h, err1 := time.Parse("15", parts[0])
	m, err2 := time.Parse("04", parts[1])
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return h.Hour(), m.Minute(), true
}
