package entity

import (
	"fmt"
	"time"
)

// Store is the in-memory canonical state: the human record, all personas
// with their message histories, and the job queue. The store does no I/O
// and is mutated from a single execution context (the engine loop);
// it needs no internal locking.
type Store struct {
	Human        *Human     `json:"human"`
	Personas     []*Persona `json:"personas"`
	Queue        *JobQueue  `json:"queue"`
	LastCeremony time.Time  `json:"lastCeremony"`
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		Human:    NewHuman(),
		Personas: []*Persona{},
		Queue:    NewJobQueue(),
	}
}

// Bootstrap returns a store seeded with the built-in Ei persona. Used when
// no prior snapshot exists.
func Bootstrap(now time.Time) *Store {
	s := NewStore()
	s.Personas = append(s.Personas, &Persona{
		ID:                 NewID(),
		Name:               EiName,
		Description:        "Companion with full visibility into everything learned.",
		IsStatic:           true,
		HeartbeatDelayMs:   int64(2 * time.Hour / time.Millisecond),
		LastActivity:       now,
		ContextWindowHours: 24,
		Messages:           []Message{},
	})
	s.Human.LastUpdated = now
	return s
}

// Persona looks a persona up by id.
func (s *Store) Persona(id string) (*Persona, bool) {
	for _, p := range s.Personas {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

// PersonaByName looks a persona up by display name or alias.
func (s *Store) PersonaByName(name string) (*Persona, bool) {
	for _, p := range s.Personas {
		if p.Name == name || containsString(p.Aliases, name) {
			return p, true
		}
	}
	return nil, false
}

// Ei returns the built-in unrestricted persona, if present.
func (s *Store) Ei() (*Persona, bool) {
	return s.PersonaByName(EiName)
}

// AddPersona registers a persona, assigning an id when missing.
func (s *Store) AddPersona(p *Persona) *Persona {
	p.ID = ensureID(p.ID)
	if p.Messages == nil {
		p.Messages = []Message{}
	}
	if p.LastActivity.IsZero() {
		p.LastActivity = time.Now()
	}
	s.Personas = append(s.Personas, p)
	return p
}

// RemovePersona deletes a persona and cascades to its message history and
// any pending queue work tagged to it. Unknown ids are a no-op.
func (s *Store) RemovePersona(id string) bool {
	for i, p := range s.Personas {
		if p.ID == id {
			s.Personas = append(s.Personas[:i], s.Personas[i+1:]...)
			s.Queue.ClearForPersona(id)
			return true
		}
	}
	return false
}

// AppendMessage adds a message to a persona's history. Human messages
// start unread; any role bumps the persona's activity clock, and a system
// reply marks all earlier human messages read.
func (s *Store) AppendMessage(personaID string, msg Message) (*Message, error) {
	p, ok := s.Persona(personaID)
	if !ok {
		return nil, fmt.Errorf("persona %s not found", personaID)
	}
	msg.ID = ensureID(msg.ID)
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	if msg.ContextStatus == "" {
		msg.ContextStatus = ContextDefault
	}
	msg.Read = msg.Role != RoleHuman
	p.Messages = append(p.Messages, msg)
	p.LastActivity = msg.Timestamp
	if msg.Role == RoleSystem {
		for i := range p.Messages {
			if p.Messages[i].Role == RoleHuman {
				p.Messages[i].Read = true
			}
		}
	}
	s.Human.LastActivity = msg.Timestamp
	return &p.Messages[len(p.Messages)-1], nil
}

// MarkRead flips a single message to read.
func (s *Store) MarkRead(personaID, messageID string) bool {
	p, ok := s.Persona(personaID)
	if !ok {
		return false
	}
	for i := range p.Messages {
		if p.Messages[i].ID == messageID {
			p.Messages[i].Read = true
			return true
		}
	}
	return false
}

// UnreadHuman returns the persona's unread human messages in order.
func (s *Store) UnreadHuman(personaID string) []Message {
	p, ok := s.Persona(personaID)
	if !ok {
		return nil
	}
	var out []Message
	for _, m := range p.Messages {
		if m.Role == RoleHuman && !m.Read {
			out = append(out, m)
		}
	}
	return out
}

// RecallUnread removes the persona's unread human messages (the user took
// them back before a reply was produced) and returns them. Pending queue
// work for the persona must be cleared by the caller alongside.
func (s *Store) RecallUnread(personaID string) []Message {
	p, ok := s.Persona(personaID)
	if !ok {
		return nil
	}
	var recalled []Message
	kept := p.Messages[:0]
	for _, m := range p.Messages {
		if m.Role == RoleHuman && !m.Read {
			recalled = append(recalled, m)
			continue
		}
		kept = append(kept, m)
	}
	p.Messages = kept
	return recalled
}

// Message looks up a message across all personas.
func (s *Store) Message(messageID string) (*Persona, *Message, bool) {
	for _, p := range s.Personas {
		for i := range p.Messages {
			if p.Messages[i].ID == messageID {
				return p, &p.Messages[i], true
			}
		}
	}
	return nil, nil, false
}

func (s *Store) touchHuman(now time.Time) {
	s.Human.LastUpdated = now
}

// UpsertFact creates or updates a fact by id and returns the stored copy.
func (s *Store) UpsertFact(f Fact) Fact {
	now := time.Now()
	f.ID = ensureID(f.ID)
	f.LastUpdated = now
	f.Sentiment = ClampSentiment(f.Sentiment)
	f.PersonaGroups = NormalizeGroups(f.PersonaGroups)
	s.touchHuman(now)
	for i := range s.Human.Facts {
		if s.Human.Facts[i].ID == f.ID {
			s.Human.Facts[i] = f
			return f
		}
	}
	s.Human.Facts = append(s.Human.Facts, f)
	return f
}

// RemoveFact deletes a fact by id; unknown ids are a no-op returning false.
func (s *Store) RemoveFact(id string) bool {
	for i := range s.Human.Facts {
		if s.Human.Facts[i].ID == id {
			s.Human.Facts = append(s.Human.Facts[:i], s.Human.Facts[i+1:]...)
			s.touchHuman(time.Now())
			return true
		}
	}
	return false
}

// UpsertTrait creates or updates a trait by id.
func (s *Store) UpsertTrait(t Trait) Trait {
	now := time.Now()
	t.ID = ensureID(t.ID)
	t.LastUpdated = now
	t.Sentiment = ClampSentiment(t.Sentiment)
	t.PersonaGroups = NormalizeGroups(t.PersonaGroups)
	s.touchHuman(now)
	for i := range s.Human.Traits {
		if s.Human.Traits[i].ID == t.ID {
			s.Human.Traits[i] = t
			return t
		}
	}
	s.Human.Traits = append(s.Human.Traits, t)
	return t
}

// RemoveTrait deletes a trait by id.
func (s *Store) RemoveTrait(id string) bool {
	for i := range s.Human.Traits {
		if s.Human.Traits[i].ID == id {
			s.Human.Traits = append(s.Human.Traits[:i], s.Human.Traits[i+1:]...)
			s.touchHuman(time.Now())
			return true
		}
	}
	return false
}

// UpsertTopic creates or updates a topic by id.
func (s *Store) UpsertTopic(t Topic) Topic {
	now := time.Now()
	t.ID = ensureID(t.ID)
	t.LastUpdated = now
	t.Sentiment = ClampSentiment(t.Sentiment)
	t.ExposureCurrent = Clamp01(t.ExposureCurrent)
	t.ExposureDesired = Clamp01(t.ExposureDesired)
	t.PersonaGroups = NormalizeGroups(t.PersonaGroups)
	s.touchHuman(now)
	for i := range s.Human.Topics {
		if s.Human.Topics[i].ID == t.ID {
			s.Human.Topics[i] = t
			return t
		}
	}
	s.Human.Topics = append(s.Human.Topics, t)
	return t
}

// RemoveTopic deletes a topic by id.
func (s *Store) RemoveTopic(id string) bool {
	for i := range s.Human.Topics {
		if s.Human.Topics[i].ID == id {
			s.Human.Topics = append(s.Human.Topics[:i], s.Human.Topics[i+1:]...)
			s.touchHuman(time.Now())
			return true
		}
	}
	return false
}

// UpsertPerson creates or updates a person by id.
func (s *Store) UpsertPerson(p Person) Person {
	now := time.Now()
	p.ID = ensureID(p.ID)
	p.LastUpdated = now
	p.Sentiment = ClampSentiment(p.Sentiment)
	p.ExposureCurrent = Clamp01(p.ExposureCurrent)
	p.ExposureDesired = Clamp01(p.ExposureDesired)
	p.PersonaGroups = NormalizeGroups(p.PersonaGroups)
	s.touchHuman(now)
	for i := range s.Human.People {
		if s.Human.People[i].ID == p.ID {
			s.Human.People[i] = p
			return p
		}
	}
	s.Human.People = append(s.Human.People, p)
	return p
}

// RemovePerson deletes a person by id.
func (s *Store) RemovePerson(id string) bool {
	for i := range s.Human.People {
		if s.Human.People[i].ID == id {
			s.Human.People = append(s.Human.People[:i], s.Human.People[i+1:]...)
			s.touchHuman(time.Now())
			return true
		}
	}
	return false
}

// UpsertQuote creates or updates a quote by id.
func (s *Store) UpsertQuote(q Quote) Quote {
	q.ID = ensureID(q.ID)
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now()
	}
	if q.Provenance == "" {
		q.Provenance = QuoteManual
	}
	s.touchHuman(time.Now())
	for i := range s.Human.Quotes {
		if s.Human.Quotes[i].ID == q.ID {
			s.Human.Quotes[i] = q
			return q
		}
	}
	s.Human.Quotes = append(s.Human.Quotes, q)
	return q
}

// RemoveQuote deletes a quote by id.
func (s *Store) RemoveQuote(id string) bool {
	for i := range s.Human.Quotes {
		if s.Human.Quotes[i].ID == id {
			s.Human.Quotes = append(s.Human.Quotes[:i], s.Human.Quotes[i+1:]...)
			s.touchHuman(time.Now())
			return true
		}
	}
	return false
}

// VisibleFacts filters the human's facts down to what the persona may
// read.
func (s *Store) VisibleFacts(p *Persona) []Fact {
	out := make([]Fact, 0, len(s.Human.Facts))
	for _, f := range s.Human.Facts {
		if CanSee(p, f.PersonaGroups) {
			out = append(out, f)
		}
	}
	return out
}

// VisibleTraits filters traits by persona visibility.
func (s *Store) VisibleTraits(p *Persona) []Trait {
	out := make([]Trait, 0, len(s.Human.Traits))
	for _, t := range s.Human.Traits {
		if CanSee(p, t.PersonaGroups) {
			out = append(out, t)
		}
	}
	return out
}

// VisibleTopics filters topics by persona visibility.
func (s *Store) VisibleTopics(p *Persona) []Topic {
	out := make([]Topic, 0, len(s.Human.Topics))
	for _, t := range s.Human.Topics {
		if CanSee(p, t.PersonaGroups) {
			out = append(out, t)
		}
	}
	return out
}

// VisiblePeople filters people by persona visibility.
func (s *Store) VisiblePeople(p *Persona) []Person {
	out := make([]Person, 0, len(s.Human.People))
	for _, per := range s.Human.People {
		if CanSee(p, per.PersonaGroups) {
			out = append(out, per)
		}
	}
	return out
}

// LastSeeded returns when extraction last seeded a given data type.
func (s *Store) LastSeeded(dataType string) time.Time {
	if s.Human.LastSeeded == nil {
		return time.Time{}
	}
	return s.Human.LastSeeded[dataType]
}

// StampSeeded records an extraction pass for a data type.
func (s *Store) StampSeeded(dataType string, now time.Time) {
	if s.Human.LastSeeded == nil {
		s.Human.LastSeeded = map[string]time.Time{}
	}
	s.Human.LastSeeded[dataType] = now
}
