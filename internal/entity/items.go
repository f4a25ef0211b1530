package entity

import (
	"time"

	"github.com/google/uuid"
)

// GeneralGroup is the implicit visibility group every item belongs to when
// no explicit groups are set.
const GeneralGroup = "General"

// Validation states for facts.
const (
	ValidationNone  = ""
	ValidationEi    = "ei"
	ValidationHuman = "human"
)

// Quote provenance.
const (
	QuoteFromExtraction = "extraction"
	QuoteManual         = "manual"
)

// DataItem is the base shared by facts, traits, topics and people.
type DataItem struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Sentiment     float64   `json:"sentiment"` // [-1, 1]
	LastUpdated   time.Time `json:"lastUpdated"`
	LearnedBy     string    `json:"learnedBy,omitempty"` // persona id
	PersonaGroups []string  `json:"personaGroups,omitempty"`
}

// Exposure is carried by topics and people: how much the subject has
// recently come up vs. how much it should.
type Exposure struct {
	ExposureCurrent float64 `json:"exposureCurrent"` // [0, 1]
	ExposureDesired float64 `json:"exposureDesired"` // [0, 1]
}

type Fact struct {
	DataItem
	Validation string `json:"validation,omitempty"` // "", "ei", "human"
}

type Trait struct {
	DataItem
}

type Topic struct {
	DataItem
	Exposure
}

type Person struct {
	DataItem
	Exposure
}

// Quote is a remembered utterance, optionally tied to a message and to
// the data items it evidences.
type Quote struct {
	ID          string    `json:"id"`
	MessageID   string    `json:"messageId,omitempty"`
	ItemIDs     []string  `json:"itemIds,omitempty"`
	Speaker     string    `json:"speaker"`
	Text        string    `json:"text"`
	StartOffset *int      `json:"startOffset,omitempty"`
	EndOffset   *int      `json:"endOffset,omitempty"`
	Provenance  string    `json:"provenance"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Human is the singleton record of everything learned about the user.
type Human struct {
	Name         string    `json:"name,omitempty"`
	Facts        []Fact    `json:"facts"`
	Traits       []Trait   `json:"traits"`
	Topics       []Topic   `json:"topics"`
	People       []Person  `json:"people"`
	Quotes       []Quote   `json:"quotes"`
	LastUpdated  time.Time `json:"lastUpdated"`
	LastActivity time.Time `json:"lastActivity"`

	// Per-type last-seeded timestamps, used to throttle extraction.
	LastSeeded map[string]time.Time `json:"lastSeeded,omitempty"`
}

// NewHuman returns an empty human record.
func NewHuman() *Human {
	return &Human{
		Facts:      []Fact{},
		Traits:     []Trait{},
		Topics:     []Topic{},
		People:     []Person{},
		Quotes:     []Quote{},
		LastSeeded: map[string]time.Time{},
	}
}

// NewID returns a fresh unique id for any entity.
func NewID() string {
	return uuid.NewString()
}

// Clamp01 bounds v to [0, 1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ClampSentiment bounds v to [-1, 1].
func ClampSentiment(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}

// ensureID assigns a fresh id when none is set.
func ensureID(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}
