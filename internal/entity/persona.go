package entity

import "time"

// EiName is the name of the built-in persona with unrestricted visibility.
// Ei is bootstrapped automatically when no prior state exists and has no
// primary group, so its writes never narrow an item's group set.
const EiName = "Ei"

// Message roles.
const (
	RoleHuman  = "human"
	RoleSystem = "system"
)

// Context inclusion states for messages.
const (
	ContextDefault = "default"
	ContextAlways  = "always"
	ContextNever   = "never"
)

// Message belongs to exactly one persona's ordered history.
type Message struct {
	ID            string    `json:"id"`
	Role          string    `json:"role"`
	Content       string    `json:"content"`
	Timestamp     time.Time `json:"timestamp"`
	Read          bool      `json:"read"`
	ContextStatus string    `json:"contextStatus,omitempty"` // default/always/never

	// Per-type extraction completion flags, so already-processed
	// messages are not rescanned.
	Scanned map[string]bool `json:"scanned,omitempty"`
}

// PersonaTopic is a persona-scoped conversation topic, distinct from the
// human's Topic collection.
type PersonaTopic struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Exposure
	LastUpdated time.Time `json:"lastUpdated"`
}

// Persona is one AI character the human talks to.
type Persona struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Aliases       []string `json:"aliases,omitempty"`
	Description   string   `json:"description,omitempty"`
	Model         string   `json:"model,omitempty"` // per-persona model override

	GroupPrimary  string   `json:"groupPrimary,omitempty"`
	GroupsVisible []string `json:"groupsVisible,omitempty"`

	Topics []PersonaTopic `json:"topics,omitempty"`

	IsPaused   bool `json:"isPaused,omitempty"`
	IsArchived bool `json:"isArchived,omitempty"`
	IsStatic   bool `json:"isStatic,omitempty"`

	HeartbeatDelayMs   int64     `json:"heartbeatDelayMs"`
	LastHeartbeat      time.Time `json:"lastHeartbeat"`
	LastActivity       time.Time `json:"lastActivity"`
	ContextWindowHours float64   `json:"contextWindowHours,omitempty"`
	ContextBoundary    time.Time `json:"contextBoundary,omitempty"`

	Messages []Message `json:"messages"`
}

// IsEi reports whether this persona is the unrestricted built-in.
func (p *Persona) IsEi() bool {
	return p.Name == EiName
}

// VisibleGroups is the union of the persona's primary and visible groups.
// Empty means the persona sees only General (Ei is special-cased by
// callers and sees everything).
func (p *Persona) VisibleGroups() []string {
	groups := make([]string, 0, len(p.GroupsVisible)+1)
	if p.GroupPrimary != "" {
		groups = append(groups, p.GroupPrimary)
	}
	for _, g := range p.GroupsVisible {
		if g != "" && !containsString(groups, g) {
			groups = append(groups, g)
		}
	}
	if len(groups) == 0 {
		groups = append(groups, GeneralGroup)
	}
	return groups
}

// HeartbeatDue reports whether enough quiet time has elapsed since the
// persona's last activity for a heartbeat check to fire.
func (p *Persona) HeartbeatDue(now time.Time) bool {
	if p.IsPaused || p.IsArchived || p.HeartbeatDelayMs <= 0 {
		return false
	}
	if p.LastActivity.IsZero() {
		return false
	}
	return now.Sub(p.LastActivity) >= time.Duration(p.HeartbeatDelayMs)*time.Millisecond
}

// ContextMessages resolves the persona's model-context window: messages
// newer than both the context boundary and the rolling window, plus any
// message pinned "always", minus any marked "never".
func (p *Persona) ContextMessages(now time.Time) []Message {
	var cutoff time.Time
	if p.ContextWindowHours > 0 {
		cutoff = now.Add(-time.Duration(p.ContextWindowHours * float64(time.Hour)))
	}
	if p.ContextBoundary.After(cutoff) {
		cutoff = p.ContextBoundary
	}

	out := make([]Message, 0, len(p.Messages))
	for _, m := range p.Messages {
		switch m.ContextStatus {
		case ContextNever:
			continue
		case ContextAlways:
			out = append(out, m)
		default:
			if !m.Timestamp.Before(cutoff) {
				out = append(out, m)
			}
		}
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
