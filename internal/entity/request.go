package entity

import "time"

// RequestType controls post-processing of the model output.
type RequestType string

const (
	RequestResponse RequestType = "response" // conversational reply, sentinel-aware
	RequestJSON     RequestType = "json"     // parse-and-repair JSON
	RequestRaw      RequestType = "raw"      // text passed through untouched
)

// Priority orders queue claims: high before normal before low, FIFO
// within a tier.
type Priority int

const (
	PriorityHigh Priority = iota
	PriorityNormal
	PriorityLow
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityLow:
		return "low"
	default:
		return "normal"
	}
}

// Step routes a completed request to its handler. The set is closed:
// the engine's dispatch table covers every constant, and an unknown step
// is a reported error, not a crash.
type Step string

const (
	StepPersonaReply    Step = "persona_reply"
	StepHeartbeat       Step = "heartbeat"
	StepScan            Step = "scan"
	StepMatch           Step = "match"
	StepUpdate          Step = "update"
	StepCeremonyExpire  Step = "ceremony_expire"
	StepCeremonyExplore Step = "ceremony_explore"
	StepOneShot         Step = "one_shot"
)

// Request states inside the queue.
const (
	StatePending    = "pending"
	StateProcessing = "processing"
	StateDead       = "dead" // retry budget exhausted
)

// LLMRequest is one queued model call.
type LLMRequest struct {
	ID        string      `json:"id"`
	CreatedAt time.Time   `json:"createdAt"`
	Attempts  int         `json:"attempts"`
	Type      RequestType `json:"type"`
	Priority  Priority    `json:"priority"`
	Step      Step        `json:"step"`
	State     string      `json:"state"`

	System string `json:"system,omitempty"`
	Prompt string `json:"prompt"`
	Model  string `json:"model,omitempty"` // optional override

	// PersonaID tags requests so pending work can be cleared when the
	// user recalls messages for a persona.
	PersonaID string `json:"personaId,omitempty"`

	// Ceremony marks requests belonging to the nightly batch so the
	// orchestrator can track phase completion.
	Ceremony bool `json:"ceremony,omitempty"`

	// Data is an opaque bag carried through to the handler.
	Data map[string]any `json:"data,omitempty"`
}

// LLMResponse pairs a request with its outcome. Exactly one response is
// delivered per started request, success or failure, including abort.
type LLMResponse struct {
	Request *LLMRequest
	OK      bool
	Text    string
	JSON    any
	Silent  bool // response-typed request answered with the no-message sentinel
	Err     string
	Aborted bool
}
