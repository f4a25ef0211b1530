package bus

import (
	"log"
	"time"
)

// EventKind identifies what happened. Payloads carry only the ids needed
// for an observer to refetch the relevant slice of state.
type EventKind string

const (
	PersonaAdded   EventKind = "persona_added"
	PersonaRemoved EventKind = "persona_removed"
	PersonaUpdated EventKind = "persona_updated"

	MessageAdded      EventKind = "message_added"
	MessageProcessing EventKind = "message_processing"
	MessageQueued     EventKind = "message_queued"
	MessageRecalled   EventKind = "message_recalled"

	HumanUpdated EventKind = "human_updated"

	QueueState EventKind = "queue_state" // Detail: idle/busy/paused

	CheckpointStart    EventKind = "checkpoint_start"
	CheckpointCreated  EventKind = "checkpoint_created"
	CheckpointDeleted  EventKind = "checkpoint_deleted"
	CheckpointRestored EventKind = "checkpoint_restored"

	OneShotResult EventKind = "oneshot_result"

	ErrorOccurred EventKind = "error"

	ContextBoundaryChanged EventKind = "context_boundary_changed"
)

// Event is one notification.
type Event struct {
	Kind      EventKind
	PersonaID string
	MessageID string
	Code      string // error code, when Kind == ErrorOccurred
	Detail    string
	Timestamp time.Time
}

// Bus fans events out to a single consumer channel. Publishing never
// blocks the engine loop: when the buffer is full the event is dropped
// and logged, matching the "observers are optional" contract.
type Bus struct {
	events chan Event
}

// NewBus creates a bus with the given buffer size.
func NewBus(bufSize int) *Bus {
	if bufSize <= 0 {
		bufSize = 100
	}
	return &Bus{events: make(chan Event, bufSize)}
}

// Events exposes the consumer side.
func (b *Bus) Events() <-chan Event {
	return b.events
}

// Publish emits an event without blocking.
func (b *Bus) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	select {
	case b.events <- evt:
	default:
		log.Printf("[bus] dropping event %s: buffer full", evt.Kind)
	}
}

// Error publishes an error notification with a classified code.
func (b *Bus) Error(code, detail string) {
	b.Publish(Event{Kind: ErrorOccurred, Code: code, Detail: detail})
}

// Drain discards buffered events. Used on shutdown so a slow observer
// cannot hold references to stale state.
func (b *Bus) Drain() {
	for {
		select {
		case <-b.events:
		default:
			return
		}
	}
}
