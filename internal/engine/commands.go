package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/eidolabs/eidolon/internal/bus"
	"github.com/eidolabs/eidolon/internal/checkpoint"
	"github.com/eidolabs/eidolon/internal/entity"
)

// The command surface: every method funnels through do() so it executes
// on the loop goroutine, and fails with a coded error on invalid input.

// CreatePersona registers a new persona and returns its stored copy.
func (e *Engine) CreatePersona(p entity.Persona) (entity.Persona, error) {
	var out entity.Persona
	err := e.do(func() error {
		stored := e.store.AddPersona(&p)
		e.bus.Publish(bus.Event{Kind: bus.PersonaAdded, PersonaID: stored.ID})
		out = *stored
		return nil
	})
	return out, err
}

// UpdatePersona applies a mutation to a persona on the loop goroutine.
func (e *Engine) UpdatePersona(id string, mutate func(*entity.Persona)) error {
	return e.do(func() error {
		p, ok := e.store.Persona(id)
		if !ok {
			return coded(CodePersonaNotFound, "persona %s", id)
		}
		mutate(p)
		e.bus.Publish(bus.Event{Kind: bus.PersonaUpdated, PersonaID: id})
		return nil
	})
}

// DeletePersona removes a persona, its history, and its pending jobs.
func (e *Engine) DeletePersona(id string) error {
	return e.do(func() error {
		if !e.store.RemovePersona(id) {
			return coded(CodePersonaNotFound, "persona %s", id)
		}
		e.bus.Publish(bus.Event{Kind: bus.PersonaRemoved, PersonaID: id})
		return nil
	})
}

// Personas returns copies of all personas (without message histories).
func (e *Engine) Personas() ([]entity.Persona, error) {
	var out []entity.Persona
	err := e.do(func() error {
		for _, p := range e.store.Personas {
			copied := *p
			copied.Messages = nil
			out = append(out, copied)
		}
		return nil
	})
	return out, err
}

// SendMessage appends a human message to a persona and enqueues a
// high-priority reply job. Returns the stored message id.
func (e *Engine) SendMessage(personaID, text string) (string, error) {
	var msgID string
	err := e.do(func() error {
		p, ok := e.store.Persona(personaID)
		if !ok {
			return coded(CodePersonaNotFound, "persona %s", personaID)
		}
		msg, err := e.store.AppendMessage(p.ID, entity.Message{Role: entity.RoleHuman, Content: text})
		if err != nil {
			return err
		}
		msgID = msg.ID
		e.bus.Publish(bus.Event{Kind: bus.MessageAdded, PersonaID: p.ID, MessageID: msg.ID})
		e.enqueue(e.buildReplyRequest(p, e.now()))
		return nil
	})
	return msgID, err
}

// Messages returns a persona's full history.
func (e *Engine) Messages(personaID string) ([]entity.Message, error) {
	var out []entity.Message
	err := e.do(func() error {
		p, ok := e.store.Persona(personaID)
		if !ok {
			return coded(CodePersonaNotFound, "persona %s", personaID)
		}
		out = append(out, p.Messages...)
		return nil
	})
	return out, err
}

// RecallMessages takes back the persona's unread human messages and
// clears its pending (unclaimed) queue work. Returns how many messages
// were recalled.
func (e *Engine) RecallMessages(personaID string) (int, error) {
	var recalled int
	err := e.do(func() error {
		if _, ok := e.store.Persona(personaID); !ok {
			return coded(CodePersonaNotFound, "persona %s", personaID)
		}
		e.store.Queue.ClearForPersona(personaID)
		msgs := e.store.RecallUnread(personaID)
		recalled = len(msgs)
		e.bus.Publish(bus.Event{Kind: bus.MessageRecalled, PersonaID: personaID, Detail: fmt.Sprintf("%d", recalled)})
		return nil
	})
	return recalled, err
}

// MarkMessageRead flips one message to read.
func (e *Engine) MarkMessageRead(personaID, messageID string) error {
	return e.do(func() error {
		if _, ok := e.store.Persona(personaID); !ok {
			return coded(CodePersonaNotFound, "persona %s", personaID)
		}
		if !e.store.MarkRead(personaID, messageID) {
			return coded(CodeMessageNotFound, "message %s", messageID)
		}
		return nil
	})
}

// SetContextBoundary cuts the persona's context window at the given time.
func (e *Engine) SetContextBoundary(personaID string, boundary time.Time) error {
	return e.do(func() error {
		p, ok := e.store.Persona(personaID)
		if !ok {
			return coded(CodePersonaNotFound, "persona %s", personaID)
		}
		p.ContextBoundary = boundary
		e.bus.Publish(bus.Event{Kind: bus.ContextBoundaryChanged, PersonaID: personaID})
		return nil
	})
}

// UpsertFact writes a fact through the store's typed upsert.
func (e *Engine) UpsertFact(f entity.Fact) (entity.Fact, error) {
	var out entity.Fact
	err := e.do(func() error {
		out = e.store.UpsertFact(f)
		e.bus.Publish(bus.Event{Kind: bus.HumanUpdated})
		return nil
	})
	return out, err
}

// RemoveFact deletes a fact by id.
func (e *Engine) RemoveFact(id string) error {
	return e.do(func() error {
		if !e.store.RemoveFact(id) {
			return coded(CodeItemNotFound, "fact %s", id)
		}
		e.bus.Publish(bus.Event{Kind: bus.HumanUpdated})
		return nil
	})
}

// UpsertTrait writes a trait.
func (e *Engine) UpsertTrait(t entity.Trait) (entity.Trait, error) {
	var out entity.Trait
	err := e.do(func() error {
		out = e.store.UpsertTrait(t)
		e.bus.Publish(bus.Event{Kind: bus.HumanUpdated})
		return nil
	})
	return out, err
}

// RemoveTrait deletes a trait by id.
func (e *Engine) RemoveTrait(id string) error {
	return e.do(func() error {
		if !e.store.RemoveTrait(id) {
			return coded(CodeItemNotFound, "trait %s", id)
		}
		e.bus.Publish(bus.Event{Kind: bus.HumanUpdated})
		return nil
	})
}

// UpsertTopic writes a topic.
func (e *Engine) UpsertTopic(t entity.Topic) (entity.Topic, error) {
	var out entity.Topic
	err := e.do(func() error {
		out = e.store.UpsertTopic(t)
		e.bus.Publish(bus.Event{Kind: bus.HumanUpdated})
		return nil
	})
	return out, err
}

// RemoveTopic deletes a topic by id.
func (e *Engine) RemoveTopic(id string) error {
	return e.do(func() error {
		if !e.store.RemoveTopic(id) {
			return coded(CodeItemNotFound, "topic %s", id)
		}
		e.bus.Publish(bus.Event{Kind: bus.HumanUpdated})
		return nil
	})
}

// UpsertPerson writes a person.
func (e *Engine) UpsertPerson(p entity.Person) (entity.Person, error) {
	var out entity.Person
	err := e.do(func() error {
		out = e.store.UpsertPerson(p)
		e.bus.Publish(bus.Event{Kind: bus.HumanUpdated})
		return nil
	})
	return out, err
}

// RemovePerson deletes a person by id.
func (e *Engine) RemovePerson(id string) error {
	return e.do(func() error {
		if !e.store.RemovePerson(id) {
			return coded(CodeItemNotFound, "person %s", id)
		}
		e.bus.Publish(bus.Event{Kind: bus.HumanUpdated})
		return nil
	})
}

// UpsertQuote writes a quote (manual provenance unless set).
func (e *Engine) UpsertQuote(q entity.Quote) (entity.Quote, error) {
	var out entity.Quote
	err := e.do(func() error {
		out = e.store.UpsertQuote(q)
		e.bus.Publish(bus.Event{Kind: bus.HumanUpdated})
		return nil
	})
	return out, err
}

// RemoveQuote deletes a quote by id.
func (e *Engine) RemoveQuote(id string) error {
	return e.do(func() error {
		if !e.store.RemoveQuote(id) {
			return coded(CodeItemNotFound, "quote %s", id)
		}
		e.bus.Publish(bus.Event{Kind: bus.HumanUpdated})
		return nil
	})
}

// HumanData returns a copy of the human record.
func (e *Engine) HumanData() (entity.Human, error) {
	var out entity.Human
	err := e.do(func() error {
		out = *e.store.Human
		return nil
	})
	return out, err
}

// PauseQueue stops future claims; in-flight work is unaffected.
func (e *Engine) PauseQueue() error {
	return e.do(func() error {
		e.store.Queue.Pause()
		e.publishQueueState()
		return nil
	})
}

// ResumeQueue re-enables claims.
func (e *Engine) ResumeQueue() error {
	return e.do(func() error {
		e.store.Queue.Resume()
		e.publishQueueState()
		return nil
	})
}

// AbortCurrentOperation pauses the queue and cancels the in-flight call.
// The aborted job's callback resolves with the aborted marker.
func (e *Engine) AbortCurrentOperation() error {
	return e.do(func() error {
		e.store.Queue.Pause()
		e.exec.Abort()
		e.publishQueueState()
		return nil
	})
}

// QueueStatus reports idle/busy/paused plus counts.
func (e *Engine) QueueStatus() (QueueStatus, error) {
	var out QueueStatus
	err := e.do(func() error {
		out = QueueStatus{
			State:      e.store.Queue.Status(),
			Pending:    e.store.Queue.Pending(),
			DeadLetter: len(e.store.Queue.Dead),
			InFlight:   e.exec.Busy(),
		}
		if out.State == entity.QueueIdle && out.InFlight {
			out.State = entity.QueueBusy
		}
		return nil
	})
	return out, err
}

// QueueStatus is the queue summary returned to callers.
type QueueStatus struct {
	State      string `json:"state"`
	Pending    int    `json:"pending"`
	DeadLetter int    `json:"deadLetter"`
	InFlight   bool   `json:"inFlight"`
}

// OneShot runs a single raw prompt through the queue at high priority and
// waits for the result.
func (e *Engine) OneShot(ctx context.Context, prompt string) (string, error) {
	wait := make(chan entity.LLMResponse, 1)
	req := &entity.LLMRequest{
		Type:     entity.RequestRaw,
		Priority: entity.PriorityHigh,
		Step:     entity.StepOneShot,
		Prompt:   prompt,
	}
	err := e.do(func() error {
		e.enqueue(req)
		e.waiters[req.ID] = wait
		return nil
	})
	if err != nil {
		return "", err
	}

	select {
	case resp := <-wait:
		if resp.Aborted {
			return "", coded(CodeAborted, "one-shot aborted")
		}
		if !resp.OK {
			return "", fmt.Errorf("one-shot failed: %s", resp.Err)
		}
		return resp.Text, nil
	case <-ctx.Done():
		_ = e.do(func() error {
			delete(e.waiters, req.ID)
			e.store.Queue.Complete(req.ID)
			return nil
		})
		return "", ctx.Err()
	}
}

// CreateCheckpoint writes a named manual slot.
func (e *Engine) CreateCheckpoint(slot int, name string) error {
	return e.do(func() error {
		e.bus.Publish(bus.Event{Kind: bus.CheckpointStart})
		if err := e.ckpt.ManualCheckpoint(e.store, slot, name, e.now()); err != nil {
			return err
		}
		e.bus.Publish(bus.Event{Kind: bus.CheckpointCreated, Detail: name})
		return nil
	})
}

// DeleteCheckpoint clears a manual slot.
func (e *Engine) DeleteCheckpoint(slot int) error {
	return e.do(func() error {
		if err := e.ckpt.DeleteManual(slot); err != nil {
			return err
		}
		e.bus.Publish(bus.Event{Kind: bus.CheckpointDeleted})
		return nil
	})
}

// RestoreCheckpoint replaces in-memory state with the chosen snapshot.
func (e *Engine) RestoreCheckpoint(index int) error {
	return e.do(func() error {
		if err := e.ckpt.Restore(e.store, index); err != nil {
			return err
		}
		e.store.Queue.MaxAttempts = e.cfg.Engine.MaxAttempts
		e.bus.Publish(bus.Event{Kind: bus.CheckpointRestored})
		return nil
	})
}

// ListCheckpoints enumerates stored checkpoints.
func (e *Engine) ListCheckpoints() ([]checkpoint.Info, error) {
	var out []checkpoint.Info
	err := e.do(func() error {
		infos, err := e.ckpt.List()
		if err != nil {
			return err
		}
		out = infos
		return nil
	})
	return out, err
}

// Export serializes the full state to JSON.
func (e *Engine) Export() ([]byte, error) {
	var out []byte
	err := e.do(func() error {
		data, err := e.store.ExportJSON(e.now())
		if err != nil {
			return err
		}
		out = data
		return nil
	})
	return out, err
}

// Import replaces the full state from exported JSON.
func (e *Engine) Import(data []byte) error {
	return e.do(func() error {
		if err := e.store.ImportJSON(data); err != nil {
			return err
		}
		e.store.Queue.MaxAttempts = e.cfg.Engine.MaxAttempts
		e.bus.Publish(bus.Event{Kind: bus.CheckpointRestored, Detail: "import"})
		return nil
	})
}
