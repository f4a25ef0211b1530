package engine

import (
	"fmt"
	"log"

	"github.com/eidolabs/eidolon/internal/bus"
	"github.com/eidolabs/eidolon/internal/ceremony"
	"github.com/eidolabs/eidolon/internal/entity"
	"github.com/eidolabs/eidolon/internal/extraction"
)

type handlerFunc func(resp entity.LLMResponse) error

// dispatchTable is the closed routing map from request steps to handlers.
// Adding a step means adding a row here; an unknown step is reported, not
// crashed on.
func (e *Engine) dispatchTable() map[entity.Step]handlerFunc {
	return map[entity.Step]handlerFunc{
		entity.StepPersonaReply:    e.handleReply,
		entity.StepHeartbeat:       e.handleHeartbeat,
		entity.StepScan:            e.handleScan,
		entity.StepMatch:           e.handleMatch,
		entity.StepUpdate:          e.handleUpdate,
		entity.StepCeremonyExpire:  e.handleCeremonyExpire,
		entity.StepCeremonyExplore: e.handleCeremonyExplore,
		entity.StepOneShot:         e.handleOneShot,
	}
}

// dispatch routes one completed job. Failures here are recoverable by
// definition: the job is failed (and possibly dead-lettered), the loop
// lives on.
func (e *Engine) dispatch(resp entity.LLMResponse) {
	req := resp.Request

	if resp.Aborted {
		// User-initiated cancellation: the job returns to pending
		// without consuming a retry attempt.
		e.store.Queue.Release(req.ID)
		e.notifyWaiter(req.ID, resp)
		e.bus.Error(CodeAborted, fmt.Sprintf("job %s aborted", req.ID))
		e.publishQueueState()
		return
	}

	if !resp.OK {
		if req.Step == entity.StepOneShot {
			// One-shots report their first failure to the caller
			// instead of retrying behind their back.
			e.store.Queue.Complete(req.ID)
			e.notifyWaiter(req.ID, resp)
		} else {
			e.failJob(req, resp.Err)
		}
		e.publishQueueState()
		return
	}

	handler, ok := e.handlers[req.Step]
	if !ok {
		e.failJob(req, fmt.Sprintf("no handler for step %q", req.Step))
		e.bus.Error(CodeNoHandler, string(req.Step))
		return
	}

	err := e.runHandler(handler, resp)
	if err != nil {
		e.failJob(req, err.Error())
		return
	}

	e.store.Queue.Complete(req.ID)
	if req.Ceremony {
		e.cer.JobFinished(e.store, e.enqueue, e.now())
	}
	e.publishQueueState()
}

// runHandler isolates handler panics: a broken handler fails its job and
// nothing else.
func (e *Engine) runHandler(handler handlerFunc, resp entity.LLMResponse) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[engine] handler panic on step %s: %v", resp.Request.Step, r)
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(resp)
}

// failJob counts a failed attempt and dead-letters past the budget.
func (e *Engine) failJob(req *entity.LLMRequest, reason string) {
	deadLettered := e.store.Queue.Fail(req.ID)
	if deadLettered {
		log.Printf("[engine] job %s (%s) dead-lettered after %d attempts: %s",
			req.ID, req.Step, req.Attempts, reason)
		e.bus.Error("ERR_JOB_DEAD_LETTERED", fmt.Sprintf("%s: %s", req.Step, reason))
		if req.Ceremony {
			// A dead phase job must not wedge the ceremony.
			e.cer.JobFinished(e.store, e.enqueue, e.now())
		}
	} else {
		log.Printf("[engine] job %s (%s) failed (attempt %d): %s", req.ID, req.Step, req.Attempts, reason)
	}
}

func (e *Engine) handleReply(resp entity.LLMResponse) error {
	req := resp.Request
	p, ok := e.store.Persona(req.PersonaID)
	if !ok {
		return fmt.Errorf("persona %s gone", req.PersonaID)
	}
	if resp.Silent {
		return nil
	}
	msg, err := e.store.AppendMessage(p.ID, entity.Message{Role: entity.RoleSystem, Content: resp.Text})
	if err != nil {
		return err
	}
	e.bus.Publish(bus.Event{Kind: bus.MessageAdded, PersonaID: p.ID, MessageID: msg.ID})
	e.maybeSeedExtraction(p)
	return nil
}

func (e *Engine) handleHeartbeat(resp entity.LLMResponse) error {
	req := resp.Request
	p, ok := e.store.Persona(req.PersonaID)
	if !ok {
		return fmt.Errorf("persona %s gone", req.PersonaID)
	}
	if resp.Silent {
		return nil
	}
	msg, err := e.store.AppendMessage(p.ID, entity.Message{Role: entity.RoleSystem, Content: resp.Text})
	if err != nil {
		return err
	}
	e.bus.Publish(bus.Event{Kind: bus.MessageAdded, PersonaID: p.ID, MessageID: msg.ID})
	return nil
}

func (e *Engine) handleScan(resp entity.LLMResponse) error {
	req := resp.Request
	p, ok := e.store.Persona(req.PersonaID)
	if !ok {
		return fmt.Errorf("persona %s gone", req.PersonaID)
	}
	dtype, _, window, _ := extraction.ChainData(req)

	cands := extraction.ParseCandidates(resp.JSON)
	if dtype == extraction.TypeQuote {
		if n := extraction.ApplyQuoteCandidates(e.store, cands, e.now()); n > 0 {
			e.bus.Publish(bus.Event{Kind: bus.HumanUpdated})
		}
		return nil
	}

	enqueued := 0
	for _, cand := range cands {
		refs := extraction.Refs(e.store, p, dtype)
		e.enqueue(extraction.MatchRequest(p, dtype, cand, refs, window, req.Ceremony))
		enqueued++
	}
	if req.Ceremony && enqueued > 0 {
		e.cer.AddPending(enqueued)
	}
	return nil
}

func (e *Engine) handleMatch(resp entity.LLMResponse) error {
	req := resp.Request
	p, ok := e.store.Persona(req.PersonaID)
	if !ok {
		return fmt.Errorf("persona %s gone", req.PersonaID)
	}
	dtype, cand, window, _ := extraction.ChainData(req)

	matchedID, ok := extraction.ParseMatch(resp.JSON)
	if !ok {
		return fmt.Errorf("unparseable match result for %s %q", dtype, cand.Name)
	}

	existingText := extraction.RefText(e.store, p, dtype, matchedID)
	e.enqueue(extraction.UpdateRequest(p, dtype, cand, matchedID, existingText, window, req.Ceremony))
	if req.Ceremony {
		e.cer.AddPending(1)
	}
	return nil
}

func (e *Engine) handleUpdate(resp entity.LLMResponse) error {
	req := resp.Request
	p, ok := e.store.Persona(req.PersonaID)
	if !ok {
		return fmt.Errorf("persona %s gone", req.PersonaID)
	}
	dtype, _, _, matchedID := extraction.ChainData(req)

	fields, ok := extraction.ParseUpdate(resp.JSON)
	if !ok {
		return fmt.Errorf("unparseable update result for %s", dtype)
	}
	if _, err := extraction.ApplyUpdate(e.store, p, dtype, matchedID, fields); err != nil {
		return err
	}
	e.bus.Publish(bus.Event{Kind: bus.HumanUpdated, PersonaID: p.ID})
	return nil
}

func (e *Engine) handleCeremonyExpire(resp entity.LLMResponse) error {
	p, ok := e.store.Persona(resp.Request.PersonaID)
	if !ok {
		return fmt.Errorf("persona %s gone", resp.Request.PersonaID)
	}
	if n := ceremony.ApplyExpire(p, resp.JSON); n > 0 {
		log.Printf("[ceremony] %s: expired %d topics", p.Name, n)
		e.bus.Publish(bus.Event{Kind: bus.PersonaUpdated, PersonaID: p.ID})
	}
	return nil
}

func (e *Engine) handleCeremonyExplore(resp entity.LLMResponse) error {
	p, ok := e.store.Persona(resp.Request.PersonaID)
	if !ok {
		return fmt.Errorf("persona %s gone", resp.Request.PersonaID)
	}
	if n := ceremony.ApplyExplore(p, resp.JSON, e.cer.TopicCapacity, e.now()); n > 0 {
		log.Printf("[ceremony] %s: explored %d new topics", p.Name, n)
		e.bus.Publish(bus.Event{Kind: bus.PersonaUpdated, PersonaID: p.ID})
	}
	return nil
}

func (e *Engine) handleOneShot(resp entity.LLMResponse) error {
	e.notifyWaiter(resp.Request.ID, resp)
	e.bus.Publish(bus.Event{Kind: bus.OneShotResult, Detail: resp.Text})
	return nil
}

func (e *Engine) notifyWaiter(reqID string, resp entity.LLMResponse) {
	if ch, ok := e.waiters[reqID]; ok {
		delete(e.waiters, reqID)
		ch <- resp
	}
}

// maybeSeedExtraction checks the per-type cadence after an exchange and
// enqueues scan chains for whatever is due. Messages are flagged at
// schedule time so a slow chain cannot double-scan them.
func (e *Engine) maybeSeedExtraction(p *entity.Persona) {
	now := e.now()
	budget := e.tokenBudget()

	for _, dtype := range extraction.MessageTypes {
		unscanned := unscannedMessages(p, dtype)
		itemCount := len(extraction.Refs(e.store, p, dtype))
		if !extraction.ShouldSeed(dtype, now, e.store.LastSeeded(dtype), itemCount, len(unscanned)) {
			continue
		}

		context := p.ContextMessages(now)
		for _, batch := range extraction.ChunkMessages(context, unscanned, budget) {
			for _, req := range extraction.ScanRequests(p, batch, []string{dtype}, false) {
				e.enqueue(req)
			}
		}
		markScanned(p, dtype, unscanned)
		e.store.StampSeeded(dtype, now)
	}
}

func unscannedMessages(p *entity.Persona, dtype string) []entity.Message {
	var out []entity.Message
	for _, m := range p.Messages {
		if m.ContextStatus == entity.ContextNever {
			continue
		}
		if !m.Scanned[dtype] {
			out = append(out, m)
		}
	}
	return out
}

func markScanned(p *entity.Persona, dtype string, msgs []entity.Message) {
	ids := make(map[string]bool, len(msgs))
	for _, m := range msgs {
		ids[m.ID] = true
	}
	for i := range p.Messages {
		if !ids[p.Messages[i].ID] {
			continue
		}
		if p.Messages[i].Scanned == nil {
			p.Messages[i].Scanned = map[string]bool{}
		}
		p.Messages[i].Scanned[dtype] = true
	}
}
