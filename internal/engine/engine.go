// Package engine is the top-level driver: a fixed-cadence run loop that
// feeds the executor from the job queue, fires persona heartbeats,
// auto-checkpoints, triggers the nightly ceremony, and routes completed
// jobs to their handlers. All store mutation happens on the loop
// goroutine.
package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	rcron "github.com/robfig/cron/v3"

	"github.com/eidolabs/eidolon/internal/bus"
	"github.com/eidolabs/eidolon/internal/ceremony"
	"github.com/eidolabs/eidolon/internal/checkpoint"
	"github.com/eidolabs/eidolon/internal/config"
	"github.com/eidolabs/eidolon/internal/entity"
	"github.com/eidolabs/eidolon/internal/executor"
	"github.com/eidolabs/eidolon/internal/llm"
)

const noMessageMarker = llm.NoMessageSentinel

// Engine owns the store and serializes every mutation onto its run loop.
type Engine struct {
	cfg   *config.Config
	store *entity.Store
	bus   *bus.Bus
	exec  *executor.Executor
	ckpt  *checkpoint.Manager
	cer   *ceremony.Orchestrator
	cron  *rcron.Cron

	cmds    chan func()
	results chan entity.LLMResponse
	done    chan struct{}

	handlers map[entity.Step]handlerFunc

	// oneshot waiters, keyed by request id. Loop-goroutine only.
	waiters map[string]chan entity.LLMResponse

	lastAutoSave time.Time
	lastQueueEvt string

	// now is injectable for tests.
	now func() time.Time
}

// New assembles an engine. The store comes in already loaded (from a
// snapshot or Bootstrap); the engine owns it from here on.
func New(cfg *config.Config, store *entity.Store, client llm.Client, ckpt *checkpoint.Manager, b *bus.Bus) *Engine {
	if b == nil {
		b = bus.NewBus(cfg.Engine.BusBufSize)
	}
	store.Queue.MaxAttempts = cfg.Engine.MaxAttempts

	e := &Engine{
		cfg:     cfg,
		store:   store,
		bus:     b,
		exec:    executor.New(client),
		ckpt:    ckpt,
		cer:     ceremony.New(cfg.Ceremony.TopicCapacity, cfg.Ceremony.DecayRate, cfg.Ceremony.Time),
		cmds:    make(chan func(), 64),
		results: make(chan entity.LLMResponse, 8),
		done:    make(chan struct{}),
		waiters: map[string]chan entity.LLMResponse{},
		now:     time.Now,
	}
	e.handlers = e.dispatchTable()
	return e
}

// Bus exposes the notification stream.
func (e *Engine) Bus() *bus.Bus { return e.bus }

// Run drives the loop until ctx is cancelled, then drains: abort any
// in-flight call, write a final checkpoint, refuse further ticks.
func (e *Engine) Run(ctx context.Context) error {
	e.startCeremonyCron()

	tick := time.Duration(e.cfg.Engine.TickMs) * time.Millisecond
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	e.lastAutoSave = e.now()
	log.Printf("[engine] running: tick=%s personas=%d", tick, len(e.store.Personas))

	for {
		select {
		case <-ctx.Done():
			return e.shutdown()
		case fn := <-e.cmds:
			fn()
		case resp := <-e.results:
			e.dispatch(resp)
		case <-ticker.C:
			e.tick(e.now())
		}
	}
}

// startCeremonyCron arms the ceremony due flag at the configured time of
// day. The tick still gates the actual start on an empty queue.
func (e *Engine) startCeremonyCron() {
	hour, minute, ok := parseHHMM(e.cfg.Ceremony.Time)
	if !ok {
		log.Printf("[engine] invalid ceremony time %q, relying on clock check", e.cfg.Ceremony.Time)
		return
	}
	e.cron = rcron.New()
	expr := fmt.Sprintf("%d %d * * *", minute, hour)
	if _, err := e.cron.AddFunc(expr, func() {
		// Arm on the loop goroutine.
		select {
		case e.cmds <- func() { e.cer.Arm() }:
		case <-e.done:
		}
	}); err != nil {
		log.Printf("[engine] ceremony cron register error: %v", err)
		return
	}
	e.cron.Start()
}

// tick performs one scheduler pass. Order matters: claim first so work
// enqueued by this very tick never observes a stale idle executor.
func (e *Engine) tick(now time.Time) {
	// 1. Feed the executor.
	if !e.exec.Busy() {
		if req := e.store.Queue.ClaimHighest(); req != nil {
			e.startJob(req)
		}
	}

	// 2. Heartbeats. LastActivity is stamped before the job is issued;
	// stamping after would leave the condition true for many ticks and
	// enqueue duplicates.
	for _, p := range e.store.Personas {
		if !p.HeartbeatDue(now) {
			continue
		}
		p.LastActivity = now
		p.LastHeartbeat = now
		e.enqueue(e.buildHeartbeatRequest(p, now))
	}

	// 3. Auto-checkpoint.
	interval := time.Duration(e.cfg.Engine.AutoSaveMinutes) * time.Minute
	if now.Sub(e.lastAutoSave) >= interval {
		e.lastAutoSave = now
		e.autoCheckpoint(now)
	}

	// 4. Ceremony.
	queueEmpty := e.store.Queue.Empty() && !e.exec.Busy()
	if e.cer.ShouldStart(now, e.store.LastCeremony, queueEmpty) {
		e.cer.Begin(e.store, e.enqueue, e.tokenBudget(), now)
	}

	e.publishQueueState()
}

func (e *Engine) startJob(req *entity.LLMRequest) {
	err := e.exec.Start(req, func(resp entity.LLMResponse) {
		select {
		case e.results <- resp:
		case <-e.done:
		}
	})
	if err != nil {
		// Busy executor here is a tick-ordering bug; surface it loudly
		// but release the claim so the job is not lost.
		log.Printf("[engine] start job %s: %v", req.ID, err)
		e.store.Queue.Release(req.ID)
		return
	}
	if req.Step == entity.StepPersonaReply {
		e.bus.Publish(bus.Event{Kind: bus.MessageProcessing, PersonaID: req.PersonaID})
	}
}

// enqueue adds a request to the queue and notifies observers.
func (e *Engine) enqueue(req *entity.LLMRequest) {
	e.store.Queue.Enqueue(req)
	e.bus.Publish(bus.Event{Kind: bus.MessageQueued, PersonaID: req.PersonaID, Detail: string(req.Step)})
}

func (e *Engine) autoCheckpoint(now time.Time) {
	e.bus.Publish(bus.Event{Kind: bus.CheckpointStart})
	if err := e.ckpt.AutoCheckpoint(e.store, now); err != nil {
		// A failed auto-save must not stop the loop; the next interval
		// retries.
		log.Printf("[engine] auto checkpoint error: %v", err)
		e.bus.Error(checkpoint.CodeSaveFailed, err.Error())
		return
	}
	if err := e.ckpt.SaveState(e.store, now); err != nil {
		log.Printf("[engine] state save error: %v", err)
		e.bus.Error(checkpoint.CodeSaveFailed, err.Error())
		return
	}
	e.bus.Publish(bus.Event{Kind: bus.CheckpointCreated})
}

func (e *Engine) publishQueueState() {
	state := e.store.Queue.Status()
	if e.exec.Busy() && state == entity.QueueIdle {
		state = entity.QueueBusy
	}
	if state != e.lastQueueEvt {
		e.lastQueueEvt = state
		e.bus.Publish(bus.Event{Kind: bus.QueueState, Detail: state})
	}
}

func (e *Engine) tokenBudget() int {
	return e.cfg.TokenBudgetFor(e.cfg.Provider.Model)
}

func (e *Engine) shutdown() error {
	log.Printf("[engine] shutting down")
	close(e.done)
	if e.cron != nil {
		e.cron.Stop()
	}
	e.exec.Abort()
	now := e.now()
	if err := e.ckpt.SaveState(e.store, now); err != nil {
		log.Printf("[engine] final state save error: %v", err)
	}
	if err := e.ckpt.AutoCheckpoint(e.store, now); err != nil {
		log.Printf("[engine] final checkpoint error: %v", err)
	}
	log.Printf("[engine] shutdown complete")
	return nil
}

// do runs fn on the loop goroutine and waits for it. Every command-surface
// method funnels through here so the store has exactly one mutating
// context.
func (e *Engine) do(fn func() error) error {
	result := make(chan error, 1)
	select {
	case e.cmds <- func() { result <- fn() }:
	case <-e.done:
		return coded(CodeNotRunning, "engine stopped")
	}
	select {
	case err := <-result:
		return err
	case <-e.done:
		return coded(CodeNotRunning, "engine stopped")
	}
}

func parseHHMM(s string) (int, int, bool) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, 0, false
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, false
	}
	return h, m, true
}
