// Package executor runs at most one model call at a time. Its busy-check
// is what enforces the system-wide single-flight guarantee.
package executor

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/eidolabs/eidolon/internal/entity"
	"github.com/eidolabs/eidolon/internal/llm"
)

// ErrBusy means Start was called while a job was in flight. That is a
// programming error in the caller, not a recoverable condition.
var ErrBusy = fmt.Errorf("executor busy")

// Executor holds exactly one in-flight job and always resolves its
// callback exactly once, success or failure, including on abort.
type Executor struct {
	client llm.Client

	mu      sync.Mutex
	busy    bool
	cancel  context.CancelFunc
	current *entity.LLMRequest
}

// New creates an executor over the given model client.
func New(client llm.Client) *Executor {
	return &Executor{client: client}
}

// Busy reports whether a job is in flight.
func (e *Executor) Busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.busy
}

// Current returns the in-flight request, if any.
func (e *Executor) Current() *entity.LLMRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// Start launches the request and delivers the outcome through done.
// It fails immediately with ErrBusy when a job is already in flight.
func (e *Executor) Start(req *entity.LLMRequest, done func(entity.LLMResponse)) error {
	e.mu.Lock()
	if e.busy {
		e.mu.Unlock()
		return ErrBusy
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.busy = true
	e.cancel = cancel
	e.current = req
	e.mu.Unlock()

	go e.run(ctx, req, done)
	return nil
}

// Abort cancels the in-flight call, if any. The callback still fires,
// carrying the aborted marker so callers can tell cancellation from model
// failure. Queued-but-unclaimed jobs are unaffected.
func (e *Executor) Abort() {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (e *Executor) run(ctx context.Context, req *entity.LLMRequest, done func(entity.LLMResponse)) {
	resp := entity.LLMResponse{Request: req}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("[executor] recovered panic in model call: %v", r)
			resp = entity.LLMResponse{Request: req, Err: fmt.Sprintf("panic: %v", r)}
		}
		e.mu.Lock()
		e.busy = false
		e.cancel = nil
		e.current = nil
		e.mu.Unlock()
		done(resp)
	}()

	text, err := e.client.Complete(ctx, llm.CompletionRequest{
		System: req.System,
		User:   req.Prompt,
		Model:  req.Model,
		JSON:   req.Type == entity.RequestJSON,
	})
	if err != nil {
		if ctx.Err() == context.Canceled {
			resp.Aborted = true
			resp.Err = "aborted"
			return
		}
		resp.Err = err.Error()
		return
	}

	resp.Text = text
	switch req.Type {
	case entity.RequestJSON:
		parsed, perr := llm.RepairJSON(text)
		if perr != nil {
			resp.Err = perr.Error()
			return
		}
		resp.JSON = parsed
	case entity.RequestResponse:
		if isNoMessage(text) {
			resp.Silent = true
			resp.Text = ""
		}
	}
	resp.OK = true
}

func isNoMessage(text string) bool {
	return text == llm.NoMessageSentinel
}
