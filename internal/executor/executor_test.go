package executor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/eidolabs/eidolon/internal/entity"
	"github.com/eidolabs/eidolon/internal/llm"
)

// stubClient returns canned text, optionally blocking until released or
// cancelled.
type stubClient struct {
	mu    sync.Mutex
	text  string
	err   error
	block chan struct{}
	calls []llm.CompletionRequest
}

func (c *stubClient) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	c.mu.Lock()
	c.calls = append(c.calls, req)
	block := c.block
	c.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return c.text, c.err
}

func waitResponse(t *testing.T, ch <-chan entity.LLMResponse) entity.LLMResponse {
	t.Helper()
	select {
	case resp := <-ch:
		return resp
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for executor callback")
		return entity.LLMResponse{}
	}
}

func TestStartDeliversResult(t *testing.T) {
	ex := New(&stubClient{text: "hello"})
	results := make(chan entity.LLMResponse, 1)

	req := &entity.LLMRequest{ID: "r1", Type: entity.RequestRaw, Prompt: "hi"}
	if err := ex.Start(req, func(r entity.LLMResponse) { results <- r }); err != nil {
		t.Fatalf("Start: %v", err)
	}

	resp := waitResponse(t, results)
	if !resp.OK || resp.Text != "hello" {
		t.Errorf("resp = %+v, want OK text hello", resp)
	}
	if ex.Busy() {
		t.Error("executor still busy after callback")
	}
}

func TestStartWhileBusy(t *testing.T) {
	client := &stubClient{text: "x", block: make(chan struct{})}
	ex := New(client)
	results := make(chan entity.LLMResponse, 2)

	if err := ex.Start(&entity.LLMRequest{ID: "r1", Type: entity.RequestRaw}, func(r entity.LLMResponse) { results <- r }); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := ex.Start(&entity.LLMRequest{ID: "r2", Type: entity.RequestRaw}, func(r entity.LLMResponse) { results <- r }); err != ErrBusy {
		t.Errorf("second Start = %v, want ErrBusy", err)
	}

	close(client.block)
	waitResponse(t, results)
}

func TestAbortMarksResponse(t *testing.T) {
	client := &stubClient{text: "never", block: make(chan struct{})}
	ex := New(client)
	results := make(chan entity.LLMResponse, 1)

	req := &entity.LLMRequest{ID: "r1", Type: entity.RequestResponse}
	if err := ex.Start(req, func(r entity.LLMResponse) { results <- r }); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ex.Abort()

	resp := waitResponse(t, results)
	if !resp.Aborted {
		t.Errorf("resp = %+v, want Aborted", resp)
	}
	if resp.OK {
		t.Error("aborted response marked OK")
	}
	if ex.Busy() {
		t.Error("executor busy after abort")
	}
}

func TestAbortWithNothingInFlight(t *testing.T) {
	ex := New(&stubClient{})
	ex.Abort() // must not panic
}

func TestNoMessageSentinelGoesSilent(t *testing.T) {
	ex := New(&stubClient{text: llm.NoMessageSentinel})
	results := make(chan entity.LLMResponse, 1)

	req := &entity.LLMRequest{ID: "r1", Type: entity.RequestResponse}
	if err := ex.Start(req, func(r entity.LLMResponse) { results <- r }); err != nil {
		t.Fatalf("Start: %v", err)
	}
	resp := waitResponse(t, results)
	if !resp.OK || !resp.Silent || resp.Text != "" {
		t.Errorf("resp = %+v, want OK silent empty", resp)
	}
}

func TestJSONRequestParsesOutput(t *testing.T) {
	ex := New(&stubClient{text: "```json\n{\"id\": \"new\"}\n```"})
	results := make(chan entity.LLMResponse, 1)

	req := &entity.LLMRequest{ID: "r1", Type: entity.RequestJSON}
	if err := ex.Start(req, func(r entity.LLMResponse) { results <- r }); err != nil {
		t.Fatalf("Start: %v", err)
	}
	resp := waitResponse(t, results)
	if !resp.OK {
		t.Fatalf("resp = %+v, want OK", resp)
	}
	obj, ok := resp.JSON.(map[string]any)
	if !ok || obj["id"] != "new" {
		t.Errorf("JSON = %v", resp.JSON)
	}
}

func TestJSONRequestMalformedOutput(t *testing.T) {
	ex := New(&stubClient{text: "I could not produce JSON"})
	results := make(chan entity.LLMResponse, 1)

	req := &entity.LLMRequest{ID: "r1", Type: entity.RequestJSON}
	if err := ex.Start(req, func(r entity.LLMResponse) { results <- r }); err != nil {
		t.Fatalf("Start: %v", err)
	}
	resp := waitResponse(t, results)
	if resp.OK || resp.Err == "" {
		t.Errorf("resp = %+v, want failure with error", resp)
	}
}
