package entity

import "testing"

func enqueueStep(q *JobQueue, step Step, prio Priority) *LLMRequest {
	req := &LLMRequest{Type: RequestRaw, Step: step, Priority: prio}
	q.Enqueue(req)
	return req
}

func TestClaimHighestPriorityThenFIFO(t *testing.T) {
	q := NewJobQueue()
	low := enqueueStep(q, StepScan, PriorityLow)
	first := enqueueStep(q, StepPersonaReply, PriorityHigh)
	second := enqueueStep(q, StepPersonaReply, PriorityHigh)
	_ = low

	got := q.ClaimHighest()
	if got == nil || got.ID != first.ID {
		t.Fatalf("first claim = %v, want high-priority FIFO head %s", got, first.ID)
	}
	if got.State != StateProcessing {
		t.Errorf("claimed state = %q, want %q", got.State, StateProcessing)
	}
	q.Complete(got.ID)

	got = q.ClaimHighest()
	if got == nil || got.ID != second.ID {
		t.Fatalf("second claim = %v, want %s", got, second.ID)
	}
}

func TestClaimSingleFlight(t *testing.T) {
	q := NewJobQueue()
	enqueueStep(q, StepScan, PriorityNormal)
	enqueueStep(q, StepScan, PriorityNormal)

	if q.ClaimHighest() == nil {
		t.Fatal("first claim returned nil")
	}
	if got := q.ClaimHighest(); got != nil {
		t.Errorf("claim with one processing = %v, want nil", got)
	}
}

func TestClaimWhilePaused(t *testing.T) {
	q := NewJobQueue()
	enqueueStep(q, StepScan, PriorityNormal)
	q.Pause()
	if got := q.ClaimHighest(); got != nil {
		t.Errorf("claim while paused = %v, want nil", got)
	}
	q.Resume()
	if q.ClaimHighest() == nil {
		t.Error("claim after resume returned nil")
	}
}

func TestFailDeadLettersAfterBudget(t *testing.T) {
	q := NewJobQueue()
	req := enqueueStep(q, StepScan, PriorityNormal)

	for i := 0; i < DefaultMaxAttempts-1; i++ {
		if q.ClaimHighest() == nil {
			t.Fatalf("claim %d returned nil", i)
		}
		if q.Fail(req.ID) {
			t.Fatalf("dead-lettered on attempt %d, want retry", i+1)
		}
		if req.State != StatePending {
			t.Fatalf("state after fail %d = %q, want pending", i+1, req.State)
		}
	}

	q.ClaimHighest()
	if !q.Fail(req.ID) {
		t.Fatal("final Fail = false, want dead-lettered")
	}
	if len(q.Items) != 0 {
		t.Errorf("items after dead-letter = %d, want 0", len(q.Items))
	}
	if len(q.Dead) != 1 || q.Dead[0].State != StateDead {
		t.Errorf("dead list = %+v, want one dead request", q.Dead)
	}
}

func TestReleaseDoesNotCountAttempt(t *testing.T) {
	q := NewJobQueue()
	req := enqueueStep(q, StepScan, PriorityNormal)
	q.ClaimHighest()
	q.Release(req.ID)
	if req.State != StatePending {
		t.Errorf("state after release = %q, want pending", req.State)
	}
	if req.Attempts != 0 {
		t.Errorf("attempts after release = %d, want 0", req.Attempts)
	}
}

func TestClearForPersona(t *testing.T) {
	q := NewJobQueue()
	keep := enqueueStep(q, StepScan, PriorityNormal)
	drop := &LLMRequest{Type: RequestJSON, Step: StepScan, PersonaID: "p1"}
	q.Enqueue(drop)
	claimed := &LLMRequest{Type: RequestJSON, Step: StepMatch, PersonaID: "p1"}
	q.Enqueue(claimed)
	q.Items[2].State = StateProcessing

	removed := q.ClearForPersona("p1")
	if removed != 1 {
		t.Errorf("removed = %d, want 1 (claimed work stays)", removed)
	}
	ids := map[string]bool{}
	for _, item := range q.Items {
		ids[item.ID] = true
	}
	if !ids[keep.ID] || !ids[claimed.ID] || ids[drop.ID] {
		t.Errorf("remaining items wrong: %v", ids)
	}
}

func TestQueueStatus(t *testing.T) {
	q := NewJobQueue()
	if got := q.Status(); got != QueueIdle {
		t.Errorf("empty queue status = %q, want idle", got)
	}
	enqueueStep(q, StepScan, PriorityNormal)
	q.ClaimHighest()
	if got := q.Status(); got != QueueBusy {
		t.Errorf("status with processing item = %q, want busy", got)
	}
	q.Pause()
	if got := q.Status(); got != QueuePaused {
		t.Errorf("paused status = %q, want paused", got)
	}
}
