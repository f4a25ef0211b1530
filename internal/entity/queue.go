package entity

import "time"

// DefaultMaxAttempts is the retry budget before a request is dead-lettered.
const DefaultMaxAttempts = 3

// Queue states reported by Status.
const (
	QueueIdle   = "idle"
	QueueBusy   = "busy"
	QueuePaused = "paused"
)

// JobQueue is a priority-ordered multiset of pending model calls, owned by
// the Store. Claims are single-flight: at most one request is ever in the
// processing state.
type JobQueue struct {
	Items       []*LLMRequest `json:"items"`
	Dead        []*LLMRequest `json:"dead,omitempty"`
	Paused      bool          `json:"paused,omitempty"`
	MaxAttempts int           `json:"maxAttempts"`
}

// NewJobQueue returns an empty queue with the default retry budget.
func NewJobQueue() *JobQueue {
	return &JobQueue{Items: []*LLMRequest{}, MaxAttempts: DefaultMaxAttempts}
}

// Enqueue assigns the request an id, stamps it, and appends it in FIFO
// position within its priority tier.
func (q *JobQueue) Enqueue(req *LLMRequest) string {
	req.ID = ensureID(req.ID)
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}
	req.Attempts = 0
	req.State = StatePending
	q.Items = append(q.Items, req)
	return req.ID
}

// ClaimHighest atomically selects the highest-priority pending request,
// marks it processing and returns it. It returns nil while the queue is
// paused, empty, or another request is already claimed.
func (q *JobQueue) ClaimHighest() *LLMRequest {
	if q.Paused || q.hasProcessing() {
		return nil
	}
	var best *LLMRequest
	for _, item := range q.Items {
		if item.State != StatePending {
			continue
		}
		if best == nil || item.Priority < best.Priority {
			best = item
		}
	}
	if best == nil {
		return nil
	}
	best.State = StateProcessing
	return best
}

// Complete removes a finished request from the queue.
func (q *JobQueue) Complete(id string) bool {
	for i, item := range q.Items {
		if item.ID == id {
			q.Items = append(q.Items[:i], q.Items[i+1:]...)
			return true
		}
	}
	return false
}

// Fail releases a claimed request back to pending, incrementing its
// attempt count. Past the retry budget the request is moved to the
// dead-letter list instead. Reports whether the request was dead-lettered.
func (q *JobQueue) Fail(id string) bool {
	for i, item := range q.Items {
		if item.ID != id {
			continue
		}
		item.Attempts++
		item.State = StatePending
		if item.Attempts >= q.maxAttempts() {
			item.State = StateDead
			q.Items = append(q.Items[:i], q.Items[i+1:]...)
			q.Dead = append(q.Dead, item)
			return true
		}
		return false
	}
	return false
}

// Release returns a claimed request to pending without counting an
// attempt. Used when a claim could not be started at all.
func (q *JobQueue) Release(id string) {
	for _, item := range q.Items {
		if item.ID == id && item.State == StateProcessing {
			item.State = StatePending
			return
		}
	}
}

// Pause stops future claims. Already-claimed work is unaffected.
func (q *JobQueue) Pause() { q.Paused = true }

// Resume re-enables claims.
func (q *JobQueue) Resume() { q.Paused = false }

// ClearForPersona drops all pending (unclaimed) requests tagged with the
// persona and returns how many were removed.
func (q *JobQueue) ClearForPersona(personaID string) int {
	kept := q.Items[:0]
	removed := 0
	for _, item := range q.Items {
		if item.PersonaID == personaID && item.State == StatePending {
			removed++
			continue
		}
		kept = append(kept, item)
	}
	q.Items = kept
	return removed
}

// Pending counts unclaimed requests.
func (q *JobQueue) Pending() int {
	n := 0
	for _, item := range q.Items {
		if item.State == StatePending {
			n++
		}
	}
	return n
}

// Len counts live (non-dead) requests, claimed or not.
func (q *JobQueue) Len() int { return len(q.Items) }

// Empty reports whether no live work remains.
func (q *JobQueue) Empty() bool { return len(q.Items) == 0 }

// Status summarizes the queue for observers: paused wins over busy,
// busy over idle.
func (q *JobQueue) Status() string {
	if q.Paused {
		return QueuePaused
	}
	if q.hasProcessing() || q.Pending() > 0 {
		return QueueBusy
	}
	return QueueIdle
}

func (q *JobQueue) hasProcessing() bool {
	for _, item := range q.Items {
		if item.State == StateProcessing {
			return true
		}
	}
	return false
}

func (q *JobQueue) maxAttempts() int {
	if q.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return q.MaxAttempts
}
