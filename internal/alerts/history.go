package alerts

import "sync"

// HistoryCapacity bounds each rule's outcome buffer.
const HistoryCapacity = 100

type ring struct {
	mu         sync.Mutex
	buf        [HistoryCapacity]bool
	start      int
	size       int
	lastSample string
}

func (r *ring) push(v bool) {
	if r.size < HistoryCapacity {
		r.buf[(r.start+r.size)%HistoryCapacity] = v
		r.size++
		return
	}
	r.buf[r.start] = v
	r.start = (r.start + 1) % HistoryCapacity
}

// tail copies the last n outcomes, oldest first.
func (r *ring) tail(n int) []bool {
	if n > r.size {
		n = r.size
	}
	if n < 0 {
		n = 0
	}
	out := make([]bool, n)
	off := r.size - n
	for i := 0; i < n; i++ {
		out[i] = r.buf[(r.start+off+i)%HistoryCapacity]
	}
	return out
}

// History keeps per-rule violation outcomes in memory. It is not persisted:
// a restart starts every rule from an empty history.
type History struct {
	rules sync.Map // rule id -> *ring
}

func NewHistory() *History {
	return &History{}
}

func (h *History) ring(ruleID string) *ring {
	if v, ok := h.rules.Load(ruleID); ok {
		return v.(*ring)
	}
	v, _ := h.rules.LoadOrStore(ruleID, &ring{})
	return v.(*ring)
}

func (h *History) Record(ruleID string, violated bool) {
	if ruleID == "" {
		return
	}
	r := h.ring(ruleID)
	r.mu.Lock()
	r.push(violated)
	r.mu.Unlock()
}

// RecordOnce appends an outcome unless sampleID was the last sample recorded
// for the rule. It returns false when the outcome was skipped.
func (h *History) RecordOnce(ruleID, sampleID string, violated bool) bool {
	if ruleID == "" {
		return false
	}
	r := h.ring(ruleID)
	r.mu.Lock()
	defer r.mu.Unlock()
	if sampleID != "" && sampleID == r.lastSample {
		return false
	}
	r.lastSample = sampleID
	r.push(violated)
	return true
}

// Snapshot returns the full history for ruleID, oldest first.
func (h *History) Snapshot(ruleID string) []bool {
	v, ok := h.rules.Load(ruleID)
	if !ok {
		return nil
	}
	r := v.(*ring)
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tail(r.size)
}

func (h *History) Clear(ruleID string) {
	h.rules.Delete(ruleID)
}

func (h *History) Len(ruleID string) int {
	v, ok := h.rules.Load(ruleID)
	if !ok {
		return 0
	}
	r := v.(*ring)
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}
