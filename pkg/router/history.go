package router

import (
	"sync"

	"github.com/Mindburn-Labs/mirrornode/pkg/events"
)

// DefaultHistorySize is the router's history capacity when none is given.
const DefaultHistorySize = 1000

// History is a bounded FIFO of dispatched events. Appending to a full history
// evicts the oldest entry.
type History struct {
	mu    sync.RWMutex
	buf   []*events.Event
	start int
	n     int
}

func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &History{buf: make([]*events.Event, capacity)}
}

func (h *History) Append(e *events.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.n < len(h.buf) {
		h.buf[(h.start+h.n)%len(h.buf)] = e
		h.n++
		return
	}
	h.buf[h.start] = e
	h.start = (h.start + 1) % len(h.buf)
}

// Recent returns the last limit events, oldest first. limit <= 0 or beyond
// the current size returns everything.
func (h *History) Recent(limit int) []*events.Event {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if limit <= 0 || limit > h.n {
		limit = h.n
	}
	out := make([]*events.Event, 0, limit)
	for i := h.n - limit; i < h.n; i++ {
		out = append(out, h.buf[(h.start+i)%len(h.buf)])
	}
	return out
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.n
}

func (h *History) Cap() int { return len(h.buf) }
