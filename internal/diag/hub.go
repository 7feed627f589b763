// Package diag collects diagnostics emitted by the engine: lifecycle changes,
// registry changes, handler failures and queue pressure. The most recent
// diagnostics are kept in a ring buffer for late readers.
package diag

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Diagnostic kinds published by the engine.
const (
	KindStateChanged        = "state.changed"
	KindHandlerRegistered   = "handler.registered"
	KindHandlerUnregistered = "handler.unregistered"
	KindHandlerFailed       = "handler.failed"
	KindQueueOverflow       = "queue.overflow"
	KindQueueCleared        = "queue.cleared"
	KindStatsReset          = "stats.reset"
)

// DefaultCapacity is used when NewHub is given a non-positive capacity.
const DefaultCapacity = 100

type Diagnostic struct {
	ID   int64     `json:"id"`
	Kind string    `json:"kind"`
	At   time.Time `json:"at"`
	Data []byte    `json:"data"` // JSON payload
}

// Hub is an in-memory pub/sub with a small ring buffer for late readers.
// Unlike the engine it is safe for concurrent use, so a reader may watch
// diagnostics from another goroutine.
type Hub struct {
	nextID atomic.Int64

	mu    sync.Mutex
	ring  []Diagnostic
	start int
	size  int

	subs      map[int]chan Diagnostic
	nextSubID int
}

func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Hub{
		ring: make([]Diagnostic, capacity),
		subs: make(map[int]chan Diagnostic),
	}
}

// Publish records a diagnostic. A nil hub discards it.
func (h *Hub) Publish(kind string, data any) {
	if h == nil {
		return
	}
	id := h.nextID.Add(1)

	payload := []byte("{}")
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			payload = b
		}
	}

	d := Diagnostic{
		ID:   id,
		Kind: kind,
		At:   time.Now().UTC(),
		Data: payload,
	}

	h.mu.Lock()
	h.pushLocked(d)
	for _, ch := range h.subs {
		// Don't let slow readers block the dispatch loop.
		select {
		case ch <- d:
		default:
		}
	}
	h.mu.Unlock()
}

// Subscribe returns a channel of diagnostics published from now on and a
// cancel func that closes it. A full channel drops diagnostics.
func (h *Hub) Subscribe() (<-chan Diagnostic, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextSubID
	h.nextSubID++
	ch := make(chan Diagnostic, 128)
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
		h.mu.Unlock()
	}

	return ch, cancel
}

// SnapshotSince returns buffered diagnostics with ID > lastID, oldest-first.
// If lastID is 0, the full ring buffer snapshot is returned.
func (h *Hub) SnapshotSince(lastID int64) []Diagnostic {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Diagnostic, 0, h.size)
	for i := 0; i < h.size; i++ {
		d := h.ring[(h.start+i)%len(h.ring)]
		if lastID == 0 || d.ID > lastID {
			out = append(out, d)
		}
	}
	return out
}

// Count returns how many buffered diagnostics have the given kind.
func (h *Hub) Count(kind string) int {
	n := 0
	for _, d := range h.SnapshotSince(0) {
		if d.Kind == kind {
			n++
		}
	}
	return n
}

func (h *Hub) pushLocked(d Diagnostic) {
	capacity := len(h.ring)
	if capacity == 0 {
		return
	}

	if h.size < capacity {
		idx := (h.start + h.size) % capacity
		h.ring[idx] = d
		h.size++
		return
	}

	// Overwrite oldest.
	h.ring[h.start] = d
	h.start = (h.start + 1) % capacity
}
