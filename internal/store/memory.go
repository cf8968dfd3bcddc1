package store

import (
	"sync"

	"github.com/devaloi/roomrelay/internal/domain"
)

// DefaultHistoryLimit is the number of entries retained per room.
const DefaultHistoryLimit = 200

// ring is a fixed-capacity FIFO of entries.
type ring struct {
	buf   []domain.Entry
	start int
	n     int
}

func (r *ring) push(e domain.Entry) (evicted bool) {
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = e
		r.n++
		return false
	}
	r.buf[r.start] = e
	r.start = (r.start + 1) % len(r.buf)
	return true
}

func (r *ring) last(limit int) []domain.Entry {
	if limit > r.n {
		limit = r.n
	}
	if limit < 0 {
		limit = 0
	}
	out := make([]domain.Entry, limit)
	first := r.start + r.n - limit
	for i := range out {
		out[i] = r.buf[(first+i)%len(r.buf)]
	}
	return out
}

// MemoryHistory implements History with one ring buffer per room. Rooms are
// created on first append and never removed.
type MemoryHistory struct {
	mu     sync.RWMutex
	rooms  map[string]*ring
	limit  int
	onTrim func(room string)
}

// NewMemoryHistory creates a history store keeping limit entries per room.
// A non-positive limit falls back to DefaultHistoryLimit.
func NewMemoryHistory(limit int) *MemoryHistory {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &MemoryHistory{
		rooms: make(map[string]*ring),
		limit: limit,
	}
}

// OnTrim registers a callback invoked each time an entry is evicted.
func (h *MemoryHistory) OnTrim(fn func(room string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onTrim = fn
}

// Append adds an entry to the room's log.
func (h *MemoryHistory) Append(room string, e domain.Entry) {
	h.mu.Lock()
	r, ok := h.rooms[room]
	if !ok {
		r = &ring{buf: make([]domain.Entry, h.limit)}
		h.rooms[room] = r
	}
	evicted := r.push(e)
	onTrim := h.onTrim
	h.mu.Unlock()

	if evicted && onTrim != nil {
		onTrim(room)
	}
}

// Recent returns up to limit most recent entries, oldest first. The result
// is never nil.
func (h *MemoryHistory) Recent(room string, limit int) []domain.Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.rooms[room]
	if !ok {
		return []domain.Entry{}
	}
	return r.last(limit)
}

// Len returns the number of retained entries for a room.
func (h *MemoryHistory) Len(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if r, ok := h.rooms[room]; ok {
		return r.n
	}
	return 0
}

// Rooms returns the keys of all rooms that have history.
func (h *MemoryHistory) Rooms() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	keys := make([]string, 0, len(h.rooms))
	for k := range h.rooms {
		keys = append(keys, k)
	}
	return keys
}
