// Package history implements the bounded per-channel chat log.
package history

// Default capacities. Direct-message histories keep fewer entries than the
// group room.
const (
	PairCapacity  = 100
	GroupCapacity = 255
)

// Entry is one stored chat line. Immutable once appended.
type Entry struct {
	Origin  []byte
	Content []byte
}

// History is a fixed-capacity ring of entries for a single channel. When
// full, an append overwrites the oldest entry. History is not safe for
// concurrent use; the owning channel serializes access.
type History struct {
	name    string
	entries []Entry
	next    int // insertion cursor, wraps modulo capacity
	count   int // saturates at capacity
}

// New returns an empty history. Capacity is clamped to 1..255 so the
// readable window always fits behind a one-byte entry count.
func New(name string, capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	if capacity > 255 {
		capacity = 255
	}
	return &History{
		name:    name,
		entries: make([]Entry, capacity),
	}
}

// Name returns the channel name this history belongs to.
func (h *History) Name() string {
	return h.name
}

// Cap returns the fixed capacity.
func (h *History) Cap() int {
	return len(h.entries)
}

// Len returns the number of readable entries, at most Cap.
func (h *History) Len() int {
	return h.count
}

// Append stores an entry, evicting the oldest when full.
func (h *History) Append(e Entry) {
	c := len(h.entries)
	h.entries[h.next%c] = e
	h.next++
	if h.count < c {
		h.count++
	}
}

// Entries returns the readable window oldest to newest. The returned slice
// is freshly allocated; the entries themselves are shared.
func (h *History) Entries() []Entry {
	c := len(h.entries)
	out := make([]Entry, 0, h.count)
	for i := h.next - h.count; i < h.next; i++ {
		out = append(out, h.entries[i%c])
	}
	return out
}
