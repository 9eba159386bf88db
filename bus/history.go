package bus

import (
	"github.com/gathering-ai/gathering/events"
)

// historyRing is a fixed-capacity buffer of recent events. Appending when
// full evicts the oldest entry.
type historyRing struct {
	buf  []events.Event
	next int
	size int
}

func newHistoryRing(capacity int) *historyRing {
	if capacity < 1 {
		capacity = 1
	}
	return &historyRing{buf: make([]events.Event, capacity)}
}

func (h *historyRing) append(evt events.Event) {
	h.buf[h.next] = evt
	h.next = (h.next + 1) % len(h.buf)
	if h.size < len(h.buf) {
		h.size++
	}
}

// snapshot returns the retained events in insertion order, oldest first.
func (h *historyRing) snapshot() []events.Event {
	out := make([]events.Event, 0, h.size)
	start := h.next - h.size
	if start < 0 {
		start += len(h.buf)
	}
	for i := 0; i < h.size; i++ {
		out = append(out, h.buf[(start+i)%len(h.buf)])
	}
	return out
}

func (h *historyRing) clear() {
	h.next = 0
	h.size = 0
}

func (h *historyRing) len() int {
	return h.size
}

// HistoryQuery narrows the result of Bus.History. The zero value returns
// the most recent DefaultHistoryLimit events of any kind.
type HistoryQuery struct {
	// Kind restricts results to a single event kind when non-empty.
	Kind events.Kind
	// Attrs holds attribute equality filters, e.g. {"circle_id": 1}.
	Attrs map[string]any
	// Limit caps the number of returned events; DefaultHistoryLimit when 0.
	Limit int
}

// DefaultHistoryLimit is the cap applied to history queries that do not
// specify one.
const DefaultHistoryLimit = 100

// History returns retained events matching the query, most recent first.
func (b *Bus) History(q HistoryQuery) []events.Event {
	b.mu.RLock()
	all := b.history.snapshot()
	b.mu.RUnlock()

	matched := all[:0]
	for _, evt := range all {
		if q.Kind != "" && evt.Kind != q.Kind {
			continue
		}
		if len(q.Attrs) > 0 && !evt.Matches(q.Attrs) {
			continue
		}
		matched = append(matched, evt)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}

	// Most recent first.
	out := make([]events.Event, len(matched))
	for i, evt := range matched {
		out[len(matched)-1-i] = evt
	}
	return out
}

// ClearHistory drops all retained events without touching subscriptions,
// dedup state, or counters.
func (b *Bus) ClearHistory() {
	b.mu.Lock()
	b.history.clear()
	b.mu.Unlock()
}
