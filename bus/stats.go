package bus

// Stats is a point-in-time snapshot of the bus's monotonic counters and
// derived metrics. Intended to be exposed read-only by a status endpoint.
type Stats struct {
	EventsPublished    int64 `json:"events_published"`
	EventsDelivered    int64 `json:"events_delivered"`
	EventsDeduplicated int64 `json:"events_deduplicated"`
	HandlerErrors      int64 `json:"handler_errors"`
	ActiveSubscribers  int   `json:"active_subscribers"`
	HistorySize        int   `json:"history_size"`
}

// Stats returns a snapshot of the bus's counters.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	active := 0
	for _, om := range b.registry {
		active += om.Len()
	}
	historySize := b.history.len()
	b.mu.RUnlock()

	return Stats{
		EventsPublished:    b.published.Load(),
		EventsDelivered:    b.delivered.Load(),
		EventsDeduplicated: b.deduplicated.Load(),
		HandlerErrors:      b.handlerErrors.Load(),
		ActiveSubscribers:  active,
		HistorySize:        historySize,
	}
}
