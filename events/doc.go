// Package events defines the domain events that flow through the GatheRing
// platform: the Event record itself, the closed Kind taxonomy, structured
// filter predicates, and the canonical wire encoding sent to real-time
// clients.
//
// Design decisions:
//   - Immutable records: an Event is fully populated at construction and
//     never mutated afterwards; subscribers receive it by value
//   - Closed taxonomy: Kind is a string enumeration organized by domain
//     (agent.*, memory.*, circle.*, task.*, conversation.*, system.*)
//   - Optional correlation: source agent, circle, and project ids are
//     pointers so absence survives the JSON round-trip as null
//   - Efficient JSON: wire messages are built incrementally with sjson on
//     top of pre-allocated seeds, payloads marshal through goccy/go-json
//   - Structured filters: common subscription criteria (by source, by
//     circle, by kind set) are first-class predicates, with arbitrary
//     closures as the escape hatch
//
// Example usage:
//
//	evt := events.New(events.TaskCompleted,
//	    map[string]any{"task_id": 123, "result": "success"},
//	    events.WithSource(1),
//	    events.WithCircle(4),
//	)
//
//	msg, err := evt.WireMessage()
//	if err != nil {
//	    return err
//	}
//	// msg: {"type":"task.completed","data":{...},...}
package events
