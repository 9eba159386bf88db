// Package bus implements the in-process publish/subscribe core that
// distributes domain events between the platform's components. Producers
// publish events.Event values; subscribers register handlers per event
// kind and react asynchronously.
//
// Design decisions:
//   - Explicit construction: the bus is an injected dependency owned by
//     the application root, never a process-wide singleton
//   - Barrier publish: Publish returns only after the complete fan-out
//     for that event has finished, so a sequential producer observes
//     strict event-by-event ordering
//   - Bounded concurrency: every handler invocation, across all
//     concurrent Publish calls, acquires a permit from one shared
//     limiter before running
//   - Failure isolation: a panicking or failing handler is logged and
//     counted, and never affects sibling handlers or the publisher
//   - Opaque subscriptions: Subscribe returns a token that is passed
//     back unmodified to Unsubscribe; no structured data is ever parsed
//     out of it
//   - Best effort: delivery is at-most-once per subscriber, with no
//     retries and no persistence beyond a bounded in-memory history
//
// Deduplication is strictly opt-in. Two independently produced events can
// carry identical-looking payloads (two agents completing textually
// identical subtasks), so suppressing repeats is only safe when the
// operator asks for it.
//
// Example usage:
//
//	b := bus.New(bus.WithMaxConcurrentHandlers(50))
//	defer b.Close()
//
//	sub := b.Subscribe(events.TaskCompleted, func(ctx context.Context, evt events.Event) error {
//	    log.Printf("task %v completed", evt.Payload["task_id"])
//	    return nil
//	}, bus.WithFilter(events.ByCircle(1)))
//	defer b.Unsubscribe(sub)
//
//	b.Publish(ctx, events.New(events.TaskCompleted, map[string]any{"task_id": 123}))
package bus
