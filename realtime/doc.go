// Package realtime re-broadcasts selected bus events to external
// real-time clients. It contains the connection manager that tracks
// client handles and performs concurrent, failure-isolated broadcasts,
// and the bridge that subscribes the event bus and forwards matching
// events in the canonical wire format.
//
// Design decisions:
//   - Protocol-agnostic handles: clients implement the small Client
//     interface (Accept + Send); the manager mandates nothing beyond the
//     one JSON object per message contract. A NATS-backed adapter ships
//     as a concrete transport
//   - Failure isolation: one failing send never blocks or cancels the
//     rest of a broadcast round; clients that failed in a round are
//     pruned after the round completes, not mid-iteration
//   - Auto-disconnect: a failed personal send removes that client's
//     record immediately
//   - Two-state lifecycle: a client is connected or it is not; the
//     handshake is atomic from the manager's point of view
//
// Example usage:
//
//	m := realtime.NewManager()
//	id, err := m.Connect(ctx, client, "dashboard-1")
//	if err != nil {
//	    return err
//	}
//	defer m.Disconnect(id)
//
//	br := realtime.NewBridge(b, m)
//	br.SetupBroadcasting()
//	defer br.Teardown()
package realtime
