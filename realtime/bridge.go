package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gathering-ai/gathering/bus"
	"github.com/gathering-ai/gathering/events"
)

// DefaultBroadcastKinds is the curated set of event kinds forwarded to
// real-time clients by SetupBroadcasting when no explicit list is given.
var DefaultBroadcastKinds = []events.Kind{
	events.AgentStarted,
	events.AgentTaskCompleted,
	events.AgentToolExecuted,
	events.MemoryCreated,
	events.MemoryShared,
	events.CircleCreated,
	events.CircleMemberAdded,
	events.TaskCreated,
	events.TaskStarted,
	events.TaskCompleted,
	events.TaskFailed,
	events.TaskConflictDetected,
	events.ConversationMessage,
}

// Bridge wires the event bus into the connection manager: for each
// configured kind it registers an ordinary bus subscription whose handler
// forwards matching events as canonical wire messages. Bridge handlers
// are subject to the same limiter, filter, and error-isolation rules as
// any other subscriber.
type Bridge struct {
	bus     *bus.Bus
	manager *Manager

	mu   sync.Mutex
	subs []bus.Subscription
}

// NewBridge constructs a bridge between b and m. Nothing is forwarded
// until one of the Setup methods is called.
func NewBridge(b *bus.Bus, m *Manager) *Bridge {
	if b == nil {
		panic("bus cannot be nil")
	}
	if m == nil {
		panic("manager cannot be nil")
	}
	return &Bridge{bus: b, manager: m}
}

// SetupBroadcasting subscribes the bridge to the given kinds, or to
// DefaultBroadcastKinds when none are given.
func (br *Bridge) SetupBroadcasting(kinds ...events.Kind) {
	if len(kinds) == 0 {
		kinds = DefaultBroadcastKinds
	}
	br.mu.Lock()
	for _, kind := range kinds {
		sub := br.bus.Subscribe(kind, br.forward, bus.WithName("realtime-bridge"))
		br.subs = append(br.subs, sub)
	}
	br.mu.Unlock()

	slog.Info("real-time broadcasting enabled", slog.Int("kinds", len(kinds)))
}

// SetupCustomBroadcasting subscribes the bridge to a single kind with an
// arbitrary predicate, for selective re-broadcast such as only events
// scoped to one circle.
func (br *Bridge) SetupCustomBroadcasting(kind events.Kind, filter events.Predicate) {
	sub := br.bus.Subscribe(kind, br.forward,
		bus.WithFilter(filter),
		bus.WithName("realtime-bridge"),
	)
	br.mu.Lock()
	br.subs = append(br.subs, sub)
	br.mu.Unlock()

	slog.Info("custom real-time broadcasting enabled", slog.String("kind", kind.String()))
}

// Teardown removes every subscription the bridge registered.
func (br *Bridge) Teardown() {
	br.mu.Lock()
	subs := br.subs
	br.subs = nil
	br.mu.Unlock()

	for _, sub := range subs {
		br.bus.Unsubscribe(sub)
	}
}

func (br *Bridge) forward(ctx context.Context, evt events.Event) error {
	// Nothing to do without an audience.
	if br.manager.ClientCount() == 0 {
		return nil
	}
	msg, err := evt.WireMessage()
	if err != nil {
		return fmt.Errorf("failed to build wire message: %w", err)
	}
	br.manager.Broadcast(ctx, msg)
	return nil
}
