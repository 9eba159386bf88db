package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alphadose/haxmap"
	"github.com/go-openapi/strfmt"
	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/gathering-ai/gathering/events"
	"github.com/gathering-ai/gathering/pkg/slogx"
	"github.com/gathering-ai/gathering/pkg/uuidx"
)

type connection struct {
	client      Client
	id          string
	connectedAt strfmt.DateTime
	sent        atomic.Int64
	received    atomic.Int64
}

// Manager tracks connected real-time clients and performs concurrent
// broadcast and personal sends with per-connection failure isolation.
type Manager struct {
	connections *haxmap.Map[string, *connection]

	totalConnections atomic.Int64
	messagesSent     atomic.Int64
	broadcasts       atomic.Int64
}

// NewManager constructs an empty connection manager.
func NewManager() *Manager {
	return &Manager{connections: haxmap.New[string, *connection]()}
}

// Connect performs the client handshake and records the connection. When
// clientID is empty, or already in use, a fresh id is derived. The
// returned id keys every later operation on this connection.
func (m *Manager) Connect(ctx context.Context, client Client, clientID string) (string, error) {
	if client == nil {
		return "", fmt.Errorf("client cannot be nil")
	}
	if err := client.Accept(ctx); err != nil {
		return "", fmt.Errorf("failed to accept client: %w", err)
	}

	id := clientID
	if id == "" {
		id = "client-" + uuidx.NewString()
	}
	conn := &connection{
		client:      client,
		id:          id,
		connectedAt: strfmt.DateTime(time.Now().UTC()),
	}
	// GetOrSet claims the id atomically; on a collision derive a fresh
	// one from the requested id and try again
	for {
		if _, taken := m.connections.GetOrSet(conn.id, conn); !taken {
			break
		}
		conn.id = fmt.Sprintf("%s-%s", id, uuidx.NewString())
	}
	m.totalConnections.Add(1)

	slog.InfoContext(ctx, "client connected",
		slog.String("client_id", conn.id),
		slog.Int("active_connections", m.ClientCount()),
	)
	return conn.id, nil
}

// Disconnect removes the connection if present; it is a no-op otherwise.
func (m *Manager) Disconnect(id string) {
	if _, ok := m.connections.Get(id); !ok {
		return
	}
	m.connections.Del(id)
	slog.Info("client disconnected",
		slog.String("client_id", id),
		slog.Int("active_connections", m.ClientCount()),
	)
}

// SendPersonal delivers msg to one client. On failure the client is
// disconnected and false is returned.
func (m *Manager) SendPersonal(ctx context.Context, msg []byte, id string) bool {
	conn, ok := m.connections.Get(id)
	if !ok {
		return false
	}
	if !m.send(ctx, conn, msg) {
		m.Disconnect(id)
		return false
	}
	return true
}

// Broadcast sends msg to every connected client concurrently and returns
// the number of successful deliveries. A "timestamp" field is injected
// when msg lacks one. Clients whose send failed in this round are removed
// after all sends complete.
func (m *Manager) Broadcast(ctx context.Context, msg []byte) int {
	conns := m.snapshot()
	if len(conns) == 0 {
		return 0
	}

	if !gjson.GetBytes(msg, "timestamp").Exists() {
		stamped, err := sjson.SetBytes(msg, "timestamp", strfmt.DateTime(time.Now().UTC()).String())
		if err == nil {
			msg = stamped
		}
	}

	results := make([]bool, len(conns))
	var wg sync.WaitGroup
	for i, conn := range conns {
		wg.Add(1)
		go func(i int, conn *connection) {
			defer wg.Done()
			results[i] = m.send(ctx, conn, msg)
		}(i, conn)
	}
	wg.Wait()

	successful := 0
	for i, ok := range results {
		if ok {
			successful++
		} else {
			m.Disconnect(conns[i].id)
		}
	}

	m.broadcasts.Add(1)
	return successful
}

// BroadcastEvent wraps data in the canonical {type, data, timestamp}
// message and broadcasts it.
func (m *Manager) BroadcastEvent(ctx context.Context, kind events.Kind, data map[string]any) int {
	msg, err := sjson.SetBytes([]byte(`{}`), "type", kind.String())
	if err != nil {
		return 0
	}
	payload := []byte(`{}`)
	if data != nil {
		payload, err = json.Marshal(data)
		if err != nil {
			slog.ErrorContext(ctx, "failed to marshal broadcast data",
				slogx.Stringer("kind", kind),
				slogx.Error(err),
			)
			return 0
		}
	}
	msg, err = sjson.SetRawBytes(msg, "data", payload)
	if err != nil {
		return 0
	}
	return m.Broadcast(ctx, msg)
}

// PingAll broadcasts a keepalive and returns the number of clients that
// are still reachable.
func (m *Manager) PingAll(ctx context.Context) int {
	return m.Broadcast(ctx, []byte(`{"type":"ping"}`))
}

// ClientCount returns the number of active connections.
func (m *Manager) ClientCount() int {
	return int(m.connections.Len())
}

// MarkReceived increments the received-message counter for a client. The
// transport layer calls this when a client sends something inbound.
func (m *Manager) MarkReceived(id string) {
	if conn, ok := m.connections.Get(id); ok {
		conn.received.Add(1)
	}
}

func (m *Manager) send(ctx context.Context, conn *connection, msg []byte) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "client send panicked",
				slog.String("client_id", conn.id),
				slog.Any("panic", r),
			)
			ok = false
		}
	}()
	if err := conn.client.Send(ctx, msg); err != nil {
		slog.WarnContext(ctx, "failed to send to client",
			slog.String("client_id", conn.id),
			slogx.Error(err),
		)
		return false
	}
	conn.sent.Add(1)
	m.messagesSent.Add(1)
	return true
}

func (m *Manager) snapshot() []*connection {
	conns := make([]*connection, 0, int(m.connections.Len()))
	m.connections.ForEach(func(_ string, conn *connection) bool {
		conns = append(conns, conn)
		return true
	})
	return conns
}

// ClientStats describes one active connection in a stats snapshot.
type ClientStats struct {
	ClientID         string          `json:"client_id"`
	ConnectedAt      strfmt.DateTime `json:"connected_at"`
	MessagesSent     int64           `json:"messages_sent"`
	MessagesReceived int64           `json:"messages_received"`
}

// Stats is a point-in-time snapshot of the manager's counters.
type Stats struct {
	ActiveConnections int           `json:"active_connections"`
	TotalConnections  int64         `json:"total_connections"`
	MessagesSent      int64         `json:"total_messages_sent"`
	Broadcasts        int64         `json:"total_broadcasts"`
	Clients           []ClientStats `json:"clients"`
}

// Stats returns a snapshot of connection statistics.
func (m *Manager) Stats() Stats {
	conns := m.snapshot()
	clients := make([]ClientStats, 0, len(conns))
	for _, conn := range conns {
		clients = append(clients, ClientStats{
			ClientID:         conn.id,
			ConnectedAt:      conn.connectedAt,
			MessagesSent:     conn.sent.Load(),
			MessagesReceived: conn.received.Load(),
		})
	}
	return Stats{
		ActiveConnections: len(conns),
		TotalConnections:  m.totalConnections.Load(),
		MessagesSent:      m.messagesSent.Load(),
		Broadcasts:        m.broadcasts.Load(),
		Clients:           clients,
	}
}
