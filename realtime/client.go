package realtime

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/gathering-ai/gathering/pkg/natsx"
)

// Client is the handle the manager drives for one external real-time
// consumer. Accept performs the protocol-specific handshake once at
// connect time; Send delivers one JSON-encoded message.
type Client interface {
	Accept(ctx context.Context) error
	Send(ctx context.Context, msg []byte) error
}

// NATSClient adapts a NATS connection into a Client: every message is
// published to a fixed subject, so external dashboards subscribe to that
// subject instead of holding a socket open against this process.
type NATSClient struct {
	conn    *nats.Conn
	subject string
}

// NewNATSClient wraps conn as a Client publishing to subject.
func NewNATSClient(conn *nats.Conn, subject string) *NATSClient {
	return &NATSClient{conn: conn, subject: subject}
}

// NewNATSClientFromEnv connects to the NATS server named by the NATS_URL
// environment variable and wraps the connection as a Client publishing to
// subject.
func NewNATSClientFromEnv(subject string) (*NATSClient, error) {
	conn, err := natsx.NewClient()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	return NewNATSClient(conn, subject), nil
}

func (c *NATSClient) Accept(ctx context.Context) error {
	if c.conn == nil {
		return fmt.Errorf("nats connection is required")
	}
	if status := c.conn.Status(); status != nats.CONNECTED {
		return fmt.Errorf("nats connection is not established: %s", status)
	}
	return nil
}

func (c *NATSClient) Send(ctx context.Context, msg []byte) error {
	return c.conn.Publish(c.subject, msg)
}
