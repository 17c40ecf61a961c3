package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"git.home.luguber.info/inful/matrixci/internal/errors"
)

// NATSTransport publishes payloads to a JetStream subject for downstream
// consumers (chat bridges, dashboards).
type NATSTransport struct {
	conn    *nats.Conn
	js      jetstream.JetStream
	subject string
}

// NewNATSTransport connects to NATS and creates a JetStream context.
func NewNATSTransport(url, subject string) (*NATSTransport, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryNetwork, errors.SeverityWarning, "failed to connect to NATS")
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, errors.CategoryNotify, errors.SeverityWarning, "failed to create JetStream context")
	}

	slog.Info("NATS transport initialized",
		slog.String("url", url),
		slog.String("subject", subject))

	return &NATSTransport{conn: conn, js: js, subject: subject}, nil
}

func (n *NATSTransport) Name() string { return "nats" }

func (n *NATSTransport) Deliver(ctx context.Context, p Payload) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	data, err := json.Marshal(p)
	if err != nil {
		return errors.Wrap(err, errors.CategoryNotify, errors.SeverityWarning, "failed to marshal notification payload")
	}

	if _, err := n.js.Publish(ctx, n.subject, data); err != nil {
		return errors.Wrap(err, errors.CategoryNotify, errors.SeverityWarning, "failed to publish notification")
	}
	return nil
}

// Close closes the NATS connection.
func (n *NATSTransport) Close() error {
	if n.conn != nil {
		n.conn.Close()
	}
	return nil
}
