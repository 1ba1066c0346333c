package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/sarahrhemadayal/baseline/internal/logging"
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("publisher closed")

// NATSConfig configures a NATSPublisher.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
}

// NATSPublisher publishes events as JSON over core NATS.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
	owned  bool
	logger *logging.Logger
}

var _ Publisher = (*NATSPublisher)(nil)

// NewNATSPublisher dials cfg.URL. The connection retries in the background
// if the server is not up yet.
func NewNATSPublisher(cfg NATSConfig, logger *logging.Logger) (*NATSPublisher, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.Named("events")

	nc, err := nats.Connect(cfg.URL,
		nats.Name("baseline"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn(context.Background(), "nats disconnected", zap.Error(err))
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats at %s: %w", cfg.URL, err)
	}
	p := NewNATSPublisherFromConn(nc, cfg.SubjectPrefix, logger)
	p.owned = true
	return p, nil
}

// NewNATSPublisherFromConn publishes on an existing connection, which the
// caller keeps ownership of.
func NewNATSPublisherFromConn(nc *nats.Conn, prefix string, logger *logging.Logger) *NATSPublisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &NATSPublisher{conn: nc, prefix: prefix, logger: logger}
}

// Subject returns the subject an event type is published on.
func (p *NATSPublisher) Subject(t Type) string {
	return p.prefix + "." + string(t)
}

// Publish sends e. It does not wait for the server to acknowledge.
func (p *NATSPublisher) Publish(ctx context.Context, e Event) error {
	if p.conn == nil || p.conn.IsClosed() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	subject := p.Subject(e.Type)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	p.logger.Debug(ctx, "event published", zap.String("subject", subject), zap.String("event_id", e.ID))
	return nil
}

// Close flushes pending messages and closes the connection if this
// publisher opened it.
func (p *NATSPublisher) Close() error {
	if !p.owned || p.conn == nil || p.conn.IsClosed() {
		return nil
	}
	err := p.conn.Drain()
	if err != nil {
		p.conn.Close()
	}
	return err
}
