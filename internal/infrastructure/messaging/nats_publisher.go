package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/omnisync/backend/internal/domain/shared"
	"github.com/omnisync/backend/internal/infrastructure/config"
)

// ErrMessagingDisabled is returned by Connect when no NATS URL is configured
var ErrMessagingDisabled = errors.New("messaging: nats url not configured")

// conn is the subset of *nats.Conn the publisher uses
type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSPublisher publishes domain events and audit entries as JSON messages.
// It implements both shared.EventPublisher and shared.AuditSink.
type NATSPublisher struct {
	conn     conn
	subjects Subjects
	logger   *zap.Logger
}

// Connect dials NATS and returns a publisher
func Connect(cfg config.MessagingConfig, logger *zap.Logger) (*NATSPublisher, error) {
	if cfg.NATSURL == "" {
		return nil, ErrMessagingDisabled
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "messaging.publisher"))

	nc, err := nats.Connect(cfg.NATSURL,
		nats.Name(cfg.ClientName),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger.Info("Connected to NATS", zap.String("subject_prefix", cfg.SubjectPrefix))
	return newNATSPublisher(nc, cfg.SubjectPrefix, logger), nil
}

func newNATSPublisher(c conn, prefix string, logger *zap.Logger) *NATSPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSPublisher{conn: c, subjects: Subjects{Prefix: prefix}, logger: logger}
}

// Publish implements shared.EventPublisher. Every event is attempted; the
// first failure is returned.
func (p *NATSPublisher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	var firstErr error
	for _, event := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		envelope, err := NewEventEnvelope(event)
		if err == nil {
			err = p.publishJSON(p.subjects.Event(event.EventType()), envelope)
		}
		if err != nil {
			p.logger.Error("failed to publish event",
				zap.String("event_type", event.EventType()),
				zap.String("event_id", event.EventID().String()),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Record implements shared.AuditSink
func (p *NATSPublisher) Record(ctx context.Context, entry shared.AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now()
	}
	entry.OccurredAt = entry.OccurredAt.UTC()
	return p.publishJSON(p.subjects.Audit(entry.Action), entry)
}

func (p *NATSPublisher) publishJSON(subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message for %s: %w", subject, err)
	}
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// Close drains pending messages and closes the connection
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}

var (
	_ shared.EventPublisher = (*NATSPublisher)(nil)
	_ shared.AuditSink      = (*NATSPublisher)(nil)
)
