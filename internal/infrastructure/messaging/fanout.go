package messaging

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/omnisync/backend/internal/domain/shared"
)

// FanOutAuditSink records each entry to a primary sink and then to any
// secondary sinks. Only the primary's error is returned; secondary failures
// and panics are logged.
type FanOutAuditSink struct {
	primary     shared.AuditSink
	secondaries []shared.AuditSink
	logger      *zap.Logger
}

// NewFanOutAuditSink creates a FanOutAuditSink
func NewFanOutAuditSink(logger *zap.Logger, primary shared.AuditSink, secondaries ...shared.AuditSink) *FanOutAuditSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FanOutAuditSink{primary: primary, secondaries: secondaries, logger: logger}
}

// Record implements shared.AuditSink
func (s *FanOutAuditSink) Record(ctx context.Context, entry shared.AuditEntry) error {
	if err := s.primary.Record(ctx, entry); err != nil {
		return err
	}
	for _, sink := range s.secondaries {
		if err := safeCall(func() error { return sink.Record(ctx, entry) }); err != nil {
			s.logger.Warn("secondary audit sink failed",
				zap.String("action", entry.Action),
				zap.String("subject_type", entry.Subject.Type),
				zap.String("subject_id", entry.Subject.ID.String()),
				zap.Error(err),
			)
		}
	}
	return nil
}

// FanOutPublisher publishes events to every publisher, logging failures and
// continuing with the rest.
type FanOutPublisher struct {
	publishers []shared.EventPublisher
	logger     *zap.Logger
}

// NewFanOutPublisher creates a FanOutPublisher
func NewFanOutPublisher(logger *zap.Logger, publishers ...shared.EventPublisher) *FanOutPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FanOutPublisher{publishers: publishers, logger: logger}
}

// Publish implements shared.EventPublisher
func (p *FanOutPublisher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}
	for _, pub := range p.publishers {
		if err := safeCall(func() error { return pub.Publish(ctx, events...) }); err != nil {
			p.logger.Error("event publisher failed",
				zap.Int("events", len(events)),
				zap.String("first_event_type", events[0].EventType()),
				zap.Error(err),
			)
		}
	}
	return nil
}

func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

var (
	_ shared.AuditSink      = (*FanOutAuditSink)(nil)
	_ shared.EventPublisher = (*FanOutPublisher)(nil)
)
