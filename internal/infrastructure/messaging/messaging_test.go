package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/omnisync/backend/internal/domain/shared"
	"github.com/omnisync/backend/internal/infrastructure/config"
)

type published struct {
	subject string
	data    []byte
}

type fakeConn struct {
	mu       sync.Mutex
	messages []published
	err      error
	drained  bool
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.messages = append(c.messages, published{subject: subject, data: data})
	return nil
}

func (c *fakeConn) Drain() error {
	c.drained = true
	return nil
}

func testEvent(eventType string) *shared.BaseDomainEvent {
	ev := shared.NewBaseDomainEvent(eventType, "OrderReturn", uuid.New(), time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	return &ev
}

func TestSubjects(t *testing.T) {
	s := Subjects{Prefix: "omnisync."}
	assert.Equal(t, "omnisync.events.returnapproved", s.Event("ReturnApproved"))
	assert.Equal(t, "omnisync.audit.order_status_changed", s.Audit("order.status changed"))
	assert.Equal(t, "omnisync.audit.unknown", s.Audit(""))
	assert.Equal(t, "events.a_b", Subjects{}.Event("a>b"))
}

func TestNATSPublisher_Publish(t *testing.T) {
	fc := &fakeConn{}
	p := newNATSPublisher(fc, "omnisync", zap.NewNop())

	ev := testEvent("ReturnApproved")
	require.NoError(t, p.Publish(context.Background(), ev))

	require.Len(t, fc.messages, 1)
	assert.Equal(t, "omnisync.events.returnapproved", fc.messages[0].subject)

	var env EventEnvelope
	require.NoError(t, json.Unmarshal(fc.messages[0].data, &env))
	assert.Equal(t, ev.ID, env.ID)
	assert.Equal(t, "ReturnApproved", env.Type)
	assert.Equal(t, ev.AggID, env.AggregateID)
	assert.Equal(t, "OrderReturn", env.AggregateType)
	assert.Contains(t, string(env.Payload), `"aggregate_type":"OrderReturn"`)
}

func TestNATSPublisher_PublishAttemptsEveryEvent(t *testing.T) {
	fc := &fakeConn{err: errors.New("nats: connection closed")}
	p := newNATSPublisher(fc, "omnisync", nil)

	err := p.Publish(context.Background(), testEvent("A"), testEvent("B"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "omnisync.events.a")
}

func TestNATSPublisher_CancelledContext(t *testing.T) {
	fc := &fakeConn{}
	p := newNATSPublisher(fc, "omnisync", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, p.Publish(ctx, testEvent("A")), context.Canceled)
	assert.ErrorIs(t, p.Record(ctx, shared.AuditEntry{Action: "x"}), context.Canceled)
	assert.Empty(t, fc.messages)
}

func TestNATSPublisher_Record(t *testing.T) {
	fc := &fakeConn{}
	p := newNATSPublisher(fc, "omnisync", nil)
	id := uuid.New()

	err := p.Record(context.Background(), shared.AuditEntry{
		Subject:    shared.AuditSubject{Type: "order", ID: id},
		Action:     "order.status_changed",
		Actor:      shared.SystemActor,
		Properties: map[string]any{"from": "pending", "to": "processing"},
	})
	require.NoError(t, err)
	require.Len(t, fc.messages, 1)
	assert.Equal(t, "omnisync.audit.order_status_changed", fc.messages[0].subject)

	var got shared.AuditEntry
	require.NoError(t, json.Unmarshal(fc.messages[0].data, &got))
	assert.Equal(t, id, got.Subject.ID)
	assert.Equal(t, "processing", got.Properties["to"])
	assert.False(t, got.OccurredAt.IsZero())

	require.NoError(t, p.Close())
	assert.True(t, fc.drained)
}

func TestConnect_Disabled(t *testing.T) {
	_, err := Connect(config.MessagingConfig{}, nil)
	assert.ErrorIs(t, err, ErrMessagingDisabled)
}

type recordingSink struct {
	entries []shared.AuditEntry
	err     error
	panics  bool
}

func (s *recordingSink) Record(_ context.Context, entry shared.AuditEntry) error {
	if s.panics {
		panic("boom")
	}
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, entry)
	return nil
}

func TestFanOutAuditSink(t *testing.T) {
	entry := shared.AuditEntry{Action: "return.repointed"}

	t.Run("secondary failures are swallowed", func(t *testing.T) {
		primary := &recordingSink{}
		failing := &recordingSink{err: errors.New("down")}
		panicking := &recordingSink{panics: true}
		last := &recordingSink{}

		sink := NewFanOutAuditSink(nil, primary, failing, panicking, last)
		require.NoError(t, sink.Record(context.Background(), entry))
		assert.Len(t, primary.entries, 1)
		assert.Len(t, last.entries, 1)
	})

	t.Run("primary failure is returned and stops fan out", func(t *testing.T) {
		primary := &recordingSink{err: errors.New("db down")}
		secondary := &recordingSink{}

		sink := NewFanOutAuditSink(nil, primary, secondary)
		assert.Error(t, sink.Record(context.Background(), entry))
		assert.Empty(t, secondary.entries)
	})
}

type countingPublisher struct {
	count int
	err   error
}

func (p *countingPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	p.count += len(events)
	return p.err
}

func TestFanOutPublisher(t *testing.T) {
	a := &countingPublisher{err: errors.New("down")}
	b := &countingPublisher{}

	pub := NewFanOutPublisher(zap.NewNop(), a, b)
	require.NoError(t, pub.Publish(context.Background(), testEvent("A"), testEvent("B")))
	assert.Equal(t, 2, a.count)
	assert.Equal(t, 2, b.count)

	require.NoError(t, pub.Publish(context.Background()))
}
