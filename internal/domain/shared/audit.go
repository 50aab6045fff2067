package shared

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AuditSubject identifies the record an audit entry is about
type AuditSubject struct {
	Type string    `json:"type"`
	ID   uuid.UUID `json:"id"`
}

// AuditEntry is a structured (subject, action, properties) triple
type AuditEntry struct {
	Subject    AuditSubject   `json:"subject"`
	Action     string         `json:"action"`
	Actor      string         `json:"actor"`
	Properties map[string]any `json:"properties,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// AuditSink receives audit entries. Correctness never depends on the sink.
type AuditSink interface {
	Record(ctx context.Context, entry AuditEntry) error
}

// NopAuditSink drops every entry
type NopAuditSink struct{}

// Record implements AuditSink
func (NopAuditSink) Record(context.Context, AuditEntry) error { return nil }

// SystemActor attributes automated, channel-driven changes
const SystemActor = "system"
