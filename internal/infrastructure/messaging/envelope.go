// Package messaging publishes domain events and audit entries to NATS subjects
// for downstream consumers (reporting, notifications, the back-office UI).
package messaging

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/omnisync/backend/internal/domain/shared"
)

// EventEnvelope is the wire form of a published domain event
type EventEnvelope struct {
	ID            uuid.UUID       `json:"id"`
	Type          string          `json:"type"`
	AggregateID   uuid.UUID       `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEventEnvelope serializes event into an envelope
func NewEventEnvelope(event shared.DomainEvent) (*EventEnvelope, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event %s: %w", event.EventType(), err)
	}
	return &EventEnvelope{
		ID:            event.EventID(),
		Type:          event.EventType(),
		AggregateID:   event.AggregateID(),
		AggregateType: event.AggregateType(),
		OccurredAt:    event.OccurredAt().UTC(),
		Payload:       payload,
	}, nil
}

// subjectToken lowercases a name and replaces characters NATS treats
// specially (separators, wildcards, whitespace).
func subjectToken(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, name)
}

// Subjects builds the subject names for one prefix
type Subjects struct {
	Prefix string
}

// Event returns <prefix>.events.<event type>
func (s Subjects) Event(eventType string) string {
	return s.join("events", subjectToken(eventType))
}

// Audit returns <prefix>.audit.<action>
func (s Subjects) Audit(action string) string {
	return s.join("audit", subjectToken(action))
}

func (s Subjects) join(kind, token string) string {
	prefix := strings.Trim(s.Prefix, ".")
	if prefix == "" {
		return kind + "." + token
	}
	return prefix + "." + kind + "." + token
}
