package returns

import (
	"time"

	"github.com/google/uuid"

	"github.com/omnisync/backend/internal/domain/shared"
)

// Aggregate type constant for OrderReturn
const AggregateTypeOrderReturn = "OrderReturn"

// Event type constants for OrderReturn
const (
	EventTypeReturnCreated       = "ReturnCreated"
	EventTypeReturnStatusChanged = "ReturnStatusChanged"
)

// ReturnCreatedEvent is raised when a return is first canonicalized
type ReturnCreatedEvent struct {
	shared.BaseDomainEvent
	ReturnID   uuid.UUID `json:"return_id"`
	OrderID    uuid.UUID `json:"order_id"`
	Channel    string    `json:"channel"`
	ExternalID string    `json:"external_id"`
	Status     Status    `json:"status"`
}

// NewReturnCreatedEvent creates a new ReturnCreatedEvent
func NewReturnCreatedEvent(r *OrderReturn, at time.Time) *ReturnCreatedEvent {
	return &ReturnCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeReturnCreated, AggregateTypeOrderReturn, r.ID, at),
		ReturnID:        r.ID,
		OrderID:         r.OrderID,
		Channel:         r.Channel,
		ExternalID:      r.ExternalID,
		Status:          r.Status,
	}
}

// ReturnStatusChangedEvent is raised on every lifecycle transition
type ReturnStatusChangedEvent struct {
	shared.BaseDomainEvent
	ReturnID uuid.UUID `json:"return_id"`
	OrderID  uuid.UUID `json:"order_id"`
	Channel  string    `json:"channel"`
	From     Status    `json:"from"`
	To       Status    `json:"to"`
	Actor    Actor     `json:"actor"`
	Reason   string    `json:"reason,omitempty"`
}

// NewReturnStatusChangedEvent creates a new ReturnStatusChangedEvent
func NewReturnStatusChangedEvent(r *OrderReturn, from, to Status, actor Actor, reason string, at time.Time) *ReturnStatusChangedEvent {
	return &ReturnStatusChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeReturnStatusChanged, AggregateTypeOrderReturn, r.ID, at),
		ReturnID:        r.ID,
		OrderID:         r.OrderID,
		Channel:         r.Channel,
		From:            from,
		To:              to,
		Actor:           actor,
		Reason:          reason,
	}
}
