package sales

import (
	"time"

	"github.com/google/uuid"

	"github.com/omnisync/backend/internal/domain/shared"
)

// Aggregate type constant for Order
const AggregateTypeOrder = "Order"

// Event type constants for Order
const (
	EventTypeOrderCreated       = "OrderCreated"
	EventTypeOrderStatusChanged = "OrderStatusChanged"
)

// OrderCreatedEvent is raised when an order is first seen on a channel
type OrderCreatedEvent struct {
	shared.BaseDomainEvent
	OrderID     uuid.UUID `json:"order_id"`
	Channel     string    `json:"channel"`
	OrderNumber string    `json:"order_number"`
}

// NewOrderCreatedEvent creates a new OrderCreatedEvent
func NewOrderCreatedEvent(o *Order, at time.Time) *OrderCreatedEvent {
	return &OrderCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeOrderCreated, AggregateTypeOrder, o.ID, at),
		OrderID:         o.ID,
		Channel:         o.Channel,
		OrderNumber:     o.OrderNumber,
	}
}

// OrderStatusChangedEvent is the structured change record emitted whenever
// a status axis actually moves
type OrderStatusChangedEvent struct {
	shared.BaseDomainEvent
	OrderID     uuid.UUID      `json:"order_id"`
	Channel     string         `json:"channel"`
	OrderNumber string         `json:"order_number"`
	Changes     []StatusChange `json:"changes"`
}

// NewOrderStatusChangedEvent creates a new OrderStatusChangedEvent
func NewOrderStatusChangedEvent(o *Order, changes []StatusChange, at time.Time) *OrderStatusChangedEvent {
	return &OrderStatusChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeOrderStatusChanged, AggregateTypeOrder, o.ID, at),
		OrderID:         o.ID,
		Channel:         o.Channel,
		OrderNumber:     o.OrderNumber,
		Changes:         changes,
	}
}
