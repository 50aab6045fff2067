package sales

import (
	"context"

	"github.com/google/uuid"
)

// OrderRepository defines the interface for order persistence
type OrderRepository interface {
	// FindByID finds an order by ID with items and customer loaded
	FindByID(ctx context.Context, id uuid.UUID) (*Order, error)

	// Save creates or updates an order. Items are fully replaced: rows
	// belonging to the order but absent from o.Items are deleted.
	Save(ctx context.Context, o *Order) error

	// FindByShipment finds the order shipped under an aggregator shipment id,
	// falling back to the tracking number
	FindByShipment(ctx context.Context, aggregatorShipmentID, trackingNumber string) (*Order, error)
}
