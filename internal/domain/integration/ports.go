package integration

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/omnisync/backend/internal/domain/returns"
)

// ---------------------------------------------------------------------------
// Channel Port Interfaces
// ---------------------------------------------------------------------------

// Normalizer decodes raw channel payloads into the fixed internal shape.
// One implementation exists per sales channel.
type Normalizer interface {
	// Platform returns the platform this normalizer handles
	Platform() PlatformCode
	// NormalizeOrder decodes an order or package payload
	NormalizeOrder(payload []byte) (*ChannelOrder, error)
	// NormalizeReturn decodes a refund, return request or claim payload
	NormalizeReturn(kind JobKind, payload []byte) (*ChannelReturn, error)
	// NormalizeProduct decodes a product listing payload
	NormalizeProduct(payload []byte) (*ChannelProduct, error)
}

// PullItem is one entity of a paginated pull, kept as raw payload so the
// job queue stores exactly what the channel returned
type PullItem struct {
	ExternalID string
	Kind       JobKind
	Payload    json.RawMessage
}

// PullPage is one page of a paginated pull
type PullPage struct {
	Items      []PullItem
	NextCursor string
	HasMore    bool
}

// ChannelPuller reads pages from a channel's read API.
// Later pages are not guaranteed to be newer.
type ChannelPuller interface {
	Platform() PlatformCode
	Pull(ctx context.Context, integ *Integration, kind SyncKind, since *time.Time, cursor string) (*PullPage, error)
}

// ReturnStatusPush is an outbound return status update
type ReturnStatusPush struct {
	ExternalReturnID string
	OrderExternalID  string
	Status           returns.Status
	Carrier          string
	TrackingNumber   string
	Reason           string
}

// ReturnStatusPusher sends return status changes back to a channel
type ReturnStatusPusher interface {
	Platform() PlatformCode
	PushReturnStatus(ctx context.Context, integ *Integration, push ReturnStatusPush) error
}

// ---------------------------------------------------------------------------
// Shipping Aggregator Port Interfaces
// ---------------------------------------------------------------------------

// ShipmentCost is the aggregator's cost report for a shipment, excluding VAT
type ShipmentCost struct {
	ShipmentID string
	Currency   string
	Outbound   *decimal.Decimal
	Return     *decimal.Decimal
	Total      *decimal.Decimal
}

// OutboundLeg returns the outbound cost, falling back to the total when the
// aggregator did not itemize
func (c ShipmentCost) OutboundLeg() *decimal.Decimal {
	if c.Outbound != nil {
		return c.Outbound
	}
	if c.Return == nil && c.Total != nil {
		return c.Total
	}
	return nil
}

// ReturnLeg returns the return cost. Without an itemized breakdown the return
// leg is assumed to cost the same as the outbound leg, i.e. half the total.
func (c ShipmentCost) ReturnLeg() *decimal.Decimal {
	if c.Return != nil {
		return c.Return
	}
	if c.Total == nil {
		return nil
	}
	if c.Outbound != nil {
		rest := c.Total.Sub(*c.Outbound)
		return &rest
	}
	half := c.Total.Div(decimal.NewFromInt(2))
	return &half
}

// ReturnLabelRequest asks the aggregator for a return label
type ReturnLabelRequest struct {
	ReturnID       string
	OrderNumber    string
	SenderName     string
	SenderPhone    string
	Carrier        string
	Desi           decimal.Decimal
	OriginalShipID string
}

// ReturnLabel is a generated label document
type ReturnLabel struct {
	ShipmentID     string
	Carrier        string
	TrackingNumber string
	FileName       string
	ContentType    string
	Data           []byte
}

// ShippingAggregator is the shipping aggregator API
type ShippingAggregator interface {
	// NormalizeShipment decodes a shipment webhook
	NormalizeShipment(payload []byte) (*ChannelShipment, error)
	// ShipmentCost fetches the live cost of a shipment
	ShipmentCost(ctx context.Context, shipmentID string) (*ShipmentCost, error)
	// CreateReturnLabel generates a return label
	CreateReturnLabel(ctx context.Context, req ReturnLabelRequest) (*ReturnLabel, error)
}
