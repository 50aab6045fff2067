package sales

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/omnisync/backend/internal/domain/customer"
	"github.com/omnisync/backend/internal/domain/shared"
	"github.com/omnisync/backend/internal/domain/shared/valueobject"
)

// DefaultShippingVATRate is 20% in basis points
const DefaultShippingVATRate int64 = 2000

// Shipping is the outbound (or return) shipping block. Money in minor units.
type Shipping struct {
	Carrier              string
	TrackingNumber       string
	CostExclVAT          int64
	VATRate              int64
	VATAmount            int64
	AggregatorShipmentID string
	Desi                 decimal.Decimal
}

// SetCost stores the cost excluding VAT and derives the VAT amount
func (s *Shipping) SetCost(costExclVAT, vatRate int64) {
	if vatRate <= 0 {
		vatRate = DefaultShippingVATRate
	}
	s.CostExclVAT = costExclVAT
	s.VATRate = vatRate
	s.VATAmount = valueobject.ApplyRate(costExclVAT, vatRate)
}

// HasCost reports whether a cost has ever been recorded
func (s Shipping) HasCost() bool {
	return s.CostExclVAT > 0
}

// Totals are the channel-supplied order totals converted to minor units
type Totals struct {
	Subtotal        int64
	Discount        int64
	Tax             int64
	ShippingCharged int64
	GrandTotal      int64
}

// Order is the canonical order aggregate
type Order struct {
	shared.BaseAggregateRoot
	Channel           string
	IntegrationID     *uuid.UUID
	OrderNumber       string
	OrderStatus       OrderStatus
	PaymentStatus     PaymentStatus
	FulfillmentStatus FulfillmentStatus
	ReturnStatus      ReturnStatus
	PaymentMethod     PaymentMethod
	Currency          valueobject.CurrencySnapshot
	Totals            Totals
	Shipping          Shipping
	TotalProductCost  int64
	TotalCommission   int64
	CustomerID        *uuid.UUID
	PlacedAt          *time.Time
	Payload           json.RawMessage
	Items             []OrderItem

	// Customer is eager-loaded by the repository and never persisted through the order
	Customer *customer.Customer
}

// NewOrder creates an order from a first channel sighting
func NewOrder(channel string, integrationID *uuid.UUID, orderNumber string, statuses StatusSet, now time.Time) *Order {
	o := &Order{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(now),
		Channel:           channel,
		IntegrationID:     integrationID,
		OrderNumber:       orderNumber,
		OrderStatus:       statuses.Order,
		PaymentStatus:     statuses.Payment,
		FulfillmentStatus: statuses.Fulfillment,
		ReturnStatus:      ReturnStatusNone,
		PaymentMethod:     PaymentMethodUnknown,
		Items:             make([]OrderItem, 0),
	}
	o.AddDomainEvent(NewOrderCreatedEvent(o, now))
	return o
}

// IsCancelled reports whether the order is in a cancelled business state
func (o *Order) IsCancelled() bool {
	return o.OrderStatus == OrderStatusCancelled
}

// IsCashOnDelivery reports whether no money moves until the parcel is accepted
func (o *Order) IsCashOnDelivery() bool {
	return o.PaymentMethod == PaymentMethodCashOnDelivery
}

// HasReturns reports whether returns own the order and payment axes
func (o *Order) HasReturns() bool {
	return o.ReturnStatus == ReturnStatusPartial || o.ReturnStatus == ReturnStatusFull
}

// ApplyChannelStatus applies channel-derived statuses. Once the order has any
// return, order and payment status are left alone; fulfillment always follows
// the channel. Returns the axes that actually changed.
func (o *Order) ApplyChannelStatus(next StatusSet, hasReturns bool, now time.Time) []StatusChange {
	var changes []StatusChange
	if !hasReturns {
		if next.Order != "" && next.Order != o.OrderStatus {
			changes = append(changes, StatusChange{Field: "order_status", From: string(o.OrderStatus), To: string(next.Order)})
			o.OrderStatus = next.Order
		}
		if next.Payment != "" && next.Payment != o.PaymentStatus {
			changes = append(changes, StatusChange{Field: "payment_status", From: string(o.PaymentStatus), To: string(next.Payment)})
			o.PaymentStatus = next.Payment
		}
	}
	if next.Fulfillment != "" && next.Fulfillment != o.FulfillmentStatus {
		changes = append(changes, StatusChange{Field: "fulfillment_status", From: string(o.FulfillmentStatus), To: string(next.Fulfillment)})
		o.FulfillmentStatus = next.Fulfillment
	}
	if len(changes) > 0 {
		o.Touch(now)
		o.AddDomainEvent(NewOrderStatusChangedEvent(o, changes, now))
	}
	return changes
}

// ItemByID returns the item with the given id
func (o *Order) ItemByID(id uuid.UUID) *OrderItem {
	for i := range o.Items {
		if o.Items[i].ID == id {
			return &o.Items[i]
		}
	}
	return nil
}

// ItemByVariant returns the first item for a variant
func (o *Order) ItemByVariant(variantID uuid.UUID) *OrderItem {
	for i := range o.Items {
		if o.Items[i].VariantID == variantID {
			return &o.Items[i]
		}
	}
	return nil
}

// UpsertItem replaces the item with the same id or appends it
func (o *Order) UpsertItem(item OrderItem) {
	item.OrderID = o.ID
	for i := range o.Items {
		if o.Items[i].ID == item.ID {
			o.Items[i] = item
			return
		}
	}
	o.Items = append(o.Items, item)
}

// PruneItems drops every item whose id is not in keep and returns the removed items
func (o *Order) PruneItems(keep map[uuid.UUID]bool) []OrderItem {
	kept := o.Items[:0]
	var removed []OrderItem
	for _, item := range o.Items {
		if keep[item.ID] {
			kept = append(kept, item)
		} else {
			removed = append(removed, item)
		}
	}
	o.Items = kept
	return removed
}

// RecomputeAggregates sums item-level cost and commission. Channel-supplied
// aggregates are never trusted.
func (o *Order) RecomputeAggregates() {
	var cost, commission int64
	for _, item := range o.Items {
		cost += item.UnitCost * int64(item.Quantity)
		commission += item.CommissionAmount
	}
	o.TotalProductCost = cost
	o.TotalCommission = commission
}

// TotalQuantity returns the sum of item quantities
func (o *Order) TotalQuantity() int {
	total := 0
	for _, item := range o.Items {
		total += item.Quantity
	}
	return total
}

// ReturnSummary aggregates every return attached to an order
type ReturnSummary struct {
	Returns          int
	ReturnedQuantity map[uuid.UUID]int
	RefundedAmount   int64
	CompletedReturns int
}

// ApplyReturnSummary recomputes return_status and, once money has moved back,
// the refunded order and payment statuses.
func (o *Order) ApplyReturnSummary(s ReturnSummary, now time.Time) []StatusChange {
	var changes []StatusChange
	next := ReturnStatusNone
	if s.Returns > 0 {
		next = ReturnStatusPartial
		if o.isFullyReturned(s.ReturnedQuantity) {
			next = ReturnStatusFull
		}
	}
	if next != o.ReturnStatus {
		changes = append(changes, StatusChange{Field: "return_status", From: string(o.ReturnStatus), To: string(next)})
		o.ReturnStatus = next
	}

	if s.RefundedAmount > 0 {
		orderStatus, paymentStatus := OrderStatusPartiallyRefunded, PaymentStatusPartiallyRefunded
		if o.Totals.GrandTotal > 0 && s.RefundedAmount >= o.Totals.GrandTotal {
			orderStatus, paymentStatus = OrderStatusRefunded, PaymentStatusRefunded
		}
		if orderStatus != o.OrderStatus {
			changes = append(changes, StatusChange{Field: "order_status", From: string(o.OrderStatus), To: string(orderStatus)})
			o.OrderStatus = orderStatus
		}
		if paymentStatus != o.PaymentStatus {
			changes = append(changes, StatusChange{Field: "payment_status", From: string(o.PaymentStatus), To: string(paymentStatus)})
			o.PaymentStatus = paymentStatus
		}
	}
	if len(changes) > 0 {
		o.Touch(now)
		o.AddDomainEvent(NewOrderStatusChangedEvent(o, changes, now))
	}
	return changes
}

func (o *Order) isFullyReturned(returned map[uuid.UUID]int) bool {
	if len(o.Items) == 0 {
		return false
	}
	for _, item := range o.Items {
		if returned[item.ID] < item.Quantity {
			return false
		}
	}
	return true
}
