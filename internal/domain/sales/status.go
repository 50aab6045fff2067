package sales

// OrderStatus is the business lifecycle of an order
type OrderStatus string

const (
	OrderStatusPending           OrderStatus = "pending"
	OrderStatusProcessing        OrderStatus = "processing"
	OrderStatusCompleted         OrderStatus = "completed"
	OrderStatusCancelled         OrderStatus = "cancelled"
	OrderStatusRejected          OrderStatus = "rejected"
	OrderStatusRefunded          OrderStatus = "refunded"
	OrderStatusPartiallyRefunded OrderStatus = "partially_refunded"
)

// IsValid checks if the status is a valid OrderStatus
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusCompleted, OrderStatusCancelled,
		OrderStatusRejected, OrderStatusRefunded, OrderStatusPartiallyRefunded:
		return true
	}
	return false
}

// PaymentStatus is the money axis of an order
type PaymentStatus string

const (
	PaymentStatusPending           PaymentStatus = "pending"
	PaymentStatusPaid              PaymentStatus = "paid"
	PaymentStatusPartiallyPaid     PaymentStatus = "partially_paid"
	PaymentStatusRefunded          PaymentStatus = "refunded"
	PaymentStatusPartiallyRefunded PaymentStatus = "partially_refunded"
	PaymentStatusFailed            PaymentStatus = "failed"
	PaymentStatusVoided            PaymentStatus = "voided"
)

// IsValid checks if the status is a valid PaymentStatus
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusPartiallyPaid, PaymentStatusRefunded,
		PaymentStatusPartiallyRefunded, PaymentStatusFailed, PaymentStatusVoided:
		return true
	}
	return false
}

// FulfillmentStatus is the physical axis of an order. It keeps tracking the
// channel even after returns take ownership of the other two axes.
type FulfillmentStatus string

const (
	FulfillmentStatusUnfulfilled        FulfillmentStatus = "unfulfilled"
	FulfillmentStatusAwaitingShipment   FulfillmentStatus = "awaiting_shipment"
	FulfillmentStatusInTransit          FulfillmentStatus = "in_transit"
	FulfillmentStatusAwaitingPickup     FulfillmentStatus = "awaiting_pickup_at_distribution_center"
	FulfillmentStatusDelivered          FulfillmentStatus = "delivered"
	FulfillmentStatusPartiallyFulfilled FulfillmentStatus = "partially_fulfilled"
	FulfillmentStatusReturned           FulfillmentStatus = "returned"
	FulfillmentStatusCancelled          FulfillmentStatus = "cancelled"
)

// IsValid checks if the status is a valid FulfillmentStatus
func (s FulfillmentStatus) IsValid() bool {
	switch s {
	case FulfillmentStatusUnfulfilled, FulfillmentStatusAwaitingShipment, FulfillmentStatusInTransit,
		FulfillmentStatusAwaitingPickup, FulfillmentStatusDelivered, FulfillmentStatusPartiallyFulfilled,
		FulfillmentStatusReturned, FulfillmentStatusCancelled:
		return true
	}
	return false
}

// ReturnStatus summarises the returns attached to an order
type ReturnStatus string

const (
	ReturnStatusNone    ReturnStatus = "none"
	ReturnStatusPartial ReturnStatus = "partial"
	ReturnStatusFull    ReturnStatus = "full"
)

// PaymentMethod distinguishes prepaid orders from cash-on-delivery
type PaymentMethod string

const (
	PaymentMethodPrepaid        PaymentMethod = "prepaid"
	PaymentMethodCashOnDelivery PaymentMethod = "cash_on_delivery"
	PaymentMethodUnknown        PaymentMethod = "unknown"
)

// StatusSet is the three channel-derived status axes of an order
type StatusSet struct {
	Order       OrderStatus
	Payment     PaymentStatus
	Fulfillment FulfillmentStatus
}

// DefaultStatusSet is the safe bucket for unknown channel vocabulary
func DefaultStatusSet() StatusSet {
	return StatusSet{
		Order:       OrderStatusPending,
		Payment:     PaymentStatusPending,
		Fulfillment: FulfillmentStatusUnfulfilled,
	}
}

// StatusChange describes one status axis that actually moved
type StatusChange struct {
	Field string `json:"field"`
	From  string `json:"from"`
	To    string `json:"to"`
}
