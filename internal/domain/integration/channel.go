package integration

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/omnisync/backend/internal/domain/customer"
	"github.com/omnisync/backend/internal/domain/returns"
	"github.com/omnisync/backend/internal/domain/sales"
)

// The Channel* types are the fixed internal shape every channel payload is
// normalized into at the ingestion boundary. Reconcilers only ever see these.
// Amounts are major-unit decimals exactly as the channel sent them.

// ChannelCustomer is the customer fragment embedded in an order payload
type ChannelCustomer struct {
	// ExternalID is empty for guest checkouts
	ExternalID  string
	FirstName   string
	LastName    string
	Email       string
	Phone       string
	AddressLine string
	Masked      bool
}

// DetectMasked flags the fragment as masked when any critical field equals sentinel
func (c *ChannelCustomer) DetectMasked(sentinel string) bool {
	if sentinel == "" {
		return c.Masked
	}
	for _, v := range []string{c.FirstName, c.LastName, c.Email, c.Phone, c.AddressLine} {
		if strings.Contains(v, sentinel) {
			c.Masked = true
			return true
		}
	}
	return c.Masked
}

// Profile returns the personal data of the fragment
func (c ChannelCustomer) Profile() customer.Profile {
	return customer.Profile{
		FirstName: c.FirstName,
		LastName:  c.LastName,
		Email:     c.Email,
		Phone:     c.Phone,
	}
}

// ChannelShipping is the shipping block of an order or return payload
type ChannelShipping struct {
	Carrier              string
	TrackingNumber       string
	AggregatorShipmentID string
	Desi                 decimal.Decimal
	// Cost is set only when the channel reports an authoritative cost excluding VAT
	Cost *decimal.Decimal
}

// ChannelLine is one order line
type ChannelLine struct {
	ExternalID        string
	VariantExternalID string
	ProductExternalID string
	SKU               string
	Barcode           string
	Title             string
	Quantity          int
	UnitPrice         decimal.Decimal
	// Discount is the total discount on the line
	Discount decimal.Decimal
	// TaxRate and CommissionRate are percentages, e.g. 20 for 20%
	TaxRate        decimal.Decimal
	CommissionRate decimal.Decimal
}

// ChannelOrder is a normalized order or package
type ChannelOrder struct {
	Platform      PlatformCode
	ExternalID    string
	OrderNumber   string
	RawStatus     string
	Statuses      sales.StatusSet
	PaymentMethod sales.PaymentMethod
	Currency      string
	TaxIncluded   bool
	Subtotal      decimal.Decimal
	Discount      decimal.Decimal
	Tax           decimal.Decimal
	ShippingPrice decimal.Decimal
	GrandTotal    decimal.Decimal
	Customer      ChannelCustomer
	Lines         []ChannelLine
	Shipping      ChannelShipping
	PlacedAt      *time.Time
	Payload       json.RawMessage
}

// TransactionKind classifies a money movement attached to a refund payload
type TransactionKind string

const (
	TransactionRefund  TransactionKind = "refund"
	TransactionVoid    TransactionKind = "void"
	TransactionCapture TransactionKind = "capture"
	TransactionSale    TransactionKind = "sale"
	TransactionAuth    TransactionKind = "authorization"
)

// TransactionStatus is the settlement state of a transaction
type TransactionStatus string

const (
	TransactionSuccess TransactionStatus = "success"
	TransactionPending TransactionStatus = "pending"
	TransactionFailure TransactionStatus = "failure"
	TransactionError   TransactionStatus = "error"
)

// ChannelTransaction is one money movement attached to a refund or claim
type ChannelTransaction struct {
	ExternalID  string
	Kind        TransactionKind
	Status      TransactionStatus
	Amount      decimal.Decimal
	Gateway     string
	Method      string
	ProcessedAt *time.Time
}

// RefundStatus maps the transaction status onto the return refund vocabulary
func (t ChannelTransaction) RefundStatus() returns.RefundStatus {
	switch t.Status {
	case TransactionSuccess:
		return returns.RefundStatusCompleted
	case TransactionFailure, TransactionError:
		return returns.RefundStatusFailed
	default:
		return returns.RefundStatusPending
	}
}

// Restock types carried on refund lines
const (
	RestockCancel        = "cancel"
	RestockReturn        = "return"
	RestockLegacyRestock = "legacy_restock"
	RestockNoRestock     = "no_restock"
)

// ChannelReturnLine is one returned or refunded line
type ChannelReturnLine struct {
	// OrderLineExternalID is the channel id of the originating order line
	OrderLineExternalID string
	VariantExternalID   string
	SKU                 string
	Barcode             string
	Quantity            int
	RestockType         string
	Reason              string
	RefundAmount        decimal.Decimal
}

// IsOrderEdit reports whether the line means "removed from order", not "sent back"
func (l ChannelReturnLine) IsOrderEdit() bool {
	return l.RestockType == RestockCancel
}

// IsRestocked reports whether the goods physically came back into stock
func (l ChannelReturnLine) IsRestocked() bool {
	return l.RestockType == RestockReturn || l.RestockType == RestockLegacyRestock
}

// ChannelReturn is a normalized refund, return request or claim
type ChannelReturn struct {
	Platform   PlatformCode
	Kind       returns.Kind
	ExternalID string
	// ReturnRequestRef is a back-reference to a separate return request id
	ReturnRequestRef string
	OrderExternalID  string
	// Status is set for return requests and claims from the channel vocabulary.
	// Refunds derive their status from transactions.
	Status       returns.Status
	ReasonCode   string
	ReasonName   string
	CustomerNote string
	Currency     string
	Lines        []ChannelReturnLine
	Transactions []ChannelTransaction
	Shipping     ChannelShipping
	OccurredAt   *time.Time
	Payload      json.RawMessage
}

// RefundTransactions returns the transactions tagged as refunds
func (r ChannelReturn) RefundTransactions() []ChannelTransaction {
	var out []ChannelTransaction
	for _, t := range r.Transactions {
		if t.Kind == TransactionRefund {
			out = append(out, t)
		}
	}
	return out
}

// IsVoid reports whether the payload only reverses an authorization
func (r ChannelReturn) IsVoid() bool {
	if len(r.Transactions) == 0 {
		return false
	}
	for _, t := range r.Transactions {
		if t.Kind != TransactionVoid {
			return false
		}
	}
	return true
}

// HasMoneyMovement reports whether any refund transaction succeeded or is in flight
func (r ChannelReturn) HasMoneyMovement() bool {
	for _, t := range r.RefundTransactions() {
		if t.Status == TransactionSuccess || t.Status == TransactionPending {
			return true
		}
	}
	return false
}

// AllOrderEdits reports whether every line is tagged as an order edit
func (r ChannelReturn) AllOrderEdits() bool {
	if len(r.Lines) == 0 {
		return false
	}
	for _, l := range r.Lines {
		if !l.IsOrderEdit() {
			return false
		}
	}
	return true
}

// AnyRestocked reports whether at least one line came back into stock
func (r ChannelReturn) AnyRestocked() bool {
	for _, l := range r.Lines {
		if l.IsRestocked() {
			return true
		}
	}
	return false
}

// ChannelVariant is one variant of a channel product listing
type ChannelVariant struct {
	ExternalID string
	SKU        string
	Barcode    string
	Title      string
	Price      decimal.Decimal
	Stock      *int
}

// ChannelProduct is a normalized product listing
type ChannelProduct struct {
	Platform   PlatformCode
	ExternalID string
	Title      string
	Currency   string
	Variants   []ChannelVariant
	Payload    json.RawMessage
}

// ChannelShipment is a normalized shipping aggregator event
type ChannelShipment struct {
	Platform       PlatformCode
	ShipmentID     string
	OrderReference string
	TrackingNumber string
	Carrier        string
	// ReturnStatus is the return lifecycle status implied by the carrier event, if any
	ReturnStatus returns.Status
	IsReturn     bool
	Desi         decimal.Decimal
	Currency     string
	// OutboundCost and ReturnCost are itemized costs excluding VAT; TotalCost is
	// set when only a combined amount is available
	OutboundCost *decimal.Decimal
	ReturnCost   *decimal.Decimal
	TotalCost    *decimal.Decimal
	Payload      json.RawMessage
}
