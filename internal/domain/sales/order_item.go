package sales

import (
	"time"

	"github.com/google/uuid"

	"github.com/omnisync/backend/internal/domain/shared"
	"github.com/omnisync/backend/internal/domain/shared/valueobject"
)

// OrderItem is one line of an order, tied 1:1 to a product variant.
// Money fields are minor units, rates are basis points.
type OrderItem struct {
	ID               uuid.UUID
	OrderID          uuid.UUID
	VariantID        uuid.UUID
	ExternalLineID   string
	Name             string
	SKU              string
	Barcode          string
	Quantity         int
	UnitPrice        int64
	UnitCost         int64
	Discount         int64
	TaxIncluded      bool
	TaxRate          int64
	TaxAmount        int64
	CommissionRate   int64
	CommissionAmount int64
	LineTotal        int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// LineInput carries the channel line fields an item is built from
type LineInput struct {
	ExternalLineID string
	Name           string
	SKU            string
	Barcode        string
	Quantity       int
	UnitPrice      int64
	UnitCost       int64
	Discount       int64
	TaxIncluded    bool
	TaxRate        int64
	CommissionRate int64
}

// NewOrderItem creates an item for a variant
func NewOrderItem(variantID uuid.UUID, in LineInput, now time.Time) (*OrderItem, error) {
	if variantID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_VARIANT", "Variant ID cannot be empty")
	}
	item := &OrderItem{
		ID:        uuid.New(),
		VariantID: variantID,
		CreatedAt: now,
	}
	if err := item.Apply(in, now); err != nil {
		return nil, err
	}
	return item, nil
}

// Apply overwrites the line fields and recomputes derived amounts
func (i *OrderItem) Apply(in LineInput, now time.Time) error {
	if in.Quantity <= 0 {
		return shared.NewDomainError("INVALID_QUANTITY", "Quantity must be positive")
	}
	if in.ExternalLineID != "" {
		i.ExternalLineID = in.ExternalLineID
	}
	i.Name = in.Name
	i.SKU = in.SKU
	i.Barcode = in.Barcode
	i.Quantity = in.Quantity
	i.UnitPrice = in.UnitPrice
	if in.UnitCost > 0 {
		i.UnitCost = in.UnitCost
	}
	i.Discount = in.Discount
	i.TaxIncluded = in.TaxIncluded
	i.TaxRate = in.TaxRate
	i.CommissionRate = in.CommissionRate
	i.Recalculate()
	i.UpdatedAt = now
	return nil
}

// NetAmount is the line price after discount
func (i *OrderItem) NetAmount() int64 {
	return i.UnitPrice*int64(i.Quantity) - i.Discount
}

// Recalculate derives tax, commission and line total from the rates
func (i *OrderItem) Recalculate() {
	net := i.NetAmount()
	if i.TaxIncluded {
		i.TaxAmount = valueobject.IncludedTax(net, i.TaxRate)
		i.LineTotal = net
	} else {
		i.TaxAmount = valueobject.ApplyRate(net, i.TaxRate)
		i.LineTotal = net + i.TaxAmount
	}
	i.CommissionAmount = valueobject.ApplyRate(net, i.CommissionRate)
}
