package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/omnisync/backend/internal/domain/sales"
	"github.com/omnisync/backend/internal/domain/shared/valueobject"
)

// ShippingColumns is the embedded shipping block shared by orders and returns
type ShippingColumns struct {
	Carrier              string          `gorm:"type:varchar(50)"`
	TrackingNumber       string          `gorm:"type:varchar(100);index"`
	CostExclVAT          int64           `gorm:"column:cost_excl_vat;not null;default:0"`
	VATRate              int64           `gorm:"column:vat_rate;not null;default:0"`
	VATAmount            int64           `gorm:"column:vat_amount;not null;default:0"`
	AggregatorShipmentID string          `gorm:"type:varchar(100);index"`
	Desi                 decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0"`
}

// ToDomain converts the columns to a domain Shipping block
func (c ShippingColumns) ToDomain() sales.Shipping {
	return sales.Shipping{
		Carrier:              c.Carrier,
		TrackingNumber:       c.TrackingNumber,
		CostExclVAT:          c.CostExclVAT,
		VATRate:              c.VATRate,
		VATAmount:            c.VATAmount,
		AggregatorShipmentID: c.AggregatorShipmentID,
		Desi:                 c.Desi,
	}
}

// ShippingColumnsFromDomain creates columns from a domain Shipping block
func ShippingColumnsFromDomain(s sales.Shipping) ShippingColumns {
	return ShippingColumns{
		Carrier:              s.Carrier,
		TrackingNumber:       s.TrackingNumber,
		CostExclVAT:          s.CostExclVAT,
		VATRate:              s.VATRate,
		VATAmount:            s.VATAmount,
		AggregatorShipmentID: s.AggregatorShipmentID,
		Desi:                 s.Desi,
	}
}

// CurrencyColumns is the embedded currency snapshot
type CurrencyColumns struct {
	Code         valueobject.Currency `gorm:"column:currency;type:varchar(3);not null;default:'TRY'"`
	CurrencyID   *uuid.UUID           `gorm:"column:currency_id;type:uuid"`
	ExchangeRate decimal.Decimal      `gorm:"column:exchange_rate;type:decimal(18,6);not null;default:1"`
}

// ToDomain converts the columns to a domain snapshot
func (c CurrencyColumns) ToDomain() valueobject.CurrencySnapshot {
	return valueobject.CurrencySnapshot{Code: c.Code, CurrencyID: c.CurrencyID, ExchangeRate: c.ExchangeRate}
}

// CurrencyColumnsFromDomain creates columns from a domain snapshot
func CurrencyColumnsFromDomain(s valueobject.CurrencySnapshot) CurrencyColumns {
	return CurrencyColumns{Code: s.Code, CurrencyID: s.CurrencyID, ExchangeRate: s.ExchangeRate}
}

// OrderModel is the persistence model for the Order aggregate
type OrderModel struct {
	AggregateModel
	Channel           string                  `gorm:"type:varchar(20);not null;index"`
	IntegrationID     *uuid.UUID              `gorm:"type:uuid;index"`
	OrderNumber       string                  `gorm:"type:varchar(100);not null;index"`
	OrderStatus       sales.OrderStatus       `gorm:"type:varchar(30);not null"`
	PaymentStatus     sales.PaymentStatus     `gorm:"type:varchar(30);not null"`
	FulfillmentStatus sales.FulfillmentStatus `gorm:"type:varchar(50);not null"`
	ReturnStatus      sales.ReturnStatus      `gorm:"type:varchar(20);not null;default:'none'"`
	PaymentMethod     sales.PaymentMethod     `gorm:"type:varchar(30);not null;default:'unknown'"`
	Currency          CurrencyColumns         `gorm:"embedded"`
	Subtotal          int64                   `gorm:"not null;default:0"`
	Discount          int64                   `gorm:"not null;default:0"`
	Tax               int64                   `gorm:"not null;default:0"`
	ShippingCharged   int64                   `gorm:"not null;default:0"`
	GrandTotal        int64                   `gorm:"not null;default:0"`
	Shipping          ShippingColumns         `gorm:"embedded;embeddedPrefix:shipping_"`
	TotalProductCost  int64                   `gorm:"not null;default:0"`
	TotalCommission   int64                   `gorm:"not null;default:0"`
	CustomerID        *uuid.UUID              `gorm:"type:uuid;index"`
	PlacedAt          *time.Time
	Payload           datatypes.JSON   `gorm:"type:jsonb"`
	Items             []OrderItemModel `gorm:"foreignKey:OrderID;references:ID"`
	Customer          *CustomerModel   `gorm:"foreignKey:CustomerID;references:ID"`
}

// TableName returns the table name for GORM
func (OrderModel) TableName() string {
	return "orders"
}

// ToDomain converts the persistence model to a domain Order
func (m *OrderModel) ToDomain() *sales.Order {
	o := &sales.Order{
		Channel:           m.Channel,
		IntegrationID:     m.IntegrationID,
		OrderNumber:       m.OrderNumber,
		OrderStatus:       m.OrderStatus,
		PaymentStatus:     m.PaymentStatus,
		FulfillmentStatus: m.FulfillmentStatus,
		ReturnStatus:      m.ReturnStatus,
		PaymentMethod:     m.PaymentMethod,
		Currency:          m.Currency.ToDomain(),
		Totals: sales.Totals{
			Subtotal:        m.Subtotal,
			Discount:        m.Discount,
			Tax:             m.Tax,
			ShippingCharged: m.ShippingCharged,
			GrandTotal:      m.GrandTotal,
		},
		Shipping:         m.Shipping.ToDomain(),
		TotalProductCost: m.TotalProductCost,
		TotalCommission:  m.TotalCommission,
		CustomerID:       m.CustomerID,
		PlacedAt:         m.PlacedAt,
		Payload:          json.RawMessage(m.Payload),
		Items:            make([]sales.OrderItem, len(m.Items)),
	}
	m.PopulateAggregateRoot(&o.BaseAggregateRoot)
	for i := range m.Items {
		o.Items[i] = *m.Items[i].ToDomain()
	}
	if m.Customer != nil {
		o.Customer = m.Customer.ToDomain()
	}
	return o
}

// OrderModelFromDomain creates a new persistence model from a domain Order.
// Items are mapped but saved separately by the repository.
func OrderModelFromDomain(o *sales.Order) *OrderModel {
	m := &OrderModel{
		Channel:           o.Channel,
		IntegrationID:     o.IntegrationID,
		OrderNumber:       o.OrderNumber,
		OrderStatus:       o.OrderStatus,
		PaymentStatus:     o.PaymentStatus,
		FulfillmentStatus: o.FulfillmentStatus,
		ReturnStatus:      o.ReturnStatus,
		PaymentMethod:     o.PaymentMethod,
		Currency:          CurrencyColumnsFromDomain(o.Currency),
		Subtotal:          o.Totals.Subtotal,
		Discount:          o.Totals.Discount,
		Tax:               o.Totals.Tax,
		ShippingCharged:   o.Totals.ShippingCharged,
		GrandTotal:        o.Totals.GrandTotal,
		Shipping:          ShippingColumnsFromDomain(o.Shipping),
		TotalProductCost:  o.TotalProductCost,
		TotalCommission:   o.TotalCommission,
		CustomerID:        o.CustomerID,
		PlacedAt:          o.PlacedAt,
		Payload:           datatypes.JSON(o.Payload),
		Items:             make([]OrderItemModel, len(o.Items)),
	}
	m.FromDomainAggregateRoot(o.BaseAggregateRoot)
	for i := range o.Items {
		m.Items[i] = *OrderItemModelFromDomain(&o.Items[i])
	}
	return m
}

// OrderItemModel is the persistence model for an OrderItem
type OrderItemModel struct {
	ID               uuid.UUID `gorm:"type:uuid;primary_key"`
	OrderID          uuid.UUID `gorm:"type:uuid;not null;index"`
	VariantID        uuid.UUID `gorm:"type:uuid;not null;index"`
	ExternalLineID   string    `gorm:"type:varchar(100)"`
	Name             string    `gorm:"type:varchar(255)"`
	SKU              string    `gorm:"column:sku;type:varchar(100)"`
	Barcode          string    `gorm:"type:varchar(100)"`
	Quantity         int       `gorm:"not null"`
	UnitPrice        int64     `gorm:"not null;default:0"`
	UnitCost         int64     `gorm:"not null;default:0"`
	Discount         int64     `gorm:"not null;default:0"`
	TaxIncluded      bool      `gorm:"not null"`
	TaxRate          int64     `gorm:"not null;default:0"`
	TaxAmount        int64     `gorm:"not null;default:0"`
	CommissionRate   int64     `gorm:"not null;default:0"`
	CommissionAmount int64     `gorm:"not null;default:0"`
	LineTotal        int64     `gorm:"not null;default:0"`
	CreatedAt        time.Time `gorm:"not null"`
	UpdatedAt        time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (OrderItemModel) TableName() string {
	return "order_items"
}

// ToDomain converts the persistence model to a domain OrderItem
func (m *OrderItemModel) ToDomain() *sales.OrderItem {
	return &sales.OrderItem{
		ID:               m.ID,
		OrderID:          m.OrderID,
		VariantID:        m.VariantID,
		ExternalLineID:   m.ExternalLineID,
		Name:             m.Name,
		SKU:              m.SKU,
		Barcode:          m.Barcode,
		Quantity:         m.Quantity,
		UnitPrice:        m.UnitPrice,
		UnitCost:         m.UnitCost,
		Discount:         m.Discount,
		TaxIncluded:      m.TaxIncluded,
		TaxRate:          m.TaxRate,
		TaxAmount:        m.TaxAmount,
		CommissionRate:   m.CommissionRate,
		CommissionAmount: m.CommissionAmount,
		LineTotal:        m.LineTotal,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

// OrderItemModelFromDomain creates a new persistence model from a domain OrderItem
func OrderItemModelFromDomain(i *sales.OrderItem) *OrderItemModel {
	return &OrderItemModel{
		ID:               i.ID,
		OrderID:          i.OrderID,
		VariantID:        i.VariantID,
		ExternalLineID:   i.ExternalLineID,
		Name:             i.Name,
		SKU:              i.SKU,
		Barcode:          i.Barcode,
		Quantity:         i.Quantity,
		UnitPrice:        i.UnitPrice,
		UnitCost:         i.UnitCost,
		Discount:         i.Discount,
		TaxIncluded:      i.TaxIncluded,
		TaxRate:          i.TaxRate,
		TaxAmount:        i.TaxAmount,
		CommissionRate:   i.CommissionRate,
		CommissionAmount: i.CommissionAmount,
		LineTotal:        i.LineTotal,
		CreatedAt:        i.CreatedAt,
		UpdatedAt:        i.UpdatedAt,
	}
}
