package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/omnisync/backend/internal/domain/returns"
)

// OrderReturnModel is the persistence model for the OrderReturn aggregate
type OrderReturnModel struct {
	AggregateModel
	Channel          string         `gorm:"type:varchar(20);not null;index"`
	OrderID          uuid.UUID      `gorm:"type:uuid;not null;index"`
	ExternalID       string         `gorm:"type:varchar(100);index"`
	Kind             returns.Kind   `gorm:"type:varchar(20);not null;default:'REFUND'"`
	Status           returns.Status `gorm:"type:varchar(20);not null;index"`
	RequestedAt      *time.Time
	ApprovedAt       *time.Time
	LabelGeneratedAt *time.Time
	ShippedAt        *time.Time
	ReceivedAt       *time.Time
	InspectedAt      *time.Time
	CompletedAt      *time.Time
	RejectedAt       *time.Time
	CancelledAt      *time.Time
	ReasonCode       string                    `gorm:"type:varchar(50)"`
	ReasonName       string                    `gorm:"type:varchar(255)"`
	CustomerNote     string                    `gorm:"type:text"`
	InternalNote     string                    `gorm:"type:text"`
	Shipping         ShippingColumns           `gorm:"embedded;embeddedPrefix:shipping_"`
	LabelKey         string                    `gorm:"type:varchar(255)"`
	Currency         CurrencyColumns           `gorm:"embedded"`
	RefundTotal      int64                     `gorm:"not null;default:0"`
	RestockingFee    int64                     `gorm:"not null;default:0"`
	Payload          datatypes.JSON            `gorm:"type:jsonb"`
	Items            []ReturnItemModel         `gorm:"foreignKey:ReturnID;references:ID"`
	Refunds          []ReturnRefundModel       `gorm:"foreignKey:ReturnID;references:ID"`
	History          []ReturnStatusChangeModel `gorm:"foreignKey:ReturnID;references:ID"`
}

// TableName returns the table name for GORM
func (OrderReturnModel) TableName() string {
	return "order_returns"
}

// ToDomain converts the persistence model to a domain OrderReturn.
// Loaded history entries are marked persisted.
func (m *OrderReturnModel) ToDomain() *returns.OrderReturn {
	r := &returns.OrderReturn{
		Channel:          m.Channel,
		OrderID:          m.OrderID,
		ExternalID:       m.ExternalID,
		Kind:             m.Kind,
		Status:           m.Status,
		RequestedAt:      m.RequestedAt,
		ApprovedAt:       m.ApprovedAt,
		LabelGeneratedAt: m.LabelGeneratedAt,
		ShippedAt:        m.ShippedAt,
		ReceivedAt:       m.ReceivedAt,
		InspectedAt:      m.InspectedAt,
		CompletedAt:      m.CompletedAt,
		RejectedAt:       m.RejectedAt,
		CancelledAt:      m.CancelledAt,
		ReasonCode:       m.ReasonCode,
		ReasonName:       m.ReasonName,
		CustomerNote:     m.CustomerNote,
		InternalNote:     m.InternalNote,
		Shipping:         m.Shipping.ToDomain(),
		LabelKey:         m.LabelKey,
		Currency:         m.Currency.ToDomain(),
		RefundTotal:      m.RefundTotal,
		RestockingFee:    m.RestockingFee,
		Payload:          json.RawMessage(m.Payload),
		Items:            make([]returns.ReturnItem, len(m.Items)),
		Refunds:          make([]returns.ReturnRefund, len(m.Refunds)),
		History:          make([]returns.StatusChange, len(m.History)),
	}
	m.PopulateAggregateRoot(&r.BaseAggregateRoot)
	for i := range m.Items {
		r.Items[i] = m.Items[i].ToDomain()
	}
	for i := range m.Refunds {
		r.Refunds[i] = m.Refunds[i].ToDomain()
	}
	for i := range m.History {
		r.History[i] = m.History[i].ToDomain()
		r.History[i].MarkPersisted()
	}
	return r
}

// OrderReturnModelFromDomain creates a header-only persistence model from a
// domain OrderReturn. Children are written by the repository.
func OrderReturnModelFromDomain(r *returns.OrderReturn) *OrderReturnModel {
	m := &OrderReturnModel{
		Channel:          r.Channel,
		OrderID:          r.OrderID,
		ExternalID:       r.ExternalID,
		Kind:             r.Kind,
		Status:           r.Status,
		RequestedAt:      r.RequestedAt,
		ApprovedAt:       r.ApprovedAt,
		LabelGeneratedAt: r.LabelGeneratedAt,
		ShippedAt:        r.ShippedAt,
		ReceivedAt:       r.ReceivedAt,
		InspectedAt:      r.InspectedAt,
		CompletedAt:      r.CompletedAt,
		RejectedAt:       r.RejectedAt,
		CancelledAt:      r.CancelledAt,
		ReasonCode:       r.ReasonCode,
		ReasonName:       r.ReasonName,
		CustomerNote:     r.CustomerNote,
		InternalNote:     r.InternalNote,
		Shipping:         ShippingColumnsFromDomain(r.Shipping),
		LabelKey:         r.LabelKey,
		Currency:         CurrencyColumnsFromDomain(r.Currency),
		RefundTotal:      r.RefundTotal,
		RestockingFee:    r.RestockingFee,
		Payload:          datatypes.JSON(r.Payload),
	}
	m.FromDomainAggregateRoot(r.BaseAggregateRoot)
	return m
}

// ReturnItemModel is the persistence model for a ReturnItem
type ReturnItemModel struct {
	ID           uuid.UUID             `gorm:"type:uuid;primary_key"`
	ReturnID     uuid.UUID             `gorm:"type:uuid;not null;uniqueIndex:uq_return_items_order_item"`
	OrderItemID  uuid.UUID             `gorm:"type:uuid;not null;uniqueIndex:uq_return_items_order_item"`
	Quantity     int                   `gorm:"not null"`
	Reason       string                `gorm:"type:varchar(255)"`
	Condition    returns.ItemCondition `gorm:"type:varchar(20)"`
	RefundAmount int64                 `gorm:"not null;default:0"`
	CreatedAt    time.Time             `gorm:"not null"`
	UpdatedAt    time.Time             `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ReturnItemModel) TableName() string {
	return "order_return_items"
}

// ToDomain converts the persistence model to a domain ReturnItem
func (m *ReturnItemModel) ToDomain() returns.ReturnItem {
	return returns.ReturnItem{
		ID:           m.ID,
		ReturnID:     m.ReturnID,
		OrderItemID:  m.OrderItemID,
		Quantity:     m.Quantity,
		Reason:       m.Reason,
		Condition:    m.Condition,
		RefundAmount: m.RefundAmount,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

// ReturnItemModelFromDomain creates a new persistence model from a domain ReturnItem
func ReturnItemModelFromDomain(i returns.ReturnItem) *ReturnItemModel {
	return &ReturnItemModel{
		ID:           i.ID,
		ReturnID:     i.ReturnID,
		OrderItemID:  i.OrderItemID,
		Quantity:     i.Quantity,
		Reason:       i.Reason,
		Condition:    i.Condition,
		RefundAmount: i.RefundAmount,
		CreatedAt:    i.CreatedAt,
		UpdatedAt:    i.UpdatedAt,
	}
}

// ReturnRefundModel is the persistence model for a ReturnRefund
type ReturnRefundModel struct {
	ID          uuid.UUID            `gorm:"type:uuid;primary_key"`
	ReturnID    uuid.UUID            `gorm:"type:uuid;not null;index"`
	ExternalID  string               `gorm:"type:varchar(100);index"`
	Amount      int64                `gorm:"not null;default:0"`
	Method      string               `gorm:"type:varchar(50)"`
	Gateway     string               `gorm:"type:varchar(50)"`
	Status      returns.RefundStatus `gorm:"type:varchar(20);not null"`
	ProcessedAt *time.Time
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ReturnRefundModel) TableName() string {
	return "order_return_refunds"
}

// ToDomain converts the persistence model to a domain ReturnRefund
func (m *ReturnRefundModel) ToDomain() returns.ReturnRefund {
	return returns.ReturnRefund{
		ID:          m.ID,
		ReturnID:    m.ReturnID,
		ExternalID:  m.ExternalID,
		Amount:      m.Amount,
		Method:      m.Method,
		Gateway:     m.Gateway,
		Status:      m.Status,
		ProcessedAt: m.ProcessedAt,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// ReturnRefundModelFromDomain creates a new persistence model from a domain ReturnRefund
func ReturnRefundModelFromDomain(r returns.ReturnRefund) *ReturnRefundModel {
	return &ReturnRefundModel{
		ID:          r.ID,
		ReturnID:    r.ReturnID,
		ExternalID:  r.ExternalID,
		Amount:      r.Amount,
		Method:      r.Method,
		Gateway:     r.Gateway,
		Status:      r.Status,
		ProcessedAt: r.ProcessedAt,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// ReturnStatusChangeModel is an append-only row of the return state machine trail
type ReturnStatusChangeModel struct {
	ID         uuid.UUID      `gorm:"type:uuid;primary_key"`
	ReturnID   uuid.UUID      `gorm:"type:uuid;not null;index"`
	FromStatus returns.Status `gorm:"type:varchar(20)"`
	ToStatus   returns.Status `gorm:"type:varchar(20);not null"`
	Actor      string         `gorm:"type:varchar(64)"`
	Reason     string         `gorm:"type:varchar(255)"`
	ChangedAt  time.Time      `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (ReturnStatusChangeModel) TableName() string {
	return "order_return_status_history"
}

// ToDomain converts the persistence model to a domain StatusChange
func (m *ReturnStatusChangeModel) ToDomain() returns.StatusChange {
	return returns.StatusChange{
		ID:       m.ID,
		ReturnID: m.ReturnID,
		From:     m.FromStatus,
		To:       m.ToStatus,
		Actor:    returns.Actor(m.Actor),
		Reason:   m.Reason,
		At:       m.ChangedAt,
	}
}

// ReturnStatusChangeModelFromDomain creates a new persistence model from a domain StatusChange
func ReturnStatusChangeModelFromDomain(c returns.StatusChange) *ReturnStatusChangeModel {
	return &ReturnStatusChangeModel{
		ID:         c.ID,
		ReturnID:   c.ReturnID,
		FromStatus: c.From,
		ToStatus:   c.To,
		Actor:      string(c.Actor),
		Reason:     c.Reason,
		ChangedAt:  c.At,
	}
}
