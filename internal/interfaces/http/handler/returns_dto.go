package handler

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/omnisync/backend/internal/domain/returns"
	"github.com/omnisync/backend/internal/domain/shared/valueobject"
)

// ApproveReturnRequest is the body of POST /returns/:id/approve
type ApproveReturnRequest struct {
	Note string `json:"note" binding:"omitempty,max=2000"`
}

// GenerateLabelRequest is the body of POST /returns/:id/label.
// Without a tracking number the label is bought through the shipping aggregator.
type GenerateLabelRequest struct {
	Carrier        string          `json:"carrier" binding:"omitempty,max=100"`
	TrackingNumber string          `json:"tracking_number" binding:"omitempty,max=100"`
	Desi           decimal.Decimal `json:"desi"`
}

// ShipReturnRequest is the body of POST /returns/:id/ship
type ShipReturnRequest struct {
	TrackingNumber string `json:"tracking_number" binding:"omitempty,max=100"`
}

// ReasonRequest is the body of the reject and cancel actions
type ReasonRequest struct {
	Reason string `json:"reason" binding:"omitempty,max=2000"`
}

// ItemConditionRequest is the body of PUT /returns/:id/items/:item_id/condition
type ItemConditionRequest struct {
	Condition string `json:"condition" binding:"required,oneof=resellable damaged defective wrong_item"`
}

// ReturnItemResponse is one returned line
type ReturnItemResponse struct {
	ID           uuid.UUID       `json:"id"`
	OrderItemID  uuid.UUID       `json:"order_item_id"`
	Quantity     int             `json:"quantity"`
	Reason       string          `json:"reason,omitempty"`
	Condition    string          `json:"condition,omitempty"`
	RefundAmount decimal.Decimal `json:"refund_amount"`
}

// ReturnRefundResponse is one refund transaction
type ReturnRefundResponse struct {
	ExternalID  string          `json:"external_id"`
	Amount      decimal.Decimal `json:"amount"`
	Method      string          `json:"method,omitempty"`
	Gateway     string          `json:"gateway,omitempty"`
	Status      string          `json:"status"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
}

// StatusChangeResponse is one audit trail entry
type StatusChangeResponse struct {
	From   string    `json:"from,omitempty"`
	To     string    `json:"to"`
	Actor  string    `json:"actor"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

// ReturnShippingResponse describes the return parcel
type ReturnShippingResponse struct {
	Carrier        string `json:"carrier,omitempty"`
	TrackingNumber string `json:"tracking_number,omitempty"`
	HasLabel       bool   `json:"has_label"`
}

// ReturnResponse is the API view of an order return
type ReturnResponse struct {
	ID            uuid.UUID              `json:"id"`
	OrderID       uuid.UUID              `json:"order_id"`
	Channel       string                 `json:"channel"`
	ExternalID    string                 `json:"external_id"`
	Kind          string                 `json:"kind"`
	Status        string                 `json:"status"`
	ReasonCode    string                 `json:"reason_code,omitempty"`
	ReasonName    string                 `json:"reason_name,omitempty"`
	CustomerNote  string                 `json:"customer_note,omitempty"`
	InternalNote  string                 `json:"internal_note,omitempty"`
	Currency      string                 `json:"currency,omitempty"`
	RefundTotal   decimal.Decimal        `json:"refund_total"`
	RestockingFee decimal.Decimal        `json:"restocking_fee"`
	Shipping      ReturnShippingResponse `json:"shipping"`
	Items         []ReturnItemResponse   `json:"items"`
	Refunds       []ReturnRefundResponse `json:"refunds"`
	History       []StatusChangeResponse `json:"history"`
	RequestedAt   *time.Time             `json:"requested_at,omitempty"`
	ApprovedAt    *time.Time             `json:"approved_at,omitempty"`
	ShippedAt     *time.Time             `json:"shipped_at,omitempty"`
	ReceivedAt    *time.Time             `json:"received_at,omitempty"`
	CompletedAt   *time.Time             `json:"completed_at,omitempty"`
	RejectedAt    *time.Time             `json:"rejected_at,omitempty"`
	CancelledAt   *time.Time             `json:"cancelled_at,omitempty"`
	Version       int                    `json:"version"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

func toReturnResponse(r *returns.OrderReturn) ReturnResponse {
	cur := r.Currency.Code
	major := func(minor int64) decimal.Decimal {
		if cur == "" {
			return decimal.NewFromInt(minor)
		}
		return valueobject.ToMajorUnits(minor, cur)
	}

	resp := ReturnResponse{
		ID:            r.ID,
		OrderID:       r.OrderID,
		Channel:       r.Channel,
		ExternalID:    r.ExternalID,
		Kind:          string(r.Kind),
		Status:        string(r.Status),
		ReasonCode:    r.ReasonCode,
		ReasonName:    r.ReasonName,
		CustomerNote:  r.CustomerNote,
		InternalNote:  r.InternalNote,
		Currency:      string(cur),
		RefundTotal:   major(r.RefundTotal),
		RestockingFee: major(r.RestockingFee),
		Shipping: ReturnShippingResponse{
			Carrier:        r.Shipping.Carrier,
			TrackingNumber: r.Shipping.TrackingNumber,
			HasLabel:       r.LabelKey != "",
		},
		Items:       make([]ReturnItemResponse, 0, len(r.Items)),
		Refunds:     make([]ReturnRefundResponse, 0, len(r.Refunds)),
		History:     make([]StatusChangeResponse, 0, len(r.History)),
		RequestedAt: r.RequestedAt,
		ApprovedAt:  r.ApprovedAt,
		ShippedAt:   r.ShippedAt,
		ReceivedAt:  r.ReceivedAt,
		CompletedAt: r.CompletedAt,
		RejectedAt:  r.RejectedAt,
		CancelledAt: r.CancelledAt,
		Version:     r.Version,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	for _, it := range r.Items {
		resp.Items = append(resp.Items, ReturnItemResponse{
			ID:           it.ID,
			OrderItemID:  it.OrderItemID,
			Quantity:     it.Quantity,
			Reason:       it.Reason,
			Condition:    string(it.Condition),
			RefundAmount: major(it.RefundAmount),
		})
	}
	for _, rf := range r.Refunds {
		resp.Refunds = append(resp.Refunds, ReturnRefundResponse{
			ExternalID:  rf.ExternalID,
			Amount:      major(rf.Amount),
			Method:      rf.Method,
			Gateway:     rf.Gateway,
			Status:      string(rf.Status),
			ProcessedAt: rf.ProcessedAt,
		})
	}
	for _, ch := range r.History {
		resp.History = append(resp.History, StatusChangeResponse{
			From:   string(ch.From),
			To:     string(ch.To),
			Actor:  string(ch.Actor),
			Reason: ch.Reason,
			At:     ch.At,
		})
	}
	return resp
}
