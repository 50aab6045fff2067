package returns

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/omnisync/backend/internal/domain/sales"
	"github.com/omnisync/backend/internal/domain/shared"
	"github.com/omnisync/backend/internal/domain/shared/valueobject"
)

// ReasonChannelSync attributes transitions driven by channel or carrier updates
const ReasonChannelSync = "channel_sync"

// Actor identifies who performed a lifecycle action: a staff user id or the system
type Actor string

// SystemActor is used for automated, channel-driven transitions
const SystemActor Actor = Actor(shared.SystemActor)

// StaffActor builds an actor from a staff user id
func StaffActor(id uuid.UUID) Actor {
	if id == uuid.Nil {
		return ""
	}
	return Actor(id.String())
}

// ReturnItem is a returned line, keyed by the originating order item
type ReturnItem struct {
	ID           uuid.UUID
	ReturnID     uuid.UUID
	OrderItemID  uuid.UUID
	Quantity     int
	Reason       string
	Condition    ItemCondition
	RefundAmount int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ReturnRefund is one money movement back to the customer, keyed by external transaction id
type ReturnRefund struct {
	ID          uuid.UUID
	ReturnID    uuid.UUID
	ExternalID  string
	Amount      int64
	Method      string
	Gateway     string
	Status      RefundStatus
	ProcessedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// StatusChange is one entry of the state machine audit trail
type StatusChange struct {
	ID       uuid.UUID
	ReturnID uuid.UUID
	From     Status
	To       Status
	Actor    Actor
	Reason   string
	At       time.Time
	// persisted marks rows already written by the repository
	persisted bool
}

// IsPersisted reports whether the repository already stored this entry
func (c *StatusChange) IsPersisted() bool { return c.persisted }

// MarkPersisted is called by the repository after writing or loading the entry
func (c *StatusChange) MarkPersisted() { c.persisted = true }

// LabelInfo describes a generated return label
type LabelInfo struct {
	Carrier              string
	TrackingNumber       string
	AggregatorShipmentID string
	LabelKey             string
}

// OrderReturn is the canonical return/refund aggregate. Never deleted by sync.
type OrderReturn struct {
	shared.BaseAggregateRoot
	Channel    string
	OrderID    uuid.UUID
	ExternalID string
	Kind       Kind
	Status     Status

	RequestedAt      *time.Time
	ApprovedAt       *time.Time
	LabelGeneratedAt *time.Time
	ShippedAt        *time.Time
	ReceivedAt       *time.Time
	InspectedAt      *time.Time
	CompletedAt      *time.Time
	RejectedAt       *time.Time
	CancelledAt      *time.Time

	ReasonCode   string
	ReasonName   string
	CustomerNote string
	InternalNote string

	Shipping      sales.Shipping
	LabelKey      string
	Currency      valueobject.CurrencySnapshot
	RefundTotal   int64
	RestockingFee int64
	Payload       json.RawMessage

	Items   []ReturnItem
	Refunds []ReturnRefund
	History []StatusChange
}

// NewOrderReturn creates a return for an order in the given initial status.
// The creation itself is recorded in the audit trail.
func NewOrderReturn(orderID uuid.UUID, channel, externalID string, kind Kind, initial Status, actor Actor, now time.Time) (*OrderReturn, error) {
	if orderID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_ORDER", "Order ID cannot be empty")
	}
	if !initial.IsValid() {
		initial = StatusRequested
	}
	if actor == "" {
		return nil, actorRequired()
	}
	r := &OrderReturn{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(now),
		Channel:           channel,
		OrderID:           orderID,
		ExternalID:        externalID,
		Kind:              kind,
		Status:            initial,
		Items:             make([]ReturnItem, 0),
		Refunds:           make([]ReturnRefund, 0),
	}
	r.stamp(StatusRequested, now)
	if initial != StatusRequested {
		r.stamp(initial, now)
	}
	r.record("", initial, actor, "created", now)
	r.AddDomainEvent(NewReturnCreatedEvent(r, now))
	return r, nil
}

func actorRequired() error {
	return shared.NewDomainError(shared.ErrActorRequired.Code, "An acting user is required for this action")
}

func invalidTransition(action Action, from Status) error {
	return shared.NewDomainError(shared.ErrInvalidTransition.Code,
		fmt.Sprintf("Cannot %s return in %s status", strings.ReplaceAll(string(action), "_", " "), from))
}

// transition is the single guarded mutation path of the state machine.
// On error nothing is mutated.
func (r *OrderReturn) transition(action Action, actor Actor, reason string, now time.Time) error {
	if actor == "" {
		return actorRequired()
	}
	target := action.Target()
	if !r.Status.CanTransitionTo(target) {
		return invalidTransition(action, r.Status)
	}
	from := r.Status
	r.Status = target
	r.stamp(target, now)
	r.record(from, target, actor, reason, now)
	return nil
}

func (r *OrderReturn) record(from, to Status, actor Actor, reason string, now time.Time) {
	r.History = append(r.History, StatusChange{
		ID:       uuid.New(),
		ReturnID: r.ID,
		From:     from,
		To:       to,
		Actor:    actor,
		Reason:   reason,
		At:       now,
	})
	r.Touch(now)
	if from != "" {
		r.AddDomainEvent(NewReturnStatusChangedEvent(r, from, to, actor, reason, now))
	}
}

// stamp sets the timestamp for a status at most once
func (r *OrderReturn) stamp(status Status, now time.Time) {
	var field **time.Time
	switch status {
	case StatusRequested:
		field = &r.RequestedAt
	case StatusApproved:
		field = &r.ApprovedAt
	case StatusLabelGenerated:
		field = &r.LabelGeneratedAt
	case StatusInTransit:
		field = &r.ShippedAt
	case StatusReceived:
		field = &r.ReceivedAt
	case StatusInspecting:
		field = &r.InspectedAt
	case StatusCompleted:
		field = &r.CompletedAt
	case StatusRejected:
		field = &r.RejectedAt
	case StatusCancelled:
		field = &r.CancelledAt
	default:
		return
	}
	if *field == nil {
		t := now
		*field = &t
	}
}

// SubmitForReview moves a requested return into staff review
func (r *OrderReturn) SubmitForReview(actor Actor, now time.Time) error {
	return r.transition(ActionSubmitForReview, actor, "", now)
}

// Approve accepts the return
func (r *OrderReturn) Approve(actor Actor, note string, now time.Time) error {
	if err := r.transition(ActionApprove, actor, note, now); err != nil {
		return err
	}
	r.appendInternalNote(note)
	return nil
}

// GenerateLabel records the return label and its carrier details
func (r *OrderReturn) GenerateLabel(actor Actor, label LabelInfo, now time.Time) error {
	if actor != "" && r.Status.CanTransitionTo(StatusLabelGenerated) && label.TrackingNumber == "" && label.LabelKey == "" {
		return shared.NewDomainError("INVALID_LABEL", "Label requires a tracking number or a stored label")
	}
	if err := r.transition(ActionGenerateLabel, actor, "", now); err != nil {
		return err
	}
	r.applyLabel(label)
	return nil
}

// MarkInTransit records that the parcel is on its way back
func (r *OrderReturn) MarkInTransit(actor Actor, trackingNumber string, now time.Time) error {
	if err := r.transition(ActionMarkInTransit, actor, "", now); err != nil {
		return err
	}
	if trackingNumber != "" {
		r.Shipping.TrackingNumber = trackingNumber
	}
	return nil
}

// MarkReceived records that the parcel arrived. Legal from LabelGenerated or InTransit.
func (r *OrderReturn) MarkReceived(actor Actor, now time.Time) error {
	return r.transition(ActionMarkReceived, actor, "", now)
}

// StartInspection begins inspecting received goods. Legal from Received only.
func (r *OrderReturn) StartInspection(actor Actor, now time.Time) error {
	return r.transition(ActionStartInspection, actor, "", now)
}

// Complete closes the return. Legal from Received or Inspecting.
func (r *OrderReturn) Complete(actor Actor, now time.Time) error {
	return r.transition(ActionComplete, actor, "", now)
}

// Reject declines the return
func (r *OrderReturn) Reject(actor Actor, reason string, now time.Time) error {
	if actor != "" && r.Status.CanTransitionTo(StatusRejected) && strings.TrimSpace(reason) == "" {
		return shared.NewDomainError("INVALID_REASON", "Rejection reason is required")
	}
	if err := r.transition(ActionReject, actor, reason, now); err != nil {
		return err
	}
	r.appendInternalNote(reason)
	return nil
}

// Cancel withdraws the return from any pre-completed open state
func (r *OrderReturn) Cancel(actor Actor, reason string, now time.Time) error {
	return r.transition(ActionCancel, actor, reason, now)
}

// ApplyChannelStatus advances the return to a channel-reported status.
// It only moves forward along the lifecycle or to a side exit, never
// regresses, and is attributed to the system. Returns whether anything changed.
func (r *OrderReturn) ApplyChannelStatus(target Status, now time.Time) bool {
	if !target.IsValid() || r.Status.IsTerminal() || !r.Status.IsAhead(target) {
		return false
	}
	from := r.Status
	r.Status = target
	r.stamp(target, now)
	r.record(from, target, SystemActor, ReasonChannelSync, now)
	return true
}

// SetItemCondition records the inspection verdict for a returned item
func (r *OrderReturn) SetItemCondition(orderItemID uuid.UUID, condition ItemCondition, now time.Time) error {
	if r.Status != StatusReceived && r.Status != StatusInspecting {
		return shared.NewDomainError(shared.ErrInvalidTransition.Code,
			fmt.Sprintf("Cannot record item condition for return in %s status", r.Status))
	}
	for i := range r.Items {
		if r.Items[i].OrderItemID == orderItemID {
			r.Items[i].Condition = condition
			r.Items[i].UpdatedAt = now
			r.Touch(now)
			return nil
		}
	}
	return shared.NewDomainError("ITEM_NOT_FOUND", "Return item not found")
}

func (r *OrderReturn) applyLabel(label LabelInfo) {
	if label.Carrier != "" {
		r.Shipping.Carrier = label.Carrier
	}
	if label.TrackingNumber != "" {
		r.Shipping.TrackingNumber = label.TrackingNumber
	}
	if label.AggregatorShipmentID != "" {
		r.Shipping.AggregatorShipmentID = label.AggregatorShipmentID
	}
	if label.LabelKey != "" {
		r.LabelKey = label.LabelKey
	}
}

func (r *OrderReturn) appendInternalNote(note string) {
	note = strings.TrimSpace(note)
	if note == "" {
		return
	}
	if r.InternalNote == "" {
		r.InternalNote = note
		return
	}
	r.InternalNote += "\n" + note
}

// ItemInput carries one returned line from a channel payload
type ItemInput struct {
	OrderItemID  uuid.UUID
	Quantity     int
	Reason       string
	RefundAmount int64
}

// UpsertItem adds or updates the item for an order item. Items are never
// removed and quantities never shrink, so replays and partial events converge.
func (r *OrderReturn) UpsertItem(in ItemInput, now time.Time) {
	for i := range r.Items {
		item := &r.Items[i]
		if item.OrderItemID != in.OrderItemID {
			continue
		}
		if in.Quantity > item.Quantity {
			item.Quantity = in.Quantity
		}
		if in.RefundAmount > item.RefundAmount {
			item.RefundAmount = in.RefundAmount
		}
		if in.Reason != "" {
			item.Reason = in.Reason
		}
		item.UpdatedAt = now
		return
	}
	r.Items = append(r.Items, ReturnItem{
		ID:           uuid.New(),
		ReturnID:     r.ID,
		OrderItemID:  in.OrderItemID,
		Quantity:     in.Quantity,
		Reason:       in.Reason,
		RefundAmount: in.RefundAmount,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
}

// RefundInput carries one refund transaction from a channel payload
type RefundInput struct {
	ExternalID  string
	Amount      int64
	Method      string
	Gateway     string
	Status      RefundStatus
	ProcessedAt *time.Time
}

// UpsertRefund adds or updates a refund keyed by its external transaction id
// and recomputes the refund total from completed refunds.
func (r *OrderReturn) UpsertRefund(in RefundInput, now time.Time) *ReturnRefund {
	defer r.recalculateRefundTotal()
	for i := range r.Refunds {
		refund := &r.Refunds[i]
		if refund.ExternalID != in.ExternalID {
			continue
		}
		refund.Amount = in.Amount
		if in.Method != "" {
			refund.Method = in.Method
		}
		if in.Gateway != "" {
			refund.Gateway = in.Gateway
		}
		// a settled refund never goes back to pending
		if refund.Status != RefundStatusCompleted || in.Status == RefundStatusFailed {
			refund.Status = in.Status
		}
		if in.ProcessedAt != nil {
			refund.ProcessedAt = in.ProcessedAt
		}
		refund.UpdatedAt = now
		return refund
	}
	r.Refunds = append(r.Refunds, ReturnRefund{
		ID:          uuid.New(),
		ReturnID:    r.ID,
		ExternalID:  in.ExternalID,
		Amount:      in.Amount,
		Method:      in.Method,
		Gateway:     in.Gateway,
		Status:      in.Status,
		ProcessedAt: in.ProcessedAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	return &r.Refunds[len(r.Refunds)-1]
}

func (r *OrderReturn) recalculateRefundTotal() {
	var total int64
	for _, refund := range r.Refunds {
		if refund.Status == RefundStatusCompleted {
			total += refund.Amount
		}
	}
	r.RefundTotal = total
}

// ReturnedQuantities maps order item ids to returned quantities
func (r *OrderReturn) ReturnedQuantities() map[uuid.UUID]int {
	out := make(map[uuid.UUID]int, len(r.Items))
	for _, item := range r.Items {
		out[item.OrderItemID] += item.Quantity
	}
	return out
}

// Summarize aggregates the returns of one order for sales.Order.ApplyReturnSummary.
// Rejected and cancelled returns do not count.
func Summarize(list []*OrderReturn) sales.ReturnSummary {
	summary := sales.ReturnSummary{ReturnedQuantity: make(map[uuid.UUID]int)}
	for _, r := range list {
		if r.Status == StatusRejected || r.Status == StatusCancelled {
			continue
		}
		summary.Returns++
		if r.Status == StatusCompleted {
			summary.CompletedReturns++
		}
		for id, qty := range r.ReturnedQuantities() {
			summary.ReturnedQuantity[id] += qty
		}
		summary.RefundedAmount += r.RefundTotal
	}
	return summary
}

// Repository defines the interface for order return persistence
type Repository interface {
	// FindByID finds a return with items, refunds and history loaded
	FindByID(ctx context.Context, id uuid.UUID) (*OrderReturn, error)
	// FindByOrder finds every return of an order, oldest first
	FindByOrder(ctx context.Context, orderID uuid.UUID) ([]*OrderReturn, error)
	// CountByOrder counts the returns of an order
	CountByOrder(ctx context.Context, orderID uuid.UUID) (int64, error)
	// FindByRefundID finds the return owning a refund row
	FindByRefundID(ctx context.Context, refundID uuid.UUID) (*OrderReturn, error)
	// FindByShipment finds the return shipped back under an aggregator shipment id,
	// falling back to the tracking number
	FindByShipment(ctx context.Context, aggregatorShipmentID, trackingNumber string) (*OrderReturn, error)
	// Save creates or updates a return, upserting items and refunds and
	// appending unsaved history entries
	Save(ctx context.Context, r *OrderReturn) error
}
