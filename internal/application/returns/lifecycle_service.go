package returns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/omnisync/backend/internal/application/reconcile"
	"github.com/omnisync/backend/internal/domain/integration"
	"github.com/omnisync/backend/internal/domain/returns"
	"github.com/omnisync/backend/internal/domain/sales"
	"github.com/omnisync/backend/internal/domain/shared"
)

// Audit actions written by the lifecycle service
const (
	AuditReturnTransition = "return.transition"
	AuditItemCondition    = "return.item_condition"
)

const auditSubjectReturn = "order_return"

// ErrLabelNotFound is returned when a return has no stored label
var ErrLabelNotFound = errors.New("returns: label not found")

// LabelStore stores generated return label documents
type LabelStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, string, error)
}

// Deps are the collaborators of the lifecycle service. Only Tx is required.
type Deps struct {
	Tx         reconcile.TransactionScope
	Aggregator integration.ShippingAggregator
	Labels     LabelStore
	Clock      shared.Clock
	Audit      shared.AuditSink
	Events     shared.EventPublisher
	Logger     *zap.Logger
}

// LifecycleService drives staff actions on the return state machine. Every
// action runs in one transaction that also enqueues the channel status push.
type LifecycleService struct {
	deps Deps
}

// NewLifecycleService creates a new LifecycleService
func NewLifecycleService(deps Deps) *LifecycleService {
	if deps.Clock == nil {
		deps.Clock = shared.SystemClock{}
	}
	if deps.Audit == nil {
		deps.Audit = shared.NopAuditSink{}
	}
	if deps.Events == nil {
		deps.Events = shared.NopEventPublisher{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &LifecycleService{deps: deps}
}

// LabelRequest describes the label for GenerateLabel. When TrackingNumber is
// empty and an aggregator is configured, a label is created through it.
type LabelRequest struct {
	Carrier        string
	TrackingNumber string
	Desi           decimal.Decimal
}

// Get returns a return with items, refunds and history
func (s *LifecycleService) Get(ctx context.Context, id uuid.UUID) (*returns.OrderReturn, error) {
	var out *returns.OrderReturn
	err := s.deps.Tx.Execute(ctx, func(repos reconcile.Repositories) error {
		var err error
		out, err = repos.Returns().FindByID(ctx, id)
		return err
	})
	return out, err
}

// SubmitForReview moves a requested return into staff review
func (s *LifecycleService) SubmitForReview(ctx context.Context, id uuid.UUID, actor returns.Actor) (*returns.OrderReturn, error) {
	return s.apply(ctx, id, actor, "", func(r *returns.OrderReturn, now time.Time) error {
		return r.SubmitForReview(actor, now)
	})
}

// Approve accepts the return
func (s *LifecycleService) Approve(ctx context.Context, id uuid.UUID, actor returns.Actor, note string) (*returns.OrderReturn, error) {
	return s.apply(ctx, id, actor, note, func(r *returns.OrderReturn, now time.Time) error {
		return r.Approve(actor, note, now)
	})
}

// GenerateLabel records a return label, creating it through the shipping
// aggregator when no tracking number is supplied
func (s *LifecycleService) GenerateLabel(ctx context.Context, id uuid.UUID, actor returns.Actor, req LabelRequest) (*returns.OrderReturn, error) {
	if actor == "" {
		return nil, shared.ErrActorRequired
	}
	info := returns.LabelInfo{Carrier: req.Carrier, TrackingNumber: strings.TrimSpace(req.TrackingNumber)}
	if info.TrackingNumber == "" && s.deps.Aggregator != nil {
		created, err := s.createLabel(ctx, id, req)
		if err != nil {
			return nil, err
		}
		info = *created
	}
	return s.apply(ctx, id, actor, "", func(r *returns.OrderReturn, now time.Time) error {
		return r.GenerateLabel(actor, info, now)
	})
}

// createLabel asks the aggregator for a label outside any transaction and stores it
func (s *LifecycleService) createLabel(ctx context.Context, id uuid.UUID, req LabelRequest) (*returns.LabelInfo, error) {
	var (
		ret   *returns.OrderReturn
		order *sales.Order
	)
	err := s.deps.Tx.Execute(ctx, func(repos reconcile.Repositories) error {
		var err error
		if ret, err = repos.Returns().FindByID(ctx, id); err != nil {
			return err
		}
		order, err = repos.Orders().FindByID(ctx, ret.OrderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !ret.Status.CanTransitionTo(returns.StatusLabelGenerated) {
		return nil, shared.NewDomainError(shared.ErrInvalidTransition.Code,
			fmt.Sprintf("Cannot generate label for return in %s status", ret.Status))
	}

	labelReq := integration.ReturnLabelRequest{
		ReturnID:       ret.ID.String(),
		OrderNumber:    order.OrderNumber,
		Carrier:        firstNonEmpty(req.Carrier, ret.Shipping.Carrier, order.Shipping.Carrier),
		Desi:           req.Desi,
		OriginalShipID: order.Shipping.AggregatorShipmentID,
	}
	if !labelReq.Desi.IsPositive() {
		labelReq.Desi = order.Shipping.Desi
	}
	if c := order.Customer; c != nil {
		labelReq.SenderName = c.FullName()
		if c.Phone != nil {
			labelReq.SenderPhone = *c.Phone
		}
	}
	label, err := s.deps.Aggregator.CreateReturnLabel(ctx, labelReq)
	if err != nil {
		s.deps.Logger.Error("Return label creation failed",
			zap.String("return_id", id.String()),
			zap.Error(err),
		)
		return nil, err
	}

	info := &returns.LabelInfo{
		Carrier:              label.Carrier,
		TrackingNumber:       label.TrackingNumber,
		AggregatorShipmentID: label.ShipmentID,
	}
	if len(label.Data) > 0 && s.deps.Labels != nil {
		key := labelKey(ret.ID, label.FileName)
		if err := s.deps.Labels.Put(ctx, key, label.ContentType, label.Data); err != nil {
			return nil, fmt.Errorf("store label: %w", err)
		}
		info.LabelKey = key
	}
	return info, nil
}

// Label returns the stored label document of a return
func (s *LifecycleService) Label(ctx context.Context, id uuid.UUID) ([]byte, string, error) {
	ret, err := s.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if ret.LabelKey == "" || s.deps.Labels == nil {
		return nil, "", ErrLabelNotFound
	}
	return s.deps.Labels.Get(ctx, ret.LabelKey)
}

// MarkInTransit records that the parcel is on its way back
func (s *LifecycleService) MarkInTransit(ctx context.Context, id uuid.UUID, actor returns.Actor, trackingNumber string) (*returns.OrderReturn, error) {
	return s.apply(ctx, id, actor, "", func(r *returns.OrderReturn, now time.Time) error {
		return r.MarkInTransit(actor, strings.TrimSpace(trackingNumber), now)
	})
}

// MarkReceived records that the parcel arrived
func (s *LifecycleService) MarkReceived(ctx context.Context, id uuid.UUID, actor returns.Actor) (*returns.OrderReturn, error) {
	return s.apply(ctx, id, actor, "", func(r *returns.OrderReturn, now time.Time) error {
		return r.MarkReceived(actor, now)
	})
}

// StartInspection begins inspecting received goods
func (s *LifecycleService) StartInspection(ctx context.Context, id uuid.UUID, actor returns.Actor) (*returns.OrderReturn, error) {
	return s.apply(ctx, id, actor, "", func(r *returns.OrderReturn, now time.Time) error {
		return r.StartInspection(actor, now)
	})
}

// Complete closes the return
func (s *LifecycleService) Complete(ctx context.Context, id uuid.UUID, actor returns.Actor) (*returns.OrderReturn, error) {
	return s.apply(ctx, id, actor, "", func(r *returns.OrderReturn, now time.Time) error {
		return r.Complete(actor, now)
	})
}

// Reject declines the return with a reason
func (s *LifecycleService) Reject(ctx context.Context, id uuid.UUID, actor returns.Actor, reason string) (*returns.OrderReturn, error) {
	return s.apply(ctx, id, actor, reason, func(r *returns.OrderReturn, now time.Time) error {
		return r.Reject(actor, reason, now)
	})
}

// Cancel withdraws the return
func (s *LifecycleService) Cancel(ctx context.Context, id uuid.UUID, actor returns.Actor, reason string) (*returns.OrderReturn, error) {
	return s.apply(ctx, id, actor, reason, func(r *returns.OrderReturn, now time.Time) error {
		return r.Cancel(actor, reason, now)
	})
}

// SetItemCondition records an inspection verdict. It does not change status.
func (s *LifecycleService) SetItemCondition(ctx context.Context, id uuid.UUID, actor returns.Actor, orderItemID uuid.UUID, condition returns.ItemCondition) (*returns.OrderReturn, error) {
	if actor == "" {
		return nil, shared.ErrActorRequired
	}
	var out *returns.OrderReturn
	err := s.deps.Tx.Execute(ctx, func(repos reconcile.Repositories) error {
		ret, err := repos.Returns().FindByID(ctx, id)
		if err != nil {
			return err
		}
		if err := ret.SetItemCondition(orderItemID, condition, s.deps.Clock.Now()); err != nil {
			return err
		}
		if err := repos.Returns().Save(ctx, ret); err != nil {
			return err
		}
		out = ret
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, out.ID, AuditItemCondition, actor, map[string]any{
		"order_item_id": orderItemID,
		"condition":     condition,
	})
	return out, nil
}

// apply loads the return, runs the guarded action, persists the return and
// the order's derived statuses, and enqueues the channel push, atomically
func (s *LifecycleService) apply(
	ctx context.Context,
	id uuid.UUID,
	actor returns.Actor,
	reason string,
	action func(r *returns.OrderReturn, now time.Time) error,
) (*returns.OrderReturn, error) {
	var (
		out    *returns.OrderReturn
		from   returns.Status
		events []shared.DomainEvent
	)
	err := s.deps.Tx.Execute(ctx, func(repos reconcile.Repositories) error {
		now := s.deps.Clock.Now()
		ret, err := repos.Returns().FindByID(ctx, id)
		if err != nil {
			return err
		}
		from = ret.Status
		if err := action(ret, now); err != nil {
			return err
		}
		ret.IncrementVersion()
		if err := repos.Returns().Save(ctx, ret); err != nil {
			return err
		}

		order, err := repos.Orders().FindByID(ctx, ret.OrderID)
		if err != nil {
			return err
		}
		if _, err := reconcile.RefreshReturnStatus(ctx, repos, order, now); err != nil {
			return err
		}
		if err := s.enqueuePush(ctx, repos, order, ret, reason, now); err != nil {
			return err
		}

		events = append(ret.GetDomainEvents(), order.GetDomainEvents()...)
		ret.ClearDomainEvents()
		order.ClearDomainEvents()
		out = ret
		return nil
	})
	if err != nil {
		if shared.IsPrecondition(err) {
			s.deps.Logger.Info("Return action rejected",
				zap.String("return_id", id.String()),
				zap.String("actor", string(actor)),
				zap.Error(err),
			)
		}
		return nil, err
	}

	s.record(ctx, out.ID, AuditReturnTransition, actor, map[string]any{
		"from":   from,
		"to":     out.Status,
		"reason": reason,
	})
	if err := s.deps.Events.Publish(ctx, events...); err != nil {
		s.deps.Logger.Warn("Failed to publish return events", zap.Error(err))
	}
	s.deps.Logger.Info("Return transitioned",
		zap.String("return_id", out.ID.String()),
		zap.String("from", string(from)),
		zap.String("to", string(out.Status)),
		zap.String("actor", string(actor)),
	)
	return out, nil
}

// enqueuePush queues the outbound status push for channel-originated returns
func (s *LifecycleService) enqueuePush(ctx context.Context, repos reconcile.Repositories, order *sales.Order, ret *returns.OrderReturn, reason string, now time.Time) error {
	if order.IntegrationID == nil || ret.ExternalID == "" {
		return nil
	}
	if !integration.PlatformCode(ret.Channel).IsSalesChannel() {
		return nil
	}
	payload, err := json.Marshal(integration.ReturnPushPayload{
		ReturnID: ret.ID,
		Status:   ret.Status,
		Reason:   reason,
	})
	if err != nil {
		return err
	}
	job := integration.NewReconcileJob(integration.JobKindPushReturnStatus, *order.IntegrationID, ret.ExternalID, payload, now)
	return repos.Jobs().Save(ctx, job)
}

func (s *LifecycleService) record(ctx context.Context, id uuid.UUID, action string, actor returns.Actor, props map[string]any) {
	entry := shared.AuditEntry{
		Subject:    shared.AuditSubject{Type: auditSubjectReturn, ID: id},
		Action:     action,
		Actor:      string(actor),
		Properties: props,
		OccurredAt: s.deps.Clock.Now(),
	}
	if err := s.deps.Audit.Record(ctx, entry); err != nil {
		s.deps.Logger.Warn("Failed to record audit entry", zap.String("action", action), zap.Error(err))
	}
}

func labelKey(returnID uuid.UUID, fileName string) string {
	name := path.Base(strings.TrimSpace(fileName))
	if name == "" || name == "." || name == "/" {
		name = "label.pdf"
	}
	return path.Join("return-labels", returnID.String(), name)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
