package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/omnisync/backend/internal/domain/integration"
	"github.com/omnisync/backend/internal/domain/returns"
	"github.com/omnisync/backend/internal/domain/sales"
	"github.com/omnisync/backend/internal/domain/shared"
)

// ShipmentLink is the entity a shipping aggregator event was applied to.
// Exactly one field is set.
type ShipmentLink struct {
	Order  *sales.Order
	Return *returns.OrderReturn
}

// ShipmentReconciler applies aggregator shipment events: actual costs and
// carrier-driven return status updates
type ShipmentReconciler struct {
	deps Deps
}

// NewShipmentReconciler creates a shipment reconciler
func NewShipmentReconciler(deps Deps) *ShipmentReconciler {
	return &ShipmentReconciler{deps: deps.withDefaults()}
}

// Reconcile links the shipment to its order or return and refreshes cost and status
func (r *ShipmentReconciler) Reconcile(ctx context.Context, in *integration.ChannelShipment) Result[*ShipmentLink] {
	if in == nil || (strings.TrimSpace(in.ShipmentID) == "" && strings.TrimSpace(in.TrackingNumber) == "") {
		return Failed[*ShipmentLink](fmt.Errorf("%w: shipment without id or tracking number", ErrMalformedPayload))
	}
	cost := integration.ShipmentCost{
		ShipmentID: in.ShipmentID,
		Currency:   in.Currency,
		Outbound:   in.OutboundCost,
		Return:     in.ReturnCost,
		Total:      in.TotalCost,
	}

	var (
		link   *ShipmentLink
		events []shared.DomainEvent
	)
	err := r.deps.Tx.Execute(ctx, func(repos Repositories) error {
		var err error
		if in.IsReturn {
			link, events, err = r.applyToReturn(ctx, repos, in, cost)
		} else {
			link, events, err = r.applyToOrder(ctx, repos, in, cost)
		}
		return err
	})

	var skipped *skip
	if errors.As(err, &skipped) {
		r.deps.Logger.Info("Shipment event skipped",
			zap.String("shipment_id", in.ShipmentID),
			zap.String("tracking_number", in.TrackingNumber),
			zap.Bool("is_return", in.IsReturn),
			zap.String("skip_reason", skipped.reason),
		)
		return Skipped[*ShipmentLink](skipped.reason)
	}
	if err != nil {
		r.deps.Logger.Error("Shipment reconciliation failed",
			zap.String("shipment_id", in.ShipmentID),
			zap.Error(err),
		)
		return Failed[*ShipmentLink](err)
	}
	r.deps.publish(ctx, events)
	return Updated(link)
}

func (r *ShipmentReconciler) applyToOrder(ctx context.Context, repos Repositories, in *integration.ChannelShipment, cost integration.ShipmentCost) (*ShipmentLink, []shared.DomainEvent, error) {
	order, err := repos.Orders().FindByShipment(ctx, in.ShipmentID, in.TrackingNumber)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, nil, skipWith(SkipShipmentUnlinked)
	}
	if err != nil {
		return nil, nil, err
	}

	applyShipmentIdentifiers(&order.Shipping, in)
	amount, source := r.deps.Shipping.Resolve(ctx, CostInput{
		Currency: order.Currency.Code,
		Actual:   cost.OutboundLeg(),
		Carrier:  order.Shipping.Carrier,
		Desi:     order.Shipping.Desi,
		Prior:    order.Shipping.CostExclVAT,
	})
	if source != CostSourceNone {
		order.Shipping.SetCost(amount, order.Shipping.VATRate)
	}
	order.Touch(r.deps.Clock.Now())
	if err := repos.Orders().Save(ctx, order); err != nil {
		return nil, nil, err
	}
	return &ShipmentLink{Order: order}, nil, nil
}

func (r *ShipmentReconciler) applyToReturn(ctx context.Context, repos Repositories, in *integration.ChannelShipment, cost integration.ShipmentCost) (*ShipmentLink, []shared.DomainEvent, error) {
	ret, err := repos.Returns().FindByShipment(ctx, in.ShipmentID, in.TrackingNumber)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, nil, skipWith(SkipShipmentUnlinked)
	}
	if err != nil {
		return nil, nil, err
	}
	order, err := repos.Orders().FindByID(ctx, ret.OrderID)
	if err != nil {
		return nil, nil, err
	}

	now := r.deps.Clock.Now()
	applyShipmentIdentifiers(&ret.Shipping, in)
	amount, source := r.deps.Shipping.Resolve(ctx, CostInput{
		Currency: ret.Currency.Code,
		Actual:   cost.ReturnLeg(),
		Carrier:  ret.Shipping.Carrier,
		Desi:     ret.Shipping.Desi,
		Prior:    ret.Shipping.CostExclVAT,
	})
	if source != CostSourceNone {
		ret.Shipping.SetCost(amount, ret.Shipping.VATRate)
	}
	if in.ReturnStatus != "" && ret.ApplyChannelStatus(in.ReturnStatus, now) {
		r.deps.Logger.Info("Return advanced by carrier event",
			zap.String("return_id", ret.ID.String()),
			zap.String("status", string(ret.Status)),
		)
	}
	ret.Touch(now)
	if err := repos.Returns().Save(ctx, ret); err != nil {
		return nil, nil, err
	}
	if err := refreshReturnStatus(ctx, r.deps, repos, order, now); err != nil {
		return nil, nil, err
	}

	events := append(ret.GetDomainEvents(), order.GetDomainEvents()...)
	ret.ClearDomainEvents()
	order.ClearDomainEvents()
	return &ShipmentLink{Return: ret}, events, nil
}

func applyShipmentIdentifiers(s *sales.Shipping, in *integration.ChannelShipment) {
	if in.ShipmentID != "" {
		s.AggregatorShipmentID = in.ShipmentID
	}
	if in.TrackingNumber != "" {
		s.TrackingNumber = in.TrackingNumber
	}
	if in.Carrier != "" {
		s.Carrier = in.Carrier
	}
	if in.Desi.IsPositive() {
		s.Desi = in.Desi
	}
}
