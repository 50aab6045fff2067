package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/omnisync/backend/internal/domain/customer"
	"github.com/omnisync/backend/internal/domain/integration"
	"github.com/omnisync/backend/internal/domain/sales"
	"github.com/omnisync/backend/internal/domain/shared"
	"github.com/omnisync/backend/internal/domain/shared/valueobject"
)

// Audit actions written by the order reconciler
const (
	AuditOrderStatusChanged = "order.status_changed"
	AuditOrderItemsPruned   = "order.items_pruned"
)

const auditSubjectOrder = "order"

// OrderReconciler folds a normalized channel order into the canonical order.
// Each call is one transaction and is idempotent under repeated delivery.
type OrderReconciler struct {
	deps      Deps
	customers *CustomerReconciler
	variants  *VariantMatcher
}

// NewOrderReconciler creates an order reconciler
func NewOrderReconciler(deps Deps) *OrderReconciler {
	deps = deps.withDefaults()
	return &OrderReconciler{
		deps:      deps,
		customers: NewCustomerReconciler(deps.Clock, deps.Logger),
		variants:  NewVariantMatcher(deps.Clock, deps.Logger),
	}
}

// Reconcile maps in onto the canonical order and returns it reloaded with
// items and customer
func (r *OrderReconciler) Reconcile(ctx context.Context, integ *integration.Integration, in *integration.ChannelOrder) Result[*sales.Order] {
	if in == nil || strings.TrimSpace(in.ExternalID) == "" {
		return Failed[*sales.Order](fmt.Errorf("%w: order without external id", ErrMalformedPayload))
	}
	if in.Platform == "" && integ != nil {
		in.Platform = integ.Provider
	}

	snapshot := r.deps.Currency.Resolve(ctx, in.Currency)
	actual := r.deps.Shipping.FetchActual(ctx, in.Shipping.AggregatorShipmentID)

	var (
		order   *sales.Order
		created bool
		events  []shared.DomainEvent
	)
	err := r.deps.Tx.Execute(ctx, func(repos Repositories) error {
		var err error
		order, created, events, err = r.reconcile(ctx, repos, integ, in, snapshot, actual)
		return err
	})
	if err != nil {
		r.deps.Logger.Error("Order reconciliation failed",
			zap.String("platform", string(in.Platform)),
			zap.String("external_id", in.ExternalID),
			zap.Error(err),
		)
		return Failed[*sales.Order](err)
	}

	r.deps.publish(ctx, events)
	if created {
		return Created(order)
	}
	return Updated(order)
}

func (r *OrderReconciler) reconcile(
	ctx context.Context,
	repos Repositories,
	integ *integration.Integration,
	in *integration.ChannelOrder,
	snapshot valueobject.CurrencySnapshot,
	actual *integration.ShipmentCost,
) (*sales.Order, bool, []shared.DomainEvent, error) {
	ids := r.deps.identityMap(repos)
	now := r.deps.Clock.Now()
	platform := in.Platform
	key := integration.OrderKey(platform, in.ExternalID)

	existing, err := r.resolveOrder(ctx, repos, ids, key)
	if err != nil {
		return nil, false, nil, err
	}

	var current *customer.Customer
	if existing != nil {
		current = existing.Customer
	}
	cust, custOutcome, err := r.customers.Reconcile(ctx, repos, ids, platform, in.Customer, current)
	if err != nil {
		return nil, false, nil, fmt.Errorf("reconcile customer: %w", err)
	}

	created := existing == nil
	order := existing
	if created {
		var integrationID *uuid.UUID
		if integ != nil {
			id := integ.ID
			integrationID = &id
		}
		order = sales.NewOrder(string(platform), integrationID, orderNumber(in), in.Statuses, now)
		order.Currency = snapshot
	} else {
		returnCount, err := repos.Returns().CountByOrder(ctx, order.ID)
		if err != nil {
			return nil, false, nil, err
		}
		changes := order.ApplyChannelStatus(in.Statuses, returnCount > 0 || order.HasReturns(), now)
		if len(changes) > 0 {
			r.deps.record(ctx, auditSubjectOrder, order.ID, AuditOrderStatusChanged, map[string]any{
				"channel":     order.Channel,
				"external_id": in.ExternalID,
				"raw_status":  in.RawStatus,
				"changes":     changes,
			})
		}
		// the snapshot is taken once and never recomputed
		if order.Currency.IsZero() {
			order.Currency = snapshot
		}
	}
	r.applyHeader(order, in, cust)

	if err := r.reconcileItems(ctx, repos, ids, order, in, now); err != nil {
		return nil, false, nil, err
	}
	order.RecomputeAggregates()
	r.applyShippingCost(ctx, order, in, actual)

	if !created {
		order.Touch(now)
		order.IncrementVersion()
	}
	if err := repos.Orders().Save(ctx, order); err != nil {
		return nil, false, nil, err
	}
	if _, err := ids.Bind(ctx, key, order.ID, in.Payload); err != nil {
		return nil, false, nil, err
	}
	if err := r.bindItems(ctx, ids, order, in); err != nil {
		return nil, false, nil, err
	}

	events := order.GetDomainEvents()
	order.ClearDomainEvents()

	reloaded, err := repos.Orders().FindByID(ctx, order.ID)
	if err != nil {
		return nil, false, nil, err
	}
	r.deps.Logger.Info("Order reconciled",
		zap.String("platform", string(platform)),
		zap.String("external_id", in.ExternalID),
		zap.String("order_id", order.ID.String()),
		zap.Bool("created", created),
		zap.String("customer_outcome", string(custOutcome)),
		zap.Int("items", len(reloaded.Items)),
	)
	return reloaded, created, events, nil
}

// resolveOrder follows the identity map. An orphaned mapping is discarded and
// the order is treated as new.
func (r *OrderReconciler) resolveOrder(ctx context.Context, repos Repositories, ids *IdentityMap, key integration.MappingKey) (*sales.Order, error) {
	mapping, err := ids.Resolve(ctx, key)
	if errors.Is(err, integration.ErrMappingNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	order, err := repos.Orders().FindByID(ctx, mapping.EntityID)
	if errors.Is(err, shared.ErrNotFound) {
		r.deps.Logger.Warn("Discarding orphaned order mapping",
			zap.String("platform_id", key.PlatformID),
			zap.String("order_id", mapping.EntityID.String()),
		)
		return nil, ids.Unbind(ctx, key.Platform, integration.EntityOrder, mapping.EntityID)
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

func orderNumber(in *integration.ChannelOrder) string {
	if n := strings.TrimSpace(in.OrderNumber); n != "" {
		return n
	}
	return in.ExternalID
}

// applyHeader refreshes the channel-owned header fields
func (r *OrderReconciler) applyHeader(order *sales.Order, in *integration.ChannelOrder, cust *customer.Customer) {
	cur := order.Currency.Code
	order.OrderNumber = orderNumber(in)
	if in.PaymentMethod != "" && in.PaymentMethod != sales.PaymentMethodUnknown {
		order.PaymentMethod = in.PaymentMethod
	}
	order.Totals = sales.Totals{
		Subtotal:        valueobject.ToMinorUnits(in.Subtotal, cur),
		Discount:        valueobject.ToMinorUnits(in.Discount, cur),
		Tax:             valueobject.ToMinorUnits(in.Tax, cur),
		ShippingCharged: valueobject.ToMinorUnits(in.ShippingPrice, cur),
		GrandTotal:      valueobject.ToMinorUnits(in.GrandTotal, cur),
	}
	if cust != nil {
		id := cust.ID
		order.CustomerID = &id
		order.Customer = cust
	}
	if in.PlacedAt != nil {
		order.PlacedAt = in.PlacedAt
	}
	if len(in.Payload) > 0 {
		order.Payload = in.Payload
	}

	s := in.Shipping
	if s.Carrier != "" {
		order.Shipping.Carrier = s.Carrier
	}
	if s.TrackingNumber != "" {
		order.Shipping.TrackingNumber = s.TrackingNumber
	}
	if s.AggregatorShipmentID != "" {
		order.Shipping.AggregatorShipmentID = s.AggregatorShipmentID
	}
	if s.Desi.IsPositive() {
		order.Shipping.Desi = s.Desi
	}
}

// reconcileItems applies the current line list as a full replace. Lines are
// matched by mapped external line id first, then by variant.
func (r *OrderReconciler) reconcileItems(
	ctx context.Context,
	repos Repositories,
	ids *IdentityMap,
	order *sales.Order,
	in *integration.ChannelOrder,
	now time.Time,
) error {
	platform := in.Platform
	cur := order.Currency.Code
	keep := make(map[uuid.UUID]bool, len(in.Lines))

	for _, line := range in.Lines {
		if line.Quantity <= 0 {
			r.deps.Logger.Info("Skipping order line without quantity",
				zap.String("external_id", in.ExternalID),
				zap.String("line_id", line.ExternalID),
			)
			continue
		}
		variant, err := r.variants.Match(ctx, repos, ids, platform, line, cur)
		if err != nil {
			return fmt.Errorf("match variant: %w", err)
		}
		input := sales.LineInput{
			ExternalLineID: line.ExternalID,
			Name:           line.Title,
			SKU:            line.SKU,
			Barcode:        line.Barcode,
			Quantity:       line.Quantity,
			UnitPrice:      valueobject.ToMinorUnits(line.UnitPrice, cur),
			UnitCost:       variant.CostPrice,
			Discount:       valueobject.ToMinorUnits(line.Discount, cur),
			TaxIncluded:    in.TaxIncluded,
			TaxRate:        valueobject.RateToBasisPoints(line.TaxRate),
			CommissionRate: valueobject.RateToBasisPoints(line.CommissionRate),
		}
		if input.Name == "" {
			input.Name = variant.Title
		}

		item, err := r.findItem(ctx, ids, order, platform, line.ExternalID, variant.ID, keep)
		if err != nil {
			return err
		}
		if item == nil {
			item, err = sales.NewOrderItem(variant.ID, input, now)
			if err != nil {
				return err
			}
		} else {
			item.VariantID = variant.ID
			if err := item.Apply(input, now); err != nil {
				return err
			}
		}
		keep[item.ID] = true
		order.UpsertItem(*item)
	}

	if len(keep) == 0 {
		r.deps.Logger.Warn("Order payload carried no usable lines, keeping existing items",
			zap.String("external_id", in.ExternalID),
		)
		return nil
	}

	removed := order.PruneItems(keep)
	for _, item := range removed {
		if err := ids.Unbind(ctx, platform, integration.EntityOrderItem, item.ID); err != nil {
			return err
		}
	}
	if len(removed) > 0 {
		r.deps.record(ctx, auditSubjectOrder, order.ID, AuditOrderItemsPruned, map[string]any{
			"channel": order.Channel,
			"removed": len(removed),
		})
	}
	return nil
}

// findItem returns a copy of the item a line updates, or nil for a new line
func (r *OrderReconciler) findItem(
	ctx context.Context,
	ids *IdentityMap,
	order *sales.Order,
	platform integration.PlatformCode,
	lineID string,
	variantID uuid.UUID,
	claimed map[uuid.UUID]bool,
) (*sales.OrderItem, error) {
	if lineID != "" {
		mapping, err := ids.Resolve(ctx, integration.OrderItemKey(platform, lineID))
		switch {
		case err == nil:
			if item := order.ItemByID(mapping.EntityID); item != nil && !claimed[item.ID] {
				found := *item
				return &found, nil
			}
		case !errors.Is(err, integration.ErrMappingNotFound):
			return nil, err
		}
	}
	for _, item := range order.Items {
		if item.VariantID == variantID && !claimed[item.ID] {
			found := item
			return &found, nil
		}
	}
	return nil, nil
}

func (r *OrderReconciler) bindItems(ctx context.Context, ids *IdentityMap, order *sales.Order, in *integration.ChannelOrder) error {
	byLine := make(map[string]uuid.UUID, len(order.Items))
	for _, item := range order.Items {
		if item.ExternalLineID != "" {
			byLine[item.ExternalLineID] = item.ID
		}
	}
	for _, line := range in.Lines {
		itemID, ok := byLine[line.ExternalID]
		if line.ExternalID == "" || !ok {
			continue
		}
		if _, err := ids.BindOwned(ctx, integration.OrderItemKey(in.Platform, line.ExternalID), itemID, nil); err != nil {
			return err
		}
	}
	return nil
}

// applyShippingCost runs the outbound three-tier fallback
func (r *OrderReconciler) applyShippingCost(ctx context.Context, order *sales.Order, in *integration.ChannelOrder, actual *integration.ShipmentCost) {
	authoritative := in.Shipping.Cost
	if authoritative == nil && actual != nil {
		authoritative = actual.OutboundLeg()
	}
	cost, source := r.deps.Shipping.Resolve(ctx, CostInput{
		Currency: order.Currency.Code,
		Actual:   authoritative,
		Carrier:  order.Shipping.Carrier,
		Desi:     order.Shipping.Desi,
		Prior:    order.Shipping.CostExclVAT,
	})
	if source == CostSourceNone {
		return
	}
	order.Shipping.SetCost(cost, order.Shipping.VATRate)
	r.deps.Logger.Debug("Shipping cost resolved",
		zap.String("order_id", order.ID.String()),
		zap.String("source", string(source)),
		zap.Int64("cost", cost),
	)
}
