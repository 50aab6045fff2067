package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/omnisync/backend/internal/domain/integration"
	"github.com/omnisync/backend/internal/domain/returns"
	"github.com/omnisync/backend/internal/domain/sales"
	"github.com/omnisync/backend/internal/domain/shared"
	"github.com/omnisync/backend/internal/domain/shared/valueobject"
)

// Audit actions written by the return reconciler
const (
	AuditReturnSkipped     = "return.skipped"
	AuditReturnAmbiguous   = "return.ambiguous_return"
	AuditOrderReturnStatus = "order.return_status_changed"
)

const auditSubjectReturn = "order_return"

// CostSourceOutboundMirror marks a return cost copied from the outbound leg
const CostSourceOutboundMirror CostSource = "outbound_mirror"

// ReturnReconciler folds refunds, return requests and claims into canonical
// returns. Non-return events are declined with a skip reason, never an error.
type ReturnReconciler struct {
	deps     Deps
	variants *VariantMatcher
}

// NewReturnReconciler creates a return reconciler
func NewReturnReconciler(deps Deps) *ReturnReconciler {
	deps = deps.withDefaults()
	return &ReturnReconciler{
		deps:     deps,
		variants: NewVariantMatcher(deps.Clock, deps.Logger),
	}
}

// Reconcile maps in onto a canonical return
func (r *ReturnReconciler) Reconcile(ctx context.Context, integ *integration.Integration, in *integration.ChannelReturn) Result[*returns.OrderReturn] {
	if in == nil || strings.TrimSpace(in.ExternalID) == "" || strings.TrimSpace(in.OrderExternalID) == "" {
		return Failed[*returns.OrderReturn](fmt.Errorf("%w: return without external or order id", ErrMalformedPayload))
	}
	if in.Platform == "" && integ != nil {
		in.Platform = integ.Provider
	}
	if in.Kind == "" {
		in.Kind = returns.KindRefund
	}

	snapshot := r.deps.Currency.Resolve(ctx, in.Currency)
	actual := r.deps.Shipping.FetchActual(ctx, in.Shipping.AggregatorShipmentID)

	var (
		ret     *returns.OrderReturn
		created bool
		events  []shared.DomainEvent
	)
	err := r.deps.Tx.Execute(ctx, func(repos Repositories) error {
		var err error
		ret, created, events, err = r.reconcile(ctx, repos, in, snapshot, actual)
		return err
	})

	var skipped *skip
	if errors.As(err, &skipped) {
		r.deps.Logger.Info("Return event skipped",
			zap.String("platform", string(in.Platform)),
			zap.String("kind", string(in.Kind)),
			zap.String("external_id", in.ExternalID),
			zap.String("order_external_id", in.OrderExternalID),
			zap.String("skip_reason", skipped.reason),
		)
		r.deps.record(ctx, auditSubjectReturn, uuid.Nil, AuditReturnSkipped, map[string]any{
			"platform":          in.Platform,
			"kind":              in.Kind,
			"external_id":       in.ExternalID,
			"order_external_id": in.OrderExternalID,
			"skip_reason":       skipped.reason,
		})
		return Skipped[*returns.OrderReturn](skipped.reason)
	}
	if err != nil {
		r.deps.Logger.Error("Return reconciliation failed",
			zap.String("platform", string(in.Platform)),
			zap.String("external_id", in.ExternalID),
			zap.Error(err),
		)
		return Failed[*returns.OrderReturn](err)
	}

	r.deps.publish(ctx, events)
	if created {
		return Created(ret)
	}
	return Updated(ret)
}

func (r *ReturnReconciler) reconcile(
	ctx context.Context,
	repos Repositories,
	in *integration.ChannelReturn,
	snapshot valueobject.CurrencySnapshot,
	actual *integration.ShipmentCost,
) (*returns.OrderReturn, bool, []shared.DomainEvent, error) {
	ids := r.deps.identityMap(repos)
	now := r.deps.Clock.Now()
	platform := in.Platform

	order, err := r.resolveOrder(ctx, repos, ids, platform, in.OrderExternalID)
	if err != nil {
		return nil, false, nil, err
	}
	if reason := exclusionReason(order, in); reason != "" {
		return nil, false, nil, skipWith(reason)
	}

	ret, err := r.resolveReturn(ctx, repos, ids, order, in)
	if err != nil {
		return nil, false, nil, err
	}

	target := deriveStatus(order, in)
	created := ret == nil
	if created {
		ret, err = returns.NewOrderReturn(order.ID, string(platform), in.ExternalID, in.Kind, target, returns.SystemActor, now)
		if err != nil {
			return nil, false, nil, err
		}
		ret.Currency = snapshot
	} else {
		ret.ApplyChannelStatus(target, now)
		if ret.Currency.IsZero() {
			ret.Currency = snapshot
		}
	}
	r.applyHeader(ret, in)

	if err := r.reconcileItems(ctx, repos, ids, order, ret, in, now); err != nil {
		return nil, false, nil, err
	}
	refundBinds := r.reconcileRefunds(ret, in, now)
	r.applyShippingCost(ctx, order, ret, in, actual)

	if !created {
		ret.Touch(now)
		ret.IncrementVersion()
	}
	if err := repos.Returns().Save(ctx, ret); err != nil {
		return nil, false, nil, err
	}
	if err := r.bindReturn(ctx, ids, ret, in); err != nil {
		return nil, false, nil, err
	}
	for txID, refundID := range refundBinds {
		if _, err := ids.BindOwned(ctx, integration.RefundKey(platform, txID), refundID, nil); err != nil {
			return nil, false, nil, err
		}
	}

	if err := refreshReturnStatus(ctx, r.deps, repos, order, now); err != nil {
		return nil, false, nil, err
	}

	events := append(ret.GetDomainEvents(), order.GetDomainEvents()...)
	ret.ClearDomainEvents()
	order.ClearDomainEvents()

	reloaded, err := repos.Returns().FindByID(ctx, ret.ID)
	if err != nil {
		return nil, false, nil, err
	}
	r.deps.Logger.Info("Return reconciled",
		zap.String("platform", string(platform)),
		zap.String("kind", string(in.Kind)),
		zap.String("external_id", in.ExternalID),
		zap.String("return_id", ret.ID.String()),
		zap.String("status", string(ret.Status)),
		zap.Bool("created", created),
	)
	return reloaded, created, events, nil
}

func (r *ReturnReconciler) resolveOrder(ctx context.Context, repos Repositories, ids *IdentityMap, platform integration.PlatformCode, orderExternalID string) (*sales.Order, error) {
	mapping, err := ids.Resolve(ctx, integration.OrderKey(platform, orderExternalID))
	if errors.Is(err, integration.ErrMappingNotFound) {
		return nil, skipWith(SkipOrderNotFound)
	}
	if err != nil {
		return nil, err
	}
	order, err := repos.Orders().FindByID(ctx, mapping.EntityID)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, skipWith(SkipOrderNotFound)
	}
	return order, err
}

// exclusionReason applies the gate that keeps non-return events out.
// Only refund-shaped events carry money semantics; requests and claims are
// returns by definition once their order exists.
func exclusionReason(order *sales.Order, in *integration.ChannelReturn) string {
	if order.IsCancelled() {
		return SkipOrderCancelled
	}
	if in.Kind != returns.KindRefund {
		return ""
	}
	if in.IsVoid() {
		return SkipVoidTransaction
	}
	if len(in.Lines) == 0 {
		return SkipNoRefundLines
	}
	if in.AllOrderEdits() {
		return SkipOrderEdit
	}
	if !in.HasMoneyMovement() && !isRejectedAtDoor(order, in) {
		return SkipNoMoneyMovement
	}
	return ""
}

// isRejectedAtDoor is the cash-on-delivery exception: no money ever moved but
// the goods physically came back
func isRejectedAtDoor(order *sales.Order, in *integration.ChannelReturn) bool {
	return order.IsCashOnDelivery() && len(in.RefundTransactions()) == 0 && in.AnyRestocked()
}

// deriveStatus maps the event onto a return status
func deriveStatus(order *sales.Order, in *integration.ChannelReturn) returns.Status {
	if in.Kind != returns.KindRefund {
		if in.Status.IsValid() {
			return in.Status
		}
		return returns.StatusRequested
	}
	txs := in.RefundTransactions()
	if len(txs) == 0 {
		if isRejectedAtDoor(order, in) {
			return returns.StatusCompleted
		}
		return returns.StatusRequested
	}
	settled, moving := 0, 0
	for _, t := range txs {
		switch t.Status {
		case integration.TransactionSuccess:
			settled++
			moving++
		case integration.TransactionPending:
			moving++
		}
	}
	switch {
	case settled == len(txs):
		return returns.StatusCompleted
	case moving > 0:
		return returns.StatusApproved
	default:
		return returns.StatusRequested
	}
}

// resolveReturn finds the canonical return this event updates, or nil to create one.
// Order: own id, refund transaction ids, return request back-reference, then the
// order's sole active return on this channel whatever its kind.
func (r *ReturnReconciler) resolveReturn(ctx context.Context, repos Repositories, ids *IdentityMap, order *sales.Order, in *integration.ChannelReturn) (*returns.OrderReturn, error) {
	platform := in.Platform

	ret, err := r.byReturnKey(ctx, repos, ids, integration.ReturnKey(platform, in.ExternalID))
	if ret != nil || err != nil {
		return ret, err
	}

	for _, tx := range in.RefundTransactions() {
		if tx.ExternalID == "" {
			continue
		}
		mapping, err := ids.Resolve(ctx, integration.RefundKey(platform, tx.ExternalID))
		if errors.Is(err, integration.ErrMappingNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		ret, err := repos.Returns().FindByRefundID(ctx, mapping.EntityID)
		if errors.Is(err, shared.ErrNotFound) {
			if err := ids.Unbind(ctx, platform, integration.EntityReturnRefund, mapping.EntityID); err != nil {
				return nil, err
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		if ret.OrderID == order.ID {
			return ret, nil
		}
	}

	if ref := strings.TrimSpace(in.ReturnRequestRef); ref != "" {
		ret, err := r.byReturnKey(ctx, repos, ids, integration.ReturnKey(platform, ref))
		if ret != nil || err != nil {
			return ret, err
		}
	}

	existing, err := repos.Returns().FindByOrder(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	var candidates []*returns.OrderReturn
	for _, candidate := range existing {
		if candidate.Channel != string(platform) {
			continue
		}
		if candidate.Status == returns.StatusRejected || candidate.Status == returns.StatusCancelled {
			continue
		}
		candidates = append(candidates, candidate)
	}
	switch len(candidates) {
	case 0:
		return nil, nil
	case 1:
		return candidates[0], nil
	}

	candidateIDs := make([]string, 0, len(candidates))
	for _, c := range candidates {
		candidateIDs = append(candidateIDs, c.ID.String())
	}
	r.deps.Logger.Warn("Ambiguous return resolution, creating a new return",
		zap.String("platform", string(platform)),
		zap.String("external_id", in.ExternalID),
		zap.String("order_id", order.ID.String()),
		zap.Strings("candidates", candidateIDs),
	)
	r.deps.record(ctx, auditSubjectOrder, order.ID, AuditReturnAmbiguous, map[string]any{
		"platform":    platform,
		"external_id": in.ExternalID,
		"candidates":  candidateIDs,
	})
	return nil, nil
}

func (r *ReturnReconciler) byReturnKey(ctx context.Context, repos Repositories, ids *IdentityMap, key integration.MappingKey) (*returns.OrderReturn, error) {
	mapping, err := ids.Resolve(ctx, key)
	if errors.Is(err, integration.ErrMappingNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ret, err := repos.Returns().FindByID(ctx, mapping.EntityID)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, ids.Unbind(ctx, key.Platform, integration.EntityOrderReturn, mapping.EntityID)
	}
	if err != nil {
		return nil, err
	}
	return ret, nil
}

func (r *ReturnReconciler) applyHeader(ret *returns.OrderReturn, in *integration.ChannelReturn) {
	if in.ReasonCode != "" {
		ret.ReasonCode = in.ReasonCode
	}
	if in.ReasonName != "" {
		ret.ReasonName = in.ReasonName
	}
	if in.CustomerNote != "" {
		ret.CustomerNote = in.CustomerNote
	}
	if len(in.Payload) > 0 {
		ret.Payload = in.Payload
	}
	s := in.Shipping
	if s.Carrier != "" {
		ret.Shipping.Carrier = s.Carrier
	}
	if s.TrackingNumber != "" {
		ret.Shipping.TrackingNumber = s.TrackingNumber
	}
	if s.AggregatorShipmentID != "" {
		ret.Shipping.AggregatorShipmentID = s.AggregatorShipmentID
	}
	if s.Desi.IsPositive() {
		ret.Shipping.Desi = s.Desi
	}
}

// reconcileItems upserts return items keyed by the originating order item.
// Lines that cannot be tied to an order item are logged and left out.
func (r *ReturnReconciler) reconcileItems(
	ctx context.Context,
	repos Repositories,
	ids *IdentityMap,
	order *sales.Order,
	ret *returns.OrderReturn,
	in *integration.ChannelReturn,
	now time.Time,
) error {
	cur := ret.Currency.Code
	for _, line := range in.Lines {
		if line.IsOrderEdit() || line.Quantity <= 0 {
			continue
		}
		item, err := r.locateOrderItem(ctx, repos, ids, order, in.Platform, line)
		if err != nil {
			return err
		}
		if item == nil {
			r.deps.Logger.Warn("Return line does not match any order item",
				zap.String("external_id", in.ExternalID),
				zap.String("order_id", order.ID.String()),
				zap.String("line_id", line.OrderLineExternalID),
				zap.String("sku", line.SKU),
				zap.String("barcode", line.Barcode),
			)
			continue
		}
		qty := line.Quantity
		if qty > item.Quantity {
			qty = item.Quantity
		}
		ret.UpsertItem(returns.ItemInput{
			OrderItemID:  item.ID,
			Quantity:     qty,
			Reason:       line.Reason,
			RefundAmount: valueobject.ToMinorUnits(line.RefundAmount, cur),
		}, now)
	}
	return nil
}

func (r *ReturnReconciler) locateOrderItem(
	ctx context.Context,
	repos Repositories,
	ids *IdentityMap,
	order *sales.Order,
	platform integration.PlatformCode,
	line integration.ChannelReturnLine,
) (*sales.OrderItem, error) {
	if line.OrderLineExternalID != "" {
		mapping, err := ids.Resolve(ctx, integration.OrderItemKey(platform, line.OrderLineExternalID))
		switch {
		case err == nil:
			if item := order.ItemByID(mapping.EntityID); item != nil {
				return item, nil
			}
		case !errors.Is(err, integration.ErrMappingNotFound):
			return nil, err
		}
		for i := range order.Items {
			if order.Items[i].ExternalLineID == line.OrderLineExternalID {
				return &order.Items[i], nil
			}
		}
	}
	variant, err := r.variants.Find(ctx, repos, ids, platform, line.VariantExternalID, line.Barcode, line.SKU)
	if err != nil || variant == nil {
		return nil, err
	}
	return order.ItemByVariant(variant.ID), nil
}

// reconcileRefunds upserts refund rows and returns transaction id -> refund id
// pairs to bind once the return is saved
func (r *ReturnReconciler) reconcileRefunds(ret *returns.OrderReturn, in *integration.ChannelReturn, now time.Time) map[string]uuid.UUID {
	binds := make(map[string]uuid.UUID)
	cur := ret.Currency.Code
	for _, tx := range in.RefundTransactions() {
		if tx.ExternalID == "" {
			continue
		}
		refund := ret.UpsertRefund(returns.RefundInput{
			ExternalID:  tx.ExternalID,
			Amount:      valueobject.ToMinorUnits(tx.Amount, cur),
			Method:      tx.Method,
			Gateway:     tx.Gateway,
			Status:      tx.RefundStatus(),
			ProcessedAt: tx.ProcessedAt,
		}, now)
		binds[tx.ExternalID] = refund.ID
	}
	return binds
}

// applyShippingCost runs the three-tier fallback for the return leg. Without
// any source the outbound cost is mirrored once a return shipment exists.
func (r *ReturnReconciler) applyShippingCost(ctx context.Context, order *sales.Order, ret *returns.OrderReturn, in *integration.ChannelReturn, actual *integration.ShipmentCost) {
	authoritative := in.Shipping.Cost
	if authoritative == nil && actual != nil {
		authoritative = actual.ReturnLeg()
	}
	carrier := ret.Shipping.Carrier
	if carrier == "" {
		carrier = order.Shipping.Carrier
	}
	desi := ret.Shipping.Desi
	if !desi.IsPositive() {
		desi = order.Shipping.Desi
	}
	cost, source := r.deps.Shipping.Resolve(ctx, CostInput{
		Currency: ret.Currency.Code,
		Actual:   authoritative,
		Carrier:  carrier,
		Desi:     desi,
		Prior:    ret.Shipping.CostExclVAT,
	})
	hasShipment := ret.Shipping.TrackingNumber != "" || ret.Shipping.AggregatorShipmentID != ""
	if source == CostSourceNone && hasShipment && order.Shipping.HasCost() {
		cost, source = order.Shipping.CostExclVAT, CostSourceOutboundMirror
	}
	if source == CostSourceNone {
		return
	}
	ret.Shipping.SetCost(cost, ret.Shipping.VATRate)
	r.deps.Logger.Debug("Return shipping cost resolved",
		zap.String("return_id", ret.ID.String()),
		zap.String("source", string(source)),
		zap.Int64("cost", cost),
	)
}

// bindReturn maps the event id to the return unless the return already owns a
// return mapping on this platform, e.g. a request id a refund was merged into
func (r *ReturnReconciler) bindReturn(ctx context.Context, ids *IdentityMap, ret *returns.OrderReturn, in *integration.ChannelReturn) error {
	key := integration.ReturnKey(in.Platform, in.ExternalID)
	owned, err := ids.Owned(ctx, in.Platform, integration.EntityOrderReturn, ret.ID)
	switch {
	case errors.Is(err, integration.ErrMappingNotFound):
		_, err = ids.Bind(ctx, key, ret.ID, in.Payload)
		return err
	case err != nil:
		return err
	case owned.PlatformID == in.ExternalID:
		_, err = ids.Bind(ctx, key, ret.ID, in.Payload)
		return err
	}
	return nil
}

// RefreshReturnStatus recomputes the order's return status from all of its
// returns and saves the order when anything moved. From here on returns own
// order and payment status.
func RefreshReturnStatus(ctx context.Context, repos Repositories, order *sales.Order, now time.Time) ([]sales.StatusChange, error) {
	list, err := repos.Returns().FindByOrder(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	changes := order.ApplyReturnSummary(returns.Summarize(list), now)
	if len(changes) == 0 {
		return nil, nil
	}
	order.IncrementVersion()
	if err := repos.Orders().Save(ctx, order); err != nil {
		return nil, err
	}
	return changes, nil
}

func refreshReturnStatus(ctx context.Context, deps Deps, repos Repositories, order *sales.Order, now time.Time) error {
	changes, err := RefreshReturnStatus(ctx, repos, order, now)
	if err != nil || len(changes) == 0 {
		return err
	}
	deps.record(ctx, auditSubjectOrder, order.ID, AuditOrderReturnStatus, map[string]any{
		"changes": changes,
	})
	return nil
}
