package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/omnisync/backend/internal/application/reconcile"
	"github.com/omnisync/backend/internal/domain/integration"
	"github.com/omnisync/backend/internal/domain/shared"
)

// Skip reasons raised by the dispatcher itself
const (
	SkipIntegrationInactive = "integration_inactive"
	SkipPushUnsupported     = "push_not_supported"
	SkipPushNotChannel      = "return_not_from_channel"
)

// DispatcherConfig wires the dispatcher
type DispatcherConfig struct {
	Integrations integration.IntegrationRepository
	Tx           reconcile.TransactionScope
	Normalizers  []integration.Normalizer
	Pushers      []integration.ReturnStatusPusher
	Aggregator   integration.ShippingAggregator
	Deps         reconcile.Deps
	Logger       *zap.Logger
}

// Dispatcher decodes queued payloads with the channel normalizers and hands
// them to the reconcilers. It implements integration.JobHandler.
type Dispatcher struct {
	integrations integration.IntegrationRepository
	tx           reconcile.TransactionScope
	normalizers  map[integration.PlatformCode]integration.Normalizer
	pushers      map[integration.PlatformCode]integration.ReturnStatusPusher
	aggregator   integration.ShippingAggregator

	orders    *reconcile.OrderReconciler
	returns   *reconcile.ReturnReconciler
	products  *reconcile.ProductReconciler
	shipments *reconcile.ShipmentReconciler
	logger    *zap.Logger
}

// NewDispatcher creates a new Dispatcher
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Deps.Logger == nil {
		cfg.Deps.Logger = logger
	}
	if cfg.Deps.Tx == nil {
		cfg.Deps.Tx = cfg.Tx
	}
	d := &Dispatcher{
		integrations: cfg.Integrations,
		tx:           cfg.Deps.Tx,
		normalizers:  make(map[integration.PlatformCode]integration.Normalizer),
		pushers:      make(map[integration.PlatformCode]integration.ReturnStatusPusher),
		aggregator:   cfg.Aggregator,
		orders:       reconcile.NewOrderReconciler(cfg.Deps),
		returns:      reconcile.NewReturnReconciler(cfg.Deps),
		products:     reconcile.NewProductReconciler(cfg.Deps),
		shipments:    reconcile.NewShipmentReconciler(cfg.Deps),
		logger:       logger,
	}
	for _, n := range cfg.Normalizers {
		d.normalizers[n.Platform()] = n
	}
	for _, p := range cfg.Pushers {
		d.pushers[p.Platform()] = p
	}
	return d
}

// Handle implements integration.JobHandler
func (d *Dispatcher) Handle(ctx context.Context, job *integration.ReconcileJob) (string, error) {
	integ, err := d.integrations.FindByID(ctx, job.IntegrationID)
	if err != nil {
		return "", err
	}
	if !integ.Active {
		return SkipIntegrationInactive, nil
	}

	switch job.Kind {
	case integration.JobKindOrder:
		n, err := d.normalizer(integ.Provider)
		if err != nil {
			return "", err
		}
		in, err := n.NormalizeOrder(job.Payload)
		if err != nil {
			return "", malformed(err)
		}
		return outcome(d.orders.Reconcile(ctx, integ, in))

	case integration.JobKindRefund, integration.JobKindReturnRequest, integration.JobKindClaim:
		n, err := d.normalizer(integ.Provider)
		if err != nil {
			return "", err
		}
		in, err := n.NormalizeReturn(job.Kind, job.Payload)
		if err != nil {
			return "", malformed(err)
		}
		return outcome(d.returns.Reconcile(ctx, integ, in))

	case integration.JobKindProduct:
		n, err := d.normalizer(integ.Provider)
		if err != nil {
			return "", err
		}
		in, err := n.NormalizeProduct(job.Payload)
		if err != nil {
			return "", malformed(err)
		}
		return outcome(d.products.Reconcile(ctx, integ, in))

	case integration.JobKindShipment:
		if d.aggregator == nil {
			return "", fmt.Errorf("%w: no shipping aggregator configured", integration.ErrUnsupportedTopic)
		}
		in, err := d.aggregator.NormalizeShipment(job.Payload)
		if err != nil {
			return "", malformed(err)
		}
		return outcome(d.shipments.Reconcile(ctx, in))

	case integration.JobKindPushReturnStatus:
		return d.pushReturnStatus(ctx, integ, job)
	}
	return "", fmt.Errorf("%w: job kind %q", integration.ErrUnsupportedTopic, job.Kind)
}

func (d *Dispatcher) normalizer(p integration.PlatformCode) (integration.Normalizer, error) {
	n, ok := d.normalizers[p]
	if !ok {
		return nil, fmt.Errorf("%w: no normalizer for %s", integration.ErrUnsupportedTopic, p)
	}
	return n, nil
}

// pushReturnStatus sends a staff-driven return transition back to the channel
func (d *Dispatcher) pushReturnStatus(ctx context.Context, integ *integration.Integration, job *integration.ReconcileJob) (string, error) {
	var payload integration.ReturnPushPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return "", malformed(err)
	}
	pusher, ok := d.pushers[integ.Provider]
	if !ok {
		return SkipPushUnsupported, nil
	}

	var push integration.ReturnStatusPush
	err := d.tx.Execute(ctx, func(repos reconcile.Repositories) error {
		ret, err := repos.Returns().FindByID(ctx, payload.ReturnID)
		if err != nil {
			return err
		}
		push = integration.ReturnStatusPush{
			ExternalReturnID: ret.ExternalID,
			Status:           payload.Status,
			Carrier:          ret.Shipping.Carrier,
			TrackingNumber:   ret.Shipping.TrackingNumber,
			Reason:           payload.Reason,
		}
		mapping, err := repos.Mappings().FindByEntity(ctx, integ.Provider, integration.EntityOrder, ret.OrderID)
		if err != nil && !errors.Is(err, integration.ErrMappingNotFound) {
			return err
		}
		if mapping != nil {
			push.OrderExternalID = mapping.PlatformID
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return "", fmt.Errorf("%w: %v", reconcile.ErrMalformedPayload, err)
		}
		return "", err
	}
	if push.ExternalReturnID == "" {
		return SkipPushNotChannel, nil
	}

	if err := pusher.PushReturnStatus(ctx, integ, push); err != nil {
		return "", err
	}
	d.logger.Info("Return status pushed",
		zap.String("provider", string(integ.Provider)),
		zap.String("external_return_id", push.ExternalReturnID),
		zap.String("status", string(push.Status)),
	)
	return "", nil
}

func malformed(err error) error {
	if errors.Is(err, reconcile.ErrMalformedPayload) {
		return err
	}
	return fmt.Errorf("%w: %v", reconcile.ErrMalformedPayload, err)
}

func outcome[T any](res reconcile.Result[T]) (string, error) {
	if res.IsFailed() {
		return "", res.Err
	}
	if res.IsSkipped() {
		return res.SkipReason, nil
	}
	return "", nil
}

var _ integration.JobHandler = (*Dispatcher)(nil)
