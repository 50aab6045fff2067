package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/omnisync/backend/internal/application/reconcile"
	"github.com/omnisync/backend/internal/domain/integration"
	"github.com/omnisync/backend/internal/domain/returns"
	"github.com/omnisync/backend/internal/domain/sales"
	"github.com/omnisync/backend/internal/domain/shared"
	"github.com/omnisync/backend/internal/infrastructure/persistence"
	"github.com/omnisync/backend/internal/infrastructure/persistence/models"
)

// jsonNormalizer decodes payloads that are already in the normalized shape
type jsonNormalizer struct{}

func (jsonNormalizer) Platform() integration.PlatformCode { return integration.PlatformShopify }

func (jsonNormalizer) NormalizeOrder(payload []byte) (*integration.ChannelOrder, error) {
	var out integration.ChannelOrder
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (jsonNormalizer) NormalizeReturn(integration.JobKind, []byte) (*integration.ChannelReturn, error) {
	return nil, errors.New("unexpected")
}

func (jsonNormalizer) NormalizeProduct([]byte) (*integration.ChannelProduct, error) {
	return nil, errors.New("unexpected")
}

type recordingPusher struct {
	pushes []integration.ReturnStatusPush
	err    error
}

func (p *recordingPusher) Platform() integration.PlatformCode { return integration.PlatformShopify }

func (p *recordingPusher) PushReturnStatus(_ context.Context, _ *integration.Integration, push integration.ReturnStatusPush) error {
	if p.err != nil {
		return p.err
	}
	p.pushes = append(p.pushes, push)
	return nil
}

func newTestDispatcher(db *gorm.DB, pusher *recordingPusher) *Dispatcher {
	log := zap.NewNop()
	cfg := DispatcherConfig{
		Integrations: persistence.NewGormIntegrationRepository(db),
		Normalizers:  []integration.Normalizer{jsonNormalizer{}},
		Deps: reconcile.Deps{
			Tx:       persistence.NewGormTransactionScope(db),
			Clock:    shared.NewFixedClock(time.Date(2026, 7, 2, 9, 0, 0, 0, time.UTC)),
			Currency: reconcile.NewCurrencyResolver(persistence.NewGormCurrencyRepository(db), "TRY", log),
			Logger:   log,
		},
		Logger: log,
	}
	if pusher != nil {
		cfg.Pushers = []integration.ReturnStatusPusher{pusher}
	}
	return NewDispatcher(cfg)
}

func orderPayload(t *testing.T) json.RawMessage {
	t.Helper()
	payload, err := json.Marshal(integration.ChannelOrder{
		Platform:    integration.PlatformShopify,
		ExternalID:  "5001",
		OrderNumber: "#1001",
		Statuses:    sales.StatusSet{Order: sales.OrderStatusProcessing, Payment: sales.PaymentStatusPaid, Fulfillment: sales.FulfillmentStatusUnfulfilled},
		Currency:    "TRY",
		GrandTotal:  decimal.RequireFromString("100.00"),
		Customer:    integration.ChannelCustomer{ExternalID: "c-1", FirstName: "Elif", LastName: "Kaya", Email: "elif@example.com"},
		Lines: []integration.ChannelLine{
			{ExternalID: "11", VariantExternalID: "v-1", SKU: "SKU-1", Title: "Mug", Quantity: 2, UnitPrice: decimal.RequireFromString("50.00")},
		},
	})
	require.NoError(t, err)
	return payload
}

func TestDispatcher_Handle(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 7, 2, 9, 0, 0, 0, time.UTC)

	t.Run("order job reconciles the payload", func(t *testing.T) {
		db := setupDB(t)
		integ := saveIntegration(t, db, integration.PlatformShopify, nil)
		d := newTestDispatcher(db, nil)

		job := integration.NewReconcileJob(integration.JobKindOrder, integ.ID, "5001", orderPayload(t), now)
		skip, err := d.Handle(ctx, job)
		require.NoError(t, err)
		assert.Empty(t, skip)
		assert.Equal(t, int64(1), countRows(t, db, &models.OrderModel{}))

		_, err = d.Handle(ctx, job)
		require.NoError(t, err)
		assert.Equal(t, int64(1), countRows(t, db, &models.OrderModel{}))
	})

	t.Run("malformed payload is permanent", func(t *testing.T) {
		db := setupDB(t)
		integ := saveIntegration(t, db, integration.PlatformShopify, nil)
		d := newTestDispatcher(db, nil)

		job := integration.NewReconcileJob(integration.JobKindOrder, integ.ID, "x", json.RawMessage(`[1,2]`), now)
		_, err := d.Handle(ctx, job)
		require.Error(t, err)
		assert.True(t, reconcile.IsPermanent(err))
	})

	t.Run("inactive integration skips", func(t *testing.T) {
		db := setupDB(t)
		integ := saveIntegration(t, db, integration.PlatformShopify, nil)
		integ.Deactivate(now)
		require.NoError(t, persistence.NewGormIntegrationRepository(db).Save(ctx, integ))
		d := newTestDispatcher(db, nil)

		skip, err := d.Handle(ctx, integration.NewReconcileJob(integration.JobKindOrder, integ.ID, "5001", orderPayload(t), now))
		require.NoError(t, err)
		assert.Equal(t, SkipIntegrationInactive, skip)
	})

	t.Run("shipment job without aggregator fails permanently", func(t *testing.T) {
		db := setupDB(t)
		integ := saveIntegration(t, db, integration.PlatformShopify, nil)
		d := newTestDispatcher(db, nil)

		_, err := d.Handle(ctx, integration.NewReconcileJob(integration.JobKindShipment, integ.ID, "s", json.RawMessage(`{}`), now))
		assert.ErrorIs(t, err, integration.ErrUnsupportedTopic)
	})
}

func TestDispatcher_PushReturnStatus(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 7, 2, 9, 0, 0, 0, time.UTC)
	db := setupDB(t)
	integ := saveIntegration(t, db, integration.PlatformShopify, nil)
	pusher := &recordingPusher{}
	d := newTestDispatcher(db, pusher)

	_, err := d.Handle(ctx, integration.NewReconcileJob(integration.JobKindOrder, integ.ID, "5001", orderPayload(t), now))
	require.NoError(t, err)
	var order models.OrderModel
	require.NoError(t, db.First(&order).Error)

	ret, err := returns.NewOrderReturn(order.ID, "shopify", "rr-9", returns.KindReturnRequest, returns.StatusRequested, returns.SystemActor, now)
	require.NoError(t, err)
	ret.Shipping.TrackingNumber = "TRK-1"
	require.NoError(t, persistence.NewGormOrderReturnRepository(db).Save(ctx, ret))

	push := func(status returns.Status) (string, error) {
		payload, err := json.Marshal(integration.ReturnPushPayload{ReturnID: ret.ID, Status: status})
		require.NoError(t, err)
		return d.Handle(ctx, integration.NewReconcileJob(integration.JobKindPushReturnStatus, integ.ID, ret.ExternalID, payload, now))
	}

	skip, err := push(returns.StatusApproved)
	require.NoError(t, err)
	assert.Empty(t, skip)
	require.Len(t, pusher.pushes, 1)
	assert.Equal(t, "rr-9", pusher.pushes[0].ExternalReturnID)
	assert.Equal(t, "5001", pusher.pushes[0].OrderExternalID)
	assert.Equal(t, "TRK-1", pusher.pushes[0].TrackingNumber)
	assert.Equal(t, returns.StatusApproved, pusher.pushes[0].Status)

	pusher.err = integration.ErrPlatformUnavailable
	_, err = push(returns.StatusRejected)
	require.Error(t, err)
	assert.True(t, reconcile.IsTransient(err))

	t.Run("platform without pusher skips", func(t *testing.T) {
		bare := newTestDispatcher(db, nil)
		payload, err := json.Marshal(integration.ReturnPushPayload{ReturnID: ret.ID, Status: returns.StatusApproved})
		require.NoError(t, err)
		skip, err := bare.Handle(ctx, integration.NewReconcileJob(integration.JobKindPushReturnStatus, integ.ID, "rr-9", payload, now))
		require.NoError(t, err)
		assert.Equal(t, SkipPushUnsupported, skip)
	})
}
