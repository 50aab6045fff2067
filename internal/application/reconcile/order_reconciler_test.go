package reconcile_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnisync/backend/internal/application/reconcile"
	"github.com/omnisync/backend/internal/domain/integration"
	"github.com/omnisync/backend/internal/domain/sales"
	"github.com/omnisync/backend/internal/infrastructure/persistence"
	"github.com/omnisync/backend/internal/infrastructure/persistence/models"
)

func trendyolPackage(masked bool, statuses sales.StatusSet) *integration.ChannelOrder {
	cust := integration.ChannelCustomer{
		ExternalID: "99101",
		FirstName:  "Deniz",
		LastName:   "Ahmet",
		Email:      "deniz.ahmet@example.com",
		Phone:      "+905551112233",
	}
	if masked {
		cust.FirstName, cust.LastName, cust.Email, cust.Phone = "***", "***", "***", "***"
	}
	return &integration.ChannelOrder{
		Platform:      integration.PlatformTrendyol,
		ExternalID:    "3308862211",
		OrderNumber:   "10654411",
		Statuses:      statuses,
		PaymentMethod: sales.PaymentMethodPrepaid,
		Currency:      "TRY",
		TaxIncluded:   true,
		Subtotal:      decimal.NewFromInt(1350),
		GrandTotal:    decimal.NewFromInt(1350),
		Customer:      cust,
		Lines: []integration.ChannelLine{{
			ExternalID: "4410077",
			Barcode:    "869773832054",
			Title:      "Linen shirt",
			Quantity:   1,
			UnitPrice:  decimal.NewFromInt(1350),
			TaxRate:    decimal.NewFromInt(10),
		}},
	}
}

func shopifyOrder() *integration.ChannelOrder {
	return &integration.ChannelOrder{
		Platform:      integration.PlatformShopify,
		ExternalID:    "5001",
		OrderNumber:   "#1001",
		Statuses:      sales.StatusSet{Order: sales.OrderStatusProcessing, Payment: sales.PaymentStatusPaid, Fulfillment: sales.FulfillmentStatusUnfulfilled},
		PaymentMethod: sales.PaymentMethodPrepaid,
		Currency:      "TRY",
		GrandTotal:    decimal.RequireFromString("150.00"),
		Customer: integration.ChannelCustomer{
			ExternalID: "c-77",
			FirstName:  "Elif",
			LastName:   "Kaya",
			Email:      "Elif.Kaya@example.com",
		},
		Lines: []integration.ChannelLine{
			{ExternalID: "11", VariantExternalID: "v-1", SKU: "SKU-1", Title: "Mug", Quantity: 2, UnitPrice: decimal.RequireFromString("50.00")},
			{ExternalID: "12", VariantExternalID: "v-2", SKU: "SKU-2", Title: "Plate", Quantity: 1, UnitPrice: decimal.RequireFromString("50.00")},
		},
	}
}

func TestOrderReconciler_TrendyolMaskedThenUnmasked(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	integ := h.integration(t, integration.PlatformTrendyol, integration.Settings{"supplier_id": "4411"})
	r := reconcile.NewOrderReconciler(h.deps)

	created := r.Reconcile(ctx, integ, trendyolPackage(true, sales.StatusSet{
		Order:       sales.OrderStatusProcessing,
		Payment:     sales.PaymentStatusPaid,
		Fulfillment: sales.FulfillmentStatusAwaitingShipment,
	}))
	require.NoError(t, created.Err)
	assert.Equal(t, reconcile.OutcomeCreated, created.Outcome)
	require.NotNil(t, created.Entity.Customer)
	assert.True(t, created.Entity.Customer.IsPlaceholder())

	h.clock.Advance(time.Hour)
	updated := r.Reconcile(ctx, integ, trendyolPackage(false, sales.StatusSet{
		Order:       sales.OrderStatusProcessing,
		Payment:     sales.PaymentStatusPaid,
		Fulfillment: sales.FulfillmentStatusInTransit,
	}))
	require.NoError(t, updated.Err)
	assert.Equal(t, reconcile.OutcomeUpdated, updated.Outcome)

	order := updated.Entity
	assert.Equal(t, created.Entity.ID, order.ID)
	assert.Equal(t, sales.FulfillmentStatusInTransit, order.FulfillmentStatus)
	assert.Equal(t, int64(135000), order.Totals.GrandTotal)
	require.Len(t, order.Items, 1)
	assert.Equal(t, int64(135000), order.Items[0].UnitPrice)
	assert.Equal(t, "869773832054", order.Items[0].Barcode)

	require.NotNil(t, order.Customer)
	assert.Equal(t, created.Entity.Customer.ID, order.Customer.ID)
	assert.Equal(t, "Deniz", order.Customer.FirstName)
	assert.Equal(t, "Ahmet", order.Customer.LastName)
	assert.Equal(t, "deniz.ahmet@example.com", order.Customer.EmailValue())
	assert.False(t, order.Customer.IsPlaceholder())

	assert.Equal(t, int64(1), h.count(t, &models.OrderModel{}))
	assert.Equal(t, int64(1), h.count(t, &models.CustomerModel{}))
	assert.Equal(t, int64(1), h.count(t, &models.OrderItemModel{}))
	assert.Equal(t, int64(1), h.countMappings(t, integration.EntityOrder))
	assert.Equal(t, int64(1), h.countMappings(t, integration.EntityCustomer))
	assert.Equal(t, int64(1), h.countMappings(t, integration.EntityOrderItem))
}

func TestOrderReconciler_Idempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	integ := h.integration(t, integration.PlatformShopify, integration.Settings{"shop_domain": "demo.myshopify.com"})
	r := reconcile.NewOrderReconciler(h.deps)

	first := r.Reconcile(ctx, integ, shopifyOrder())
	require.NoError(t, first.Err)
	second := r.Reconcile(ctx, integ, shopifyOrder())
	require.NoError(t, second.Err)

	assert.Equal(t, reconcile.OutcomeCreated, first.Outcome)
	assert.Equal(t, reconcile.OutcomeUpdated, second.Outcome)
	assert.Equal(t, first.Entity.ID, second.Entity.ID)
	assert.Equal(t, first.Entity.Totals, second.Entity.Totals)
	assert.Equal(t, first.Entity.OrderStatus, second.Entity.OrderStatus)
	require.Len(t, second.Entity.Items, 2)
	for i := range first.Entity.Items {
		assert.Equal(t, first.Entity.Items[i].ID, second.Entity.Items[i].ID)
		assert.Equal(t, first.Entity.Items[i].LineTotal, second.Entity.Items[i].LineTotal)
	}

	assert.Equal(t, int64(1), h.count(t, &models.OrderModel{}))
	assert.Equal(t, int64(2), h.count(t, &models.OrderItemModel{}))
	assert.Equal(t, int64(1), h.count(t, &models.CustomerModel{}))
	assert.Equal(t, int64(2), h.count(t, &models.ProductVariantModel{}))
	assert.Equal(t, int64(2), h.countMappings(t, integration.EntityProductVariant))
	assert.Equal(t, int64(2), h.countMappings(t, integration.EntityOrderItem))
	assert.Equal(t, "elif.kaya@example.com", second.Entity.Customer.EmailValue())
}

func TestOrderReconciler_MaskedFragmentNeverOverwrites(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	integ := h.integration(t, integration.PlatformTrendyol, nil)
	r := reconcile.NewOrderReconciler(h.deps)

	statuses := sales.StatusSet{Order: sales.OrderStatusProcessing, Payment: sales.PaymentStatusPaid, Fulfillment: sales.FulfillmentStatusDelivered}
	require.NoError(t, r.Reconcile(ctx, integ, trendyolPackage(false, statuses)).Err)
	res := r.Reconcile(ctx, integ, trendyolPackage(true, statuses))
	require.NoError(t, res.Err)

	c := res.Entity.Customer
	require.NotNil(t, c)
	assert.Equal(t, "Deniz", c.FirstName)
	assert.Equal(t, "deniz.ahmet@example.com", c.EmailValue())
	assert.Equal(t, int64(1), h.count(t, &models.CustomerModel{}))
}

func TestOrderReconciler_PrunesRemovedLines(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	integ := h.integration(t, integration.PlatformShopify, nil)
	r := reconcile.NewOrderReconciler(h.deps)

	require.NoError(t, r.Reconcile(ctx, integ, shopifyOrder()).Err)

	edited := shopifyOrder()
	edited.Lines = edited.Lines[:1]
	res := r.Reconcile(ctx, integ, edited)
	require.NoError(t, res.Err)

	require.Len(t, res.Entity.Items, 1)
	assert.Equal(t, "11", res.Entity.Items[0].ExternalLineID)
	assert.Equal(t, int64(1), h.count(t, &models.OrderItemModel{}))
	assert.Equal(t, int64(1), h.countMappings(t, integration.EntityOrderItem))
	assert.Contains(t, h.audit.actions(), reconcile.AuditOrderItemsPruned)

	t.Run("payload without usable lines keeps items", func(t *testing.T) {
		empty := shopifyOrder()
		empty.Lines = nil
		res := r.Reconcile(ctx, integ, empty)
		require.NoError(t, res.Err)
		assert.Len(t, res.Entity.Items, 1)
	})
}

func TestOrderReconciler_ShippingCostFallback(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, flatRates{"yurtici": 5000})
	integ := h.integration(t, integration.PlatformShopify, nil)
	r := reconcile.NewOrderReconciler(h.deps)

	in := shopifyOrder()
	in.Shipping = integration.ChannelShipping{Carrier: "yurtici", Desi: decimal.NewFromInt(2)}
	res := r.Reconcile(ctx, integ, in)
	require.NoError(t, res.Err)
	assert.Equal(t, int64(5000), res.Entity.Shipping.CostExclVAT)
	assert.Equal(t, int64(1000), res.Entity.Shipping.VATAmount)

	actual := decimal.RequireFromString("80.00")
	in = shopifyOrder()
	in.Shipping = integration.ChannelShipping{Carrier: "yurtici", Desi: decimal.NewFromInt(2), Cost: &actual}
	res = r.Reconcile(ctx, integ, in)
	require.NoError(t, res.Err)
	assert.Equal(t, int64(8000), res.Entity.Shipping.CostExclVAT)

	in = shopifyOrder()
	in.Shipping = integration.ChannelShipping{Carrier: "mng"}
	res = r.Reconcile(ctx, integ, in)
	require.NoError(t, res.Err)
	assert.Equal(t, "mng", res.Entity.Shipping.Carrier)
	assert.Equal(t, int64(8000), res.Entity.Shipping.CostExclVAT, "a known cost is never replaced by zero")
}

func TestOrderReconciler_CurrencySnapshotTakenOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	usd := models.CurrencyModel{Code: "USD", Name: "US Dollar", ExchangeRate: decimal.RequireFromString("32.5")}
	usd.ID = uuid.New()
	require.NoError(t, h.db.Create(&usd).Error)
	integ := h.integration(t, integration.PlatformShopify, nil)
	r := reconcile.NewOrderReconciler(h.deps)

	in := shopifyOrder()
	in.Currency = "usd"
	res := r.Reconcile(ctx, integ, in)
	require.NoError(t, res.Err)
	assert.Equal(t, "USD", string(res.Entity.Currency.Code))
	require.NotNil(t, res.Entity.Currency.CurrencyID)
	assert.Equal(t, usd.ID, *res.Entity.Currency.CurrencyID)
	assert.True(t, res.Entity.Currency.ExchangeRate.Equal(decimal.RequireFromString("32.5")))

	require.NoError(t, h.db.Model(&models.CurrencyModel{}).Where("id = ?", usd.ID).
		Update("exchange_rate", decimal.NewFromInt(40)).Error)
	res = r.Reconcile(ctx, integ, in)
	require.NoError(t, res.Err)
	assert.True(t, res.Entity.Currency.ExchangeRate.Equal(decimal.RequireFromString("32.5")))
}

func TestOrderReconciler_RejectsMalformedPayload(t *testing.T) {
	h := newHarness(t, nil)
	r := reconcile.NewOrderReconciler(h.deps)

	res := r.Reconcile(context.Background(), nil, &integration.ChannelOrder{Platform: integration.PlatformShopify})
	assert.True(t, res.IsFailed())
	assert.ErrorIs(t, res.Err, reconcile.ErrMalformedPayload)
	assert.True(t, reconcile.IsPermanent(res.Err))
}

func TestOrderReconciler_OrphanedMappingIsDiscarded(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	integ := h.integration(t, integration.PlatformShopify, nil)
	r := reconcile.NewOrderReconciler(h.deps)

	first := r.Reconcile(ctx, integ, shopifyOrder())
	require.NoError(t, first.Err)
	require.NoError(t, h.db.Where("order_id = ?", first.Entity.ID).Delete(&models.OrderItemModel{}).Error)
	require.NoError(t, h.db.Where("id = ?", first.Entity.ID).Delete(&models.OrderModel{}).Error)

	second := r.Reconcile(ctx, integ, shopifyOrder())
	require.NoError(t, second.Err)
	assert.Equal(t, reconcile.OutcomeCreated, second.Outcome)
	assert.NotEqual(t, first.Entity.ID, second.Entity.ID)
	assert.Equal(t, int64(1), h.countMappings(t, integration.EntityOrder))

	mapping, err := persistence.NewGormMappingRepository(h.db).FindByKey(ctx, integration.OrderKey(integration.PlatformShopify, "5001"))
	require.NoError(t, err)
	assert.Equal(t, second.Entity.ID, mapping.EntityID)
}
