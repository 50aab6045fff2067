package reconcile_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnisync/backend/internal/application/reconcile"
	"github.com/omnisync/backend/internal/domain/integration"
	"github.com/omnisync/backend/internal/domain/returns"
	"github.com/omnisync/backend/internal/domain/sales"
	"github.com/omnisync/backend/internal/infrastructure/persistence"
	"github.com/omnisync/backend/internal/infrastructure/persistence/models"
)

func shopifyRefund(id string, lines []integration.ChannelReturnLine, txs ...integration.ChannelTransaction) *integration.ChannelReturn {
	return &integration.ChannelReturn{
		Platform:        integration.PlatformShopify,
		Kind:            returns.KindRefund,
		ExternalID:      id,
		OrderExternalID: "5001",
		Currency:        "TRY",
		Lines:           lines,
		Transactions:    txs,
	}
}

func refundLine(lineID string, qty int, restock string, amount string) integration.ChannelReturnLine {
	return integration.ChannelReturnLine{
		OrderLineExternalID: lineID,
		Quantity:            qty,
		RestockType:         restock,
		RefundAmount:        decimal.RequireFromString(amount),
	}
}

func refundTx(id string, status integration.TransactionStatus, amount string) integration.ChannelTransaction {
	return integration.ChannelTransaction{
		ExternalID: id,
		Kind:       integration.TransactionRefund,
		Status:     status,
		Amount:     decimal.RequireFromString(amount),
		Gateway:    "shopify_payments",
	}
}

type returnFixture struct {
	h      *harness
	integ  *integration.Integration
	orders *reconcile.OrderReconciler
	r      *reconcile.ReturnReconciler
	order  *sales.Order
}

func newReturnFixture(t *testing.T, mutate func(*integration.ChannelOrder)) *returnFixture {
	t.Helper()
	h := newHarness(t, nil)
	f := &returnFixture{
		h:      h,
		integ:  h.integration(t, integration.PlatformShopify, nil),
		orders: reconcile.NewOrderReconciler(h.deps),
		r:      reconcile.NewReturnReconciler(h.deps),
	}
	in := shopifyOrder()
	if mutate != nil {
		mutate(in)
	}
	res := f.orders.Reconcile(context.Background(), f.integ, in)
	require.NoError(t, res.Err)
	f.order = res.Entity
	return f
}

func (f *returnFixture) reloadOrder(t *testing.T) *sales.Order {
	t.Helper()
	res := f.orders.Reconcile(context.Background(), f.integ, shopifyOrder())
	require.NoError(t, res.Err)
	return res.Entity
}

func TestReturnReconciler_Exclusions(t *testing.T) {
	tests := []struct {
		name   string
		in     *integration.ChannelReturn
		reason string
	}{
		{
			name:   "restock type cancel is an order edit",
			in:     shopifyRefund("r-edit", []integration.ChannelReturnLine{refundLine("11", 1, integration.RestockCancel, "50")}, refundTx("tx-e", integration.TransactionSuccess, "50")),
			reason: reconcile.SkipOrderEdit,
		},
		{
			name:   "refund without lines",
			in:     shopifyRefund("r-empty", nil, refundTx("tx-s", integration.TransactionSuccess, "10")),
			reason: reconcile.SkipNoRefundLines,
		},
		{
			name: "void transaction",
			in: shopifyRefund("r-void", []integration.ChannelReturnLine{refundLine("11", 1, integration.RestockReturn, "50")},
				integration.ChannelTransaction{ExternalID: "tx-v", Kind: integration.TransactionVoid, Status: integration.TransactionSuccess}),
			reason: reconcile.SkipVoidTransaction,
		},
		{
			name:   "prepaid refund without money movement",
			in:     shopifyRefund("r-zero", []integration.ChannelReturnLine{refundLine("11", 1, integration.RestockReturn, "0")}, refundTx("tx-f", integration.TransactionFailure, "50")),
			reason: reconcile.SkipNoMoneyMovement,
		},
		{
			name: "prepaid restocked refund without transactions",
			in: shopifyRefund("r-prepaid", []integration.ChannelReturnLine{
				refundLine("11", 2, integration.RestockReturn, "0"),
				refundLine("12", 1, integration.RestockReturn, "0"),
			}),
			reason: reconcile.SkipNoMoneyMovement,
		},
		{
			name: "unknown order",
			in: func() *integration.ChannelReturn {
				in := shopifyRefund("r-unknown", []integration.ChannelReturnLine{refundLine("11", 1, integration.RestockReturn, "50")}, refundTx("tx-u", integration.TransactionSuccess, "50"))
				in.OrderExternalID = "9999"
				return in
			}(),
			reason: reconcile.SkipOrderNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newReturnFixture(t, nil)
			res := f.r.Reconcile(context.Background(), f.integ, tt.in)

			require.True(t, res.IsSkipped(), "outcome %s err %v", res.Outcome, res.Err)
			assert.NoError(t, res.Err)
			assert.Equal(t, tt.reason, res.SkipReason)
			assert.Equal(t, int64(0), f.h.count(t, &models.OrderReturnModel{}))
			assert.Contains(t, f.h.audit.actions(), reconcile.AuditReturnSkipped)
		})
	}
}

func TestReturnReconciler_CancelledOrderIsSkipped(t *testing.T) {
	f := newReturnFixture(t, func(in *integration.ChannelOrder) {
		in.Statuses.Order = sales.OrderStatusCancelled
	})
	res := f.r.Reconcile(context.Background(), f.integ,
		shopifyRefund("r-1", []integration.ChannelReturnLine{refundLine("11", 1, integration.RestockReturn, "50")}, refundTx("tx-1", integration.TransactionSuccess, "50")))
	require.True(t, res.IsSkipped())
	assert.Equal(t, reconcile.SkipOrderCancelled, res.SkipReason)
}

func TestReturnReconciler_RefundIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newReturnFixture(t, nil)
	in := func() *integration.ChannelReturn {
		return shopifyRefund("r-1",
			[]integration.ChannelReturnLine{refundLine("11", 1, integration.RestockReturn, "50.00")},
			refundTx("tx-1", integration.TransactionSuccess, "50.00"))
	}

	first := f.r.Reconcile(ctx, f.integ, in())
	require.NoError(t, first.Err)
	assert.Equal(t, reconcile.OutcomeCreated, first.Outcome)
	ret := first.Entity
	assert.Equal(t, returns.StatusCompleted, ret.Status)
	assert.Equal(t, int64(5000), ret.RefundTotal)
	require.Len(t, ret.Items, 1)
	assert.Equal(t, 1, ret.Items[0].Quantity)
	require.Len(t, ret.Refunds, 1)
	assert.Equal(t, returns.RefundStatusCompleted, ret.Refunds[0].Status)

	second := f.r.Reconcile(ctx, f.integ, in())
	require.NoError(t, second.Err)
	assert.Equal(t, reconcile.OutcomeUpdated, second.Outcome)
	assert.Equal(t, ret.ID, second.Entity.ID)
	assert.Len(t, second.Entity.History, 1)

	assert.Equal(t, int64(1), f.h.count(t, &models.OrderReturnModel{}))
	assert.Equal(t, int64(1), f.h.count(t, &models.ReturnRefundModel{}))
	assert.Equal(t, int64(1), f.h.count(t, &models.ReturnItemModel{}))
	assert.Equal(t, int64(1), f.h.countMappings(t, integration.EntityOrderReturn))
	assert.Equal(t, int64(1), f.h.countMappings(t, integration.EntityReturnRefund))

	order := f.reloadOrder(t)
	assert.Equal(t, sales.ReturnStatusPartial, order.ReturnStatus)
	assert.Equal(t, sales.OrderStatusPartiallyRefunded, order.OrderStatus)
	assert.Equal(t, sales.PaymentStatusPartiallyRefunded, order.PaymentStatus)
}

func TestReturnReconciler_ReturnsOwnOrderStatus(t *testing.T) {
	ctx := context.Background()
	f := newReturnFixture(t, nil)
	require.NoError(t, f.r.Reconcile(ctx, f.integ, shopifyRefund("r-1",
		[]integration.ChannelReturnLine{refundLine("11", 1, integration.RestockReturn, "50")},
		refundTx("tx-1", integration.TransactionSuccess, "50"))).Err)

	in := shopifyOrder()
	in.Statuses = sales.StatusSet{
		Order:       sales.OrderStatusCompleted,
		Payment:     sales.PaymentStatusPaid,
		Fulfillment: sales.FulfillmentStatusDelivered,
	}
	res := f.orders.Reconcile(ctx, f.integ, in)
	require.NoError(t, res.Err)

	assert.Equal(t, sales.OrderStatusPartiallyRefunded, res.Entity.OrderStatus)
	assert.Equal(t, sales.PaymentStatusPartiallyRefunded, res.Entity.PaymentStatus)
	assert.Equal(t, sales.FulfillmentStatusDelivered, res.Entity.FulfillmentStatus)
}

func TestReturnReconciler_CashOnDeliveryRejectedAtDoor(t *testing.T) {
	f := newReturnFixture(t, func(in *integration.ChannelOrder) {
		in.PaymentMethod = sales.PaymentMethodCashOnDelivery
	})
	res := f.r.Reconcile(context.Background(), f.integ, shopifyRefund("r-cod", []integration.ChannelReturnLine{
		refundLine("11", 2, integration.RestockReturn, "0"),
		refundLine("12", 1, integration.RestockReturn, "0"),
	}))
	require.NoError(t, res.Err)
	require.Equal(t, reconcile.OutcomeCreated, res.Outcome)
	assert.Equal(t, returns.StatusCompleted, res.Entity.Status)
	assert.Equal(t, int64(0), res.Entity.RefundTotal)
	assert.Len(t, res.Entity.Items, 2)

	order := f.reloadOrder(t)
	assert.Equal(t, sales.ReturnStatusFull, order.ReturnStatus)
	assert.Equal(t, sales.OrderStatusProcessing, order.OrderStatus)
}

func TestReturnReconciler_RequestThenRefundMerge(t *testing.T) {
	ctx := context.Background()
	f := newReturnFixture(t, nil)

	request := &integration.ChannelReturn{
		Platform:        integration.PlatformShopify,
		Kind:            returns.KindReturnRequest,
		ExternalID:      "rr-1",
		OrderExternalID: "5001",
		Status:          returns.StatusRequested,
		ReasonCode:      "SIZE_TOO_SMALL",
		Lines:           []integration.ChannelReturnLine{{OrderLineExternalID: "11", Quantity: 5, Reason: "size"}},
	}
	opened := f.r.Reconcile(ctx, f.integ, request)
	require.NoError(t, opened.Err)
	assert.Equal(t, returns.StatusRequested, opened.Entity.Status)
	require.Len(t, opened.Entity.Items, 1)
	assert.Equal(t, 2, opened.Entity.Items[0].Quantity, "quantity is capped at the ordered quantity")

	f.h.clock.Advance(time.Minute)
	refund := shopifyRefund("r-2",
		[]integration.ChannelReturnLine{refundLine("11", 2, integration.RestockReturn, "100")},
		refundTx("tx-2", integration.TransactionSuccess, "100"))
	merged := f.r.Reconcile(ctx, f.integ, refund)
	require.NoError(t, merged.Err)
	assert.Equal(t, reconcile.OutcomeUpdated, merged.Outcome)
	assert.Equal(t, opened.Entity.ID, merged.Entity.ID)
	assert.Equal(t, returns.StatusCompleted, merged.Entity.Status)
	assert.Equal(t, "SIZE_TOO_SMALL", merged.Entity.ReasonCode)
	require.Len(t, merged.Entity.History, 2)
	assert.Equal(t, returns.SystemActor, merged.Entity.History[1].Actor)
	assert.Equal(t, returns.ReasonChannelSync, merged.Entity.History[1].Reason)

	again := f.r.Reconcile(ctx, f.integ, refund)
	require.NoError(t, again.Err)
	assert.Equal(t, opened.Entity.ID, again.Entity.ID)
	assert.Equal(t, int64(1), f.h.count(t, &models.OrderReturnModel{}))
}

func TestReturnReconciler_PendingRefundApproves(t *testing.T) {
	f := newReturnFixture(t, nil)
	res := f.r.Reconcile(context.Background(), f.integ, shopifyRefund("r-p",
		[]integration.ChannelReturnLine{refundLine("12", 1, integration.RestockNoRestock, "50")},
		refundTx("tx-p", integration.TransactionPending, "50")))
	require.NoError(t, res.Err)
	assert.Equal(t, returns.StatusApproved, res.Entity.Status)
	assert.Equal(t, int64(0), res.Entity.RefundTotal)

	order := f.reloadOrder(t)
	assert.Equal(t, sales.ReturnStatusPartial, order.ReturnStatus)
	assert.Equal(t, sales.OrderStatusProcessing, order.OrderStatus)
}

func TestReturnReconciler_SecondRefundJoinsSoleReturn(t *testing.T) {
	ctx := context.Background()
	f := newReturnFixture(t, nil)

	first := f.r.Reconcile(ctx, f.integ, shopifyRefund("r-1",
		[]integration.ChannelReturnLine{refundLine("11", 1, integration.RestockReturn, "50")},
		refundTx("tx-1", integration.TransactionSuccess, "50")))
	require.NoError(t, first.Err)
	require.Equal(t, reconcile.OutcomeCreated, first.Outcome)

	second := shopifyRefund("r-2",
		[]integration.ChannelReturnLine{refundLine("12", 1, integration.RestockReturn, "50")},
		refundTx("tx-2", integration.TransactionSuccess, "50"))
	res := f.r.Reconcile(ctx, f.integ, second)
	require.NoError(t, res.Err)
	assert.Equal(t, reconcile.OutcomeUpdated, res.Outcome)
	assert.Equal(t, first.Entity.ID, res.Entity.ID)
	assert.Len(t, res.Entity.Items, 2)
	assert.Len(t, res.Entity.Refunds, 2)
	assert.Equal(t, int64(10000), res.Entity.RefundTotal)

	again := f.r.Reconcile(ctx, f.integ, second)
	require.NoError(t, again.Err)
	assert.Equal(t, first.Entity.ID, again.Entity.ID)
	assert.Equal(t, int64(1), f.h.count(t, &models.OrderReturnModel{}))
	assert.Equal(t, int64(2), f.h.count(t, &models.ReturnRefundModel{}))
}

func TestReturnReconciler_AmbiguousFallbackCreatesNewReturn(t *testing.T) {
	ctx := context.Background()
	f := newReturnFixture(t, nil)

	repo := persistence.NewGormOrderReturnRepository(f.h.db)
	openIDs := map[string]bool{}
	for _, id := range []string{"rr-1", "rr-2"} {
		ret, err := returns.NewOrderReturn(f.order.ID, string(integration.PlatformShopify), id,
			returns.KindReturnRequest, returns.StatusRequested, returns.SystemActor, f.h.clock.Now())
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, ret))
		openIDs[ret.ID.String()] = true
	}

	res := f.r.Reconcile(ctx, f.integ, shopifyRefund("r-3",
		[]integration.ChannelReturnLine{refundLine("12", 1, integration.RestockReturn, "50")},
		refundTx("tx-3", integration.TransactionSuccess, "50")))
	require.NoError(t, res.Err)

	assert.Equal(t, reconcile.OutcomeCreated, res.Outcome)
	assert.False(t, openIDs[res.Entity.ID.String()], "neither open return may absorb the refund")
	assert.Contains(t, f.h.audit.actions(), reconcile.AuditReturnAmbiguous)
	assert.Equal(t, int64(3), f.h.count(t, &models.OrderReturnModel{}))
}
