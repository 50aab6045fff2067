package integration

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func TestSettingsAccessors(t *testing.T) {
	s := Settings{
		SettingShopDomain:    " Demo-Shop.myshopify.com ",
		SettingSupplierID:    float64(123456),
		SettingWebhookSecret: "s3cret",
		SettingSyncInventory: "true",
	}
	assert.Equal(t, "demo-shop.myshopify.com", s.ShopDomain())
	assert.Equal(t, "123456", s.SupplierID())
	assert.Equal(t, "s3cret", s.WebhookSecret())
	assert.True(t, s.SyncInventory())
	assert.Empty(t, s.APIKey())
	assert.False(t, Settings{}.SyncInventory())
}

func TestNewIntegration(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		i, err := NewIntegration(IntegrationTypeSalesChannel, PlatformShopify, "Main shop", nil, now)
		require.NoError(t, err)
		assert.True(t, i.Active)
		assert.NotNil(t, i.Settings)
	})

	t.Run("invalid provider", func(t *testing.T) {
		_, err := NewIntegration(IntegrationTypeSalesChannel, "ebay", "x", nil, now)
		assert.ErrorIs(t, err, ErrInvalidPlatformCode)
	})

	t.Run("invalid type", func(t *testing.T) {
		_, err := NewIntegration("OTHER", PlatformShopify, "x", nil, now)
		assert.ErrorIs(t, err, ErrInvalidIntegrationType)
	})
}

func TestIntegrationMatches(t *testing.T) {
	i, err := NewIntegration(IntegrationTypeSalesChannel, PlatformTrendyol, "TY", Settings{SettingSupplierID: "42"}, now)
	require.NoError(t, err)
	assert.True(t, i.Matches("", "42"))
	assert.False(t, i.Matches("", "43"))
	assert.False(t, i.Matches("", ""))
}

func TestMappingKey(t *testing.T) {
	assert.NoError(t, OrderKey(PlatformTrendyol, "1").Validate())
	assert.ErrorIs(t, OrderKey(PlatformTrendyol, " ").Validate(), ErrMappingInvalidPlatformID)
	assert.ErrorIs(t, MappingKey{Platform: PlatformShopify, EntityType: "USER", PlatformID: "1"}.Validate(), ErrMappingInvalidEntityType)
	assert.Equal(t, EntityReturnRefund, RefundKey(PlatformShopify, "9").EntityType)

	_, err := NewPlatformMapping(CustomerKey(PlatformShopify, "7"), uuid.Nil, nil, now)
	assert.ErrorIs(t, err, ErrMappingInvalidEntityID)
}

func TestPlatformMappingRefresh(t *testing.T) {
	m, err := NewPlatformMapping(CustomerKey(PlatformShopify, "7"), uuid.New(), []byte(`{"a":1}`), now)
	require.NoError(t, err)
	later := now.Add(time.Minute)
	m.Refresh(nil, later)
	assert.JSONEq(t, `{"a":1}`, string(m.Payload))
	assert.Equal(t, later, m.LastSyncedAt)
}

func TestChannelCustomerDetectMasked(t *testing.T) {
	c := ChannelCustomer{FirstName: "De***", LastName: "Ahmet", Email: "x@y.com"}
	assert.True(t, c.DetectMasked(PlatformTrendyol.MaskSentinel()))

	c = ChannelCustomer{FirstName: "Deniz", LastName: "Ahmet"}
	assert.False(t, c.DetectMasked(PlatformTrendyol.MaskSentinel()))
}

func TestChannelReturnPredicates(t *testing.T) {
	amount := decimal.NewFromInt(10)

	t.Run("void only", func(t *testing.T) {
		r := ChannelReturn{Transactions: []ChannelTransaction{{Kind: TransactionVoid, Status: TransactionSuccess, Amount: amount}}}
		assert.True(t, r.IsVoid())
		assert.False(t, r.HasMoneyMovement())
	})

	t.Run("order edits", func(t *testing.T) {
		r := ChannelReturn{Lines: []ChannelReturnLine{{RestockType: RestockCancel}}}
		assert.True(t, r.AllOrderEdits())
		r.Lines = append(r.Lines, ChannelReturnLine{RestockType: RestockReturn})
		assert.False(t, r.AllOrderEdits())
		assert.True(t, r.AnyRestocked())
	})

	t.Run("refund transactions", func(t *testing.T) {
		r := ChannelReturn{Transactions: []ChannelTransaction{
			{Kind: TransactionCapture, Status: TransactionSuccess},
			{Kind: TransactionRefund, Status: TransactionFailure},
		}}
		assert.Len(t, r.RefundTransactions(), 1)
		assert.False(t, r.HasMoneyMovement())
		assert.False(t, r.IsVoid())
	})

	t.Run("pending refund counts as money movement", func(t *testing.T) {
		r := ChannelReturn{Transactions: []ChannelTransaction{
			{Kind: TransactionRefund, Status: TransactionFailure},
			{Kind: TransactionRefund, Status: TransactionPending},
		}}
		assert.True(t, r.HasMoneyMovement())
	})
}

func TestReconcileJobLifecycle(t *testing.T) {
	t.Run("backoff then dead", func(t *testing.T) {
		j := NewReconcileJob(JobKindOrder, uuid.New(), "1", []byte(`{}`), now)
		require.NoError(t, j.MarkProcessing(now))

		j.MarkFailed("boom", now)
		assert.Equal(t, JobStatusFailed, j.Status)
		require.NotNil(t, j.NextRetryAt)
		assert.Equal(t, now.Add(time.Second), *j.NextRetryAt)

		j.MarkFailed("boom", now)
		assert.Equal(t, now.Add(2*time.Second), *j.NextRetryAt)

		for i := 0; i < 3; i++ {
			j.MarkFailed("boom", now)
		}
		assert.True(t, j.IsDead())
		assert.Nil(t, j.NextRetryAt)
	})

	t.Run("processing requires pending or failed", func(t *testing.T) {
		j := NewReconcileJob(JobKindOrder, uuid.New(), "1", nil, now)
		j.MarkSucceeded(now)
		assert.ErrorIs(t, j.MarkProcessing(now), ErrJobInvalidState)
		assert.True(t, j.IsFinished())
	})

	t.Run("skip is a success", func(t *testing.T) {
		j := NewReconcileJob(JobKindRefund, uuid.New(), "1", nil, now)
		j.MarkSkipped("no_refund_lines", now)
		assert.True(t, j.IsFinished())
		assert.Equal(t, "no_refund_lines", j.SkipReason)
	})

	t.Run("reset only dead", func(t *testing.T) {
		j := NewReconcileJob(JobKindOrder, uuid.New(), "1", nil, now)
		assert.ErrorIs(t, j.ResetForRetry(now), ErrJobNotRetryable)
		j.MarkDead("conflict", now)
		require.NoError(t, j.ResetForRetry(now))
		assert.Equal(t, JobStatusPending, j.Status)
		assert.Zero(t, j.RetryCount)
	})
}

func TestJobKindForTopic(t *testing.T) {
	k, ok := JobKindForTopic(TopicRefund)
	assert.True(t, ok)
	assert.Equal(t, JobKindRefund, k)
	_, ok = JobKindForTopic("unknown")
	assert.False(t, ok)
}

func TestSyncBatch(t *testing.T) {
	b := NewSyncBatch(uuid.New(), SyncKindOrders, nil, now)
	b.RecordPage(50)
	b.RecordPage(10)
	assert.Equal(t, 2, b.Pages)
	assert.Equal(t, 60, b.ItemsEnqueued)
	b.Fail("page 3: timeout", now)
	assert.Equal(t, BatchStatusFailed, b.Status)
	require.NotNil(t, b.FinishedAt)
}

func TestShipmentCostLegs(t *testing.T) {
	d := func(v int64) *decimal.Decimal { x := decimal.NewFromInt(v); return &x }

	t.Run("itemized", func(t *testing.T) {
		c := ShipmentCost{Outbound: d(60), Return: d(70), Total: d(130)}
		assert.True(t, c.OutboundLeg().Equal(decimal.NewFromInt(60)))
		assert.True(t, c.ReturnLeg().Equal(decimal.NewFromInt(70)))
	})

	t.Run("total only splits symmetrically", func(t *testing.T) {
		c := ShipmentCost{Total: d(120)}
		assert.True(t, c.ReturnLeg().Equal(decimal.NewFromInt(60)))
		assert.True(t, c.OutboundLeg().Equal(decimal.NewFromInt(120)))
	})

	t.Run("total and outbound", func(t *testing.T) {
		c := ShipmentCost{Outbound: d(50), Total: d(120)}
		assert.True(t, c.ReturnLeg().Equal(decimal.NewFromInt(70)))
	})

	t.Run("nothing reported", func(t *testing.T) {
		c := ShipmentCost{}
		assert.Nil(t, c.OutboundLeg())
		assert.Nil(t, c.ReturnLeg())
	})
}
