package ecommerce

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnisync/backend/internal/domain/integration"
	"github.com/omnisync/backend/internal/domain/returns"
	"github.com/omnisync/backend/internal/domain/sales"
	"github.com/omnisync/backend/internal/infrastructure/channelapi"
)

// trendyolPackageJSON is a 1350 TRY single-line package in the given state
func trendyolPackageJSON(status, firstName, phone string) string {
	return `{
		"shipmentPackageId": 3330111,
		"orderNumber": "10654411111",
		"grossAmount": 1500,
		"totalDiscount": 150,
		"totalPrice": 1350,
		"currencyCode": "TRY",
		"customerFirstName": "` + firstName + `",
		"customerLastName": "Yilmaz",
		"customerEmail": "pf+abc@trendyolmail.com",
		"customerId": 99001,
		"shipmentAddress": {"address1": "Kadikoy", "phone": "` + phone + `", "countryCode": "TR"},
		"lines": [{
			"id": 4440111, "productContentId": 5550111, "merchantSku": "SKU-1", "barcode": "8680001",
			"productName": "Sneaker", "quantity": 1, "amount": 1500, "price": 1350, "discount": 150,
			"vatBaseAmount": 20, "commission": 15
		}],
		"shipmentPackageStatus": "` + status + `",
		"cargoProviderName": "Trendyol Express",
		"cargoTrackingNumber": 7280000000001,
		"cargoDeci": 2,
		"orderDate": 1709280000000
	}`
}

func TestTrendyolNormalizer_MaskedCreatedPackage(t *testing.T) {
	out, err := NewTrendyolNormalizer().NormalizeOrder([]byte(trendyolPackageJSON("Created", "***", "***")))
	require.NoError(t, err)

	assert.Equal(t, integration.PlatformTrendyol, out.Platform)
	assert.Equal(t, "3330111", out.ExternalID)
	assert.Equal(t, "10654411111", out.OrderNumber)
	assert.Equal(t, "Created", out.RawStatus)
	assert.Equal(t, sales.OrderStatusProcessing, out.Statuses.Order)
	assert.Equal(t, sales.PaymentStatusPaid, out.Statuses.Payment)
	assert.Equal(t, sales.FulfillmentStatusAwaitingShipment, out.Statuses.Fulfillment)
	assert.Equal(t, sales.PaymentMethodPrepaid, out.PaymentMethod)

	assert.Equal(t, "TRY", out.Currency)
	assert.True(t, decimal.NewFromInt(1500).Equal(out.Subtotal))
	assert.True(t, decimal.NewFromInt(150).Equal(out.Discount))
	assert.True(t, decimal.NewFromInt(1350).Equal(out.GrandTotal))
	assert.True(t, decimal.NewFromInt(225).Equal(out.Tax), "VAT contained in 1350 at 20%%, got %s", out.Tax)

	assert.True(t, out.Customer.Masked)
	assert.Equal(t, "***", out.Customer.Phone)
	assert.Equal(t, "99001", out.Customer.ExternalID)

	require.Len(t, out.Lines, 1)
	line := out.Lines[0]
	assert.Equal(t, "4440111", line.ExternalID)
	assert.Equal(t, "8680001", line.VariantExternalID)
	assert.Equal(t, "SKU-1", line.SKU)
	assert.True(t, decimal.NewFromInt(1500).Equal(line.UnitPrice))
	assert.True(t, decimal.NewFromInt(150).Equal(line.Discount))
	assert.True(t, decimal.NewFromInt(20).Equal(line.TaxRate))
	assert.True(t, decimal.NewFromInt(15).Equal(line.CommissionRate))

	assert.Equal(t, "Trendyol Express", out.Shipping.Carrier)
	assert.Equal(t, "7280000000001", out.Shipping.TrackingNumber)
	assert.True(t, decimal.NewFromInt(2).Equal(out.Shipping.Desi))
}

func TestTrendyolNormalizer_UnmaskedShippedPackage(t *testing.T) {
	out, err := NewTrendyolNormalizer().NormalizeOrder([]byte(trendyolPackageJSON("Shipped", "Ayse", "05321112233")))
	require.NoError(t, err)

	assert.Equal(t, "3330111", out.ExternalID)
	assert.Equal(t, sales.FulfillmentStatusInTransit, out.Statuses.Fulfillment)
	assert.False(t, out.Customer.Masked)
	assert.Equal(t, "Ayse", out.Customer.FirstName)
	assert.Equal(t, "+905321112233", out.Customer.Phone)
}

func TestTrendyolStatuses(t *testing.T) {
	tests := []struct {
		raw  string
		want sales.StatusSet
	}{
		{"Delivered", sales.StatusSet{Order: sales.OrderStatusCompleted, Payment: sales.PaymentStatusPaid, Fulfillment: sales.FulfillmentStatusDelivered}},
		{"UnSupplied", sales.StatusSet{Order: sales.OrderStatusCancelled, Payment: sales.PaymentStatusRefunded, Fulfillment: sales.FulfillmentStatusCancelled}},
		{"AtCollectionPoint", sales.StatusSet{Order: sales.OrderStatusProcessing, Payment: sales.PaymentStatusPaid, Fulfillment: sales.FulfillmentStatusAwaitingPickup}},
		{"SomethingNew", sales.DefaultStatusSet()},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, trendyolStatuses(tt.raw))
		})
	}
}

const trendyolClaimJSON = `{
	"id": "f3a1-claim",
	"orderNumber": "10654411111",
	"orderShipmentPackageId": 3330111,
	"claimDate": 1709366400000,
	"cargoProviderName": "Aras Kargo",
	"cargoTrackingNumber": 7330000000002,
	"items": [{
		"orderLine": {"id": 4440111, "barcode": "8680001", "merchantSku": "SKU-1", "price": 1350},
		"claimItems": [
			{"id": "ci-1", "claimItemStatus": {"name": "WaitingInAction"},
			 "customerClaimItemReason": {"name": "Beden kucuk geldi", "code": "SIZE"}, "customerNote": "dar"},
			{"id": "ci-2", "claimItemStatus": {"name": "Accepted"},
			 "customerClaimItemReason": {"name": "Beden kucuk geldi", "code": "SIZE"}}
		]
	}]
}`

func TestTrendyolNormalizer_Claim(t *testing.T) {
	out, err := NewTrendyolNormalizer().NormalizeReturn(integration.JobKindClaim, []byte(trendyolClaimJSON))
	require.NoError(t, err)

	assert.Equal(t, returns.KindClaim, out.Kind)
	assert.Equal(t, "f3a1-claim", out.ExternalID)
	assert.Equal(t, "3330111", out.OrderExternalID)
	assert.Equal(t, returns.StatusReceived, out.Status, "claim follows its least settled item")
	assert.Equal(t, "SIZE", out.ReasonCode)
	assert.Equal(t, "Beden kucuk geldi", out.ReasonName)
	assert.Equal(t, "dar", out.CustomerNote)
	assert.Equal(t, "TRY", out.Currency)
	assert.Equal(t, "Aras Kargo", out.Shipping.Carrier)
	assert.Equal(t, "7330000000002", out.Shipping.TrackingNumber)
	require.NotNil(t, out.OccurredAt)

	require.Len(t, out.Lines, 1)
	line := out.Lines[0]
	assert.Equal(t, "4440111", line.OrderLineExternalID)
	assert.Equal(t, 2, line.Quantity)
	assert.Equal(t, integration.RestockReturn, line.RestockType)
	assert.True(t, decimal.NewFromInt(2700).Equal(line.RefundAmount))
}

func TestTrendyolClaimStatusOf(t *testing.T) {
	assert.Equal(t, returns.StatusRequested, trendyolClaimStatusOf(nil))
	assert.Equal(t, returns.StatusCompleted, trendyolClaimStatusOf([]returns.Status{returns.StatusCompleted, returns.StatusCompleted}))
	assert.Equal(t, returns.StatusRejected, trendyolClaimStatusOf([]returns.Status{returns.StatusCompleted, returns.StatusRejected}))
	assert.Equal(t, returns.StatusRequested, mapTrendyolClaimItemStatus("BrandNewState"))
}

func TestTrendyolNormalizer_OnlyClaims(t *testing.T) {
	n := NewTrendyolNormalizer()
	_, err := n.NormalizeReturn(integration.JobKindRefund, []byte(`{}`))
	assert.ErrorIs(t, err, integration.ErrUnsupportedTopic)
	_, err = n.NormalizeReturn(integration.JobKindReturnRequest, []byte(`{}`))
	assert.ErrorIs(t, err, integration.ErrUnsupportedTopic)
}

func TestTrendyolNormalizer_Product(t *testing.T) {
	payload := `{"id": "abc", "productMainId": "MAIN-1", "barcode": "8680001", "stockCode": "SKU-1",
		"title": "Sneaker", "salePrice": 1350.5, "quantity": 12}`
	out, err := NewTrendyolNormalizer().NormalizeProduct([]byte(payload))
	require.NoError(t, err)
	assert.Equal(t, "MAIN-1", out.ExternalID)
	assert.Equal(t, "TRY", out.Currency)
	require.Len(t, out.Variants, 1)
	assert.Equal(t, "8680001", out.Variants[0].ExternalID)
	assert.Equal(t, "SKU-1", out.Variants[0].SKU)
	require.NotNil(t, out.Variants[0].Stock)
	assert.Equal(t, 12, *out.Variants[0].Stock)
}

func trendyolIntegration(t *testing.T, baseURL string) *integration.Integration {
	t.Helper()
	integ, err := integration.NewIntegration(integration.IntegrationTypeSalesChannel, integration.PlatformTrendyol, "store",
		integration.Settings{
			integration.SettingSupplierID:    "107700",
			integration.SettingAPIKey:        "key",
			integration.SettingAPISecret:     "secret",
			integration.SettingWebhookSecret: "hook",
			integration.SettingBaseURL:       baseURL,
		}, time.Now())
	require.NoError(t, err)
	return integ
}

func TestTrendyolClient_VerifyWebhook(t *testing.T) {
	c := NewTrendyolClient(channelapi.Options{}, nil)
	integ := trendyolIntegration(t, "")
	basic := func(user, pass string) string {
		return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
	}

	assert.True(t, c.VerifyWebhook(integ, nil, "hook"))
	assert.True(t, c.VerifyWebhook(integ, nil, basic("trendyol", "hook")))
	assert.True(t, c.VerifyWebhook(integ, nil, basic("key", "secret")))
	assert.False(t, c.VerifyWebhook(integ, nil, basic("key", "wrong")))
	assert.False(t, c.VerifyWebhook(integ, nil, "Basic !!!"))
	assert.False(t, c.VerifyWebhook(integ, nil, "nope"))
	assert.False(t, c.VerifyWebhook(integ, nil, ""))
}

func TestTrendyolClient_RouteTopicAndExternalID(t *testing.T) {
	c := NewTrendyolClient(channelapi.Options{}, nil)
	topic, ok := c.RouteTopic("")
	assert.True(t, ok)
	assert.Equal(t, integration.TopicOrder, topic)
	topic, ok = c.RouteTopic("Claim")
	assert.True(t, ok)
	assert.Equal(t, integration.TopicClaim, topic)
	_, ok = c.RouteTopic("settlement")
	assert.False(t, ok)

	assert.Equal(t, "3330111", c.ExternalID(integration.TopicOrder, []byte(trendyolPackageJSON("Created", "a", "b"))))
	assert.Equal(t, "f3a1-claim", c.ExternalID(integration.TopicClaim, []byte(trendyolClaimJSON)))
}

func TestTrendyolClient_PullOrders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/integration/order/sellers/107700/orders", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "key", user)
		assert.Equal(t, "secret", pass)
		assert.Equal(t, "107700 - SelfIntegration", r.Header.Get("User-Agent"))

		assert.NotEmpty(t, r.URL.Query().Get("page"))
		content := []json.RawMessage{json.RawMessage(trendyolPackageJSON("Created", "a", "b"))}
		body, _ := json.Marshal(map[string]any{"totalPages": 2, "content": content})
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	c := NewTrendyolClient(channelapi.Options{}, nil)
	integ := trendyolIntegration(t, srv.URL)
	since := time.UnixMilli(1709280000000)

	first, err := c.Pull(context.Background(), integ, integration.SyncKindOrders, &since, "")
	require.NoError(t, err)
	require.Len(t, first.Items, 1)
	assert.Equal(t, "3330111", first.Items[0].ExternalID)
	assert.True(t, first.HasMore)
	assert.Equal(t, "1", first.NextCursor)

	last, err := c.Pull(context.Background(), integ, integration.SyncKindOrders, &since, first.NextCursor)
	require.NoError(t, err)
	assert.False(t, last.HasMore)
	assert.Empty(t, last.NextCursor)

	_, err = c.Pull(context.Background(), integ, integration.SyncKindOrders, nil, "minus-one")
	assert.Error(t, err)
}

func TestTrendyolClient_PullRequiresSupplier(t *testing.T) {
	c := NewTrendyolClient(channelapi.Options{}, nil)
	integ := trendyolIntegration(t, "")
	delete(integ.Settings, integration.SettingSupplierID)
	_, err := c.Pull(context.Background(), integ, integration.SyncKindReturns, nil, "")
	assert.ErrorIs(t, err, ErrTrendyolConfigMissingSupplierID)
}

func TestTrendyolClient_PushCompletedApprovesWaitingItems(t *testing.T) {
	var approved map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/claims"):
			assert.Equal(t, "f3a1-claim", r.URL.Query().Get("claimIds"))
			_, _ = w.Write([]byte(`{"totalPages": 1, "content": [` + trendyolClaimJSON + `]}`))
		case r.Method == http.MethodPut && strings.HasSuffix(r.URL.Path, "/claims/f3a1-claim/items/approve"):
			body, _ := io.ReadAll(r.Body)
			require.NoError(t, json.Unmarshal(body, &approved))
			w.WriteHeader(http.StatusOK)
		default:
			t.Errorf("unexpected call %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewTrendyolClient(channelapi.Options{}, nil)
	err := c.PushReturnStatus(context.Background(), trendyolIntegration(t, srv.URL), integration.ReturnStatusPush{
		ExternalReturnID: "f3a1-claim",
		Status:           returns.StatusCompleted,
	})
	require.NoError(t, err)
	assert.Equal(t, []any{"ci-1"}, approved["claimLineItemIdList"])
}

func TestTrendyolClient_PushRejectedOpensIssue(t *testing.T) {
	var issued bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			_, _ = w.Write([]byte(`{"totalPages": 1, "content": [` + trendyolClaimJSON + `]}`))
			return
		}
		assert.Equal(t, http.MethodPost, r.Method)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/claims/f3a1-claim/issue"))
		assert.Equal(t, "ci-1", r.URL.Query().Get("claimItemIdList"))
		assert.Equal(t, "used item", r.URL.Query().Get("description"))
		issued = true
	}))
	defer srv.Close()

	c := NewTrendyolClient(channelapi.Options{}, nil)
	err := c.PushReturnStatus(context.Background(), trendyolIntegration(t, srv.URL), integration.ReturnStatusPush{
		ExternalReturnID: "f3a1-claim",
		Status:           returns.StatusRejected,
		Reason:           "used item",
	})
	require.NoError(t, err)
	assert.True(t, issued)
}

func TestTrendyolClient_PushIgnoresIntermediateStatuses(t *testing.T) {
	c := NewTrendyolClient(channelapi.Options{}, nil)
	err := c.PushReturnStatus(context.Background(), trendyolIntegration(t, "http://127.0.0.1:1"), integration.ReturnStatusPush{
		ExternalReturnID: "x",
		Status:           returns.StatusApproved,
	})
	assert.NoError(t, err)
}
