package shipping

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnisync/backend/internal/domain/integration"
	"github.com/omnisync/backend/internal/domain/returns"
	"github.com/omnisync/backend/internal/infrastructure/channelapi"
)

// stubIntegrations serves a fixed list of Geliver integrations
type stubIntegrations struct {
	list []*integration.Integration
	err  error
}

func (s *stubIntegrations) FindByID(context.Context, uuid.UUID) (*integration.Integration, error) {
	return nil, integration.ErrIntegrationNotFound
}

func (s *stubIntegrations) FindActiveByProvider(_ context.Context, p integration.PlatformCode) ([]*integration.Integration, error) {
	if p != integration.PlatformGeliver {
		return nil, nil
	}
	return s.list, s.err
}

func (s *stubIntegrations) ListActive(context.Context) ([]*integration.Integration, error) {
	return s.list, s.err
}

func (s *stubIntegrations) Save(context.Context, *integration.Integration) error { return nil }

func geliverIntegration(t *testing.T, baseURL string) *integration.Integration {
	t.Helper()
	integ, err := integration.NewIntegration(integration.IntegrationTypeShippingProvider, integration.PlatformGeliver, "geliver",
		integration.Settings{
			integration.SettingAccessToken:   "tok",
			integration.SettingWebhookSecret: "hook-token",
			integration.SettingBaseURL:       baseURL,
		}, time.Now())
	require.NoError(t, err)
	return integ
}

func newTestClient(t *testing.T, baseURL string) *GeliverClient {
	repo := &stubIntegrations{list: []*integration.Integration{geliverIntegration(t, baseURL)}}
	return NewGeliverClient(channelapi.Options{MaxRetries: -1}, repo, nil)
}

const outboundShipmentJSON = `{
	"id": "shp-1",
	"order": {"orderNumber": "#1001"},
	"barcode": "GLV000123",
	"trackingNumber": "YT123",
	"providerCode": "YURTICI",
	"isReturn": false,
	"desi": "2.5",
	"currency": "try",
	"acceptedOffer": {"amount": "45.50", "amountVat": "9.10", "totalAmount": "54.60", "currency": "TRY"},
	"trackingStatus": {"trackingStatusCode": "TRANSIT"}
}`

func TestGeliverClient_NormalizeOutboundShipment(t *testing.T) {
	c := newTestClient(t, "")
	payload := []byte(`{"event": "TRACK_UPDATED", "data": ` + outboundShipmentJSON + `}`)

	out, err := c.NormalizeShipment(payload)
	require.NoError(t, err)

	assert.Equal(t, integration.PlatformGeliver, out.Platform)
	assert.Equal(t, "shp-1", out.ShipmentID)
	assert.Equal(t, "#1001", out.OrderReference)
	assert.Equal(t, "YT123", out.TrackingNumber)
	assert.Equal(t, "Yurtici Kargo", out.Carrier)
	assert.False(t, out.IsReturn)
	assert.Empty(t, out.ReturnStatus, "outbound shipments never move a return")
	assert.Equal(t, "TRY", out.Currency)
	assert.True(t, decimal.RequireFromString("2.5").Equal(out.Desi))
	require.NotNil(t, out.OutboundCost)
	assert.True(t, decimal.RequireFromString("45.50").Equal(*out.OutboundCost))
	assert.Nil(t, out.ReturnCost)
	assert.Nil(t, out.TotalCost)
}

func TestGeliverClient_NormalizeReturnShipment(t *testing.T) {
	c := newTestClient(t, "")
	payload := []byte(`{"id": "shp-r", "barcode": "GLV9", "providerCode": "ARAS", "isReturn": true,
		"acceptedOffer": {"amount": 30}, "trackingStatus": {"trackingStatusCode": "DELIVERED"}}`)

	out, err := c.NormalizeShipment(payload)
	require.NoError(t, err)
	assert.True(t, out.IsReturn)
	assert.Equal(t, "GLV9", out.TrackingNumber, "barcode stands in for a missing tracking number")
	assert.Equal(t, returns.StatusReceived, out.ReturnStatus)
	require.NotNil(t, out.ReturnCost)
	assert.True(t, decimal.NewFromInt(30).Equal(*out.ReturnCost))
	assert.Nil(t, out.OutboundCost)
}

func TestGeliverClient_NormalizeRejectsEmpty(t *testing.T) {
	c := newTestClient(t, "")
	_, err := c.NormalizeShipment([]byte(`{"event": "TRACK_UPDATED", "data": {}}`))
	assert.ErrorIs(t, err, integration.ErrPlatformInvalidResponse)
	_, err = c.NormalizeShipment([]byte(`not json`))
	assert.ErrorIs(t, err, integration.ErrPlatformInvalidResponse)
}

func TestGeliverClient_Webhook(t *testing.T) {
	c := newTestClient(t, "")
	integ := geliverIntegration(t, "")

	assert.True(t, c.VerifyWebhook(integ, nil, "hook-token"))
	assert.True(t, c.VerifyWebhook(integ, nil, "Bearer hook-token"))
	assert.False(t, c.VerifyWebhook(integ, nil, "wrong"))
	assert.False(t, c.VerifyWebhook(integ, nil, ""))

	topic, ok := c.RouteTopic("TRACK_UPDATED")
	assert.True(t, ok)
	assert.Equal(t, integration.TopicShipment, topic)
	_, ok = c.RouteTopic("invoice")
	assert.False(t, ok)

	assert.Equal(t, "shp-1", c.ExternalID(topic, []byte(`{"data": `+outboundShipmentJSON+`}`)))
	assert.Equal(t, "shp-1", c.ExternalID(topic, []byte(outboundShipmentJSON)))
}

func TestGeliverClient_ShipmentCost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/shipments/shp-1", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"result": true, "data": {"id": "shp-1", "currency": "TRY",
			"acceptedOffer": {"amount": "40"}, "returnAcceptedOffer": {"amount": "35"}, "totalAmount": "75"}}`))
	}))
	defer srv.Close()

	cost, err := newTestClient(t, srv.URL).ShipmentCost(context.Background(), "shp-1")
	require.NoError(t, err)
	assert.Equal(t, "TRY", cost.Currency)
	require.NotNil(t, cost.OutboundLeg())
	assert.True(t, decimal.NewFromInt(40).Equal(*cost.OutboundLeg()))
	require.NotNil(t, cost.ReturnLeg())
	assert.True(t, decimal.NewFromInt(35).Equal(*cost.ReturnLeg()))
}

func TestGeliverClient_ShipmentCostFailures(t *testing.T) {
	t.Run("api reports failure", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"result": false, "message": "shipment not found"}`))
		}))
		defer srv.Close()

		_, err := newTestClient(t, srv.URL).ShipmentCost(context.Background(), "x")
		assert.ErrorIs(t, err, integration.ErrPlatformRequestFailed)
		assert.Contains(t, err.Error(), "shipment not found")
	})

	t.Run("no active integration", func(t *testing.T) {
		c := NewGeliverClient(channelapi.Options{}, &stubIntegrations{}, nil)
		_, err := c.ShipmentCost(context.Background(), "x")
		assert.ErrorIs(t, err, integration.ErrIntegrationNotFound)
	})

	t.Run("integration without token", func(t *testing.T) {
		integ := geliverIntegration(t, "")
		delete(integ.Settings, integration.SettingAccessToken)
		c := NewGeliverClient(channelapi.Options{}, &stubIntegrations{list: []*integration.Integration{integ}}, nil)
		_, err := c.ShipmentCost(context.Background(), "x")
		assert.ErrorIs(t, err, ErrGeliverMissingToken)
	})

	t.Run("server error is unavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		_, err := newTestClient(t, srv.URL).ShipmentCost(context.Background(), "x")
		assert.ErrorIs(t, err, integration.ErrPlatformUnavailable)
	})
}

func TestGeliverClient_CreateReturnLabel(t *testing.T) {
	pdf := []byte("%PDF-1.4 label")
	var srvURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/shipments/shp-1/return":
			assert.Equal(t, http.MethodPost, r.Method)
			body, _ := io.ReadAll(r.Body)
			var req map[string]any
			require.NoError(t, json.Unmarshal(body, &req))
			assert.Equal(t, true, req["willAccept"])
			assert.Equal(t, "ret-1", req["reference"])
			assert.Equal(t, "2", req["desi"])
			_, _ = w.Write([]byte(`{"result": true, "data": {"id": "shp-r1", "providerCode": "MNG",
				"barcode": "GLVR1", "labelURL": "` + srvURL + `/labels/shp-r1.pdf"}}`))
		case "/labels/shp-r1.pdf":
			assert.Equal(t, "application/pdf", r.Header.Get("Accept"))
			w.Header().Set("Content-Type", "application/pdf")
			_, _ = w.Write(pdf)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()
	srvURL = srv.URL

	label, err := newTestClient(t, srv.URL).CreateReturnLabel(context.Background(), integration.ReturnLabelRequest{
		ReturnID:       "ret-1",
		OriginalShipID: "shp-1",
		Desi:           decimal.NewFromInt(2),
		Carrier:        "fallback",
	})
	require.NoError(t, err)
	assert.Equal(t, "shp-r1", label.ShipmentID)
	assert.Equal(t, "MNG Kargo", label.Carrier)
	assert.Equal(t, "GLVR1", label.TrackingNumber)
	assert.Equal(t, "shp-r1.pdf", label.FileName)
	assert.Equal(t, "application/pdf", label.ContentType)
	assert.Equal(t, pdf, label.Data)
}

func TestGeliverClient_CreateReturnLabelNeedsOriginalShipment(t *testing.T) {
	_, err := newTestClient(t, "").CreateReturnLabel(context.Background(), integration.ReturnLabelRequest{ReturnID: "r"})
	assert.ErrorIs(t, err, integration.ErrPlatformRequestFailed)
}

func TestCarrierName(t *testing.T) {
	assert.Equal(t, "Aras Kargo", CarrierName("aras"))
	assert.Equal(t, "UNKNOWNCO", CarrierName("UNKNOWNCO"))
	assert.Equal(t, "", CarrierName(""))
}

func TestLabelFileName(t *testing.T) {
	assert.Equal(t, "abc.pdf", labelFileName("https://cdn.example.com/x/abc.pdf?sig=1", "shp"))
	assert.Equal(t, "shp.pdf", labelFileName("https://cdn.example.com/download", "shp"))
}
