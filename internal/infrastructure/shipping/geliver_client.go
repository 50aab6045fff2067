package shipping

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/omnisync/backend/internal/application/ingest"
	"github.com/omnisync/backend/internal/domain/integration"
	"github.com/omnisync/backend/internal/infrastructure/channelapi"
)

// GeliverProductionAPIURL is the aggregator API root
const GeliverProductionAPIURL = "https://api.geliver.io/api/v1"

// GeliverHeaderToken carries the webhook token configured in the Geliver panel
const GeliverHeaderToken = "X-Geliver-Token"

// ErrGeliverMissingToken is returned when the Geliver integration has no API token
var ErrGeliverMissingToken = errors.New("geliver: api token is required")

var geliverTopics = map[string]integration.Topic{
	"":               integration.TopicShipment,
	"shipment":       integration.TopicShipment,
	"track_updated":  integration.TopicShipment,
	"shipment_event": integration.TopicShipment,
}

// GeliverClient implements integration.ShippingAggregator and the webhook
// conventions of the aggregator. API credentials come from the single active
// Geliver integration.
type GeliverClient struct {
	api          *channelapi.Client
	baseURL      string
	integrations integration.IntegrationRepository
	logger       *zap.Logger
}

// NewGeliverClient creates a client; opts.BaseURL overrides the production API
func NewGeliverClient(opts channelapi.Options, integrations integration.IntegrationRepository, logger *zap.Logger) *GeliverClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = GeliverProductionAPIURL
	}
	return &GeliverClient{
		api:          channelapi.New(integration.PlatformGeliver, opts, logger),
		baseURL:      base,
		integrations: integrations,
		logger:       logger,
	}
}

// Platform implements ingest.Provider
func (c *GeliverClient) Platform() integration.PlatformCode { return integration.PlatformGeliver }

// VerifyWebhook compares the presented token with the integration's webhook secret
func (c *GeliverClient) VerifyWebhook(integ *integration.Integration, _ []byte, signature string) bool {
	secret := integ.Settings.WebhookSecret()
	presented := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(signature), "Bearer "))
	if secret == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(secret)) == 1
}

// RouteTopic implements ingest.Provider
func (c *GeliverClient) RouteTopic(topic string) (integration.Topic, bool) {
	t, ok := geliverTopics[strings.ToLower(strings.TrimSpace(topic))]
	return t, ok
}

// ExternalID returns the shipment id of a webhook body
func (c *GeliverClient) ExternalID(_ integration.Topic, body []byte) string {
	s, err := decodeShipmentEvent(body)
	if err != nil {
		return ""
	}
	return s.ID
}

// decodeShipmentEvent accepts both the {"event","data"} webhook envelope and a bare shipment
func decodeShipmentEvent(body []byte) (*geliverShipment, error) {
	var hook geliverWebhook
	if err := json.Unmarshal(body, &hook); err != nil {
		return nil, err
	}
	raw := json.RawMessage(body)
	if len(hook.Data) > 0 && string(hook.Data) != "null" {
		raw = hook.Data
	}
	var s geliverShipment
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// NormalizeShipment implements integration.ShippingAggregator
func (c *GeliverClient) NormalizeShipment(payload []byte) (*integration.ChannelShipment, error) {
	s, err := decodeShipmentEvent(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: geliver shipment payload: %v", integration.ErrPlatformInvalidResponse, err)
	}
	if s.ID == "" && s.trackingNumber() == "" {
		return nil, fmt.Errorf("%w: geliver shipment without id or tracking number", integration.ErrPlatformInvalidResponse)
	}

	cost := shipmentCost(s)
	out := &integration.ChannelShipment{
		Platform:       integration.PlatformGeliver,
		ShipmentID:     s.ID,
		OrderReference: s.orderReference(),
		TrackingNumber: s.trackingNumber(),
		Carrier:        CarrierName(s.ProviderCode),
		IsReturn:       s.IsReturn,
		Desi:           s.Desi.Decimal,
		Currency:       cost.Currency,
		OutboundCost:   cost.Outbound,
		ReturnCost:     cost.Return,
		TotalCost:      cost.Total,
		Payload:        payload,
	}
	if s.IsReturn && s.TrackingStatus != nil {
		out.ReturnStatus = mapGeliverReturnStatus(s.TrackingStatus.TrackingStatusCode)
	}
	return out, nil
}

// shipmentCost splits the accepted offers of a shipment into legs. A return
// shipment's own offer is the return leg.
func shipmentCost(s *geliverShipment) *integration.ShipmentCost {
	cost := &integration.ShipmentCost{ShipmentID: s.ID, Currency: strings.ToUpper(s.Currency)}
	if o := s.AcceptedOffer; o != nil && o.Amount.IsPositive() {
		v := o.Amount.Decimal
		if s.IsReturn {
			cost.Return = &v
		} else {
			cost.Outbound = &v
		}
		if cost.Currency == "" {
			cost.Currency = strings.ToUpper(o.Currency)
		}
	}
	if o := s.ReturnOffer; o != nil && o.Amount.IsPositive() && cost.Return == nil {
		v := o.Amount.Decimal
		cost.Return = &v
	}
	if s.TotalAmount != nil && s.TotalAmount.IsPositive() {
		v := s.TotalAmount.Decimal
		cost.Total = &v
	}
	return cost
}

// credentials resolves the API token of the active Geliver integration
func (c *GeliverClient) credentials(ctx context.Context) (token, base string, err error) {
	if c.integrations == nil {
		return "", "", fmt.Errorf("%w: geliver", integration.ErrIntegrationNotFound)
	}
	list, err := c.integrations.FindActiveByProvider(ctx, integration.PlatformGeliver)
	if err != nil {
		return "", "", err
	}
	if len(list) == 0 {
		return "", "", fmt.Errorf("%w: no active geliver integration", integration.ErrIntegrationNotFound)
	}
	if len(list) > 1 {
		c.logger.Warn("Multiple active Geliver integrations, using the first",
			zap.String("integration_id", list[0].ID.String()),
		)
	}
	s := list[0].Settings
	token = s.AccessToken()
	if token == "" {
		token = s.APIKey()
	}
	if token == "" {
		return "", "", ErrGeliverMissingToken
	}
	base = strings.TrimRight(s.BaseURL(), "/")
	if base == "" {
		base = c.baseURL
	}
	return token, base, nil
}

func geliverHeaders(token string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	return h
}

// getShipment fetches one shipment
func (c *GeliverClient) getShipment(ctx context.Context, token, base, id string) (*geliverShipment, error) {
	resp, err := c.api.Do(ctx, channelapi.Request{
		Method:  http.MethodGet,
		URL:     base + "/shipments/" + url.PathEscape(id),
		Headers: geliverHeaders(token),
	})
	if err != nil {
		return nil, err
	}
	var s geliverShipment
	if err := unwrap(resp.Body, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func unwrap(body []byte, v any) error {
	var env geliverEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("%w: geliver response: %v", integration.ErrPlatformInvalidResponse, err)
	}
	if !env.Result {
		return fmt.Errorf("%w: geliver: %s", integration.ErrPlatformRequestFailed, env.Message)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("%w: geliver data: %v", integration.ErrPlatformInvalidResponse, err)
	}
	return nil
}

// ShipmentCost implements integration.ShippingAggregator
func (c *GeliverClient) ShipmentCost(ctx context.Context, shipmentID string) (*integration.ShipmentCost, error) {
	token, base, err := c.credentials(ctx)
	if err != nil {
		return nil, err
	}
	s, err := c.getShipment(ctx, token, base, shipmentID)
	if err != nil {
		return nil, err
	}
	return shipmentCost(s), nil
}

// CreateReturnLabel implements integration.ShippingAggregator. A return shipment
// is created from the original outbound shipment and its label downloaded.
func (c *GeliverClient) CreateReturnLabel(ctx context.Context, req integration.ReturnLabelRequest) (*integration.ReturnLabel, error) {
	if strings.TrimSpace(req.OriginalShipID) == "" {
		return nil, fmt.Errorf("%w: geliver return label needs the original shipment id", integration.ErrPlatformRequestFailed)
	}
	token, base, err := c.credentials(ctx)
	if err != nil {
		return nil, err
	}

	body := geliverReturnRequest{
		WillAccept:  true,
		Count:       1,
		SenderName:  req.SenderName,
		SenderPhone: req.SenderPhone,
		Reference:   req.ReturnID,
	}
	if req.Desi.IsPositive() {
		body.Desi = req.Desi.String()
	}
	resp, err := c.api.Do(ctx, channelapi.Request{
		Method:  http.MethodPost,
		URL:     base + "/shipments/" + url.PathEscape(req.OriginalShipID) + "/return",
		Headers: geliverHeaders(token),
		Body:    body,
	})
	if err != nil {
		return nil, err
	}
	var s geliverShipment
	if err := unwrap(resp.Body, &s); err != nil {
		return nil, err
	}

	label := &integration.ReturnLabel{
		ShipmentID:     s.ID,
		Carrier:        CarrierName(s.ProviderCode),
		TrackingNumber: s.trackingNumber(),
	}
	if label.Carrier == "" {
		label.Carrier = req.Carrier
	}
	if s.LabelURL == "" {
		c.logger.Warn("Return shipment has no label document",
			zap.String("shipment_id", s.ID),
			zap.String("return_id", req.ReturnID),
		)
		return label, nil
	}

	headers := geliverHeaders(token)
	headers.Set("Accept", "application/pdf")
	doc, err := c.api.Do(ctx, channelapi.Request{Method: http.MethodGet, URL: s.LabelURL, Headers: headers})
	if err != nil {
		return nil, fmt.Errorf("download return label: %w", err)
	}
	label.Data = doc.Body
	label.ContentType = doc.Headers.Get("Content-Type")
	if label.ContentType == "" {
		label.ContentType = "application/pdf"
	}
	label.FileName = labelFileName(s.LabelURL, s.ID)
	return label, nil
}

func labelFileName(labelURL, shipmentID string) string {
	if u, err := url.Parse(labelURL); err == nil {
		if name := path.Base(u.Path); name != "" && name != "." && name != "/" && strings.Contains(name, ".") {
			return name
		}
	}
	return shipmentID + ".pdf"
}

var (
	_ ingest.Provider                = (*GeliverClient)(nil)
	_ integration.ShippingAggregator = (*GeliverClient)(nil)
)
