package shipping

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Wire types for the Geliver shipping aggregator API. Every API reply is
// wrapped in {"result": bool, "message": string, "data": ...}.

type geliverEnvelope struct {
	Result  bool            `json:"result"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// geliverWebhook is the body Geliver posts on tracking updates
type geliverWebhook struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type geliverShipment struct {
	ID                  string               `json:"id"`
	Order               *geliverOrderRef     `json:"order"`
	Barcode             string               `json:"barcode"`
	TrackingNumber      string               `json:"trackingNumber"`
	ProviderCode        string               `json:"providerCode"`
	ProviderServiceCode string               `json:"providerServiceCode"`
	IsReturn            bool                 `json:"isReturn"`
	Desi                amount               `json:"desi"`
	Currency            string               `json:"currency"`
	AcceptedOffer       *geliverOffer        `json:"acceptedOffer"`
	ReturnOffer         *geliverOffer        `json:"returnAcceptedOffer"`
	TotalAmount         *amount              `json:"totalAmount"`
	TrackingStatus      *geliverTrackingInfo `json:"trackingStatus"`
	LabelURL            string               `json:"labelURL"`
}

type geliverOrderRef struct {
	OrderNumber      string `json:"orderNumber"`
	SourceIdentifier string `json:"sourceIdentifier"`
}

// geliverOffer is a carrier price quote; amount excludes VAT
type geliverOffer struct {
	ID           string `json:"id"`
	Amount       amount `json:"amount"`
	AmountVat    amount `json:"amountVat"`
	TotalAmount  amount `json:"totalAmount"`
	Currency     string `json:"currency"`
	ProviderCode string `json:"providerCode"`
}

type geliverTrackingInfo struct {
	TrackingStatusCode    string `json:"trackingStatusCode"`
	TrackingSubStatusCode string `json:"trackingSubStatusCode"`
	StatusDetails         string `json:"statusDetails"`
}

// trackingNumber prefers the carrier tracking number over the Geliver barcode
func (s *geliverShipment) trackingNumber() string {
	if s.TrackingNumber != "" {
		return s.TrackingNumber
	}
	return s.Barcode
}

func (s *geliverShipment) orderReference() string {
	if s.Order == nil {
		return ""
	}
	if s.Order.OrderNumber != "" {
		return s.Order.OrderNumber
	}
	return s.Order.SourceIdentifier
}

// amount decodes Geliver's string or number decimals; null and "" are zero
type amount struct {
	decimal.Decimal
}

func (a *amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) || bytes.Equal(data, []byte(`""`)) {
		a.Decimal = decimal.Zero
		return nil
	}
	return a.Decimal.UnmarshalJSON(data)
}

// geliverReturnRequest creates a return shipment from an outbound one
type geliverReturnRequest struct {
	WillAccept          bool   `json:"willAccept"`
	ProviderServiceCode string `json:"providerServiceCode,omitempty"`
	Count               int    `json:"count"`
	SenderName          string `json:"senderName,omitempty"`
	SenderPhone         string `json:"senderPhone,omitempty"`
	Reference           string `json:"reference,omitempty"`
	Desi                string `json:"desi,omitempty"`
}
