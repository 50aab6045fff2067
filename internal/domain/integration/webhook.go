package integration

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Topic is the normalized routing key of an inbound event
type Topic string

const (
	TopicOrder         Topic = "order"
	TopicRefund        Topic = "refund"
	TopicReturnRequest Topic = "return_request"
	TopicProduct       Topic = "product"
	TopicClaim         Topic = "claim"
	TopicShipment      Topic = "shipment"
)

// WebhookReceipt records one inbound delivery exactly as received
type WebhookReceipt struct {
	ID             uuid.UUID
	IntegrationID  uuid.UUID
	Provider       PlatformCode
	DeliveryID     string
	Topic          string
	Payload        json.RawMessage
	SignatureValid bool
	JobID          *uuid.UUID
	ReceivedAt     time.Time
}

// NewWebhookReceipt creates a receipt for an accepted delivery
func NewWebhookReceipt(integrationID uuid.UUID, provider PlatformCode, deliveryID, topic string, payload json.RawMessage, signatureValid bool, now time.Time) *WebhookReceipt {
	return &WebhookReceipt{
		ID:             uuid.New(),
		IntegrationID:  integrationID,
		Provider:       provider,
		DeliveryID:     deliveryID,
		Topic:          topic,
		Payload:        payload,
		SignatureValid: signatureValid,
		ReceivedAt:     now,
	}
}

// WebhookReceiptRepository defines the interface for receipt persistence
type WebhookReceiptRepository interface {
	Save(ctx context.Context, r *WebhookReceipt) error
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}
