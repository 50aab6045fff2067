package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/omnisync/backend/internal/application/ingest"
	"github.com/omnisync/backend/internal/domain/integration"
	"github.com/omnisync/backend/internal/interfaces/http/dto"
)

// Webhook headers per platform
const (
	HeaderShopifyHmac      = "X-Shopify-Hmac-Sha256"
	HeaderShopifyShop      = "X-Shopify-Shop-Domain"
	HeaderShopifyTopic     = "X-Shopify-Topic"
	HeaderShopifyWebhookID = "X-Shopify-Webhook-Id"

	HeaderTrendyolAPIKey     = "X-Api-Key"
	HeaderTrendyolSupplierID = "X-Supplier-Id"
	HeaderTrendyolEventID    = "X-Event-Id"

	HeaderGeliverToken   = "X-Geliver-Token"
	HeaderGeliverEvent   = "X-Geliver-Event"
	HeaderGeliverEventID = "X-Geliver-Event-Id"
)

// WebhookAcceptor is the ingestion shell behind the webhook endpoints
type WebhookAcceptor interface {
	Accept(ctx context.Context, d ingest.Delivery) (*ingest.Acceptance, error)
}

// WebhookHandler receives channel and carrier webhooks. It only authenticates,
// stores and enqueues; reconciliation happens in the job workers.
type WebhookHandler struct {
	BaseHandler
	ingest WebhookAcceptor
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(ingest WebhookAcceptor) *WebhookHandler {
	return &WebhookHandler{ingest: ingest}
}

// WebhookAckResponse acknowledges an accepted delivery
type WebhookAckResponse struct {
	Outcome   string     `json:"outcome"`
	ReceiptID *uuid.UUID `json:"receipt_id,omitempty"`
	JobID     *uuid.UUID `json:"job_id,omitempty"`
}

// Shopify handles POST /webhooks/shopify
func (h *WebhookHandler) Shopify(c *gin.Context) {
	h.accept(c, ingest.Delivery{
		Provider:   integration.PlatformShopify,
		ShopDomain: c.GetHeader(HeaderShopifyShop),
		DeliveryID: c.GetHeader(HeaderShopifyWebhookID),
		Topic:      c.GetHeader(HeaderShopifyTopic),
		Signature:  c.GetHeader(HeaderShopifyHmac),
	})
}

// Trendyol handles POST /webhooks/trendyol. The topic comes from ?topic= and
// defaults to a package update.
func (h *WebhookHandler) Trendyol(c *gin.Context) {
	signature := c.GetHeader(HeaderTrendyolAPIKey)
	if signature == "" {
		signature = c.GetHeader("Authorization")
	}
	h.accept(c, ingest.Delivery{
		Provider:   integration.PlatformTrendyol,
		SupplierID: firstNonEmpty(c.GetHeader(HeaderTrendyolSupplierID), c.Query("supplier_id")),
		DeliveryID: c.GetHeader(HeaderTrendyolEventID),
		Topic:      c.Query("topic"),
		Signature:  signature,
	})
}

// Geliver handles POST /webhooks/geliver
func (h *WebhookHandler) Geliver(c *gin.Context) {
	signature := c.GetHeader(HeaderGeliverToken)
	if signature == "" {
		signature = c.GetHeader("Authorization")
	}
	h.accept(c, ingest.Delivery{
		Provider:   integration.PlatformGeliver,
		DeliveryID: c.GetHeader(HeaderGeliverEventID),
		Topic:      firstNonEmpty(c.GetHeader(HeaderGeliverEvent), c.Query("topic")),
		Signature:  signature,
	})
}

func (h *WebhookHandler) accept(c *gin.Context, d ingest.Delivery) {
	if raw := c.Query("integration_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.BadRequest(c, "Invalid integration_id")
			return
		}
		d.IntegrationID = &id
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodeRequestTooLarge, "Request body exceeds maximum allowed size")
			return
		}
		h.BadRequest(c, "Failed to read request body")
		return
	}
	d.Body = body

	result, err := h.ingest.Accept(c.Request.Context(), d)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	resp := WebhookAckResponse{Outcome: string(result.Outcome), JobID: result.JobID}
	if result.ReceiptID != uuid.Nil {
		id := result.ReceiptID
		resp.ReceiptID = &id
	}
	h.Success(c, resp)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
