package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/omnisync/backend/internal/domain/integration"
	"github.com/omnisync/backend/internal/domain/shared"
)

// Provider describes the webhook conventions of one platform
type Provider interface {
	Platform() integration.PlatformCode
	// VerifyWebhook authenticates a raw delivery body against the integration's secret
	VerifyWebhook(integ *integration.Integration, body []byte, signature string) bool
	// RouteTopic maps the provider's topic onto the internal one
	RouteTopic(topic string) (integration.Topic, bool)
	// ExternalID extracts the id of the entity a delivery is about, or ""
	ExternalID(topic integration.Topic, body []byte) string
}

// Delivery is one inbound webhook call
type Delivery struct {
	Provider integration.PlatformCode
	// IntegrationID is set when the caller addressed an integration explicitly
	IntegrationID *uuid.UUID
	ShopDomain    string
	SupplierID    string
	DeliveryID    string
	Topic         string
	Signature     string
	Body          []byte
}

// Outcome of an accepted delivery
type Outcome string

const (
	OutcomeEnqueued  Outcome = "enqueued"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
)

// Acceptance is returned for every delivery that should be acknowledged
type Acceptance struct {
	Outcome   Outcome
	ReceiptID uuid.UUID
	JobID     *uuid.UUID
}

// Config configures the ingestion service
type Config struct {
	Integrations integration.IntegrationRepository
	Receipts     integration.WebhookReceiptRepository
	Jobs         integration.JobRepository
	Idempotency  shared.IdempotencyStore
	Dedupe       shared.IdempotencyConfig
	Providers    []Provider
	Clock        shared.Clock
	Logger       *zap.Logger
}

// Service is the ingestion shell: it authenticates deliveries, stores the raw
// payload and enqueues a job. It never reconciles inline.
type Service struct {
	integrations integration.IntegrationRepository
	receipts     integration.WebhookReceiptRepository
	jobs         integration.JobRepository
	idempotency  shared.IdempotencyStore
	dedupe       shared.IdempotencyConfig
	providers    map[integration.PlatformCode]Provider
	clock        shared.Clock
	logger       *zap.Logger
}

// NewService creates a new ingestion Service
func NewService(cfg Config) *Service {
	providers := make(map[integration.PlatformCode]Provider, len(cfg.Providers))
	for _, p := range cfg.Providers {
		providers[p.Platform()] = p
	}
	clock := cfg.Clock
	if clock == nil {
		clock = shared.SystemClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dedupe := cfg.Dedupe
	if dedupe.TTL <= 0 {
		dedupe = shared.DefaultIdempotencyConfig()
	}
	return &Service{
		integrations: cfg.Integrations,
		receipts:     cfg.Receipts,
		jobs:         cfg.Jobs,
		idempotency:  cfg.Idempotency,
		dedupe:       dedupe,
		providers:    providers,
		clock:        clock,
		logger:       logger,
	}
}

// Accept authenticates a delivery and enqueues it for reconciliation.
// Duplicates and unsupported topics are acknowledged without a job.
func (s *Service) Accept(ctx context.Context, d Delivery) (*Acceptance, error) {
	provider, ok := s.providers[d.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", integration.ErrInvalidPlatformCode, d.Provider)
	}
	if len(d.Body) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrInvalidDelivery)
	}

	integ, err := s.resolveIntegration(ctx, d)
	if err != nil {
		s.logger.Warn("Webhook integration not resolved",
			zap.String("provider", string(d.Provider)),
			zap.String("shop_domain", d.ShopDomain),
			zap.String("supplier_id", d.SupplierID),
			zap.Error(err),
		)
		return nil, err
	}

	now := s.clock.Now()
	deliveryID := d.DeliveryID
	if deliveryID == "" {
		sum := sha256.Sum256(d.Body)
		deliveryID = "sha256:" + hex.EncodeToString(sum[:])
	}

	if !provider.VerifyWebhook(integ, d.Body, d.Signature) {
		receipt := integration.NewWebhookReceipt(integ.ID, d.Provider, deliveryID, d.Topic, d.Body, false, now)
		if err := s.receipts.Save(ctx, receipt); err != nil {
			s.logger.Error("Failed to store rejected webhook receipt", zap.Error(err))
		}
		s.logger.Warn("Webhook signature rejected",
			zap.String("provider", string(d.Provider)),
			zap.String("integration_id", integ.ID.String()),
			zap.String("delivery_id", deliveryID),
		)
		return nil, integration.ErrInvalidSignature
	}

	dedupeKey := fmt.Sprintf("webhook:%s:%s:%s", d.Provider, integ.ID, deliveryID)
	if s.dedupeEnabled() {
		seen, err := s.idempotency.IsProcessed(ctx, dedupeKey)
		if err != nil {
			// The store is an optimization; reconciliation is idempotent anyway
			s.logger.Warn("Idempotency lookup failed", zap.String("key", dedupeKey), zap.Error(err))
		} else if seen {
			s.logger.Info("Duplicate webhook delivery acknowledged",
				zap.String("provider", string(d.Provider)),
				zap.String("delivery_id", deliveryID),
			)
			return &Acceptance{Outcome: OutcomeDuplicate}, nil
		}
	}

	receipt := integration.NewWebhookReceipt(integ.ID, d.Provider, deliveryID, d.Topic, d.Body, true, now)
	result := &Acceptance{Outcome: OutcomeIgnored, ReceiptID: receipt.ID}

	topic, routed := provider.RouteTopic(d.Topic)
	kind, known := integration.JobKindForTopic(topic)
	if routed && known {
		job := integration.NewReconcileJob(kind, integ.ID, provider.ExternalID(topic, d.Body), d.Body, now)
		if err := s.jobs.Save(ctx, job); err != nil {
			return nil, fmt.Errorf("enqueue webhook job: %w", err)
		}
		receipt.JobID = &job.ID
		result.Outcome = OutcomeEnqueued
		result.JobID = &job.ID
	} else {
		s.logger.Info("Webhook topic not handled",
			zap.String("provider", string(d.Provider)),
			zap.String("topic", d.Topic),
		)
	}

	if err := s.receipts.Save(ctx, receipt); err != nil {
		s.logger.Error("Failed to store webhook receipt",
			zap.String("delivery_id", deliveryID),
			zap.Error(err),
		)
	}
	if s.dedupeEnabled() {
		if _, err := s.idempotency.MarkProcessed(ctx, dedupeKey, s.dedupe.TTL); err != nil {
			s.logger.Warn("Failed to mark webhook delivery", zap.String("key", dedupeKey), zap.Error(err))
		}
	}

	s.logger.Info("Webhook accepted",
		zap.String("provider", string(d.Provider)),
		zap.String("integration_id", integ.ID.String()),
		zap.String("topic", d.Topic),
		zap.String("outcome", string(result.Outcome)),
	)
	return result, nil
}

func (s *Service) dedupeEnabled() bool {
	return s.dedupe.Enabled && s.idempotency != nil
}

// resolveIntegration finds the integration a delivery belongs to: explicit id,
// then shop domain or supplier id, then the only active integration of the provider
func (s *Service) resolveIntegration(ctx context.Context, d Delivery) (*integration.Integration, error) {
	if d.IntegrationID != nil {
		integ, err := s.integrations.FindByID(ctx, *d.IntegrationID)
		if err != nil {
			return nil, err
		}
		if integ.Provider != d.Provider {
			return nil, integration.ErrIntegrationNotFound
		}
		if !integ.Active {
			return nil, integration.ErrIntegrationInactive
		}
		return integ, nil
	}

	candidates, err := s.integrations.FindActiveByProvider(ctx, d.Provider)
	if err != nil {
		return nil, err
	}
	shop := strings.TrimSpace(d.ShopDomain)
	supplier := strings.TrimSpace(d.SupplierID)
	if shop != "" || supplier != "" {
		var matched []*integration.Integration
		for _, c := range candidates {
			if c.Matches(shop, supplier) {
				matched = append(matched, c)
			}
		}
		return single(matched)
	}
	return single(candidates)
}

func single(list []*integration.Integration) (*integration.Integration, error) {
	switch len(list) {
	case 0:
		return nil, integration.ErrIntegrationNotFound
	case 1:
		return list[0], nil
	default:
		return nil, integration.ErrIntegrationAmbiguous
	}
}

// ErrInvalidDelivery is returned for deliveries that cannot be stored
var ErrInvalidDelivery = errors.New("ingest: invalid delivery")
