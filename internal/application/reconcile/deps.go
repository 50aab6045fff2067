package reconcile

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/omnisync/backend/internal/domain/shared"
)

// Deps are the collaborators shared by every reconciler. Nothing is reached
// for globally: clock, audit sink and publisher are always injected.
type Deps struct {
	Tx       TransactionScope
	Clock    shared.Clock
	Audit    shared.AuditSink
	Events   shared.EventPublisher
	Currency *CurrencyResolver
	Shipping *ShippingCostCalculator
	Logger   *zap.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Clock == nil {
		d.Clock = shared.SystemClock{}
	}
	if d.Audit == nil {
		d.Audit = shared.NopAuditSink{}
	}
	if d.Events == nil {
		d.Events = shared.NopEventPublisher{}
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Currency == nil {
		d.Currency = NewCurrencyResolver(nil, "", d.Logger)
	}
	if d.Shipping == nil {
		d.Shipping = NewShippingCostCalculator(nil, nil, d.Logger)
	}
	return d
}

func (d Deps) identityMap(repos Repositories) *IdentityMap {
	return NewIdentityMap(repos.Mappings(), d.Audit, d.Clock, d.Logger)
}

func (d Deps) record(ctx context.Context, subjectType string, id uuid.UUID, action string, props map[string]any) {
	entry := shared.AuditEntry{
		Subject:    shared.AuditSubject{Type: subjectType, ID: id},
		Action:     action,
		Actor:      shared.SystemActor,
		Properties: props,
		OccurredAt: d.Clock.Now(),
	}
	if err := d.Audit.Record(ctx, entry); err != nil {
		d.Logger.Warn("Failed to record audit entry", zap.String("action", action), zap.Error(err))
	}
}

func (d Deps) publish(ctx context.Context, events []shared.DomainEvent) {
	if len(events) == 0 {
		return
	}
	if err := d.Events.Publish(ctx, events...); err != nil {
		d.Logger.Warn("Failed to publish domain events", zap.Int("count", len(events)), zap.Error(err))
	}
}
