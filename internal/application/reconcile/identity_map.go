package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/omnisync/backend/internal/domain/integration"
	"github.com/omnisync/backend/internal/domain/shared"
)

// Audit actions written by the identity map
const (
	AuditMappingRepointed = "identity_map.repointed"
	AuditMappingEvicted   = "identity_map.evicted"
	AuditMappingUnbound   = "identity_map.unbound"
)

const auditSubjectMapping = "platform_mapping"

// IdentityMap is the platform identity map over one transaction's mapping repository.
// Both sides of a mapping are unique per (platform, entity_type); Repoint is the
// only sanctioned way to change the entity side.
type IdentityMap struct {
	repo   integration.MappingRepository
	audit  shared.AuditSink
	clock  shared.Clock
	logger *zap.Logger
}

// NewIdentityMap creates an identity map bound to repo
func NewIdentityMap(repo integration.MappingRepository, audit shared.AuditSink, clock shared.Clock, logger *zap.Logger) *IdentityMap {
	if audit == nil {
		audit = shared.NopAuditSink{}
	}
	return &IdentityMap{repo: repo, audit: audit, clock: clock, logger: logger}
}

// Resolve looks a mapping up by its external key. Returns
// integration.ErrMappingNotFound when absent.
func (m *IdentityMap) Resolve(ctx context.Context, key integration.MappingKey) (*integration.PlatformMapping, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	return m.repo.FindByKey(ctx, key)
}

// Owned returns the mapping an entity owns on a platform, if any
func (m *IdentityMap) Owned(ctx context.Context, platform integration.PlatformCode, entityType integration.EntityType, entityID uuid.UUID) (*integration.PlatformMapping, error) {
	return m.repo.FindByEntity(ctx, platform, entityType, entityID)
}

// Bind creates or refreshes the mapping key -> entityID. When the external id
// already points at another entity the mapping is re-pointed. When the entity
// is already mapped under a different external id, ErrMappingConflict is returned
// and the caller must resolve it first.
func (m *IdentityMap) Bind(ctx context.Context, key integration.MappingKey, entityID uuid.UUID, payload json.RawMessage) (*integration.PlatformMapping, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	now := m.clock.Now()

	existing, err := m.repo.FindByKey(ctx, key)
	switch {
	case err == nil && existing.EntityID == entityID:
		existing.Refresh(payload, now)
		if err := m.repo.Update(ctx, existing); err != nil {
			return nil, err
		}
		return existing, nil
	case err == nil:
		return m.Repoint(ctx, key, entityID, payload, "rebind")
	case !errors.Is(err, integration.ErrMappingNotFound):
		return nil, err
	}

	owned, err := m.repo.FindByEntity(ctx, key.Platform, key.EntityType, entityID)
	if err == nil {
		return nil, fmt.Errorf("%w: %s %s already mapped to %q, cannot bind %q",
			integration.ErrMappingConflict, key.EntityType, entityID, owned.PlatformID, key.PlatformID)
	}
	if !errors.Is(err, integration.ErrMappingNotFound) {
		return nil, err
	}

	mapping, err := integration.NewPlatformMapping(key, entityID, payload, now)
	if err != nil {
		return nil, err
	}
	if err := m.repo.Create(ctx, mapping); err != nil {
		return nil, err
	}
	return mapping, nil
}

// BindOwned binds key -> entityID after evicting any stale mapping the entity
// holds under a different external id. Used for child records (lines, variants,
// refunds) whose channel ids may legitimately change.
func (m *IdentityMap) BindOwned(ctx context.Context, key integration.MappingKey, entityID uuid.UUID, payload json.RawMessage) (*integration.PlatformMapping, error) {
	owned, err := m.repo.FindByEntity(ctx, key.Platform, key.EntityType, entityID)
	switch {
	case err == nil && owned.PlatformID != key.PlatformID:
		if err := m.evict(ctx, owned, AuditMappingEvicted, "external id changed"); err != nil {
			return nil, err
		}
	case err != nil && !errors.Is(err, integration.ErrMappingNotFound):
		return nil, err
	}
	return m.Bind(ctx, key, entityID, payload)
}

// Repoint moves the external id key to newEntityID. It runs as two phases inside
// the caller's transaction: evict the mapping at key and any mapping newEntityID
// owns on the platform, then install the new mapping. Each step is audited.
func (m *IdentityMap) Repoint(ctx context.Context, key integration.MappingKey, newEntityID uuid.UUID, payload json.RawMessage, reason string) (*integration.PlatformMapping, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if newEntityID == uuid.Nil {
		return nil, integration.ErrMappingInvalidEntityID
	}

	var previous uuid.UUID
	current, err := m.repo.FindByKey(ctx, key)
	switch {
	case err == nil:
		if current.EntityID == newEntityID {
			current.Refresh(payload, m.clock.Now())
			return current, m.repo.Update(ctx, current)
		}
		previous = current.EntityID
		if err := m.repo.Delete(ctx, current.ID); err != nil {
			return nil, err
		}
	case !errors.Is(err, integration.ErrMappingNotFound):
		return nil, err
	}

	stale, err := m.repo.FindByEntity(ctx, key.Platform, key.EntityType, newEntityID)
	switch {
	case err == nil:
		if err := m.evict(ctx, stale, AuditMappingEvicted, reason); err != nil {
			return nil, err
		}
	case !errors.Is(err, integration.ErrMappingNotFound):
		return nil, err
	}

	mapping, err := integration.NewPlatformMapping(key, newEntityID, payload, m.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := m.repo.Create(ctx, mapping); err != nil {
		return nil, err
	}

	m.logger.Info("Identity mapping re-pointed",
		zap.String("platform", string(key.Platform)),
		zap.String("entity_type", string(key.EntityType)),
		zap.String("platform_id", key.PlatformID),
		zap.String("from_entity_id", previous.String()),
		zap.String("to_entity_id", newEntityID.String()),
		zap.String("reason", reason),
	)
	m.record(ctx, mapping.ID, AuditMappingRepointed, map[string]any{
		"platform":       key.Platform,
		"entity_type":    key.EntityType,
		"platform_id":    key.PlatformID,
		"from_entity_id": previous,
		"to_entity_id":   newEntityID,
		"reason":         reason,
	})
	return mapping, nil
}

// EvictEntity removes the mapping an entity owns on a platform, if any
func (m *IdentityMap) EvictEntity(ctx context.Context, platform integration.PlatformCode, entityType integration.EntityType, entityID uuid.UUID) error {
	return m.removeOwned(ctx, platform, entityType, entityID, AuditMappingEvicted, "evicted")
}

// Unbind removes an orphaned mapping whose target entity no longer exists
func (m *IdentityMap) Unbind(ctx context.Context, platform integration.PlatformCode, entityType integration.EntityType, entityID uuid.UUID) error {
	return m.removeOwned(ctx, platform, entityType, entityID, AuditMappingUnbound, "orphan")
}

func (m *IdentityMap) removeOwned(ctx context.Context, platform integration.PlatformCode, entityType integration.EntityType, entityID uuid.UUID, action, reason string) error {
	owned, err := m.repo.FindByEntity(ctx, platform, entityType, entityID)
	if errors.Is(err, integration.ErrMappingNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return m.evict(ctx, owned, action, reason)
}

func (m *IdentityMap) evict(ctx context.Context, mapping *integration.PlatformMapping, action, reason string) error {
	if err := m.repo.Delete(ctx, mapping.ID); err != nil {
		return err
	}
	m.logger.Info("Identity mapping removed",
		zap.String("action", action),
		zap.String("platform", string(mapping.Platform)),
		zap.String("entity_type", string(mapping.EntityType)),
		zap.String("platform_id", mapping.PlatformID),
		zap.String("entity_id", mapping.EntityID.String()),
		zap.String("reason", reason),
	)
	m.record(ctx, mapping.ID, action, map[string]any{
		"platform":    mapping.Platform,
		"entity_type": mapping.EntityType,
		"platform_id": mapping.PlatformID,
		"entity_id":   mapping.EntityID,
		"reason":      reason,
	})
	return nil
}

func (m *IdentityMap) record(ctx context.Context, id uuid.UUID, action string, props map[string]any) {
	entry := shared.AuditEntry{
		Subject:    shared.AuditSubject{Type: auditSubjectMapping, ID: id},
		Action:     action,
		Actor:      shared.SystemActor,
		Properties: props,
		OccurredAt: m.clock.Now(),
	}
	if err := m.audit.Record(ctx, entry); err != nil {
		m.logger.Warn("Failed to record audit entry", zap.String("action", action), zap.Error(err))
	}
}
