package integration

import (
	"context"

	"github.com/google/uuid"
)

// IntegrationRepository defines the interface for integration persistence
type IntegrationRepository interface {
	// FindByID finds an integration by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Integration, error)
	// FindActiveByProvider lists active integrations of one provider
	FindActiveByProvider(ctx context.Context, provider PlatformCode) ([]*Integration, error)
	// ListActive lists every active integration
	ListActive(ctx context.Context) ([]*Integration, error)
	// Save creates or updates an integration
	Save(ctx context.Context, i *Integration) error
}

// MappingRepository defines the interface for identity map persistence.
// Uniqueness violations surface as ErrMappingConflict.
type MappingRepository interface {
	// FindByKey looks up by (platform, entity_type, platform_id)
	FindByKey(ctx context.Context, key MappingKey) (*PlatformMapping, error)
	// FindByEntity looks up by (platform, entity_type, entity_id)
	FindByEntity(ctx context.Context, platform PlatformCode, entityType EntityType, entityID uuid.UUID) (*PlatformMapping, error)
	// Create inserts a new mapping
	Create(ctx context.Context, m *PlatformMapping) error
	// Update updates payload, timestamp and target of an existing mapping
	Update(ctx context.Context, m *PlatformMapping) error
	// Delete removes a mapping by ID
	Delete(ctx context.Context, id uuid.UUID) error
}
