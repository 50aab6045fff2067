package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/omnisync/backend/internal/domain/integration"
	"github.com/omnisync/backend/internal/infrastructure/persistence/models"
)

// GormIntegrationRepository implements IntegrationRepository using GORM
type GormIntegrationRepository struct {
	db *gorm.DB
}

// NewGormIntegrationRepository creates a new GormIntegrationRepository
func NewGormIntegrationRepository(db *gorm.DB) *GormIntegrationRepository {
	return &GormIntegrationRepository{db: db}
}

// FindByID finds an integration by its ID
func (r *GormIntegrationRepository) FindByID(ctx context.Context, id uuid.UUID) (*integration.Integration, error) {
	var model models.IntegrationModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrIntegrationNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindActiveByProvider lists the active integrations of one provider, oldest first
func (r *GormIntegrationRepository) FindActiveByProvider(ctx context.Context, provider integration.PlatformCode) ([]*integration.Integration, error) {
	var rows []models.IntegrationModel
	if err := r.db.WithContext(ctx).
		Where("provider = ? AND active = ?", provider, true).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return integrationsToDomain(rows), nil
}

// ListActive lists every active integration
func (r *GormIntegrationRepository) ListActive(ctx context.Context) ([]*integration.Integration, error) {
	var rows []models.IntegrationModel
	if err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("provider ASC, created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return integrationsToDomain(rows), nil
}

// Save creates or updates an integration
func (r *GormIntegrationRepository) Save(ctx context.Context, i *integration.Integration) error {
	return r.db.WithContext(ctx).Save(models.IntegrationModelFromDomain(i)).Error
}

func integrationsToDomain(rows []models.IntegrationModel) []*integration.Integration {
	out := make([]*integration.Integration, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out
}

// GormMappingRepository implements MappingRepository using GORM.
// Both unique indexes of platform_mappings are enforced by the database;
// violations are reported as ErrMappingConflict.
type GormMappingRepository struct {
	db *gorm.DB
}

// NewGormMappingRepository creates a new GormMappingRepository
func NewGormMappingRepository(db *gorm.DB) *GormMappingRepository {
	return &GormMappingRepository{db: db}
}

// FindByKey looks a mapping up by its external side
func (r *GormMappingRepository) FindByKey(ctx context.Context, key integration.MappingKey) (*integration.PlatformMapping, error) {
	var model models.PlatformMappingModel
	if err := r.db.WithContext(ctx).
		Where("platform = ? AND entity_type = ? AND platform_id = ?", key.Platform, key.EntityType, key.PlatformID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrMappingNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByEntity looks a mapping up by its local side
func (r *GormMappingRepository) FindByEntity(ctx context.Context, platform integration.PlatformCode, entityType integration.EntityType, entityID uuid.UUID) (*integration.PlatformMapping, error) {
	var model models.PlatformMappingModel
	if err := r.db.WithContext(ctx).
		Where("platform = ? AND entity_type = ? AND entity_id = ?", platform, entityType, entityID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrMappingNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Create inserts a new mapping
func (r *GormMappingRepository) Create(ctx context.Context, m *integration.PlatformMapping) error {
	if err := r.db.WithContext(ctx).Create(models.PlatformMappingModelFromDomain(m)).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s %s %s", integration.ErrMappingConflict, m.Platform, m.EntityType, m.PlatformID)
		}
		return err
	}
	return nil
}

// Update updates payload, timestamps and target of an existing mapping
func (r *GormMappingRepository) Update(ctx context.Context, m *integration.PlatformMapping) error {
	result := r.db.WithContext(ctx).
		Model(&models.PlatformMappingModel{}).
		Where("id = ?", m.ID).
		Updates(map[string]interface{}{
			"entity_id":      m.EntityID,
			"payload":        datatypes.JSON(m.Payload),
			"last_synced_at": m.LastSyncedAt,
			"updated_at":     m.UpdatedAt,
		})
	if result.Error != nil {
		if isUniqueViolation(result.Error) {
			return fmt.Errorf("%w: %s %s %s", integration.ErrMappingConflict, m.Platform, m.EntityType, m.PlatformID)
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return integration.ErrMappingNotFound
	}
	return nil
}

// Delete removes a mapping by ID
func (r *GormMappingRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.PlatformMappingModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return integration.ErrMappingNotFound
	}
	return nil
}

// GormWebhookReceiptRepository implements WebhookReceiptRepository using GORM
type GormWebhookReceiptRepository struct {
	db *gorm.DB
}

// NewGormWebhookReceiptRepository creates a new GormWebhookReceiptRepository
func NewGormWebhookReceiptRepository(db *gorm.DB) *GormWebhookReceiptRepository {
	return &GormWebhookReceiptRepository{db: db}
}

// Save creates or updates a receipt
func (r *GormWebhookReceiptRepository) Save(ctx context.Context, receipt *integration.WebhookReceipt) error {
	return r.db.WithContext(ctx).Save(models.WebhookReceiptModelFromDomain(receipt)).Error
}

// DeleteOlderThan deletes receipts received before the cutoff
func (r *GormWebhookReceiptRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("received_at < ?", before).
		Delete(&models.WebhookReceiptModel{})
	return result.RowsAffected, result.Error
}

// Ensure the repositories implement their domain interfaces
var (
	_ integration.IntegrationRepository    = (*GormIntegrationRepository)(nil)
	_ integration.MappingRepository        = (*GormMappingRepository)(nil)
	_ integration.WebhookReceiptRepository = (*GormWebhookReceiptRepository)(nil)
)
