package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/omnisync/backend/internal/domain/returns"
	"github.com/omnisync/backend/internal/domain/shared"
	"github.com/omnisync/backend/internal/infrastructure/persistence/models"
)

// GormOrderReturnRepository implements returns.Repository using GORM
type GormOrderReturnRepository struct {
	db *gorm.DB
}

// NewGormOrderReturnRepository creates a new GormOrderReturnRepository
func NewGormOrderReturnRepository(db *gorm.DB) *GormOrderReturnRepository {
	return &GormOrderReturnRepository{db: db}
}

func (r *GormOrderReturnRepository) withChildren(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		Preload("Refunds", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		Preload("History", func(db *gorm.DB) *gorm.DB {
			return db.Order("changed_at ASC, id ASC")
		})
}

// FindByID finds a return with items, refunds and history loaded
func (r *GormOrderReturnRepository) FindByID(ctx context.Context, id uuid.UUID) (*returns.OrderReturn, error) {
	return r.findOne(ctx, "id = ?", id)
}

// FindByOrder finds every return of an order, oldest first
func (r *GormOrderReturnRepository) FindByOrder(ctx context.Context, orderID uuid.UUID) ([]*returns.OrderReturn, error) {
	var rows []models.OrderReturnModel
	if err := r.withChildren(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*returns.OrderReturn, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

// CountByOrder counts the returns of an order
func (r *GormOrderReturnRepository) CountByOrder(ctx context.Context, orderID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.OrderReturnModel{}).
		Where("order_id = ?", orderID).
		Count(&count).Error
	return count, err
}

// FindByRefundID finds the return owning a refund row
func (r *GormOrderReturnRepository) FindByRefundID(ctx context.Context, refundID uuid.UUID) (*returns.OrderReturn, error) {
	owner := r.db.WithContext(ctx).
		Model(&models.ReturnRefundModel{}).
		Select("return_id").
		Where("id = ?", refundID)
	return r.findOne(ctx, "id IN (?)", owner)
}

// FindByShipment finds the return shipped back under an aggregator shipment id,
// falling back to the tracking number
func (r *GormOrderReturnRepository) FindByShipment(ctx context.Context, aggregatorShipmentID, trackingNumber string) (*returns.OrderReturn, error) {
	if id := strings.TrimSpace(aggregatorShipmentID); id != "" {
		ret, err := r.findOne(ctx, "shipping_aggregator_shipment_id = ?", id)
		if err == nil || !errors.Is(err, shared.ErrNotFound) {
			return ret, err
		}
	}
	if tn := strings.TrimSpace(trackingNumber); tn != "" {
		return r.findOne(ctx, "shipping_tracking_number = ?", tn)
	}
	return nil, shared.ErrNotFound
}

func (r *GormOrderReturnRepository) findOne(ctx context.Context, query string, arg interface{}) (*returns.OrderReturn, error) {
	var model models.OrderReturnModel
	if err := r.withChildren(ctx).
		Where(query, arg).
		Order("created_at DESC").
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Save creates or updates a return. Items and refunds are upserted; they are
// never deleted because sync must not drop recorded money movements. History
// entries not yet stored are appended.
func (r *GormOrderReturnRepository) Save(ctx context.Context, ret *returns.OrderReturn) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Save(models.OrderReturnModelFromDomain(ret)).Error; err != nil {
			return err
		}

		for i := range ret.Items {
			ret.Items[i].ReturnID = ret.ID
			if err := tx.Save(models.ReturnItemModelFromDomain(ret.Items[i])).Error; err != nil {
				return err
			}
		}

		for i := range ret.Refunds {
			ret.Refunds[i].ReturnID = ret.ID
			if err := tx.Save(models.ReturnRefundModelFromDomain(ret.Refunds[i])).Error; err != nil {
				return err
			}
		}

		var pending []*models.ReturnStatusChangeModel
		for i := range ret.History {
			if ret.History[i].IsPersisted() {
				continue
			}
			ret.History[i].ReturnID = ret.ID
			pending = append(pending, models.ReturnStatusChangeModelFromDomain(ret.History[i]))
		}
		if len(pending) > 0 {
			if err := tx.Create(pending).Error; err != nil {
				return err
			}
		}
		for i := range ret.History {
			ret.History[i].MarkPersisted()
		}
		return nil
	})
}

// Ensure GormOrderReturnRepository implements returns.Repository
var _ returns.Repository = (*GormOrderReturnRepository)(nil)
