package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/omnisync/backend/internal/domain/sales"
	"github.com/omnisync/backend/internal/domain/shared"
	"github.com/omnisync/backend/internal/infrastructure/persistence/models"
)

// GormOrderRepository implements sales.OrderRepository using GORM
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository creates a new GormOrderRepository
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

func (r *GormOrderRepository) withChildren(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		Preload("Customer")
}

// FindByID finds an order by ID with items and customer loaded
func (r *GormOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*sales.Order, error) {
	var model models.OrderModel
	if err := r.withChildren(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByShipment finds the order shipped under an aggregator shipment id,
// falling back to the tracking number
func (r *GormOrderRepository) FindByShipment(ctx context.Context, aggregatorShipmentID, trackingNumber string) (*sales.Order, error) {
	if id := strings.TrimSpace(aggregatorShipmentID); id != "" {
		o, err := r.findOne(ctx, "shipping_aggregator_shipment_id = ?", id)
		if err == nil || !errors.Is(err, shared.ErrNotFound) {
			return o, err
		}
	}
	if tn := strings.TrimSpace(trackingNumber); tn != "" {
		return r.findOne(ctx, "shipping_tracking_number = ?", tn)
	}
	return nil, shared.ErrNotFound
}

func (r *GormOrderRepository) findOne(ctx context.Context, query string, arg interface{}) (*sales.Order, error) {
	var model models.OrderModel
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

// Save creates or updates an order. Items not present in o.Items are deleted.
func (r *GormOrderRepository) Save(ctx context.Context, o *sales.Order) error {
	model := models.OrderModelFromDomain(o)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Save the order header; children are written explicitly below
		if err := tx.Omit(clause.Associations).Save(model).Error; err != nil {
			return err
		}

		currentItemIDs := make([]uuid.UUID, len(model.Items))
		for i := range model.Items {
			currentItemIDs[i] = model.Items[i].ID
		}

		// Delete items not in the current list
		if len(currentItemIDs) > 0 {
			if err := tx.Where("order_id = ? AND id NOT IN ?", o.ID, currentItemIDs).
				Delete(&models.OrderItemModel{}).Error; err != nil {
				return err
			}
		} else {
			if err := tx.Where("order_id = ?", o.ID).
				Delete(&models.OrderItemModel{}).Error; err != nil {
				return err
			}
		}

		// Save/update remaining items
		for i := range model.Items {
			model.Items[i].OrderID = o.ID
			if err := tx.Save(&model.Items[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Ensure GormOrderRepository implements sales.OrderRepository
var _ sales.OrderRepository = (*GormOrderRepository)(nil)
