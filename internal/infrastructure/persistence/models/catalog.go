package models

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/omnisync/backend/internal/domain/catalog"
)

// ProductModel is the persistence model for the Product aggregate
type ProductModel struct {
	AggregateModel
	Title       string                `gorm:"type:varchar(255);not null"`
	Status      catalog.ProductStatus `gorm:"type:varchar(20);not null;default:'active'"`
	AutoCreated bool                  `gorm:"not null;default:false"`
}

// TableName returns the table name for GORM
func (ProductModel) TableName() string {
	return "products"
}

// ToDomain converts the persistence model to a domain Product
func (m *ProductModel) ToDomain() *catalog.Product {
	p := &catalog.Product{
		Title:       m.Title,
		Status:      m.Status,
		AutoCreated: m.AutoCreated,
	}
	m.PopulateAggregateRoot(&p.BaseAggregateRoot)
	return p
}

// ProductModelFromDomain creates a new persistence model from a domain Product
func ProductModelFromDomain(p *catalog.Product) *ProductModel {
	m := &ProductModel{
		Title:       p.Title,
		Status:      p.Status,
		AutoCreated: p.AutoCreated,
	}
	m.FromDomainAggregateRoot(p.BaseAggregateRoot)
	return m
}

// ProductVariantModel is the persistence model for a ProductVariant.
// Per-channel enablement is a JSON column keyed by platform code.
type ProductVariantModel struct {
	BaseModel
	ProductID         uuid.UUID                                              `gorm:"type:uuid;not null;index"`
	SKU               string                                                 `gorm:"column:sku;type:varchar(100);index"`
	Barcode           string                                                 `gorm:"type:varchar(100);index"`
	Title             string                                                 `gorm:"type:varchar(255)"`
	Price             int64                                                  `gorm:"not null;default:0"`
	CostPrice         int64                                                  `gorm:"not null;default:0"`
	Currency          string                                                 `gorm:"type:varchar(3)"`
	InventoryQuantity int                                                    `gorm:"not null;default:0"`
	Channels          datatypes.JSONType[map[string]catalog.ChannelSettings] `gorm:"type:jsonb"`
}

// TableName returns the table name for GORM
func (ProductVariantModel) TableName() string {
	return "product_variants"
}

// ToDomain converts the persistence model to a domain ProductVariant
func (m *ProductVariantModel) ToDomain() *catalog.ProductVariant {
	channels := m.Channels.Data()
	if channels == nil {
		channels = make(map[string]catalog.ChannelSettings)
	}
	return &catalog.ProductVariant{
		BaseEntity:        m.BaseModel.ToDomain(),
		ProductID:         m.ProductID,
		SKU:               m.SKU,
		Barcode:           m.Barcode,
		Title:             m.Title,
		Price:             m.Price,
		CostPrice:         m.CostPrice,
		Currency:          m.Currency,
		InventoryQuantity: m.InventoryQuantity,
		Channels:          channels,
	}
}

// ProductVariantModelFromDomain creates a new persistence model from a domain ProductVariant
func ProductVariantModelFromDomain(v *catalog.ProductVariant) *ProductVariantModel {
	m := &ProductVariantModel{
		ProductID:         v.ProductID,
		SKU:               v.SKU,
		Barcode:           v.Barcode,
		Title:             v.Title,
		Price:             v.Price,
		CostPrice:         v.CostPrice,
		Currency:          v.Currency,
		InventoryQuantity: v.InventoryQuantity,
		Channels:          datatypes.NewJSONType(v.Channels),
	}
	m.FromDomainBaseEntity(v.BaseEntity)
	return m
}
