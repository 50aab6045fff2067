package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/omnisync/backend/internal/domain/shared"
)

// ProductStatus represents the status of a product
type ProductStatus string

const (
	ProductStatusActive ProductStatus = "active"
	ProductStatusDraft  ProductStatus = "draft"
)

// Product groups variants under one title
type Product struct {
	shared.BaseAggregateRoot
	Title  string
	Status ProductStatus
	// AutoCreated marks shell products created for unmatched channel lines
	AutoCreated bool
}

// NewProduct creates a new active product
func NewProduct(title string, now time.Time) (*Product, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, shared.NewDomainError("INVALID_TITLE", "Product title cannot be empty")
	}
	return &Product{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(now),
		Title:             title,
		Status:            ProductStatusActive,
	}, nil
}

// NewShellProduct creates a draft product from an unmatched channel line.
// Staff review shells before they are listed anywhere.
func NewShellProduct(title string, now time.Time) *Product {
	title = strings.TrimSpace(title)
	if title == "" {
		title = "Unmatched channel product"
	}
	return &Product{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(now),
		Title:             title,
		Status:            ProductStatusDraft,
		AutoCreated:       true,
	}
}

// ChannelSettings is the per-channel enablement of a variant
type ChannelSettings struct {
	Enabled    bool   `json:"enabled"`
	ExternalID string `json:"external_id,omitempty"`
	Price      *int64 `json:"price,omitempty"`
}

// ProductVariant is the sellable unit. Prices are minor units.
type ProductVariant struct {
	shared.BaseEntity
	ProductID         uuid.UUID
	SKU               string
	Barcode           string
	Title             string
	Price             int64
	CostPrice         int64
	Currency          string
	InventoryQuantity int
	Channels          map[string]ChannelSettings
}

// NewVariant creates a variant with zero inventory
func NewVariant(productID uuid.UUID, sku, barcode, title string, now time.Time) *ProductVariant {
	return &ProductVariant{
		BaseEntity: shared.NewBaseEntity(now),
		ProductID:  productID,
		SKU:        strings.TrimSpace(sku),
		Barcode:    strings.TrimSpace(barcode),
		Title:      strings.TrimSpace(title),
		Channels:   make(map[string]ChannelSettings),
	}
}

// EnableChannel records that the variant is listed on a channel
func (v *ProductVariant) EnableChannel(channel, externalID string, now time.Time) {
	if v.Channels == nil {
		v.Channels = make(map[string]ChannelSettings)
	}
	settings := v.Channels[channel]
	settings.Enabled = true
	if externalID != "" {
		settings.ExternalID = externalID
	}
	v.Channels[channel] = settings
	v.Touch(now)
}

// IsEnabledOn reports whether the variant is listed on a channel
func (v *ProductVariant) IsEnabledOn(channel string) bool {
	return v.Channels[channel].Enabled
}

// Listing is a channel's view of a variant
type Listing struct {
	ExternalID string
	SKU        string
	Barcode    string
	Title      string
	Price      int64
	Currency   string
	Stock      *int
}

// ApplyListing refreshes channel-owned fields. Inventory is only overwritten
// when syncInventory is set; local stock is otherwise authoritative.
func (v *ProductVariant) ApplyListing(channel string, l Listing, syncInventory bool, now time.Time) {
	if v.SKU == "" && l.SKU != "" {
		v.SKU = strings.TrimSpace(l.SKU)
	}
	if v.Barcode == "" && l.Barcode != "" {
		v.Barcode = strings.TrimSpace(l.Barcode)
	}
	if l.Title != "" {
		v.Title = strings.TrimSpace(l.Title)
	}
	if l.Currency != "" {
		v.Currency = l.Currency
	}
	if l.Price > 0 {
		if v.Price == 0 {
			v.Price = l.Price
		}
		price := l.Price
		settings := v.Channels[channel]
		settings.Price = &price
		if v.Channels == nil {
			v.Channels = make(map[string]ChannelSettings)
		}
		v.Channels[channel] = settings
	}
	if syncInventory && l.Stock != nil {
		v.InventoryQuantity = *l.Stock
	}
	v.EnableChannel(channel, l.ExternalID, now)
}

// ProductRepository defines the interface for product persistence
type ProductRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Product, error)
	Save(ctx context.Context, p *Product) error
}

// VariantRepository defines the interface for variant persistence
type VariantRepository interface {
	// FindByID finds a variant by ID
	FindByID(ctx context.Context, id uuid.UUID) (*ProductVariant, error)
	// FindByBarcode finds a variant by exact barcode
	FindByBarcode(ctx context.Context, barcode string) (*ProductVariant, error)
	// FindBySKU finds a variant by exact SKU
	FindBySKU(ctx context.Context, sku string) (*ProductVariant, error)
	// Save creates or updates a variant
	Save(ctx context.Context, v *ProductVariant) error
}
