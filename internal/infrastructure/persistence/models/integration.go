package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/omnisync/backend/internal/domain/integration"
)

// IntegrationModel is the persistence model for the Integration aggregate
type IntegrationModel struct {
	AggregateModel
	Type     integration.IntegrationType `gorm:"type:varchar(30);not null"`
	Provider integration.PlatformCode    `gorm:"type:varchar(20);not null;index:idx_integrations_provider_active,priority:1"`
	Name     string                      `gorm:"type:varchar(100);not null"`
	Active   bool                        `gorm:"not null;index:idx_integrations_provider_active,priority:2"`
	Settings datatypes.JSONMap           `gorm:"type:jsonb"`
}

// TableName returns the table name for GORM
func (IntegrationModel) TableName() string {
	return "integrations"
}

// ToDomain converts the persistence model to a domain Integration
func (m *IntegrationModel) ToDomain() *integration.Integration {
	i := &integration.Integration{
		Type:     m.Type,
		Provider: m.Provider,
		Name:     m.Name,
		Active:   m.Active,
		Settings: integration.Settings(m.Settings),
	}
	m.PopulateAggregateRoot(&i.BaseAggregateRoot)
	if i.Settings == nil {
		i.Settings = integration.Settings{}
	}
	return i
}

// FromDomain populates the persistence model from a domain Integration
func (m *IntegrationModel) FromDomain(i *integration.Integration) {
	m.FromDomainAggregateRoot(i.BaseAggregateRoot)
	m.Type = i.Type
	m.Provider = i.Provider
	m.Name = i.Name
	m.Active = i.Active
	m.Settings = datatypes.JSONMap(i.Settings)
}

// IntegrationModelFromDomain creates a new persistence model from a domain Integration
func IntegrationModelFromDomain(i *integration.Integration) *IntegrationModel {
	m := &IntegrationModel{}
	m.FromDomain(i)
	return m
}

// PlatformMappingModel is the persistence model for one identity map row.
// Both sides are unique per (platform, entity_type).
type PlatformMappingModel struct {
	ID           uuid.UUID                `gorm:"type:uuid;primary_key"`
	Platform     integration.PlatformCode `gorm:"type:varchar(20);not null;uniqueIndex:uq_platform_mappings_external,priority:1;uniqueIndex:uq_platform_mappings_entity,priority:1"`
	EntityType   integration.EntityType   `gorm:"type:varchar(30);not null;uniqueIndex:uq_platform_mappings_external,priority:2;uniqueIndex:uq_platform_mappings_entity,priority:2"`
	PlatformID   string                   `gorm:"type:varchar(255);not null;uniqueIndex:uq_platform_mappings_external,priority:3"`
	EntityID     uuid.UUID                `gorm:"type:uuid;not null;uniqueIndex:uq_platform_mappings_entity,priority:3"`
	Payload      datatypes.JSON           `gorm:"type:jsonb"`
	LastSyncedAt time.Time                `gorm:"not null"`
	CreatedAt    time.Time                `gorm:"not null"`
	UpdatedAt    time.Time                `gorm:"not null"`
}

// TableName returns the table name for GORM
func (PlatformMappingModel) TableName() string {
	return "platform_mappings"
}

// ToDomain converts the persistence model to a domain PlatformMapping
func (m *PlatformMappingModel) ToDomain() *integration.PlatformMapping {
	return &integration.PlatformMapping{
		ID:           m.ID,
		Platform:     m.Platform,
		EntityType:   m.EntityType,
		EntityID:     m.EntityID,
		PlatformID:   m.PlatformID,
		Payload:      json.RawMessage(m.Payload),
		LastSyncedAt: m.LastSyncedAt,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain PlatformMapping
func (m *PlatformMappingModel) FromDomain(p *integration.PlatformMapping) {
	m.ID = p.ID
	m.Platform = p.Platform
	m.EntityType = p.EntityType
	m.EntityID = p.EntityID
	m.PlatformID = p.PlatformID
	m.Payload = datatypes.JSON(p.Payload)
	m.LastSyncedAt = p.LastSyncedAt
	m.CreatedAt = p.CreatedAt
	m.UpdatedAt = p.UpdatedAt
}

// PlatformMappingModelFromDomain creates a new persistence model from a domain PlatformMapping
func PlatformMappingModelFromDomain(p *integration.PlatformMapping) *PlatformMappingModel {
	m := &PlatformMappingModel{}
	m.FromDomain(p)
	return m
}

// WebhookReceiptModel is the persistence model for an inbound delivery
type WebhookReceiptModel struct {
	ID             uuid.UUID                `gorm:"type:uuid;primary_key"`
	IntegrationID  uuid.UUID                `gorm:"type:uuid;not null;index"`
	Provider       integration.PlatformCode `gorm:"type:varchar(20);not null"`
	DeliveryID     string                   `gorm:"type:varchar(255);index"`
	Topic          string                   `gorm:"type:varchar(100);not null"`
	Payload        datatypes.JSON           `gorm:"type:jsonb"`
	SignatureValid bool                     `gorm:"not null"`
	JobID          *uuid.UUID               `gorm:"type:uuid"`
	ReceivedAt     time.Time                `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (WebhookReceiptModel) TableName() string {
	return "webhook_receipts"
}

// WebhookReceiptModelFromDomain creates a new persistence model from a domain WebhookReceipt
func WebhookReceiptModelFromDomain(r *integration.WebhookReceipt) *WebhookReceiptModel {
	return &WebhookReceiptModel{
		ID:             r.ID,
		IntegrationID:  r.IntegrationID,
		Provider:       r.Provider,
		DeliveryID:     r.DeliveryID,
		Topic:          r.Topic,
		Payload:        datatypes.JSON(r.Payload),
		SignatureValid: r.SignatureValid,
		JobID:          r.JobID,
		ReceivedAt:     r.ReceivedAt,
	}
}
