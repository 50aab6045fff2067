package integration

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EntityType is the closed set of canonical entity kinds the identity map can point at
type EntityType string

const (
	EntityCustomer       EntityType = "CUSTOMER"
	EntityOrder          EntityType = "ORDER"
	EntityOrderItem      EntityType = "ORDER_ITEM"
	EntityProductVariant EntityType = "PRODUCT_VARIANT"
	EntityOrderReturn    EntityType = "ORDER_RETURN"
	EntityReturnRefund   EntityType = "RETURN_REFUND"
)

// IsValid returns true if the entity type is part of the closed set
func (t EntityType) IsValid() bool {
	switch t {
	case EntityCustomer, EntityOrder, EntityOrderItem, EntityProductVariant,
		EntityOrderReturn, EntityReturnRefund:
		return true
	default:
		return false
	}
}

// MappingKey addresses the external side of an identity mapping
type MappingKey struct {
	Platform   PlatformCode
	EntityType EntityType
	PlatformID string
}

// Validate validates the key
func (k MappingKey) Validate() error {
	if !k.Platform.IsValid() {
		return ErrInvalidPlatformCode
	}
	if !k.EntityType.IsValid() {
		return ErrMappingInvalidEntityType
	}
	if strings.TrimSpace(k.PlatformID) == "" {
		return ErrMappingInvalidPlatformID
	}
	return nil
}

// Typed key constructors. Callers never spell an entity type by hand.

// CustomerKey builds the key for a channel customer id
func CustomerKey(p PlatformCode, id string) MappingKey {
	return MappingKey{Platform: p, EntityType: EntityCustomer, PlatformID: id}
}

// OrderKey builds the key for a channel order or package id
func OrderKey(p PlatformCode, id string) MappingKey {
	return MappingKey{Platform: p, EntityType: EntityOrder, PlatformID: id}
}

// OrderItemKey builds the key for a channel order line id
func OrderItemKey(p PlatformCode, id string) MappingKey {
	return MappingKey{Platform: p, EntityType: EntityOrderItem, PlatformID: id}
}

// VariantKey builds the key for a channel variant id
func VariantKey(p PlatformCode, id string) MappingKey {
	return MappingKey{Platform: p, EntityType: EntityProductVariant, PlatformID: id}
}

// ReturnKey builds the key for a channel return, refund or claim id
func ReturnKey(p PlatformCode, id string) MappingKey {
	return MappingKey{Platform: p, EntityType: EntityOrderReturn, PlatformID: id}
}

// RefundKey builds the key for a channel refund transaction id
func RefundKey(p PlatformCode, id string) MappingKey {
	return MappingKey{Platform: p, EntityType: EntityReturnRefund, PlatformID: id}
}

// PlatformMapping associates a canonical entity with its external id on one platform.
// Both (platform, entity_type, platform_id) and (platform, entity_type, entity_id) are unique.
type PlatformMapping struct {
	ID           uuid.UUID
	Platform     PlatformCode
	EntityType   EntityType
	EntityID     uuid.UUID
	PlatformID   string
	Payload      json.RawMessage
	LastSyncedAt time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewPlatformMapping creates a new mapping
func NewPlatformMapping(key MappingKey, entityID uuid.UUID, payload json.RawMessage, now time.Time) (*PlatformMapping, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if entityID == uuid.Nil {
		return nil, ErrMappingInvalidEntityID
	}
	return &PlatformMapping{
		ID:           uuid.New(),
		Platform:     key.Platform,
		EntityType:   key.EntityType,
		EntityID:     entityID,
		PlatformID:   key.PlatformID,
		Payload:      payload,
		LastSyncedAt: now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Key returns the external-side key of the mapping
func (m *PlatformMapping) Key() MappingKey {
	return MappingKey{Platform: m.Platform, EntityType: m.EntityType, PlatformID: m.PlatformID}
}

// Refresh records a new sighting of the external entity
func (m *PlatformMapping) Refresh(payload json.RawMessage, now time.Time) {
	if len(payload) > 0 {
		m.Payload = payload
	}
	m.LastSyncedAt = now
	m.UpdatedAt = now
}
