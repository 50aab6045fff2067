package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/omnisync/backend/internal/domain/shared"
	"github.com/omnisync/backend/internal/domain/shared/valueobject"
)

// CurrencyModel is a row of the currencies reference table
type CurrencyModel struct {
	BaseModel
	Code         valueobject.Currency `gorm:"type:varchar(3);not null;uniqueIndex"`
	Name         string               `gorm:"type:varchar(100)"`
	ExchangeRate decimal.Decimal      `gorm:"type:decimal(18,6);not null;default:1"`
}

// TableName returns the table name for GORM
func (CurrencyModel) TableName() string {
	return "currencies"
}

// CarrierRateModel is one band of the local carrier rate table.
// A band covers desi values in (previous band's MaxDesi, MaxDesi].
type CarrierRateModel struct {
	BaseModel
	Carrier string          `gorm:"type:varchar(50);not null;uniqueIndex:uq_carrier_rates_band"`
	MaxDesi decimal.Decimal `gorm:"type:decimal(10,2);not null;uniqueIndex:uq_carrier_rates_band"`
	Cost    int64           `gorm:"not null"`
}

// TableName returns the table name for GORM
func (CarrierRateModel) TableName() string {
	return "carrier_rates"
}

// AuditLogModel is an append-only row of the structured audit trail
type AuditLogModel struct {
	BaseModel
	SubjectType string            `gorm:"type:varchar(50);not null;index:idx_audit_logs_subject"`
	SubjectID   string            `gorm:"type:varchar(64);not null;index:idx_audit_logs_subject"`
	Action      string            `gorm:"type:varchar(100);not null;index"`
	Actor       string            `gorm:"type:varchar(64)"`
	Properties  datatypes.JSONMap `gorm:"type:jsonb"`
}

// TableName returns the table name for GORM
func (AuditLogModel) TableName() string {
	return "audit_logs"
}

// AuditLogModelFromDomain creates a new persistence model from an audit entry
func AuditLogModelFromDomain(e shared.AuditEntry) *AuditLogModel {
	m := &AuditLogModel{
		SubjectType: e.Subject.Type,
		SubjectID:   e.Subject.ID.String(),
		Action:      e.Action,
		Actor:       e.Actor,
		Properties:  datatypes.JSONMap(e.Properties),
	}
	m.ID = uuid.New()
	m.CreatedAt = e.OccurredAt
	m.UpdatedAt = e.OccurredAt
	return m
}
