package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/omnisync/backend/internal/application/reconcile"
	"github.com/omnisync/backend/internal/domain/shared"
	"github.com/omnisync/backend/internal/domain/shared/valueobject"
	"github.com/omnisync/backend/internal/infrastructure/persistence/models"
)

// GormCurrencyRepository reads the currencies reference table
type GormCurrencyRepository struct {
	db *gorm.DB
}

// NewGormCurrencyRepository creates a new GormCurrencyRepository
func NewGormCurrencyRepository(db *gorm.DB) *GormCurrencyRepository {
	return &GormCurrencyRepository{db: db}
}

// FindByCode finds a currency by its ISO code
func (r *GormCurrencyRepository) FindByCode(ctx context.Context, code valueobject.Currency) (*reconcile.CurrencyRecord, error) {
	var model models.CurrencyModel
	if err := r.db.WithContext(ctx).First(&model, "code = ?", valueobject.NormalizeCurrency(string(code))).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, reconcile.ErrCurrencyNotFound
		}
		return nil, err
	}
	return &reconcile.CurrencyRecord{
		ID:           model.ID,
		Code:         model.Code,
		ExchangeRate: model.ExchangeRate,
	}, nil
}

// GormCarrierRateTable prices shipments from the carrier_rates table. The
// band is the smallest max_desi not below the parcel's desi; parcels heavier
// than every band are not priced.
type GormCarrierRateTable struct {
	db *gorm.DB
}

// NewGormCarrierRateTable creates a new GormCarrierRateTable
func NewGormCarrierRateTable(db *gorm.DB) *GormCarrierRateTable {
	return &GormCarrierRateTable{db: db}
}

// Lookup returns the cost excluding VAT for a carrier and desi
func (t *GormCarrierRateTable) Lookup(ctx context.Context, carrier string, desi decimal.Decimal) (int64, bool, error) {
	carrier = strings.ToLower(strings.TrimSpace(carrier))
	if carrier == "" || !desi.IsPositive() {
		return 0, false, nil
	}
	var model models.CarrierRateModel
	err := t.db.WithContext(ctx).
		Where("carrier = ? AND max_desi >= ?", carrier, desi).
		Order("max_desi ASC").
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return model.Cost, true, nil
}

// GormAuditSink appends audit entries to the audit_logs table
type GormAuditSink struct {
	db *gorm.DB
}

// NewGormAuditSink creates a new GormAuditSink
func NewGormAuditSink(db *gorm.DB) *GormAuditSink {
	return &GormAuditSink{db: db}
}

// Record implements shared.AuditSink
func (s *GormAuditSink) Record(ctx context.Context, entry shared.AuditEntry) error {
	return s.db.WithContext(ctx).Create(models.AuditLogModelFromDomain(entry)).Error
}

var (
	_ reconcile.CurrencyRepository = (*GormCurrencyRepository)(nil)
	_ reconcile.CarrierRateTable   = (*GormCarrierRateTable)(nil)
	_ shared.AuditSink             = (*GormAuditSink)(nil)
)
