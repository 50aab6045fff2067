package reconcile_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/omnisync/backend/internal/application/reconcile"
	"github.com/omnisync/backend/internal/domain/integration"
	"github.com/omnisync/backend/internal/domain/shared"
	"github.com/omnisync/backend/internal/infrastructure/persistence"
	"github.com/omnisync/backend/internal/infrastructure/persistence/models"
)

// memoryAudit collects audit entries in memory
type memoryAudit struct {
	mu      sync.Mutex
	entries []shared.AuditEntry
}

func (a *memoryAudit) Record(_ context.Context, e shared.AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
	return nil
}

func (a *memoryAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.entries))
	for i, e := range a.entries {
		out[i] = e.Action
	}
	return out
}

// flatRates prices every parcel of a carrier at a single cost
type flatRates map[string]int64

func (r flatRates) Lookup(_ context.Context, carrier string, desi decimal.Decimal) (int64, bool, error) {
	cost, ok := r[strings.ToLower(carrier)]
	if !ok || !desi.IsPositive() {
		return 0, false, nil
	}
	return cost, true, nil
}

type harness struct {
	db    *gorm.DB
	audit *memoryAudit
	clock *shared.FixedClock
	deps  reconcile.Deps
}

func newHarness(t *testing.T, rates reconcile.CarrierRateTable) *harness {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))

	log := zap.NewNop()
	audit := &memoryAudit{}
	clock := shared.NewFixedClock(time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC))
	return &harness{
		db:    db,
		audit: audit,
		clock: clock,
		deps: reconcile.Deps{
			Tx:       persistence.NewGormTransactionScope(db),
			Clock:    clock,
			Audit:    audit,
			Currency: reconcile.NewCurrencyResolver(persistence.NewGormCurrencyRepository(db), "TRY", log),
			Shipping: reconcile.NewShippingCostCalculator(nil, rates, log),
			Logger:   log,
		},
	}
}

func (h *harness) count(t *testing.T, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.db.Model(model).Count(&n).Error)
	return n
}

func (h *harness) countMappings(t *testing.T, entityType integration.EntityType) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.db.Model(&models.PlatformMappingModel{}).
		Where("entity_type = ?", entityType).Count(&n).Error)
	return n
}

func (h *harness) integration(t *testing.T, provider integration.PlatformCode, settings integration.Settings) *integration.Integration {
	t.Helper()
	integ, err := integration.NewIntegration(integration.IntegrationTypeSalesChannel, provider, string(provider), settings, h.clock.Now())
	require.NoError(t, err)
	require.NoError(t, persistence.NewGormIntegrationRepository(h.db).Save(context.Background(), integ))
	return integ
}
