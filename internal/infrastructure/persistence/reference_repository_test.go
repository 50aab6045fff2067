package persistence

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnisync/backend/internal/application/reconcile"
	"github.com/omnisync/backend/internal/domain/shared"
	"github.com/omnisync/backend/internal/infrastructure/persistence/models"
)

func TestGormCarrierRateTable_Lookup(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	bands := []models.CarrierRateModel{
		{Carrier: "yurtici", MaxDesi: decimal.NewFromInt(1), Cost: 4500},
		{Carrier: "yurtici", MaxDesi: decimal.NewFromInt(5), Cost: 6500},
		{Carrier: "yurtici", MaxDesi: decimal.NewFromInt(10), Cost: 9000},
		{Carrier: "aras", MaxDesi: decimal.NewFromInt(10), Cost: 7000},
	}
	for i := range bands {
		bands[i].ID = uuid.New()
		require.NoError(t, db.Create(&bands[i]).Error)
	}
	table := NewGormCarrierRateTable(db)

	tests := []struct {
		name    string
		carrier string
		desi    string
		cost    int64
		found   bool
	}{
		{"lowest band", "yurtici", "0.5", 4500, true},
		{"band upper bound is inclusive", "yurtici", "5", 6500, true},
		{"middle band", "yurtici", "5.01", 9000, true},
		{"carrier name is case-insensitive", " YurtIci ", "2", 6500, true},
		{"other carrier", "aras", "3", 7000, true},
		{"heavier than every band", "yurtici", "12", 0, false},
		{"unknown carrier", "mng", "1", 0, false},
		{"zero desi", "yurtici", "0", 0, false},
		{"empty carrier", "", "1", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cost, found, err := table.Lookup(ctx, tt.carrier, decimal.RequireFromString(tt.desi))
			require.NoError(t, err)
			assert.Equal(t, tt.found, found)
			assert.Equal(t, tt.cost, cost)
		})
	}
}

func TestGormCurrencyRepository_FindByCode(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	usd := models.CurrencyModel{Code: "USD", Name: "US Dollar", ExchangeRate: decimal.RequireFromString("32.5")}
	usd.ID = uuid.New()
	require.NoError(t, db.Create(&usd).Error)
	repo := NewGormCurrencyRepository(db)

	got, err := repo.FindByCode(ctx, "usd")
	require.NoError(t, err)
	assert.Equal(t, usd.ID, got.ID)
	assert.True(t, got.ExchangeRate.Equal(decimal.RequireFromString("32.5")))

	_, err = repo.FindByCode(ctx, "GBP")
	assert.ErrorIs(t, err, reconcile.ErrCurrencyNotFound)
}

func TestGormAuditSink_Record(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	sink := NewGormAuditSink(db)
	subjectID := uuid.New()

	require.NoError(t, sink.Record(ctx, shared.AuditEntry{
		Subject:    shared.AuditSubject{Type: "OrderReturn", ID: subjectID},
		Action:     "ambiguous_return",
		Actor:      shared.SystemActor,
		Properties: map[string]interface{}{"candidates": 2},
	}))

	var rows []models.AuditLogModel
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, "ambiguous_return", rows[0].Action)
	assert.Equal(t, subjectID.String(), rows[0].SubjectID)
}
