package reconcile

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/omnisync/backend/internal/domain/shared/valueobject"
)

// ErrCurrencyNotFound is returned by CurrencyRepository for unknown codes
var ErrCurrencyNotFound = errors.New("reconcile: currency not found")

// CurrencyRecord is one row of the currencies table
type CurrencyRecord struct {
	ID   uuid.UUID
	Code valueobject.Currency
	// ExchangeRate converts one unit of this currency into the accounting currency
	ExchangeRate decimal.Decimal
}

// CurrencyRepository reads the currencies table
type CurrencyRepository interface {
	FindByCode(ctx context.Context, code valueobject.Currency) (*CurrencyRecord, error)
}

// CurrencyResolver produces the currency snapshot stored on orders and returns
type CurrencyResolver struct {
	repo       CurrencyRepository
	accounting valueobject.Currency
	logger     *zap.Logger
}

// NewCurrencyResolver creates a resolver. repo may be nil, in which case every
// code resolves with a 1.0 rate and no currency id.
func NewCurrencyResolver(repo CurrencyRepository, accounting valueobject.Currency, logger *zap.Logger) *CurrencyResolver {
	if accounting == "" {
		accounting = valueobject.DefaultCurrency
	}
	return &CurrencyResolver{repo: repo, accounting: accounting, logger: logger}
}

// Accounting returns the accounting currency
func (r *CurrencyResolver) Accounting() valueobject.Currency {
	return r.accounting
}

// Resolve looks the code up and snapshots its exchange rate. Unknown codes and
// the accounting currency itself fall back to 1.0. Lookup failures are logged
// and also fall back, since the rate is informational for reporting.
func (r *CurrencyResolver) Resolve(ctx context.Context, code string) valueobject.CurrencySnapshot {
	cur := valueobject.NormalizeCurrency(code)
	snapshot := valueobject.CurrencySnapshot{Code: cur, ExchangeRate: decimal.NewFromInt(1)}
	if r.repo == nil {
		return snapshot
	}

	record, err := r.repo.FindByCode(ctx, cur)
	if err != nil {
		if !errors.Is(err, ErrCurrencyNotFound) {
			r.logger.Warn("Currency lookup failed, using rate 1.0",
				zap.String("currency", string(cur)), zap.Error(err))
		}
		return snapshot
	}
	id := record.ID
	snapshot.CurrencyID = &id
	if cur != r.accounting && record.ExchangeRate.IsPositive() {
		snapshot.ExchangeRate = record.ExchangeRate
	}
	return snapshot
}
