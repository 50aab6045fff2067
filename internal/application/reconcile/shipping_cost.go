package reconcile

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/omnisync/backend/internal/domain/integration"
	"github.com/omnisync/backend/internal/domain/shared/valueobject"
)

// CostSource records which tier produced a shipping cost
type CostSource string

const (
	CostSourceActual    CostSource = "actual"
	CostSourceRateTable CostSource = "rate_table"
	CostSourcePrior     CostSource = "prior"
	CostSourceNone      CostSource = "none"
)

// CostInput carries everything the three-tier fallback needs
type CostInput struct {
	Currency valueobject.Currency
	// Actual is an authoritative cost excluding VAT from the channel or aggregator
	Actual  *decimal.Decimal
	Carrier string
	Desi    decimal.Decimal
	// Prior is the cost already stored on the entity, in minor units
	Prior int64
}

// ShippingCostCalculator applies the fallback actual cost -> carrier rate table
// -> prior value. A known cost is never replaced by zero.
type ShippingCostCalculator struct {
	aggregator integration.ShippingAggregator
	rates      CarrierRateTable
	logger     *zap.Logger
}

// NewShippingCostCalculator creates a calculator. Both collaborators may be nil.
func NewShippingCostCalculator(aggregator integration.ShippingAggregator, rates CarrierRateTable, logger *zap.Logger) *ShippingCostCalculator {
	return &ShippingCostCalculator{aggregator: aggregator, rates: rates, logger: logger}
}

// FetchActual asks the aggregator for the live cost of a shipment. Failures are
// logged and reported as nil so the caller falls through to the next tier.
// Call it outside the reconciliation transaction.
func (c *ShippingCostCalculator) FetchActual(ctx context.Context, shipmentID string) *integration.ShipmentCost {
	if c.aggregator == nil || strings.TrimSpace(shipmentID) == "" {
		return nil
	}
	cost, err := c.aggregator.ShipmentCost(ctx, shipmentID)
	if err != nil {
		c.logger.Warn("Aggregator shipment cost lookup failed, falling back",
			zap.String("shipment_id", shipmentID),
			zap.Error(err),
		)
		return nil
	}
	return cost
}

// Resolve returns the cost in minor units excluding VAT and the tier it came from
func (c *ShippingCostCalculator) Resolve(ctx context.Context, in CostInput) (int64, CostSource) {
	if in.Actual != nil && in.Actual.IsPositive() {
		return valueobject.ToMinorUnits(*in.Actual, in.Currency), CostSourceActual
	}
	if c.rates != nil && in.Carrier != "" && in.Desi.IsPositive() {
		cost, found, err := c.rates.Lookup(ctx, in.Carrier, in.Desi)
		switch {
		case err != nil:
			c.logger.Warn("Carrier rate lookup failed, keeping prior cost",
				zap.String("carrier", in.Carrier),
				zap.String("desi", in.Desi.String()),
				zap.Error(err),
			)
		case found && cost > 0:
			return cost, CostSourceRateTable
		}
	}
	if in.Prior > 0 {
		return in.Prior, CostSourcePrior
	}
	return 0, CostSourceNone
}
