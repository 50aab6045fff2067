package reconcile

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/omnisync/backend/internal/domain/catalog"
	"github.com/omnisync/backend/internal/domain/customer"
	"github.com/omnisync/backend/internal/domain/integration"
	"github.com/omnisync/backend/internal/domain/returns"
	"github.com/omnisync/backend/internal/domain/sales"
)

// TransactionScope runs reconciliation work atomically. Every repository handed
// to fn shares one database transaction; any error rolls back the whole unit.
type TransactionScope interface {
	Execute(ctx context.Context, fn func(repos Repositories) error) error
}

// Repositories provides access to all repositories within a transaction
type Repositories interface {
	// Mappings returns the identity map repository
	Mappings() integration.MappingRepository
	// Customers returns the customer repository
	Customers() customer.Repository
	// Products returns the product repository
	Products() catalog.ProductRepository
	// Variants returns the product variant repository
	Variants() catalog.VariantRepository
	// Orders returns the order repository
	Orders() sales.OrderRepository
	// Returns returns the order return repository
	Returns() returns.Repository
	// Jobs returns the reconcile job repository, used to enqueue follow-up work atomically
	Jobs() integration.JobRepository
}

// CarrierRateTable prices a shipment from the local carrier rate table.
// Amounts are minor units excluding VAT.
type CarrierRateTable interface {
	Lookup(ctx context.Context, carrier string, desi decimal.Decimal) (cost int64, found bool, err error)
}
