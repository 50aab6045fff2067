package persistence

import (
	"context"

	"gorm.io/gorm"

	"github.com/omnisync/backend/internal/application/reconcile"
	"github.com/omnisync/backend/internal/domain/catalog"
	"github.com/omnisync/backend/internal/domain/customer"
	"github.com/omnisync/backend/internal/domain/integration"
	"github.com/omnisync/backend/internal/domain/returns"
	"github.com/omnisync/backend/internal/domain/sales"
)

// GormTransactionScope implements TransactionScope using GORM transactions.
// It provides atomic execution of multiple repository operations.
type GormTransactionScope struct {
	db *gorm.DB
}

// NewGormTransactionScope creates a new GormTransactionScope.
func NewGormTransactionScope(db *gorm.DB) *GormTransactionScope {
	return &GormTransactionScope{db: db}
}

// Execute runs the given function within a database transaction.
// If the function returns an error, the transaction is rolled back.
// If the function succeeds, the transaction is committed.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos reconcile.Repositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repos := &gormTransactionalRepositories{tx: tx}
		return fn(repos)
	})
}

// gormTransactionalRepositories provides access to all repositories within a transaction.
type gormTransactionalRepositories struct {
	tx *gorm.DB
}

// Mappings returns the identity map repository scoped to the current transaction.
func (r *gormTransactionalRepositories) Mappings() integration.MappingRepository {
	return NewGormMappingRepository(r.tx)
}

// Customers returns the customer repository scoped to the current transaction.
func (r *gormTransactionalRepositories) Customers() customer.Repository {
	return NewGormCustomerRepository(r.tx)
}

// Products returns the product repository scoped to the current transaction.
func (r *gormTransactionalRepositories) Products() catalog.ProductRepository {
	return NewGormProductRepository(r.tx)
}

// Variants returns the variant repository scoped to the current transaction.
func (r *gormTransactionalRepositories) Variants() catalog.VariantRepository {
	return NewGormVariantRepository(r.tx)
}

// Orders returns the order repository scoped to the current transaction.
func (r *gormTransactionalRepositories) Orders() sales.OrderRepository {
	return NewGormOrderRepository(r.tx)
}

// Returns returns the order return repository scoped to the current transaction.
func (r *gormTransactionalRepositories) Returns() returns.Repository {
	return NewGormOrderReturnRepository(r.tx)
}

// Jobs returns the job repository scoped to the current transaction.
func (r *gormTransactionalRepositories) Jobs() integration.JobRepository {
	return NewGormJobRepository(r.tx)
}

// Ensure GormTransactionScope implements TransactionScope
var _ reconcile.TransactionScope = (*GormTransactionScope)(nil)

// Ensure gormTransactionalRepositories implements Repositories
var _ reconcile.Repositories = (*gormTransactionalRepositories)(nil)
