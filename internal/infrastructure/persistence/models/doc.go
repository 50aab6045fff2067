// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer pure and free
// from ORM concerns.
//
// Key Principles:
// 1. Domain entities should be free of GORM tags and infrastructure concerns
// 2. Persistence models contain all GORM annotations and table mappings
// 3. Mappers convert between domain entities and persistence models
// 4. Repositories use persistence models for database operations
//
// Structure:
// - base.go: Base persistence models (BaseModel, AggregateModel)
// - integration.go: Integrations, platform identity mappings, webhook receipts
// - job.go: Reconcile jobs and sync batches
// - customer.go, catalog.go: Customers, products and variants
// - order.go, order_return.go: Canonical orders and returns with their children
// - reference.go: Currencies, carrier rates and the audit log
//
// Payload snapshots and settings bags are stored as JSON columns through gorm.io/datatypes.
package models
