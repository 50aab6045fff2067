package models

// All returns every persistence model, parents before children. Used by
// tests and local tooling to AutoMigrate a throwaway schema; production
// schemas come from the SQL migrations.
func All() []interface{} {
	return []interface{}{
		&IntegrationModel{},
		&PlatformMappingModel{},
		&WebhookReceiptModel{},
		&ReconcileJobModel{},
		&SyncBatchModel{},
		&CustomerModel{},
		&ProductModel{},
		&ProductVariantModel{},
		&OrderModel{},
		&OrderItemModel{},
		&OrderReturnModel{},
		&ReturnItemModel{},
		&ReturnRefundModel{},
		&ReturnStatusChangeModel{},
		&CurrencyModel{},
		&CarrierRateModel{},
		&AuditLogModel{},
	}
}
