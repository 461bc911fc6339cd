// Package workorder turns tabular work-order exports into desired-state
// plans for the reconciliation executor: grouping rows into logical orders,
// compiling one container item plus quantity-driven unit items per order,
// and validating the result against required-field and uniqueness rules.
//
// The package also owns the source side of the pipeline (excelize workbook
// ingestion into a gorm-backed row store) and the sync service that drives
// compile, validate and reconcile per product, exposed over HTTP by the
// feature's Fiber handlers.
package workorder
