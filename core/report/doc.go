// Package report records per-run sync outcomes and publishes them as
// JSON artifacts, locally and to object storage.
package report
