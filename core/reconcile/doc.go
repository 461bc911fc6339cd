// Package reconcile turns compiled order plans into remote tracker state.
//
// It owns the fingerprint short-circuit, the minimal diff engine, the
// retry/backoff policy with optimistic-concurrency conflict recovery, and the
// per-order state machine that resolves identity, creates or updates the
// container item, fans out unit items and registers the resulting mappings.
// Orders are independent units of work processed across a bounded pool; one
// order's failure never aborts its siblings.
package reconcile
