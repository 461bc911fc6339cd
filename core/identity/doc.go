// Package identity persists the mapping between logical order identities and
// remote tracker item keys, together with the fingerprints, source hashes and
// ingestion checkpoints that let repeat runs skip unchanged work.
//
// Lookups distinguish "no mapping" (ErrNotFound) from backend failure; the
// executor aborts an order on backend failure instead of creating duplicates.
package identity
