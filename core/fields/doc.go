// Package fields models tracker item payloads as strongly-typed maps of
// remote field id to tagged value (string, number, date, option reference)
// instead of open bags of untyped key-values.
//
// The canonical JSON encoding produced by Map.Canonical is the input to
// content fingerprinting, so it must stay deterministic: keys are sorted and
// values are reduced to stable scalar forms before marshaling.
package fields
