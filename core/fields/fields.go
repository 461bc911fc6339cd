package fields

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// Kind identifies the wire type of a field value.
type Kind int

const (
	// KindString is a plain text value.
	KindString Kind = iota
	// KindNumber is a numeric value (serialized without trailing zeros).
	KindNumber
	// KindDate is an ISO-8601 date (YYYY-MM-DD) or timestamp.
	KindDate
	// KindOption is a reference to a tracker list option, addressed by href.
	KindOption
)

// Value is a tagged field value. Exactly one representation is meaningful
// depending on Kind; the zero Value is an empty string.
type Value struct {
	Kind Kind
	Str  string
	Num  float64
	Href string
}

// String returns a string Value.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Number returns a numeric Value.
func Number(n float64) Value { return Value{Kind: KindNumber, Num: n} }

// Date returns a date Value. The caller is responsible for ISO formatting.
func Date(s string) Value { return Value{Kind: KindDate, Str: s} }

// Option returns an option-reference Value addressed by href.
func Option(href string) Value { return Value{Kind: KindOption, Href: href} }

// IsZero reports whether the value carries no content.
func (v Value) IsZero() bool {
	switch v.Kind {
	case KindNumber:
		return false
	case KindOption:
		return v.Href == ""
	default:
		return strings.TrimSpace(v.Str) == ""
	}
}

// Equal compares two values by their canonical scalar form. Kinds are not
// compared: a date written as "2025-06-30" reads back from the tracker as
// plain text and must still match, or every diff pass would rewrite it.
func (v Value) Equal(o Value) bool {
	return v.encode() == o.encode()
}

// encode returns the canonical scalar form used for hashing and comparison.
func (v Value) encode() string {
	switch v.Kind {
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindOption:
		return v.Href
	default:
		return v.Str
	}
}

// Map holds field values keyed by remote field id (e.g. "customField7").
// Maps compiled from identical input are required to canonicalize to
// byte-identical JSON, so iteration order never leaks into fingerprints.
type Map map[string]Value

// Clone returns a shallow copy of the map.
func (m Map) Clone() Map {
	out := make(Map, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Set stores a value, dropping empties so sparse rows never overwrite
// real content with blanks.
func (m Map) Set(id string, v Value) {
	if id == "" || v.IsZero() {
		return
	}
	m[id] = v
}

// Keys returns the field ids in sorted order.
func (m Map) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Canonical returns a deterministic JSON encoding of the map: keys sorted,
// values reduced to their canonical scalar form. Two maps with the same
// content always encode to the same bytes regardless of insertion order.
func (m Map) Canonical() []byte {
	type pair struct {
		K string `json:"k"`
		V string `json:"v"`
	}
	pairs := make([]pair, 0, len(m))
	for _, k := range m.Keys() {
		pairs = append(pairs, pair{K: k, V: m[k].encode()})
	}
	b, err := json.Marshal(pairs)
	if err != nil {
		// Marshal of string pairs cannot fail; keep the signature simple.
		return nil
	}
	return b
}

// Equal reports whether both maps hold the same keys and values.
func (m Map) Equal(o Map) bool {
	if len(m) != len(o) {
		return false
	}
	for k, v := range m {
		ov, ok := o[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}
