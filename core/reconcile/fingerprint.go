package reconcile

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Fingerprint hashes the full syncable surface of an item plan: summary,
// description, due date and the sorted custom-field map. Two plans with the
// same fingerprint are guaranteed to produce no observable remote diff, which
// is what makes the executor's short-circuit safe.
//
// Every field the diff engine may write must be covered here; a field that is
// diffable but not hashed would turn into a stale no-op skip. Fingerprints
// are per item and apply the same way to containers and units.
func Fingerprint(item ItemPlan) string {
	doc := struct {
		Summary     string          `json:"summary"`
		Description string          `json:"description"`
		DueDate     string          `json:"duedate"`
		Fields      json.RawMessage `json:"fields"`
	}{
		Summary:     item.Summary,
		Description: item.Description,
		DueDate:     item.DueDate,
		Fields:      item.Fields.Canonical(),
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		// Marshal over strings and pre-encoded JSON cannot fail.
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
