package reconcile

import (
	"time"

	"github.com/go-playground/validator/v10"

	"order-sync/core/fields"
)

// ItemPlan is the desired state of one remote work item: the syncable surface
// the fingerprinter hashes and the diff engine compares.
type ItemPlan struct {
	Summary     string
	Description string
	DueDate     string
	Fields      fields.Map
}

// UnitItem is one quantity-driven child item, indexed 1..N within its order.
type UnitItem struct {
	Instance int
	ItemPlan
}

// OrderPlan is the compiled desired state of one logical order: one container
// item plus its unit items. Plans are scoped to a single reconciliation pass.
type OrderPlan struct {
	Product    string
	OrderID    string
	ProjectKey string
	Container  ItemPlan
	Units      []UnitItem

	// IdentityFieldID is the remote custom field carrying the order id, used
	// for search-based identity recovery when no mapping exists.
	IdentityFieldID string

	// SourceHash fingerprints the raw input rows; used for delta pre-filtering
	// before any remote call.
	SourceHash string
	// LastRowAt is the newest source-row timestamp, persisted as the order's
	// checkpoint after a successful apply.
	LastRowAt time.Time
	Warnings  []string
}

// Options tunes one reconciliation pass.
type Options struct {
	// ForceSync bypasses the fingerprint short-circuit and the
	// description-only diff suppression.
	ForceSync bool
	// ContinueOnError lets valid orders proceed when siblings are blocked;
	// when false any validation error blocks the whole run.
	ContinueOnError bool
	// DryRun compiles, validates and diffs but performs no remote write.
	DryRun bool

	MaxRetries  int           `validate:"min=1,max=10"`
	BackoffBase time.Duration `validate:"min=0"`
	BackoffCap  time.Duration `validate:"min=0"`

	// WorkerCount bounds concurrent orders in one pass.
	WorkerCount int `validate:"min=1,max=64"`
	// UnitWorkers bounds concurrent unit creates under a container that was
	// created in this same pass.
	UnitWorkers int `validate:"min=1,max=32"`

	ContainerType string
	UnitType      string
}

// DefaultOptions returns the tuning defaults for one pass.
func DefaultOptions() Options {
	return Options{
		MaxRetries:    4,
		BackoffBase:   500 * time.Millisecond,
		BackoffCap:    15 * time.Second,
		WorkerCount:   5,
		UnitWorkers:   4,
		ContainerType: "Epic",
		UnitType:      "User story",
	}
}

// Normalize fills zero tuning values with defaults and validates the result.
func (o *Options) Normalize() error {
	def := DefaultOptions()
	if o.MaxRetries == 0 {
		o.MaxRetries = def.MaxRetries
	}
	if o.BackoffBase == 0 {
		o.BackoffBase = def.BackoffBase
	}
	if o.BackoffCap == 0 {
		o.BackoffCap = def.BackoffCap
	}
	if o.WorkerCount == 0 {
		o.WorkerCount = def.WorkerCount
	}
	if o.UnitWorkers == 0 {
		o.UnitWorkers = def.UnitWorkers
	}
	if o.ContainerType == "" {
		o.ContainerType = def.ContainerType
	}
	if o.UnitType == "" {
		o.UnitType = def.UnitType
	}
	return validator.New().Struct(o)
}

// ApplyResult is the per-order outcome of one pass.
type ApplyResult struct {
	OrderID     string        `json:"order_id"`
	CreatedKeys []string      `json:"created_keys,omitempty"`
	UpdatedKeys []string      `json:"updated_keys,omitempty"`
	NoopCount   int           `json:"noop_count"`
	Warnings    []string      `json:"warnings,omitempty"`
	Errors      []string      `json:"errors,omitempty"`
	RetryCount  int           `json:"retry_count"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
}

// Failed reports whether the order ended in the error state.
func (r *ApplyResult) Failed() bool { return len(r.Errors) > 0 }

// Totals aggregates a batch of apply results.
type Totals struct {
	Orders   int `json:"orders"`
	Created  int `json:"created"`
	Updated  int `json:"updated"`
	Noops    int `json:"noops"`
	Failed   int `json:"failed"`
	Warnings int `json:"warnings"`
	Retries  int `json:"retries"`
}

// RunResult is the outcome of one reconciliation pass over a batch.
type RunResult struct {
	PerOrder []ApplyResult `json:"per_order"`
	Totals   Totals        `json:"totals"`
}

// Add folds one order result into the run.
func (rr *RunResult) Add(r ApplyResult) {
	rr.PerOrder = append(rr.PerOrder, r)
	rr.Totals.Orders++
	rr.Totals.Created += len(r.CreatedKeys)
	rr.Totals.Updated += len(r.UpdatedKeys)
	rr.Totals.Noops += r.NoopCount
	rr.Totals.Warnings += len(r.Warnings)
	rr.Totals.Retries += r.RetryCount
	if r.Failed() {
		rr.Totals.Failed++
	}
}
