package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"order-sync/core/fields"
)

// Project is a resolved tracker project.
type Project struct {
	ID         string
	Identifier string
	Name       string
}

// ItemType is a work item type available in a project (e.g. Epic, User story).
type ItemType struct {
	ID   string
	Name string
}

// Status is a built-in workflow status.
type Status struct {
	ID   string
	Name string
	Href string
}

// Item is the tracker's current representation of a work item. Version is
// the optimistic-concurrency token that must be echoed back on update.
type Item struct {
	Key         string
	Version     int
	ProjectID   string
	TypeName    string
	Summary     string
	Description string
	DueDate     string
	Fields      fields.Map
}

// Payload is an outgoing create or update body. Empty members are omitted
// from the wire payload.
type Payload struct {
	ProjectID   string
	TypeID      string
	Summary     string
	Description string
	DueDate     string
	ParentKey   string
	Fields      fields.Map
}

// SearchQuery filters a work item search. SummaryEquals is tried before
// SummaryContains by callers; FieldEquals matches custom field values.
type SearchQuery struct {
	ProjectID       string
	TypeID          string
	SummaryEquals   string
	SummaryContains string
	FieldEquals     map[string]string
	PageSize        int
}

// Client is the remote tracker surface the reconciliation executor depends
// on. Implementations must be safe for concurrent use.
type Client interface {
	// ResolveProject looks up a project by identifier or name.
	ResolveProject(ctx context.Context, key string) (*Project, error)
	// ListTypes returns the item types of a project keyed by lowercased name.
	ListTypes(ctx context.Context, projectID string) (map[string]ItemType, error)
	// CreateItem creates a work item and returns it with its remote key.
	CreateItem(ctx context.Context, p Payload) (*Item, error)
	// UpdateItem patches a work item; version must match the remote lock
	// version or the call fails with a conflict.
	UpdateItem(ctx context.Context, key string, version int, p Payload) (*Item, error)
	// GetItem fetches a single work item by remote key.
	GetItem(ctx context.Context, key string) (*Item, error)
	// SearchItems returns items matching the query.
	SearchItems(ctx context.Context, q SearchQuery) ([]Item, error)
	// ListCustomFields maps lowercased display names to remote field ids.
	ListCustomFields(ctx context.Context) (map[string]string, error)
	// ListCustomOptions maps lowercased option titles to option hrefs.
	ListCustomOptions(ctx context.Context) (map[string]string, error)
	// ListStatuses maps lowercased status names to statuses.
	ListStatuses(ctx context.Context) (map[string]Status, error)
}

// APIError is a non-2xx tracker response. RetryAfter carries the server's
// rate-limit hint when present.
type APIError struct {
	Status     int
	Identifier string
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Identifier != "" {
		return fmt.Sprintf("tracker: %d %s: %s", e.Status, e.Identifier, e.Message)
	}
	return fmt.Sprintf("tracker: %d: %s", e.Status, e.Message)
}

// IsConflict reports a version conflict (remote lock version moved).
func IsConflict(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Status == 409
}

// IsRateLimited reports a 429 response.
func IsRateLimited(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Status == 429
}

// IsNotFound reports that the target item no longer exists. Some servers
// answer 404, others 422 with a not-found error identifier.
func IsNotFound(err error) bool {
	var ae *APIError
	if !errors.As(err, &ae) {
		return false
	}
	if ae.Status == 404 {
		return true
	}
	return strings.Contains(ae.Identifier, "NotFound") ||
		strings.Contains(ae.Message, "not be found") ||
		strings.Contains(ae.Message, "deleted")
}

// IsRetryable reports whether the failure is worth retrying with backoff:
// rate limits and server-side errors. Transport failures are not retryable
// here; the executor fails the order instead of risking duplicate creates.
func IsRetryable(err error) bool {
	var ae *APIError
	if !errors.As(err, &ae) {
		return false
	}
	return ae.Status == 429 || (ae.Status >= 500 && ae.Status < 600)
}

// RetryAfterHint extracts the server retry-after hint, zero when absent.
func RetryAfterHint(err error) time.Duration {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.RetryAfter
	}
	return 0
}
