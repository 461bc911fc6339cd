package identity

import (
	"context"
	"errors"
	"time"
)

// Kind distinguishes the two item shapes tracked per logical order.
type Kind string

const (
	// KindContainer is the one parent item of a logical order.
	KindContainer Kind = "container"
	// KindUnit is one of the quantity-driven child items.
	KindUnit Kind = "unit"
)

// ErrNotFound reports that no mapping exists for the requested identity.
// Any other error from a Store means the store itself failed; callers must
// not treat it as "not found" or they risk creating duplicate remote items.
var ErrNotFound = errors.New("identity: mapping not found")

// Mapping links a logical identity to a remote item.
type Mapping struct {
	RemoteKey   string
	Fingerprint string
	RecordedAt  time.Time
}

// Store persists logical-key → remote-key mappings with append-only,
// last-write-wins semantics: the newest record for a given identity wins on
// read and concurrent point writes never merge. Two backends exist: a
// database store (multi-process safe) and a local file catalog
// (single-process only); the executor must not assume which is active.
type Store interface {
	// ResolveContainer returns the remote key for an order's container item.
	ResolveContainer(ctx context.Context, project, orderID string) (string, error)
	// ResolveUnit returns the remote key for one unit instance (1-based).
	ResolveUnit(ctx context.Context, project, orderID string, instance int) (string, error)
	// RegisterContainer records a container mapping; fingerprint may be empty.
	RegisterContainer(ctx context.Context, project, orderID, remoteKey, fingerprint string) error
	// RegisterUnit records a unit mapping; fingerprint may be empty.
	RegisterUnit(ctx context.Context, project, orderID string, instance int, remoteKey, fingerprint string) error
	// LastFingerprint returns the fingerprint recorded with the newest
	// mapping for the identity; instance is ignored for containers.
	LastFingerprint(ctx context.Context, project string, kind Kind, orderID string, instance int) (string, error)

	// SourceHash returns the per-order source fingerprint recorded after the
	// last successful apply, used for delta pre-filtering before compilation.
	SourceHash(ctx context.Context, project, orderID string) (string, error)
	// SetSourceHash records the per-order source fingerprint.
	SetSourceHash(ctx context.Context, project, orderID, hash string) error

	// Checkpoint returns the last processed source-row timestamp of an order.
	Checkpoint(ctx context.Context, project, orderID string) (time.Time, error)
	// SetCheckpoint records the last processed source-row timestamp.
	SetCheckpoint(ctx context.Context, project, orderID string, ts time.Time) error
	// AllCheckpoints returns every order checkpoint of a project in one
	// query, avoiding per-order round trips on large batches.
	AllCheckpoints(ctx context.Context, project string) (map[string]time.Time, error)

	// HasIngestedFile reports whether a source file hash was ingested before.
	HasIngestedFile(ctx context.Context, fileHash string) (bool, error)
	// RecordIngestion logs one ingested source file.
	RecordIngestion(ctx context.Context, batchID, fileHash, filename string, rows int) error
}
