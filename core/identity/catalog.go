package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// catalogEntry is one persisted mapping in the file catalog.
type catalogEntry struct {
	RemoteKey   string    `json:"remote_key"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// catalogData is the on-disk shape of the catalog file.
type catalogData struct {
	Containers  map[string]catalogEntry `json:"containers"`
	Units       map[string]catalogEntry `json:"units"`
	SourceHash  map[string]string       `json:"source_hashes"`
	Checkpoints map[string]time.Time    `json:"checkpoints"`
	Ingested    map[string]string       `json:"ingested_files"`
}

// Catalog is the single-process identity backend: a JSON file rewritten on
// every registration. Suitable for local runs without a database; concurrent
// processes must use DBStore instead.
type Catalog struct {
	mu   sync.Mutex
	path string
	data catalogData
	now  func() time.Time
}

// NewCatalog loads (or initializes) a file catalog at path.
func NewCatalog(path string) (*Catalog, error) {
	c := &Catalog{path: path, now: time.Now}
	c.data = catalogData{
		Containers:  map[string]catalogEntry{},
		Units:       map[string]catalogEntry{},
		SourceHash:  map[string]string{},
		Checkpoints: map[string]time.Time{},
		Ingested:    map[string]string{},
	}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	if err := json.Unmarshal(raw, &c.data); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return c, nil
}

// flush rewrites the catalog file. Called with the mutex held.
func (c *Catalog) flush() error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("create catalog dir: %w", err)
	}
	raw, err := json.MarshalIndent(c.data, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(c.path, raw, 0o644); err != nil {
		return fmt.Errorf("write catalog: %w", err)
	}
	return nil
}

func containerKey(project, orderID string) string {
	return project + "|" + orderID
}

func unitKey(project, orderID string, instance int) string {
	return project + "|" + orderID + "|" + strconv.Itoa(instance)
}

func (c *Catalog) ResolveContainer(_ context.Context, project, orderID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.data.Containers[containerKey(project, orderID)]
	if !ok {
		return "", ErrNotFound
	}
	return e.RemoteKey, nil
}

func (c *Catalog) ResolveUnit(_ context.Context, project, orderID string, instance int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.data.Units[unitKey(project, orderID, instance)]
	if !ok {
		return "", ErrNotFound
	}
	return e.RemoteKey, nil
}

func (c *Catalog) RegisterContainer(_ context.Context, project, orderID, remoteKey, fingerprint string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data.Containers[containerKey(project, orderID)] = catalogEntry{
		RemoteKey:   remoteKey,
		Fingerprint: fingerprint,
		RecordedAt:  c.now(),
	}
	return c.flush()
}

func (c *Catalog) RegisterUnit(_ context.Context, project, orderID string, instance int, remoteKey, fingerprint string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data.Units[unitKey(project, orderID, instance)] = catalogEntry{
		RemoteKey:   remoteKey,
		Fingerprint: fingerprint,
		RecordedAt:  c.now(),
	}
	return c.flush()
}

func (c *Catalog) LastFingerprint(_ context.Context, project string, kind Kind, orderID string, instance int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var (
		e  catalogEntry
		ok bool
	)
	if kind == KindContainer {
		e, ok = c.data.Containers[containerKey(project, orderID)]
	} else {
		e, ok = c.data.Units[unitKey(project, orderID, instance)]
	}
	if !ok {
		return "", ErrNotFound
	}
	return e.Fingerprint, nil
}

func (c *Catalog) SourceHash(_ context.Context, project, orderID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.data.SourceHash[containerKey(project, orderID)]
	if !ok {
		return "", ErrNotFound
	}
	return h, nil
}

func (c *Catalog) SetSourceHash(_ context.Context, project, orderID, hash string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data.SourceHash[containerKey(project, orderID)] = hash
	return c.flush()
}

func (c *Catalog) Checkpoint(_ context.Context, project, orderID string) (time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts, ok := c.data.Checkpoints[containerKey(project, orderID)]
	if !ok {
		return time.Time{}, ErrNotFound
	}
	return ts, nil
}

func (c *Catalog) SetCheckpoint(_ context.Context, project, orderID string, ts time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data.Checkpoints[containerKey(project, orderID)] = ts
	return c.flush()
}

func (c *Catalog) AllCheckpoints(_ context.Context, project string) (map[string]time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := map[string]time.Time{}
	prefix := project + "|"
	for k, ts := range c.data.Checkpoints {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			out[k[len(prefix):]] = ts
		}
	}
	return out, nil
}

func (c *Catalog) HasIngestedFile(_ context.Context, fileHash string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data.Ingested[fileHash]
	return ok, nil
}

func (c *Catalog) RecordIngestion(_ context.Context, batchID, fileHash, filename string, rows int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data.Ingested[fileHash] = fmt.Sprintf("%s:%s:%d", batchID, filename, rows)
	return c.flush()
}
