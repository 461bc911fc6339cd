package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ItemMapping is one append-only identity record. Rows are never updated in
// place; reads take the newest record for an identity.
type ItemMapping struct {
	ID          uint   `gorm:"primaryKey"`
	Project     string `gorm:"size:64;index:idx_item_identity,priority:1"`
	Kind        string `gorm:"size:16;index:idx_item_identity,priority:2"`
	OrderID     string `gorm:"size:64;index:idx_item_identity,priority:3"`
	Instance    int    `gorm:"index:idx_item_identity,priority:4"`
	RemoteKey   string `gorm:"size:64"`
	Fingerprint string `gorm:"size:64"`
	RecordedAt  time.Time
}

// OrderCheckpoint records the last processed source-row timestamp per order.
type OrderCheckpoint struct {
	ID         uint   `gorm:"primaryKey"`
	Project    string `gorm:"size:64;index:idx_checkpoint,priority:1"`
	OrderID    string `gorm:"size:64;index:idx_checkpoint,priority:2"`
	LastRowAt  time.Time
	RecordedAt time.Time
}

// SourceHash records the per-order source fingerprint.
type SourceHash struct {
	ID         uint   `gorm:"primaryKey"`
	Project    string `gorm:"size:64;index:idx_srchash,priority:1"`
	OrderID    string `gorm:"size:64;index:idx_srchash,priority:2"`
	Hash       string `gorm:"size:64"`
	RecordedAt time.Time
}

// IngestionRun records one ingested source file.
type IngestionRun struct {
	ID         uint   `gorm:"primaryKey"`
	BatchID    string `gorm:"size:64;index"`
	FileHash   string `gorm:"size:64;index"`
	Filename   string `gorm:"size:255"`
	Rows       int
	RecordedAt time.Time
}

// DBStore is the durable, multi-process-safe identity backend on top of a
// relational database. All writes are inserts, so concurrent order workers
// never contend on the same row.
type DBStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewDBStore creates a database-backed store and migrates its tables.
func NewDBStore(db *gorm.DB) (*DBStore, error) {
	if err := db.AutoMigrate(&ItemMapping{}, &OrderCheckpoint{}, &SourceHash{}, &IngestionRun{}); err != nil {
		return nil, fmt.Errorf("migrate identity tables: %w", err)
	}
	return &DBStore{db: db, now: time.Now}, nil
}

func (s *DBStore) latest(ctx context.Context, project string, kind Kind, orderID string, instance int) (*ItemMapping, error) {
	var m ItemMapping
	err := s.db.WithContext(ctx).
		Where("project = ? AND kind = ? AND order_id = ? AND instance = ?", project, string(kind), orderID, instance).
		Order("recorded_at DESC, id DESC").
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("identity lookup failed: %w", err)
	}
	return &m, nil
}

func (s *DBStore) ResolveContainer(ctx context.Context, project, orderID string) (string, error) {
	m, err := s.latest(ctx, project, KindContainer, orderID, 0)
	if err != nil {
		return "", err
	}
	return m.RemoteKey, nil
}

func (s *DBStore) ResolveUnit(ctx context.Context, project, orderID string, instance int) (string, error) {
	m, err := s.latest(ctx, project, KindUnit, orderID, instance)
	if err != nil {
		return "", err
	}
	return m.RemoteKey, nil
}

func (s *DBStore) register(ctx context.Context, project string, kind Kind, orderID string, instance int, remoteKey, fingerprint string) error {
	rec := ItemMapping{
		Project:     project,
		Kind:        string(kind),
		OrderID:     orderID,
		Instance:    instance,
		RemoteKey:   remoteKey,
		Fingerprint: fingerprint,
		RecordedAt:  s.now(),
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("identity register failed: %w", err)
	}
	return nil
}

func (s *DBStore) RegisterContainer(ctx context.Context, project, orderID, remoteKey, fingerprint string) error {
	return s.register(ctx, project, KindContainer, orderID, 0, remoteKey, fingerprint)
}

func (s *DBStore) RegisterUnit(ctx context.Context, project, orderID string, instance int, remoteKey, fingerprint string) error {
	return s.register(ctx, project, KindUnit, orderID, instance, remoteKey, fingerprint)
}

func (s *DBStore) LastFingerprint(ctx context.Context, project string, kind Kind, orderID string, instance int) (string, error) {
	if kind == KindContainer {
		instance = 0
	}
	m, err := s.latest(ctx, project, kind, orderID, instance)
	if err != nil {
		return "", err
	}
	return m.Fingerprint, nil
}

func (s *DBStore) SourceHash(ctx context.Context, project, orderID string) (string, error) {
	var rec SourceHash
	err := s.db.WithContext(ctx).
		Where("project = ? AND order_id = ?", project, orderID).
		Order("recorded_at DESC, id DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("source hash lookup failed: %w", err)
	}
	return rec.Hash, nil
}

func (s *DBStore) SetSourceHash(ctx context.Context, project, orderID, hash string) error {
	rec := SourceHash{Project: project, OrderID: orderID, Hash: hash, RecordedAt: s.now()}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("source hash write failed: %w", err)
	}
	return nil
}

func (s *DBStore) Checkpoint(ctx context.Context, project, orderID string) (time.Time, error) {
	var rec OrderCheckpoint
	err := s.db.WithContext(ctx).
		Where("project = ? AND order_id = ?", project, orderID).
		Order("recorded_at DESC, id DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("checkpoint lookup failed: %w", err)
	}
	return rec.LastRowAt, nil
}

func (s *DBStore) SetCheckpoint(ctx context.Context, project, orderID string, ts time.Time) error {
	rec := OrderCheckpoint{Project: project, OrderID: orderID, LastRowAt: ts, RecordedAt: s.now()}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("checkpoint write failed: %w", err)
	}
	return nil
}

func (s *DBStore) AllCheckpoints(ctx context.Context, project string) (map[string]time.Time, error) {
	var recs []OrderCheckpoint
	err := s.db.WithContext(ctx).
		Where("project = ?", project).
		Order("recorded_at DESC, id DESC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("checkpoint scan failed: %w", err)
	}
	out := make(map[string]time.Time, len(recs))
	for _, rec := range recs {
		// Newest first; keep the first record seen per order.
		if _, ok := out[rec.OrderID]; !ok {
			out[rec.OrderID] = rec.LastRowAt
		}
	}
	return out, nil
}

func (s *DBStore) HasIngestedFile(ctx context.Context, fileHash string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&IngestionRun{}).
		Where("file_hash = ?", fileHash).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("ingestion lookup failed: %w", err)
	}
	return count > 0, nil
}

func (s *DBStore) RecordIngestion(ctx context.Context, batchID, fileHash, filename string, rows int) error {
	rec := IngestionRun{BatchID: batchID, FileHash: fileHash, Filename: filename, Rows: rows, RecordedAt: s.now()}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("ingestion write failed: %w", err)
	}
	return nil
}
