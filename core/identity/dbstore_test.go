package identity

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func setupMockStore(t *testing.T) (*DBStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to open mock sql db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	dialector := mysql.New(mysql.Config{
		Conn:                      db,
		SkipInitializeWithVersion: true,
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to open gorm db: %v", err)
	}

	return &DBStore{db: gormDB, now: func() time.Time { return time.Unix(1700000000, 0) }}, mock
}

func TestDBStoreResolveContainer(t *testing.T) {
	store, mock := setupMockStore(t)

	rows := sqlmock.NewRows([]string{"id", "project", "kind", "order_id", "instance", "remote_key", "fingerprint", "recorded_at"}).
		AddRow(7, "PROJ", "container", "WPO-1", 0, "1042", "abc123", time.Unix(1690000000, 0))

	mock.ExpectQuery("SELECT \\* FROM `item_mappings`").WillReturnRows(rows)

	key, err := store.ResolveContainer(context.Background(), "PROJ", "WPO-1")
	assert.NoError(t, err)
	assert.Equal(t, "1042", key)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBStoreResolveContainerNotFound(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectQuery("SELECT \\* FROM `item_mappings`").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.ResolveContainer(context.Background(), "PROJ", "WPO-404")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDBStoreResolveContainerBackendError(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectQuery("SELECT \\* FROM `item_mappings`").
		WillReturnError(assert.AnError)

	_, err := store.ResolveContainer(context.Background(), "PROJ", "WPO-1")
	require.Error(t, err)
	// A failing backend is not the same as a missing mapping.
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestDBStoreRegisterUnit(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `item_mappings`").
		WithArgs("PROJ", "unit", "WPO-1", 2, "1043", "def456", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := store.RegisterUnit(context.Background(), "PROJ", "WPO-1", 2, "1043", "def456")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBStoreLastFingerprintIgnoresContainerInstance(t *testing.T) {
	store, mock := setupMockStore(t)

	rows := sqlmock.NewRows([]string{"id", "project", "kind", "order_id", "instance", "remote_key", "fingerprint", "recorded_at"}).
		AddRow(3, "PROJ", "container", "WPO-9", 0, "900", "fp-latest", time.Unix(1690000000, 0))

	mock.ExpectQuery("SELECT \\* FROM `item_mappings`").
		WithArgs("PROJ", "container", "WPO-9", 0, 1).
		WillReturnRows(rows)

	fp, err := store.LastFingerprint(context.Background(), "PROJ", KindContainer, "WPO-9", 5)
	assert.NoError(t, err)
	assert.Equal(t, "fp-latest", fp)
}

func TestDBStoreAllCheckpointsKeepsNewest(t *testing.T) {
	store, mock := setupMockStore(t)

	newer := time.Unix(1700000100, 0)
	older := time.Unix(1700000000, 0)
	rows := sqlmock.NewRows([]string{"id", "project", "order_id", "last_row_at", "recorded_at"}).
		AddRow(5, "PROJ", "WPO-1", newer, newer).
		AddRow(4, "PROJ", "WPO-1", older, older).
		AddRow(3, "PROJ", "WPO-2", older, older)

	mock.ExpectQuery("SELECT \\* FROM `order_checkpoints`").WillReturnRows(rows)

	cps, err := store.AllCheckpoints(context.Background(), "PROJ")
	require.NoError(t, err)
	assert.Len(t, cps, 2)
	assert.True(t, cps["WPO-1"].Equal(newer))
	assert.True(t, cps["WPO-2"].Equal(older))
}

func TestDBStoreHasIngestedFile(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `ingestion_runs`").
		WithArgs("hash-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	seen, err := store.HasIngestedFile(context.Background(), "hash-1")
	assert.NoError(t, err)
	assert.True(t, seen)
}
