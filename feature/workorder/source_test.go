package workorder_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"order-sync/feature/workorder"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newRowStore(t *testing.T) *workorder.RowStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "rows.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	store, err := workorder.NewRowStore(db)
	require.NoError(t, err)
	return store
}

func rowAt(day int) time.Time {
	return time.Date(2026, 8, day, 10, 0, 0, 0, time.UTC)
}

func TestRowStoreRoundTrip(t *testing.T) {
	store := newRowStore(t)
	ctx := context.Background()

	records := []workorder.SourceRecord{
		{
			Product: "Install", OrderID: "WPO-1", RowAt: rowAt(1),
			Columns: map[string]string{workorder.ColWPName: "Fiber install", workorder.ColQuantity: "2"},
		},
		{
			Product: "Install", OrderID: "WPO-2", RowAt: rowAt(2),
			Columns: map[string]string{workorder.ColWPName: "Survey"},
		},
		{
			Product: "Survey", OrderID: "WPO-9", RowAt: rowAt(3),
			Columns: map[string]string{workorder.ColWPName: "Site survey"},
		},
	}
	require.NoError(t, store.SaveRows(ctx, "batch-1", records))

	loaded, err := store.LoadRecords(ctx, "Install")
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "WPO-1", loaded[0].OrderID)
	assert.Equal(t, "batch-1", loaded[0].BatchID)
	assert.Equal(t, "Fiber install", loaded[0].Col(workorder.ColWPName))
	assert.True(t, loaded[0].RowAt.Equal(rowAt(1)))

	products, err := store.Products(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Install", "Survey"}, products)
}

func TestRowStoreAllRowTimes(t *testing.T) {
	store := newRowStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveRows(ctx, "batch-1", []workorder.SourceRecord{
		{Product: "Install", OrderID: "WPO-1", RowAt: rowAt(1), Columns: map[string]string{"a": "1"}},
		{Product: "Install", OrderID: "WPO-1", RowAt: rowAt(5), Columns: map[string]string{"a": "2"}},
		{Product: "Install", OrderID: "WPO-2", RowAt: rowAt(3), Columns: map[string]string{"a": "3"}},
		{Product: "Survey", OrderID: "WPO-9", RowAt: rowAt(9), Columns: map[string]string{"a": "4"}},
	}))

	times, err := store.AllRowTimes(ctx, "Install")
	require.NoError(t, err)
	require.Len(t, times, 2)
	assert.True(t, times["WPO-1"].Equal(rowAt(5)), "keeps the newest row time per order")
	assert.True(t, times["WPO-2"].Equal(rowAt(3)))
}

func TestRowStoreSaveEmptyBatch(t *testing.T) {
	store := newRowStore(t)
	assert.NoError(t, store.SaveRows(context.Background(), "batch-1", nil))
}
