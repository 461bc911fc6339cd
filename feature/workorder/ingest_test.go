package workorder_test

import (
	"context"
	"path/filepath"
	"testing"

	"order-sync/core/identity"
	"order-sync/feature/workorder"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

func writeWorkbook(t *testing.T, dir, name string, rows [][]string) string {
	t.Helper()
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		for j, cell := range row {
			addr, err := excelize.CoordinatesToCellName(j+1, i+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue(sheet, addr, cell))
		}
	}
	path := filepath.Join(dir, name)
	require.NoError(t, f.SaveAs(path))
	return path
}

func newIngestor(t *testing.T) (*workorder.Ingestor, *workorder.RowStore) {
	t.Helper()
	store := newRowStore(t)
	ids, err := identity.NewCatalog(filepath.Join(t.TempDir(), "catalog.json"))
	require.NoError(t, err)
	return workorder.NewIngestor(store, ids, zap.NewNop()), store
}

func TestIngestFile(t *testing.T) {
	ing, store := newIngestor(t)
	ctx := context.Background()

	path := writeWorkbook(t, t.TempDir(), "orders.xlsx", [][]string{
		{workorder.ColProduct, workorder.ColOrderID, workorder.ColWPName, workorder.ColQuantity, workorder.ColUpdatedDate},
		{"Install", "WPO-1", "Fiber install", "2", "2026-08-01"},
		{"Install", "WPO-2", "Cabinet swap", "1", "2026-08-02"},
		{"", "", "", "", ""},
	})

	res, err := ing.IngestFile(ctx, path)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, 2, res.Rows)
	assert.NotEmpty(t, res.BatchID)

	records, err := store.LoadRecords(ctx, "Install")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "WPO-1", records[0].OrderID)
	assert.Equal(t, "Fiber install", records[0].Col(workorder.ColWPName))
	assert.Equal(t, "2026-08-01", records[0].RowAt.Format("2006-01-02"))
}

func TestIngestFileDedupesByContent(t *testing.T) {
	ing, store := newIngestor(t)
	ctx := context.Background()
	dir := t.TempDir()

	rows := [][]string{
		{workorder.ColProduct, workorder.ColOrderID, workorder.ColWPName},
		{"Install", "WPO-1", "Fiber install"},
	}
	first := writeWorkbook(t, dir, "export-1.xlsx", rows)

	res, err := ing.IngestFile(ctx, first)
	require.NoError(t, err)
	require.False(t, res.Skipped)

	// same file again: skipped, no new rows
	res2, err := ing.IngestFile(ctx, first)
	require.NoError(t, err)
	assert.True(t, res2.Skipped)
	assert.Equal(t, res.FileHash, res2.FileHash)

	records, err := store.LoadRecords(ctx, "Install")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestIngestFileRaggedRows(t *testing.T) {
	ing, _ := newIngestor(t)

	// short rows and cells past the header width must not panic
	path := writeWorkbook(t, t.TempDir(), "ragged.xlsx", [][]string{
		{workorder.ColProduct, workorder.ColOrderID},
		{"Install", "WPO-1", "stray cell"},
		{"Install"},
	})

	res, err := ing.IngestFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Rows)
}

func TestIngestFileMissing(t *testing.T) {
	ing, _ := newIngestor(t)
	_, err := ing.IngestFile(context.Background(), "/no/such/file.xlsx")
	assert.Error(t, err)
}
