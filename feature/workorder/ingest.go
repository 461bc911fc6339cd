package workorder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"order-sync/core/identity"
)

// IngestResult describes one workbook ingestion.
type IngestResult struct {
	BatchID  string
	FileHash string
	Rows     int
	Skipped  bool
}

// Ingestor reads work-order export workbooks into the row store, skipping
// files whose content was ingested before.
type Ingestor struct {
	rows *RowStore
	ids  identity.Store
	log  *zap.Logger
	now  func() time.Time
}

// NewIngestor creates a workbook ingestor.
func NewIngestor(rows *RowStore, ids identity.Store, log *zap.Logger) *Ingestor {
	return &Ingestor{rows: rows, ids: ids, log: log, now: time.Now}
}

// IngestFile reads one xlsx workbook. The file's content hash dedupes repeat
// ingestion of the same export.
func (in *Ingestor) IngestFile(ctx context.Context, path string) (IngestResult, error) {
	hash, err := fileHash(path)
	if err != nil {
		return IngestResult{}, err
	}

	seen, err := in.ids.HasIngestedFile(ctx, hash)
	if err != nil {
		return IngestResult{}, fmt.Errorf("check ingestion history: %w", err)
	}
	if seen {
		in.log.Info("workbook already ingested, skipping",
			zap.String("file", filepath.Base(path)),
			zap.String("hash", hash[:12]))
		return IngestResult{FileHash: hash, Skipped: true}, nil
	}

	records, err := in.readWorkbook(path)
	if err != nil {
		return IngestResult{}, err
	}

	batchID := uuid.NewString()
	if err := in.rows.SaveRows(ctx, batchID, records); err != nil {
		return IngestResult{}, fmt.Errorf("save rows: %w", err)
	}
	if err := in.ids.RecordIngestion(ctx, batchID, hash, filepath.Base(path), len(records)); err != nil {
		return IngestResult{}, fmt.Errorf("record ingestion: %w", err)
	}

	in.log.Info("workbook ingested",
		zap.String("file", filepath.Base(path)),
		zap.String("batch", batchID),
		zap.Int("rows", len(records)))
	return IngestResult{BatchID: batchID, FileHash: hash, Rows: len(records)}, nil
}

// readWorkbook parses the first sheet: header row names the columns, every
// following row becomes one SourceRecord.
func (in *Ingestor) readWorkbook(path string) ([]SourceRecord, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook %s has no sheets", filepath.Base(path))
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	if len(rows) < 2 {
		return nil, nil
	}

	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.TrimSpace(h)
	}

	records := make([]SourceRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		cols := make(map[string]string, len(headers))
		empty := true
		for i, cell := range row {
			if i >= len(headers) || headers[i] == "" {
				continue
			}
			v := strings.TrimSpace(cell)
			if v == "" {
				continue
			}
			cols[headers[i]] = v
			empty = false
		}
		if empty {
			continue
		}
		rec := SourceRecord{
			Product: strings.TrimSpace(cols[ColProduct]),
			OrderID: strings.TrimSpace(cols[ColOrderID]),
			RowAt:   in.rowTime(cols),
			Columns: cols,
		}
		records = append(records, rec)
	}
	return records, nil
}

// rowTime derives the row's timestamp from its update column, falling back
// to ingestion time for rows without one.
func (in *Ingestor) rowTime(cols map[string]string) time.Time {
	raw := strings.TrimSpace(cols[ColUpdatedDate])
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return in.now().UTC()
}

func fileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
