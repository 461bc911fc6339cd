package workorder

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// SourceRow is the persisted form of one ingested sheet row.
type SourceRow struct {
	ID      uint      `gorm:"primaryKey"`
	BatchID string    `gorm:"column:batch_id;index"`
	Product string    `gorm:"column:product;index"`
	OrderID string    `gorm:"column:order_id;index"`
	RowAt   time.Time `gorm:"column:row_at"`
	// Columns is the raw cell map encoded as JSON.
	Columns string `gorm:"column:columns;type:text"`
}

// TableName overrides the table name for source rows.
func (SourceRow) TableName() string {
	return "source_rows"
}

// RowStore persists ingested source rows and serves them back per product.
type RowStore struct {
	db *gorm.DB
}

// NewRowStore migrates the source row schema and returns the store.
func NewRowStore(db *gorm.DB) (*RowStore, error) {
	if err := db.AutoMigrate(&SourceRow{}); err != nil {
		return nil, fmt.Errorf("migrate source rows: %w", err)
	}
	return &RowStore{db: db}, nil
}

// SaveRows persists one ingestion batch in a single transaction.
func (s *RowStore) SaveRows(ctx context.Context, batchID string, records []SourceRecord) error {
	rows := make([]SourceRow, 0, len(records))
	for _, r := range records {
		raw, err := json.Marshal(r.Columns)
		if err != nil {
			return fmt.Errorf("encode row columns: %w", err)
		}
		rows = append(rows, SourceRow{
			BatchID: batchID,
			Product: r.Product,
			OrderID: r.OrderID,
			RowAt:   r.RowAt,
			Columns: string(raw),
		})
	}
	if len(rows) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(rows, 200).Error
	})
}

// LoadRecords returns every stored row of a product, newest batch included.
func (s *RowStore) LoadRecords(ctx context.Context, product string) ([]SourceRecord, error) {
	var rows []SourceRow
	if err := s.db.WithContext(ctx).
		Where("product = ?", product).
		Order("row_at, id").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load source rows: %w", err)
	}

	records := make([]SourceRecord, 0, len(rows))
	for _, row := range rows {
		var cols map[string]string
		if err := json.Unmarshal([]byte(row.Columns), &cols); err != nil {
			return nil, fmt.Errorf("decode row %d: %w", row.ID, err)
		}
		records = append(records, SourceRecord{
			Product: row.Product,
			OrderID: row.OrderID,
			BatchID: row.BatchID,
			RowAt:   row.RowAt,
			Columns: cols,
		})
	}
	return records, nil
}

// AllRowTimes returns the newest row timestamp per order id for a product in
// one query, so delta pre-filtering never goes row by row.
func (s *RowStore) AllRowTimes(ctx context.Context, product string) (map[string]time.Time, error) {
	type orderTime struct {
		OrderID string
		Last    time.Time
	}
	var rows []orderTime
	if err := s.db.WithContext(ctx).
		Model(&SourceRow{}).
		Select("order_id, MAX(row_at) AS last").
		Where("product = ?", product).
		Group("order_id").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("load row times: %w", err)
	}

	out := make(map[string]time.Time, len(rows))
	for _, r := range rows {
		out[r.OrderID] = r.Last
	}
	return out, nil
}

// Products returns the distinct products present in the store.
func (s *RowStore) Products(ctx context.Context) ([]string, error) {
	var products []string
	if err := s.db.WithContext(ctx).
		Model(&SourceRow{}).
		Distinct("product").
		Where("product <> ''").
		Order("product").
		Pluck("product", &products).Error; err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}
