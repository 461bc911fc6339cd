package workorder

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Source column names as they appear in the work-order export sheets.
const (
	ColProduct       = "Product"
	ColOrderID       = "WP Order ID"
	ColProjectName   = "Project Name"
	ColDomain        = "Domain"
	ColCustomer      = "Customer"
	ColBPID          = "BP ID"
	ColWPID          = "WP ID"
	ColWPName        = "WP Name"
	ColOrderStatus   = "WP Order Status"
	ColQuantity      = "WP Quantity"
	ColEmployeeName  = "Employee Name"
	ColSTD           = "STD"
	ColReadinessDate = "WP Readiness Date"
	ColRequestedDate = "WP Requested Delivery Date"
	ColAckDate       = "Acknowledgement Date"
	ColAddedDate     = "Added Date"
	ColApprovedDate  = "Approved Date"
	ColCancelledDate = "Cancelled Date"
	ColPOStartDate   = "PO StartDate"
	ColPOEndDate     = "PO EndDate"
	ColSubmittedDate = "Submitted Date"
	ColUpdatedDate   = "Updated Date"
)

// SourceRecord is one input row, immutable once read. Columns carries every
// cell by its sheet header.
type SourceRecord struct {
	Product string
	OrderID string
	BatchID string
	RowAt   time.Time
	Columns map[string]string
}

// Col returns a trimmed cell value, empty when the column is absent.
func (r SourceRecord) Col(name string) string {
	return strings.TrimSpace(r.Columns[name])
}

// digest is a canonical encoding of the row used for ordering and hashing.
func (r SourceRecord) digest() string {
	keys := make([]string, 0, len(r.Columns))
	for k := range r.Columns {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		v := strings.TrimSpace(r.Columns[k])
		if v == "" {
			continue
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(v)
		b.WriteByte('\n')
	}
	return b.String()
}

// LogicalOrder is the set of records sharing one (product, order id) key.
// Records are kept in a canonical order so derived plans never depend on the
// order rows arrived in.
type LogicalOrder struct {
	Product string
	OrderID string
	Records []SourceRecord
}

// Group buckets records into logical orders. Rows without an order id are
// dropped. Output is sorted by (product, order id); rows within an order are
// sorted by row timestamp then content, so grouping is deterministic for any
// input permutation.
func Group(records []SourceRecord) []LogicalOrder {
	type key struct{ product, orderID string }
	buckets := map[key][]SourceRecord{}
	for _, r := range records {
		orderID := strings.TrimSpace(r.OrderID)
		if orderID == "" {
			orderID = r.Col(ColOrderID)
		}
		if orderID == "" {
			continue
		}
		product := strings.TrimSpace(r.Product)
		if product == "" {
			product = r.Col(ColProduct)
		}
		r.OrderID = orderID
		r.Product = product
		k := key{product, orderID}
		buckets[k] = append(buckets[k], r)
	}

	orders := make([]LogicalOrder, 0, len(buckets))
	for k, recs := range buckets {
		sort.SliceStable(recs, func(i, j int) bool {
			if !recs[i].RowAt.Equal(recs[j].RowAt) {
				return recs[i].RowAt.Before(recs[j].RowAt)
			}
			return recs[i].digest() < recs[j].digest()
		})
		orders = append(orders, LogicalOrder{Product: k.product, OrderID: k.orderID, Records: recs})
	}
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].Product != orders[j].Product {
			return orders[i].Product < orders[j].Product
		}
		return orders[i].OrderID < orders[j].OrderID
	})
	return orders
}

// FirstNonEmpty returns the first non-empty cell for a column across the
// order's records. Picking per column avoids blanks from a sparse last row.
func (o *LogicalOrder) FirstNonEmpty(col string) string {
	for _, r := range o.Records {
		if v := r.Col(col); v != "" {
			return v
		}
	}
	return ""
}

// FirstNumber returns the first parseable numeric cell for a column.
func (o *LogicalOrder) FirstNumber(col string) (float64, bool) {
	for _, r := range o.Records {
		v := r.Col(col)
		if v == "" {
			continue
		}
		if n, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", ""), 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

// FirstDate returns the first parseable date cell for a column in ISO form.
func (o *LogicalOrder) FirstDate(col string) string {
	for _, r := range o.Records {
		if iso := toISO(r.Col(col)); iso != "" {
			return iso
		}
	}
	return ""
}

// Quantity is the unit fan-out count: the maximum quantity observed across
// the order's records, never less than 1. Garbage parses as 1.
func (o *LogicalOrder) Quantity() int {
	max := 0
	for _, r := range o.Records {
		v := r.Col(ColQuantity)
		if v == "" {
			continue
		}
		n, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", ""), 64)
		if err != nil {
			continue
		}
		if int(n) > max {
			max = int(n)
		}
	}
	if max < 1 {
		return 1
	}
	return max
}

// LastRowAt is the newest row timestamp in the order.
func (o *LogicalOrder) LastRowAt() time.Time {
	var last time.Time
	for _, r := range o.Records {
		if r.RowAt.After(last) {
			last = r.RowAt
		}
	}
	return last
}

// SourceHash fingerprints the raw rows of the order. Unchanged rows hash
// identically, which lets repeat runs skip compilation and remote calls.
func (o *LogicalOrder) SourceHash() string {
	h := sha256.New()
	for _, r := range o.Records {
		h.Write([]byte(r.digest()))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

var dateLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01-02-06",
	"1/2/2006 15:04",
	"1/2/2006",
	"01/02/2006",
	"2-Jan-2006",
	"2 Jan 2006",
	"Jan 2, 2006",
}

// toISO normalizes a cell to ISO form: date-only when the time component is
// midnight, full timestamp otherwise. Unparseable cells yield "".
func toISO(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
			return t.Format("2006-01-02")
		}
		return t.Format("2006-01-02T15:04:05")
	}
	return ""
}

// dateOnly truncates an ISO value to its date part.
func dateOnly(iso string) string {
	if i := strings.IndexByte(iso, 'T'); i >= 0 {
		return iso[:i]
	}
	return iso
}
