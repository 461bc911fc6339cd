package workorder

import (
	"fmt"
	"strings"

	"order-sync/core/fields"
	"order-sync/core/reconcile"
)

// Custom-field display names provisioned on the tracker side. The compiler
// addresses remote fields through a FieldMap resolved from these names, so
// renumbered customFieldN ids never leak into this package.
const (
	FieldProduct       = "WPR Product"
	FieldProject       = "WPR Project"
	FieldDomain        = "WPR Domain"
	FieldCustomer      = "WPR Customer"
	FieldBPID          = "WPR BP ID"
	FieldOrderID       = "WPR WP Order ID"
	FieldWPID          = "WPR WP ID"
	FieldWPName        = "WPR WP Name"
	FieldQuantity      = "WPR WP Quantity"
	FieldOrderStatus   = "WPR WP Order Status"
	FieldEmployeeName  = "WPR Employee Name"
	FieldSTD           = "WPR STD"
	FieldAckDate       = "WPR Acknowledgement Date"
	FieldAddedDate     = "WPR Added Date"
	FieldApprovedDate  = "WPR Approved Date"
	FieldCancelledDate = "WPR Cancelled Date"
	FieldPOStartDate   = "WPR PO Start Date"
	FieldPOEndDate     = "WPR PO End Date"
	FieldReadinessDate = "WPR Readiness Date"
	FieldRequestedDate = "WPR Requested Date"
	FieldSubmittedDate = "WPR Submitted Date"
	FieldUpdatedDate   = "WPR Updated Date"
	FieldStartDate     = "WPR Start Date"
)

// FieldMap resolves custom-field display names to remote field ids, keyed by
// lowercased name as returned by tracker.ListCustomFields.
type FieldMap map[string]string

// ID returns the remote field id for a display name, empty when the field is
// not provisioned on the tracker.
func (m FieldMap) ID(display string) string {
	return m[strings.ToLower(strings.TrimSpace(display))]
}

// containerDates maps date custom fields to their source columns.
var containerDates = []struct {
	field string
	col   string
}{
	{FieldAckDate, ColAckDate},
	{FieldAddedDate, ColAddedDate},
	{FieldApprovedDate, ColApprovedDate},
	{FieldCancelledDate, ColCancelledDate},
	{FieldPOEndDate, ColPOEndDate},
	{FieldPOStartDate, ColPOStartDate},
	{FieldReadinessDate, ColReadinessDate},
	{FieldRequestedDate, ColRequestedDate},
	{FieldSubmittedDate, ColSubmittedDate},
	{FieldStartDate, ColAckDate},
}

// descriptionColumns fixes the column order of generated descriptions so
// compilation stays byte-deterministic.
var descriptionColumns = []string{
	ColProjectName,
	ColDomain,
	ColCustomer,
	ColBPID,
	ColWPID,
	ColWPName,
	ColOrderStatus,
	ColQuantity,
	ColEmployeeName,
	ColReadinessDate,
}

// Compile expands one logical order into its desired plan: one container item
// plus Quantity() unit items with identities orderID-1..orderID-N.
//
// Compile never fails. Missing cells are omitted rather than erroring;
// structural completeness is Validate's job. Container fields take the first
// non-empty value per column across the order's records, never aggregated.
func Compile(order LogicalOrder, projectKey string, fm FieldMap) reconcile.OrderPlan {
	plan := reconcile.OrderPlan{
		Product:         order.Product,
		OrderID:         order.OrderID,
		ProjectKey:      projectKey,
		IdentityFieldID: fm.ID(FieldOrderID),
		SourceHash:      order.SourceHash(),
		LastRowAt:       order.LastRowAt(),
	}

	desc := describe(order)
	qty := order.Quantity()

	cf := fields.Map{}
	cf.Set(fm.ID(FieldProduct), fields.String(order.Product))
	cf.Set(fm.ID(FieldProject), fields.String(order.FirstNonEmpty(ColProjectName)))
	cf.Set(fm.ID(FieldDomain), fields.String(order.FirstNonEmpty(ColDomain)))
	cf.Set(fm.ID(FieldCustomer), fields.String(order.FirstNonEmpty(ColCustomer)))
	cf.Set(fm.ID(FieldBPID), fields.String(order.FirstNonEmpty(ColBPID)))
	cf.Set(fm.ID(FieldOrderID), fields.String(order.OrderID))
	cf.Set(fm.ID(FieldWPID), fields.String(order.FirstNonEmpty(ColWPID)))
	cf.Set(fm.ID(FieldWPName), fields.String(order.FirstNonEmpty(ColWPName)))
	cf.Set(fm.ID(FieldQuantity), fields.Number(float64(qty)))
	cf.Set(fm.ID(FieldOrderStatus), fields.String(order.FirstNonEmpty(ColOrderStatus)))
	cf.Set(fm.ID(FieldEmployeeName), fields.String(order.FirstNonEmpty(ColEmployeeName)))
	if std, ok := order.FirstNumber(ColSTD); ok {
		cf.Set(fm.ID(FieldSTD), fields.Number(std))
	}
	for _, d := range containerDates {
		cf.Set(fm.ID(d.field), fields.Date(order.FirstDate(d.col)))
	}
	// Updated Date is forced date-only so a timestamp drift in the export
	// never shows up as a spurious diff.
	cf.Set(fm.ID(FieldUpdatedDate), fields.Date(dateOnly(order.FirstDate(ColUpdatedDate))))

	plan.Container = reconcile.ItemPlan{
		Summary:     fmt.Sprintf("%s :: %s", order.Product, order.OrderID),
		Description: desc,
		DueDate:     dateOnly(order.FirstDate(ColReadinessDate)),
		Fields:      cf,
	}

	unitDue := dateOnly(order.FirstDate(ColReadinessDate))
	for i := 1; i <= qty; i++ {
		uf := fields.Map{}
		uf.Set(fm.ID(FieldWPID), fields.String(order.FirstNonEmpty(ColWPID)))
		uf.Set(fm.ID(FieldWPName), fields.String(order.FirstNonEmpty(ColWPName)))
		// Unit identity stays on the base order id; the instance suffix lives
		// in the summary.
		uf.Set(fm.ID(FieldOrderID), fields.String(order.OrderID))
		plan.Units = append(plan.Units, reconcile.UnitItem{
			Instance: i,
			ItemPlan: reconcile.ItemPlan{
				Summary:     fmt.Sprintf("%s-%d", order.OrderID, i),
				Description: desc,
				DueDate:     unitDue,
				Fields:      uf,
			},
		})
	}
	return plan
}

// ResolveOptions rewrites the order-status field from plain text to an
// option reference wherever the tracker provisions a matching list option,
// keyed by lowercased option title. Status values without a provisioned
// option stay textual; the tracker stores them as-is.
func ResolveOptions(plans []reconcile.OrderPlan, fm FieldMap, options map[string]string) {
	id := fm.ID(FieldOrderStatus)
	if id == "" || len(options) == 0 {
		return
	}
	for i := range plans {
		v, ok := plans[i].Container.Fields[id]
		if !ok || v.Kind != fields.KindString {
			continue
		}
		href, ok := options[strings.ToLower(strings.TrimSpace(v.Str))]
		if !ok {
			continue
		}
		plans[i].Container.Fields[id] = fields.Option(href)
	}
}

// CompileAll compiles a batch of logical orders against one project.
func CompileAll(orders []LogicalOrder, projectKey string, fm FieldMap) []reconcile.OrderPlan {
	plans := make([]reconcile.OrderPlan, 0, len(orders))
	for _, o := range orders {
		plans = append(plans, Compile(o, projectKey, fm))
	}
	return plans
}

// describe renders the human-readable item description from the order's
// first-non-empty column values, in a fixed column order.
func describe(order LogicalOrder) string {
	var b strings.Builder
	for _, col := range descriptionColumns {
		v := order.FirstNonEmpty(col)
		if v == "" {
			continue
		}
		fmt.Fprintf(&b, "**%s**: %s\n", col, v)
	}
	return strings.TrimRight(b.String(), "\n")
}
