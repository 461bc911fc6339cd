package workorder

import (
	"fmt"
	"sort"
	"strings"

	"order-sync/core/reconcile"
)

// RequiredFieldSpec names the custom fields (by display name) that must be
// non-empty before an item may be written remotely. The unit set is smaller
// than the container set by design.
type RequiredFieldSpec struct {
	Container []string
	Unit      []string
}

// DefaultRequiredFields is the provisioned required set for work-order items.
func DefaultRequiredFields() RequiredFieldSpec {
	return RequiredFieldSpec{
		Container: []string{
			FieldProject,
			FieldProduct,
			FieldDomain,
			FieldPOStartDate,
			FieldPOEndDate,
			FieldWPID,
			FieldWPName,
			FieldOrderID,
			FieldOrderStatus,
			FieldQuantity,
		},
		Unit: []string{
			FieldWPID,
			FieldWPName,
			FieldOrderID,
		},
	}
}

// OrderValidation is the per-order validation outcome.
type OrderValidation struct {
	OrderID  string
	OK       bool
	Errors   []string
	Warnings []string
}

// Report is the validation outcome for one compiled batch.
type Report struct {
	PerOrder []OrderValidation
	// Errors holds batch-level problems not attributable to one order.
	Errors []string
}

// OK reports whether the whole batch passed.
func (r Report) OK() bool {
	if len(r.Errors) > 0 {
		return false
	}
	for _, o := range r.PerOrder {
		if !o.OK {
			return false
		}
	}
	return true
}

// Validate checks compiled plans against the required-field spec and
// cross-order identity uniqueness. Blocked orders get explicit errors; they
// are never silently dropped.
func Validate(plans []reconcile.OrderPlan, fm FieldMap, spec RequiredFieldSpec) Report {
	var rep Report

	// Duplicate identity across distinct logical orders in the same project.
	// Duplicate instances inside one order are the expected fan-out shape.
	seen := map[string][]string{}
	for _, p := range plans {
		k := p.ProjectKey + "|" + p.OrderID
		seen[k] = append(seen[k], p.OrderID)
	}
	duplicated := map[string]bool{}
	for k, ids := range seen {
		if len(ids) > 1 {
			duplicated[k] = true
		}
	}

	for _, p := range plans {
		ov := OrderValidation{OrderID: p.OrderID, OK: true}

		if duplicated[p.ProjectKey+"|"+p.OrderID] {
			ov.OK = false
			ov.Errors = append(ov.Errors,
				fmt.Sprintf("duplicate order identity %q in project %q", p.OrderID, p.ProjectKey))
		}

		if missing := missingFields(p.Container, fm, spec.Container); len(missing) > 0 {
			ov.OK = false
			ov.Errors = append(ov.Errors,
				"container missing required fields: "+strings.Join(missing, ", "))
		}

		for _, u := range p.Units {
			if missing := missingFields(u.ItemPlan, fm, spec.Unit); len(missing) > 0 {
				ov.OK = false
				ov.Errors = append(ov.Errors,
					fmt.Sprintf("unit %s-%d missing required fields: %s",
						p.OrderID, u.Instance, strings.Join(missing, ", ")))
			}
			if u.DueDate == "" {
				ov.Warnings = append(ov.Warnings,
					fmt.Sprintf("unit %s-%d has no due date", p.OrderID, u.Instance))
			}
		}

		ov.Warnings = append(ov.Warnings, p.Warnings...)
		rep.PerOrder = append(rep.PerOrder, ov)
	}
	return rep
}

// missingFields returns the sorted display names of required fields absent
// from the item. Names the tracker never provisioned cannot be checked and
// are skipped.
func missingFields(item reconcile.ItemPlan, fm FieldMap, required []string) []string {
	var missing []string
	for _, name := range required {
		id := fm.ID(name)
		if id == "" {
			continue
		}
		if v, ok := item.Fields[id]; !ok || v.IsZero() {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}

// Decide partitions order ids into allowed and blocked per the
// continue-on-error policy. With continueOnError=false any error anywhere
// blocks the entire batch (fail-closed); with true only failing orders are
// blocked.
func Decide(rep Report, continueOnError bool) (allowed, blocked []string) {
	for _, ov := range rep.PerOrder {
		if ov.OK {
			allowed = append(allowed, ov.OrderID)
		} else {
			blocked = append(blocked, ov.OrderID)
		}
	}
	if !continueOnError && (len(rep.Errors) > 0 || len(blocked) > 0) {
		blocked = blocked[:0]
		for _, ov := range rep.PerOrder {
			blocked = append(blocked, ov.OrderID)
		}
		allowed = nil
	}
	sort.Strings(allowed)
	sort.Strings(blocked)
	return allowed, blocked
}
