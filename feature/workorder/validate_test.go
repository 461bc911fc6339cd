package workorder

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"order-sync/core/reconcile"
)

func compiledOrder(t *testing.T, orderID string, cols map[string]string) reconcile.OrderPlan {
	t.Helper()
	order := LogicalOrder{
		Product: "FiberCo",
		OrderID: orderID,
		Records: []SourceRecord{record(orderID, time.Unix(0, 0), cols)},
	}
	return Compile(order, "PROJ", testFieldMap())
}

func completeColumns() map[string]string {
	return map[string]string{
		ColProjectName: "Metro Rollout",
		ColDomain:      "Access",
		ColWPID:        "WP-77",
		ColWPName:      "Install",
		ColOrderStatus: "Approved",
		ColQuantity:    "2",
		ColPOStartDate: "2025-01-01",
		ColPOEndDate:   "2025-12-31",
	}
}

func TestValidateCompleteOrderPasses(t *testing.T) {
	plan := compiledOrder(t, "WPO-1", completeColumns())

	rep := Validate([]reconcile.OrderPlan{plan}, testFieldMap(), DefaultRequiredFields())
	require.Len(t, rep.PerOrder, 1)
	assert.True(t, rep.PerOrder[0].OK)
	assert.Empty(t, rep.PerOrder[0].Errors)
	assert.True(t, rep.OK())
}

func TestValidateMissingContainerFieldBlocks(t *testing.T) {
	cols := completeColumns()
	delete(cols, ColDomain)
	delete(cols, ColPOEndDate)
	plan := compiledOrder(t, "WPO-2", cols)

	rep := Validate([]reconcile.OrderPlan{plan}, testFieldMap(), DefaultRequiredFields())
	require.Len(t, rep.PerOrder, 1)
	assert.False(t, rep.PerOrder[0].OK)
	require.Len(t, rep.PerOrder[0].Errors, 1)
	assert.Contains(t, rep.PerOrder[0].Errors[0], "container missing required fields")
	assert.Contains(t, rep.PerOrder[0].Errors[0], FieldDomain)
	assert.Contains(t, rep.PerOrder[0].Errors[0], FieldPOEndDate)
}

func TestValidateMissingUnitDueDateWarns(t *testing.T) {
	cols := completeColumns()
	// No readiness date: units have no due date, which is optional.
	plan := compiledOrder(t, "WPO-3", cols)

	rep := Validate([]reconcile.OrderPlan{plan}, testFieldMap(), DefaultRequiredFields())
	require.Len(t, rep.PerOrder, 1)
	assert.True(t, rep.PerOrder[0].OK)
	assert.NotEmpty(t, rep.PerOrder[0].Warnings)
}

func TestValidateUnprovisionedFieldSkipped(t *testing.T) {
	plan := compiledOrder(t, "WPO-4", completeColumns())

	// Field map without the Domain field: the tracker cannot hold it, so its
	// absence is not an error.
	fm := testFieldMap()
	delete(fm, strings.ToLower(FieldDomain))
	delete(plan.Container.Fields, testFieldMap().ID(FieldDomain))

	rep := Validate([]reconcile.OrderPlan{plan}, fm, DefaultRequiredFields())
	assert.True(t, rep.PerOrder[0].OK)
}

func TestValidateDuplicateIdentityAcrossOrders(t *testing.T) {
	a := compiledOrder(t, "WPO-5", completeColumns())
	b := compiledOrder(t, "WPO-5", completeColumns())
	c := compiledOrder(t, "WPO-6", completeColumns())

	rep := Validate([]reconcile.OrderPlan{a, b, c}, testFieldMap(), DefaultRequiredFields())
	require.Len(t, rep.PerOrder, 3)
	assert.False(t, rep.PerOrder[0].OK)
	assert.False(t, rep.PerOrder[1].OK)
	assert.True(t, rep.PerOrder[2].OK)
	assert.Contains(t, rep.PerOrder[0].Errors[0], "duplicate order identity")
}

func TestDecideContinueOnError(t *testing.T) {
	bad := completeColumns()
	delete(bad, ColWPID)
	var plans []reconcile.OrderPlan
	for _, id := range []string{"WPO-1", "WPO-2", "WPO-3"} {
		cols := completeColumns()
		if id == "WPO-2" {
			cols = bad
		}
		plans = append(plans, compiledOrder(t, id, cols))
	}
	rep := Validate(plans, testFieldMap(), DefaultRequiredFields())

	allowed, blocked := Decide(rep, true)
	assert.Equal(t, []string{"WPO-1", "WPO-3"}, allowed)
	assert.Equal(t, []string{"WPO-2"}, blocked)

	// Fail-closed: one bad order blocks everything.
	allowed, blocked = Decide(rep, false)
	assert.Empty(t, allowed)
	assert.Equal(t, []string{"WPO-1", "WPO-2", "WPO-3"}, blocked)
}

func TestDecideAllValid(t *testing.T) {
	plans := []reconcile.OrderPlan{
		compiledOrder(t, "WPO-1", completeColumns()),
		compiledOrder(t, "WPO-2", completeColumns()),
	}
	rep := Validate(plans, testFieldMap(), DefaultRequiredFields())

	allowed, blocked := Decide(rep, false)
	assert.Equal(t, []string{"WPO-1", "WPO-2"}, allowed)
	assert.Empty(t, blocked)
}
