package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"order-sync/core/fields"
	"order-sync/core/tracker"
)

func currentItem() *tracker.Item {
	return &tracker.Item{
		Key:         "1001",
		Version:     2,
		Summary:     "FiberCo :: WPO-1",
		Description: "desc",
		DueDate:     "2025-06-30",
		Fields: fields.Map{
			"customField2": fields.String("WPO-1"),
			"customField5": fields.Number(3),
		},
	}
}

func TestDiffNoChanges(t *testing.T) {
	desired := ItemPlan{
		Summary:     "FiberCo :: WPO-1",
		Description: "desc",
		DueDate:     "2025-06-30",
		Fields: fields.Map{
			"customField2": fields.String("WPO-1"),
			"customField5": fields.Number(3),
		},
	}
	cs := Diff(desired, currentItem(), false)
	assert.True(t, cs.Empty())
}

func TestDiffEmitsOnlyChangedKeys(t *testing.T) {
	desired := ItemPlan{
		Summary:     "FiberCo :: WPO-1",
		Description: "desc",
		DueDate:     "2025-07-15",
		Fields: fields.Map{
			"customField2": fields.String("WPO-1"),
			"customField5": fields.Number(4),
		},
	}
	cs := Diff(desired, currentItem(), false)
	assert.Nil(t, cs.Summary)
	assert.Nil(t, cs.Description)
	require.NotNil(t, cs.DueDate)
	assert.Equal(t, "2025-07-15", *cs.DueDate)
	require.Len(t, cs.Fields, 1)
	assert.Equal(t, float64(4), cs.Fields["customField5"].Num)
}

func TestDiffWritesMissingRemoteField(t *testing.T) {
	desired := ItemPlan{
		Summary:     "FiberCo :: WPO-1",
		Description: "desc",
		DueDate:     "2025-06-30",
		Fields: fields.Map{
			"customField2": fields.String("WPO-1"),
			"customField5": fields.Number(3),
			"customField8": fields.String("Acme"),
		},
	}
	cs := Diff(desired, currentItem(), false)
	require.Len(t, cs.Fields, 1)
	assert.Equal(t, "Acme", cs.Fields["customField8"].Str)
}

func TestDiffLeavesUnmanagedRemoteFieldsAlone(t *testing.T) {
	current := currentItem()
	current.Fields["customField99"] = fields.String("remote only")

	desired := ItemPlan{
		Summary:     "FiberCo :: WPO-1",
		Description: "desc",
		DueDate:     "2025-06-30",
		Fields: fields.Map{
			"customField2": fields.String("WPO-1"),
			"customField5": fields.Number(3),
		},
	}
	cs := Diff(desired, current, false)
	assert.True(t, cs.Empty())
}

func TestDiffDescriptionOnlySuppressed(t *testing.T) {
	desired := ItemPlan{
		Summary:     "FiberCo :: WPO-1",
		Description: "regenerated description",
		DueDate:     "2025-06-30",
		Fields: fields.Map{
			"customField2": fields.String("WPO-1"),
			"customField5": fields.Number(3),
		},
	}

	cs := Diff(desired, currentItem(), false)
	assert.True(t, cs.Empty())

	forced := Diff(desired, currentItem(), true)
	assert.False(t, forced.Empty())
	require.NotNil(t, forced.Description)
	assert.Equal(t, "regenerated description", *forced.Description)
}

func TestDiffDateReadBackAsTextStillMatches(t *testing.T) {
	current := currentItem()
	current.Fields["customField9"] = fields.String("2025-06-30")

	desired := ItemPlan{
		Summary:     "FiberCo :: WPO-1",
		Description: "desc",
		DueDate:     "2025-06-30",
		Fields: fields.Map{
			"customField2": fields.String("WPO-1"),
			"customField5": fields.Number(3),
			"customField9": fields.Date("2025-06-30"),
		},
	}
	cs := Diff(desired, current, false)
	assert.True(t, cs.Empty())
}

func TestChangeSetPayload(t *testing.T) {
	summary := "new summary"
	cs := ChangeSet{
		Summary: &summary,
		Fields:  fields.Map{"customField5": fields.Number(4)},
	}
	p := cs.Payload()
	assert.Equal(t, "new summary", p.Summary)
	assert.Empty(t, p.Description)
	assert.Empty(t, p.DueDate)
	require.Len(t, p.Fields, 1)
}
