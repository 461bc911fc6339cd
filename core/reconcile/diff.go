package reconcile

import (
	"order-sync/core/fields"
	"order-sync/core/tracker"
)

// ChangeSet is the minimal remote write needed to move an item to its desired
// state. Nil members are untouched; Fields carries only changed keys.
type ChangeSet struct {
	Summary     *string
	Description *string
	DueDate     *string
	Fields      fields.Map
}

// Empty reports whether no write is needed.
func (c ChangeSet) Empty() bool {
	return c.Summary == nil && c.Description == nil && c.DueDate == nil && len(c.Fields) == 0
}

// DescriptionOnly reports whether the description is the only change.
func (c ChangeSet) DescriptionOnly() bool {
	return c.Description != nil && c.Summary == nil && c.DueDate == nil && len(c.Fields) == 0
}

// Payload renders the change set as a minimal update body.
func (c ChangeSet) Payload() tracker.Payload {
	var p tracker.Payload
	if c.Summary != nil {
		p.Summary = *c.Summary
	}
	if c.Description != nil {
		p.Description = *c.Description
	}
	if c.DueDate != nil {
		p.DueDate = *c.DueDate
	}
	if len(c.Fields) > 0 {
		p.Fields = c.Fields.Clone()
	}
	return p
}

// Diff compares a desired item against the tracker's current representation
// and emits only the keys whose values differ.
//
// A description-only change is suppressed to an empty set unless forced:
// descriptions regenerate from row context and a lone description write would
// trip the tracker's full-item validation without changing anything a reader
// cares about. Desired fields the remote copy lacks are written; remote
// fields the plan does not manage are left alone.
func Diff(desired ItemPlan, current *tracker.Item, force bool) ChangeSet {
	var cs ChangeSet
	if desired.Summary != "" && desired.Summary != current.Summary {
		cs.Summary = &desired.Summary
	}
	if desired.Description != "" && desired.Description != current.Description {
		cs.Description = &desired.Description
	}
	if desired.DueDate != "" && desired.DueDate != current.DueDate {
		cs.DueDate = &desired.DueDate
	}
	for id, want := range desired.Fields {
		have, ok := current.Fields[id]
		if !ok || !want.Equal(have) {
			if cs.Fields == nil {
				cs.Fields = fields.Map{}
			}
			cs.Fields[id] = want
		}
	}
	if cs.DescriptionOnly() && !force {
		return ChangeSet{}
	}
	return cs
}
