package domain

import (
	"reflect"
)

// ValuesDiff represents the changes between two sets of named values.
// It is designed to be serialized to JSON for partial updates on the client.
type ValuesDiff struct {
	// Changed contains added or modified keys.
	Changed map[string]any `json:"changed,omitempty"`
	// Removed lists keys present before and absent now.
	Removed []string `json:"removed,omitempty"`
}

// DiffValues calculates the difference between old and new.
// If old is nil, every entry of new is reported as changed (initial load).
// Undefined values count as absent.
func DiffValues(old, new map[string]any) *ValuesDiff {
	diff := &ValuesDiff{}

	for k, newVal := range new {
		if IsUndefined(newVal) {
			continue
		}
		oldVal, exists := old[k]
		if !exists || IsUndefined(oldVal) || !reflect.DeepEqual(oldVal, newVal) {
			if diff.Changed == nil {
				diff.Changed = make(map[string]any)
			}
			diff.Changed[k] = newVal
		}
	}

	for k, oldVal := range old {
		if IsUndefined(oldVal) {
			continue
		}
		if newVal, exists := new[k]; !exists || IsUndefined(newVal) {
			diff.Removed = append(diff.Removed, k)
		}
	}

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *ValuesDiff) IsEmpty() bool {
	return d == nil || (len(d.Changed) == 0 && len(d.Removed) == 0)
}
