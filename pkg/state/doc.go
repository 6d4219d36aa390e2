// Package state implements the run-state container shared by every node of a workflow run.
//
// A State holds workflow inputs, node outputs, external inputs and trigger attributes keyed
// by domain.Key. Reads are safe from any goroutine. Writes go through Update, an atomic scope
// that either commits every write or none, and appends an immutable snapshot to the history.
//
// Parallel branches receive a Fork, an independent deep copy. Merge reduces a set of forks
// back into one state in ascending fork order: only keys written by a fork after its creation
// are applied, so disjoint writes all survive and the most recently created fork wins a
// conflict on the same key.
package state
