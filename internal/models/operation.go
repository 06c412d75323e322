package models

import (
	"fmt"
	"slices"
	"time"
)

// OperationID identifies an elementary edit. Zero means "no operation".
type OperationID int64

// MetaOperationID identifies a group of causally entangled operations.
// IDs are assigned per analysis run and are not persisted across runs.
type MetaOperationID int64

// NoMetaOperation marks records that no meta-operation touched.
const NoMetaOperation MetaOperationID = -1

// Operation is one entry of a segment's change log.
type Operation struct {
	ID          OperationID `json:"operation_id"`
	IsMerge     bool        `json:"is_merge"`
	BeforeRoots []SegmentID `json:"before_root_ids"`
	AfterRoots  []SegmentID `json:"roots"`
	Timestamp   time.Time   `json:"timestamp"`
	User        string      `json:"user_id,omitempty"`
}

// Kind returns "merge" or "split".
func (o *Operation) Kind() string {
	if o.IsMerge {
		return "merge"
	}
	return "split"
}

// IsNoOp reports whether the before and after root sets are identical.
func (o *Operation) IsNoOp() bool {
	if len(o.BeforeRoots) != len(o.AfterRoots) {
		return false
	}
	before := slices.Clone(o.BeforeRoots)
	after := slices.Clone(o.AfterRoots)
	slices.Sort(before)
	slices.Sort(after)
	return slices.Equal(before, after)
}

// InvalidOperationError reports a change-log entry that breaks the
// merge/split root-count invariant.
type InvalidOperationError struct {
	Operation OperationID
	Reason    string
}

func (e *InvalidOperationError) Error() string {
	return fmt.Sprintf("invalid operation %d: %s", e.Operation, e.Reason)
}

// Validate checks the merge/split root-count invariant: a merge yields
// exactly one segment, a split yields one or two.
func (o *Operation) Validate() error {
	if len(o.BeforeRoots) == 0 {
		return &InvalidOperationError{Operation: o.ID, Reason: "no before roots"}
	}
	n := len(o.AfterRoots)
	if o.IsMerge && n != 1 {
		return &InvalidOperationError{Operation: o.ID, Reason: fmt.Sprintf("merge produced %d segments", n)}
	}
	if !o.IsMerge && (n < 1 || n > 2) {
		return &InvalidOperationError{Operation: o.ID, Reason: fmt.Sprintf("split produced %d segments", n)}
	}
	return nil
}
