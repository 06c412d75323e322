// Package core implements the edit analysis pipeline: change log
// extraction, per-operation deltas, lineage grouping, replay, edit history
// and state sequences.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/kilupskalvis/skedits/internal/chunkedgraph"
	"github.com/kilupskalvis/skedits/internal/models"
)

// DefaultDetailBatchSize is how many operations are sent per detail request.
const DefaultDetailBatchSize = 500

// ErrIncompleteFetch matches every IncompleteFetchError.
var ErrIncompleteFetch = errors.New("incomplete fetch")

// IncompleteFetchError reports a batched detail request that came back short.
type IncompleteFetchError struct {
	Root      models.SegmentID
	Requested int
	Received  int
}

func (e *IncompleteFetchError) Error() string {
	return fmt.Sprintf("operation details for root %d: requested %d, received %d", e.Root, e.Requested, e.Received)
}

func (e *IncompleteFetchError) Is(target error) bool { return target == ErrIncompleteFetch }

// ChangeLogOptions configures GetChangeLog.
type ChangeLogOptions struct {
	BatchSize int
	Logger    *slog.Logger
}

// GetChangeLog returns the validated change log of root in chronological
// order (ties broken by operation id), with before/after roots joined in.
// Operations whose root sets did not change are kept and logged.
func GetChangeLog(ctx context.Context, svc chunkedgraph.Service, root models.SegmentID, opts ChangeLogOptions) ([]models.Operation, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultDetailBatchSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ops, err := svc.ChangeLog(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("get change log: %w", err)
	}
	slices.SortStableFunc(ops, func(a, b models.Operation) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})

	for start := 0; start < len(ops); start += opts.BatchSize {
		batch := ops[start:min(start+opts.BatchSize, len(ops))]
		ids := make([]models.OperationID, len(batch))
		for i, op := range batch {
			ids[i] = op.ID
		}

		details, err := svc.OperationDetails(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("get operation details: %w", err)
		}
		received := 0
		for _, id := range ids {
			if _, ok := details[id]; ok {
				received++
			}
		}
		if received < len(ids) {
			return nil, &IncompleteFetchError{Root: root, Requested: len(ids), Received: received}
		}

		for i := range batch {
			d := details[batch[i].ID]
			batch[i].BeforeRoots = slices.Clone(d.BeforeRoots)
			batch[i].AfterRoots = slices.Clone(d.AfterRoots)
		}
	}

	for i := range ops {
		if err := ops[i].Validate(); err != nil {
			return nil, fmt.Errorf("change log of root %d: %w", root, err)
		}
		if ops[i].IsNoOp() {
			logger.Warn("operation did not change its segments",
				"root_id", root, "operation_id", ops[i].ID, "kind", ops[i].Kind())
		}
	}

	logger.Debug("fetched change log", "root_id", root, "operations", len(ops))
	return ops, nil
}
