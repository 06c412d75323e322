package core

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/kilupskalvis/skedits/internal/chunkedgraph"
	"github.com/kilupskalvis/skedits/internal/graph"
	"github.com/kilupskalvis/skedits/internal/models"
)

// AnalyzeOptions configures AnalyzeSegment.
type AnalyzeOptions struct {
	ChangeLog     ChangeLogOptions
	WithPositions bool
	Logger        *slog.Logger
}

// Analysis bundles everything derived from one segment's change log.
type Analysis struct {
	Root       models.SegmentID
	Operations []models.Operation
	Deltas     *EditDeltas
	Metas      *MetaOperations
	// Initial is the unedited network the segment was assembled from.
	Initial *graph.Frame
	History *EditHistory
	// WeirdLeaves are lineage leaves that were themselves produced by an
	// operation in the change log.
	WeirdLeaves []models.SegmentID

	logger *slog.Logger
}

// AnalyzeSegment fetches and derives root's change log, per-operation
// deltas, meta-operations, initial network and edit history. Meta-operation
// conflicts are logged and left on the affected groups.
func AnalyzeSegment(ctx context.Context, svc chunkedgraph.Service, root models.SegmentID, opts AnalyzeOptions) (*Analysis, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("root_id", root)
	if opts.ChangeLog.Logger == nil {
		opts.ChangeLog.Logger = logger
	}

	ops, err := GetChangeLog(ctx, svc, root, opts.ChangeLog)
	if err != nil {
		return nil, err
	}

	ed, err := ComputeOperationDeltas(ctx, svc, ops, DeltaOptions{WithPositions: opts.WithPositions, Logger: logger})
	if err != nil {
		return nil, err
	}

	metas, err := GroupMetaOperations(ed)
	if metas == nil {
		return nil, err
	}
	if err != nil {
		logger.Warn("meta-operation members conflict", "error", err)
	}

	initial, weird, err := InitialFrame(ctx, svc, root, ops, opts.WithPositions, logger)
	if err != nil {
		return nil, err
	}

	history, err := BuildEditHistory(initial, ed, metas)
	if err != nil {
		return nil, err
	}
	if history.Unmatched > 0 {
		logger.Warn("edit history removed records that were not present", "unmatched", history.Unmatched)
	}

	return &Analysis{
		Root:        root,
		Operations:  ops,
		Deltas:      ed,
		Metas:       metas,
		Initial:     initial,
		History:     history,
		WeirdLeaves: weird,
		logger:      logger,
	}, nil
}

// InitialFrame assembles the unedited network of root from the leaves of
// its lineage tree. Leaves that fail to fetch are logged and skipped. A leaf
// that an operation in ops produced is reported as weird: the lineage and
// the change log disagree about it.
func InitialFrame(ctx context.Context, svc chunkedgraph.Service, root models.SegmentID, ops []models.Operation, withPositions bool, logger *slog.Logger) (*graph.Frame, []models.SegmentID, error) {
	if logger == nil {
		logger = slog.Default()
	}
	leaves, err := svc.OriginalRoots(ctx, root)
	if err != nil {
		return nil, nil, fmt.Errorf("get original roots: %w", err)
	}
	slices.Sort(leaves)
	leaves = slices.Compact(leaves)

	produced := make(map[models.SegmentID]models.OperationID)
	for _, op := range ops {
		for _, r := range op.AfterRoots {
			produced[r] = op.ID
		}
	}

	var weird []models.SegmentID
	f := graph.New()
	for _, leaf := range leaves {
		if opID, ok := produced[leaf]; ok {
			logger.Warn("lineage leaf was produced by an edit", "leaf_id", leaf, "operation_id", opID)
			weird = append(weird, leaf)
		}

		seg, err := FetchSegmentFrame(ctx, svc, []models.SegmentID{leaf}, withPositions)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			logger.Warn("skipping lineage leaf", "leaf_id", leaf, "error", err)
			continue
		}
		if err := f.AddNodes(seg.Nodes()); err != nil {
			return nil, nil, fmt.Errorf("lineage leaf %d: %w", leaf, err)
		}
		if err := f.AddEdges(seg.Edges()); err != nil {
			return nil, nil, fmt.Errorf("lineage leaf %d: %w", leaf, err)
		}
	}

	logger.Debug("assembled initial network", "leaves", len(leaves), "nodes", f.NodeCount(), "edges", f.EdgeCount())
	return f, weird, nil
}
