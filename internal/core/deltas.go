package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/kilupskalvis/skedits/internal/chunkedgraph"
	"github.com/kilupskalvis/skedits/internal/graph"
	"github.com/kilupskalvis/skedits/internal/models"
)

// FetchSegmentFrame assembles the union of the level-2 graphs of roots.
// A segment without a level-2 edge graph is accepted only when it consists
// of a single level-2 node. Edges reported in both directions, or by more
// than one segment, are collapsed.
func FetchSegmentFrame(ctx context.Context, svc chunkedgraph.Service, roots []models.SegmentID, withPositions bool) (*graph.Frame, error) {
	seenNodes := make(map[models.NodeID]bool)
	seenEdges := make(map[models.EdgeKey]bool)
	var (
		nodeIDs []models.NodeID
		edges   []models.Edge
	)
	addNode := func(id models.NodeID) {
		if !seenNodes[id] {
			seenNodes[id] = true
			nodeIDs = append(nodeIDs, id)
		}
	}

	for _, root := range roots {
		pairs, err := svc.Level2Edges(ctx, root)
		if err != nil || len(pairs) == 0 {
			leaves, lerr := svc.Leaves(ctx, root, chunkedgraph.Level2)
			if lerr != nil {
				return nil, fmt.Errorf("fetch segment %d: %w", root, errors.Join(err, lerr))
			}
			if len(leaves) != 1 {
				if err != nil {
					return nil, fmt.Errorf("fetch segment %d: %w", root, err)
				}
				return nil, fmt.Errorf("fetch segment %d: %d level-2 nodes but no edges", root, len(leaves))
			}
			addNode(leaves[0])
			continue
		}

		for _, p := range pairs {
			addNode(p[0])
			addNode(p[1])
			k := models.NewEdgeKey(p[0], p[1])
			if seenEdges[k] {
				continue
			}
			seenEdges[k] = true
			edges = append(edges, models.NewEdge(p[0], p[1]))
		}
	}

	slices.Sort(nodeIDs)
	nodes := make([]models.Node, len(nodeIDs))
	for i, id := range nodeIDs {
		nodes[i] = models.NewNode(id)
	}

	if withPositions && len(nodeIDs) > 0 {
		positions, err := svc.Positions(ctx, nodeIDs)
		if err != nil {
			return nil, fmt.Errorf("fetch positions: %w", err)
		}
		for i := range nodes {
			if p, ok := positions[nodes[i].ID]; ok {
				nodes[i].Position = &p
			}
		}
	}

	return graph.FromRecords(nodes, edges)
}

// EditDeltas is the per-operation structural change of a change log.
type EditDeltas struct {
	// Operations in chronological order.
	Operations  []models.Operation
	ByOperation map[models.OperationID]*graph.Delta
	Lineage     *Lineage
}

// Operation looks up an operation by id.
func (ed *EditDeltas) Operation(id models.OperationID) (models.Operation, bool) {
	for _, op := range ed.Operations {
		if op.ID == id {
			return op, true
		}
	}
	return models.Operation{}, false
}

// DeltaOptions configures ComputeOperationDeltas.
type DeltaOptions struct {
	WithPositions bool
	Logger        *slog.Logger
}

// ComputeOperationDeltas computes, for each operation, the delta between the
// union of its before-segments and the union of its after-segments, and
// links every removed node to every added node in the lineage graph. The
// delta's records are stamped with the operation id.
func ComputeOperationDeltas(ctx context.Context, svc chunkedgraph.Service, ops []models.Operation, opts DeltaOptions) (*EditDeltas, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ed := &EditDeltas{
		Operations:  ops,
		ByOperation: make(map[models.OperationID]*graph.Delta, len(ops)),
		Lineage:     NewLineage(),
	}

	for _, op := range ops {
		if _, dup := ed.ByOperation[op.ID]; dup {
			return nil, &models.InvalidOperationError{Operation: op.ID, Reason: "duplicate operation id in change log"}
		}
		if op.IsNoOp() {
			logger.Warn("skipping delta for no-op operation", "operation_id", op.ID)
			ed.ByOperation[op.ID] = &graph.Delta{}
			continue
		}

		before, err := FetchSegmentFrame(ctx, svc, op.BeforeRoots, opts.WithPositions)
		if err != nil {
			return nil, fmt.Errorf("operation %d before state: %w", op.ID, err)
		}
		after, err := FetchSegmentFrame(ctx, svc, op.AfterRoots, opts.WithPositions)
		if err != nil {
			return nil, fmt.Errorf("operation %d after state: %w", op.ID, err)
		}

		d := graph.ComputeDelta(before, after)
		stamp(d, op.ID)
		ed.ByOperation[op.ID] = d

		for _, removed := range d.RemovedNodes {
			for _, added := range d.AddedNodes {
				ed.Lineage.Add(LineageEdge{
					Source:    removed.ID,
					Target:    added.ID,
					Operation: op.ID,
					IsMerge:   op.IsMerge,
				})
			}
		}

		logger.Debug("computed operation delta",
			"operation_id", op.ID, "kind", op.Kind(), "delta", d.Summary())
	}

	return ed, nil
}

func stamp(d *graph.Delta, op models.OperationID) {
	for i := range d.AddedNodes {
		d.AddedNodes[i].OperationAdded = op
	}
	for i := range d.RemovedNodes {
		d.RemovedNodes[i].OperationRemoved = op
	}
	for i := range d.AddedEdges {
		d.AddedEdges[i].OperationAdded = op
	}
	for i := range d.RemovedEdges {
		d.RemovedEdges[i].OperationRemoved = op
	}
}
