package core

import (
	"fmt"
	"slices"

	"github.com/kilupskalvis/skedits/internal/graph"
	"github.com/kilupskalvis/skedits/internal/models"
)

// EditID identifies an edit at some Granularity: an OperationID or a
// MetaOperationID.
type EditID int64

// Granularity selects whether edits are single operations or
// meta-operations.
type Granularity int

const (
	ByOperation Granularity = iota
	ByMetaOperation
)

func (g Granularity) String() string {
	if g == ByMetaOperation {
		return "meta"
	}
	return "operation"
}

// ParseGranularity accepts "operation" or "meta".
func ParseGranularity(s string) (Granularity, error) {
	switch s {
	case "operation", "op", "":
		return ByOperation, nil
	case "meta", "meta-operation":
		return ByMetaOperation, nil
	}
	return 0, fmt.Errorf("unknown granularity %q", s)
}

// EditHistory holds every node and edge version that ever existed across a
// segment's edits, each tagged with the edit that added and removed it.
// It can materialize the graph for any subset of edits.
type EditHistory struct {
	nodes []models.Node
	edges []models.Edge
	ops   []models.Operation
	metas *MetaOperations

	// Unmatched counts removals of records that were not present when the
	// removing operation ran.
	Unmatched int
}

// BuildEditHistory folds the deltas of ed chronologically over initial,
// recording every version. metas may be nil.
func BuildEditHistory(initial *graph.Frame, ed *EditDeltas, metas *MetaOperations) (*EditHistory, error) {
	h := &EditHistory{ops: ed.Operations, metas: metas}
	activeNodes := make(map[models.NodeID]int)
	activeEdges := make(map[models.EdgeKey]int)

	for _, n := range initial.Nodes() {
		n.OperationAdded, n.OperationRemoved = 0, 0
		n.MetaOperationAdded, n.MetaOperationRemoved = models.NoMetaOperation, models.NoMetaOperation
		activeNodes[n.ID] = len(h.nodes)
		h.nodes = append(h.nodes, n)
	}
	for _, e := range initial.Edges() {
		e.OperationAdded, e.OperationRemoved = 0, 0
		e.MetaOperationAdded, e.MetaOperationRemoved = models.NoMetaOperation, models.NoMetaOperation
		activeEdges[e.Key()] = len(h.edges)
		h.edges = append(h.edges, e)
	}

	for _, op := range ed.Operations {
		d, ok := ed.ByOperation[op.ID]
		if !ok {
			return nil, fmt.Errorf("edit history: no delta for operation %d", op.ID)
		}
		meta := h.metaOf(op.ID)

		for _, n := range d.RemovedNodes {
			i, ok := activeNodes[n.ID]
			if !ok {
				h.Unmatched++
				continue
			}
			h.nodes[i].OperationRemoved = op.ID
			h.nodes[i].MetaOperationRemoved = meta
			delete(activeNodes, n.ID)
		}
		for _, e := range d.RemovedEdges {
			i, ok := activeEdges[e.Key()]
			if !ok {
				h.Unmatched++
				continue
			}
			h.edges[i].OperationRemoved = op.ID
			h.edges[i].MetaOperationRemoved = meta
			delete(activeEdges, e.Key())
		}
		for _, n := range d.AddedNodes {
			n.OperationAdded, n.OperationRemoved = op.ID, 0
			n.MetaOperationAdded, n.MetaOperationRemoved = meta, models.NoMetaOperation
			activeNodes[n.ID] = len(h.nodes)
			h.nodes = append(h.nodes, n)
		}
		for _, e := range d.AddedEdges {
			e.OperationAdded, e.OperationRemoved = op.ID, 0
			e.MetaOperationAdded, e.MetaOperationRemoved = meta, models.NoMetaOperation
			activeEdges[e.Key()] = len(h.edges)
			h.edges = append(h.edges, e)
		}
	}
	return h, nil
}

func (h *EditHistory) metaOf(op models.OperationID) models.MetaOperationID {
	if h.metas == nil {
		return models.NoMetaOperation
	}
	if id, ok := h.metas.ByOperation[op]; ok {
		return id
	}
	return models.NoMetaOperation
}

// NodeVersions returns every node version in the order they appeared.
func (h *EditHistory) NodeVersions() []models.Node { return slices.Clone(h.nodes) }

// EdgeVersions returns every edge version in the order they appeared.
func (h *EditHistory) EdgeVersions() []models.Edge { return slices.Clone(h.edges) }

// Operations returns the chronological change log.
func (h *EditHistory) Operations() []models.Operation { return h.ops }

// Metas returns the meta-operation grouping, or nil.
func (h *EditHistory) Metas() *MetaOperations { return h.metas }

// EditIDs returns every edit at granularity g in chronological order.
func (h *EditHistory) EditIDs(g Granularity) []EditID {
	if g == ByMetaOperation {
		if h.metas == nil {
			return nil
		}
		ids := make([]EditID, len(h.metas.Groups))
		for i, m := range h.metas.Groups {
			ids[i] = EditID(m.ID)
		}
		return ids
	}
	ids := make([]EditID, len(h.ops))
	for i, op := range h.ops {
		ids[i] = EditID(op.ID)
	}
	return ids
}

// HasMerge reports whether the edit contains a merge; HasSplit whether it
// contains a split.
func (h *EditHistory) HasMerge(g Granularity, id EditID) bool {
	if g == ByMetaOperation {
		m, ok := h.metas.Get(models.MetaOperationID(id))
		return ok && m.HasMerge
	}
	for _, op := range h.ops {
		if op.ID == models.OperationID(id) {
			return op.IsMerge
		}
	}
	return false
}

// HasSplit reports whether the edit contains a split.
func (h *EditHistory) HasSplit(g Granularity, id EditID) bool {
	if g == ByMetaOperation {
		m, ok := h.metas.Get(models.MetaOperationID(id))
		return ok && m.HasSplit
	}
	for _, op := range h.ops {
		if op.ID == models.OperationID(id) {
			return !op.IsMerge
		}
	}
	return false
}

// addedBy returns the edit that introduced a record, and whether one did.
func addedBy(g Granularity, op models.OperationID, meta models.MetaOperationID) (EditID, bool) {
	if g == ByMetaOperation {
		return EditID(meta), meta != models.NoMetaOperation
	}
	return EditID(op), op != 0
}

func (h *EditHistory) validate(g Granularity, edits []EditID) error {
	known := make(map[EditID]bool)
	for _, id := range h.EditIDs(g) {
		known[id] = true
	}
	for _, id := range edits {
		if !known[id] {
			return fmt.Errorf("unknown %s edit %d", g, id)
		}
	}
	return nil
}

// FrameFor materializes the graph with exactly the given edits applied. A
// record is present when it is original or was added by an applied edit,
// and no applied edit removed it. When several versions of a node or edge
// qualify the latest wins. Edges left without an endpoint are dropped.
func (h *EditHistory) FrameFor(g Granularity, edits []EditID) (*graph.Frame, error) {
	if err := h.validate(g, edits); err != nil {
		return nil, err
	}
	applied := make(map[EditID]bool, len(edits))
	for _, id := range edits {
		applied[id] = true
	}
	active := func(addOp, remOp models.OperationID, addMeta, remMeta models.MetaOperationID) bool {
		if id, ok := addedBy(g, addOp, addMeta); ok && !applied[id] {
			return false
		}
		if id, ok := addedBy(g, remOp, remMeta); ok && applied[id] {
			return false
		}
		return true
	}

	nodes := make(map[models.NodeID]models.Node)
	for _, n := range h.nodes {
		if active(n.OperationAdded, n.OperationRemoved, n.MetaOperationAdded, n.MetaOperationRemoved) {
			nodes[n.ID] = n
		}
	}
	ids := make([]models.NodeID, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	nodeList := make([]models.Node, len(ids))
	for i, id := range ids {
		nodeList[i] = nodes[id]
	}

	edgeIndex := make(map[models.EdgeKey]int)
	var edgeList []models.Edge
	for _, e := range h.edges {
		if !active(e.OperationAdded, e.OperationRemoved, e.MetaOperationAdded, e.MetaOperationRemoved) {
			continue
		}
		if _, ok := nodes[e.Source]; !ok {
			continue
		}
		if _, ok := nodes[e.Target]; !ok {
			continue
		}
		if i, ok := edgeIndex[e.Key()]; ok {
			edgeList[i] = e
			continue
		}
		edgeIndex[e.Key()] = len(edgeList)
		edgeList = append(edgeList, e)
	}

	return graph.FromRecords(nodeList, edgeList)
}
