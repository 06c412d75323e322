package core

import (
	"errors"
	"fmt"
	"slices"

	"github.com/kilupskalvis/skedits/internal/graph"
	"github.com/kilupskalvis/skedits/internal/models"
)

// LineageEdge links a node an operation removed to a node it added.
type LineageEdge struct {
	Source    models.NodeID      `json:"source"`
	Target    models.NodeID      `json:"target"`
	Operation models.OperationID `json:"operation_id"`
	IsMerge   bool               `json:"is_merge"`
}

// Lineage is the directed graph of node succession across operations.
type Lineage struct {
	edges []LineageEdge
	out   map[models.NodeID][]int
	in    map[models.NodeID][]int
}

// NewLineage creates an empty lineage graph.
func NewLineage() *Lineage {
	return &Lineage{
		out: make(map[models.NodeID][]int),
		in:  make(map[models.NodeID][]int),
	}
}

// Add appends a labeled edge.
func (l *Lineage) Add(e LineageEdge) {
	l.edges = append(l.edges, e)
	i := len(l.edges) - 1
	l.out[e.Source] = append(l.out[e.Source], i)
	l.in[e.Target] = append(l.in[e.Target], i)
}

// Edges returns all edges in insertion order.
func (l *Lineage) Edges() []LineageEdge {
	return slices.Clone(l.edges)
}

// Len returns the number of edges.
func (l *Lineage) Len() int { return len(l.edges) }

// Nodes returns every node with at least one edge, ascending.
func (l *Lineage) Nodes() []models.NodeID {
	set := make(map[models.NodeID]struct{}, len(l.out)+len(l.in))
	for id := range l.out {
		set[id] = struct{}{}
	}
	for id := range l.in {
		set[id] = struct{}{}
	}
	ids := make([]models.NodeID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Successors returns the nodes id was replaced by, ascending and unique.
func (l *Lineage) Successors(id models.NodeID) []models.NodeID {
	var out []models.NodeID
	for _, i := range l.out[id] {
		out = append(out, l.edges[i].Target)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Predecessors returns the nodes id replaced, ascending and unique.
func (l *Lineage) Predecessors(id models.NodeID) []models.NodeID {
	var out []models.NodeID
	for _, i := range l.in[id] {
		out = append(out, l.edges[i].Source)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// WeaklyConnectedComponents partitions the lineage nodes ignoring edge
// direction. Each component is sorted; components are ordered by their
// smallest node.
func (l *Lineage) WeaklyConnectedComponents() [][]models.NodeID {
	uf := newUnionFind[models.NodeID]()
	for _, e := range l.edges {
		uf.union(e.Source, e.Target)
	}
	groups := make(map[models.NodeID][]models.NodeID)
	for _, id := range l.Nodes() {
		r := uf.find(id)
		groups[r] = append(groups[r], id)
	}
	out := make([][]models.NodeID, 0, len(groups))
	for _, g := range groups {
		out = append(out, g)
	}
	slices.SortFunc(out, func(a, b []models.NodeID) int {
		switch {
		case a[0] < b[0]:
			return -1
		case a[0] > b[0]:
			return 1
		}
		return 0
	})
	return out
}

// unionFind is a disjoint-set forest with path compression and union by size.
type unionFind[T comparable] struct {
	parent map[T]T
	size   map[T]int
}

func newUnionFind[T comparable]() *unionFind[T] {
	return &unionFind[T]{parent: make(map[T]T), size: make(map[T]int)}
}

func (u *unionFind[T]) find(x T) T {
	if _, ok := u.parent[x]; !ok {
		u.parent[x] = x
		u.size[x] = 1
		return x
	}
	root := x
	for u.parent[root] != root {
		root = u.parent[root]
	}
	for x != root {
		next := u.parent[x]
		u.parent[x] = root
		x = next
	}
	return root
}

func (u *unionFind[T]) union(a, b T) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if u.size[ra] < u.size[rb] {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	u.size[ra] += u.size[rb]
}

// MetaOperation is a set of operations entangled through shared lineage
// nodes, treated as one logical edit.
type MetaOperation struct {
	ID models.MetaOperationID `json:"meta_operation_id"`
	// Operations in chronological order.
	Operations []models.OperationID `json:"operations"`
	HasMerge   bool                 `json:"has_merge"`
	HasSplit   bool                 `json:"has_split"`
	// Delta is the composition of the member deltas; nil when Err is set.
	Delta *graph.Delta `json:"-"`
	// Err holds a composition conflict between members.
	Err error `json:"-"`
}

// MetaOperations is the grouping of a change log into meta-operations.
type MetaOperations struct {
	Groups      []MetaOperation
	ByOperation map[models.OperationID]models.MetaOperationID
}

// Get returns the meta-operation with the given id.
func (m *MetaOperations) Get(id models.MetaOperationID) (*MetaOperation, bool) {
	if m == nil || id < 0 || int(id) >= len(m.Groups) {
		return nil, false
	}
	return &m.Groups[id], true
}

// GroupMetaOperations joins operations that share a lineage node into
// meta-operations. Operations without lineage edges form singleton groups,
// so every operation belongs to exactly one meta-operation. IDs are assigned
// from 0 in the chronological order of each group's earliest operation.
//
// Member deltas are composed into the group's Delta. A conflict marks that
// group's Err and is also returned, joined with any others; the grouping
// is returned complete in either case.
func GroupMetaOperations(ed *EditDeltas) (*MetaOperations, error) {
	uf := newUnionFind[models.NodeID]()
	first := make(map[models.OperationID]models.NodeID)
	for _, e := range ed.Lineage.edges {
		uf.union(e.Source, e.Target)
		if _, ok := first[e.Operation]; !ok {
			first[e.Operation] = e.Source
		}
	}

	metas := &MetaOperations{ByOperation: make(map[models.OperationID]models.MetaOperationID, len(ed.Operations))}
	byComponent := make(map[models.NodeID]models.MetaOperationID)
	for _, op := range ed.Operations {
		var id models.MetaOperationID
		node, linked := first[op.ID]
		if linked {
			root := uf.find(node)
			existing, ok := byComponent[root]
			if ok {
				id = existing
			} else {
				id = models.MetaOperationID(len(metas.Groups))
				byComponent[root] = id
				metas.Groups = append(metas.Groups, MetaOperation{ID: id})
			}
		} else {
			id = models.MetaOperationID(len(metas.Groups))
			metas.Groups = append(metas.Groups, MetaOperation{ID: id})
		}

		g := &metas.Groups[id]
		g.Operations = append(g.Operations, op.ID)
		g.HasMerge = g.HasMerge || op.IsMerge
		g.HasSplit = g.HasSplit || !op.IsMerge
		metas.ByOperation[op.ID] = id
	}

	var errs []error
	for i := range metas.Groups {
		g := &metas.Groups[i]
		deltas := make([]*graph.Delta, 0, len(g.Operations))
		for _, opID := range g.Operations {
			d, ok := ed.ByOperation[opID]
			if !ok {
				return nil, fmt.Errorf("meta-operation %d: no delta for operation %d", g.ID, opID)
			}
			deltas = append(deltas, d)
		}
		composed, err := graph.Compose(deltas)
		if err != nil {
			g.Err = fmt.Errorf("meta-operation %d: %w", g.ID, err)
			errs = append(errs, g.Err)
			continue
		}
		g.Delta = composed
	}
	return metas, errors.Join(errs...)
}
