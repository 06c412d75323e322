// Package graph implements the in-memory level-2 graph (Frame) and the
// structural deltas that edit operations induce on it.
//
// A Frame keeps referential integrity at mutation time: an edge is only ever
// present when both of its endpoints are, and every batch mutation either
// applies completely or not at all.
package graph

import (
	"fmt"
	"math"
	"slices"

	"github.com/kilupskalvis/skedits/internal/models"
)

type edgeEntry struct {
	edge models.Edge
	seq  uint64
}

// Frame is a mutable node/edge table pair. Edges are undirected; the
// direction a record was inserted with is preserved but ignored for
// identity and connectivity. A Frame is not safe for concurrent mutation.
type Frame struct {
	nodes map[models.NodeID]models.Node
	edges map[models.EdgeKey]edgeEntry
	adj   map[models.NodeID]map[models.NodeID]struct{}
	seq   uint64
}

// New creates an empty frame.
func New() *Frame {
	return &Frame{
		nodes: make(map[models.NodeID]models.Node),
		edges: make(map[models.EdgeKey]edgeEntry),
		adj:   make(map[models.NodeID]map[models.NodeID]struct{}),
	}
}

// FromRecords builds a frame from node and edge records.
func FromRecords(nodes []models.Node, edges []models.Edge) (*Frame, error) {
	f := New()
	if err := f.AddNodes(nodes); err != nil {
		return nil, err
	}
	if err := f.AddEdges(edges); err != nil {
		return nil, err
	}
	return f, nil
}

// Clone returns a deep copy of the frame.
func (f *Frame) Clone() *Frame {
	c := &Frame{
		nodes: make(map[models.NodeID]models.Node, len(f.nodes)),
		edges: make(map[models.EdgeKey]edgeEntry, len(f.edges)),
		adj:   make(map[models.NodeID]map[models.NodeID]struct{}, len(f.adj)),
		seq:   f.seq,
	}
	for id, n := range f.nodes {
		if n.Position != nil {
			p := *n.Position
			n.Position = &p
		}
		c.nodes[id] = n
	}
	for k, e := range f.edges {
		c.edges[k] = e
	}
	for id, nbrs := range f.adj {
		m := make(map[models.NodeID]struct{}, len(nbrs))
		for n := range nbrs {
			m[n] = struct{}{}
		}
		c.adj[id] = m
	}
	return c
}

// NodeCount returns the number of nodes.
func (f *Frame) NodeCount() int { return len(f.nodes) }

// EdgeCount returns the number of edges.
func (f *Frame) EdgeCount() int { return len(f.edges) }

// HasNode reports whether the node is present.
func (f *Frame) HasNode(id models.NodeID) bool {
	_, ok := f.nodes[id]
	return ok
}

// Node returns the node record for id.
func (f *Frame) Node(id models.NodeID) (models.Node, bool) {
	n, ok := f.nodes[id]
	return n, ok
}

// HasEdge reports whether the undirected pair (a, b) is present.
func (f *Frame) HasEdge(a, b models.NodeID) bool {
	_, ok := f.edges[models.NewEdgeKey(a, b)]
	return ok
}

// Neighbors returns the sorted neighbors of id.
func (f *Frame) Neighbors(id models.NodeID) []models.NodeID {
	nbrs := f.adj[id]
	out := make([]models.NodeID, 0, len(nbrs))
	for n := range nbrs {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

// NodeIDs returns all node ids in ascending order.
func (f *Frame) NodeIDs() []models.NodeID {
	ids := make([]models.NodeID, 0, len(f.nodes))
	for id := range f.nodes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Nodes returns all node records ordered by id.
func (f *Frame) Nodes() []models.Node {
	ids := f.NodeIDs()
	out := make([]models.Node, len(ids))
	for i, id := range ids {
		out[i] = f.nodes[id]
	}
	return out
}

// Edges returns all edge records in insertion order.
func (f *Frame) Edges() []models.Edge {
	entries := make([]edgeEntry, 0, len(f.edges))
	for _, e := range f.edges {
		entries = append(entries, e)
	}
	slices.SortFunc(entries, func(a, b edgeEntry) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return 0
	})
	out := make([]models.Edge, len(entries))
	for i, e := range entries {
		out[i] = e.edge
	}
	return out
}

// EdgeKeys returns all edge keys in ascending key order.
func (f *Frame) EdgeKeys() []models.EdgeKey {
	keys := make([]models.EdgeKey, 0, len(f.edges))
	for k := range f.edges {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeys)
	return keys
}

// AddNodes inserts node records. It fails with a DuplicateIdentifierError if
// any id is already present or repeated within the batch; nothing is
// inserted on failure.
func (f *Frame) AddNodes(nodes []models.Node) error {
	seen := make(map[models.NodeID]struct{}, len(nodes))
	for _, n := range nodes {
		if err := n.Validate(); err != nil {
			return err
		}
		if _, ok := f.nodes[n.ID]; ok {
			return &DuplicateIdentifierError{Node: n.ID}
		}
		if _, ok := seen[n.ID]; ok {
			return &DuplicateIdentifierError{Node: n.ID}
		}
		seen[n.ID] = struct{}{}
	}
	for _, n := range nodes {
		f.nodes[n.ID] = n
		f.adj[n.ID] = make(map[models.NodeID]struct{})
	}
	return nil
}

// ReplaceNodes inserts node records, overwriting the attributes of any that
// already exist. Incident edges are kept.
func (f *Frame) ReplaceNodes(nodes []models.Node) error {
	for _, n := range nodes {
		if err := n.Validate(); err != nil {
			return err
		}
	}
	for _, n := range nodes {
		f.nodes[n.ID] = n
		if _, ok := f.adj[n.ID]; !ok {
			f.adj[n.ID] = make(map[models.NodeID]struct{})
		}
	}
	return nil
}

// AddEdges inserts edge records. Both endpoints must exist and the pair must
// not already be present in either direction; nothing is inserted on failure.
func (f *Frame) AddEdges(edges []models.Edge) error {
	seen := make(map[models.EdgeKey]struct{}, len(edges))
	for _, e := range edges {
		if err := e.Validate(); err != nil {
			return err
		}
		k := e.Key()
		for _, end := range []models.NodeID{e.Source, e.Target} {
			if _, ok := f.nodes[end]; !ok {
				return &MissingEndpointError{Edge: k, Node: end}
			}
		}
		if _, ok := f.edges[k]; ok {
			return &DuplicateIdentifierError{Edge: &k}
		}
		if _, ok := seen[k]; ok {
			return &DuplicateIdentifierError{Edge: &k}
		}
		seen[k] = struct{}{}
	}
	for _, e := range edges {
		f.insertEdge(e)
	}
	return nil
}

func (f *Frame) insertEdge(e models.Edge) {
	k := e.Key()
	f.seq++
	f.edges[k] = edgeEntry{edge: e, seq: f.seq}
	f.adj[k.Lo][k.Hi] = struct{}{}
	f.adj[k.Hi][k.Lo] = struct{}{}
}

// RemoveNodes deletes nodes by id along with every edge that references
// them. Absent ids are ignored. It returns the number of nodes removed.
func (f *Frame) RemoveNodes(ids []models.NodeID) int {
	removed := 0
	for _, id := range ids {
		if _, ok := f.nodes[id]; !ok {
			continue
		}
		for nbr := range f.adj[id] {
			delete(f.edges, models.NewEdgeKey(id, nbr))
			delete(f.adj[nbr], id)
		}
		delete(f.adj, id)
		delete(f.nodes, id)
		removed++
	}
	return removed
}

// RemoveEdges deletes edges by undirected key. Absent pairs are ignored,
// since node removal may already have cascaded them. It returns the number
// of edges removed.
func (f *Frame) RemoveEdges(keys []models.EdgeKey) int {
	removed := 0
	for _, k := range keys {
		k = models.NewEdgeKey(k.Lo, k.Hi)
		if _, ok := f.edges[k]; !ok {
			continue
		}
		delete(f.edges, k)
		delete(f.adj[k.Lo], k.Hi)
		delete(f.adj[k.Hi], k.Lo)
		removed++
	}
	return removed
}

// NearestNode returns the positioned node closest to pos. The second result
// is false when no node carries a position.
func (f *Frame) NearestNode(pos models.Position) (models.NodeID, bool) {
	var (
		best  models.NodeID
		bestD = math.Inf(1)
		found bool
	)
	for _, id := range f.NodeIDs() {
		n := f.nodes[id]
		if n.Position == nil {
			continue
		}
		if d := n.Position.Distance(pos); d < bestD {
			best, bestD, found = id, d, true
		}
	}
	return best, found
}

// Equal reports structural equality: identical node id sets and identical
// undirected edge sets. Attributes are not compared.
func (f *Frame) Equal(other *Frame) bool {
	if f.NodeCount() != other.NodeCount() || f.EdgeCount() != other.EdgeCount() {
		return false
	}
	return f.Compare(other).Empty()
}

// Difference counts how a frame departs from a reference frame.
type Difference struct {
	MissingNodes int // in the reference, not in the frame
	ExtraNodes   int // in the frame, not in the reference
	MissingEdges int
	ExtraEdges   int
}

// Empty reports whether the frames are structurally equal.
func (d Difference) Empty() bool {
	return d == Difference{}
}

func (d Difference) String() string {
	return fmt.Sprintf("nodes -%d/+%d, edges -%d/+%d", d.MissingNodes, d.ExtraNodes, d.MissingEdges, d.ExtraEdges)
}

// Compare reports the structural difference of f against want.
func (f *Frame) Compare(want *Frame) Difference {
	var d Difference
	for id := range want.nodes {
		if _, ok := f.nodes[id]; !ok {
			d.MissingNodes++
		}
	}
	for id := range f.nodes {
		if _, ok := want.nodes[id]; !ok {
			d.ExtraNodes++
		}
	}
	for k := range want.edges {
		if _, ok := f.edges[k]; !ok {
			d.MissingEdges++
		}
	}
	for k := range f.edges {
		if _, ok := want.edges[k]; !ok {
			d.ExtraEdges++
		}
	}
	return d
}

func compareKeys(a, b models.EdgeKey) int {
	switch {
	case a.Less(b):
		return -1
	case b.Less(a):
		return 1
	}
	return 0
}
