package graph

import (
	"fmt"
	"slices"

	"github.com/kilupskalvis/skedits/internal/models"
)

// Delta is the net structural change of one edit: the nodes and edges it
// removed and added. A node is never both added and removed by one Delta.
// Deltas are treated as immutable once built.
type Delta struct {
	RemovedNodes []models.Node `json:"removed_nodes"`
	AddedNodes   []models.Node `json:"added_nodes"`
	RemovedEdges []models.Edge `json:"removed_edges"`
	AddedEdges   []models.Edge `json:"added_edges"`
}

// NewDelta builds a Delta, rejecting a node that is both added and removed.
func NewDelta(removedNodes, addedNodes []models.Node, removedEdges, addedEdges []models.Edge) (*Delta, error) {
	removed := make(map[models.NodeID]struct{}, len(removedNodes))
	for _, n := range removedNodes {
		removed[n.ID] = struct{}{}
	}
	for _, n := range addedNodes {
		if _, ok := removed[n.ID]; ok {
			return nil, &ConflictError{Node: n.ID, Reason: "added and removed by the same delta"}
		}
	}
	return &Delta{
		RemovedNodes: removedNodes,
		AddedNodes:   addedNodes,
		RemovedEdges: removedEdges,
		AddedEdges:   addedEdges,
	}, nil
}

// ComputeDelta returns the change that turns before into after: set
// difference on node ids and on undirected edge pairs. Edge direction as
// reported by the service does not matter. Output is sorted by id / key.
func ComputeDelta(before, after *Frame) *Delta {
	d := &Delta{
		RemovedNodes: []models.Node{},
		AddedNodes:   []models.Node{},
		RemovedEdges: []models.Edge{},
		AddedEdges:   []models.Edge{},
	}
	for _, id := range after.NodeIDs() {
		if !before.HasNode(id) {
			d.AddedNodes = append(d.AddedNodes, after.nodes[id])
		}
	}
	for _, id := range before.NodeIDs() {
		if !after.HasNode(id) {
			d.RemovedNodes = append(d.RemovedNodes, before.nodes[id])
		}
	}
	for _, k := range after.EdgeKeys() {
		if _, ok := before.edges[k]; !ok {
			d.AddedEdges = append(d.AddedEdges, after.edges[k].edge)
		}
	}
	for _, k := range before.EdgeKeys() {
		if _, ok := after.edges[k]; !ok {
			d.RemovedEdges = append(d.RemovedEdges, before.edges[k].edge)
		}
	}
	return d
}

// IsEmpty reports whether the delta changes nothing.
func (d *Delta) IsEmpty() bool {
	return len(d.AddedNodes) == 0 && len(d.RemovedNodes) == 0 &&
		len(d.AddedEdges) == 0 && len(d.RemovedEdges) == 0
}

// Summary renders the delta's counts.
func (d *Delta) Summary() string {
	return fmt.Sprintf("nodes +%d/-%d, edges +%d/-%d",
		len(d.AddedNodes), len(d.RemovedNodes), len(d.AddedEdges), len(d.RemovedEdges))
}

// AddedNodeIDs returns the ids of the added nodes.
func (d *Delta) AddedNodeIDs() []models.NodeID {
	return nodeIDs(d.AddedNodes)
}

// RemovedNodeIDs returns the ids of the removed nodes.
func (d *Delta) RemovedNodeIDs() []models.NodeID {
	return nodeIDs(d.RemovedNodes)
}

// Reverse returns the delta with added and removed swapped. Applying the
// reverse to a post-state reproduces the pre-state.
func (d *Delta) Reverse() *Delta {
	return &Delta{
		RemovedNodes: slices.Clone(d.AddedNodes),
		AddedNodes:   slices.Clone(d.RemovedNodes),
		RemovedEdges: slices.Clone(d.AddedEdges),
		AddedEdges:   slices.Clone(d.RemovedEdges),
	}
}

// Compose unions a bundle of deltas into one. It fails with a ConflictError
// when the members disagree: a node or edge added by one member and removed
// by another, or added (or removed) twice. Conflicts are reported, never
// resolved.
func Compose(deltas []*Delta) (*Delta, error) {
	addedNodes := make(map[models.NodeID]models.Node)
	removedNodes := make(map[models.NodeID]models.Node)
	addedEdges := make(map[models.EdgeKey]models.Edge)
	removedEdges := make(map[models.EdgeKey]models.Edge)

	for _, d := range deltas {
		for _, n := range d.AddedNodes {
			if _, ok := addedNodes[n.ID]; ok {
				return nil, &ConflictError{Node: n.ID, Reason: "added twice"}
			}
			if _, ok := removedNodes[n.ID]; ok {
				return nil, &ConflictError{Node: n.ID, Reason: "removed by one member and added by another"}
			}
			addedNodes[n.ID] = n
		}
		for _, n := range d.RemovedNodes {
			if _, ok := removedNodes[n.ID]; ok {
				return nil, &ConflictError{Node: n.ID, Reason: "removed twice"}
			}
			if _, ok := addedNodes[n.ID]; ok {
				return nil, &ConflictError{Node: n.ID, Reason: "added by one member and removed by another"}
			}
			removedNodes[n.ID] = n
		}
		for _, e := range d.AddedEdges {
			k := e.Key()
			if _, ok := addedEdges[k]; ok {
				return nil, &ConflictError{Edge: &k, Reason: "added twice"}
			}
			if _, ok := removedEdges[k]; ok {
				return nil, &ConflictError{Edge: &k, Reason: "removed by one member and added by another"}
			}
			addedEdges[k] = e
		}
		for _, e := range d.RemovedEdges {
			k := e.Key()
			if _, ok := removedEdges[k]; ok {
				return nil, &ConflictError{Edge: &k, Reason: "removed twice"}
			}
			if _, ok := addedEdges[k]; ok {
				return nil, &ConflictError{Edge: &k, Reason: "added by one member and removed by another"}
			}
			removedEdges[k] = e
		}
	}

	return &Delta{
		RemovedNodes: sortedNodes(removedNodes),
		AddedNodes:   sortedNodes(addedNodes),
		RemovedEdges: sortedEdges(removedEdges),
		AddedEdges:   sortedEdges(addedEdges),
	}, nil
}

// Apply mutates f by d: added nodes, then added edges, then removed nodes
// (cascading their edges), then removed edges. Additions always precede
// removals. On failure f is left unchanged.
func Apply(f *Frame, d *Delta) error {
	if err := f.AddNodes(d.AddedNodes); err != nil {
		return fmt.Errorf("add nodes: %w", err)
	}
	if err := f.AddEdges(d.AddedEdges); err != nil {
		f.RemoveNodes(nodeIDs(d.AddedNodes))
		return fmt.Errorf("add edges: %w", err)
	}
	f.RemoveNodes(nodeIDs(d.RemovedNodes))
	keys := make([]models.EdgeKey, len(d.RemovedEdges))
	for i, e := range d.RemovedEdges {
		keys[i] = e.Key()
	}
	f.RemoveEdges(keys)
	return nil
}

func nodeIDs(nodes []models.Node) []models.NodeID {
	ids := make([]models.NodeID, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return ids
}

func sortedNodes(m map[models.NodeID]models.Node) []models.Node {
	out := make([]models.Node, 0, len(m))
	for _, n := range m {
		out = append(out, n)
	}
	slices.SortFunc(out, func(a, b models.Node) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}

func sortedEdges(m map[models.EdgeKey]models.Edge) []models.Edge {
	keys := make([]models.EdgeKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeys)
	out := make([]models.Edge, len(keys))
	for i, k := range keys {
		out[i] = m[k]
	}
	return out
}
