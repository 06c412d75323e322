package graph

import (
	"iter"
	"slices"

	"github.com/kilupskalvis/skedits/internal/models"
)

// Components yields one sub-frame per connected component, in ascending
// order of each component's smallest node id. The sequence is computed
// lazily and a fresh range recomputes it from the current frame.
func (f *Frame) Components() iter.Seq[*Frame] {
	return func(yield func(*Frame) bool) {
		visited := make(map[models.NodeID]bool, len(f.nodes))
		for _, id := range f.NodeIDs() {
			if visited[id] {
				continue
			}
			if !yield(f.induced(f.reach(id, visited))) {
				return
			}
		}
	}
}

// ComponentCount returns the number of connected components.
func (f *Frame) ComponentCount() int {
	n := 0
	for range f.Components() {
		n++
	}
	return n
}

// ComponentOf returns the connected component containing id, or an
// AnchorNotFoundError if id is not in the frame.
func (f *Frame) ComponentOf(id models.NodeID) (*Frame, error) {
	if !f.HasNode(id) {
		return nil, &AnchorNotFoundError{Node: id}
	}
	return f.induced(f.reach(id, make(map[models.NodeID]bool))), nil
}

// SpanningComponents returns how many distinct components the given nodes
// fall into. Ids not in the frame are ignored.
func (f *Frame) SpanningComponents(ids []models.NodeID) int {
	visited := make(map[models.NodeID]bool)
	n := 0
	for _, id := range ids {
		if !f.HasNode(id) || visited[id] {
			continue
		}
		f.reach(id, visited)
		n++
	}
	return n
}

// reach runs a breadth-first traversal from start, marking visited nodes,
// and returns the sorted members of start's component.
func (f *Frame) reach(start models.NodeID, visited map[models.NodeID]bool) []models.NodeID {
	queue := []models.NodeID{start}
	visited[start] = true
	members := []models.NodeID{}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		members = append(members, cur)
		for nbr := range f.adj[cur] {
			if !visited[nbr] {
				visited[nbr] = true
				queue = append(queue, nbr)
			}
		}
	}
	slices.Sort(members)
	return members
}

// induced builds the sub-frame on members, keeping edge insertion order.
func (f *Frame) induced(members []models.NodeID) *Frame {
	sub := New()
	var entries []edgeEntry
	for _, id := range members {
		sub.nodes[id] = f.nodes[id]
		sub.adj[id] = make(map[models.NodeID]struct{}, len(f.adj[id]))
		for nbr := range f.adj[id] {
			if id <= nbr {
				entries = append(entries, f.edges[models.NewEdgeKey(id, nbr)])
			}
		}
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
	for _, e := range entries {
		sub.insertEdge(e.edge)
	}
	return sub
}
