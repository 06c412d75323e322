// Package models defines the core records used throughout skedits:
// level-2 nodes and edges, edit operations, and synapses.
package models

import (
	"fmt"
	"math"
)

// NodeID identifies a level-2 node. IDs are unique within a segmentation layer.
type NodeID uint64

// SegmentID identifies a root segment.
type SegmentID uint64

// Position is a point in nanometer space.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Distance returns the Euclidean distance between two positions.
func (p Position) Distance(q Position) float64 {
	dx, dy, dz := p.X-q.X, p.Y-q.Y, p.Z-q.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Node is a level-2 node record with its edit provenance.
type Node struct {
	ID       NodeID    `json:"id"`
	Position *Position `json:"position,omitempty"`

	// Zero means the node predates every edit / was never removed.
	OperationAdded   OperationID `json:"operation_added,omitempty"`
	OperationRemoved OperationID `json:"operation_removed,omitempty"`

	MetaOperationAdded   MetaOperationID `json:"meta_operation_added"`
	MetaOperationRemoved MetaOperationID `json:"meta_operation_removed"`
}

// NewNode returns a node with no edit provenance.
func NewNode(id NodeID) Node {
	return Node{
		ID:                   id,
		MetaOperationAdded:   NoMetaOperation,
		MetaOperationRemoved: NoMetaOperation,
	}
}

// Validate checks the record's fields.
func (n Node) Validate() error {
	if n.ID == 0 {
		return fmt.Errorf("node: id must be non-zero")
	}
	if n.OperationAdded < 0 || n.OperationRemoved < 0 {
		return fmt.Errorf("node %d: negative operation id", n.ID)
	}
	if n.MetaOperationAdded < NoMetaOperation || n.MetaOperationRemoved < NoMetaOperation {
		return fmt.Errorf("node %d: invalid meta-operation id", n.ID)
	}
	return nil
}

// EdgeKey is the undirected identity of an edge: Lo <= Hi.
type EdgeKey struct {
	Lo NodeID
	Hi NodeID
}

// NewEdgeKey builds the canonical key for the pair (a, b).
func NewEdgeKey(a, b NodeID) EdgeKey {
	if a > b {
		a, b = b, a
	}
	return EdgeKey{Lo: a, Hi: b}
}

func (k EdgeKey) String() string {
	return fmt.Sprintf("(%d,%d)", k.Lo, k.Hi)
}

// Less orders keys lexicographically.
func (k EdgeKey) Less(o EdgeKey) bool {
	if k.Lo != o.Lo {
		return k.Lo < o.Lo
	}
	return k.Hi < o.Hi
}

// Edge is a level-2 adjacency record. Direction carries no meaning.
type Edge struct {
	Source NodeID  `json:"source"`
	Target NodeID  `json:"target"`
	Length float64 `json:"length,omitempty"`

	OperationAdded   OperationID `json:"operation_added,omitempty"`
	OperationRemoved OperationID `json:"operation_removed,omitempty"`

	MetaOperationAdded   MetaOperationID `json:"meta_operation_added"`
	MetaOperationRemoved MetaOperationID `json:"meta_operation_removed"`
}

// NewEdge returns an edge with no edit provenance.
func NewEdge(source, target NodeID) Edge {
	return Edge{
		Source:               source,
		Target:               target,
		MetaOperationAdded:   NoMetaOperation,
		MetaOperationRemoved: NoMetaOperation,
	}
}

// Key returns the undirected key of the edge.
func (e Edge) Key() EdgeKey {
	return NewEdgeKey(e.Source, e.Target)
}

// Validate checks the record's fields.
func (e Edge) Validate() error {
	if e.Source == 0 || e.Target == 0 {
		return fmt.Errorf("edge (%d,%d): endpoints must be non-zero", e.Source, e.Target)
	}
	if e.Length < 0 || math.IsNaN(e.Length) {
		return fmt.Errorf("edge (%d,%d): invalid length %v", e.Source, e.Target, e.Length)
	}
	if e.OperationAdded < 0 || e.OperationRemoved < 0 {
		return fmt.Errorf("edge (%d,%d): negative operation id", e.Source, e.Target)
	}
	return nil
}
