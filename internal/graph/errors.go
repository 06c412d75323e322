package graph

import (
	"errors"
	"fmt"

	"github.com/kilupskalvis/skedits/internal/models"
)

// Sentinel errors for errors.Is matching.
var (
	ErrDuplicateIdentifier = errors.New("duplicate identifier")
	ErrMissingEndpoint     = errors.New("missing edge endpoint")
	ErrConflict            = errors.New("delta conflict")
	ErrAnchorNotFound      = errors.New("anchor not found")
)

// DuplicateIdentifierError is returned when an insert would overwrite an
// existing node or edge.
type DuplicateIdentifierError struct {
	Node models.NodeID
	Edge *models.EdgeKey
}

func (e *DuplicateIdentifierError) Error() string {
	if e.Edge != nil {
		return fmt.Sprintf("duplicate edge %s", e.Edge)
	}
	return fmt.Sprintf("duplicate node %d", e.Node)
}

func (e *DuplicateIdentifierError) Is(target error) bool { return target == ErrDuplicateIdentifier }

// MissingEndpointError is returned when an edge references an absent node.
type MissingEndpointError struct {
	Edge models.EdgeKey
	Node models.NodeID
}

func (e *MissingEndpointError) Error() string {
	return fmt.Sprintf("edge %s: endpoint %d not in frame", e.Edge, e.Node)
}

func (e *MissingEndpointError) Is(target error) bool { return target == ErrMissingEndpoint }

// ConflictError is returned when deltas being composed disagree about a node
// or edge. It points at a grouping bug or inconsistent upstream data.
type ConflictError struct {
	Node   models.NodeID
	Edge   *models.EdgeKey
	Reason string
}

func (e *ConflictError) Error() string {
	if e.Edge != nil {
		return fmt.Sprintf("conflict on edge %s: %s", e.Edge, e.Reason)
	}
	return fmt.Sprintf("conflict on node %d: %s", e.Node, e.Reason)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// AnchorNotFoundError is returned when a component is requested for a node
// that is not part of the frame.
type AnchorNotFoundError struct {
	Node models.NodeID
}

func (e *AnchorNotFoundError) Error() string {
	return fmt.Sprintf("anchor node %d not in frame", e.Node)
}

func (e *AnchorNotFoundError) Is(target error) bool { return target == ErrAnchorNotFound }
