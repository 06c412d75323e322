package chunkedgraph

import (
	"time"

	"github.com/kilupskalvis/skedits/internal/models"
)

// ChangeLogEntry is one row of the tabular change log.
type ChangeLogEntry struct {
	OperationID models.OperationID `json:"operation_id"`
	IsMerge     bool               `json:"is_merge"`
	Timestamp   time.Time          `json:"timestamp"`
	UserID      string             `json:"user_id"`
}

// ChangeLogResponse is returned by GET /root/{id}/tabular_change_log.
type ChangeLogResponse struct {
	Operations []ChangeLogEntry `json:"operations"`
}

// OperationDetailsRequest is sent to POST /operation_details.
type OperationDetailsRequest struct {
	OperationIDs []models.OperationID `json:"operation_ids"`
}

// OperationDetailsResponse maps operation ids to their roots.
type OperationDetailsResponse struct {
	Details map[models.OperationID]OperationDetail `json:"details"`
}

// LeavesResponse is returned by GET /node/{id}/leaves.
type LeavesResponse struct {
	LeafIDs []models.NodeID `json:"leaf_ids"`
}

// Level2GraphResponse is returned by GET /node/{id}/lvl2_graph.
type Level2GraphResponse struct {
	EdgeGraph [][2]models.NodeID `json:"edge_graph"`
}

// PositionsRequest is sent to POST /l2/positions.
type PositionsRequest struct {
	NodeIDs []models.NodeID `json:"node_ids"`
}

// PositionsResponse maps node ids to their representative coordinate.
type PositionsResponse struct {
	Positions map[models.NodeID]models.Position `json:"positions"`
}

// SupervoxelRootsRequest is sent to POST /roots?stop_layer=2.
type SupervoxelRootsRequest struct {
	SupervoxelIDs []models.SupervoxelID `json:"node_ids"`
}

// SupervoxelRootsResponse holds one level-2 id per requested supervoxel, in
// request order. Zero marks an unknown supervoxel.
type SupervoxelRootsResponse struct {
	Level2IDs []models.NodeID `json:"root_ids"`
}

// ChildrenResponse is returned by GET /node/{id}/children.
type ChildrenResponse struct {
	ChildrenIDs []models.SupervoxelID `json:"children_ids"`
}

// RootResponse carries a single root id.
type RootResponse struct {
	RootID models.SegmentID `json:"root_id"`
}

// RootsResponse carries a list of root ids.
type RootsResponse struct {
	RootIDs []models.SegmentID `json:"root_ids"`
}

// ErrorResponse is the JSON error body returned by the service.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
