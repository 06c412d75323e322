// Package chunkedgraph talks to the segmentation graph service: change logs,
// operation details, level-2 graphs, node positions and root lookups.
package chunkedgraph

import (
	"context"
	"time"

	"github.com/kilupskalvis/skedits/internal/models"
)

// Service is the capability set the edit pipeline consumes from the
// segmentation graph service.
type Service interface {
	// ChangeLog returns the tabular change log of root. Root ids are not
	// filled in; use OperationDetails for those.
	ChangeLog(ctx context.Context, root models.SegmentID) ([]models.Operation, error)
	OperationDetails(ctx context.Context, ids []models.OperationID) (map[models.OperationID]OperationDetail, error)

	Leaves(ctx context.Context, root models.SegmentID, stopLayer int) ([]models.NodeID, error)
	Level2Edges(ctx context.Context, root models.SegmentID) ([][2]models.NodeID, error)
	Positions(ctx context.Context, ids []models.NodeID) (map[models.NodeID]models.Position, error)

	// Level2Of returns the current level-2 node of each supervoxel.
	// Supervoxels the service does not know are absent from the result.
	Level2Of(ctx context.Context, supervoxels []models.SupervoxelID) (map[models.SupervoxelID]models.NodeID, error)
	// Children returns the supervoxels a level-2 node is made of. Node ids
	// are never reused, so the answer does not change over time.
	Children(ctx context.Context, node models.NodeID) ([]models.SupervoxelID, error)

	LatestRoot(ctx context.Context, id models.SegmentID) (models.SegmentID, error)
	RootAtTime(ctx context.Context, node models.NodeID, ts time.Time) (models.SegmentID, error)
	// OriginalRoots returns the leaves of root's lineage tree: the unedited
	// segments it was assembled from.
	OriginalRoots(ctx context.Context, root models.SegmentID) ([]models.SegmentID, error)
}

// OperationDetail holds the segments an operation consumed and produced.
type OperationDetail struct {
	BeforeRoots []models.SegmentID `json:"before_root_ids"`
	AfterRoots  []models.SegmentID `json:"roots"`
}

// Level2 is the stop layer that yields level-2 node ids.
const Level2 = 2

var (
	_ Service = (*HTTPClient)(nil)
	_ Service = (*RetryClient)(nil)
	_ Service = (*CachingClient)(nil)
	_ Service = (*MockClient)(nil)
)
