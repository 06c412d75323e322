package core

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/kilupskalvis/skedits/internal/annotation"
	"github.com/kilupskalvis/skedits/internal/chunkedgraph"
	"github.com/kilupskalvis/skedits/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pairs(ps ...[2]models.NodeID) [][2]models.NodeID { return ps }

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func op(id models.OperationID, merge bool, minute int, before []models.SegmentID, after []models.SegmentID) models.Operation {
	return models.Operation{
		ID:          id,
		IsMerge:     merge,
		BeforeRoots: before,
		AfterRoots:  after,
		Timestamp:   t0.Add(time.Duration(minute) * time.Minute),
	}
}

// Root of the three-edit history built by newThreeEditService.
const finalRoot models.SegmentID = 700

// newThreeEditService builds a segment assembled from 100 {1,2,3}, 200
// {4,5} and 600 {8,9}. Operation 10 merges 100 and 200 by the edge (3,4),
// operation 11 splits the result at (2,3), and operation 12 merges {1,2}
// with 600 by the edge (2,8). No edit creates or destroys level-2 nodes.
func newThreeEditService(t *testing.T) *chunkedgraph.MockClient {
	t.Helper()
	m := chunkedgraph.NewMockClient()
	m.AddSegment(100, nil, pairs([2]models.NodeID{1, 2}, [2]models.NodeID{2, 3}))
	m.AddSegment(200, nil, pairs([2]models.NodeID{4, 5}))
	m.AddSegment(600, nil, pairs([2]models.NodeID{8, 9}))
	m.AddSegment(300, nil, pairs([2]models.NodeID{1, 2}, [2]models.NodeID{2, 3}, [2]models.NodeID{3, 4}, [2]models.NodeID{4, 5}))
	m.AddSegment(400, nil, pairs([2]models.NodeID{1, 2}))
	m.AddSegment(500, nil, pairs([2]models.NodeID{3, 4}, [2]models.NodeID{4, 5}))
	m.AddSegment(finalRoot, nil, pairs([2]models.NodeID{1, 2}, [2]models.NodeID{2, 8}, [2]models.NodeID{8, 9}))

	m.AddOperation(finalRoot, op(10, true, 1, []models.SegmentID{100, 200}, []models.SegmentID{300}))
	m.AddOperation(finalRoot, op(11, false, 2, []models.SegmentID{300}, []models.SegmentID{400, 500}))
	m.AddOperation(finalRoot, op(12, true, 3, []models.SegmentID{400, 600}, []models.SegmentID{finalRoot}))

	m.Originals[finalRoot] = []models.SegmentID{100, 200, 600}
	m.Latest[100] = finalRoot
	m.Latest[200] = 500
	m.Latest[600] = finalRoot
	return m
}

// newThreeEditSynapses returns synapses on the three-edit segment. Synapse
// 4 is an autapse of the final segment.
func newThreeEditSynapses() *annotation.MockStore {
	return annotation.NewMockStore(
		models.Synapse{ID: 1, PreSegment: finalRoot, PreNode: 1, PostSegment: 900, PostNode: 50},
		models.Synapse{ID: 2, PreSegment: 500, PreNode: 5, PostSegment: 901, PostNode: 51},
		models.Synapse{ID: 3, PreSegment: 902, PreNode: 60, PostSegment: finalRoot, PostNode: 2},
		models.Synapse{ID: 4, PreSegment: finalRoot, PreNode: 9, PostSegment: finalRoot, PostNode: 1},
		models.Synapse{ID: 5, PreSegment: finalRoot, PreNode: 8, PostSegment: 901, PostNode: 52},
	)
}

// Root of the entangled history built by newEntangledService.
const entangledRoot models.SegmentID = 400

// newEntangledService builds a merge that replaces node 3 by 6 while joining
// {1,2,3} with {4,5}, followed by a split that replaces 6 by 7. The two
// operations share lineage node 6.
func newEntangledService(t *testing.T) *chunkedgraph.MockClient {
	t.Helper()
	m := chunkedgraph.NewMockClient()
	m.AddSegment(100, nil, pairs([2]models.NodeID{1, 2}, [2]models.NodeID{2, 3}))
	m.AddSegment(200, nil, pairs([2]models.NodeID{4, 5}))
	m.AddSegment(300, nil, pairs([2]models.NodeID{1, 2}, [2]models.NodeID{2, 6}, [2]models.NodeID{6, 4}, [2]models.NodeID{4, 5}))
	m.AddSegment(entangledRoot, nil, pairs([2]models.NodeID{1, 2}, [2]models.NodeID{2, 7}))
	m.AddSegment(500, nil, pairs([2]models.NodeID{4, 5}))

	m.AddOperation(entangledRoot, op(10, true, 1, []models.SegmentID{100, 200}, []models.SegmentID{300}))
	m.AddOperation(entangledRoot, op(11, false, 2, []models.SegmentID{300}, []models.SegmentID{entangledRoot, 500}))
	m.Originals[entangledRoot] = []models.SegmentID{100, 200}
	return m
}
