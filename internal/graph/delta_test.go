package graph

import (
	"errors"
	"testing"

	"github.com/kilupskalvis/skedits/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mergeScenario is two segments {1,2,3} and {4,5} joined through a new node 6.
func mergeScenario(t *testing.T) (before, after *Frame) {
	t.Helper()
	before = newFrame(t, []models.NodeID{1, 2, 3, 4, 5},
		[2]models.NodeID{1, 2}, [2]models.NodeID{2, 3}, [2]models.NodeID{4, 5})
	after = newFrame(t, []models.NodeID{1, 2, 3, 4, 5, 6},
		[2]models.NodeID{1, 2}, [2]models.NodeID{2, 3}, [2]models.NodeID{3, 6},
		[2]models.NodeID{6, 4}, [2]models.NodeID{4, 5})
	return before, after
}

func edgeKeys(es []models.Edge) []models.EdgeKey {
	out := make([]models.EdgeKey, len(es))
	for i, e := range es {
		out[i] = e.Key()
	}
	return out
}

func TestComputeDelta_MergeScenario(t *testing.T) {
	before, after := mergeScenario(t)

	d := ComputeDelta(before, after)
	assert.Equal(t, []models.NodeID{6}, d.AddedNodeIDs())
	assert.Equal(t, []models.EdgeKey{{Lo: 3, Hi: 6}, {Lo: 4, Hi: 6}}, edgeKeys(d.AddedEdges))
	assert.Empty(t, d.RemovedNodes)
	assert.Empty(t, d.RemovedEdges)

	require.NoError(t, Apply(before, d))
	assert.True(t, before.Equal(after))
	assert.Equal(t, 1, before.ComponentCount())
}

func TestComputeDelta_RoundTrip(t *testing.T) {
	before := newFrame(t, []models.NodeID{1, 2, 3, 4},
		[2]models.NodeID{1, 2}, [2]models.NodeID{2, 3}, [2]models.NodeID{3, 4})
	after := newFrame(t, []models.NodeID{1, 2, 5, 6, 4},
		[2]models.NodeID{2, 1}, [2]models.NodeID{2, 5}, [2]models.NodeID{6, 4})

	d := ComputeDelta(before, after)

	forward := before.Clone()
	require.NoError(t, Apply(forward, d))
	assert.True(t, forward.Equal(after))

	back := after.Clone()
	require.NoError(t, Apply(back, d.Reverse()))
	assert.True(t, back.Equal(before))
}

func TestComputeDelta_SplitComponentCount(t *testing.T) {
	before := newFrame(t, []models.NodeID{1, 2, 3, 4},
		[2]models.NodeID{1, 2}, [2]models.NodeID{2, 3}, [2]models.NodeID{3, 4})
	after := newFrame(t, []models.NodeID{1, 2, 3, 4},
		[2]models.NodeID{1, 2}, [2]models.NodeID{3, 4})

	d := ComputeDelta(before, after)
	require.NoError(t, Apply(before, d))
	n := before.ComponentCount()
	assert.True(t, n >= 1 && n <= 2)
	assert.Equal(t, 2, n)
}

func TestComputeDelta_IdenticalFramesIsEmpty(t *testing.T) {
	a := newFrame(t, []models.NodeID{1, 2}, [2]models.NodeID{1, 2})
	b := newFrame(t, []models.NodeID{1, 2}, [2]models.NodeID{2, 1})
	d := ComputeDelta(a, b)
	assert.True(t, d.IsEmpty())
	assert.Equal(t, "nodes +0/-0, edges +0/-0", d.Summary())
}

func TestNewDelta_RejectsOverlap(t *testing.T) {
	_, err := NewDelta(nodes(1), nodes(1), nil, nil)
	assert.ErrorIs(t, err, ErrConflict)

	d, err := NewDelta(nodes(1), nodes(2), nil, edges([2]models.NodeID{2, 3}))
	require.NoError(t, err)
	assert.Len(t, d.AddedEdges, 1)
}

func TestCompose_Associative(t *testing.T) {
	d1 := &Delta{AddedNodes: nodes(10), AddedEdges: edges([2]models.NodeID{1, 10})}
	d2 := &Delta{RemovedNodes: nodes(2), RemovedEdges: edges([2]models.NodeID{1, 2})}
	d3 := &Delta{AddedNodes: nodes(11, 12), AddedEdges: edges([2]models.NodeID{11, 12})}

	left, err := Compose([]*Delta{d1, d2})
	require.NoError(t, err)
	nested, err := Compose([]*Delta{left, d3})
	require.NoError(t, err)
	flat, err := Compose([]*Delta{d1, d2, d3})
	require.NoError(t, err)

	assert.Equal(t, flat, nested)
	assert.Equal(t, []models.NodeID{10, 11, 12}, flat.AddedNodeIDs())
	assert.Equal(t, []models.NodeID{2}, flat.RemovedNodeIDs())
}

func TestCompose_AddRemoveConflict(t *testing.T) {
	d1 := &Delta{AddedNodes: nodes(6)}
	d2 := &Delta{RemovedNodes: nodes(6)}

	_, err := Compose([]*Delta{d1, d2})
	var conflict *ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, models.NodeID(6), conflict.Node)

	_, err = Compose([]*Delta{d2, d1})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestCompose_EdgeAddedTwice(t *testing.T) {
	d1 := &Delta{AddedEdges: edges([2]models.NodeID{1, 2})}
	d2 := &Delta{AddedEdges: edges([2]models.NodeID{2, 1})}

	_, err := Compose([]*Delta{d1, d2})
	var conflict *ConflictError
	require.True(t, errors.As(err, &conflict))
	require.NotNil(t, conflict.Edge)
	assert.Equal(t, models.EdgeKey{Lo: 1, Hi: 2}, *conflict.Edge)
}

func TestCompose_Empty(t *testing.T) {
	d, err := Compose(nil)
	require.NoError(t, err)
	assert.True(t, d.IsEmpty())
}

func TestApply_FailureLeavesFrameUnchanged(t *testing.T) {
	f := newFrame(t, []models.NodeID{1, 2}, [2]models.NodeID{1, 2})
	d := &Delta{
		AddedNodes:   nodes(3),
		AddedEdges:   edges([2]models.NodeID{3, 99}),
		RemovedNodes: nodes(1),
	}

	err := Apply(f, d)
	assert.ErrorIs(t, err, ErrMissingEndpoint)
	assert.Equal(t, []models.NodeID{1, 2}, f.NodeIDs())
	assert.True(t, f.HasEdge(1, 2))
}

func TestApply_AdditionsBeforeRemovals(t *testing.T) {
	// The added edge references a node removed by the same delta; it is
	// inserted first and then cascaded away.
	f := newFrame(t, []models.NodeID{1, 2})
	d := &Delta{
		AddedNodes:   nodes(3),
		AddedEdges:   edges([2]models.NodeID{2, 3}, [2]models.NodeID{1, 3}),
		RemovedNodes: nodes(2),
	}

	require.NoError(t, Apply(f, d))
	assert.Equal(t, []models.NodeID{1, 3}, f.NodeIDs())
	assert.Equal(t, []models.EdgeKey{{Lo: 1, Hi: 3}}, f.EdgeKeys())
}
