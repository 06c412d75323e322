package graph

import (
	"errors"
	"testing"

	"github.com/kilupskalvis/skedits/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nodes(ids ...models.NodeID) []models.Node {
	out := make([]models.Node, len(ids))
	for i, id := range ids {
		out[i] = models.NewNode(id)
	}
	return out
}

func edges(pairs ...[2]models.NodeID) []models.Edge {
	out := make([]models.Edge, len(pairs))
	for i, p := range pairs {
		out[i] = models.NewEdge(p[0], p[1])
	}
	return out
}

func newFrame(t *testing.T, ids []models.NodeID, pairs ...[2]models.NodeID) *Frame {
	t.Helper()
	f, err := FromRecords(nodes(ids...), edges(pairs...))
	require.NoError(t, err)
	return f
}

func TestFrame_AddNodesDuplicateFailsAtomically(t *testing.T) {
	f := newFrame(t, []models.NodeID{1, 2})

	err := f.AddNodes(nodes(3, 2))
	require.Error(t, err)

	var dup *DuplicateIdentifierError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, models.NodeID(2), dup.Node)
	assert.ErrorIs(t, err, ErrDuplicateIdentifier)
	assert.False(t, f.HasNode(3), "batch must not be partially applied")
	assert.Equal(t, 2, f.NodeCount())
}

func TestFrame_AddNodesRepeatedInBatch(t *testing.T) {
	f := New()
	err := f.AddNodes(nodes(5, 5))
	assert.ErrorIs(t, err, ErrDuplicateIdentifier)
	assert.Equal(t, 0, f.NodeCount())
}

func TestFrame_AddNodesRejectsZeroID(t *testing.T) {
	f := New()
	assert.Error(t, f.AddNodes(nodes(0)))
}

func TestFrame_ReplaceNodesKeepsEdges(t *testing.T) {
	f := newFrame(t, []models.NodeID{1, 2}, [2]models.NodeID{1, 2})

	n := models.NewNode(1)
	n.Position = &models.Position{X: 1, Y: 2, Z: 3}
	require.NoError(t, f.ReplaceNodes([]models.Node{n}))

	got, ok := f.Node(1)
	require.True(t, ok)
	require.NotNil(t, got.Position)
	assert.Equal(t, 3.0, got.Position.Z)
	assert.True(t, f.HasEdge(1, 2))
}

func TestFrame_AddEdgesMissingEndpoint(t *testing.T) {
	f := newFrame(t, []models.NodeID{1, 2})

	err := f.AddEdges(edges([2]models.NodeID{1, 2}, [2]models.NodeID{2, 9}))
	var missing *MissingEndpointError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, models.NodeID(9), missing.Node)
	assert.Equal(t, 0, f.EdgeCount(), "no edge inserted on failure")
}

func TestFrame_AddEdgesReverseDirectionIsDuplicate(t *testing.T) {
	f := newFrame(t, []models.NodeID{1, 2}, [2]models.NodeID{1, 2})

	err := f.AddEdges(edges([2]models.NodeID{2, 1}))
	assert.ErrorIs(t, err, ErrDuplicateIdentifier)
	assert.Equal(t, 1, f.EdgeCount())
}

func TestFrame_RemoveNodesCascades(t *testing.T) {
	f := newFrame(t, []models.NodeID{1, 2, 3},
		[2]models.NodeID{1, 2}, [2]models.NodeID{2, 3}, [2]models.NodeID{1, 3})

	n := f.RemoveNodes([]models.NodeID{2, 42})
	assert.Equal(t, 1, n)
	assert.False(t, f.HasNode(2))
	assert.Equal(t, 1, f.EdgeCount())
	assert.True(t, f.HasEdge(3, 1))
	assert.Equal(t, []models.NodeID{3}, f.Neighbors(1))
}

func TestFrame_RemoveEdgesIgnoresAbsent(t *testing.T) {
	f := newFrame(t, []models.NodeID{1, 2, 3}, [2]models.NodeID{1, 2})

	n := f.RemoveEdges([]models.EdgeKey{{Lo: 2, Hi: 1}, models.NewEdgeKey(2, 3)})
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, f.EdgeCount())
	assert.Empty(t, f.Neighbors(1))
}

func TestFrame_EdgesKeepInsertionOrder(t *testing.T) {
	f := newFrame(t, []models.NodeID{1, 2, 3, 4},
		[2]models.NodeID{3, 4}, [2]models.NodeID{2, 1}, [2]models.NodeID{2, 3})

	got := f.Edges()
	require.Len(t, got, 3)
	assert.Equal(t, models.NodeID(3), got[0].Source)
	assert.Equal(t, models.NodeID(2), got[1].Source)
	assert.Equal(t, models.NodeID(1), got[1].Target, "direction as inserted is preserved")
	assert.Equal(t, []models.EdgeKey{{Lo: 1, Hi: 2}, {Lo: 2, Hi: 3}, {Lo: 3, Hi: 4}}, f.EdgeKeys())
}

func TestFrame_CloneIsIndependent(t *testing.T) {
	f := newFrame(t, []models.NodeID{1, 2}, [2]models.NodeID{1, 2})
	c := f.Clone()

	c.RemoveNodes([]models.NodeID{1})
	assert.True(t, f.HasNode(1))
	assert.True(t, f.HasEdge(1, 2))
	assert.False(t, c.HasEdge(1, 2))
}

func TestFrame_EqualIgnoresDirection(t *testing.T) {
	a := newFrame(t, []models.NodeID{1, 2, 3}, [2]models.NodeID{1, 2}, [2]models.NodeID{3, 2})
	b := newFrame(t, []models.NodeID{3, 2, 1}, [2]models.NodeID{2, 3}, [2]models.NodeID{2, 1})
	assert.True(t, a.Equal(b))

	b.RemoveEdges([]models.EdgeKey{models.NewEdgeKey(1, 2)})
	assert.False(t, a.Equal(b))
	assert.Equal(t, Difference{MissingEdges: 1}, b.Compare(a))
}

func TestFrame_NearestNode(t *testing.T) {
	f := New()
	near := models.NewNode(1)
	near.Position = &models.Position{X: 10}
	far := models.NewNode(2)
	far.Position = &models.Position{X: 100}
	require.NoError(t, f.AddNodes([]models.Node{near, far, models.NewNode(3)}))

	id, ok := f.NearestNode(models.Position{X: 30})
	require.True(t, ok)
	assert.Equal(t, models.NodeID(1), id)

	_, ok = newFrame(t, []models.NodeID{7}).NearestNode(models.Position{})
	assert.False(t, ok)
}
