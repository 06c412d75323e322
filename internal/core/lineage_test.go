package core

import (
	"errors"
	"testing"

	"github.com/kilupskalvis/skedits/internal/graph"
	"github.com/kilupskalvis/skedits/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineage_Navigation(t *testing.T) {
	l := NewLineage()
	l.Add(LineageEdge{Source: 3, Target: 6, Operation: 1})
	l.Add(LineageEdge{Source: 4, Target: 6, Operation: 1})
	l.Add(LineageEdge{Source: 6, Target: 7, Operation: 2})
	l.Add(LineageEdge{Source: 10, Target: 11, Operation: 3})

	assert.Equal(t, 4, l.Len())
	assert.Equal(t, []models.NodeID{3, 4, 6, 7, 10, 11}, l.Nodes())
	assert.Equal(t, []models.NodeID{7}, l.Successors(6))
	assert.Equal(t, []models.NodeID{3, 4}, l.Predecessors(6))
	assert.Equal(t, [][]models.NodeID{{3, 4, 6, 7}, {10, 11}}, l.WeaklyConnectedComponents())
}

func TestUnionFind(t *testing.T) {
	uf := newUnionFind[int]()
	uf.union(1, 2)
	uf.union(3, 4)
	uf.union(2, 4)

	assert.Equal(t, uf.find(1), uf.find(3))
	assert.NotEqual(t, uf.find(1), uf.find(5))
}

func TestGroupMetaOperations_Singletons(t *testing.T) {
	ed := analyzeOps(t, newThreeEditService(t), finalRoot)

	metas, err := GroupMetaOperations(ed)
	require.NoError(t, err)
	require.Len(t, metas.Groups, 3)

	for i, want := range []models.OperationID{10, 11, 12} {
		g := metas.Groups[i]
		assert.Equal(t, models.MetaOperationID(i), g.ID)
		assert.Equal(t, []models.OperationID{want}, g.Operations)
		assert.Equal(t, models.MetaOperationID(i), metas.ByOperation[want])
		require.NotNil(t, g.Delta)
		assert.Equal(t, ed.ByOperation[want].Summary(), g.Delta.Summary())
	}
	assert.True(t, metas.Groups[0].HasMerge)
	assert.False(t, metas.Groups[0].HasSplit)
	assert.True(t, metas.Groups[1].HasSplit)
}

func TestGroupMetaOperations_EntangledConflict(t *testing.T) {
	ed := analyzeOps(t, newEntangledService(t), entangledRoot)

	metas, err := GroupMetaOperations(ed)
	require.Error(t, err)
	assert.True(t, errors.Is(err, graph.ErrConflict))

	require.NotNil(t, metas)
	require.Len(t, metas.Groups, 1)
	g := metas.Groups[0]
	assert.Equal(t, []models.OperationID{10, 11}, g.Operations)
	assert.True(t, g.HasMerge)
	assert.True(t, g.HasSplit)
	assert.Nil(t, g.Delta)
	assert.True(t, errors.Is(g.Err, graph.ErrConflict))
}

func TestGroupMetaOperations_CoversEveryOperation(t *testing.T) {
	ed := analyzeOps(t, newEntangledService(t), entangledRoot)
	metas, _ := GroupMetaOperations(ed)

	seen := 0
	for _, g := range metas.Groups {
		seen += len(g.Operations)
	}
	assert.Equal(t, len(ed.Operations), seen)
	for _, o := range ed.Operations {
		_, ok := metas.ByOperation[o.ID]
		assert.True(t, ok, "operation %d has no meta-operation", o.ID)
	}
}

func TestMetaOperations_GetOutOfRange(t *testing.T) {
	var nilMetas *MetaOperations
	_, ok := nilMetas.Get(0)
	assert.False(t, ok)

	metas := &MetaOperations{Groups: []MetaOperation{{ID: 0}}}
	_, ok = metas.Get(1)
	assert.False(t, ok)
	_, ok = metas.Get(models.NoMetaOperation)
	assert.False(t, ok)
}
