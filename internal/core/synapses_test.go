package core

import (
	"context"
	"errors"
	"testing"

	"github.com/kilupskalvis/skedits/internal/annotation"
	"github.com/kilupskalvis/skedits/internal/chunkedgraph"
	"github.com/kilupskalvis/skedits/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func synapseIDs(syns []models.Synapse) []models.SynapseID {
	out := make([]models.SynapseID, len(syns))
	for i, s := range syns {
		out[i] = s.ID
	}
	return out
}

func TestLoadAllTimeSynapses(t *testing.T) {
	m := newThreeEditService(t)

	syns, err := LoadAllTimeSynapses(context.Background(), m, newThreeEditSynapses(), finalRoot, false)
	require.NoError(t, err)
	assert.Equal(t, []models.SynapseID{1, 2, 4, 5}, synapseIDs(syns.Pre))
	assert.Equal(t, []models.SynapseID{3, 4}, synapseIDs(syns.Post))
	// One lookup per lineage leaf.
	assert.Equal(t, 3, m.Calls("LatestRoot"))
}

func TestLoadAllTimeSynapses_RemoveSelf(t *testing.T) {
	m := newThreeEditService(t)

	syns, err := LoadAllTimeSynapses(context.Background(), m, newThreeEditSynapses(), finalRoot, true)
	require.NoError(t, err)
	assert.Equal(t, []models.SynapseID{1, 2, 5}, synapseIDs(syns.Pre))
	assert.Equal(t, []models.SynapseID{3}, synapseIDs(syns.Post))
}

func TestLoadAllTimeSynapses_QueryError(t *testing.T) {
	store := annotation.NewMockStore()
	store.Err = errors.New("database is locked")

	_, err := LoadAllTimeSynapses(context.Background(), newThreeEditService(t), store, finalRoot, false)
	assert.ErrorContains(t, err, "database is locked")
}

func TestDedupeSynapses(t *testing.T) {
	syns := []models.Synapse{
		{ID: 3, PreSegment: 1, PostSegment: 2},
		{ID: 1, PreSegment: 1, PostSegment: 2},
		{ID: 3, PreSegment: 1, PostSegment: 2},
		{ID: 2, PreSegment: 1, PostSegment: 1},
	}
	assert.Equal(t, []models.SynapseID{1, 2, 3}, synapseIDs(dedupeSynapses(syns, false)))
	assert.Equal(t, []models.SynapseID{1, 3}, synapseIDs(dedupeSynapses(syns, true)))
}

// entangledSynapses registers supervoxels on the entangled service. Node 7
// holds supervoxel 3003 now, and 3 and 6 held it before. Node 4 was never
// edited.
func entangledSynapses(m *chunkedgraph.MockClient) *SegmentSynapses {
	m.AddChildren(3, false, 3001, 3003)
	m.AddChildren(6, false, 3003, 3004)
	m.AddChildren(7, true, 3003)
	m.AddChildren(4, true, 4001)
	return &SegmentSynapses{
		Pre: []models.Synapse{
			{ID: 20, PreSegment: entangledRoot, PreNode: 7, PreSupervoxel: 3003},
			{ID: 21, PreSegment: entangledRoot, PreNode: 4, PreSupervoxel: 4001},
			{ID: 22, PreSegment: entangledRoot, PreNode: 5},
		},
	}
}

func TestMapSynapseNodes_LineageCandidates(t *testing.T) {
	m := newEntangledService(t)
	a := analyze(t, m, entangledRoot)
	syns := entangledSynapses(m)

	nodes, err := MapSynapseNodes(context.Background(), m, a.Deltas.Lineage, syns)
	require.NoError(t, err)
	assert.ElementsMatch(t, []models.NodeID{3, 6, 7}, nodes.Pre[20])
	assert.Equal(t, []models.NodeID{4}, nodes.Pre[21])
	assert.Equal(t, []models.NodeID{5}, nodes.Pre[22])
	assert.Empty(t, nodes.Post)
	assert.Equal(t, 1, m.Calls("Level2Of"))
}

func TestMapSynapseNodes_SkipsNodesWithoutSupervoxel(t *testing.T) {
	m := newEntangledService(t)
	a := analyze(t, m, entangledRoot)
	m.AddChildren(3, false, 3001)
	m.AddChildren(6, false, 3004)
	m.AddChildren(7, true, 3003)
	syns := &SegmentSynapses{Post: []models.Synapse{{ID: 30, PostNode: 7, PostSupervoxel: 3003}}}

	nodes, err := MapSynapseNodes(context.Background(), m, a.Deltas.Lineage, syns)
	require.NoError(t, err)
	assert.Equal(t, []models.NodeID{7}, nodes.Post[30])
}

func TestMapSynapseNodes_Level2Error(t *testing.T) {
	m := newEntangledService(t)
	a := analyze(t, m, entangledRoot)
	syns := entangledSynapses(m)
	m.Err = errors.New("connection refused")

	_, err := MapSynapseNodes(context.Background(), m, a.Deltas.Lineage, syns)
	assert.ErrorContains(t, err, "level-2 nodes of pre supervoxels")
	assert.ErrorContains(t, err, "connection refused")
}

func TestMapSynapseNodes_NoSupervoxelsNoLookup(t *testing.T) {
	m := newThreeEditService(t)
	syns, err := LoadAllTimeSynapses(context.Background(), m, newThreeEditSynapses(), finalRoot, false)
	require.NoError(t, err)

	nodes, err := MapSynapseNodes(context.Background(), m, nil, syns)
	require.NoError(t, err)
	assert.Equal(t, 0, m.Calls("Level2Of"))
	for _, syn := range syns.Pre {
		assert.Equal(t, []models.NodeID{syn.PreNode}, nodes.Pre[syn.ID])
	}
}
