package core

import (
	"context"
	"fmt"
	"slices"

	"github.com/kilupskalvis/skedits/internal/annotation"
	"github.com/kilupskalvis/skedits/internal/chunkedgraph"
	"github.com/kilupskalvis/skedits/internal/models"
)

// SegmentSynapses are the synapses a neuron could have had at any point in
// its edit history, split by which side the neuron is on.
type SegmentSynapses struct {
	Pre  []models.Synapse
	Post []models.Synapse
}

// LoadAllTimeSynapses collects every synapse on any segment root was ever
// made from. The lineage leaves of root are mapped to their latest roots,
// which is where the annotation table attaches synapses today. With
// removeSelf set autapses are dropped.
func LoadAllTimeSynapses(ctx context.Context, svc chunkedgraph.Service, store annotation.Store, root models.SegmentID, removeSelf bool) (*SegmentSynapses, error) {
	leaves, err := svc.OriginalRoots(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("get original roots: %w", err)
	}

	var latest []models.SegmentID
	for _, leaf := range leaves {
		id, err := svc.LatestRoot(ctx, leaf)
		if err != nil {
			return nil, fmt.Errorf("latest root of %d: %w", leaf, err)
		}
		latest = append(latest, id)
	}
	slices.Sort(latest)
	latest = slices.Compact(latest)
	if len(latest) == 0 {
		return &SegmentSynapses{}, nil
	}

	pre, err := store.QuerySynapses(ctx, annotation.Query{PreSegments: latest})
	if err != nil {
		return nil, fmt.Errorf("query pre-synapses: %w", err)
	}
	post, err := store.QuerySynapses(ctx, annotation.Query{PostSegments: latest})
	if err != nil {
		return nil, fmt.Errorf("query post-synapses: %w", err)
	}
	return &SegmentSynapses{
		Pre:  dedupeSynapses(pre, removeSelf),
		Post: dedupeSynapses(post, removeSelf),
	}, nil
}

func dedupeSynapses(syns []models.Synapse, removeSelf bool) []models.Synapse {
	seen := make(map[models.SynapseID]bool, len(syns))
	out := make([]models.Synapse, 0, len(syns))
	for _, s := range syns {
		if seen[s.ID] || (removeSelf && s.IsSelf()) {
			continue
		}
		seen[s.ID] = true
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b models.Synapse) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}

// SynapseNodes lists, per synapse, every level-2 node that held the
// synapse's supervoxel at some point in the edit history. A synapse without
// an entry resolves through its annotated level-2 node only.
type SynapseNodes struct {
	Pre  map[models.SynapseID][]models.NodeID
	Post map[models.SynapseID][]models.NodeID
}

// MapSynapseNodes finds the historical level-2 nodes of every synapse in
// syns. A synapse's current level-2 node is looked up from its supervoxel.
// When that node was touched by an edit, every node of its lineage
// component whose supervoxels include the synapse's is a candidate;
// otherwise the current node is the only one. Synapses without a supervoxel
// keep their annotated node.
func MapSynapseNodes(ctx context.Context, svc chunkedgraph.Service, lin *Lineage, syns *SegmentSynapses) (*SynapseNodes, error) {
	lc := newLineageComponents(lin)
	pre, err := lc.mapSide(ctx, svc, syns.Pre, Pre)
	if err != nil {
		return nil, err
	}
	post, err := lc.mapSide(ctx, svc, syns.Post, Post)
	if err != nil {
		return nil, err
	}
	return &SynapseNodes{Pre: pre, Post: post}, nil
}

type lineageComponents struct {
	of      map[models.NodeID]int
	members [][]models.NodeID
}

func newLineageComponents(lin *Lineage) *lineageComponents {
	lc := &lineageComponents{of: make(map[models.NodeID]int)}
	if lin == nil {
		return lc
	}
	lc.members = lin.WeaklyConnectedComponents()
	for i, comp := range lc.members {
		for _, id := range comp {
			lc.of[id] = i
		}
	}
	return lc
}

func synapseEnd(syn models.Synapse, side Side) (models.NodeID, models.SupervoxelID) {
	if side == Pre {
		return syn.PreNode, syn.PreSupervoxel
	}
	return syn.PostNode, syn.PostSupervoxel
}

func (lc *lineageComponents) mapSide(ctx context.Context, svc chunkedgraph.Service, syns []models.Synapse, side Side) (map[models.SynapseID][]models.NodeID, error) {
	var svs []models.SupervoxelID
	for _, syn := range syns {
		if _, sv := synapseEnd(syn, side); sv != 0 {
			svs = append(svs, sv)
		}
	}
	current := map[models.SupervoxelID]models.NodeID{}
	if len(svs) > 0 {
		slices.Sort(svs)
		svs = slices.Compact(svs)
		var err error
		if current, err = svc.Level2Of(ctx, svs); err != nil {
			return nil, fmt.Errorf("level-2 nodes of %s supervoxels: %w", side, err)
		}
	}

	out := make(map[models.SynapseID][]models.NodeID, len(syns))
	for _, syn := range syns {
		node, sv := synapseEnd(syn, side)
		cur, ok := current[sv]
		if sv == 0 || !ok {
			out[syn.ID] = []models.NodeID{node}
			continue
		}
		comp, ok := lc.of[cur]
		if !ok {
			out[syn.ID] = []models.NodeID{cur}
			continue
		}

		var candidates []models.NodeID
		for _, id := range lc.members[comp] {
			children, err := svc.Children(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("children of %d: %w", id, err)
			}
			if slices.Contains(children, sv) {
				candidates = append(candidates, id)
			}
		}
		if len(candidates) == 0 {
			candidates = []models.NodeID{cur}
		}
		out[syn.ID] = candidates
	}
	return out, nil
}
