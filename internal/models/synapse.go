package models

// SynapseID identifies a synapse annotation.
type SynapseID int64

// SupervoxelID identifies a supervoxel, the layer-1 atom a level-2 node is
// made of. Supervoxels are never edited, so they pin a synapse across every
// version of the level-2 node that contains it.
type SupervoxelID uint64

// Synapse is an annotation joining two segments at level-2 resolution.
// PreNode and PostNode are the level-2 nodes as of the annotation table's
// materialization; the supervoxels are zero when unknown.
type Synapse struct {
	ID             SynapseID    `json:"id"`
	PreSegment     SegmentID    `json:"pre_pt_root_id"`
	PostSegment    SegmentID    `json:"post_pt_root_id"`
	PreNode        NodeID       `json:"pre_pt_level2_id"`
	PostNode       NodeID       `json:"post_pt_level2_id"`
	PreSupervoxel  SupervoxelID `json:"pre_pt_supervoxel_id,omitempty"`
	PostSupervoxel SupervoxelID `json:"post_pt_supervoxel_id,omitempty"`
	Position       Position     `json:"ctr_pt_position"`
}

// IsSelf reports whether both sides belong to the same segment.
func (s Synapse) IsSelf() bool {
	return s.PreSegment == s.PostSegment
}
