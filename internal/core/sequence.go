package core

import (
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/kilupskalvis/skedits/internal/graph"
	"github.com/kilupskalvis/skedits/internal/models"
)

// ErrDuplicateLabel is returned when a sequence state label is reused.
var ErrDuplicateLabel = errors.New("duplicate state label")

// Labels of the states builders record besides per-edit states.
const (
	InitialLabel = "initial"
	FinalLabel   = "final"
)

// Side says which end of a synapse the anchored neuron is on.
type Side int

const (
	Pre Side = iota
	Post
)

func (s Side) String() string {
	if s == Post {
		return "post"
	}
	return "pre"
}

// GroupFunc assigns a synapse to a statistics group.
type GroupFunc func(syn models.Synapse, side Side) string

// ByPartnerSegment groups synapses by the segment on the other side.
func ByPartnerSegment(syn models.Synapse, side Side) string {
	if side == Pre {
		return strconv.FormatUint(uint64(syn.PostSegment), 10)
	}
	return strconv.FormatUint(uint64(syn.PreSegment), 10)
}

// State is one recorded graph state of a Sequence.
type State struct {
	Label string
	// Edits is the applied edit set, in application order.
	Edits []EditID
	// Added lists the edits applied on top of the previous state.
	Added        []EditID
	NodeCount    int
	EdgeCount    int
	PreSynapses  []models.SynapseID
	PostSynapses []models.SynapseID
	// Frame is the anchored component; nil unless frames are kept.
	Frame *graph.Frame
}

// SequenceOptions configures a Sequence and its builders.
type SequenceOptions struct {
	Granularity Granularity
	// Anchor selects the component of interest. Zero picks the smallest
	// node of the largest component of the fully edited graph.
	Anchor models.NodeID
	// AnchorPosition is used to find the nearest node when the anchor is
	// absent from a state. Defaults to the anchor's own position, if known.
	AnchorPosition *models.Position
	PreSynapses    []models.Synapse
	PostSynapses   []models.Synapse
	// SynapseNodes, when set, resolves synapses through their historical
	// level-2 nodes; see MapSynapseNodes.
	SynapseNodes *SynapseNodes
	KeepFrames   bool

	Order OrderScheme
	Seed  int64
}

// Sequence is an ordered series of graph states, each the anchored
// component of the graph under some set of applied edits, together with the
// synapses that resolve onto it. States are computed strictly in order.
type Sequence struct {
	history     *EditHistory
	granularity Granularity
	anchor      models.NodeID
	anchorPos   *models.Position
	keepFrames  bool
	order       OrderScheme
	seed        int64

	pre, post           []models.Synapse
	preNodes, postNodes map[models.SynapseID][]models.NodeID
	synapses            map[models.SynapseID]models.Synapse

	applied []EditID
	last    *graph.Frame
	states  []*State
	byLabel map[string]int
}

// NewSequence creates an empty sequence over h.
func NewSequence(h *EditHistory, opts SequenceOptions) (*Sequence, error) {
	s := &Sequence{
		history:     h,
		granularity: opts.Granularity,
		anchor:      opts.Anchor,
		anchorPos:   opts.AnchorPosition,
		keepFrames:  opts.KeepFrames,
		order:       opts.Order,
		seed:        opts.Seed,
		pre:         opts.PreSynapses,
		post:        opts.PostSynapses,
		synapses:    make(map[models.SynapseID]models.Synapse),
		byLabel:     make(map[string]int),
	}
	if opts.SynapseNodes != nil {
		s.preNodes, s.postNodes = opts.SynapseNodes.Pre, opts.SynapseNodes.Post
	}
	if s.order == "" {
		s.order = OrderTime
	}
	for _, syn := range s.pre {
		s.synapses[syn.ID] = syn
	}
	for _, syn := range s.post {
		s.synapses[syn.ID] = syn
	}

	if s.anchor == 0 {
		full, err := h.FrameFor(s.granularity, h.EditIDs(s.granularity))
		if err != nil {
			return nil, err
		}
		anchor, ok := largestComponentAnchor(full)
		if !ok {
			return nil, fmt.Errorf("sequence: no nodes to anchor on")
		}
		s.anchor = anchor
	}
	if s.anchorPos == nil {
		for i := len(h.nodes) - 1; i >= 0; i-- {
			if n := h.nodes[i]; n.ID == s.anchor && n.Position != nil {
				p := *n.Position
				s.anchorPos = &p
				break
			}
		}
	}
	return s, nil
}

func largestComponentAnchor(f *graph.Frame) (models.NodeID, bool) {
	var (
		best models.NodeID
		size int
	)
	for c := range f.Components() {
		if c.NodeCount() > size {
			best, size = c.NodeIDs()[0], c.NodeCount()
		}
	}
	return best, size > 0
}

// Anchor returns the anchor node.
func (s *Sequence) Anchor() models.NodeID { return s.anchor }

// Granularity returns the edit granularity.
func (s *Sequence) Granularity() Granularity { return s.granularity }

// Len returns the number of recorded states.
func (s *Sequence) Len() int { return len(s.states) }

// States returns the recorded states in order.
func (s *Sequence) States() []*State { return slices.Clone(s.states) }

// State looks up a state by label.
func (s *Sequence) State(label string) (*State, bool) {
	i, ok := s.byLabel[label]
	if !ok {
		return nil, false
	}
	return s.states[i], true
}

// Applied returns the currently applied edit set.
func (s *Sequence) Applied() []EditID { return slices.Clone(s.applied) }

// ApplyEdits sets the applied edit set to ids (replace) or extends it with
// ids, materializes the resulting graph, selects the anchored component and
// records it under label. When the anchor is absent the node nearest to its
// position is used instead; without a position the state fails with an
// AnchorNotFoundError.
func (s *Sequence) ApplyEdits(ids []EditID, label string, replace bool) (*State, error) {
	if _, dup := s.byLabel[label]; dup {
		return nil, fmt.Errorf("state %q: %w", label, ErrDuplicateLabel)
	}

	var next []EditID
	if replace {
		next = uniqueEdits(nil, ids)
	} else {
		next = uniqueEdits(slices.Clone(s.applied), ids)
	}

	full, err := s.history.FrameFor(s.granularity, next)
	if err != nil {
		return nil, fmt.Errorf("state %q: %w", label, err)
	}
	comp, err := s.selectComponent(full)
	if err != nil {
		return nil, fmt.Errorf("state %q: %w", label, err)
	}

	st := &State{
		Label:        label,
		Edits:        next,
		Added:        newlyApplied(s.applied, next),
		NodeCount:    comp.NodeCount(),
		EdgeCount:    comp.EdgeCount(),
		PreSynapses:  resolve(s.pre, comp, Pre, s.preNodes),
		PostSynapses: resolve(s.post, comp, Post, s.postNodes),
	}
	if s.keepFrames {
		st.Frame = comp
	}

	s.applied = next
	s.last = comp
	s.byLabel[label] = len(s.states)
	s.states = append(s.states, st)
	return st, nil
}

func (s *Sequence) selectComponent(f *graph.Frame) (*graph.Frame, error) {
	comp, err := f.ComponentOf(s.anchor)
	if err == nil {
		return comp, nil
	}
	if errors.Is(err, graph.ErrAnchorNotFound) && s.anchorPos != nil {
		if id, ok := f.NearestNode(*s.anchorPos); ok {
			return f.ComponentOf(id)
		}
	}
	return nil, err
}

func uniqueEdits(base, more []EditID) []EditID {
	seen := make(map[EditID]bool, len(base)+len(more))
	out := make([]EditID, 0, len(base)+len(more))
	for _, id := range append(base, more...) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func newlyApplied(prev, next []EditID) []EditID {
	out := []EditID{}
	for _, id := range next {
		if !slices.Contains(prev, id) {
			out = append(out, id)
		}
	}
	return out
}

func resolve(syns []models.Synapse, comp *graph.Frame, side Side, candidates map[models.SynapseID][]models.NodeID) []models.SynapseID {
	ids := []models.SynapseID{}
	for _, syn := range syns {
		nodes, ok := candidates[syn.ID]
		if !ok {
			node, _ := synapseEnd(syn, side)
			nodes = []models.NodeID{node}
		}
		if slices.ContainsFunc(nodes, comp.HasNode) {
			ids = append(ids, syn.ID)
		}
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

// Stats summarizes the synapses resolved in one state.
type Stats struct {
	PreCount        int                `json:"pre_count"`
	PostCount       int                `json:"post_count"`
	PreGroups       map[string]int     `json:"pre_groups"`
	PostGroups      map[string]int     `json:"post_groups"`
	PreProportions  map[string]float64 `json:"pre_proportions"`
	PostProportions map[string]float64 `json:"post_proportions"`
}

func (s *Sequence) stats(st *State, group GroupFunc) Stats {
	if group == nil {
		group = ByPartnerSegment
	}
	out := Stats{
		PreCount:   len(st.PreSynapses),
		PostCount:  len(st.PostSynapses),
		PreGroups:  make(map[string]int),
		PostGroups: make(map[string]int),
	}
	for _, id := range st.PreSynapses {
		out.PreGroups[group(s.synapses[id], Pre)]++
	}
	for _, id := range st.PostSynapses {
		out.PostGroups[group(s.synapses[id], Post)]++
	}
	out.PreProportions = proportions(out.PreGroups, out.PreCount)
	out.PostProportions = proportions(out.PostGroups, out.PostCount)
	return out
}

func proportions(groups map[string]int, total int) map[string]float64 {
	out := make(map[string]float64, len(groups))
	for k, n := range groups {
		out[k] = float64(n) / float64(total)
	}
	return out
}

// Summaries returns per-state statistics in state order. A nil group uses
// ByPartnerSegment.
func (s *Sequence) Summaries(group GroupFunc) []Stats {
	out := make([]Stats, len(s.states))
	for i, st := range s.states {
		out[i] = s.stats(st, group)
	}
	return out
}

func editLabel(id EditID) string {
	return strconv.FormatInt(int64(id), 10)
}

// BuildOrderedSequence records the unedited state, then applies edits one at
// a time in the configured order, recording a state after each.
func BuildOrderedSequence(h *EditHistory, opts SequenceOptions) (*Sequence, error) {
	s, err := NewSequence(h, opts)
	if err != nil {
		return nil, err
	}
	if s.order == OrderAccess {
		return s, s.buildAccessOrdered()
	}

	order, err := orderIDs(h.EditIDs(s.granularity), s.order, s.seed)
	if err != nil {
		return nil, err
	}
	if _, err := s.ApplyEdits(nil, InitialLabel, true); err != nil {
		return nil, err
	}
	for _, id := range order {
		if _, err := s.ApplyEdits([]EditID{id}, editLabel(id), false); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// buildAccessOrdered starts from every splitting edit applied (plus the edit
// that created the anchor, if any) and then repeatedly applies the earliest
// merging edit that adds an edge reaching the current component. It stops
// when no remaining merge touches the component.
func (s *Sequence) buildAccessOrdered() error {
	g := s.granularity
	h := s.history

	var initial []EditID
	for _, id := range h.EditIDs(g) {
		if h.HasSplit(g, id) {
			initial = append(initial, id)
		}
	}
	for i := len(h.nodes) - 1; i >= 0; i-- {
		if n := h.nodes[i]; n.ID == s.anchor {
			if id, ok := addedBy(g, n.OperationAdded, n.MetaOperationAdded); ok {
				initial = append(initial, id)
			}
			break
		}
	}
	if _, err := s.ApplyEdits(initial, InitialLabel, true); err != nil {
		return err
	}

	addedEdges := make(map[EditID][]models.Edge)
	for _, e := range h.edges {
		if id, ok := addedBy(g, e.OperationAdded, e.MetaOperationAdded); ok {
			addedEdges[id] = append(addedEdges[id], e)
		}
	}

	var candidates []EditID
	for _, id := range h.EditIDs(g) {
		if h.HasMerge(g, id) && !slices.Contains(s.applied, id) {
			candidates = append(candidates, id)
		}
	}

	for len(candidates) > 0 {
		next := -1
		for i, id := range candidates {
			if reaches(s.last, addedEdges[id]) {
				next = i
				break
			}
		}
		if next < 0 {
			return nil
		}
		id := candidates[next]
		candidates = slices.Delete(candidates, next, next+1)
		if _, err := s.ApplyEdits([]EditID{id}, editLabel(id), false); err != nil {
			return err
		}
	}
	return nil
}

// reaches reports whether any edge touches comp without already being part
// of it.
func reaches(comp *graph.Frame, edges []models.Edge) bool {
	for _, e := range edges {
		if comp.HasEdge(e.Source, e.Target) {
			continue
		}
		if comp.HasNode(e.Source) || comp.HasNode(e.Target) {
			return true
		}
	}
	return false
}

// BuildDropoutSequence records, for each edit, the state with every other
// edit applied, labelled by the dropped edit, followed by the state with all
// edits applied, labelled FinalLabel.
func BuildDropoutSequence(h *EditHistory, opts SequenceOptions) (*Sequence, error) {
	s, err := NewSequence(h, opts)
	if err != nil {
		return nil, err
	}
	all := h.EditIDs(s.granularity)
	for i, id := range all {
		rest := append(slices.Clone(all[:i]), all[i+1:]...)
		if _, err := s.ApplyEdits(rest, editLabel(id), true); err != nil {
			return nil, err
		}
	}
	if _, err := s.ApplyEdits(all, FinalLabel, true); err != nil {
		return nil, err
	}
	return s, nil
}
