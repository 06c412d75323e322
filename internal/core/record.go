package core

import (
	"errors"
	"math"
	"slices"

	"github.com/kilupskalvis/skedits/internal/models"
)

// ErrEmptySequence is returned when distances are requested for a sequence
// without states.
var ErrEmptySequence = errors.New("sequence has no states")

// StateRecord is the serializable form of a State and its statistics.
type StateRecord struct {
	Label        string             `json:"label"`
	Edits        []EditID           `json:"edits"`
	Added        []EditID           `json:"added"`
	NodeCount    int                `json:"node_count"`
	EdgeCount    int                `json:"edge_count"`
	PreSynapses  []models.SynapseID `json:"pre_synapses"`
	PostSynapses []models.SynapseID `json:"post_synapses"`
	Stats        Stats              `json:"stats"`
}

// SequenceRecord is the serializable form of a Sequence.
type SequenceRecord struct {
	Root        models.SegmentID `json:"root_id"`
	Anchor      models.NodeID    `json:"anchor"`
	Granularity string           `json:"granularity"`
	Scheme      string           `json:"scheme"`
	Seed        int64            `json:"seed"`
	States      []StateRecord    `json:"states"`
}

// Record converts the sequence into its serializable form. A nil group uses
// ByPartnerSegment.
func (s *Sequence) Record(root models.SegmentID, group GroupFunc) *SequenceRecord {
	rec := &SequenceRecord{
		Root:        root,
		Anchor:      s.anchor,
		Granularity: s.granularity.String(),
		Scheme:      string(s.order),
		Seed:        s.seed,
		States:      make([]StateRecord, len(s.states)),
	}
	for i, st := range s.states {
		rec.States[i] = StateRecord{
			Label:        st.Label,
			Edits:        st.Edits,
			Added:        st.Added,
			NodeCount:    st.NodeCount,
			EdgeCount:    st.EdgeCount,
			PreSynapses:  st.PreSynapses,
			PostSynapses: st.PostSynapses,
			Stats:        s.stats(st, group),
		}
	}
	return rec
}

// Distance is how far one state's output proportions are from the final
// state's, under several metrics.
type Distance struct {
	Label         string  `json:"label"`
	Euclidean     float64 `json:"euclidean"`
	Cityblock     float64 `json:"cityblock"`
	Cosine        float64 `json:"cosine"`
	JensenShannon float64 `json:"jensenshannon"`
}

// DistanceToFinal compares every state's pre-synaptic partner proportions
// with those of the final state. The final state is the one labelled
// FinalLabel, which is then left out of the result; otherwise it is the last
// state, which is kept.
func DistanceToFinal(rec *SequenceRecord) ([]Distance, error) {
	if len(rec.States) == 0 {
		return nil, ErrEmptySequence
	}
	final := len(rec.States) - 1
	excludeFinal := false
	for i, st := range rec.States {
		if st.Label == FinalLabel {
			final, excludeFinal = i, true
			break
		}
	}

	keySet := make(map[string]struct{})
	for _, st := range rec.States {
		for k := range st.Stats.PreProportions {
			keySet[k] = struct{}{}
		}
	}
	keys := make([]string, 0, len(keySet))
	for k := range keySet {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	vector := func(st StateRecord) []float64 {
		v := make([]float64, len(keys))
		for i, k := range keys {
			v[i] = st.Stats.PreProportions[k]
		}
		return v
	}
	want := vector(rec.States[final])

	out := make([]Distance, 0, len(rec.States))
	for i, st := range rec.States {
		if excludeFinal && i == final {
			continue
		}
		v := vector(st)
		out = append(out, Distance{
			Label:         st.Label,
			Euclidean:     euclidean(v, want),
			Cityblock:     cityblock(v, want),
			Cosine:        cosine(v, want),
			JensenShannon: jensenShannon(v, want),
		})
	}
	return out, nil
}

func euclidean(u, v []float64) float64 {
	var sum float64
	for i := range u {
		d := u[i] - v[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func cityblock(u, v []float64) float64 {
	var sum float64
	for i := range u {
		sum += math.Abs(u[i] - v[i])
	}
	return sum
}

// cosine is 1 - cos(angle). Two empty vectors are identical; an empty vector
// is orthogonal to any other.
func cosine(u, v []float64) float64 {
	var dot, nu, nv float64
	for i := range u {
		dot += u[i] * v[i]
		nu += u[i] * u[i]
		nv += v[i] * v[i]
	}
	switch {
	case nu == 0 && nv == 0:
		return 0
	case nu == 0 || nv == 0:
		return 1
	}
	return 1 - dot/math.Sqrt(nu*nv)
}

// jensenShannon is the square root of the natural-log Jensen-Shannon
// divergence of u and v, each normalized to sum to one. An empty vector is
// maximally distant from any other.
func jensenShannon(u, v []float64) float64 {
	su, sv := sum(u), sum(v)
	switch {
	case su == 0 && sv == 0:
		return 0
	case su == 0 || sv == 0:
		return math.Sqrt(math.Ln2)
	}
	var div float64
	for i := range u {
		p, q := u[i]/su, v[i]/sv
		m := (p + q) / 2
		if p > 0 {
			div += p * math.Log(p/m)
		}
		if q > 0 {
			div += q * math.Log(q/m)
		}
	}
	return math.Sqrt(math.Max(div/2, 0))
}

func sum(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x
	}
	return s
}
