package core

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kilupskalvis/skedits/internal/annotation"
	"github.com/kilupskalvis/skedits/internal/cache"
	"github.com/kilupskalvis/skedits/internal/chunkedgraph"
	"github.com/kilupskalvis/skedits/internal/models"
)

// Cache artifact names.
const (
	ArtifactSequence = "sequence"
	ArtifactDropout  = "dropout"
)

// SequenceRequest describes one sequence computation for a segment.
type SequenceRequest struct {
	Granularity Granularity
	Order       OrderScheme
	Seed        int64
	Anchor      models.NodeID
	// Dropout builds a leave-one-out sequence instead of an ordered one.
	Dropout            bool
	RemoveSelfSynapses bool
	Analyze            AnalyzeOptions
}

// Key returns the cache key the request's result is stored under. Every
// field that changes the record is part of the key.
func (r SequenceRequest) Key(root models.SegmentID) cache.Key {
	k := cache.Key{
		Artifact: ArtifactSequence,
		Segment:  root,
		Scheme:   string(r.Order),
		Parameter: fmt.Sprintf("%s/anchor=%d/remove_self=%t/positions=%t",
			r.Granularity, r.Anchor, r.RemoveSelfSynapses, r.Analyze.WithPositions),
		Seed: r.Seed,
	}
	if k.Scheme == "" {
		k.Scheme = string(OrderTime)
	}
	if r.Dropout {
		k.Artifact = ArtifactDropout
		k.Scheme = "dropout"
	}
	if k.Scheme != string(OrderRandom) {
		k.Seed = 0
	}
	return k
}

// SegmentSequence analyzes root, loads its synapses and builds the requested
// sequence record. Results are read from and written to c; a nil c computes
// every time. The boolean reports whether the result came from the cache.
func SegmentSequence(ctx context.Context, svc chunkedgraph.Service, store annotation.Store, c *cache.Cache, root models.SegmentID, req SequenceRequest) (*SequenceRecord, bool, error) {
	logger := req.Analyze.Logger
	if logger == nil {
		logger = slog.Default()
	}
	key := req.Key(root)

	rec, hit, err := cache.GetOrCompute(ctx, c, key, func(ctx context.Context) (*SequenceRecord, error) {
		a, err := AnalyzeSegment(ctx, svc, root, req.Analyze)
		if err != nil {
			return nil, err
		}
		syns, err := LoadAllTimeSynapses(ctx, svc, store, root, req.RemoveSelfSynapses)
		if err != nil {
			return nil, err
		}
		nodes, err := MapSynapseNodes(ctx, svc, a.Deltas.Lineage, syns)
		if err != nil {
			return nil, fmt.Errorf("map synapses of root %d: %w", root, err)
		}
		opts := SequenceOptions{
			Granularity:  req.Granularity,
			Anchor:       req.Anchor,
			PreSynapses:  syns.Pre,
			PostSynapses: syns.Post,
			SynapseNodes: nodes,
			Order:        req.Order,
			Seed:         req.Seed,
		}

		var seq *Sequence
		if req.Dropout {
			seq, err = BuildDropoutSequence(a.History, opts)
		} else {
			seq, err = BuildOrderedSequence(a.History, opts)
		}
		if err != nil {
			return nil, fmt.Errorf("sequence of root %d: %w", root, err)
		}
		return seq.Record(root, nil), nil
	})
	if err != nil {
		return nil, false, err
	}
	logger.Debug("sequence ready", "root_id", root, "key", key.String(), "cache_hit", hit, "states", len(rec.States))
	return rec, hit, nil
}
