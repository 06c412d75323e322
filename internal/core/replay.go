package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strconv"

	"github.com/kilupskalvis/skedits/internal/chunkedgraph"
	"github.com/kilupskalvis/skedits/internal/graph"
	"github.com/kilupskalvis/skedits/internal/models"
)

// Sentinel errors for replay failures.
var (
	ErrInvariant          = errors.New("replay invariant violated")
	ErrReplayVerification = errors.New("replay verification failed")
	ErrReplayClosed       = errors.New("replay already finished")
)

// ReplayState is the lifecycle of a Replayer.
type ReplayState int

const (
	StateEmpty ReplayState = iota
	StateBuilding
	StateVerified
	StateFailed
)

func (s ReplayState) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateBuilding:
		return "building"
	case StateVerified:
		return "verified"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// StepKind says which invariant a step is checked against.
type StepKind int

const (
	KindMerge StepKind = iota
	KindSplit
	// KindComposite steps bundle several operations and are not checked.
	KindComposite
)

func (k StepKind) String() string {
	switch k {
	case KindMerge:
		return "merge"
	case KindSplit:
		return "split"
	}
	return "composite"
}

// Step is one delta to fold into the replayed frame.
type Step struct {
	Label string
	Kind  StepKind
	Delta *graph.Delta
}

// InvariantError reports a merge that left its pieces disconnected, or a
// split into more than two pieces.
type InvariantError struct {
	Step       string
	Kind       StepKind
	Components int
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("step %s (%s): touched nodes span %d components", e.Step, e.Kind, e.Components)
}

func (e *InvariantError) Is(target error) bool { return target == ErrInvariant }

// ReplayVerificationError reports a replayed state that differs from the
// independently fetched ground truth.
type ReplayVerificationError struct {
	Anchor     models.NodeID
	Difference graph.Difference
}

func (e *ReplayVerificationError) Error() string {
	return fmt.Sprintf("replayed component of node %d differs from ground truth: %s", e.Anchor, e.Difference)
}

func (e *ReplayVerificationError) Is(target error) bool { return target == ErrReplayVerification }

// ReplayOptions configures a Replayer.
type ReplayOptions struct {
	// CheckInvariants enables the per-step merge/split component check.
	CheckInvariants bool
	// Anchor selects the component compared by Verify. Zero uses the
	// smallest node of the ground truth.
	Anchor models.NodeID
	Logger *slog.Logger
}

// Replayer folds deltas into a frame, strictly in the order they are given.
type Replayer struct {
	frame   *graph.Frame
	state   ReplayState
	applied int
	opts    ReplayOptions
	logger  *slog.Logger
}

// NewReplayer starts a replay from a copy of initial.
func NewReplayer(initial *graph.Frame, opts ReplayOptions) *Replayer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Replayer{frame: initial.Clone(), state: StateEmpty, opts: opts, logger: logger}
}

// Frame returns the current replayed frame. Callers must not mutate it.
func (r *Replayer) Frame() *graph.Frame { return r.frame }

// State returns the lifecycle state.
func (r *Replayer) State() ReplayState { return r.state }

// Applied returns the number of steps applied.
func (r *Replayer) Applied() int { return r.applied }

// Apply folds one step into the frame. The first failure moves the
// replayer to StateFailed and every later call is rejected.
func (r *Replayer) Apply(step Step) error {
	if r.state == StateFailed || r.state == StateVerified {
		return fmt.Errorf("apply step %s: %w (%s)", step.Label, ErrReplayClosed, r.state)
	}
	r.state = StateBuilding

	if err := graph.Apply(r.frame, step.Delta); err != nil {
		r.state = StateFailed
		return fmt.Errorf("apply step %s: %w", step.Label, err)
	}
	r.applied++

	if r.opts.CheckInvariants && step.Kind != KindComposite {
		touched := touchedNodes(r.frame, step.Delta)
		if len(touched) > 0 {
			n := r.frame.SpanningComponents(touched)
			if (step.Kind == KindMerge && n != 1) || (step.Kind == KindSplit && n > 2) {
				r.state = StateFailed
				return &InvariantError{Step: step.Label, Kind: step.Kind, Components: n}
			}
		}
	}

	r.logger.Debug("applied replay step", "step", step.Label, "kind", step.Kind.String(), "delta", step.Delta.Summary())
	return nil
}

// touchedNodes returns the surviving nodes a delta added or cut at.
func touchedNodes(f *graph.Frame, d *graph.Delta) []models.NodeID {
	var ids []models.NodeID
	for _, n := range d.AddedNodes {
		ids = append(ids, n.ID)
	}
	for _, es := range [][]models.Edge{d.AddedEdges, d.RemovedEdges} {
		for _, e := range es {
			ids = append(ids, e.Source, e.Target)
		}
	}
	out := ids[:0]
	for _, id := range ids {
		if f.HasNode(id) {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Verify compares the anchor's component of the replayed frame with the
// anchor's component of truth.
func (r *Replayer) Verify(truth *graph.Frame) error {
	if r.state == StateFailed {
		return fmt.Errorf("verify: %w (%s)", ErrReplayClosed, r.state)
	}

	anchor := r.opts.Anchor
	if anchor == 0 {
		ids := truth.NodeIDs()
		if len(ids) == 0 {
			r.state = StateFailed
			return fmt.Errorf("verify: ground truth is empty")
		}
		anchor = ids[0]
	}

	got, err := r.frame.ComponentOf(anchor)
	if err != nil {
		r.state = StateFailed
		return fmt.Errorf("verify replayed frame: %w", err)
	}
	want, err := truth.ComponentOf(anchor)
	if err != nil {
		r.state = StateFailed
		return fmt.Errorf("verify ground truth: %w", err)
	}

	if diff := got.Compare(want); !diff.Empty() {
		r.state = StateFailed
		return &ReplayVerificationError{Anchor: anchor, Difference: diff}
	}
	r.state = StateVerified
	return nil
}

// OrderScheme names an edit ordering.
type OrderScheme string

const (
	OrderTime    OrderScheme = "time"
	OrderReverse OrderScheme = "reverse"
	OrderRandom  OrderScheme = "random"
	// OrderAccess applies merges as they become reachable from the anchor.
	// It depends on sequence state and is only available to sequences.
	OrderAccess OrderScheme = "access"
)

// ParseOrderScheme validates a scheme name.
func ParseOrderScheme(s string) (OrderScheme, error) {
	switch o := OrderScheme(s); o {
	case OrderTime, OrderReverse, OrderRandom, OrderAccess:
		return o, nil
	}
	return "", fmt.Errorf("unknown order scheme %q", s)
}

// orderIDs permutes a chronological id list. Random order is a
// deterministic function of seed.
func orderIDs[T any](chronological []T, scheme OrderScheme, seed int64) ([]T, error) {
	ids := slices.Clone(chronological)
	switch scheme {
	case OrderTime:
	case OrderReverse:
		slices.Reverse(ids)
	case OrderRandom:
		rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))
		rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	case OrderAccess:
		return nil, fmt.Errorf("order %q is only available to sequences", scheme)
	default:
		return nil, fmt.Errorf("unknown order scheme %q", scheme)
	}
	return ids, nil
}

// OrderOperations returns operation ids in the given order. ops must be
// chronological.
func OrderOperations(ops []models.Operation, scheme OrderScheme, seed int64) ([]models.OperationID, error) {
	ids := make([]models.OperationID, len(ops))
	for i, op := range ops {
		ids[i] = op.ID
	}
	return orderIDs(ids, scheme, seed)
}

// StepsFor builds forward steps for operations in the given order.
func StepsFor(ed *EditDeltas, order []models.OperationID) ([]Step, error) {
	steps := make([]Step, 0, len(order))
	for _, id := range order {
		op, ok := ed.Operation(id)
		if !ok {
			return nil, fmt.Errorf("operation %d not in change log", id)
		}
		d, ok := ed.ByOperation[id]
		if !ok {
			return nil, fmt.Errorf("no delta for operation %d", id)
		}
		kind := KindSplit
		if op.IsMerge {
			kind = KindMerge
		}
		steps = append(steps, Step{Label: strconv.FormatInt(int64(id), 10), Kind: kind, Delta: d})
	}
	return steps, nil
}

// ReverseSteps builds rollback steps: reversed deltas in reverse
// chronological order. A reversed merge is checked as a split and vice
// versa.
func ReverseSteps(ed *EditDeltas) []Step {
	steps := make([]Step, 0, len(ed.Operations))
	for i := len(ed.Operations) - 1; i >= 0; i-- {
		op := ed.Operations[i]
		kind := KindMerge
		if op.IsMerge {
			kind = KindSplit
		}
		steps = append(steps, Step{
			Label: strconv.FormatInt(int64(op.ID), 10),
			Kind:  kind,
			Delta: ed.ByOperation[op.ID].Reverse(),
		})
	}
	return steps
}

// MetaSteps builds composite steps for meta-operations in id order. It
// fails on the first group whose members conflict.
func MetaSteps(metas *MetaOperations) ([]Step, error) {
	steps := make([]Step, 0, len(metas.Groups))
	for _, g := range metas.Groups {
		if g.Err != nil {
			return nil, g.Err
		}
		steps = append(steps, Step{
			Label: "meta-" + strconv.FormatInt(int64(g.ID), 10),
			Kind:  KindComposite,
			Delta: g.Delta,
		})
	}
	return steps, nil
}

// ReplayReport summarizes a full segment replay.
type ReplayReport struct {
	Root        models.SegmentID   `json:"root_id"`
	LatestRoot  models.SegmentID   `json:"latest_root_id"`
	Operations  int                `json:"operations"`
	Applied     int                `json:"applied"`
	State       string             `json:"state"`
	NodeCount   int                `json:"node_count"`
	EdgeCount   int                `json:"edge_count"`
	WeirdLeaves []models.SegmentID `json:"weird_leaves,omitempty"`
}

// ReplaySegmentOptions configures ReplaySegment.
type ReplaySegmentOptions struct {
	Analyze         AnalyzeOptions
	CheckInvariants bool
}

// ReplaySegment replays root's whole change log chronologically from its
// unedited network and verifies the anchor's component against a fresh
// fetch of the latest root. The report is returned even on failure, filled
// as far as the replay got.
func ReplaySegment(ctx context.Context, svc chunkedgraph.Service, root models.SegmentID, anchor models.NodeID, opts ReplaySegmentOptions) (*ReplayReport, error) {
	report := &ReplayReport{Root: root, State: StateEmpty.String()}

	a, err := AnalyzeSegment(ctx, svc, root, opts.Analyze)
	if err != nil {
		report.State = StateFailed.String()
		return report, err
	}
	return replayAnalysis(ctx, svc, a, anchor, opts.CheckInvariants, report)
}

func replayAnalysis(ctx context.Context, svc chunkedgraph.Service, a *Analysis, anchor models.NodeID, checkInvariants bool, report *ReplayReport) (*ReplayReport, error) {
	root := a.Root
	report.Operations = len(a.Operations)
	report.WeirdLeaves = a.WeirdLeaves

	order, err := OrderOperations(a.Operations, OrderTime, 0)
	if err != nil {
		report.State = StateFailed.String()
		return report, err
	}
	steps, err := StepsFor(a.Deltas, order)
	if err != nil {
		report.State = StateFailed.String()
		return report, fmt.Errorf("replay root %d: %w", root, err)
	}

	logger := a.logger
	if logger == nil {
		logger = slog.Default()
	}
	r := NewReplayer(a.Initial, ReplayOptions{
		CheckInvariants: checkInvariants,
		Anchor:          anchor,
		Logger:          logger,
	})
	defer func() {
		report.Applied = r.Applied()
		report.State = r.State().String()
		report.NodeCount = r.Frame().NodeCount()
		report.EdgeCount = r.Frame().EdgeCount()
	}()

	for _, step := range steps {
		if err := r.Apply(step); err != nil {
			return report, fmt.Errorf("replay root %d: %w", root, err)
		}
	}

	latest, err := svc.LatestRoot(ctx, root)
	if err != nil {
		return report, fmt.Errorf("get latest root: %w", err)
	}
	report.LatestRoot = latest

	truth, err := FetchSegmentFrame(ctx, svc, []models.SegmentID{latest}, false)
	if err != nil {
		return report, fmt.Errorf("fetch ground truth: %w", err)
	}
	if err := r.Verify(truth); err != nil {
		return report, fmt.Errorf("replay root %d: %w", root, err)
	}

	logger.Info("replay verified", "root_id", root, "latest_root_id", latest, "operations", len(steps))
	return report, nil
}
