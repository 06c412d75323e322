package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kilupskalvis/skedits/internal/core"
	"github.com/kilupskalvis/skedits/internal/models"
)

var sequenceCmd = &cobra.Command{
	Use:   "sequence <root-id>",
	Short: "Build the sequence of states a segment went through",
	Long: `Apply a segment's edits one at a time in the chosen order and record the
anchored component and its synapses after each.

Orders: time, reverse, random (with --seed) and access, which applies
merges as they become reachable from the anchor.`,
	Args: cobra.ExactArgs(1),
	Run:  runSequence,
}

var dropoutCmd = &cobra.Command{
	Use:   "dropout <root-id>",
	Short: "Build leave-one-out states of a segment",
	Long: `For every edit, record the state with all other edits applied, then the
state with every edit applied, and report each state's distance to it.`,
	Args: cobra.ExactArgs(1),
	Run:  runDropout,
}

// sequenceFlags are shared by sequence, dropout and batch.
type sequenceFlags struct {
	order       string
	seed        int64
	granularity string
	anchor      uint64
	removeSelf  bool
	positions   bool
	json        bool
	distances   bool
}

var seqFlags, dropFlags sequenceFlags

func (f *sequenceFlags) register(cmd *cobra.Command, withOrder bool) {
	if withOrder {
		cmd.Flags().StringVar(&f.order, "order", "time", "Edit order (time, reverse, random, access)")
		cmd.Flags().Int64Var(&f.seed, "seed", 0, "Seed for random order")
	}
	cmd.Flags().StringVar(&f.granularity, "granularity", "operation", "Edit granularity (operation, meta)")
	cmd.Flags().Uint64Var(&f.anchor, "anchor", 0, "Level-2 node to follow (default: in the largest final component)")
	cmd.Flags().BoolVar(&f.removeSelf, "remove-self", true, "Drop autapses")
	cmd.Flags().BoolVar(&f.positions, "positions", true, "Fetch node positions for the nearest-node anchor fallback")
	cmd.Flags().BoolVar(&f.json, "json", false, "Print the sequence record as JSON")
	cmd.Flags().BoolVar(&f.distances, "distances", false, "Print distances to the final state")
}

func (f *sequenceFlags) request(c *cmdContext, dropout bool) (core.SequenceRequest, error) {
	g, err := core.ParseGranularity(f.granularity)
	if err != nil {
		return core.SequenceRequest{}, err
	}
	req := core.SequenceRequest{
		Granularity:        g,
		Anchor:             models.NodeID(f.anchor),
		Dropout:            dropout,
		RemoveSelfSynapses: f.removeSelf,
		Seed:               f.seed,
		Analyze:            c.analyzeOptions(f.positions),
	}
	if !dropout {
		if req.Order, err = core.ParseOrderScheme(f.order); err != nil {
			return core.SequenceRequest{}, err
		}
	}
	return req, nil
}

func init() {
	seqFlags.register(sequenceCmd, true)
	dropFlags.register(dropoutCmd, false)
}

func runSequence(cmd *cobra.Command, args []string) {
	runSequenceCommand(args[0], &seqFlags, false)
}

func runDropout(cmd *cobra.Command, args []string) {
	runSequenceCommand(args[0], &dropFlags, true)
}

func runSequenceCommand(arg string, f *sequenceFlags, dropout bool) {
	root := mustParseRoot(arg)
	c := initFullContext()
	defer c.Close()

	req, err := f.request(c, dropout)
	if err != nil {
		exitError("%v", err)
	}
	rec, hit, err := core.SegmentSequence(context.Background(), c.Service, c.Synapses, c.Cache, root, req)
	if err != nil {
		exitError("%v", err)
	}

	var dists []core.Distance
	if f.distances || dropout {
		if dists, err = core.DistanceToFinal(rec); err != nil {
			exitError("%v", err)
		}
	}

	if f.json {
		printJSON(struct {
			*core.SequenceRecord
			Distances []core.Distance `json:"distances,omitempty"`
		}{rec, dists})
		return
	}
	printSequence(rec, dists, hit)
}

func printSequence(rec *core.SequenceRecord, dists []core.Distance, cached bool) {
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)

	fmt.Printf("Segment %d, anchor %d, %s edits, %s order", rec.Root, rec.Anchor, rec.Granularity, rec.Scheme)
	if rec.Scheme == string(core.OrderRandom) {
		fmt.Printf(" (seed %d)", rec.Seed)
	}
	if cached {
		cyan.Print(" [cached]")
	}
	fmt.Println()
	fmt.Println()

	byLabel := make(map[string]core.Distance, len(dists))
	for _, d := range dists {
		byLabel[d.Label] = d
	}

	fmt.Printf("%-10s %8s %8s %6s %6s  %s\n", "state", "nodes", "edges", "pre", "post", "added")
	for _, st := range rec.States {
		yellow.Printf("%-10s ", st.Label)
		fmt.Printf("%8d %8d %6d %6d  %s", st.NodeCount, st.EdgeCount, len(st.PreSynapses), len(st.PostSynapses), joinEdits(st.Added))
		if d, ok := byLabel[st.Label]; ok {
			fmt.Printf("  js=%.4f cos=%.4f", d.JensenShannon, d.Cosine)
		}
		fmt.Println()
	}
}

func joinEdits(ids []core.EditID) string {
	if len(ids) == 0 {
		return "-"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, ",")
}
