package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kilupskalvis/skedits/internal/core"
)

var deltasCmd = &cobra.Command{
	Use:   "deltas <root-id>",
	Short: "Show per-operation deltas and meta-operations",
	Long: `Compute the level-2 graph delta of every operation in a segment's change
log and group entangled operations into meta-operations.`,
	Args: cobra.ExactArgs(1),
	Run:  runDeltas,
}

var deltasPositions bool

func init() {
	deltasCmd.Flags().BoolVar(&deltasPositions, "positions", false, "Fetch node positions")
}

func runDeltas(cmd *cobra.Command, args []string) {
	root := mustParseRoot(args[0])
	c := initContext()
	defer c.Close()

	a, err := core.AnalyzeSegment(context.Background(), c.Service, root, c.analyzeOptions(deltasPositions))
	if err != nil {
		exitError("failed to analyze segment: %v", err)
	}

	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)
	red := color.New(color.FgRed)

	fmt.Printf("Initial network: %d nodes, %d edges\n\n", a.Initial.NodeCount(), a.Initial.EdgeCount())
	for _, op := range a.Operations {
		yellow.Printf("%-10d ", op.ID)
		fmt.Printf("%-6s %s", op.Kind(), a.Deltas.ByOperation[op.ID].Summary())
		if m, ok := a.Metas.Get(a.Metas.ByOperation[op.ID]); ok {
			cyan.Printf("  meta %d", m.ID)
		}
		fmt.Println()
	}

	fmt.Printf("\n%d operations, %d meta-operations, %d lineage edges\n",
		len(a.Operations), len(a.Metas.Groups), a.Deltas.Lineage.Len())
	for _, m := range a.Metas.Groups {
		if m.Err != nil {
			red.Printf("conflict: %v\n", m.Err)
		}
	}
	for _, leaf := range a.WeirdLeaves {
		red.Printf("lineage leaf %d was produced by an edit\n", leaf)
	}
}
