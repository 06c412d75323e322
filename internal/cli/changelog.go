package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kilupskalvis/skedits/internal/core"
)

var changelogCmd = &cobra.Command{
	Use:   "changelog <root-id>",
	Short: "Show the change log of a segment",
	Long:  `Fetch and validate the chronological change log of a segment.`,
	Args:  cobra.ExactArgs(1),
	Run:   runChangelog,
}

var changelogJSON bool

func init() {
	changelogCmd.Flags().BoolVar(&changelogJSON, "json", false, "Print as JSON")
}

func runChangelog(cmd *cobra.Command, args []string) {
	root := mustParseRoot(args[0])
	c := initContext()
	defer c.Close()

	ops, err := core.GetChangeLog(context.Background(), c.Service, root, c.analyzeOptions(false).ChangeLog)
	if err != nil {
		exitError("failed to get change log: %v", err)
	}

	if changelogJSON {
		printJSON(ops)
		return
	}
	if len(ops) == 0 {
		fmt.Println("No edits")
		return
	}

	yellow := color.New(color.FgYellow)
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	for _, op := range ops {
		yellow.Printf("%-10d ", op.ID)
		if op.IsMerge {
			green.Printf("%-6s", op.Kind())
		} else {
			red.Printf("%-6s", op.Kind())
		}
		fmt.Printf(" %s  %v -> %v", op.Timestamp.Format("2006-01-02 15:04:05"), op.BeforeRoots, op.AfterRoots)
		if op.User != "" {
			fmt.Printf("  (%s)", op.User)
		}
		fmt.Println()
	}
	fmt.Printf("\n%d operations\n", len(ops))
}
