package cli

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kilupskalvis/skedits/internal/core"
	"github.com/kilupskalvis/skedits/internal/models"
)

var batchCmd = &cobra.Command{
	Use:   "batch [root-id...]",
	Short: "Process many segments concurrently",
	Long: `Run replay, sequence or dropout for many segments with a bounded worker
pool. Roots come from the arguments and/or --file (one per line; blank lines and
lines starting with # are ignored). A failing segment does not stop the batch.`,
	Run: runBatch,
}

var (
	batchKind    string
	batchFile    string
	batchWorkers int
	batchFlags   sequenceFlags
)

func init() {
	batchCmd.Flags().StringVar(&batchKind, "kind", "sequence", "What to compute (replay, sequence, dropout)")
	batchCmd.Flags().StringVar(&batchFile, "file", "", "File of root ids")
	batchCmd.Flags().IntVar(&batchWorkers, "workers", 0, "Concurrent segments (default: workers.count)")
	batchFlags.register(batchCmd, true)
}

func readRoots(path string) ([]models.SegmentID, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var roots []models.SegmentID
	sc := bufio.NewScanner(f)
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		id, err := parseRoot(text)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		roots = append(roots, id)
	}
	return roots, sc.Err()
}

func runBatch(cmd *cobra.Command, args []string) {
	var roots []models.SegmentID
	for _, a := range args {
		roots = append(roots, mustParseRoot(a))
	}
	if batchFile != "" {
		more, err := readRoots(batchFile)
		if err != nil {
			exitError("failed to read roots: %v", err)
		}
		roots = append(roots, more...)
	}
	slices.Sort(roots)
	roots = slices.Compact(roots)
	if len(roots) == 0 {
		exitError("no segments given")
	}

	c := initFullContext()
	defer c.Close()

	workers := batchWorkers
	if workers == 0 {
		workers = c.Config.Workers.Count
	}

	var fn func(context.Context, models.SegmentID, *slog.Logger) error
	switch batchKind {
	case "replay":
		fn = func(ctx context.Context, root models.SegmentID, logger *slog.Logger) error {
			opts := c.analyzeOptions(false)
			opts.Logger = logger
			_, err := core.ReplaySegment(ctx, c.Service, root, 0, core.ReplaySegmentOptions{Analyze: opts, CheckInvariants: true})
			return err
		}
	case "sequence", "dropout":
		req, err := batchFlags.request(c, batchKind == "dropout")
		if err != nil {
			exitError("%v", err)
		}
		fn = func(ctx context.Context, root models.SegmentID, logger *slog.Logger) error {
			r := req
			r.Analyze.Logger = logger
			r.Analyze.ChangeLog.Logger = logger
			_, _, err := core.SegmentSequence(ctx, c.Service, c.Synapses, c.Cache, root, r)
			return err
		}
	default:
		exitError("unknown batch kind %q", batchKind)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res := core.RunBatch(ctx, roots, workers, c.Logger, fn)

	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	fmt.Printf("Run %s: %d segments in %s\n", res.RunID, len(roots), res.Elapsed.Round(time.Millisecond))
	green.Printf("  %d succeeded\n", len(res.Succeeded))
	if len(res.Failed) > 0 {
		red.Printf("  %d failed\n", len(res.Failed))
		for _, root := range roots {
			if err, ok := res.Failed[root]; ok {
				fmt.Printf("    %d: %v\n", root, err)
			}
		}
		os.Exit(1)
	}
}
