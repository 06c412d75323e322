package core

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kilupskalvis/skedits/internal/models"
)

// BatchResult collects the outcome of one batch run.
type BatchResult struct {
	RunID     string
	Succeeded []models.SegmentID
	Failed    map[models.SegmentID]error
	Elapsed   time.Duration
}

// RunBatch runs fn for every root with at most workers in flight. A failing
// root is recorded and does not stop the others. Cancelling ctx stops new
// roots from being scheduled; their context error is recorded as a failure.
func RunBatch(ctx context.Context, roots []models.SegmentID, workers int, logger *slog.Logger, fn func(context.Context, models.SegmentID, *slog.Logger) error) *BatchResult {
	if logger == nil {
		logger = slog.Default()
	}
	if workers < 1 {
		workers = 1
	}
	res := &BatchResult{
		RunID:  uuid.NewString(),
		Failed: make(map[models.SegmentID]error),
	}
	logger = logger.With("run_id", res.RunID)
	start := time.Now()

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(workers)
	for _, root := range roots {
		if err := ctx.Err(); err != nil {
			mu.Lock()
			res.Failed[root] = err
			mu.Unlock()
			continue
		}
		g.Go(func() error {
			rlog := logger.With("root_id", root)
			err := ctx.Err()
			if err == nil {
				err = fn(ctx, root, rlog)
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				rlog.Warn("segment failed", "error", err)
				res.Failed[root] = err
				return nil
			}
			res.Succeeded = append(res.Succeeded, root)
			return nil
		})
	}
	_ = g.Wait()
	slices.Sort(res.Succeeded)

	res.Elapsed = time.Since(start)
	logger.Info("batch finished", "segments", len(roots), "succeeded", len(res.Succeeded), "failed", len(res.Failed), "elapsed", res.Elapsed)
	return res
}
