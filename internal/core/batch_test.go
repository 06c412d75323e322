package core

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/kilupskalvis/skedits/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunBatch_IsolatesFailures(t *testing.T) {
	roots := []models.SegmentID{5, 1, 4, 2, 3}
	boom := errors.New("boom")

	res := RunBatch(context.Background(), roots, 2, discardLogger(), func(_ context.Context, root models.SegmentID, _ *slog.Logger) error {
		if root%2 == 0 {
			return boom
		}
		return nil
	})

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, []models.SegmentID{1, 3, 5}, res.Succeeded)
	require.Len(t, res.Failed, 2)
	assert.ErrorIs(t, res.Failed[2], boom)
	assert.ErrorIs(t, res.Failed[4], boom)
}

func TestRunBatch_RespectsWorkerLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	roots := make([]models.SegmentID, 20)
	for i := range roots {
		roots[i] = models.SegmentID(i + 1)
	}

	RunBatch(context.Background(), roots, 3, discardLogger(), func(context.Context, models.SegmentID, *slog.Logger) error {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		inFlight.Add(-1)
		return nil
	})
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestRunBatch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran atomic.Int32
	res := RunBatch(ctx, []models.SegmentID{1, 2}, 1, discardLogger(), func(context.Context, models.SegmentID, *slog.Logger) error {
		ran.Add(1)
		return nil
	})
	assert.Equal(t, int32(0), ran.Load())
	assert.Empty(t, res.Succeeded)
	assert.ErrorIs(t, res.Failed[1], context.Canceled)
	assert.ErrorIs(t, res.Failed[2], context.Canceled)
}

func TestRunBatch_DistinctRunIDs(t *testing.T) {
	noop := func(context.Context, models.SegmentID, *slog.Logger) error { return nil }
	a := RunBatch(context.Background(), nil, 1, discardLogger(), noop)
	b := RunBatch(context.Background(), nil, 1, discardLogger(), noop)
	assert.NotEqual(t, a.RunID, b.RunID)
}
