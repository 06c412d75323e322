package chunkedgraph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/kilupskalvis/skedits/internal/models"
)

// RetryConfig configures retry behavior for transient errors.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	JitterFraction float64 // 0.0 to 1.0
}

// DefaultRetryConfig returns the retry policy used when none is configured.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:     5,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		JitterFraction: 0.25,
	}
}

// RetryClient wraps a Service with bounded retry on transient errors.
// Every Service call is a read, so all of them are retried. Each retry is
// logged at debug level.
type RetryClient struct {
	inner  Service
	config *RetryConfig
	logger *slog.Logger
}

// NewRetryClient creates a RetryClient around inner. A nil cfg uses
// DefaultRetryConfig and a nil logger slog.Default.
func NewRetryClient(inner Service, cfg *RetryConfig, logger *slog.Logger) *RetryClient {
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryClient{inner: inner, config: cfg, logger: logger}
}

// IsTransient reports whether err is worth retrying: network failures,
// server errors and rate limiting.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var ue *UpstreamServiceError
	if errors.As(err, &ue) {
		return ue.Status == 0 || ue.Status >= 500 || ue.Status == http.StatusTooManyRequests
	}
	return false
}

// backoff is the delay after the given failed attempt: InitialBackoff
// doubled per attempt up to MaxBackoff, then jittered by JitterFraction.
func (rc *RetryClient) backoff(attempt int) time.Duration {
	d := rc.config.InitialBackoff
	for i := 0; i < attempt && d < rc.config.MaxBackoff; i++ {
		d *= 2
	}
	d = min(d, rc.config.MaxBackoff)
	if j := rc.config.JitterFraction; j > 0 {
		d += time.Duration(float64(d) * j * (rand.Float64()*2 - 1))
	}
	return max(d, 0)
}

// retry calls fn until it succeeds, fails permanently, exhausts
// MaxRetries or ctx is done. op names the service request in errors and
// logs.
func (rc *RetryClient) retry(ctx context.Context, op string, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil || !IsTransient(err) {
			return err
		}
		if attempt == rc.config.MaxRetries {
			return fmt.Errorf("%s: %w (after %d retries)", op, err, attempt)
		}

		delay := rc.backoff(attempt)
		rc.logger.Debug("retrying segmentation service request",
			"operation", op, "attempt", attempt+1, "delay", delay, "error", err)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s: %w (retry cancelled)", op, err)
		}
	}
}

func (rc *RetryClient) ChangeLog(ctx context.Context, root models.SegmentID) (ops []models.Operation, err error) {
	err = rc.retry(ctx, "change log", func() error {
		ops, err = rc.inner.ChangeLog(ctx, root)
		return err
	})
	return
}

func (rc *RetryClient) OperationDetails(ctx context.Context, ids []models.OperationID) (details map[models.OperationID]OperationDetail, err error) {
	err = rc.retry(ctx, "operation details", func() error {
		details, err = rc.inner.OperationDetails(ctx, ids)
		return err
	})
	return
}

func (rc *RetryClient) Leaves(ctx context.Context, root models.SegmentID, stopLayer int) (leaves []models.NodeID, err error) {
	err = rc.retry(ctx, "leaves", func() error {
		leaves, err = rc.inner.Leaves(ctx, root, stopLayer)
		return err
	})
	return
}

func (rc *RetryClient) Level2Edges(ctx context.Context, root models.SegmentID) (edges [][2]models.NodeID, err error) {
	err = rc.retry(ctx, "level2 graph", func() error {
		edges, err = rc.inner.Level2Edges(ctx, root)
		return err
	})
	return
}

func (rc *RetryClient) Positions(ctx context.Context, ids []models.NodeID) (pos map[models.NodeID]models.Position, err error) {
	err = rc.retry(ctx, "positions", func() error {
		pos, err = rc.inner.Positions(ctx, ids)
		return err
	})
	return
}

func (rc *RetryClient) LatestRoot(ctx context.Context, id models.SegmentID) (root models.SegmentID, err error) {
	err = rc.retry(ctx, "latest root", func() error {
		root, err = rc.inner.LatestRoot(ctx, id)
		return err
	})
	return
}

func (rc *RetryClient) RootAtTime(ctx context.Context, node models.NodeID, ts time.Time) (root models.SegmentID, err error) {
	err = rc.retry(ctx, "root at time", func() error {
		root, err = rc.inner.RootAtTime(ctx, node, ts)
		return err
	})
	return
}

func (rc *RetryClient) OriginalRoots(ctx context.Context, root models.SegmentID) (roots []models.SegmentID, err error) {
	err = rc.retry(ctx, "original roots", func() error {
		roots, err = rc.inner.OriginalRoots(ctx, root)
		return err
	})
	return
}

func (rc *RetryClient) Level2Of(ctx context.Context, supervoxels []models.SupervoxelID) (ids map[models.SupervoxelID]models.NodeID, err error) {
	err = rc.retry(ctx, "level2 of supervoxels", func() error {
		ids, err = rc.inner.Level2Of(ctx, supervoxels)
		return err
	})
	return
}

func (rc *RetryClient) Children(ctx context.Context, node models.NodeID) (children []models.SupervoxelID, err error) {
	err = rc.retry(ctx, "children", func() error {
		children, err = rc.inner.Children(ctx, node)
		return err
	})
	return
}
