package chunkedgraph

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kilupskalvis/skedits/internal/models"
)

// FetchTimeout bounds a shared fetch once it no longer follows any single
// caller's context.
const FetchTimeout = 2 * time.Minute

// CachingClient memoizes the answers that never change for a given id:
// leaves, level-2 edges and lineage leaves of a root, and the supervoxels of
// a level-2 node. Consecutive operations share roots, so most segment graphs
// are fetched once.
//
// Concurrent requests for the same id share a single fetch. The fetch runs
// detached from the caller that started it, bounded by FetchTimeout, so a
// caller whose context ends gets its own context error while the others
// still receive the result.
type CachingClient struct {
	inner Service
	group singleflight.Group

	mu        sync.Mutex
	leaves    map[string][]models.NodeID
	edges     map[models.SegmentID][][2]models.NodeID
	originals map[models.SegmentID][]models.SegmentID
	children  map[models.NodeID][]models.SupervoxelID
}

// NewCachingClient wraps inner with an in-process memo.
func NewCachingClient(inner Service) *CachingClient {
	return &CachingClient{
		inner:     inner,
		leaves:    make(map[string][]models.NodeID),
		edges:     make(map[models.SegmentID][][2]models.NodeID),
		originals: make(map[models.SegmentID][]models.SegmentID),
		children:  make(map[models.NodeID][]models.SupervoxelID),
	}
}

func memo[K comparable, V any](ctx context.Context, c *CachingClient, m map[K][]V, key K, flightKey string, fetch func(context.Context) ([]V, error)) ([]V, error) {
	c.mu.Lock()
	if v, ok := m[key]; ok {
		c.mu.Unlock()
		return slices.Clone(v), nil
	}
	c.mu.Unlock()

	ch := c.group.DoChan(flightKey, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), FetchTimeout)
		defer cancel()
		res, err := fetch(fetchCtx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		m[key] = res
		c.mu.Unlock()
		return res, nil
	})
	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return slices.Clone(r.Val.([]V)), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *CachingClient) Leaves(ctx context.Context, root models.SegmentID, stopLayer int) ([]models.NodeID, error) {
	key := fmt.Sprintf("%d/%d", root, stopLayer)
	return memo(ctx, c, c.leaves, key, "leaves/"+key, func(ctx context.Context) ([]models.NodeID, error) {
		return c.inner.Leaves(ctx, root, stopLayer)
	})
}

func (c *CachingClient) Level2Edges(ctx context.Context, root models.SegmentID) ([][2]models.NodeID, error) {
	return memo(ctx, c, c.edges, root, fmt.Sprintf("edges/%d", root), func(ctx context.Context) ([][2]models.NodeID, error) {
		return c.inner.Level2Edges(ctx, root)
	})
}

func (c *CachingClient) OriginalRoots(ctx context.Context, root models.SegmentID) ([]models.SegmentID, error) {
	return memo(ctx, c, c.originals, root, fmt.Sprintf("originals/%d", root), func(ctx context.Context) ([]models.SegmentID, error) {
		return c.inner.OriginalRoots(ctx, root)
	})
}

func (c *CachingClient) Children(ctx context.Context, node models.NodeID) ([]models.SupervoxelID, error) {
	return memo(ctx, c, c.children, node, fmt.Sprintf("children/%d", node), func(ctx context.Context) ([]models.SupervoxelID, error) {
		return c.inner.Children(ctx, node)
	})
}

// Level2Of is not memoized: the current level-2 node of a supervoxel
// changes with every edit touching it.
func (c *CachingClient) Level2Of(ctx context.Context, supervoxels []models.SupervoxelID) (map[models.SupervoxelID]models.NodeID, error) {
	return c.inner.Level2Of(ctx, supervoxels)
}

func (c *CachingClient) ChangeLog(ctx context.Context, root models.SegmentID) ([]models.Operation, error) {
	return c.inner.ChangeLog(ctx, root)
}

func (c *CachingClient) OperationDetails(ctx context.Context, ids []models.OperationID) (map[models.OperationID]OperationDetail, error) {
	return c.inner.OperationDetails(ctx, ids)
}

func (c *CachingClient) Positions(ctx context.Context, ids []models.NodeID) (map[models.NodeID]models.Position, error) {
	return c.inner.Positions(ctx, ids)
}

func (c *CachingClient) LatestRoot(ctx context.Context, id models.SegmentID) (models.SegmentID, error) {
	return c.inner.LatestRoot(ctx, id)
}

func (c *CachingClient) RootAtTime(ctx context.Context, node models.NodeID, ts time.Time) (models.SegmentID, error) {
	return c.inner.RootAtTime(ctx, node, ts)
}
