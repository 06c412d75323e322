package chunkedgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/kilupskalvis/skedits/internal/models"
)

// ErrUpstream matches every UpstreamServiceError.
var ErrUpstream = errors.New("upstream service error")

// UpstreamServiceError reports a failure reaching the service. Status is the
// HTTP status, or 0 when the request never got a response.
type UpstreamServiceError struct {
	Op      string
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *UpstreamServiceError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s (HTTP %d)", e.Op, e.Code, e.Message, e.Status)
}

func (e *UpstreamServiceError) Unwrap() error { return e.Err }

func (e *UpstreamServiceError) Is(target error) bool { return target == ErrUpstream }

// HTTPClient implements Service over the service's JSON API.
type HTTPClient struct {
	baseURL    string
	table      string
	token      string
	httpClient *http.Client
}

// NewHTTPClient creates a client for the given datastack table.
func NewHTTPClient(baseURL, table, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    baseURL,
		table:      table,
		token:      token,
		httpClient: &http.Client{},
	}
}

func (c *HTTPClient) tableURL(path string) string {
	return fmt.Sprintf("%s/segmentation/api/v1/table/%s%s", c.baseURL, c.table, path)
}

func (c *HTTPClient) doJSON(ctx context.Context, op, method, url string, reqBody, respBody interface{}) error {
	var body io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &UpstreamServiceError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(op, resp)
	}

	if respBody != nil {
		if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
			return fmt.Errorf("%s: decode response: %w", op, err)
		}
	}
	return nil
}

// ChangeLog fetches the tabular change log of root.
func (c *HTTPClient) ChangeLog(ctx context.Context, root models.SegmentID) ([]models.Operation, error) {
	var resp ChangeLogResponse
	u := c.tableURL(fmt.Sprintf("/root/%d/tabular_change_log", root))
	if err := c.doJSON(ctx, "change log", http.MethodGet, u, nil, &resp); err != nil {
		return nil, err
	}
	ops := make([]models.Operation, len(resp.Operations))
	for i, e := range resp.Operations {
		ops[i] = models.Operation{
			ID:        e.OperationID,
			IsMerge:   e.IsMerge,
			Timestamp: e.Timestamp,
			User:      e.UserID,
		}
	}
	return ops, nil
}

// OperationDetails fetches before/after roots for a batch of operations.
func (c *HTTPClient) OperationDetails(ctx context.Context, ids []models.OperationID) (map[models.OperationID]OperationDetail, error) {
	var resp OperationDetailsResponse
	req := &OperationDetailsRequest{OperationIDs: ids}
	if err := c.doJSON(ctx, "operation details", http.MethodPost, c.tableURL("/operation_details"), req, &resp); err != nil {
		return nil, err
	}
	if resp.Details == nil {
		resp.Details = map[models.OperationID]OperationDetail{}
	}
	return resp.Details, nil
}

// Leaves returns the ids of root's descendants at stopLayer.
func (c *HTTPClient) Leaves(ctx context.Context, root models.SegmentID, stopLayer int) ([]models.NodeID, error) {
	var resp LeavesResponse
	u := c.tableURL(fmt.Sprintf("/node/%d/leaves?stop_layer=%d", root, stopLayer))
	if err := c.doJSON(ctx, "leaves", http.MethodGet, u, nil, &resp); err != nil {
		return nil, err
	}
	return resp.LeafIDs, nil
}

// Level2Edges returns the level-2 adjacency of root.
func (c *HTTPClient) Level2Edges(ctx context.Context, root models.SegmentID) ([][2]models.NodeID, error) {
	var resp Level2GraphResponse
	u := c.tableURL(fmt.Sprintf("/node/%d/lvl2_graph", root))
	if err := c.doJSON(ctx, "level2 graph", http.MethodGet, u, nil, &resp); err != nil {
		return nil, err
	}
	return resp.EdgeGraph, nil
}

// Positions returns representative coordinates for level-2 nodes. Nodes the
// service has no coordinate for are absent from the result.
func (c *HTTPClient) Positions(ctx context.Context, ids []models.NodeID) (map[models.NodeID]models.Position, error) {
	var resp PositionsResponse
	req := &PositionsRequest{NodeIDs: ids}
	u := fmt.Sprintf("%s/schema/api/v1/table/%s/l2/positions", c.baseURL, c.table)
	if err := c.doJSON(ctx, "positions", http.MethodPost, u, req, &resp); err != nil {
		return nil, err
	}
	if resp.Positions == nil {
		resp.Positions = map[models.NodeID]models.Position{}
	}
	return resp.Positions, nil
}

// Level2Of maps supervoxels to their current level-2 nodes.
func (c *HTTPClient) Level2Of(ctx context.Context, supervoxels []models.SupervoxelID) (map[models.SupervoxelID]models.NodeID, error) {
	var resp SupervoxelRootsResponse
	req := &SupervoxelRootsRequest{SupervoxelIDs: supervoxels}
	u := c.tableURL(fmt.Sprintf("/roots?stop_layer=%d", Level2))
	if err := c.doJSON(ctx, "level2 of supervoxels", http.MethodPost, u, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Level2IDs) != len(supervoxels) {
		return nil, fmt.Errorf("level2 of supervoxels: got %d ids for %d supervoxels", len(resp.Level2IDs), len(supervoxels))
	}
	out := make(map[models.SupervoxelID]models.NodeID, len(supervoxels))
	for i, sv := range supervoxels {
		if id := resp.Level2IDs[i]; id != 0 {
			out[sv] = id
		}
	}
	return out, nil
}

// Children returns the supervoxels of a level-2 node.
func (c *HTTPClient) Children(ctx context.Context, node models.NodeID) ([]models.SupervoxelID, error) {
	var resp ChildrenResponse
	u := c.tableURL(fmt.Sprintf("/node/%d/children", node))
	if err := c.doJSON(ctx, "children", http.MethodGet, u, nil, &resp); err != nil {
		return nil, err
	}
	return resp.ChildrenIDs, nil
}

// LatestRoot returns the current root that descends from id.
func (c *HTTPClient) LatestRoot(ctx context.Context, id models.SegmentID) (models.SegmentID, error) {
	var resp RootResponse
	u := c.tableURL(fmt.Sprintf("/node/%d/latest_root", id))
	if err := c.doJSON(ctx, "latest root", http.MethodGet, u, nil, &resp); err != nil {
		return 0, err
	}
	return resp.RootID, nil
}

// RootAtTime returns the root containing node at ts.
func (c *HTTPClient) RootAtTime(ctx context.Context, node models.NodeID, ts time.Time) (models.SegmentID, error) {
	var resp RootResponse
	q := url.Values{"timestamp": {ts.UTC().Format(time.RFC3339Nano)}}
	u := c.tableURL(fmt.Sprintf("/node/%d/root?%s", node, q.Encode()))
	if err := c.doJSON(ctx, "root at time", http.MethodGet, u, nil, &resp); err != nil {
		return 0, err
	}
	return resp.RootID, nil
}

// OriginalRoots returns the leaves of root's lineage tree.
func (c *HTTPClient) OriginalRoots(ctx context.Context, root models.SegmentID) ([]models.SegmentID, error) {
	var resp RootsResponse
	u := c.tableURL(fmt.Sprintf("/root/%d/lineage_graph/leaves", root))
	if err := c.doJSON(ctx, "original roots", http.MethodGet, u, nil, &resp); err != nil {
		return nil, err
	}
	return resp.RootIDs, nil
}

func decodeError(op string, resp *http.Response) error {
	var errResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		return &UpstreamServiceError{
			Op:      op,
			Status:  resp.StatusCode,
			Code:    "unknown",
			Message: fmt.Sprintf("HTTP %d", resp.StatusCode),
		}
	}
	return &UpstreamServiceError{
		Op:      op,
		Status:  resp.StatusCode,
		Code:    errResp.Error,
		Message: errResp.Message,
	}
}
