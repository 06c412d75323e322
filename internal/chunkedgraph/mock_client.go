package chunkedgraph

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/kilupskalvis/skedits/internal/models"
)

// MockSegment is the level-2 graph of one root in a MockClient.
type MockSegment struct {
	Nodes []models.NodeID
	Edges [][2]models.NodeID
}

// MockClient is an in-memory Service for tests. It is safe for concurrent use.
type MockClient struct {
	mu sync.Mutex

	Segments      map[models.SegmentID]*MockSegment
	Logs          map[models.SegmentID][]models.Operation
	Details       map[models.OperationID]OperationDetail
	Latest        map[models.SegmentID]models.SegmentID
	Originals     map[models.SegmentID][]models.SegmentID
	NodePositions map[models.NodeID]models.Position
	NodeRoots     map[models.NodeID]models.SegmentID

	// Supervoxels maps supervoxels to their current level-2 node.
	Supervoxels  map[models.SupervoxelID]models.NodeID
	NodeChildren map[models.NodeID][]models.SupervoxelID

	// EdgesErr makes Level2Edges fail for specific roots.
	EdgesErr map[models.SegmentID]error
	// DetailsLimit truncates OperationDetails responses when positive.
	DetailsLimit int
	// TransientFailures makes the next N calls fail with a 503.
	TransientFailures int
	// Err can be set to make every method return an error.
	Err error

	calls map[string]int
}

// NewMockClient creates an empty MockClient.
func NewMockClient() *MockClient {
	return &MockClient{
		Segments:      make(map[models.SegmentID]*MockSegment),
		Logs:          make(map[models.SegmentID][]models.Operation),
		Details:       make(map[models.OperationID]OperationDetail),
		Latest:        make(map[models.SegmentID]models.SegmentID),
		Originals:     make(map[models.SegmentID][]models.SegmentID),
		NodePositions: make(map[models.NodeID]models.Position),
		NodeRoots:     make(map[models.NodeID]models.SegmentID),
		Supervoxels:   make(map[models.SupervoxelID]models.NodeID),
		NodeChildren:  make(map[models.NodeID][]models.SupervoxelID),
		EdgesErr:      make(map[models.SegmentID]error),
		calls:         make(map[string]int),
	}
}

// AddSegment registers the level-2 graph of root. Nodes may be nil, in
// which case they are derived from the edges.
func (m *MockClient) AddSegment(root models.SegmentID, nodes []models.NodeID, edges [][2]models.NodeID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if nodes == nil {
		seen := make(map[models.NodeID]bool)
		for _, e := range edges {
			for _, n := range e {
				if !seen[n] {
					seen[n] = true
					nodes = append(nodes, n)
				}
			}
		}
		slices.Sort(nodes)
	}
	m.Segments[root] = &MockSegment{Nodes: nodes, Edges: edges}
	for _, n := range nodes {
		m.NodeRoots[n] = root
	}
}

// AddOperation appends op to root's change log and records its details.
func (m *MockClient) AddOperation(root models.SegmentID, op models.Operation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Logs[root] = append(m.Logs[root], op)
	m.Details[op.ID] = OperationDetail{BeforeRoots: op.BeforeRoots, AfterRoots: op.AfterRoots}
}

// AddChildren registers the supervoxels of a level-2 node. When current is
// set they are also recorded as currently belonging to it.
func (m *MockClient) AddChildren(node models.NodeID, current bool, supervoxels ...models.SupervoxelID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.NodeChildren[node] = supervoxels
	if current {
		for _, sv := range supervoxels {
			m.Supervoxels[sv] = node
		}
	}
}

// Calls returns how many times method was invoked.
func (m *MockClient) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

func (m *MockClient) enter(method string) error {
	m.calls[method]++
	if m.Err != nil {
		return m.Err
	}
	if m.TransientFailures > 0 {
		m.TransientFailures--
		return &UpstreamServiceError{Op: method, Status: http.StatusServiceUnavailable, Code: "unavailable", Message: "try again"}
	}
	return nil
}

func notFound(op string, id interface{}) error {
	return &UpstreamServiceError{Op: op, Status: http.StatusNotFound, Code: "not_found", Message: fmt.Sprintf("%v not found", id)}
}

func (m *MockClient) ChangeLog(ctx context.Context, root models.SegmentID) ([]models.Operation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ChangeLog"); err != nil {
		return nil, err
	}
	log, ok := m.Logs[root]
	if !ok {
		if _, known := m.Segments[root]; known {
			return []models.Operation{}, nil
		}
		return nil, notFound("change log", root)
	}
	out := make([]models.Operation, len(log))
	for i, op := range log {
		out[i] = models.Operation{ID: op.ID, IsMerge: op.IsMerge, Timestamp: op.Timestamp, User: op.User}
	}
	return out, nil
}

func (m *MockClient) OperationDetails(ctx context.Context, ids []models.OperationID) (map[models.OperationID]OperationDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("OperationDetails"); err != nil {
		return nil, err
	}
	out := make(map[models.OperationID]OperationDetail, len(ids))
	for _, id := range ids {
		if m.DetailsLimit > 0 && len(out) >= m.DetailsLimit {
			break
		}
		if d, ok := m.Details[id]; ok {
			out[id] = d
		}
	}
	return out, nil
}

func (m *MockClient) Leaves(ctx context.Context, root models.SegmentID, stopLayer int) ([]models.NodeID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("Leaves"); err != nil {
		return nil, err
	}
	seg, ok := m.Segments[root]
	if !ok {
		return nil, notFound("leaves", root)
	}
	return slices.Clone(seg.Nodes), nil
}

func (m *MockClient) Level2Edges(ctx context.Context, root models.SegmentID) ([][2]models.NodeID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("Level2Edges"); err != nil {
		return nil, err
	}
	if err := m.EdgesErr[root]; err != nil {
		return nil, err
	}
	seg, ok := m.Segments[root]
	if !ok {
		return nil, notFound("level2 graph", root)
	}
	return slices.Clone(seg.Edges), nil
}

func (m *MockClient) Positions(ctx context.Context, ids []models.NodeID) (map[models.NodeID]models.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("Positions"); err != nil {
		return nil, err
	}
	out := make(map[models.NodeID]models.Position)
	for _, id := range ids {
		if p, ok := m.NodePositions[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (m *MockClient) LatestRoot(ctx context.Context, id models.SegmentID) (models.SegmentID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("LatestRoot"); err != nil {
		return 0, err
	}
	if latest, ok := m.Latest[id]; ok {
		return latest, nil
	}
	return id, nil
}

func (m *MockClient) RootAtTime(ctx context.Context, node models.NodeID, ts time.Time) (models.SegmentID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("RootAtTime"); err != nil {
		return 0, err
	}
	root, ok := m.NodeRoots[node]
	if !ok {
		return 0, notFound("root at time", node)
	}
	return root, nil
}

func (m *MockClient) OriginalRoots(ctx context.Context, root models.SegmentID) ([]models.SegmentID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("OriginalRoots"); err != nil {
		return nil, err
	}
	if roots, ok := m.Originals[root]; ok {
		return slices.Clone(roots), nil
	}
	return []models.SegmentID{root}, nil
}

func (m *MockClient) Level2Of(ctx context.Context, supervoxels []models.SupervoxelID) (map[models.SupervoxelID]models.NodeID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("Level2Of"); err != nil {
		return nil, err
	}
	out := make(map[models.SupervoxelID]models.NodeID, len(supervoxels))
	for _, sv := range supervoxels {
		if id, ok := m.Supervoxels[sv]; ok {
			out[sv] = id
		}
	}
	return out, nil
}

func (m *MockClient) Children(ctx context.Context, node models.NodeID) ([]models.SupervoxelID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("Children"); err != nil {
		return nil, err
	}
	children, ok := m.NodeChildren[node]
	if !ok {
		return nil, notFound("children", node)
	}
	return slices.Clone(children), nil
}
