package annotation

import (
	"context"
	"slices"
	"sync"

	"github.com/kilupskalvis/skedits/internal/models"
)

// MockStore is an in-memory Store for tests.
type MockStore struct {
	mu       sync.Mutex
	Synapses []models.Synapse
	// Err can be set to make queries fail.
	Err error
}

// NewMockStore creates a MockStore holding synapses.
func NewMockStore(synapses ...models.Synapse) *MockStore {
	return &MockStore{Synapses: synapses}
}

// QuerySynapses filters the held synapses.
func (m *MockStore) QuerySynapses(ctx context.Context, q Query) ([]models.Synapse, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var out []models.Synapse
	for _, syn := range m.Synapses {
		if len(q.PreSegments) > 0 && slices.Contains(q.PreSegments, syn.PreSegment) ||
			len(q.PostSegments) > 0 && slices.Contains(q.PostSegments, syn.PostSegment) {
			out = append(out, syn)
		}
	}
	slices.SortFunc(out, func(a, b models.Synapse) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out, nil
}
