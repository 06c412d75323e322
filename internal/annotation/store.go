// Package annotation provides access to synapse annotations joined to
// level-2 nodes.
package annotation

import (
	"context"
	"errors"

	"github.com/kilupskalvis/skedits/internal/models"
)

// ErrInvalidQuery is returned when a Query does not set exactly one side.
var ErrInvalidQuery = errors.New("query must filter on exactly one of pre or post segments")

// Query selects synapses by the segments on one side.
type Query struct {
	PreSegments  []models.SegmentID
	PostSegments []models.SegmentID
}

// Validate checks that exactly one side is set.
func (q Query) Validate() error {
	if (len(q.PreSegments) == 0) == (len(q.PostSegments) == 0) {
		return ErrInvalidQuery
	}
	return nil
}

// Store is the synapse annotation table.
type Store interface {
	QuerySynapses(ctx context.Context, q Query) ([]models.Synapse, error)
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*MockStore)(nil)
)
