package annotation

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/kilupskalvis/skedits/internal/models"
)

// SQLiteStore is a local materialization of the synapse table.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (or creates) the synapse database at path.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Initialize creates the schema.
func (s *SQLiteStore) Initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS synapses (
		id INTEGER PRIMARY KEY,
		pre_pt_root_id INTEGER NOT NULL,
		post_pt_root_id INTEGER NOT NULL,
		pre_pt_level2_id INTEGER NOT NULL,
		post_pt_level2_id INTEGER NOT NULL,
		pre_pt_supervoxel_id INTEGER NOT NULL DEFAULT 0,
		post_pt_supervoxel_id INTEGER NOT NULL DEFAULT 0,
		ctr_pt_x REAL NOT NULL DEFAULT 0,
		ctr_pt_y REAL NOT NULL DEFAULT 0,
		ctr_pt_z REAL NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_synapses_pre ON synapses(pre_pt_root_id);
	CREATE INDEX IF NOT EXISTS idx_synapses_post ON synapses(post_pt_root_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// InsertSynapses writes synapses in a single transaction, replacing rows
// with the same id.
func (s *SQLiteStore) InsertSynapses(ctx context.Context, synapses []models.Synapse) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO synapses
			(id, pre_pt_root_id, post_pt_root_id, pre_pt_level2_id, post_pt_level2_id,
			 pre_pt_supervoxel_id, post_pt_supervoxel_id, ctr_pt_x, ctr_pt_y, ctr_pt_z)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, syn := range synapses {
		if _, err := stmt.ExecContext(ctx,
			int64(syn.ID), int64(syn.PreSegment), int64(syn.PostSegment),
			int64(syn.PreNode), int64(syn.PostNode),
			int64(syn.PreSupervoxel), int64(syn.PostSupervoxel),
			syn.Position.X, syn.Position.Y, syn.Position.Z,
		); err != nil {
			return fmt.Errorf("insert synapse %d: %w", syn.ID, err)
		}
	}
	return tx.Commit()
}

// QuerySynapses returns synapses whose pre (or post) segment is one of the
// query's segments, ordered by id.
func (s *SQLiteStore) QuerySynapses(ctx context.Context, q Query) ([]models.Synapse, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	column, segments := "pre_pt_root_id", q.PreSegments
	if len(q.PostSegments) > 0 {
		column, segments = "post_pt_root_id", q.PostSegments
	}

	args := make([]interface{}, len(segments))
	for i, seg := range segments {
		args[i] = int64(seg)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(segments)), ",")
	query := fmt.Sprintf(`
		SELECT id, pre_pt_root_id, post_pt_root_id, pre_pt_level2_id, post_pt_level2_id,
			pre_pt_supervoxel_id, post_pt_supervoxel_id, ctr_pt_x, ctr_pt_y, ctr_pt_z
		FROM synapses WHERE %s IN (%s) ORDER BY id`, column, placeholders)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query synapses: %w", err)
	}
	defer rows.Close()

	var out []models.Synapse
	for rows.Next() {
		var (
			id, pre, post, preNode, postNode int64
			preSV, postSV                    int64
			syn                              models.Synapse
		)
		if err := rows.Scan(&id, &pre, &post, &preNode, &postNode, &preSV, &postSV,
			&syn.Position.X, &syn.Position.Y, &syn.Position.Z); err != nil {
			return nil, fmt.Errorf("scan synapse: %w", err)
		}
		syn.ID = models.SynapseID(id)
		syn.PreSegment = models.SegmentID(pre)
		syn.PostSegment = models.SegmentID(post)
		syn.PreNode = models.NodeID(preNode)
		syn.PostNode = models.NodeID(postNode)
		syn.PreSupervoxel = models.SupervoxelID(preSV)
		syn.PostSupervoxel = models.SupervoxelID(postSV)
		out = append(out, syn)
	}
	return out, rows.Err()
}
