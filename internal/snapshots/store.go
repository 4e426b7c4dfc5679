// Package snapshots persists node sets so the service can warm start and
// report how the network changed over time.
package snapshots

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ziadkadry99/nodemap/internal/cluster"
	"github.com/ziadkadry99/nodemap/internal/db"
)

// Source values recorded with each snapshot.
const (
	SourcePoller = "poller"
	SourceAPI    = "api"
	SourceImport = "import"
)

// ErrNotFound is returned when no snapshot matches.
var ErrNotFound = errors.New("snapshot not found")

// Snapshot is the summary row of one stored node set.
type Snapshot struct {
	ID           string    `json:"id"`
	TakenAt      time.Time `json:"taken_at"`
	Source       string    `json:"source"`
	NodeCount    int       `json:"node_count"`
	DroppedCount int       `json:"dropped_count"`
	AvgHealth    float64   `json:"avg_health"`
}

// Store provides persistence for snapshots.
type Store struct {
	db *db.DB
}

// NewStore creates a new snapshot store.
func NewStore(d *db.DB) *Store {
	return &Store{db: d}
}

// Save stores nodes as a new snapshot and fills in the summary fields of
// snap.
func (s *Store) Save(ctx context.Context, snap *Snapshot, nodes []cluster.Node) error {
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	if snap.Source == "" {
		snap.Source = SourcePoller
	}
	snap.TakenAt = time.Now().UTC()
	snap.NodeCount = len(nodes)
	snap.AvgHealth = 0
	for _, n := range nodes {
		snap.AvgHealth += n.Health
	}
	if len(nodes) > 0 {
		snap.AvgHealth /= float64(len(nodes))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO snapshots (id, taken_at, source, node_count, dropped_count, avg_health)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.TakenAt, snap.Source, snap.NodeCount, snap.DroppedCount, snap.AvgHealth,
	)
	if err != nil {
		return fmt.Errorf("creating snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO snapshot_nodes (snapshot_id, node_id, lat, lng, health, meta) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing node insert: %w", err)
	}
	defer stmt.Close()

	for _, n := range nodes {
		meta := n.Meta
		if meta == nil {
			meta = map[string]any{}
		}
		metaJSON, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("marshaling meta for %s: %w", n.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, snap.ID, n.ID, n.Lat, n.Lng, n.Health, string(metaJSON)); err != nil {
			return fmt.Errorf("inserting node %s: %w", n.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing snapshot: %w", err)
	}
	return nil
}

// Get retrieves a snapshot summary by ID.
func (s *Store) Get(ctx context.Context, id string) (*Snapshot, error) {
	snap := &Snapshot{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, taken_at, source, node_count, dropped_count, avg_health
		 FROM snapshots WHERE id = ?`, id,
	).Scan(&snap.ID, &snap.TakenAt, &snap.Source, &snap.NodeCount, &snap.DroppedCount, &snap.AvgHealth)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting snapshot: %w", err)
	}
	return snap, nil
}

// Latest returns the most recent snapshot and its nodes.
func (s *Store) Latest(ctx context.Context) (*Snapshot, []cluster.Node, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM snapshots ORDER BY taken_at DESC, rowid DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("finding latest snapshot: %w", err)
	}
	snap, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	nodes, err := s.Nodes(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return snap, nodes, nil
}

// List returns up to limit snapshots, newest first. A limit of zero or
// less returns all of them.
func (s *Store) List(ctx context.Context, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, taken_at, source, node_count, dropped_count, avg_health
		 FROM snapshots ORDER BY taken_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var result []Snapshot
	for rows.Next() {
		var snap Snapshot
		if err := rows.Scan(&snap.ID, &snap.TakenAt, &snap.Source, &snap.NodeCount, &snap.DroppedCount, &snap.AvgHealth); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		result = append(result, snap)
	}
	return result, rows.Err()
}

// Nodes returns the nodes of a snapshot ordered by ID.
func (s *Store) Nodes(ctx context.Context, id string) ([]cluster.Node, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT node_id, lat, lng, health, meta FROM snapshot_nodes
		 WHERE snapshot_id = ? ORDER BY node_id`, id)
	if err != nil {
		return nil, fmt.Errorf("listing snapshot nodes: %w", err)
	}
	defer rows.Close()

	nodes := []cluster.Node{}
	for rows.Next() {
		var n cluster.Node
		var metaJSON string
		if err := rows.Scan(&n.ID, &n.Lat, &n.Lng, &n.Health, &metaJSON); err != nil {
			return nil, fmt.Errorf("scanning snapshot node: %w", err)
		}
		if err := json.Unmarshal([]byte(metaJSON), &n.Meta); err != nil {
			return nil, fmt.Errorf("unmarshaling meta for %s: %w", n.ID, err)
		}
		if len(n.Meta) == 0 {
			n.Meta = nil
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

// Prune deletes all but the newest keep snapshots and returns how many
// were removed.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	const keepSet = `SELECT id FROM snapshots ORDER BY taken_at DESC, rowid DESC LIMIT ?`
	// Node rows are deleted explicitly; the cascade only fires when the
	// connection has foreign keys enabled.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM snapshot_nodes WHERE snapshot_id NOT IN (`+keepSet+`)`, keep); err != nil {
		return 0, fmt.Errorf("pruning snapshot nodes: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM snapshots WHERE id NOT IN (`+keepSet+`)`, keep)
	if err != nil {
		return 0, fmt.Errorf("pruning snapshots: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing prune: %w", err)
	}
	return removed, nil
}
