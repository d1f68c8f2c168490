package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/laird/nextgen-CDD-sub002/internal/graph"
	"github.com/laird/nextgen-CDD-sub002/internal/types"
)

// SnapshotDAO persists point-in-time copies of engagement graphs. Snapshots
// are append-only; the latest one per engagement is the recovery point.
type SnapshotDAO struct {
	db *DB
}

// NewSnapshotDAO creates a snapshot DAO over the given database.
func NewSnapshotDAO(db *DB) *SnapshotDAO {
	return &SnapshotDAO{db: db}
}

// Save appends a graph snapshot.
func (d *SnapshotDAO) Save(ctx context.Context, snap *graph.Snapshot) error {
	nodesJSON, err := json.Marshal(snap.Nodes)
	if err != nil {
		return types.WrapError(ErrWriteFailed, "marshaling snapshot nodes", err)
	}
	edgesJSON, err := json.Marshal(snap.Edges)
	if err != nil {
		return types.WrapError(ErrWriteFailed, "marshaling snapshot edges", err)
	}

	_, err = d.db.conn.ExecContext(ctx, `
		INSERT INTO graph_snapshots (engagement_id, root_id, nodes, edges, taken_at)
		VALUES (?, ?, ?, ?, ?)`,
		snap.EngagementID, snap.RootID, string(nodesJSON), string(edgesJSON), snap.TakenAt)
	if err != nil {
		return types.WrapError(ErrWriteFailed,
			fmt.Sprintf("saving snapshot for engagement %s", snap.EngagementID), err)
	}
	return nil
}

// Latest returns the most recent snapshot for an engagement.
func (d *SnapshotDAO) Latest(ctx context.Context, engagementID string) (*graph.Snapshot, error) {
	row := d.db.conn.QueryRowContext(ctx, `
		SELECT engagement_id, root_id, nodes, edges, taken_at
		FROM graph_snapshots
		WHERE engagement_id = ?
		ORDER BY taken_at DESC, id DESC
		LIMIT 1`, engagementID)

	var (
		snap      graph.Snapshot
		rootID    sql.NullString
		nodesJSON string
		edgesJSON string
	)
	err := row.Scan(&snap.EngagementID, &rootID, &nodesJSON, &edgesJSON, &snap.TakenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.NewError(ErrNotFound,
			fmt.Sprintf("no snapshot for engagement %s", engagementID))
	}
	if err != nil {
		return nil, types.WrapError(ErrQueryFailed, "reading snapshot", err)
	}

	if rootID.Valid {
		snap.RootID = types.ID(rootID.String)
	}
	if err := json.Unmarshal([]byte(nodesJSON), &snap.Nodes); err != nil {
		return nil, types.WrapError(ErrQueryFailed, "unmarshaling snapshot nodes", err)
	}
	if err := json.Unmarshal([]byte(edgesJSON), &snap.Edges); err != nil {
		return nil, types.WrapError(ErrQueryFailed, "unmarshaling snapshot edges", err)
	}
	return &snap, nil
}

// Prune keeps only the newest keep snapshots per engagement.
func (d *SnapshotDAO) Prune(ctx context.Context, engagementID string, keep int) (int64, error) {
	res, err := d.db.conn.ExecContext(ctx, `
		DELETE FROM graph_snapshots
		WHERE engagement_id = ?
		AND id NOT IN (
			SELECT id FROM graph_snapshots
			WHERE engagement_id = ?
			ORDER BY taken_at DESC, id DESC
			LIMIT ?
		)`, engagementID, engagementID, keep)
	if err != nil {
		return 0, types.WrapError(ErrWriteFailed, "pruning snapshots", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}
