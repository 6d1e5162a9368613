// File path: internal/sqlite/versions.go
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jacobaguon-blip/support-triage/internal/model"
)

const versionColumns = `id, investigation_id, run_number, version_number, label, checkpoint,
        snapshot_investigation, snapshot_files, diff_summary, created_by, created_at`

// NextVersionNumber returns max(version_number)+1 for the investigation.
func (q *Queries) NextVersionNumber(ctx context.Context, investigationID int64) (int, error) {
	var next int
	if err := q.get(ctx, &next, `SELECT COALESCE(MAX(version_number), 0) + 1 FROM investigation_versions WHERE investigation_id = ?`, investigationID); err != nil {
		return 0, fmt.Errorf("next version number: %w", err)
	}
	return next, nil
}

// LatestVersion returns the newest snapshot, or ErrNotFound when none exist.
func (q *Queries) LatestVersion(ctx context.Context, investigationID int64) (*model.Version, error) {
	var v model.Version
	err := q.get(ctx, &v, `SELECT `+versionColumns+` FROM investigation_versions
                WHERE investigation_id = ? ORDER BY version_number DESC LIMIT 1`, investigationID)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// InsertVersion stores an immutable snapshot.
func (q *Queries) InsertVersion(ctx context.Context, v *model.Version) error {
	if v == nil {
		return errors.New("insert version: nil record")
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	if v.CreatedBy == "" {
		v.CreatedBy = "system"
	}
	res, err := q.namedExec(ctx, `INSERT INTO investigation_versions (investigation_id, run_number, version_number, label, checkpoint,
                snapshot_investigation, snapshot_files, diff_summary, created_by, created_at)
                VALUES (:investigation_id, :run_number, :version_number, :label, :checkpoint,
                :snapshot_investigation, :snapshot_files, :diff_summary, :created_by, :created_at)`, v)
	if err != nil {
		return fmt.Errorf("insert version %d: %w", v.VersionNumber, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert version id: %w", err)
	}
	v.ID = id
	return nil
}

// GetVersion loads a snapshot by primary key.
func (q *Queries) GetVersion(ctx context.Context, id int64) (*model.Version, error) {
	var v model.Version
	if err := q.get(ctx, &v, `SELECT `+versionColumns+` FROM investigation_versions WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return &v, nil
}

// ListVersions returns an investigation's snapshots in version order.
func (q *Queries) ListVersions(ctx context.Context, investigationID int64) ([]model.Version, error) {
	var out []model.Version
	if err := q.selectAll(ctx, &out, `SELECT `+versionColumns+` FROM investigation_versions
                WHERE investigation_id = ? ORDER BY version_number`, investigationID); err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	return out, nil
}
