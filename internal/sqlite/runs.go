// File path: internal/sqlite/runs.go
package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/jacobaguon-blip/support-triage/internal/model"
)

const runColumns = `id, investigation_id, run_number, trigger_type, trigger_summary, status, current_checkpoint, created_at, completed_at`

// InsertRun records a new run. The (investigation_id, run_number) pair is
// unique.
func (q *Queries) InsertRun(ctx context.Context, run *model.Run) error {
	if run == nil {
		return fmt.Errorf("insert run: nil record")
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = model.RunRunning
	}
	res, err := q.namedExec(ctx, `INSERT INTO investigation_runs (investigation_id, run_number, trigger_type, trigger_summary, status, current_checkpoint, created_at, completed_at)
                VALUES (:investigation_id, :run_number, :trigger_type, :trigger_summary, :status, :current_checkpoint, :created_at, :completed_at)`, run)
	if err != nil {
		return fmt.Errorf("insert run %d for investigation %d: %w", run.RunNumber, run.InvestigationID, err)
	}
	if id, err := res.LastInsertId(); err == nil {
		run.ID = id
	}
	return nil
}

// ActiveRun returns the highest-numbered run that is not superseded.
func (q *Queries) ActiveRun(ctx context.Context, investigationID int64) (*model.Run, error) {
	var run model.Run
	err := q.get(ctx, &run, `SELECT `+runColumns+` FROM investigation_runs
                WHERE investigation_id = ? AND status != ? ORDER BY run_number DESC LIMIT 1`,
		investigationID, model.RunSuperseded)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns every run of an investigation in run order.
func (q *Queries) ListRuns(ctx context.Context, investigationID int64) ([]model.Run, error) {
	var out []model.Run
	if err := q.selectAll(ctx, &out, `SELECT `+runColumns+` FROM investigation_runs WHERE investigation_id = ? ORDER BY run_number`, investigationID); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return out, nil
}

// SupersedeRuns marks every live run of the investigation superseded.
func (q *Queries) SupersedeRuns(ctx context.Context, investigationID int64, at time.Time) error {
	_, err := q.exec(ctx, `UPDATE investigation_runs SET status = ?, completed_at = ?
                WHERE investigation_id = ? AND status != ?`,
		model.RunSuperseded, at.UTC(), investigationID, model.RunSuperseded)
	if err != nil {
		return fmt.Errorf("supersede runs: %w", err)
	}
	return nil
}

// UpdateRunProgress mirrors the investigation checkpoint onto the run and
// optionally completes it.
func (q *Queries) UpdateRunProgress(ctx context.Context, investigationID int64, runNumber int, checkpoint *model.Checkpoint, status model.RunStatus, completedAt *time.Time) error {
	_, err := q.exec(ctx, `UPDATE investigation_runs SET current_checkpoint = ?, status = ?, completed_at = ?
                WHERE investigation_id = ? AND run_number = ? AND status != ?`,
		checkpoint, status, completedAt, investigationID, runNumber, model.RunSuperseded)
	if err != nil {
		return fmt.Errorf("update run %d: %w", runNumber, err)
	}
	return nil
}
