// File path: internal/sqlite/timers.go
package sqlite

import (
	"context"
	"fmt"

	"github.com/jacobaguon-blip/support-triage/internal/model"
)

// UpsertTimer persists a debounce window.
func (q *Queries) UpsertTimer(ctx context.Context, timer model.DebounceTimer) error {
	timer.StartedAt = timer.StartedAt.UTC()
	timer.DueAt = timer.DueAt.UTC()
	_, err := q.namedExec(ctx, `INSERT INTO debounce_timers (investigation_id, pending_messages, started_at, due_at)
                VALUES (:investigation_id, :pending_messages, :started_at, :due_at)
                ON CONFLICT(investigation_id) DO UPDATE SET
                        pending_messages = excluded.pending_messages,
                        started_at = excluded.started_at,
                        due_at = excluded.due_at`, timer)
	if err != nil {
		return fmt.Errorf("upsert debounce timer %d: %w", timer.InvestigationID, err)
	}
	return nil
}

// GetTimer returns the persisted window for an investigation.
func (q *Queries) GetTimer(ctx context.Context, investigationID int64) (*model.DebounceTimer, error) {
	var timer model.DebounceTimer
	if err := q.get(ctx, &timer, `SELECT investigation_id, pending_messages, started_at, due_at
                FROM debounce_timers WHERE investigation_id = ?`, investigationID); err != nil {
		return nil, err
	}
	return &timer, nil
}

// DeleteTimer removes a persisted window. Missing rows are ignored.
func (q *Queries) DeleteTimer(ctx context.Context, investigationID int64) error {
	if _, err := q.exec(ctx, `DELETE FROM debounce_timers WHERE investigation_id = ?`, investigationID); err != nil {
		return fmt.Errorf("delete debounce timer %d: %w", investigationID, err)
	}
	return nil
}

// ListTimers returns every persisted window ordered by due time.
func (q *Queries) ListTimers(ctx context.Context) ([]model.DebounceTimer, error) {
	var out []model.DebounceTimer
	if err := q.selectAll(ctx, &out, `SELECT investigation_id, pending_messages, started_at, due_at
                FROM debounce_timers ORDER BY due_at`); err != nil {
		return nil, fmt.Errorf("list debounce timers: %w", err)
	}
	return out, nil
}
