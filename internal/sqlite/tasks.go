// File path: internal/sqlite/tasks.go
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jacobaguon-blip/support-triage/internal/model"
)

const taskColumns = `id, investigation_id, run_number, phase, status, error, created_at, started_at, finished_at`

// InsertTask records a queued phase task.
func (q *Queries) InsertTask(ctx context.Context, task *model.Task) error {
	if task == nil {
		return errors.New("insert task: nil record")
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	_, err := q.namedExec(ctx, `INSERT INTO phase_tasks (`+taskColumns+`)
                VALUES (:id, :investigation_id, :run_number, :phase, :status, :error, :created_at, :started_at, :finished_at)`, task)
	if err != nil {
		return fmt.Errorf("insert task %s: %w", task.ID, err)
	}
	return nil
}

// UpdateTask writes the task's status and timestamps.
func (q *Queries) UpdateTask(ctx context.Context, task *model.Task) error {
	if task == nil {
		return errors.New("update task: nil record")
	}
	res, err := q.namedExec(ctx, `UPDATE phase_tasks SET status = :status, error = :error,
                started_at = :started_at, finished_at = :finished_at WHERE id = :id`, task)
	if err != nil {
		return fmt.Errorf("update task %s: %w", task.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListTasks returns an investigation's tasks, newest first.
func (q *Queries) ListTasks(ctx context.Context, investigationID int64) ([]model.Task, error) {
	var out []model.Task
	if err := q.selectAll(ctx, &out, `SELECT `+taskColumns+` FROM phase_tasks
                WHERE investigation_id = ? ORDER BY created_at DESC, rowid DESC`, investigationID); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return out, nil
}

// ListUnfinishedTasks returns queued or running tasks across investigations.
func (q *Queries) ListUnfinishedTasks(ctx context.Context) ([]model.Task, error) {
	var out []model.Task
	if err := q.selectAll(ctx, &out, `SELECT `+taskColumns+` FROM phase_tasks
                WHERE status IN (?, ?) ORDER BY created_at`, model.TaskQueued, model.TaskRunning); err != nil {
		return nil, fmt.Errorf("list unfinished tasks: %w", err)
	}
	return out, nil
}
