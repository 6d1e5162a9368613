// File path: internal/sqlite/investigations.go
package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jacobaguon-blip/support-triage/internal/model"
	"github.com/jmoiron/sqlx"
)

const investigationColumns = `id, customer_name, classification, connector_name, product_area, priority,
        suggested_priority, status, current_checkpoint, agent_mode, current_version_id, anchor_version_id,
        current_run_number, has_new_reply, new_reply_summary, last_customer_message_at, last_response_check_at,
        error_message, error_type, output_path, created_at, updated_at, resolved_at`

// InsertInvestigation stores a new investigation row.
func (q *Queries) InsertInvestigation(ctx context.Context, inv *model.Investigation) error {
	if inv == nil {
		return fmt.Errorf("insert investigation: nil record")
	}
	now := time.Now().UTC()
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = now
	}
	if inv.UpdatedAt.IsZero() {
		inv.UpdatedAt = inv.CreatedAt
	}
	if inv.CurrentRunNumber <= 0 {
		inv.CurrentRunNumber = 1
	}
	_, err := q.namedExec(ctx, `INSERT INTO investigations (`+investigationColumns+`) VALUES (
                :id, :customer_name, :classification, :connector_name, :product_area, :priority,
                :suggested_priority, :status, :current_checkpoint, :agent_mode, :current_version_id, :anchor_version_id,
                :current_run_number, :has_new_reply, :new_reply_summary, :last_customer_message_at, :last_response_check_at,
                :error_message, :error_type, :output_path, :created_at, :updated_at, :resolved_at)`, inv)
	if err != nil {
		return fmt.Errorf("insert investigation %d: %w", inv.ID, err)
	}
	return nil
}

// GetInvestigation loads one investigation.
func (q *Queries) GetInvestigation(ctx context.Context, id int64) (*model.Investigation, error) {
	var inv model.Investigation
	if err := q.get(ctx, &inv, `SELECT `+investigationColumns+` FROM investigations WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return &inv, nil
}

// InvestigationExists reports whether a row with id is present.
func (q *Queries) InvestigationExists(ctx context.Context, id int64) (bool, error) {
	var count int
	if err := q.get(ctx, &count, `SELECT COUNT(1) FROM investigations WHERE id = ?`, id); err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListInvestigations returns investigations, most recently updated first,
// optionally filtered by status.
func (q *Queries) ListInvestigations(ctx context.Context, statuses ...model.Status) ([]model.Investigation, error) {
	query := `SELECT ` + investigationColumns + ` FROM investigations`
	var args []interface{}
	if len(statuses) > 0 {
		var err error
		query, args, err = sqlx.In(query+` WHERE status IN (?)`, statuses)
		if err != nil {
			return nil, fmt.Errorf("build investigation filter: %w", err)
		}
	}
	query += ` ORDER BY updated_at DESC, id DESC`
	var out []model.Investigation
	if err := q.selectAll(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list investigations: %w", err)
	}
	return out, nil
}

// ListRecentInvestigations returns the limit most recently updated rows.
func (q *Queries) ListRecentInvestigations(ctx context.Context, limit int) ([]model.Investigation, error) {
	if limit <= 0 {
		limit = 5
	}
	var out []model.Investigation
	if err := q.selectAll(ctx, &out, `SELECT `+investigationColumns+` FROM investigations ORDER BY updated_at DESC, id DESC LIMIT ?`, limit); err != nil {
		return nil, fmt.Errorf("list recent investigations: %w", err)
	}
	return out, nil
}

// UpdateInvestigation writes every mutable column and stamps updated_at.
func (q *Queries) UpdateInvestigation(ctx context.Context, inv *model.Investigation) error {
	if inv == nil {
		return fmt.Errorf("update investigation: nil record")
	}
	inv.UpdatedAt = time.Now().UTC()
	res, err := q.namedExec(ctx, `UPDATE investigations SET
                customer_name = :customer_name,
                classification = :classification,
                connector_name = :connector_name,
                product_area = :product_area,
                priority = :priority,
                suggested_priority = :suggested_priority,
                status = :status,
                current_checkpoint = :current_checkpoint,
                agent_mode = :agent_mode,
                current_version_id = :current_version_id,
                anchor_version_id = :anchor_version_id,
                current_run_number = :current_run_number,
                has_new_reply = :has_new_reply,
                new_reply_summary = :new_reply_summary,
                last_customer_message_at = :last_customer_message_at,
                last_response_check_at = :last_response_check_at,
                error_message = :error_message,
                error_type = :error_type,
                output_path = :output_path,
                updated_at = :updated_at,
                resolved_at = :resolved_at
        WHERE id = :id`, inv)
	if err != nil {
		return fmt.Errorf("update investigation %d: %w", inv.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetCurrentVersion points the investigation at its latest snapshot.
func (q *Queries) SetCurrentVersion(ctx context.Context, investigationID, versionID int64) error {
	_, err := q.exec(ctx, `UPDATE investigations SET current_version_id = ? WHERE id = ?`, versionID, investigationID)
	if err != nil {
		return fmt.Errorf("set current version: %w", err)
	}
	return nil
}

// CountInvestigationsByStatus returns a status histogram.
func (q *Queries) CountInvestigationsByStatus(ctx context.Context) (map[string]int, error) {
	return q.histogram(ctx, `SELECT status AS bucket_key, COUNT(1) AS bucket_count FROM investigations GROUP BY status`)
}

type bucket struct {
	Key   string `db:"bucket_key"`
	Count int    `db:"bucket_count"`
}

func (q *Queries) histogram(ctx context.Context, query string) (map[string]int, error) {
	var rows []bucket
	if err := q.selectAll(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("count rows: %w", err)
	}
	out := make(map[string]int, len(rows))
	for _, row := range rows {
		key := strings.TrimSpace(row.Key)
		if key == "" {
			key = "unknown"
		}
		out[key] += row.Count
	}
	return out, nil
}
