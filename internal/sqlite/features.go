// File path: internal/sqlite/features.go
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jacobaguon-blip/support-triage/internal/model"
)

const featureColumns = `id, title, description, priority, status, category, requester, created_at, updated_at`

// InsertFeatureRequest stores a new feature request, applying defaults.
func (q *Queries) InsertFeatureRequest(ctx context.Context, fr *model.FeatureRequest) error {
	if fr == nil {
		return errors.New("insert feature request: nil record")
	}
	if fr.Priority == "" {
		fr.Priority = "P3"
	}
	if fr.Status == "" {
		fr.Status = "new"
	}
	if fr.Category == "" {
		fr.Category = "Other"
	}
	if fr.Requester == "" {
		fr.Requester = "TSE"
	}
	now := time.Now().UTC()
	fr.CreatedAt, fr.UpdatedAt = now, now
	res, err := q.namedExec(ctx, `INSERT INTO feature_requests (title, description, priority, status, category, requester, created_at, updated_at)
                VALUES (:title, :description, :priority, :status, :category, :requester, :created_at, :updated_at)`, fr)
	if err != nil {
		return fmt.Errorf("insert feature request: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("feature request id: %w", err)
	}
	fr.ID = id
	return nil
}

// GetFeatureRequest loads one feature request.
func (q *Queries) GetFeatureRequest(ctx context.Context, id int64) (*model.FeatureRequest, error) {
	var fr model.FeatureRequest
	if err := q.get(ctx, &fr, `SELECT `+featureColumns+` FROM feature_requests WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return &fr, nil
}

// ListFeatureRequests returns feature requests, newest first.
func (q *Queries) ListFeatureRequests(ctx context.Context) ([]model.FeatureRequest, error) {
	var out []model.FeatureRequest
	if err := q.selectAll(ctx, &out, `SELECT `+featureColumns+` FROM feature_requests ORDER BY created_at DESC, id DESC`); err != nil {
		return nil, fmt.Errorf("list feature requests: %w", err)
	}
	return out, nil
}

// UpdateFeatureRequest writes the mutable columns.
func (q *Queries) UpdateFeatureRequest(ctx context.Context, fr *model.FeatureRequest) error {
	if fr == nil {
		return errors.New("update feature request: nil record")
	}
	fr.UpdatedAt = time.Now().UTC()
	res, err := q.namedExec(ctx, `UPDATE feature_requests SET title = :title, description = :description,
                priority = :priority, status = :status, category = :category, requester = :requester,
                updated_at = :updated_at WHERE id = :id`, fr)
	if err != nil {
		return fmt.Errorf("update feature request %d: %w", fr.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteFeatureRequest removes a feature request.
func (q *Queries) DeleteFeatureRequest(ctx context.Context, id int64) error {
	res, err := q.exec(ctx, `DELETE FROM feature_requests WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete feature request %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountFeatureRequestsBy returns a histogram over status or priority.
func (q *Queries) CountFeatureRequestsBy(ctx context.Context, column string) (map[string]int, error) {
	switch column {
	case "status", "priority":
	default:
		return nil, fmt.Errorf("unsupported feature request grouping %q", column)
	}
	return q.histogram(ctx, `SELECT `+column+` AS bucket_key, COUNT(1) AS bucket_count FROM feature_requests GROUP BY `+column)
}
