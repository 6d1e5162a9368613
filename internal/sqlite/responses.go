// File path: internal/sqlite/responses.go
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jacobaguon-blip/support-triage/internal/model"
	"github.com/jmoiron/sqlx"
)

const responseColumns = `id, investigation_id, pylon_message_id, sequence_number, actor_role, actor_name,
        content, created_at, fetched_at, triggered_reanalysis`

// ListResponses returns stored ticket responses in sequence order.
func (q *Queries) ListResponses(ctx context.Context, investigationID int64) ([]model.TicketResponse, error) {
	var out []model.TicketResponse
	if err := q.selectAll(ctx, &out, `SELECT `+responseColumns+` FROM ticket_responses
                WHERE investigation_id = ? ORDER BY sequence_number`, investigationID); err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	return out, nil
}

// ListPendingResponses returns responses not yet consumed by the reconciler.
func (q *Queries) ListPendingResponses(ctx context.Context, investigationID int64) ([]model.TicketResponse, error) {
	var out []model.TicketResponse
	if err := q.selectAll(ctx, &out, `SELECT `+responseColumns+` FROM ticket_responses
                WHERE investigation_id = ? AND triggered_reanalysis = 0 ORDER BY sequence_number`, investigationID); err != nil {
		return nil, fmt.Errorf("list pending responses: %w", err)
	}
	return out, nil
}

// CountResponses returns how many responses are stored for an investigation.
func (q *Queries) CountResponses(ctx context.Context, investigationID int64) (int, error) {
	var count int
	if err := q.get(ctx, &count, `SELECT COUNT(1) FROM ticket_responses WHERE investigation_id = ?`, investigationID); err != nil {
		return 0, fmt.Errorf("count responses: %w", err)
	}
	return count, nil
}

// InsertResponse stores a parsed ticket message.
func (q *Queries) InsertResponse(ctx context.Context, resp *model.TicketResponse) error {
	if resp == nil {
		return errors.New("insert response: nil record")
	}
	if resp.FetchedAt.IsZero() {
		resp.FetchedAt = time.Now().UTC()
	}
	res, err := q.namedExec(ctx, `INSERT INTO ticket_responses (investigation_id, pylon_message_id, sequence_number, actor_role,
                actor_name, content, created_at, fetched_at, triggered_reanalysis)
                VALUES (:investigation_id, :pylon_message_id, :sequence_number, :actor_role,
                :actor_name, :content, :created_at, :fetched_at, :triggered_reanalysis)`, resp)
	if err != nil {
		return fmt.Errorf("insert response %d: %w", resp.SequenceNumber, err)
	}
	if id, err := res.LastInsertId(); err == nil {
		resp.ID = id
	}
	return nil
}

// MarkResponsesTriggered flags the given responses as processed.
func (q *Queries) MarkResponsesTriggered(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`UPDATE ticket_responses SET triggered_reanalysis = 1 WHERE id IN (?)`, ids)
	if err != nil {
		return fmt.Errorf("build response update: %w", err)
	}
	if _, err := q.exec(ctx, query, args...); err != nil {
		return fmt.Errorf("mark responses triggered: %w", err)
	}
	return nil
}
