// File path: internal/sqlite/conversation.go
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jacobaguon-blip/support-triage/internal/model"
)

const conversationColumns = `id, investigation_id, run_number, type, phase, actor_name, actor_role,
        content, content_preview, metadata, version_id, is_collapsed, created_at`

// ConversationFilter narrows ListConversation.
type ConversationFilter struct {
	InvestigationID int64
	RunNumber       *int
	Since           *time.Time
}

// InsertConversationItem appends an item to the log.
func (q *Queries) InsertConversationItem(ctx context.Context, item *model.ConversationItem) error {
	if item == nil {
		return errors.New("insert conversation item: nil record")
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	res, err := q.namedExec(ctx, `INSERT INTO conversation_items (investigation_id, run_number, type, phase, actor_name, actor_role,
                content, content_preview, metadata, version_id, is_collapsed, created_at)
                VALUES (:investigation_id, :run_number, :type, :phase, :actor_name, :actor_role,
                :content, :content_preview, :metadata, :version_id, :is_collapsed, :created_at)`, item)
	if err != nil {
		return fmt.Errorf("insert conversation item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("conversation item id: %w", err)
	}
	item.ID = id
	return nil
}

// ListConversation returns items ordered by created_at then insertion order,
// with metadata bound to each item's type.
func (q *Queries) ListConversation(ctx context.Context, filter ConversationFilter) ([]model.ConversationItem, error) {
	var (
		clauses = []string{"investigation_id = ?"}
		args    = []interface{}{filter.InvestigationID}
	)
	if filter.RunNumber != nil {
		clauses = append(clauses, "run_number = ?")
		args = append(args, *filter.RunNumber)
	}
	if filter.Since != nil {
		clauses = append(clauses, "created_at > ?")
		args = append(args, filter.Since.UTC())
	}
	query := `SELECT ` + conversationColumns + ` FROM conversation_items WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY created_at, id`
	var out []model.ConversationItem
	if err := q.selectAll(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list conversation: %w", err)
	}
	for i := range out {
		if err := out[i].Metadata.Bind(out[i].Type); err != nil {
			return nil, fmt.Errorf("conversation item %d: %w", out[i].ID, err)
		}
	}
	return out, nil
}
