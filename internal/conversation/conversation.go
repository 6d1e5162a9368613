// File path: internal/conversation/conversation.go
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jacobaguon-blip/support-triage/internal/model"
	"github.com/jacobaguon-blip/support-triage/internal/sqlite"
)

// PreviewLimit is the maximum preview length in characters.
const PreviewLimit = 120

var (
	// ErrInvalidType is returned for unknown item types.
	ErrInvalidType = errors.New("conversation: invalid item type")
	// ErrMetadataMismatch is returned when metadata belongs to another type.
	ErrMetadataMismatch = errors.New("conversation: metadata does not match item type")
)

// Entry is the input for Append.
type Entry struct {
	Type      model.ItemType
	Phase     string
	ActorName string
	ActorRole string
	Content   string
	// Preview defaults to the truncated content.
	Preview   string
	Metadata  model.ItemMetadata
	VersionID *int64
	Collapsed bool
	// CreatedAt defaults to now.
	CreatedAt time.Time
}

// Append writes an item attributed to runNumber.
func Append(ctx context.Context, q *sqlite.Queries, investigationID int64, runNumber int, entry Entry) (*model.ConversationItem, error) {
	if !entry.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidType, entry.Type)
	}
	if entry.Metadata != nil && entry.Metadata.ItemType() != entry.Type {
		return nil, fmt.Errorf("%w: %s metadata on %s", ErrMetadataMismatch, entry.Metadata.ItemType(), entry.Type)
	}
	if runNumber <= 0 {
		runNumber = 1
	}
	preview := entry.Preview
	if preview == "" {
		preview = entry.Content
	}
	item := &model.ConversationItem{
		InvestigationID: investigationID,
		RunNumber:       runNumber,
		Type:            entry.Type,
		Phase:           model.NullIfEmpty(entry.Phase),
		ActorName:       model.NullIfEmpty(entry.ActorName),
		ActorRole:       model.NullIfEmpty(entry.ActorRole),
		Content:         entry.Content,
		ContentPreview:  Preview(preview),
		VersionID:       entry.VersionID,
		IsCollapsed:     entry.Collapsed,
		CreatedAt:       entry.CreatedAt.UTC(),
	}
	if entry.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	if entry.Metadata != nil {
		item.Metadata = model.NewMetadata(entry.Metadata)
	}
	if err := q.InsertConversationItem(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// List returns items for an investigation, optionally scoped to a run and to
// items created after since.
func List(ctx context.Context, q *sqlite.Queries, investigationID int64, runNumber *int, since *time.Time) ([]model.ConversationItem, error) {
	items, err := q.ListConversation(ctx, sqlite.ConversationFilter{
		InvestigationID: investigationID,
		RunNumber:       runNumber,
		Since:           since,
	})
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []model.ConversationItem{}
	}
	return items, nil
}

// Preview truncates s to PreviewLimit characters.
func Preview(s string) string {
	return Truncate(s, PreviewLimit)
}

// Truncate returns at most n characters of s, never splitting a rune.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	var b strings.Builder
	count := 0
	for _, r := range s {
		if count == n {
			break
		}
		b.WriteRune(r)
		count++
	}
	return b.String()
}
