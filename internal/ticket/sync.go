// File path: internal/ticket/sync.go
package ticket

import (
	"context"
	"time"

	"github.com/jacobaguon-blip/support-triage/internal/conversation"
	"github.com/jacobaguon-blip/support-triage/internal/model"
	"github.com/jacobaguon-blip/support-triage/internal/sqlite"
)

// dedupPrefix is how many leading characters identify a response.
const dedupPrefix = 100

// Thread is the input for a sync pass.
type Thread struct {
	InvestigationID int64
	RunNumber       int
	Body            string
	CustomerName    string
}

// SyncResult reports what a sync pass stored.
type SyncResult struct {
	NewCount     int                    `json:"newCount"`
	TotalCount   int                    `json:"totalCount"`
	NewResponses []model.TicketResponse `json:"newResponses"`
}

// Check is the outcome of a count-based new response check.
type Check struct {
	HasNew   bool `json:"hasNew"`
	NewCount int  `json:"newCount"`
}

func prefix(s string) string {
	r := []rune(s)
	if len(r) > dedupPrefix {
		r = r[:dedupPrefix]
	}
	return string(r)
}

// Sync parses the thread and stores messages whose first 100 characters do
// not match a stored response. Each stored message also becomes a
// conversation item on the given run.
func Sync(ctx context.Context, q *sqlite.Queries, th Thread) (SyncResult, error) {
	parsed := ParseThread(th.Body)
	result := SyncResult{NewResponses: []model.TicketResponse{}}
	if len(parsed) == 0 {
		return result, nil
	}
	existing, err := q.ListResponses(ctx, th.InvestigationID)
	if err != nil {
		return result, err
	}
	seen := make(map[string]struct{}, len(existing))
	nextSeq := 1
	for _, r := range existing {
		seen[prefix(r.Content)] = struct{}{}
		if r.SequenceNumber >= nextSeq {
			nextSeq = r.SequenceNumber + 1
		}
	}

	now := time.Now().UTC()
	for _, msg := range parsed {
		key := prefix(msg.Content)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		actor := msg.ActorName
		if actor == "" {
			actor = th.CustomerName
		}
		resp := model.TicketResponse{
			InvestigationID: th.InvestigationID,
			SequenceNumber:  nextSeq,
			ActorRole:       msg.ActorRole,
			ActorName:       model.NullIfEmpty(actor),
			Content:         msg.Content,
			CreatedAt:       msg.CreatedAt,
			FetchedAt:       now,
		}
		if err := q.InsertResponse(ctx, &resp); err != nil {
			return result, err
		}

		seq := nextSeq
		entry := conversation.Entry{
			ActorName: actor,
			ActorRole: msg.ActorRole,
			Content:   msg.Content,
			CreatedAt: now,
		}
		if msg.CreatedAt != nil {
			entry.CreatedAt = *msg.CreatedAt
		}
		if msg.ActorRole == "customer" {
			entry.Type = model.ItemCustomerMessage
			entry.Metadata = model.CustomerMessageMeta{Source: "pylon", SequenceNumber: &seq}
		} else {
			entry.Type = model.ItemAgentMessage
			entry.Metadata = model.AgentMessageMeta{Source: "pylon", SequenceNumber: &seq}
		}
		if _, err := conversation.Append(ctx, q, th.InvestigationID, th.RunNumber, entry); err != nil {
			return result, err
		}
		result.NewResponses = append(result.NewResponses, resp)
		nextSeq++
	}
	result.NewCount = len(result.NewResponses)
	result.TotalCount = len(existing) + result.NewCount
	return result, nil
}

// CheckForNew compares the parsed message count with the stored count.
func CheckForNew(ctx context.Context, q *sqlite.Queries, investigationID int64, body string) (Check, error) {
	parsed := ParseThread(body)
	stored, err := q.CountResponses(ctx, investigationID)
	if err != nil {
		return Check{}, err
	}
	if len(parsed) <= stored {
		return Check{}, nil
	}
	return Check{HasNew: true, NewCount: len(parsed) - stored}, nil
}
