// File path: internal/debounce/reconcile.go
package debounce

import (
	"context"
	"errors"
	"strings"

	"github.com/jacobaguon-blip/support-triage/internal/common"
	"github.com/jacobaguon-blip/support-triage/internal/common/telemetry"
	"github.com/jacobaguon-blip/support-triage/internal/conversation"
	"github.com/jacobaguon-blip/support-triage/internal/keylock"
	"github.com/jacobaguon-blip/support-triage/internal/model"
	"github.com/jacobaguon-blip/support-triage/internal/sqlite"
	"github.com/jacobaguon-blip/support-triage/internal/ticket"
	"github.com/jacobaguon-blip/support-triage/internal/workspace"
)

// Outcome reports one reconciliation pass.
type Outcome struct {
	Evaluated bool     `json:"evaluated"`
	Pending   int      `json:"pending"`
	Decision  Decision `json:"decision"`
}

// Reconciler evaluates pending customer responses once a window elapses.
type Reconciler struct {
	store *sqlite.Store
	ws    *workspace.Workspace
	locks *keylock.Map
}

// NewReconciler returns a Reconciler sharing the given per-investigation locks.
func NewReconciler(store *sqlite.Store, ws *workspace.Workspace, locks *keylock.Map) *Reconciler {
	if locks == nil {
		locks = keylock.New()
	}
	return &Reconciler{store: store, ws: ws, locks: locks}
}

// Fire adapts Reconcile to a FireFunc.
func (r *Reconciler) Fire(ctx context.Context, id int64) error {
	_, err := r.Reconcile(ctx, id)
	return err
}

// Reconcile evaluates the untriggered responses of an investigation. New
// information flags the investigation for operator review; anything else is
// folded into the conversation as a follow-up. Nothing pending is a no-op.
func (r *Reconciler) Reconcile(ctx context.Context, id int64) (Outcome, error) {
	if r == nil || r.store == nil {
		return Outcome{}, errors.New("debounce reconciler not initialised")
	}
	unlock := r.locks.Lock(id)
	defer unlock()

	var out Outcome
	err := r.store.WithTx(ctx, func(q *sqlite.Queries) error {
		inv, err := q.GetInvestigation(ctx, id)
		if err != nil {
			return err
		}
		responses, err := q.ListPendingResponses(ctx, id)
		if err != nil {
			return err
		}
		if len(responses) == 0 {
			return nil
		}

		contents := make([]string, 0, len(responses))
		ids := make([]int64, 0, len(responses))
		for _, resp := range responses {
			contents = append(contents, resp.Content)
			ids = append(ids, resp.ID)
		}
		decision := Evaluate(strings.ToLower(strings.Join(contents, "\n")), r.corpus(id))
		out = Outcome{Evaluated: true, Pending: len(responses), Decision: decision}

		if decision.IsNew {
			inv.HasNewReply = true
			inv.NewReplySummary = model.Ptr(decision.Reason)
			if err := q.UpdateInvestigation(ctx, inv); err != nil {
				return err
			}
			return q.MarkResponsesTriggered(ctx, ids)
		}

		for _, resp := range responses {
			actor := model.Deref(resp.ActorName)
			if actor == "" {
				actor = inv.Customer("Customer")
			}
			entry := conversation.Entry{
				Type:      model.ItemCustomerMessage,
				ActorName: actor,
				ActorRole: "customer",
				Content:   resp.Content,
				Metadata:  model.CustomerMessageMeta{Source: "pylon_followup", NoNewInfo: true},
			}
			if resp.CreatedAt != nil {
				entry.CreatedAt = *resp.CreatedAt
			}
			if _, err := conversation.Append(ctx, q, id, inv.RunNumber(), entry); err != nil {
				return err
			}
		}
		return q.MarkResponsesTriggered(ctx, ids)
	})
	if err != nil {
		return Outcome{}, err
	}
	if out.Evaluated {
		decision := "no_new_info"
		if out.Decision.IsNew {
			decision = "new_info"
		}
		telemetry.RecordDebounceDecision(decision)
		common.Logger().Info("debounce: evaluated responses", "investigation", id,
			"pending", out.Pending, "new", out.Decision.IsNew, "reason", out.Decision.Reason)
	}
	return out, nil
}

// corpus is the ticket body plus phase 1 findings, lowercased.
func (r *Reconciler) corpus(id int64) string {
	if r.ws == nil {
		return ""
	}
	var body string
	if raw, err := r.ws.ReadFile(id, workspace.FileTicketData); err == nil {
		if data, err := ticket.Parse(raw); err == nil {
			body = data.BodyText()
		}
	}
	findings := model.Deref(r.ws.ReadText(id, workspace.FilePhase1Findings))
	return strings.ToLower(body + "\n" + findings)
}
