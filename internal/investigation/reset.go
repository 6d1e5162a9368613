// File path: internal/investigation/reset.go
package investigation

import (
	"context"
	"fmt"

	"github.com/jacobaguon-blip/support-triage/internal/common"
	"github.com/jacobaguon-blip/support-triage/internal/conversation"
	"github.com/jacobaguon-blip/support-triage/internal/model"
	"github.com/jacobaguon-blip/support-triage/internal/sqlite"
)

// Reset is the outcome of HardReset.
type Reset struct {
	PreviousRunNumber int         `json:"previousRunNumber"`
	NewRunNumber      int         `json:"newRunNumber"`
	Archived          []string    `json:"archived"`
	Message           string      `json:"message"`
	Task              *model.Task `json:"task,omitempty"`
}

// HardReset abandons the current run and starts a new one from phase 0.
// Outputs of the old run are archived to run-N/ and removed from the working
// directory; ticket-data.json stays. Classification, version pointers, reply
// flags and error fields are cleared. Any in-flight task and pending debounce
// window are dropped.
func (s *Service) HardReset(ctx context.Context, id int64) (Reset, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return Reset{}, err
	}
	if s.cfg.Queue != nil && s.cfg.Queue.Cancel(id) {
		common.Logger().Info("investigation: cancelled in-flight task for hard reset", "investigation", id)
	}

	var out Reset
	err := s.mutate(ctx, id, func(q *sqlite.Queries, inv *model.Investigation) error {
		now := s.cfg.Clock.Now().UTC()
		prev := inv.RunNumber()
		next := prev + 1

		if err := q.SupersedeRuns(ctx, id, now); err != nil {
			return err
		}
		out.Archived = s.cfg.Workspace.Archive(id, prev)
		s.cfg.Workspace.Truncate(id, out.Archived)

		cp := model.CheckpointClassification
		if err := q.InsertRun(ctx, &model.Run{
			InvestigationID:   id,
			RunNumber:         next,
			TriggerType:       model.TriggerHardReset,
			TriggerSummary:    model.Ptr("Manual hard reset"),
			Status:            model.RunRunning,
			CurrentCheckpoint: &cp,
		}); err != nil {
			return err
		}

		inv.Classification = nil
		inv.ConnectorName = nil
		inv.ProductArea = nil
		inv.Priority = nil
		inv.SuggestedPriority = nil
		inv.Status = model.StatusRunning
		inv.CurrentCheckpoint = &cp
		inv.CurrentRunNumber = next
		inv.CurrentVersionID = nil
		inv.AnchorVersionID = nil
		inv.HasNewReply = false
		inv.NewReplySummary = nil
		inv.ErrorMessage = nil
		inv.ErrorType = nil
		inv.ResolvedAt = nil
		if err := q.UpdateInvestigation(ctx, inv); err != nil {
			return err
		}

		if _, err := conversation.Append(ctx, q, id, next, conversation.Entry{
			Type:      model.ItemResetMarker,
			ActorName: "System",
			ActorRole: "system",
			Content:   fmt.Sprintf("Investigation hard reset — starting fresh as Run #%d", next),
			Preview:   fmt.Sprintf("Hard reset → Run #%d", next),
			Metadata: &model.ResetMarkerMeta{
				Trigger:     string(model.TriggerHardReset),
				PreviousRun: prev,
				NewRun:      next,
			},
			CreatedAt: now,
		}); err != nil {
			return err
		}
		out.PreviousRunNumber = prev
		out.NewRunNumber = next
		return nil
	})
	if err != nil {
		return Reset{}, err
	}
	if out.Archived == nil {
		out.Archived = []string{}
	}
	out.Message = fmt.Sprintf("Investigation #%d hard reset. Starting Run #%d.", id, out.NewRunNumber)
	common.Logger().Info("investigation: hard reset", "investigation", id, "previous_run", out.PreviousRunNumber, "run", out.NewRunNumber)

	if s.cfg.Timers != nil {
		if err := s.cfg.Timers.Cancel(ctx, id); err != nil {
			common.Logger().Warn("investigation: cancel debounce timer failed", "investigation", id, "error", err)
		}
	}

	task, err := s.enqueue(ctx, id, out.NewRunNumber, model.Phase0)
	if err != nil {
		return out, err
	}
	out.Task = task
	return out, nil
}
