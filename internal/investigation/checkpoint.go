// File path: internal/investigation/checkpoint.go
package investigation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jacobaguon-blip/support-triage/internal/common"
	"github.com/jacobaguon-blip/support-triage/internal/common/telemetry"
	"github.com/jacobaguon-blip/support-triage/internal/conversation"
	"github.com/jacobaguon-blip/support-triage/internal/model"
	"github.com/jacobaguon-blip/support-triage/internal/sqlite"
	"github.com/jacobaguon-blip/support-triage/internal/workflow"
	"github.com/jacobaguon-blip/support-triage/internal/workspace"
)

// Checkpoint actions with special meaning. Every other action keeps the
// investigation waiting at its checkpoint.
const (
	ActionAbort    = "abort"
	ActionConfirm  = "confirm"
	ActionContinue = "continue"
	ActionApprove  = "approve"
)

func advances(action string) bool {
	switch action {
	case ActionConfirm, ActionContinue, ActionApprove:
		return true
	}
	return false
}

// CheckpointRequest is an operator decision at a checkpoint.
type CheckpointRequest struct {
	Checkpoint model.Checkpoint `json:"checkpoint" validate:"required"`
	Action     string           `json:"action" validate:"required,max=64"`
	Feedback   *string          `json:"feedback" validate:"omitempty,max=10000"`
}

// CheckpointResult describes the applied transition.
type CheckpointResult struct {
	Action     string            `json:"action"`
	Checkpoint model.Checkpoint  `json:"checkpoint"`
	Next       *model.Checkpoint `json:"next,omitempty"`
	Status     model.Status      `json:"status"`
	VersionID  int64             `json:"versionId"`
	Task       *model.Task       `json:"task,omitempty"`
}

// transition is the effect of an action at a checkpoint.
type transition struct {
	status     model.Status
	checkpoint *model.Checkpoint
	phase      model.Phase
	complete   bool
}

func plan(cp model.Checkpoint, action string) transition {
	if action == ActionAbort {
		return transition{status: model.StatusPaused}
	}
	if !advances(action) {
		return transition{status: model.StatusWaiting}
	}
	switch cp {
	case model.CheckpointClassification:
		return transition{status: model.StatusRunning, checkpoint: model.Ptr(model.CheckpointContext), phase: model.Phase1}
	case model.CheckpointContext:
		return transition{status: model.StatusRunning, checkpoint: model.Ptr(model.CheckpointValidation), phase: model.Phase2}
	case model.CheckpointValidation:
		return transition{status: model.StatusWaiting, checkpoint: model.Ptr(model.CheckpointSolution)}
	default:
		return transition{status: model.StatusComplete, complete: true}
	}
}

func decisionText(action string, feedback *string) (content, preview string) {
	fb := model.Deref(feedback)
	if fb == "" {
		return "Action: " + action, action
	}
	return fmt.Sprintf("Action: %s\nFeedback: %s", action, fb), action + ": " + conversation.Truncate(fb, 80)
}

// ApplyCheckpointAction records an operator decision and applies the
// resulting transition. In order it logs the action to
// checkpoint-actions.json, snapshots the investigation, appends a
// human_decision item and updates status and checkpoint. Phases triggered by
// the transition are queued after the transaction commits, before the
// investigation lock is released.
func (s *Service) ApplyCheckpointAction(ctx context.Context, id int64, req CheckpointRequest) (CheckpointResult, error) {
	action := strings.TrimSpace(req.Action)
	if action == "" {
		return CheckpointResult{}, fmt.Errorf("%w: action is required", model.ErrValidation)
	}
	if !req.Checkpoint.Valid() {
		return CheckpointResult{}, fmt.Errorf("%w: unknown checkpoint %q", model.ErrValidation, req.Checkpoint)
	}
	next := plan(req.Checkpoint, action)

	out := CheckpointResult{Action: action, Checkpoint: req.Checkpoint, Next: next.checkpoint}
	var (
		run      int
		queueErr error
	)
	err := s.mutateThen(ctx, id, func(q *sqlite.Queries, inv *model.Investigation) error {
		if next.phase != "" {
			if task, busy := s.inFlight(id); busy {
				return fmt.Errorf("%w: %s for investigation %d", workflow.ErrTaskInFlight, task.Phase, id)
			}
		}
		run = inv.RunNumber()
		now := s.cfg.Clock.Now().UTC()

		if err := s.cfg.Workspace.AppendCheckpointAction(id, workspace.CheckpointAction{
			Timestamp:  now,
			Checkpoint: string(req.Checkpoint),
			Action:     action,
			Feedback:   model.NullIfEmpty(model.Deref(req.Feedback)),
		}); err != nil {
			return err
		}

		cp := req.Checkpoint
		created, err := s.cfg.Snapshots.Create(ctx, q, id, &cp, fmt.Sprintf("Before: %s at %s", action, cp), run)
		if err != nil {
			return fmt.Errorf("snapshot before %s: %w", action, err)
		}
		out.VersionID = created.VersionID

		content, preview := decisionText(action, req.Feedback)
		if _, err := conversation.Append(ctx, q, id, run, conversation.Entry{
			Type:      model.ItemHumanDecision,
			Phase:     string(cp),
			ActorName: "TSE",
			ActorRole: "tse",
			Content:   content,
			Preview:   preview,
			Metadata: model.HumanDecisionMeta{
				Checkpoint: cp,
				Action:     action,
				Feedback:   model.NullIfEmpty(model.Deref(req.Feedback)),
			},
			VersionID: model.Ptr(created.VersionID),
			CreatedAt: now,
		}); err != nil {
			return err
		}

		// The snapshot moved current_version_id; reload before writing.
		inv, err = q.GetInvestigation(ctx, id)
		if err != nil {
			return err
		}
		inv.Status = next.status
		if next.checkpoint != nil {
			inv.CurrentCheckpoint = next.checkpoint
		}
		if next.status == model.StatusRunning {
			inv.ErrorMessage = nil
			inv.ErrorType = nil
		}
		if next.complete {
			inv.ResolvedAt = &now
		}
		if err := q.UpdateInvestigation(ctx, inv); err != nil {
			return err
		}
		if next.checkpoint != nil || next.complete {
			status := model.RunRunning
			var completedAt *time.Time
			if next.complete {
				status = model.RunComplete
				completedAt = &now
			}
			if err := q.UpdateRunProgress(ctx, id, run, inv.CurrentCheckpoint, status, completedAt); err != nil {
				return err
			}
		}
		out.Status = inv.Status
		return nil
	}, func() {
		if next.phase != "" {
			out.Task, queueErr = s.queuePhase(ctx, id, run, next.phase)
		}
	})
	if err != nil {
		return CheckpointResult{}, err
	}
	telemetry.RecordCheckpointAction(string(req.Checkpoint), action)
	common.Logger().Info("investigation: checkpoint action", "investigation", id, "checkpoint", req.Checkpoint, "action", action, "status", out.Status)

	if queueErr != nil {
		return out, s.enqueueFailed(ctx, id, run, next.phase, queueErr)
	}
	return out, nil
}
