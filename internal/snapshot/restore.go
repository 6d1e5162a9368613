// File path: internal/snapshot/restore.go
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jacobaguon-blip/support-triage/internal/common"
	"github.com/jacobaguon-blip/support-triage/internal/conversation"
	"github.com/jacobaguon-blip/support-triage/internal/model"
	"github.com/jacobaguon-blip/support-triage/internal/sqlite"
	"github.com/jacobaguon-blip/support-triage/internal/workspace"
)

// Restored is the outcome of Restore.
type Restored struct {
	NewVersionID int64  `json:"newVersionId"`
	Message      string `json:"message"`
}

// Restore returns the investigation to a prior snapshot. The current state is
// snapshotted first so nothing is lost. Rollback rewrites the tracked fields
// and files; refocus only moves the anchor. The run number never changes.
func (s *Store) Restore(ctx context.Context, q *sqlite.Queries, investigationID, versionID int64, mode model.RestoreMode) (Restored, error) {
	if !mode.Valid() {
		return Restored{}, fmt.Errorf("%w: invalid restore mode %q, must be 'rollback' or 'refocus'", model.ErrValidation, mode)
	}
	target, err := s.load(ctx, q, investigationID, versionID)
	if err != nil {
		return Restored{}, err
	}
	inv, err := q.GetInvestigation(ctx, investigationID)
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return Restored{}, fmt.Errorf("investigation %d: %w", investigationID, model.ErrNotFound)
		}
		return Restored{}, err
	}
	run := inv.RunNumber()

	created, err := s.Create(ctx, q, investigationID, target.Checkpoint, fmt.Sprintf("Restored to v%d", target.VersionNumber), run)
	if err != nil {
		return Restored{}, fmt.Errorf("snapshot before restore: %w", err)
	}

	describe := target.Label
	if describe == "" {
		describe = string(model.Deref(target.Checkpoint))
	}
	marker := &model.ResetMarkerMeta{
		Mode:                mode,
		TargetVersionID:     model.Ptr(target.ID),
		TargetVersionNumber: model.Ptr(target.VersionNumber),
	}

	var (
		content, preview, message string
	)
	switch mode {
	case model.RestoreRollback:
		if err := s.rollback(ctx, q, investigationID, target); err != nil {
			return Restored{}, err
		}
		content = fmt.Sprintf("Rolled back to version %d: %s", target.VersionNumber, describe)
		preview = fmt.Sprintf("Rolled back to v%d", target.VersionNumber)
		message = fmt.Sprintf("Rolled back to version %d", target.VersionNumber)
	case model.RestoreRefocus:
		current, err := q.GetInvestigation(ctx, investigationID)
		if err != nil {
			return Restored{}, err
		}
		current.AnchorVersionID = model.Ptr(target.ID)
		if err := q.UpdateInvestigation(ctx, current); err != nil {
			return Restored{}, err
		}
		content = fmt.Sprintf("Re-focused investigation to version %d: %s", target.VersionNumber, describe)
		preview = fmt.Sprintf("Re-focused to v%d", target.VersionNumber)
		message = fmt.Sprintf("Re-focused to version %d", target.VersionNumber)
	}

	if _, err := conversation.Append(ctx, q, investigationID, run, conversation.Entry{
		Type:      model.ItemResetMarker,
		ActorName: "System",
		ActorRole: "system",
		Content:   content,
		Preview:   preview,
		Metadata:  marker,
		VersionID: model.Ptr(created.VersionID),
	}); err != nil {
		return Restored{}, err
	}
	common.Logger().Info("snapshot: restored", "investigation", investigationID, "version", target.VersionNumber, "mode", mode)
	return Restored{NewVersionID: created.VersionID, Message: message}, nil
}

func (s *Store) rollback(ctx context.Context, q *sqlite.Queries, investigationID int64, target *model.Version) error {
	fields, err := target.Fields()
	if err != nil {
		return fmt.Errorf("decode version %d fields: %w", target.ID, err)
	}
	files, err := target.Files()
	if err != nil {
		return fmt.Errorf("decode version %d files: %w", target.ID, err)
	}
	inv, err := q.GetInvestigation(ctx, investigationID)
	if err != nil {
		return err
	}
	inv.CustomerName = fields.CustomerName
	inv.Classification = nil
	if fields.Classification != nil {
		inv.Classification = model.Ptr(model.Classification(*fields.Classification))
	}
	inv.ConnectorName = fields.ConnectorName
	inv.ProductArea = fields.ProductArea
	inv.Priority = fields.Priority
	inv.Status = model.StatusWaiting
	inv.CurrentCheckpoint = nil
	if fields.CurrentCheckpoint != nil {
		inv.CurrentCheckpoint = model.Ptr(model.Checkpoint(*fields.CurrentCheckpoint))
	}
	inv.ResolvedAt = nil
	if err := q.UpdateInvestigation(ctx, inv); err != nil {
		return err
	}
	if err := q.UpdateRunProgress(ctx, investigationID, inv.RunNumber(), inv.CurrentCheckpoint, model.RunRunning, nil); err != nil {
		return err
	}

	for _, name := range workspace.TrackedFiles {
		raw, ok := files[name]
		if !ok || len(raw) == 0 || string(raw) == "null" {
			continue
		}
		if err := s.writeFile(investigationID, name, raw); err != nil {
			common.Logger().Warn("snapshot: restore file failed", "investigation", investigationID, "file", name, "error", err)
		}
	}
	return nil
}

func (s *Store) writeFile(investigationID int64, name string, raw json.RawMessage) error {
	if workspace.IsJSON(name) {
		return s.ws.WriteRawJSON(investigationID, name, raw)
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		// Non-string content for a text file is written back as JSON.
		return s.ws.WriteRawJSON(investigationID, name, raw)
	}
	return s.ws.WriteFile(investigationID, name, []byte(text))
}
