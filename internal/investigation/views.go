// File path: internal/investigation/views.go
package investigation

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/jacobaguon-blip/support-triage/internal/conversation"
	"github.com/jacobaguon-blip/support-triage/internal/model"
	"github.com/jacobaguon-blip/support-triage/internal/snapshot"
	"github.com/jacobaguon-blip/support-triage/internal/sqlite"
	"github.com/jacobaguon-blip/support-triage/internal/workspace"
)

// Versions lists the snapshots of an investigation in version order.
func (s *Service) Versions(ctx context.Context, id int64) ([]model.Version, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.cfg.Snapshots.List(ctx, s.cfg.Store.Q(), id)
}

// RestoreRequest selects a snapshot and how to return to it.
type RestoreRequest struct {
	VersionID int64             `json:"versionId" validate:"required,gt=0"`
	Mode      model.RestoreMode `json:"mode" validate:"required,oneof=rollback refocus"`
}

// Restore rolls back to, or re-focuses on, a prior snapshot.
func (s *Service) Restore(ctx context.Context, id int64, req RestoreRequest) (snapshot.Restored, error) {
	if !req.Mode.Valid() {
		return snapshot.Restored{}, fmt.Errorf("%w: invalid restore mode %q, must be 'rollback' or 'refocus'", model.ErrValidation, req.Mode)
	}
	var out snapshot.Restored
	err := s.mutate(ctx, id, func(q *sqlite.Queries, _ *model.Investigation) error {
		restored, err := s.cfg.Snapshots.Restore(ctx, q, id, req.VersionID, req.Mode)
		out = restored
		return err
	})
	return out, err
}

// Diff compares two snapshots of the investigation.
func (s *Service) Diff(ctx context.Context, id, a, b int64) (model.VersionDiff, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return model.VersionDiff{}, err
	}
	return s.cfg.Snapshots.Diff(ctx, s.cfg.Store.Q(), id, a, b)
}

// Runs lists the runs of an investigation, oldest first.
func (s *Service) Runs(ctx context.Context, id int64) ([]model.Run, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	runs, err := s.cfg.Store.Q().ListRuns(ctx, id)
	if err != nil {
		return nil, err
	}
	if runs == nil {
		runs = []model.Run{}
	}
	return runs, nil
}

// ConversationFilter narrows Conversation.
type ConversationFilter struct {
	Run   *int
	Since *time.Time
}

// Conversation returns the narrative log, oldest first.
func (s *Service) Conversation(ctx context.Context, id int64, filter ConversationFilter) ([]model.ConversationItem, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return conversation.List(ctx, s.cfg.Store.Q(), id, filter.Run, filter.Since)
}

// Files returns the aggregated output files.
func (s *Service) Files(ctx context.Context, id int64) (workspace.Files, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return workspace.Files{}, err
	}
	return s.cfg.Workspace.Files(id), nil
}

// Activity returns the activity log, optionally only entries after since.
func (s *Service) Activity(ctx context.Context, id int64, since *time.Time) ([]workspace.Activity, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.cfg.Workspace.Activity(id, since)
}

// Document is a rendered markdown output.
type Document struct {
	Name     string `json:"name"`
	File     string `json:"file"`
	Markdown string `json:"markdown"`
	HTML     string `json:"html"`
}

// Document renders one of the markdown outputs to HTML.
func (s *Service) Document(ctx context.Context, id int64, name string) (Document, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return Document{}, err
	}
	file, err := workspace.DocumentFile(name)
	if err != nil {
		return Document{}, fmt.Errorf("%w: %v", model.ErrNotFound, err)
	}
	data, err := s.cfg.Workspace.ReadFile(id, file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Document{}, fmt.Errorf("%s for investigation %d: %w", file, id, model.ErrNotFound)
		}
		return Document{}, err
	}
	html, err := workspace.RenderHTML(data)
	if err != nil {
		return Document{}, err
	}
	return Document{Name: name, File: file, Markdown: string(data), HTML: html}, nil
}
