// File path: internal/investigation/stats.go
package investigation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jacobaguon-blip/support-triage/internal/model"
	"github.com/jacobaguon-blip/support-triage/internal/sqlite"
)

// InvestigationStats summarises investigations by status.
type InvestigationStats struct {
	Total     int            `json:"total"`
	Active    int            `json:"active"`
	Completed int            `json:"completed"`
	ByStatus  map[string]int `json:"byStatus"`
}

// FeatureRequestStats summarises feature requests.
type FeatureRequestStats struct {
	Total      int            `json:"total"`
	ByStatus   map[string]int `json:"byStatus"`
	ByPriority map[string]int `json:"byPriority"`
}

// AdminStats is the dashboard summary.
type AdminStats struct {
	Investigations       InvestigationStats    `json:"investigations"`
	FeatureRequests      FeatureRequestStats   `json:"featureRequests"`
	RecentInvestigations []model.Investigation `json:"recentInvestigations"`
}

// Stats aggregates investigation and feature request counts.
func (s *Service) Stats(ctx context.Context) (AdminStats, error) {
	q := s.cfg.Store.Q()
	byStatus, err := q.CountInvestigationsByStatus(ctx)
	if err != nil {
		return AdminStats{}, err
	}
	out := AdminStats{Investigations: InvestigationStats{ByStatus: byStatus}}
	for status, n := range byStatus {
		out.Investigations.Total += n
		switch model.Status(status) {
		case model.StatusRunning, model.StatusWaiting:
			out.Investigations.Active += n
		case model.StatusComplete:
			out.Investigations.Completed += n
		}
	}

	frStatus, err := q.CountFeatureRequestsBy(ctx, "status")
	if err != nil {
		return AdminStats{}, err
	}
	frPriority, err := q.CountFeatureRequestsBy(ctx, "priority")
	if err != nil {
		return AdminStats{}, err
	}
	out.FeatureRequests = FeatureRequestStats{ByStatus: frStatus, ByPriority: frPriority}
	for _, n := range frStatus {
		out.FeatureRequests.Total += n
	}

	recent, err := q.ListRecentInvestigations(ctx, 5)
	if err != nil {
		return AdminStats{}, err
	}
	if recent == nil {
		recent = []model.Investigation{}
	}
	out.RecentInvestigations = recent
	return out, nil
}

// FeatureRequestInput creates or edits a feature request. On update, nil
// fields are left alone.
type FeatureRequestInput struct {
	Title       *string `json:"title" validate:"omitempty,min=1,max=200"`
	Description *string `json:"description" validate:"omitempty,max=10000"`
	Priority    *string `json:"priority" validate:"omitempty,oneof=P1 P2 P3 P4"`
	Status      *string `json:"status" validate:"omitempty,max=32"`
	Category    *string `json:"category" validate:"omitempty,max=64"`
	Requester   *string `json:"requester" validate:"omitempty,max=100"`
}

func (in FeatureRequestInput) apply(fr *model.FeatureRequest) {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
		}
	}
	set(&fr.Title, in.Title)
	set(&fr.Description, in.Description)
	set(&fr.Priority, in.Priority)
	set(&fr.Status, in.Status)
	set(&fr.Category, in.Category)
	set(&fr.Requester, in.Requester)
}

func featureNotFound(id int64) error {
	return fmt.Errorf("feature request %d: %w", id, model.ErrNotFound)
}

// FeatureRequests lists feature requests, newest first.
func (s *Service) FeatureRequests(ctx context.Context) ([]model.FeatureRequest, error) {
	out, err := s.cfg.Store.Q().ListFeatureRequests(ctx)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []model.FeatureRequest{}
	}
	return out, nil
}

// FeatureRequest loads one feature request.
func (s *Service) FeatureRequest(ctx context.Context, id int64) (*model.FeatureRequest, error) {
	fr, err := s.cfg.Store.Q().GetFeatureRequest(ctx, id)
	if errors.Is(err, sqlite.ErrNotFound) {
		return nil, featureNotFound(id)
	}
	return fr, err
}

// CreateFeatureRequest stores a feature request. Title and description are
// required.
func (s *Service) CreateFeatureRequest(ctx context.Context, in FeatureRequestInput) (*model.FeatureRequest, error) {
	fr := &model.FeatureRequest{}
	in.apply(fr)
	if fr.Title == "" || fr.Description == "" {
		return nil, fmt.Errorf("%w: title and description are required", model.ErrValidation)
	}
	if err := s.cfg.Store.Q().InsertFeatureRequest(ctx, fr); err != nil {
		return nil, err
	}
	return fr, nil
}

// UpdateFeatureRequest edits a feature request.
func (s *Service) UpdateFeatureRequest(ctx context.Context, id int64, in FeatureRequestInput) (*model.FeatureRequest, error) {
	var out *model.FeatureRequest
	err := s.cfg.Store.WithTx(ctx, func(q *sqlite.Queries) error {
		fr, err := q.GetFeatureRequest(ctx, id)
		if err != nil {
			return err
		}
		in.apply(fr)
		if fr.Title == "" {
			return fmt.Errorf("%w: title cannot be empty", model.ErrValidation)
		}
		out = fr
		return q.UpdateFeatureRequest(ctx, fr)
	})
	if errors.Is(err, sqlite.ErrNotFound) {
		return nil, featureNotFound(id)
	}
	return out, err
}

// DeleteFeatureRequest removes a feature request.
func (s *Service) DeleteFeatureRequest(ctx context.Context, id int64) error {
	err := s.cfg.Store.Q().DeleteFeatureRequest(ctx, id)
	if errors.Is(err, sqlite.ErrNotFound) {
		return featureNotFound(id)
	}
	return err
}
