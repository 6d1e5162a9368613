// File path: internal/investigation/service.go
package investigation

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"

	"github.com/jacobaguon-blip/support-triage/internal/common"
	"github.com/jacobaguon-blip/support-triage/internal/keylock"
	"github.com/jacobaguon-blip/support-triage/internal/model"
	"github.com/jacobaguon-blip/support-triage/internal/snapshot"
	"github.com/jacobaguon-blip/support-triage/internal/sqlite"
	"github.com/jacobaguon-blip/support-triage/internal/ticket"
	"github.com/jacobaguon-blip/support-triage/internal/workflow"
	"github.com/jacobaguon-blip/support-triage/internal/workspace"
)

// Queue runs phase tasks in the background.
type Queue interface {
	Enqueue(ctx context.Context, investigationID int64, runNumber int, phase model.Phase) (model.Task, error)
	InFlight(investigationID int64) (model.Task, bool)
	Cancel(investigationID int64) bool
	Tasks(ctx context.Context, investigationID int64) ([]model.Task, error)
}

// TimerCanceller drops the debounce window of an investigation.
type TimerCanceller interface {
	Cancel(ctx context.Context, investigationID int64) error
}

// Config wires a Service.
type Config struct {
	Store     *sqlite.Store
	Workspace *workspace.Workspace
	Snapshots *snapshot.Store
	Locks     *keylock.Map
	Queue     Queue
	Timers    TimerCanceller
	Clock     clockwork.Clock
	// DefaultAgentMode applies when a create request names none.
	DefaultAgentMode string
}

// Service owns every operator-facing mutation of an investigation. Each
// read-modify-write runs under the investigation lock in one transaction.
type Service struct {
	cfg Config
}

// New validates cfg and fills defaults.
func New(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("investigation service requires a store")
	}
	if cfg.Workspace == nil {
		return nil, errors.New("investigation service requires a workspace")
	}
	if cfg.Snapshots == nil {
		cfg.Snapshots = snapshot.New(cfg.Workspace)
	}
	if cfg.Locks == nil {
		cfg.Locks = keylock.New()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.DefaultAgentMode == "" {
		cfg.DefaultAgentMode = "team"
	}
	return &Service{cfg: cfg}, nil
}

// Workspace exposes the investigation directories.
func (s *Service) Workspace() *workspace.Workspace { return s.cfg.Workspace }

// Store exposes the database.
func (s *Service) Store() *sqlite.Store { return s.cfg.Store }

func notFound(id int64) error {
	return fmt.Errorf("investigation %d: %w", id, model.ErrNotFound)
}

// mutate runs fn under the investigation lock inside one transaction with
// the current row loaded.
func (s *Service) mutate(ctx context.Context, id int64, fn func(q *sqlite.Queries, inv *model.Investigation) error) error {
	return s.mutateThen(ctx, id, fn, nil)
}

// mutateThen is mutate with a hook that runs after the commit while the
// investigation lock is still held. after is skipped when fn fails.
func (s *Service) mutateThen(ctx context.Context, id int64, fn func(q *sqlite.Queries, inv *model.Investigation) error, after func()) error {
	unlock := s.cfg.Locks.Lock(id)
	defer unlock()
	err := s.cfg.Store.WithTx(ctx, func(q *sqlite.Queries) error {
		inv, err := q.GetInvestigation(ctx, id)
		if err != nil {
			if errors.Is(err, sqlite.ErrNotFound) {
				return notFound(id)
			}
			return err
		}
		return fn(q, inv)
	})
	if err != nil {
		return err
	}
	if after != nil {
		after()
	}
	return nil
}

// CreateRequest starts a new investigation.
type CreateRequest struct {
	TicketID  int64  `json:"ticketId" validate:"required,gt=0"`
	AgentMode string `json:"agentMode" validate:"omitempty,max=32"`
}

// Created is the outcome of Create.
type Created struct {
	ID               int64        `json:"id"`
	Status           model.Status `json:"status"`
	Message          string       `json:"message"`
	InvestigationDir string       `json:"investigationDir"`
	Task             *model.Task  `json:"task,omitempty"`
}

// Create inserts the investigation and its first run, then queues phase 0.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Created, error) {
	if req.TicketID <= 0 {
		return Created{}, fmt.Errorf("%w: ticketId is required", model.ErrValidation)
	}
	id := req.TicketID
	mode := req.AgentMode
	if mode == "" {
		mode = s.cfg.DefaultAgentMode
	}

	unlock := s.cfg.Locks.Lock(id)
	dir, err := s.cfg.Workspace.Ensure(id)
	if err != nil {
		unlock()
		return Created{}, err
	}
	err = s.cfg.Store.WithTx(ctx, func(q *sqlite.Queries) error {
		existing, err := q.GetInvestigation(ctx, id)
		if err == nil {
			return fmt.Errorf("%w: investigation #%d already exists with status: %s", model.ErrAlreadyExists, id, existing.Status)
		}
		if !errors.Is(err, sqlite.ErrNotFound) {
			return err
		}
		cp := model.CheckpointClassification
		if err := q.InsertInvestigation(ctx, &model.Investigation{
			ID:                id,
			Status:            model.StatusRunning,
			CurrentCheckpoint: &cp,
			AgentMode:         mode,
			CurrentRunNumber:  1,
			OutputPath:        dir,
		}); err != nil {
			return err
		}
		return q.InsertRun(ctx, &model.Run{
			InvestigationID:   id,
			RunNumber:         1,
			TriggerType:       model.TriggerManual,
			TriggerSummary:    model.Ptr("Initial investigation"),
			Status:            model.RunRunning,
			CurrentCheckpoint: &cp,
		})
	})
	unlock()
	if err != nil {
		return Created{}, err
	}
	common.Logger().Info("investigation: created", "investigation", id, "agent_mode", mode)

	out := Created{
		ID:               id,
		Status:           model.StatusRunning,
		Message:          fmt.Sprintf("Investigation #%d created. Fetching ticket data...", id),
		InvestigationDir: dir,
	}
	task, err := s.enqueue(ctx, id, 1, model.Phase0)
	if err != nil {
		return out, err
	}
	out.Task = task
	return out, nil
}

// Get loads one investigation.
func (s *Service) Get(ctx context.Context, id int64) (*model.Investigation, error) {
	inv, err := s.cfg.Store.Q().GetInvestigation(ctx, id)
	if errors.Is(err, sqlite.ErrNotFound) {
		return nil, notFound(id)
	}
	return inv, err
}

// List returns investigations, most recently updated first.
func (s *Service) List(ctx context.Context, statuses ...model.Status) ([]model.Investigation, error) {
	invs, err := s.cfg.Store.Q().ListInvestigations(ctx, statuses...)
	if err != nil {
		return nil, err
	}
	if invs == nil {
		invs = []model.Investigation{}
	}
	return invs, nil
}

// UpdateRequest carries operator edits. Nil fields are left alone, empty
// strings clear the column.
type UpdateRequest struct {
	CustomerName      *string `json:"customer_name" validate:"omitempty,max=200"`
	Classification    *string `json:"classification" validate:"omitempty,oneof=connector_bug product_bug feature_request documentation general_question skip"`
	ConnectorName     *string `json:"connector_name" validate:"omitempty,max=100"`
	ProductArea       *string `json:"product_area" validate:"omitempty,max=100"`
	Priority          *string `json:"priority" validate:"omitempty,oneof=P1 P2 P3 P4"`
	SuggestedPriority *string `json:"suggested_priority" validate:"omitempty,oneof=P1 P2 P3 P4"`
	AgentMode         *string `json:"agent_mode" validate:"omitempty,max=32"`
}

// Update applies operator edits to the classification fields.
func (s *Service) Update(ctx context.Context, id int64, req UpdateRequest) (*model.Investigation, error) {
	var updated *model.Investigation
	err := s.mutate(ctx, id, func(q *sqlite.Queries, inv *model.Investigation) error {
		set := func(dst **string, v *string) {
			if v != nil {
				*dst = model.NullIfEmpty(*v)
			}
		}
		set(&inv.CustomerName, req.CustomerName)
		set(&inv.ConnectorName, req.ConnectorName)
		set(&inv.ProductArea, req.ProductArea)
		set(&inv.Priority, req.Priority)
		set(&inv.SuggestedPriority, req.SuggestedPriority)
		if req.Classification != nil {
			inv.Classification = nil
			if *req.Classification != "" {
				inv.Classification = model.Ptr(model.Classification(*req.Classification))
			}
		}
		if req.AgentMode != nil && *req.AgentMode != "" {
			inv.AgentMode = *req.AgentMode
		}
		updated = inv
		return q.UpdateInvestigation(ctx, inv)
	})
	return updated, err
}

// Retried is the outcome of Retry.
type Retried struct {
	Message string       `json:"message"`
	Phase   *model.Phase `json:"phase,omitempty"`
	Task    *model.Task  `json:"task,omitempty"`
}

// retryPhase picks the phase that produces the current checkpoint.
func retryPhase(inv *model.Investigation) (model.Phase, bool) {
	if inv.Checkpoint() == model.CheckpointClassification || model.Deref(inv.CustomerName) == "" {
		return model.Phase0, true
	}
	switch inv.Checkpoint() {
	case model.CheckpointContext:
		return model.Phase1, true
	case model.CheckpointValidation:
		return model.Phase2, true
	}
	return "", false
}

// Retry clears the error state and queues the phase for the current
// checkpoint again. Checkpoints without a phase return to waiting.
func (s *Service) Retry(ctx context.Context, id int64) (Retried, error) {
	var (
		phase    model.Phase
		ok       bool
		run      int
		task     *model.Task
		queueErr error
	)
	err := s.mutateThen(ctx, id, func(q *sqlite.Queries, inv *model.Investigation) error {
		if busy, found := s.inFlight(id); found {
			return fmt.Errorf("%w: %s for investigation %d", workflow.ErrTaskInFlight, busy.Phase, id)
		}
		phase, ok = retryPhase(inv)
		run = inv.RunNumber()
		inv.Status = model.StatusWaiting
		if ok {
			inv.Status = model.StatusRunning
		}
		inv.ErrorMessage = nil
		inv.ErrorType = nil
		return q.UpdateInvestigation(ctx, inv)
	}, func() {
		if ok {
			task, queueErr = s.queuePhase(ctx, id, run, phase)
		}
	})
	if err != nil {
		return Retried{}, err
	}
	out := Retried{Message: fmt.Sprintf("Retrying investigation #%d", id)}
	if !ok {
		return out, nil
	}
	out.Phase = &phase
	if queueErr != nil {
		return out, s.enqueueFailed(ctx, id, run, phase, queueErr)
	}
	out.Task = task
	return out, nil
}

// Bootstrapped reports what Bootstrap changed.
type Bootstrapped struct {
	Created   int `json:"created"`
	Populated int `json:"populated"`
}

// Bootstrap creates rows for investigation directories that hold a
// ticket-data.json but have no database record, and fills the classification
// fields of rows that lack a customer name.
func (s *Service) Bootstrap(ctx context.Context) (Bootstrapped, error) {
	var out Bootstrapped
	ids, err := s.cfg.Workspace.InvestigationIDs()
	if err != nil {
		return out, err
	}
	log := common.Logger()
	for _, id := range ids {
		data := s.ticketData(id)
		if data == nil {
			continue
		}
		exists, err := s.cfg.Store.Q().InvestigationExists(ctx, id)
		if err != nil {
			return out, err
		}
		if exists {
			continue
		}
		cp := model.CheckpointClassification
		inv := &model.Investigation{
			ID:                id,
			Status:            model.StatusWaiting,
			CurrentCheckpoint: &cp,
			AgentMode:         s.cfg.DefaultAgentMode,
			CurrentRunNumber:  1,
			OutputPath:        s.cfg.Workspace.Dir(id),
		}
		err = s.cfg.Store.WithTx(ctx, func(q *sqlite.Queries) error {
			if err := q.InsertInvestigation(ctx, inv); err != nil {
				return err
			}
			return q.InsertRun(ctx, &model.Run{
				InvestigationID:   id,
				RunNumber:         1,
				TriggerType:       model.TriggerManual,
				TriggerSummary:    model.Ptr("Imported from investigation folder"),
				Status:            model.RunRunning,
				CurrentCheckpoint: &cp,
			})
		})
		if err != nil {
			return out, fmt.Errorf("bootstrap investigation %d: %w", id, err)
		}
		log.Info("investigation: bootstrap created record", "investigation", id)
		out.Created++
	}

	invs, err := s.cfg.Store.Q().ListInvestigations(ctx)
	if err != nil {
		return out, err
	}
	for _, inv := range invs {
		if model.Deref(inv.CustomerName) != "" {
			continue
		}
		data := s.ticketData(inv.ID)
		if data == nil {
			continue
		}
		changed := false
		err := s.mutate(ctx, inv.ID, func(q *sqlite.Queries, current *model.Investigation) error {
			changed = populate(current, data)
			if !changed {
				return nil
			}
			return q.UpdateInvestigation(ctx, current)
		})
		if err != nil {
			log.Warn("investigation: bootstrap populate failed", "investigation", inv.ID, "error", err)
			continue
		}
		if changed {
			out.Populated++
		}
	}
	if out.Created > 0 || out.Populated > 0 {
		log.Info("investigation: bootstrap complete", "created", out.Created, "populated", out.Populated)
	}
	return out, nil
}

// populate copies the non-empty ticket fields onto inv.
func populate(inv *model.Investigation, data *ticket.Data) bool {
	changed := false
	set := func(dst **string, v string) {
		if v != "" {
			*dst = model.Ptr(v)
			changed = true
		}
	}
	set(&inv.CustomerName, data.CustomerName)
	set(&inv.ProductArea, data.ProductArea)
	set(&inv.Priority, data.Priority)
	set(&inv.SuggestedPriority, data.SuggestedPriority)
	set(&inv.ConnectorName, model.Deref(data.ConnectorName))
	if data.Classification != "" {
		inv.Classification = model.Ptr(model.Classification(data.Classification))
		changed = true
	}
	return changed
}

func (s *Service) ticketData(id int64) *ticket.Data {
	raw, err := s.cfg.Workspace.ReadFile(id, workspace.FileTicketData)
	if err != nil {
		return nil
	}
	data, err := ticket.Parse(raw)
	if err != nil {
		return nil
	}
	return data
}
