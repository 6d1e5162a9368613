// File path: internal/investigation/queue.go
package investigation

import (
	"context"
	"errors"
	"fmt"

	"github.com/jacobaguon-blip/support-triage/internal/common"
	"github.com/jacobaguon-blip/support-triage/internal/model"
	"github.com/jacobaguon-blip/support-triage/internal/sqlite"
	"github.com/jacobaguon-blip/support-triage/internal/workflow"
)

func (s *Service) inFlight(id int64) (model.Task, bool) {
	if s.cfg.Queue == nil {
		return model.Task{}, false
	}
	return s.cfg.Queue.InFlight(id)
}

// enqueue queues phase for the run. When the queue refuses the task for any
// reason other than a task already in flight, the investigation is moved to
// error so it does not sit in running forever.
func (s *Service) enqueue(ctx context.Context, id int64, run int, phase model.Phase) (*model.Task, error) {
	task, err := s.queuePhase(ctx, id, run, phase)
	if err != nil {
		return nil, s.enqueueFailed(ctx, id, run, phase, err)
	}
	return task, nil
}

// queuePhase hands the task to the queue without touching the investigation,
// so it is safe to call while holding the investigation lock.
func (s *Service) queuePhase(ctx context.Context, id int64, run int, phase model.Phase) (*model.Task, error) {
	if s.cfg.Queue == nil {
		return nil, errors.New("task queue not initialised")
	}
	task, err := s.cfg.Queue.Enqueue(ctx, id, run, phase)
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// enqueueFailed records a refused enqueue on the investigation and returns
// err. It takes the investigation lock.
func (s *Service) enqueueFailed(ctx context.Context, id int64, run int, phase model.Phase, err error) error {
	if errors.Is(err, workflow.ErrTaskInFlight) {
		return err
	}
	reason := fmt.Sprintf("could not start %s: %v", phase, err)
	common.Logger().Error("investigation: enqueue failed", "investigation", id, "phase", phase, "error", err)
	wctx := context.WithoutCancel(ctx)
	markErr := s.mutate(wctx, id, func(q *sqlite.Queries, inv *model.Investigation) error {
		if inv.RunNumber() != run || inv.Status != model.StatusRunning {
			return nil
		}
		inv.Status = model.StatusError
		inv.ErrorMessage = model.Ptr(reason)
		inv.ErrorType = model.Ptr(model.ErrorTypeGeneral)
		return q.UpdateInvestigation(wctx, inv)
	})
	if markErr != nil {
		common.Logger().Warn("investigation: could not record enqueue failure", "investigation", id, "error", markErr)
	}
	return err
}

// Tasks lists the phase tasks of an investigation, newest first.
func (s *Service) Tasks(ctx context.Context, id int64) ([]model.Task, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	if s.cfg.Queue == nil {
		return []model.Task{}, nil
	}
	return s.cfg.Queue.Tasks(ctx, id)
}
