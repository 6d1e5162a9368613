// File path: internal/api/investigations_handler.go
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jacobaguon-blip/support-triage/internal/investigation"
	"github.com/jacobaguon-blip/support-triage/internal/model"
)

func (s *Server) investigations() *investigation.Service {
	return s.orch.Investigations()
}

func (s *Server) handleListInvestigations(w http.ResponseWriter, r *http.Request) {
	var statuses []model.Status
	for _, part := range strings.Split(r.URL.Query().Get("status"), ",") {
		if part = strings.TrimSpace(part); part != "" {
			statuses = append(statuses, model.Status(part))
		}
	}
	invs, err := s.investigations().List(r.Context(), statuses...)
	if err != nil {
		fail(w, err)
		return
	}
	if invs == nil {
		invs = []model.Investigation{}
	}
	writeJSON(w, http.StatusOK, invs)
}

func (s *Server) handleCreateInvestigation(w http.ResponseWriter, r *http.Request) {
	var req investigation.CreateRequest
	if err := decode(r, &req); err != nil {
		fail(w, err)
		return
	}
	created, err := s.investigations().Create(r.Context(), req)
	if errors.Is(err, model.ErrAlreadyExists) {
		s.writeDuplicate(r.Context(), w, req.TicketID, err)
		return
	}
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success":          true,
		"id":               created.ID,
		"status":           created.Status,
		"message":          created.Message,
		"investigationDir": created.InvestigationDir,
		"task":             created.Task,
	})
}

func (s *Server) writeDuplicate(ctx context.Context, w http.ResponseWriter, id int64, cause error) {
	body := map[string]interface{}{
		"error":   "Investigation already exists",
		"message": cause.Error(),
	}
	if inv, err := s.investigations().Get(ctx, id); err == nil {
		body["status"] = inv.Status
	}
	writeJSON(w, http.StatusConflict, body)
}

func (s *Server) handleGetInvestigation(w http.ResponseWriter, r *http.Request) {
	id, err := investigationID(r)
	if err != nil {
		fail(w, err)
		return
	}
	inv, err := s.investigations().Get(r.Context(), id)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (s *Server) handleUpdateInvestigation(w http.ResponseWriter, r *http.Request) {
	id, err := investigationID(r)
	if err != nil {
		fail(w, err)
		return
	}
	var req investigation.UpdateRequest
	if err := decode(r, &req); err != nil {
		fail(w, err)
		return
	}
	inv, err := s.investigations().Update(r.Context(), id, req)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (s *Server) handleCheckpoint(w http.ResponseWriter, r *http.Request) {
	id, err := investigationID(r)
	if err != nil {
		fail(w, err)
		return
	}
	var req investigation.CheckpointRequest
	if err := decode(r, &req); err != nil {
		fail(w, err)
		return
	}
	result, err := s.investigations().ApplyCheckpointAction(r.Context(), id, req)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"result":  result,
	})
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	id, err := investigationID(r)
	if err != nil {
		fail(w, err)
		return
	}
	retried, err := s.investigations().Retry(r.Context(), id)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": retried.Message,
		"phase":   retried.Phase,
		"task":    retried.Task,
	})
}

func (s *Server) handleHardReset(w http.ResponseWriter, r *http.Request) {
	id, err := investigationID(r)
	if err != nil {
		fail(w, err)
		return
	}
	reset, err := s.investigations().HardReset(r.Context(), id)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":           true,
		"previousRunNumber": reset.PreviousRunNumber,
		"newRunNumber":      reset.NewRunNumber,
		"archived":          reset.Archived,
		"message":           reset.Message,
		"task":              reset.Task,
	})
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	id, err := investigationID(r)
	if err != nil {
		fail(w, err)
		return
	}
	if _, err := s.investigations().Get(r.Context(), id); err != nil {
		fail(w, err)
		return
	}
	tasks, err := s.investigations().Tasks(r.Context(), id)
	if err != nil {
		fail(w, fmt.Errorf("list tasks: %w", err))
		return
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	body := map[string]interface{}{"tasks": tasks}
	if inflight, ok := s.orch.Queue().InFlight(id); ok {
		body["inFlight"] = inflight
	}
	writeJSON(w, http.StatusOK, body)
}
