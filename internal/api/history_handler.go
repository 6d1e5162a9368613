// File path: internal/api/history_handler.go
package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/jacobaguon-blip/support-triage/internal/investigation"
	"github.com/jacobaguon-blip/support-triage/internal/model"
)

func (s *Server) handleVersions(w http.ResponseWriter, r *http.Request) {
	id, err := investigationID(r)
	if err != nil {
		fail(w, err)
		return
	}
	versions, err := s.investigations().Versions(r.Context(), id)
	if err != nil {
		fail(w, err)
		return
	}
	if versions == nil {
		versions = []model.Version{}
	}
	writeJSON(w, http.StatusOK, versions)
}

func (s *Server) handleVersionDiff(w http.ResponseWriter, r *http.Request) {
	id, err := investigationID(r)
	if err != nil {
		fail(w, err)
		return
	}
	query := r.URL.Query()
	from, errFrom := strconv.ParseInt(query.Get("from"), 10, 64)
	to, errTo := strconv.ParseInt(query.Get("to"), 10, 64)
	if errFrom != nil || errTo != nil {
		fail(w, fmt.Errorf("%w: from and to version ids are required", model.ErrValidation))
		return
	}
	diff, err := s.investigations().Diff(r.Context(), id, from, to)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, diff)
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	id, err := investigationID(r)
	if err != nil {
		fail(w, err)
		return
	}
	var req investigation.RestoreRequest
	if err := decode(r, &req); err != nil {
		fail(w, err)
		return
	}
	restored, err := s.investigations().Restore(r.Context(), id, req)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"newVersionId": restored.NewVersionID,
		"message":      restored.Message,
	})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	id, err := investigationID(r)
	if err != nil {
		fail(w, err)
		return
	}
	runs, err := s.investigations().Runs(r.Context(), id)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	filter, err := conversationFilter(r)
	if err != nil {
		fail(w, err)
		return
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("run")); raw != "" {
		run, err := strconv.Atoi(raw)
		if err != nil || run <= 0 {
			fail(w, fmt.Errorf("%w: invalid run %q", model.ErrValidation, raw))
			return
		}
		filter.Run = &run
	}
	s.writeConversation(w, r, filter)
}

func (s *Server) handleRunConversation(w http.ResponseWriter, r *http.Request) {
	filter, err := conversationFilter(r)
	if err != nil {
		fail(w, err)
		return
	}
	run, err := int64Param(r, "run")
	if err != nil {
		fail(w, err)
		return
	}
	n := int(run)
	filter.Run = &n
	s.writeConversation(w, r, filter)
}

func conversationFilter(r *http.Request) (investigation.ConversationFilter, error) {
	since, err := sinceParam(r)
	if err != nil {
		return investigation.ConversationFilter{}, err
	}
	return investigation.ConversationFilter{Since: since}, nil
}

func (s *Server) writeConversation(w http.ResponseWriter, r *http.Request, filter investigation.ConversationFilter) {
	id, err := investigationID(r)
	if err != nil {
		fail(w, err)
		return
	}
	items, err := s.investigations().Conversation(r.Context(), id, filter)
	if err != nil {
		fail(w, err)
		return
	}
	if items == nil {
		items = []model.ConversationItem{}
	}
	writeJSON(w, http.StatusOK, items)
}
