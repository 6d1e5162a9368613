// File path: internal/api/admin_handler.go
package api

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jacobaguon-blip/support-triage/internal/agent"
	"github.com/jacobaguon-blip/support-triage/internal/common"
	"github.com/jacobaguon-blip/support-triage/internal/investigation"
	"github.com/jacobaguon-blip/support-triage/internal/model"
	"github.com/jacobaguon-blip/support-triage/internal/settings"
)

const agentCheckTimeout = 15 * time.Second

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"status":    "ok",
		"db":        "connected",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	store := s.orch.Store()
	if err := store.DB().PingContext(r.Context()); err != nil {
		body["status"] = "degraded"
		body["db"] = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, body)
		return
	}
	counts, err := store.Q().CountInvestigationsByStatus(r.Context())
	if err != nil {
		fail(w, err)
		return
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	body["investigations"] = total
	body["activeTimers"] = s.orch.Timers().Active()
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleAgentHealth(w http.ResponseWriter, r *http.Request) {
	checker, ok := s.orch.Agent().(agent.Checker)
	if !ok {
		writeJSON(w, http.StatusOK, agent.Health{Authenticated: true, Message: "agent backend does not support health checks"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), agentCheckTimeout)
	defer cancel()
	writeJSON(w, http.StatusOK, checker.Check(ctx))
}

// handleLogs merges the process log history with the task queue events.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := common.LogFilter{
		Level:     strings.TrimSpace(query.Get("level")),
		Component: strings.TrimSpace(query.Get("component")),
	}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			fail(w, fmt.Errorf("%w: invalid limit %q", model.ErrValidation, raw))
			return
		}
		filter.Limit = limit
	}
	combined := append([]common.LogEntry(nil), common.LogEntries(filter)...)
	if filter.Component == "" || filter.Component == "queue" {
		for _, entry := range s.orch.Queue().Logs() {
			if filter.Level != "" && common.ParseLevel(entry.Level) < common.ParseLevel(filter.Level) {
				continue
			}
			combined = append(combined, common.LogEntry{
				Time:      entry.Time,
				Level:     strings.ToLower(entry.Level),
				Message:   entry.Message,
				Component: "queue",
			})
		}
	}
	sort.SliceStable(combined, func(i, j int) bool {
		return combined[i].Time.Before(combined[j].Time)
	})
	if filter.Limit > 0 && len(combined) > filter.Limit {
		combined = combined[len(combined)-filter.Limit:]
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": combined})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	prefs, err := s.orch.Settings().Load()
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	prefs := settings.Defaults()
	if err := decode(r, &prefs); err != nil {
		fail(w, err)
		return
	}
	if err := s.orch.Settings().Save(prefs); err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.investigations().Stats(r.Context())
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleListFeatureRequests(w http.ResponseWriter, r *http.Request) {
	items, err := s.investigations().FeatureRequests(r.Context())
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleGetFeatureRequest(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "featureID")
	if err != nil {
		fail(w, err)
		return
	}
	fr, err := s.investigations().FeatureRequest(r.Context(), id)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fr)
}

func (s *Server) handleCreateFeatureRequest(w http.ResponseWriter, r *http.Request) {
	var in investigation.FeatureRequestInput
	if err := decode(r, &in); err != nil {
		fail(w, err)
		return
	}
	fr, err := s.investigations().CreateFeatureRequest(r.Context(), in)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, fr)
}

func (s *Server) handleUpdateFeatureRequest(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "featureID")
	if err != nil {
		fail(w, err)
		return
	}
	var in investigation.FeatureRequestInput
	if err := decode(r, &in); err != nil {
		fail(w, err)
		return
	}
	fr, err := s.investigations().UpdateFeatureRequest(r.Context(), id, in)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fr)
}

func (s *Server) handleDeleteFeatureRequest(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "featureID")
	if err != nil {
		fail(w, err)
		return
	}
	if err := s.investigations().DeleteFeatureRequest(r.Context(), id); err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": fmt.Sprintf("Feature request #%d deleted", id),
	})
}
