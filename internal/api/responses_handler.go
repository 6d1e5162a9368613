// File path: internal/api/responses_handler.go
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jacobaguon-blip/support-triage/internal/poller"
)

func (s *Server) handleSyncResponses(w http.ResponseWriter, r *http.Request) {
	id, err := investigationID(r)
	if err != nil {
		fail(w, err)
		return
	}
	result, err := s.orch.Poller().Sync(r.Context(), id)
	if errors.Is(err, poller.ErrNoTicketData) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"newCount":     0,
			"totalCount":   0,
			"newResponses": []interface{}{},
			"message":      "No ticket body available",
		})
		return
	}
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCheckNewResponses(w http.ResponseWriter, r *http.Request) {
	id, err := investigationID(r)
	if err != nil {
		fail(w, err)
		return
	}
	// Unknown investigations are reported before the ticket data check.
	if _, err := s.investigations().Get(r.Context(), id); err != nil {
		fail(w, err)
		return
	}
	result, err := s.orch.Poller().Check(r.Context(), id)
	if errors.Is(err, poller.ErrNoTicketData) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"hasNew":   false,
			"newCount": 0,
			"message":  "No ticket body available",
		})
		return
	}
	if err != nil {
		fail(w, err)
		return
	}
	if !result.HasNew {
		writeJSON(w, http.StatusOK, map[string]interface{}{"hasNew": false, "newCount": 0})
		return
	}
	body := map[string]interface{}{
		"hasNew":   true,
		"newCount": result.NewCount,
		"synced":   result.Synced,
	}
	if result.Timer != nil {
		body["message"] = fmt.Sprintf("%d new message(s) detected. Debounce timer started.", result.NewCount)
		body["debounceMinutes"] = int(s.orch.Config().DebounceWindow.Minutes())
		body["timer"] = result.Timer
	} else {
		body["message"] = fmt.Sprintf("%d new message(s) detected.", result.NewCount)
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleDebounceStatus(w http.ResponseWriter, r *http.Request) {
	id, err := investigationID(r)
	if err != nil {
		fail(w, err)
		return
	}
	if _, err := s.investigations().Get(r.Context(), id); err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.orch.Timers().Status(id))
}
