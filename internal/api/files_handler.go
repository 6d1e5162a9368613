// File path: internal/api/files_handler.go
package api

import (
	"net/http"
	"strings"

	chi "github.com/go-chi/chi/v5"

	"github.com/jacobaguon-blip/support-triage/internal/workspace"
)

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	id, err := investigationID(r)
	if err != nil {
		fail(w, err)
		return
	}
	files, err := s.investigations().Files(r.Context(), id)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, files)
}

// handleDocument serves a markdown output. ?format=html returns the rendered
// page instead of the JSON envelope.
func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	id, err := investigationID(r)
	if err != nil {
		fail(w, err)
		return
	}
	doc, err := s.investigations().Document(r.Context(), id, chi.URLParam(r, "name"))
	if err != nil {
		fail(w, err)
		return
	}
	if strings.EqualFold(r.URL.Query().Get("format"), "html") {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(doc.HTML))
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	id, err := investigationID(r)
	if err != nil {
		fail(w, err)
		return
	}
	since, err := sinceParam(r)
	if err != nil {
		fail(w, err)
		return
	}
	entries, err := s.investigations().Activity(r.Context(), id, since)
	if err != nil {
		fail(w, err)
		return
	}
	if entries == nil {
		entries = []workspace.Activity{}
	}
	writeJSON(w, http.StatusOK, entries)
}
