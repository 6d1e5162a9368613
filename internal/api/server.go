// File path: internal/api/server.go
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/jacobaguon-blip/support-triage/internal/common"
	"github.com/jacobaguon-blip/support-triage/internal/common/telemetry"
	"github.com/jacobaguon-blip/support-triage/internal/model"
	"github.com/jacobaguon-blip/support-triage/internal/orchestrator"
	"github.com/jacobaguon-blip/support-triage/internal/workflow"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

type Server struct {
	router chi.Router
	orch   *orchestrator.Orchestrator
}

func NewServer(orch *orchestrator.Orchestrator) (*Server, error) {
	if orch == nil {
		return nil, fmt.Errorf("orchestrator required")
	}
	if orch.Investigations() == nil {
		return nil, fmt.Errorf("investigation service unavailable")
	}
	srv := &Server{
		router: chi.NewRouter(),
		orch:   orch,
	}
	srv.routes()
	common.Logger().Info("api: server ready")
	return srv, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	logger := common.Logger()
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug("request", "method", r.Method, "path", r.URL.Path, "dur", time.Since(start), "remote", r.RemoteAddr)
		})
	})

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	s.router.Handle("/metrics", telemetry.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/health/agent", s.handleAgentHealth)
		r.Get("/logs", s.handleLogs)
		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handlePutSettings)
		r.Get("/admin/stats", s.handleStats)

		r.Route("/feature-requests", func(r chi.Router) {
			r.Get("/", s.handleListFeatureRequests)
			r.Post("/", s.handleCreateFeatureRequest)
			r.Get("/{featureID}", s.handleGetFeatureRequest)
			r.Put("/{featureID}", s.handleUpdateFeatureRequest)
			r.Delete("/{featureID}", s.handleDeleteFeatureRequest)
		})

		r.Route("/investigations", func(r chi.Router) {
			r.Get("/", s.handleListInvestigations)
			r.Post("/", s.handleCreateInvestigation)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetInvestigation)
				r.Put("/", s.handleUpdateInvestigation)
				r.Post("/checkpoint", s.handleCheckpoint)
				r.Post("/retry", s.handleRetry)
				r.Post("/hard-reset", s.handleHardReset)
				r.Get("/tasks", s.handleTasks)

				r.Get("/versions", s.handleVersions)
				r.Get("/versions/diff", s.handleVersionDiff)
				r.Post("/versions/restore", s.handleRestore)
				r.Get("/runs", s.handleRuns)
				r.Get("/runs/{run}/conversation", s.handleRunConversation)
				r.Get("/conversation", s.handleConversation)

				r.Post("/sync-responses", s.handleSyncResponses)
				r.Post("/check-new-responses", s.handleCheckNewResponses)
				r.Get("/debounce-status", s.handleDebounceStatus)

				r.Get("/files", s.handleFiles)
				r.Get("/documents/{name}", s.handleDocument)
				r.Get("/activity", s.handleActivity)
			})
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	logger := common.Logger()
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, "error", err)
	} else {
		logger.Warn("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var verrs validator.ValidationErrors
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrValidation), errors.As(err, &verrs):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrAlreadyExists), errors.Is(err, workflow.ErrTaskInFlight):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func fail(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err)
}

// decode reads a JSON body into dst and runs its validate tags. An empty
// body leaves dst untouched.
func decode(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: invalid request body: %v", model.ErrValidation, err)
	}
	return validate.Struct(dst)
}

func int64Param(r *http.Request, name string) (int64, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", model.ErrValidation, name, raw)
	}
	return v, nil
}

func investigationID(r *http.Request) (int64, error) {
	return int64Param(r, "id")
}

// sinceParam parses the optional ?since= query value as RFC 3339.
func sinceParam(r *http.Request) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("since"))
	if raw == "" {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: since must be an RFC 3339 timestamp", model.ErrValidation)
	}
	return &ts, nil
}
