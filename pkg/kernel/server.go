package kernel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/routers"
	"github.com/oapi-codegen/runtime"
	"github.com/timsteinerr/transcriptor/internal/core/domain"
	"github.com/timsteinerr/transcriptor/internal/core/ports"
	"github.com/timsteinerr/transcriptor/internal/core/services"
)

const (
	msgNoURL           = "No URL provided."
	msgJobNotFound     = "Job not found."
	msgHistoryDisabled = "History is disabled."

	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

type Server struct {
	logger    *slog.Logger
	jobs      *services.JobService
	history   ports.HistoryRepository // optional
	staticDir string
	// jobCtx scopes pipelines started by requests; it outlives any single request.
	jobCtx    context.Context
	validator *requestValidator
}

func NewServer(
	ctx context.Context,
	logger *slog.Logger,
	jobs *services.JobService,
	history ports.HistoryRepository,
	staticDir string,
) (*Server, error) {
	doc, err := LoadOpenAPI(ctx)
	if err != nil {
		return nil, err
	}
	s := &Server{
		logger:    logger,
		jobs:      jobs,
		history:   history,
		staticDir: staticDir,
		jobCtx:    ctx,
	}
	s.validator, err = newRequestValidator(logger, doc, s.handleValidationError)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Handler returns the http.Handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/transcribe", s.handleTranscribe)
	mux.HandleFunc("GET /api/status/{job_id}", s.handleStatus)
	mux.HandleFunc("DELETE /api/cleanup/{job_id}", s.handleCleanup)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("GET /api/openapi.yaml", s.handleOpenAPI)

	if s.staticDir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(s.staticDir)))
	}

	return s.validator.Wrap(mux)
}

type transcribeRequest struct {
	URL string `json:"url"`
}

type transcribeResponse struct {
	JobID domain.JobID `json:"job_id"`
}

// handleTranscribe starts a job for the posted URL.
// POST /api/transcribe {"url": "..."}
func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	var req transcribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, msgNoURL)
		return
	}

	id, err := s.jobs.Submit(s.jobCtx, req.URL)
	if errors.Is(err, domain.ErrEmptyURL) {
		writeError(w, http.StatusBadRequest, msgNoURL)
		return
	}
	if err != nil {
		s.logger.Error("failed to submit job", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to submit job: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, transcribeResponse{JobID: id})
}

// handleStatus returns the job record for polling clients.
// GET /api/status/{job_id}
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := s.bindJobID(w, r)
	if !ok {
		return
	}

	record, err := s.jobs.Status(id)
	if errors.Is(err, domain.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, msgJobNotFound)
		return
	}
	if err != nil {
		s.logger.Error("failed to read job", "job_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// handleCleanup drops a job record. Unknown ids succeed too.
// DELETE /api/cleanup/{job_id}
func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	id, ok := s.bindJobID(w, r)
	if !ok {
		return
	}
	s.jobs.Cleanup(id)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// GET /api/health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"jobs":   s.jobs.ActiveJobs(),
	})
}

// handleHistory lists recent finished jobs.
// GET /api/history?limit=50
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, msgHistoryDisabled)
		return
	}

	limit := defaultHistoryLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		var n int
		if _, err := fmt.Sscanf(l, "%d", &n); err == nil && n > 0 {
			limit = min(n, maxHistoryLimit)
		}
	}

	entries, err := s.history.ListRecent(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list history", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []ports.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  entries,
		"count": len(entries),
	})
}

// GET /api/openapi.yaml
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	w.Write(OpenAPIDocument())
}

func (s *Server) bindJobID(w http.ResponseWriter, r *http.Request) (domain.JobID, bool) {
	var id string
	err := runtime.BindStyledParameterWithOptions("simple", "job_id", r.PathValue("job_id"), &id, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Explode:       false,
		Required:      true,
	})
	if err != nil || strings.TrimSpace(id) == "" {
		writeError(w, http.StatusNotFound, msgJobNotFound)
		return "", false
	}
	return domain.JobID(id), true
}

func (s *Server) handleValidationError(w http.ResponseWriter, r *http.Request, route *routers.Route, err error) {
	if route.Operation != nil && route.Operation.OperationID == "submitTranscription" {
		writeError(w, http.StatusBadRequest, msgNoURL)
		return
	}
	writeError(w, http.StatusBadRequest, "Invalid request: "+err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
