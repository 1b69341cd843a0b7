package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"neurosig/adapters/excel"
	"neurosig/app"
	"neurosig/domain/core"
	"neurosig/domain/session"
	"neurosig/internal"
	"neurosig/internal/errors"
)

// Server exposes the recording and analysis operations over HTTP.
type Server struct {
	router    *chi.Mux
	service   *app.AnalysisService
	rec       *session.Recorder
	exporter  *excel.Exporter
	exportDir string
	log       *internal.Logger
}

// NewServer creates an HTTP server over the analysis service and recorder.
// Workbook exports land in exportDir; logger may be nil (default logger).
func NewServer(service *app.AnalysisService, rec *session.Recorder, exportDir string, logger *internal.Logger) *Server {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	s := &Server{
		router:    chi.NewRouter(),
		service:   service,
		rec:       rec,
		exporter:  excel.NewExporter(),
		exportDir: exportDir,
		log:       logger,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/config", s.handleConfig)

	// Recording
	s.router.Post("/api/phases/start", s.handlePhaseStart)
	s.router.Post("/api/phases/stop", s.handlePhaseStop)
	s.router.Post("/api/windows", s.handleAddWindow)
	s.router.Get("/api/tasks", s.handleListTasks)

	// Baseline
	s.router.Post("/api/baseline/compute", s.handleComputeBaseline)
	s.router.Get("/api/baseline", s.handleGetBaseline)

	// Synchronous analysis
	s.router.Post("/api/analyze/all", s.handleAnalyzeAll)
	s.router.Post("/api/analyze/{task}", s.handleAnalyzeTask)

	// Background jobs
	s.router.Post("/api/jobs/all", s.handleStartAllJob)
	s.router.Post("/api/jobs/task/{task}", s.handleStartTaskJob)
	s.router.Get("/api/jobs/{id}", s.handleJobStatus)
	s.router.Post("/api/jobs/{id}/cancel", s.handleJobCancel)

	// Export
	s.router.Get("/api/export/xlsx", s.handleExportAllWorkbook)
	s.router.Get("/api/export/{task}", s.handleExport)
	s.router.Get("/api/export/{task}/xlsx", s.handleExportWorkbook)

	// Stored results
	s.router.Get("/api/results/{task}/latest", s.handleLatestResult)
}

// Router returns the configured handler for mounting.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"session": s.service.SessionID().String(),
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Engine().Config())
}

type phaseStartRequest struct {
	Kind string `json:"kind"`
	Task string `json:"task,omitempty"`
}

func (s *Server) handlePhaseStart(w http.ResponseWriter, r *http.Request) {
	var req phaseStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errors.InvalidInput("malformed request body"))
		return
	}
	kind := session.PhaseKind(req.Kind)
	if !kind.IsValid() {
		s.writeError(w, errors.InvalidInput("unknown phase kind"))
		return
	}
	phase := s.rec.StartPhase(kind, req.Task)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"phase_id": phase.ID,
		"kind":     phase.Kind,
		"task":     phase.Task,
	})
}

func (s *Server) handlePhaseStop(w http.ResponseWriter, r *http.Request) {
	s.rec.StopPhase()
	w.WriteHeader(http.StatusNoContent)
}

type windowRequest struct {
	Kind      string             `json:"kind"`
	Timestamp float64            `json:"timestamp"`
	Features  map[string]float64 `json:"features"`
}

func (s *Server) handleAddWindow(w http.ResponseWriter, r *http.Request) {
	var req windowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errors.InvalidInput("malformed request body"))
		return
	}
	accepted := s.rec.AddFeatureWindow(session.PhaseKind(req.Kind), req.Timestamp, req.Features)
	if accepted == nil {
		// no matching active phase, the window is dropped
		writeJSON(w, http.StatusAccepted, map[string]bool{"recorded": false})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"recorded":   true,
		"n_features": len(accepted),
	})
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"tasks": s.rec.TaskNames()})
}

func (s *Server) handleComputeBaseline(w http.ResponseWriter, r *http.Request) {
	baseline, err := s.service.Engine().ComputeBaseline()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, baseline)
}

func (s *Server) handleGetBaseline(w http.ResponseWriter, r *http.Request) {
	baseline, err := s.service.Engine().Baseline()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, baseline)
}

func (s *Server) handleAnalyzeTask(w http.ResponseWriter, r *http.Request) {
	task := chi.URLParam(r, "task")
	analysis, err := s.service.AnalyzeTask(r.Context(), task)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

func (s *Server) handleAnalyzeAll(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.AnalyzeAllTasks(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleStartTaskJob(w http.ResponseWriter, r *http.Request) {
	job := s.service.StartTaskAnalysis(chi.URLParam(r, "task"))
	writeJSON(w, http.StatusAccepted, job.Snapshot())
}

func (s *Server) handleStartAllJob(w http.ResponseWriter, r *http.Request) {
	job := s.service.StartAllTasksAnalysis()
	writeJSON(w, http.StatusAccepted, job.Snapshot())
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	job := s.service.Job(core.RunID(chi.URLParam(r, "id")))
	if job == nil {
		s.writeError(w, errors.New(errors.CodeInvalidInput, "unknown job"))
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}

func (s *Server) handleJobCancel(w http.ResponseWriter, r *http.Request) {
	job := s.service.Job(core.RunID(chi.URLParam(r, "id")))
	if job == nil {
		s.writeError(w, errors.New(errors.CodeInvalidInput, "unknown job"))
		return
	}
	job.Cancel()
	writeJSON(w, http.StatusOK, job.Snapshot())
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	task := chi.URLParam(r, "task")
	compact := r.URL.Query().Get("compact") == "1" || r.URL.Query().Get("compact") == "true"

	analysis, err := s.service.AnalyzeTask(r.Context(), task)
	if err != nil {
		s.writeError(w, err)
		return
	}
	payload := s.service.Engine().Export(analysis, compact)
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleExportWorkbook(w http.ResponseWriter, r *http.Request) {
	task := chi.URLParam(r, "task")
	analysis, err := s.service.AnalyzeTask(r.Context(), task)
	if err != nil {
		s.writeError(w, err)
		return
	}
	path := filepath.Join(s.exportDir, workbookFileName(task))
	if err := s.exporter.WriteTask(path, analysis); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"file": path})
}

func (s *Server) handleExportAllWorkbook(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.AnalyzeAllTasks(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	path := filepath.Join(s.exportDir, "all_tasks.xlsx")
	if err := s.exporter.WriteAllTasks(path, result); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"file": path})
}

func (s *Server) handleLatestResult(w http.ResponseWriter, r *http.Request) {
	task := chi.URLParam(r, "task")
	analysis, err := s.service.LatestStoredAnalysis(r.Context(), task)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if analysis == nil {
		s.writeError(w, errors.New(errors.CodeNoSuchTask, fmt.Sprintf("no stored analysis for task %q", task)))
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

// workbookFileName maps a task name onto a filesystem-safe xlsx file name.
func workbookFileName(task string) string {
	if task == "" {
		task = "task"
	}
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, task)
	return safe + ".xlsx"
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps application error codes onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := errors.GetCode(err)
	status := http.StatusInternalServerError
	switch code {
	case errors.CodeInvalidInput, errors.CodeConfigInvalid:
		status = http.StatusBadRequest
	case errors.CodeNoSuchTask, errors.CodeNoBaseline:
		status = http.StatusNotFound
	case errors.CodeInsufficientData:
		status = http.StatusUnprocessableEntity
	}
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed: %v", err)
	}
	writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"code":  code,
	})
}
