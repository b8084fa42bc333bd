package kernel

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/rs/cors"

	"github.com/wardenhq/warden/internal/core/domain"
	"github.com/wardenhq/warden/internal/core/services"
)

// AgentRunReader is the slice of the repository the API needs for the
// agent audit endpoints.
type AgentRunReader interface {
	GetAgentRun(ctx context.Context, executionID string) (domain.ExecutionSummary, error)
	ListAgentRuns(ctx context.Context, limit int) ([]domain.ExecutionSummary, error)
}

// SettingsStore persists small operator-editable key/value pairs.
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SaveSetting(ctx context.Context, key string, value string) error
}

// Server is the HTTP surface of the kernel: actions, jobs, events,
// scheduler and agent tasks. Transports (chat bots, CLIs) sit on top of
// this API; none of them are part of the kernel.
type Server struct {
	logger    *slog.Logger
	actions   *domain.ActionRegistry
	jobs      *services.JobManager
	bus       *services.EventBus
	scheduler *services.Scheduler
	engine    *services.AgentEngine
	runs      AgentRunReader
	settings  SettingsStore
}

func NewServer(
	logger *slog.Logger,
	actions *domain.ActionRegistry,
	jobs *services.JobManager,
	bus *services.EventBus,
	scheduler *services.Scheduler,
	engine *services.AgentEngine,
	runs AgentRunReader,
	settings SettingsStore,
) *Server {
	return &Server{
		logger:    logger,
		actions:   actions,
		jobs:      jobs,
		bus:       bus,
		scheduler: scheduler,
		engine:    engine,
		runs:      runs,
		settings:  settings,
	}
}

// Handler builds the routed handler with CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)

	mux.HandleFunc("GET /api/actions", s.handleListActions)
	mux.HandleFunc("POST /api/actions/{name}", s.handleExecuteAction)

	mux.HandleFunc("GET /api/jobs", s.handleListJobs)
	mux.HandleFunc("GET /api/jobs/{id}", s.handleGetJob)
	mux.HandleFunc("DELETE /api/jobs/{id}", s.handleCancelJob)

	mux.HandleFunc("POST /api/events", s.handleTriggerEvent)

	mux.HandleFunc("GET /api/scheduler", s.handleSchedulerStatus)
	mux.HandleFunc("POST /api/scheduler/{name}/enable", s.handleSchedulerToggle(true))
	mux.HandleFunc("POST /api/scheduler/{name}/disable", s.handleSchedulerToggle(false))

	mux.HandleFunc("POST /api/agent/tasks", s.handleRunAgentTask)
	mux.HandleFunc("GET /api/agent/runs", s.handleListAgentRuns)
	mux.HandleFunc("GET /api/agent/runs/{id}", s.handleGetAgentRun)

	mux.HandleFunc("GET /api/settings/{key}", s.handleGetSetting)
	mux.HandleFunc("PUT /api/settings/{key}", s.handleSaveSetting)

	return cors.Default().Handler(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListActions(w http.ResponseWriter, r *http.Request) {
	specs := make([]domain.ActionSpec, 0)
	for _, action := range s.actions.List() {
		specs = append(specs, action.Spec)
	}
	writeJSON(w, http.StatusOK, specs)
}

func (s *Server) handleExecuteAction(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var body struct {
		Args map[string]any `json:"args"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := s.actions.Execute(r.Context(), name, body.Args)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrActionNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	filter := services.JobFilter{
		Status: domain.JobStatus(r.URL.Query().Get("status")),
		Type:   r.URL.Query().Get("type"),
	}
	writeJSON(w, http.StatusOK, s.jobs.List(r.Context(), filter))
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	rec, err := s.jobs.Get(r.Context(), domain.JobID(r.PathValue("id")))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := domain.JobID(r.PathValue("id"))
	if err := s.jobs.Cancel(r.Context(), id); err != nil {
		status := http.StatusConflict
		if errors.Is(err, domain.ErrJobNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled", "job_id": string(id)})
}

func (s *Server) handleTriggerEvent(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Trigger string         `json:"trigger"`
		Context map[string]any `json:"context"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	results, err := s.bus.TriggerEvent(r.Context(), domain.Trigger(body.Trigger), body.Context)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrUnknownTrigger) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.scheduler.StatusAll())
}

func (s *Server) handleSchedulerToggle(enable bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		var err error
		if enable {
			err = s.scheduler.Enable(name)
		} else {
			err = s.scheduler.Disable(name)
		}
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		status, _ := s.scheduler.Status(name)
		writeJSON(w, http.StatusOK, status)
	}
}

func (s *Server) handleRunAgentTask(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("agent engine not configured"))
		return
	}

	var body struct {
		Task string `json:"task"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if body.Task == "" {
		writeError(w, http.StatusBadRequest, errors.New("task is required"))
		return
	}

	summary := s.engine.ExecuteTask(r.Context(), body.Task)
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleListAgentRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeJSON(w, http.StatusOK, []domain.ExecutionSummary{})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	summaries, err := s.runs.ListAgentRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if summaries == nil {
		summaries = []domain.ExecutionSummary{}
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleGetAgentRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusNotFound, errors.New("agent run storage not configured"))
		return
	}
	summary, err := s.runs.GetAgentRun(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleGetSetting(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("settings storage not configured"))
		return
	}
	key := r.PathValue("key")
	value, err := s.settings.GetSetting(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": value})
}

func (s *Server) handleSaveSetting(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("settings storage not configured"))
		return
	}
	var body struct {
		Value string `json:"value"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	key := r.PathValue("key")
	if err := s.settings.SaveSetting(r.Context(), key, body.Value); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": body.Value})
}

func decodeBody(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
