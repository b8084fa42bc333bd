package kernel

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/internal/core/domain"
	"github.com/wardenhq/warden/internal/core/services"
)

func newTestServer(t *testing.T) (*Server, *services.JobManager) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	actions := domain.NewActionRegistry()
	require.NoError(t, actions.Register(&domain.Action{
		Spec: domain.ActionSpec{
			Name:        "echo",
			Description: "echoes text",
			Arguments: []domain.ActionArgument{
				{Name: "text", Description: "text to echo", Type: domain.ArgString, Required: true},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (domain.ActionResult, error) {
			return domain.TextResult(args["text"].(string)), nil
		},
	}))

	triggers := domain.NewTriggerRegistry()
	bus := services.NewEventBus(logger, triggers)
	jobs := services.NewJobManager(logger, nil, services.JobManagerConfig{})
	sched := services.NewScheduler(logger, actions, jobs, nil)

	return NewServer(logger, actions, jobs, bus, sched, nil, nil, nil), jobs
}

func doRequest(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv.Handler(), http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestServer_ListActions(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv.Handler(), http.MethodGet, "/api/actions", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var specs []domain.ActionSpec
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &specs))
	require.Len(t, specs, 1)
	assert.Equal(t, "echo", specs[0].Name)
}

func TestServer_ExecuteAction(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv.Handler(), http.MethodPost, "/api/actions/echo", `{"args": {"text": "hi"}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var result domain.ActionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.Equal(t, "hi", result.Content)
}

func TestServer_ExecuteActionValidationFailure(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv.Handler(), http.MethodPost, "/api/actions/echo", `{"args": {}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var result domain.ActionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "invalid arguments")
}

func TestServer_ExecuteUnknownAction(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv.Handler(), http.MethodPost, "/api/actions/missing", `{}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_JobsLifecycle(t *testing.T) {
	srv, jobs := newTestServer(t)
	handler := srv.Handler()

	rec := doRequest(t, handler, http.MethodGet, "/api/jobs", "")
	require.Equal(t, http.StatusOK, rec.Code)

	ctx := context.Background()
	started := make(chan struct{})
	id, err := jobs.Submit(ctx, &blockingJob{started: started})
	require.NoError(t, err)
	<-started

	rec = doRequest(t, handler, http.MethodGet, "/api/jobs/"+string(id), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var record domain.JobRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.Equal(t, domain.JobStatusRunning, record.Status)

	rec = doRequest(t, handler, http.MethodDelete, "/api/jobs/"+string(id), "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, jobs.Wait(ctx, id))

	// Cancelling again conflicts with the terminal state.
	rec = doRequest(t, handler, http.MethodDelete, "/api/jobs/"+string(id), "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(t, handler, http.MethodGet, "/api/jobs/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = doRequest(t, handler, http.MethodDelete, "/api/jobs/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type blockingJob struct {
	started chan struct{}
}

func (j *blockingJob) Type() string { return "blocking" }

func (j *blockingJob) Run(ctx context.Context, progress domain.ProgressFunc) (*domain.JobResult, error) {
	close(j.started)
	<-ctx.Done()
	return nil, ctx.Err()
}

func (j *blockingJob) Stop(ctx context.Context) error { return nil }

func TestServer_TriggerEvent(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	rec := doRequest(t, handler, http.MethodPost, "/api/events",
		`{"trigger": "NEW_PROJECT", "context": {"project": "x"}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var results []domain.HandlerResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	assert.Empty(t, results)

	rec = doRequest(t, handler, http.MethodPost, "/api/events", `{"trigger": "BOGUS"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_SchedulerEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	srv.scheduler.LoadEntries(context.Background(), []domain.ScheduledEntry{
		{Name: "hourly", Command: "echo", Args: map[string]any{"text": "hi"}, IntervalMinutes: 60, Enabled: true},
	})

	rec := doRequest(t, handler, http.MethodGet, "/api/scheduler", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var statuses []domain.ScheduledEntryStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &statuses))
	require.Len(t, statuses, 1)
	assert.True(t, statuses[0].Enabled)

	rec = doRequest(t, handler, http.MethodPost, "/api/scheduler/hourly/disable", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status domain.ScheduledEntryStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.False(t, status.Enabled)

	rec = doRequest(t, handler, http.MethodPost, "/api/scheduler/missing/enable", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_AgentUnconfigured(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	rec := doRequest(t, handler, http.MethodPost, "/api/agent/tasks", `{"task": "do something"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = doRequest(t, handler, http.MethodGet, "/api/agent/runs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))

	rec = doRequest(t, handler, http.MethodGet, "/api/agent/runs/some-id", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_AgentTaskValidation(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	actions := domain.NewActionRegistry()
	engine := services.NewAgentEngine(logger, actions, stubPlanner{}, nil, services.AgentEngineConfig{})
	srv := NewServer(logger, actions, services.NewJobManager(logger, nil, services.JobManagerConfig{}),
		services.NewEventBus(logger, domain.NewTriggerRegistry()),
		services.NewScheduler(logger, actions, nil, nil), engine, nil, nil)

	rec := doRequest(t, srv.Handler(), http.MethodPost, "/api/agent/tasks", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, srv.Handler(), http.MethodPost, "/api/agent/tasks", `{"task": "finish up"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var summary domain.ExecutionSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, domain.AgentStatusCompleted, summary.Status)
}

type memorySettings struct {
	values map[string]string
}

func (s *memorySettings) GetSetting(ctx context.Context, key string) (string, error) {
	value, ok := s.values[key]
	if !ok {
		return "", errors.New("setting not found: " + key)
	}
	return value, nil
}

func (s *memorySettings) SaveSetting(ctx context.Context, key, value string) error {
	s.values[key] = value
	return nil
}

func TestServer_Settings(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	actions := domain.NewActionRegistry()
	srv := NewServer(logger, actions, services.NewJobManager(logger, nil, services.JobManagerConfig{}),
		services.NewEventBus(logger, domain.NewTriggerRegistry()),
		services.NewScheduler(logger, actions, nil, nil), nil, nil,
		&memorySettings{values: map[string]string{}})
	handler := srv.Handler()

	rec := doRequest(t, handler, http.MethodGet, "/api/settings/theme", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, handler, http.MethodPut, "/api/settings/theme", `{"value": "dark"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, handler, http.MethodGet, "/api/settings/theme", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"dark"`)
}

type stubPlanner struct{}

func (stubPlanner) PlanStep(ctx context.Context, state *domain.AgentState, commandDocs string) (*domain.Decision, error) {
	return &domain.Decision{Complete: true, FinalAnswer: "nothing to do"}, nil
}
