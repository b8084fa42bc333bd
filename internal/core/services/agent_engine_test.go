package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/internal/core/domain"
)

// scriptedPlanner replays a fixed sequence of decisions.
type scriptedPlanner struct {
	decisions []*domain.Decision
	errs      []error
	calls     int
}

func (p *scriptedPlanner) PlanStep(ctx context.Context, state *domain.AgentState, commandDocs string) (*domain.Decision, error) {
	i := p.calls
	p.calls++
	if i < len(p.errs) && p.errs[i] != nil {
		return nil, p.errs[i]
	}
	if i < len(p.decisions) {
		return p.decisions[i], nil
	}
	// Past the script: keep issuing the last decision.
	return p.decisions[len(p.decisions)-1], nil
}

type fakeRunStore struct {
	saved []domain.ExecutionSummary
}

func (s *fakeRunStore) SaveAgentRun(ctx context.Context, summary domain.ExecutionSummary) error {
	s.saved = append(s.saved, summary)
	return nil
}

func newAgentActions(t *testing.T) *domain.ActionRegistry {
	t.Helper()
	actions := domain.NewActionRegistry()
	require.NoError(t, actions.Register(&domain.Action{
		Spec: domain.ActionSpec{Name: "lookup", Description: "returns a value"},
		Execute: func(ctx context.Context, args map[string]any) (domain.ActionResult, error) {
			return domain.TextResult("42"), nil
		},
	}))
	require.NoError(t, actions.Register(&domain.Action{
		Spec: domain.ActionSpec{Name: "explode", Description: "always fails"},
		Execute: func(ctx context.Context, args map[string]any) (domain.ActionResult, error) {
			return domain.ActionResult{}, errors.New("kaboom")
		},
	}))
	return actions
}

func TestAgentEngine_CompletesTask(t *testing.T) {
	store := &fakeRunStore{}
	planner := &scriptedPlanner{decisions: []*domain.Decision{
		{Action: "lookup", Reasoning: "look up the value"},
		{Complete: true, FinalAnswer: "the value is 42"},
	}}
	engine := NewAgentEngine(testLogger(), newAgentActions(t), planner, store, AgentEngineConfig{MaxSteps: 5})

	summary := engine.ExecuteTask(context.Background(), "find the value")
	require.NotNil(t, summary)
	assert.Equal(t, domain.AgentStatusCompleted, summary.Status)
	assert.Equal(t, "the value is 42", summary.Result)
	assert.Equal(t, 1, summary.StepsTaken)
	require.Len(t, summary.Steps, 1)
	assert.Equal(t, "lookup", summary.Steps[0].Action)
	assert.Equal(t, "42", summary.Steps[0].Output["content"])

	require.Len(t, store.saved, 1)
	assert.Equal(t, summary.ExecutionID, store.saved[0].ExecutionID)
}

func TestAgentEngine_StepLimitReached(t *testing.T) {
	planner := &scriptedPlanner{decisions: []*domain.Decision{
		{Action: "lookup", Reasoning: "still looking"},
	}}
	engine := NewAgentEngine(testLogger(), newAgentActions(t), planner, nil, AgentEngineConfig{MaxSteps: 3})

	summary := engine.ExecuteTask(context.Background(), "never finishes")
	assert.Equal(t, domain.AgentStatusStepLimitReached, summary.Status)
	assert.Equal(t, 3, summary.StepsTaken)
	assert.Len(t, summary.Steps, 3)
	assert.Contains(t, summary.Error, "maximum steps")
}

func TestAgentEngine_PlannerErrorFailsTask(t *testing.T) {
	planner := &scriptedPlanner{
		decisions: []*domain.Decision{nil},
		errs:      []error{errors.New("model unavailable")},
	}
	engine := NewAgentEngine(testLogger(), newAgentActions(t), planner, nil, AgentEngineConfig{MaxSteps: 5})

	summary := engine.ExecuteTask(context.Background(), "doomed")
	assert.Equal(t, domain.AgentStatusFailed, summary.Status)
	assert.Contains(t, summary.Error, "planner failed")
	// The failed planning attempt is still part of the trace.
	require.Len(t, summary.Steps, 1)
	assert.Equal(t, "plan", summary.Steps[0].Action)
}

func TestAgentEngine_ActionErrorFailsTask(t *testing.T) {
	planner := &scriptedPlanner{decisions: []*domain.Decision{
		{Action: "explode", Reasoning: "try it"},
	}}
	engine := NewAgentEngine(testLogger(), newAgentActions(t), planner, nil, AgentEngineConfig{MaxSteps: 5})

	summary := engine.ExecuteTask(context.Background(), "risky")
	assert.Equal(t, domain.AgentStatusFailed, summary.Status)
	assert.Equal(t, 1, summary.StepsTaken)
	assert.Contains(t, summary.Error, "kaboom")
}

func TestAgentEngine_DisallowedActionFailsWithoutExecution(t *testing.T) {
	actions := newAgentActions(t)
	executed := false
	require.NoError(t, actions.Register(&domain.Action{
		Spec: domain.ActionSpec{Name: "secret", Description: "must not run"},
		Execute: func(ctx context.Context, args map[string]any) (domain.ActionResult, error) {
			executed = true
			return domain.TextResult("leaked"), nil
		},
	}))

	planner := &scriptedPlanner{decisions: []*domain.Decision{
		{Action: "secret", Reasoning: "try the forbidden one"},
	}}
	engine := NewAgentEngine(testLogger(), actions, planner, nil, AgentEngineConfig{
		MaxSteps:       5,
		AllowedActions: []string{"lookup"},
	})

	summary := engine.ExecuteTask(context.Background(), "sneaky")
	assert.Equal(t, domain.AgentStatusFailed, summary.Status)
	assert.False(t, executed)
	require.Len(t, summary.Steps, 1)
	assert.Contains(t, summary.Steps[0].Output["error"], "secret")
}

// stallingPlanner blocks until the step context is cancelled.
type stallingPlanner struct{}

func (p *stallingPlanner) PlanStep(ctx context.Context, state *domain.AgentState, commandDocs string) (*domain.Decision, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestAgentEngine_MidStepDeadlineReportsTimedOut(t *testing.T) {
	engine := NewAgentEngine(testLogger(), newAgentActions(t), &stallingPlanner{}, nil, AgentEngineConfig{
		MaxSteps: 5,
		Timeout:  50 * time.Millisecond,
	})

	summary := engine.ExecuteTask(context.Background(), "stuck mid-plan")
	assert.Equal(t, domain.AgentStatusTimedOut, summary.Status)
	assert.Contains(t, summary.Error, "timed out")
	// The aborted planning attempt still shows up in the trace.
	require.Len(t, summary.Steps, 1)
	assert.Equal(t, "plan", summary.Steps[0].Action)
}

func TestAgentEngine_TimeoutStopsLoop(t *testing.T) {
	planner := &scriptedPlanner{decisions: []*domain.Decision{
		{Action: "lookup"},
	}}
	engine := NewAgentEngine(testLogger(), newAgentActions(t), planner, nil, AgentEngineConfig{
		MaxSteps: 1000,
		Timeout:  time.Nanosecond,
	})

	summary := engine.ExecuteTask(context.Background(), "slow task")
	assert.Equal(t, domain.AgentStatusTimedOut, summary.Status)
	assert.Contains(t, summary.Error, "timed out")
}
