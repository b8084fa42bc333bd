package example

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/internal/core/domain"
)

func TestNew_DefaultGreeting(t *testing.T) {
	components, err := New(nil)
	require.NoError(t, err)
	require.Len(t, components.Actions, 1)

	result, err := components.Actions[0].Execute(context.Background(), map[string]any{"name": "world"})
	require.NoError(t, err)
	assert.Equal(t, "Hello, world!", result.Content)
}

func TestNew_ConfiguredGreeting(t *testing.T) {
	components, err := New(map[string]any{"greeting": "Howdy"})
	require.NoError(t, err)

	result, err := components.Actions[0].Execute(context.Background(), map[string]any{"name": "partner"})
	require.NoError(t, err)
	assert.Equal(t, "Howdy, partner!", result.Content)
}

func TestNew_Contributions(t *testing.T) {
	components, err := New(nil)
	require.NoError(t, err)

	assert.Equal(t, []string{TriggerExampleEvent}, components.CustomTriggers)
	require.Len(t, components.Entries, 1)
	assert.Equal(t, "hello", components.Entries[0].Command)

	require.Len(t, components.Handlers, 1)
	handler := components.Handlers[0]()
	assert.Equal(t, "example_project_handler", handler.Name())
	assert.Contains(t, handler.Triggers(), domain.TriggerNewProject)
}

func TestProjectHandler_Handle(t *testing.T) {
	handler := &projectHandler{}
	result := handler.Handle(context.Background(), domain.Event{
		Trigger: domain.TriggerNewProject,
		Context: map[string]any{"project": "warden"},
	})
	assert.True(t, result.Success)
	assert.Contains(t, result.Data["message"], "warden")
}

func TestProjectHandler_FilterSkipsQuietProjects(t *testing.T) {
	handler := &projectHandler{}
	assert.Equal(t, `quiet != true`, handler.EventFilter())
}
