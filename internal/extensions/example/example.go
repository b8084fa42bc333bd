// Package example is a minimal extension used as a template for new
// ones: one command, one event handler with a filter, one custom
// trigger and one scheduled entry.
package example

import (
	"context"
	"fmt"

	"github.com/wardenhq/warden/internal/core/domain"
	"github.com/wardenhq/warden/internal/extensions"
)

const (
	// Name is the factory name the manifest must reference.
	Name = "example"

	// TriggerExampleEvent is contributed by this extension and becomes
	// a valid trigger once the extension loads.
	TriggerExampleEvent = "EXAMPLE_EVENT"
)

// New builds the extension's components. The manifest config supports
// a single "greeting" key overriding the default salutation.
func New(cfg map[string]any) (*extensions.Components, error) {
	greeting := "Hello"
	if v, ok := cfg["greeting"].(string); ok && v != "" {
		greeting = v
	}

	return &extensions.Components{
		Actions: []*domain.Action{newHelloAction(greeting)},
		Handlers: []domain.HandlerFactory{
			func() domain.Handler { return &projectHandler{} },
		},
		CustomTriggers: []string{TriggerExampleEvent},
		Entries: []domain.ScheduledEntry{
			{
				Name:            "example_heartbeat",
				Command:         "hello",
				Args:            map[string]any{"name": "scheduler"},
				IntervalMinutes: 60,
				Enabled:         false,
			},
		},
	}, nil
}

func newHelloAction(greeting string) *domain.Action {
	return &domain.Action{
		Spec: domain.ActionSpec{
			Name:        "hello",
			Description: "Greet someone by name",
			AgentHint:   "Use to produce a friendly greeting.",
			Arguments: []domain.ActionArgument{
				{Name: "name", Description: "Who to greet", Type: domain.ArgString, Required: false, Default: "world"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (domain.ActionResult, error) {
			name, _ := args["name"].(string)
			return domain.TextResult(fmt.Sprintf("%s, %s!", greeting, name)), nil
		},
	}
}

// projectHandler reacts to new projects and to the extension's own
// custom trigger. The filter skips projects explicitly marked quiet.
type projectHandler struct{}

func (h *projectHandler) Name() string { return "example_project_handler" }

func (h *projectHandler) Triggers() []domain.Trigger {
	return []domain.Trigger{domain.TriggerNewProject, TriggerExampleEvent}
}

func (h *projectHandler) EventFilter() string {
	return `quiet != true`
}

func (h *projectHandler) Handle(ctx context.Context, ev domain.Event) domain.HandlerResult {
	project, _ := ev.Context["project"].(string)
	return domain.HandlerResult{
		Handler: h.Name(),
		Success: true,
		Data: map[string]any{
			"trigger": string(ev.Trigger),
			"message": fmt.Sprintf("noticed activity on %q", project),
		},
	}
}
