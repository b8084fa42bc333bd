package domain

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
)

// ArgType enumerates the supported action argument types.
type ArgType string

const (
	ArgString ArgType = "string"
	ArgInt    ArgType = "integer"
	ArgFloat  ArgType = "number"
	ArgBool   ArgType = "boolean"
)

// ActionArgument describes one declared argument of an action.
type ActionArgument struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Type        ArgType `json:"type"`
	Required    bool    `json:"required"`
	Default     any     `json:"default,omitempty"`
	Choices     []any   `json:"choices,omitempty"`
}

// ActionSpec is the declared contract of an action: its unique name,
// human help text, a hint for automated callers, and the argument schema.
type ActionSpec struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	HelpText    string           `json:"help_text,omitempty"`
	AgentHint   string           `json:"agent_hint,omitempty"`
	Arguments   []ActionArgument `json:"arguments,omitempty"`
}

// Schema compiles the declared arguments into an OpenAPI object schema.
func (s ActionSpec) Schema() *openapi3.Schema {
	schema := openapi3.NewObjectSchema()
	for _, arg := range s.Arguments {
		var prop *openapi3.Schema
		switch arg.Type {
		case ArgInt:
			prop = openapi3.NewIntegerSchema()
		case ArgFloat:
			prop = openapi3.NewFloat64Schema()
		case ArgBool:
			prop = openapi3.NewBoolSchema()
		default:
			prop = openapi3.NewStringSchema()
		}
		prop.Description = arg.Description
		if arg.Default != nil {
			prop = prop.WithDefault(arg.Default)
		}
		if len(arg.Choices) > 0 {
			prop = prop.WithEnum(arg.Choices...)
		}
		schema = schema.WithProperty(arg.Name, prop)
		if arg.Required {
			schema.Required = append(schema.Required, arg.Name)
		}
	}
	return schema
}

// ValidateArgs checks args against the declared schema. Missing optional
// arguments with defaults are filled in before validation.
func (s ActionSpec) ValidateArgs(args map[string]any) error {
	if args == nil {
		args = map[string]any{}
	}
	for _, arg := range s.Arguments {
		if _, ok := args[arg.Name]; !ok && arg.Default != nil {
			args[arg.Name] = arg.Default
		}
	}
	if err := s.Schema().VisitJSON(args); err != nil {
		return fmt.Errorf("action %s: invalid arguments: %w", s.Name, err)
	}
	return nil
}

// ResultType classifies the payload of an ActionResult.
type ResultType string

const (
	ResultText  ResultType = "text"
	ResultList  ResultType = "list"
	ResultTable ResultType = "table"
	ResultJSON  ResultType = "json"
	ResultError ResultType = "error"
	ResultJob   ResultType = "job" // references a submitted background job
)

// ActionResult is the immutable outcome of one action invocation.
type ActionResult struct {
	Success bool           `json:"success"`
	Type    ResultType     `json:"type"`
	Content string         `json:"content,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
	JobID   string         `json:"job_id,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// TextResult wraps a plain text payload.
func TextResult(content string) ActionResult {
	return ActionResult{Success: true, Type: ResultText, Content: content}
}

// ListResult renders items as a bulleted list.
func ListResult(items []string) ActionResult {
	if len(items) == 0 {
		return ActionResult{Success: true, Type: ResultList, Content: "No items found."}
	}
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = "• " + item
	}
	return ActionResult{Success: true, Type: ResultList, Content: strings.Join(lines, "\n")}
}

// JSONResult carries structured data.
func JSONResult(data map[string]any) ActionResult {
	return ActionResult{Success: true, Type: ResultJSON, Data: data}
}

// ErrorResult marks a failed invocation.
func ErrorResult(err error) ActionResult {
	return ActionResult{Success: false, Type: ResultError, Error: err.Error()}
}

// JobRefResult references a background job submitted by the action.
func JobRefResult(jobID string, content string) ActionResult {
	return ActionResult{Success: true, Type: ResultJob, JobID: jobID, Content: content}
}

// ActionFunc is the run body of an action.
type ActionFunc func(ctx context.Context, args map[string]any) (ActionResult, error)

// Action pairs a spec with its run body. Registered once at load time,
// never mutated afterwards.
type Action struct {
	Spec    ActionSpec
	Execute ActionFunc
}

// ActionRegistry holds all registered actions keyed by name.
type ActionRegistry struct {
	mu      sync.RWMutex
	actions map[string]*Action
}

func NewActionRegistry() *ActionRegistry {
	return &ActionRegistry{actions: make(map[string]*Action)}
}

// Register adds an action. Name collisions are an error: two extensions
// claiming the same command is a deployment mistake, not a merge.
func (r *ActionRegistry) Register(action *Action) error {
	if action == nil || action.Spec.Name == "" {
		return fmt.Errorf("action name cannot be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.actions[action.Spec.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateAction, action.Spec.Name)
	}
	r.actions[action.Spec.Name] = action
	return nil
}

// Unregister removes an action by name, reporting whether it existed.
func (r *ActionRegistry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.actions[name]; !ok {
		return false
	}
	delete(r.actions, name)
	return true
}

// Get returns an action by name.
func (r *ActionRegistry) Get(name string) (*Action, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	action, ok := r.actions[name]
	return action, ok
}

// List returns all registered actions sorted by name.
func (r *ActionRegistry) List() []*Action {
	r.mu.RLock()
	defer r.mu.RUnlock()
	actions := make([]*Action, 0, len(r.actions))
	for _, action := range r.actions {
		actions = append(actions, action)
	}
	sort.Slice(actions, func(i, j int) bool {
		return actions[i].Spec.Name < actions[j].Spec.Name
	})
	return actions
}

// Execute validates args and invokes the named action.
func (r *ActionRegistry) Execute(ctx context.Context, name string, args map[string]any) (ActionResult, error) {
	action, ok := r.Get(name)
	if !ok {
		return ActionResult{}, fmt.Errorf("%w: %s", ErrActionNotFound, name)
	}
	if args == nil {
		args = map[string]any{}
	}
	if err := action.Spec.ValidateArgs(args); err != nil {
		return ErrorResult(err), nil
	}
	return action.Execute(ctx, args)
}

// FilterByNames returns a registry restricted to the given names. The
// filtered registry shares Action pointers with the original.
func (r *ActionRegistry) FilterByNames(names []string) *ActionRegistry {
	allowed := make(map[string]struct{}, len(names))
	for _, n := range names {
		allowed[n] = struct{}{}
	}
	filtered := NewActionRegistry()
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, action := range r.actions {
		if _, ok := allowed[name]; ok {
			filtered.actions[name] = action
		}
	}
	return filtered
}

// FormatForPrompt renders a compact command reference for LLM callers.
func (r *ActionRegistry) FormatForPrompt() string {
	var b strings.Builder
	b.WriteString("Available Commands:\n")
	for _, action := range r.List() {
		spec := action.Spec
		required := make([]string, 0, len(spec.Arguments))
		params := make([]string, 0, len(spec.Arguments))
		for _, arg := range spec.Arguments {
			params = append(params, arg.Name+":"+string(arg.Type))
			if arg.Required {
				required = append(required, arg.Name)
			}
		}
		b.WriteString("- " + spec.Name + ": " + spec.Description)
		if len(params) > 0 {
			b.WriteString(" | params: {" + strings.Join(params, ", ") + "}")
		}
		if len(required) > 0 {
			b.WriteString(" | required: " + strings.Join(required, ", "))
		}
		if spec.AgentHint != "" {
			b.WriteString(" | hint: " + spec.AgentHint)
		}
		b.WriteString("\n")
	}
	return b.String()
}
