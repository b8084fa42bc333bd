package domain

import (
	"context"
	"sync"
	"time"
)

// Trigger identifies a class of event. A fixed built-in set exists;
// extensions may register additional custom triggers by name.
type Trigger string

const (
	TriggerNewProject     Trigger = "NEW_PROJECT"
	TriggerProjectUpdated Trigger = "PROJECT_UPDATED"
	TriggerProjectRemoved Trigger = "PROJECT_REMOVED"
	TriggerNewAsset       Trigger = "NEW_ASSET"
	TriggerAssetUpdated   Trigger = "ASSET_UPDATED"
	TriggerAssetRemoved   Trigger = "ASSET_REMOVED"
	TriggerSourcePush     Trigger = "SOURCE_PUSH"
	TriggerSourceUpdate   Trigger = "SOURCE_UPDATE"
	TriggerExternalEvent  Trigger = "EXTERNAL_EVENT"
)

// BuiltinTriggers returns the fixed trigger set every deployment has.
func BuiltinTriggers() []Trigger {
	return []Trigger{
		TriggerNewProject,
		TriggerProjectUpdated,
		TriggerProjectRemoved,
		TriggerNewAsset,
		TriggerAssetUpdated,
		TriggerAssetRemoved,
		TriggerSourcePush,
		TriggerSourceUpdate,
		TriggerExternalEvent,
	}
}

// TriggerRegistry tracks which triggers exist. Custom registration is
// idempotent: independently loaded extensions may declare the same name.
type TriggerRegistry struct {
	mu     sync.RWMutex
	custom map[Trigger]struct{}
}

func NewTriggerRegistry() *TriggerRegistry {
	return &TriggerRegistry{custom: make(map[Trigger]struct{})}
}

// RegisterCustom adds a custom trigger, returning the existing value if
// the name is already known (built-in or custom).
func (r *TriggerRegistry) RegisterCustom(name string) Trigger {
	t := Trigger(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := builtinTriggerSet[t]; ok {
		return t
	}
	r.custom[t] = struct{}{}
	return t
}

// Known reports whether the trigger is built-in or registered.
func (r *TriggerRegistry) Known(t Trigger) bool {
	if _, ok := builtinTriggerSet[t]; ok {
		return true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.custom[t]
	return ok
}

// CustomTriggers returns all dynamically registered triggers.
func (r *TriggerRegistry) CustomTriggers() []Trigger {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Trigger, 0, len(r.custom))
	for t := range r.custom {
		out = append(out, t)
	}
	return out
}

var builtinTriggerSet = func() map[Trigger]struct{} {
	set := make(map[Trigger]struct{})
	for _, t := range BuiltinTriggers() {
		set[t] = struct{}{}
	}
	return set
}()

// Event is the payload dispatched to handlers: the firing trigger plus
// an arbitrary context assembled by the producer.
type Event struct {
	Trigger   Trigger        `json:"trigger"`
	Context   map[string]any `json:"context"`
	Timestamp time.Time      `json:"timestamp"`
}

// HandlerResult is the per-invocation outcome of a handler.
type HandlerResult struct {
	Handler string         `json:"handler"`
	Success bool           `json:"success"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Handler consumes events for the triggers it declares. One fresh
// instance is constructed per dispatch, so implementations may keep
// per-invocation state in struct fields without locking.
type Handler interface {
	Name() string
	Triggers() []Trigger
	Handle(ctx context.Context, ev Event) HandlerResult
}

// HandlerFactory constructs a fresh handler instance for one dispatch.
type HandlerFactory func() Handler

// EventFilter is an optional handler extension: when the returned
// expression is non-empty it is evaluated against the event context and
// the handler only fires when it yields true.
type EventFilter interface {
	EventFilter() string
}
