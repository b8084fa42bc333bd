package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/wardenhq/warden/internal/core/domain"
)

type subscription struct {
	name    string
	factory domain.HandlerFactory
	filter  *vm.Program
}

// EventBus maps triggers to handler subscriptions and dispatches events
// to every matching handler, isolating each handler's failure.
type EventBus struct {
	logger   *slog.Logger
	triggers *domain.TriggerRegistry

	mu   sync.RWMutex
	subs map[domain.Trigger][]subscription
}

func NewEventBus(logger *slog.Logger, triggers *domain.TriggerRegistry) *EventBus {
	return &EventBus{
		logger:   logger,
		triggers: triggers,
		subs:     make(map[domain.Trigger][]subscription),
	}
}

// Subscribe registers a handler factory under every trigger the handler
// declares. Custom triggers named by the handler are registered
// idempotently as a side effect. Handlers may share a trigger; fan-out
// is intentional.
func (b *EventBus) Subscribe(factory domain.HandlerFactory) error {
	proto := factory()
	name := proto.Name()
	triggers := proto.Triggers()
	if len(triggers) == 0 {
		return fmt.Errorf("handler %s declares no triggers", name)
	}

	var program *vm.Program
	if f, ok := proto.(domain.EventFilter); ok && f.EventFilter() != "" {
		compiled, err := expr.Compile(f.EventFilter(), expr.AllowUndefinedVariables(), expr.AsBool())
		if err != nil {
			return fmt.Errorf("handler %s: invalid event filter: %w", name, err)
		}
		program = compiled
	}

	sub := subscription{name: name, factory: factory, filter: program}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range triggers {
		b.triggers.RegisterCustom(string(t))
		b.subs[t] = append(b.subs[t], sub)
	}
	b.logger.Info("handler subscribed", "handler", name, "triggers", triggers)
	return nil
}

// HandlersFor returns the names of handlers subscribed to the trigger,
// in registration order.
func (b *EventBus) HandlersFor(trigger domain.Trigger) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.subs[trigger]))
	for _, sub := range b.subs[trigger] {
		names = append(names, sub.name)
	}
	return names
}

// Unsubscribe removes every subscription registered under the handler
// name. Used when an extension is unloaded.
func (b *EventBus) Unsubscribe(handlerName string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for trigger, subs := range b.subs {
		kept := subs[:0]
		for _, sub := range subs {
			if sub.name != handlerName {
				kept = append(kept, sub)
			}
		}
		if len(kept) == 0 {
			delete(b.subs, trigger)
		} else {
			b.subs[trigger] = kept
		}
	}
}

// TriggerEvent dispatches the context to every handler subscribed to the
// trigger and collects one HandlerResult per matched handler, in
// registration order. A handler panic becomes a failed result and never
// stops the remaining handlers. An unknown trigger fails fast.
func (b *EventBus) TriggerEvent(ctx context.Context, trigger domain.Trigger, payload map[string]any) ([]domain.HandlerResult, error) {
	if !b.triggers.Known(trigger) {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownTrigger, trigger)
	}

	b.mu.RLock()
	subs := make([]subscription, len(b.subs[trigger]))
	copy(subs, b.subs[trigger])
	b.mu.RUnlock()

	ev := domain.Event{
		Trigger:   trigger,
		Context:   payload,
		Timestamp: time.Now().UTC(),
	}

	results := make([]domain.HandlerResult, 0, len(subs))
	for _, sub := range subs {
		if sub.filter != nil && !b.matchesFilter(sub, ev) {
			continue
		}
		results = append(results, b.dispatch(ctx, sub, ev))
	}

	b.logger.Info("event dispatched", "trigger", trigger, "handlers", len(results))
	return results, nil
}

func (b *EventBus) matchesFilter(sub subscription, ev domain.Event) bool {
	env := ev.Context
	if env == nil {
		env = map[string]any{}
	}
	out, err := expr.Run(sub.filter, env)
	if err != nil {
		b.logger.Warn("event filter evaluation failed, skipping handler",
			"handler", sub.name, "trigger", ev.Trigger, "error", err)
		return false
	}
	matched, _ := out.(bool)
	return matched
}

// dispatch constructs a fresh handler instance and invokes it. A panic
// is converted into a failed HandlerResult.
func (b *EventBus) dispatch(ctx context.Context, sub subscription, ev domain.Event) (res domain.HandlerResult) {
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("%v", r)
			b.logger.Error("handler panicked", "handler", sub.name, "trigger", ev.Trigger, "error", msg)
			res = domain.HandlerResult{
				Handler: sub.name,
				Success: false,
				Data:    map[string]any{"error": msg},
				Error:   msg,
			}
		}
	}()

	handler := sub.factory()
	res = handler.Handle(ctx, ev)
	if res.Handler == "" {
		res.Handler = sub.name
	}
	if !res.Success && res.Error != "" {
		b.logger.Error("handler failed", "handler", sub.name, "trigger", ev.Trigger, "error", res.Error)
	}
	return res
}
