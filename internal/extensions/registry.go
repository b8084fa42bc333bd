package extensions

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"

	"github.com/wardenhq/warden/internal/core/domain"
	"github.com/wardenhq/warden/internal/core/services"
)

// Components is everything an extension contributes to the kernel.
type Components struct {
	Actions        []*domain.Action
	Handlers       []domain.HandlerFactory
	CustomTriggers []string
	Entries        []domain.ScheduledEntry
}

// Factory builds an extension's components from its manifest config.
// Factories are registered explicitly at startup; the manifest on disk
// selects which ones activate and with what configuration.
type Factory func(cfg map[string]any) (*Components, error)

// Registry turns extension directories into live action and handler
// registrations. A failure in one extension is caught, logged, and
// skipped — the rest of the system still starts.
type Registry struct {
	logger   *slog.Logger
	actions  *domain.ActionRegistry
	bus      *services.EventBus
	triggers *domain.TriggerRegistry

	factories map[string]Factory
	loaded    map[string]*loadedExtension
}

type loadedExtension struct {
	manifest    *Manifest
	actionNames []string
	handlers    []string
	entries     []domain.ScheduledEntry
}

func NewRegistry(logger *slog.Logger, actions *domain.ActionRegistry, bus *services.EventBus, triggers *domain.TriggerRegistry) *Registry {
	return &Registry{
		logger:    logger,
		actions:   actions,
		bus:       bus,
		triggers:  triggers,
		factories: make(map[string]Factory),
		loaded:    make(map[string]*loadedExtension),
	}
}

// RegisterFactory makes an extension available for discovery under name.
func (r *Registry) RegisterFactory(name string, factory Factory) error {
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("extension factory already registered: %s", name)
	}
	r.factories[name] = factory
	return nil
}

// Discover loads every allowlisted extension under baseDir. Absence from
// the allowlist means "not loaded". Returns the names that loaded;
// every failure is isolated to its own candidate.
func (r *Registry) Discover(ctx context.Context, baseDir string, allowlist []string) []string {
	var activated []string
	for _, name := range allowlist {
		if err := r.load(ctx, baseDir, name); err != nil {
			r.logger.Error("failed to load extension", "extension", name, "error", err)
			continue
		}
		activated = append(activated, name)
		r.logger.Info("extension loaded", "extension", name)
	}
	return activated
}

func (r *Registry) load(ctx context.Context, baseDir, name string) error {
	if _, already := r.loaded[name]; already {
		return fmt.Errorf("extension already loaded: %s", name)
	}

	manifest, err := ReadManifest(filepath.Join(baseDir, name, ManifestFile))
	if err != nil {
		return err
	}
	if !manifest.Enabled {
		return fmt.Errorf("extension disabled by manifest: %s", name)
	}

	factory, ok := r.factories[manifest.Name]
	if !ok {
		return fmt.Errorf("no factory registered for extension: %s", manifest.Name)
	}

	components, err := buildComponents(factory, manifest.Config)
	if err != nil {
		return err
	}

	// Custom triggers first so handlers can subscribe to them.
	for _, trigger := range components.CustomTriggers {
		r.triggers.RegisterCustom(trigger)
	}

	ext := &loadedExtension{manifest: manifest, entries: components.Entries}
	for _, action := range components.Actions {
		if err := r.actions.Register(action); err != nil {
			r.unloadPartial(ext)
			return err
		}
		ext.actionNames = append(ext.actionNames, action.Spec.Name)
	}
	for _, factory := range components.Handlers {
		proto := factory()
		if err := r.bus.Subscribe(factory); err != nil {
			r.unloadPartial(ext)
			return err
		}
		ext.handlers = append(ext.handlers, proto.Name())
	}

	r.loaded[name] = ext
	return nil
}

// buildComponents invokes the factory with panic isolation: a broken
// extension must never take the host down.
func buildComponents(factory Factory, cfg map[string]any) (components *Components, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("extension factory panicked: %v", rec)
		}
	}()
	components, err = factory(cfg)
	if err == nil && components == nil {
		err = fmt.Errorf("extension factory returned no components")
	}
	return components, err
}

// Unload removes an extension's actions and handler subscriptions.
func (r *Registry) Unload(name string) error {
	ext, ok := r.loaded[name]
	if !ok {
		return fmt.Errorf("extension not loaded: %s", name)
	}
	r.unloadPartial(ext)
	delete(r.loaded, name)
	r.logger.Info("extension unloaded", "extension", name)
	return nil
}

func (r *Registry) unloadPartial(ext *loadedExtension) {
	for _, actionName := range ext.actionNames {
		r.actions.Unregister(actionName)
	}
	for _, handlerName := range ext.handlers {
		r.bus.Unsubscribe(handlerName)
	}
}

// Loaded returns the names of active extensions, sorted.
func (r *Registry) Loaded() []string {
	names := make([]string, 0, len(r.loaded))
	for name := range r.loaded {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ScheduledEntries returns entries contributed by loaded extensions, in
// extension-name order.
func (r *Registry) ScheduledEntries() []domain.ScheduledEntry {
	var entries []domain.ScheduledEntry
	for _, name := range r.Loaded() {
		entries = append(entries, r.loaded[name].entries...)
	}
	return entries
}
