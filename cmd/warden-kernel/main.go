package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wardenhq/warden/internal/adapters/duckdb"
	"github.com/wardenhq/warden/internal/adapters/llm"
	"github.com/wardenhq/warden/internal/adapters/planner"
	appconfig "github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/core/domain"
	"github.com/wardenhq/warden/internal/core/services"
	"github.com/wardenhq/warden/internal/extensions"
	"github.com/wardenhq/warden/internal/extensions/example"
	"github.com/wardenhq/warden/pkg/kernel"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger.Info("starting warden kernel")

	if err := run(logger, *configPath); err != nil {
		logger.Error("kernel startup failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, configPath string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		logger.Info("shutting down")
		cancel()
	}()

	cfg, err := appconfig.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	repo, err := duckdb.NewRepository(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to init repository: %w", err)
	}
	defer repo.Close()

	// Core registries and services
	triggers := domain.NewTriggerRegistry()
	actions := domain.NewActionRegistry()
	eventBus := services.NewEventBus(logger, triggers)

	jobManager := services.NewJobManager(logger, repo, services.JobManagerConfig{
		MaxConcurrentJobs: cfg.Jobs.MaxConcurrent,
		CancelGracePeriod: time.Duration(cfg.Jobs.CancelGraceSeconds) * time.Second,
	})
	if err := jobManager.RecoverInterrupted(ctx); err != nil {
		return fmt.Errorf("job recovery failed: %w", err)
	}

	scheduler := services.NewScheduler(logger, actions, jobManager, repo)

	// Extensions: factories are compiled in, the manifest allowlist
	// decides which ones activate.
	extRegistry := extensions.NewRegistry(logger, actions, eventBus, triggers)
	if err := extRegistry.RegisterFactory(example.Name, example.New); err != nil {
		return fmt.Errorf("failed to register extension factory: %w", err)
	}
	active := extRegistry.Discover(ctx, cfg.Extensions.Dir, cfg.Extensions.Active)

	// Built-in actions
	builtins := []*domain.Action{
		services.NewHelpAction(actions),
		services.NewStatusAction(jobManager, scheduler, active),
		services.NewListJobsAction(jobManager),
		services.NewGetJobAction(jobManager),
		services.NewStopJobAction(jobManager),
		services.NewSchedulerAction(scheduler),
	}
	for _, action := range builtins {
		if err := actions.Register(action); err != nil {
			return fmt.Errorf("failed to register builtin action: %w", err)
		}
	}

	// Scheduled entries: configured ones plus extension contributions.
	entries := append(cfg.Scheduled, extRegistry.ScheduledEntries()...)
	scheduler.LoadEntries(ctx, entries)

	// Agent engine with the configured planner backend
	var provider llm.Provider
	switch cfg.LLM.Provider {
	case "openai":
		provider = llm.NewOpenAIProvider(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model)
	default:
		provider = llm.NewOllamaProvider(cfg.LLM.BaseURL, cfg.LLM.Model)
	}
	agentEngine := services.NewAgentEngine(logger, actions, planner.NewLLMPlanner(logger, provider), repo, services.AgentEngineConfig{
		MaxSteps:       cfg.Agent.MaxSteps,
		Timeout:        cfg.Agent.Timeout(),
		AllowedActions: cfg.Agent.AllowedActions,
	})

	apiServer := kernel.NewServer(logger, actions, jobManager, eventBus, scheduler, agentEngine, repo, repo)
	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: apiServer.Handler(),
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return scheduler.Run(gCtx)
	})

	g.Go(func() error {
		logger.Info("starting kernel api server", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
