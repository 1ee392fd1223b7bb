package app

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mekong/internal/common"
	"github.com/ternarybob/mekong/internal/interfaces"
	"github.com/ternarybob/mekong/internal/services/extract"
	"github.com/ternarybob/mekong/internal/services/llm"
	"github.com/ternarybob/mekong/internal/services/pipeline"
	"github.com/ternarybob/mekong/internal/services/scheduler"
	"github.com/ternarybob/mekong/internal/services/sources"
	"github.com/ternarybob/mekong/internal/storage/sqlite"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	StorageManager interfaces.StorageManager
	LLMService     interfaces.LLMService
	Recorder       *llm.Recorder
	ExtractService *extract.Service

	Adapters     []interfaces.SourceAdapter
	Runner       *sources.Runner
	Orchestrator *pipeline.Orchestrator
	Scheduler    *scheduler.Service
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	storageManager, err := sqlite.NewManager(logger, &cfg.Storage.SQLite)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	app.StorageManager = storageManager
	logger.Debug().
		Str("storage", "sqlite").
		Str("path", cfg.Storage.SQLite.Path).
		Msg("Storage layer initialized")

	app.Recorder = llm.NewRecorder(storageManager.LLMCalls(), cfg.LLM.HistoryBuffer, logger)

	llmService, err := llm.NewService(cfg, app.Recorder, logger)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize LLM service: %w", err)
	}
	app.LLMService = llmService
	logger.Debug().Str("provider", llmService.Provider()).Msg("LLM service initialized")

	app.ExtractService = extract.NewService(&cfg.Crawler, logger)
	app.Runner = sources.NewRunner(app.ExtractService, &cfg.Crawler, logger)

	app.Adapters = buildAdapters(cfg, logger)
	if len(app.Adapters) == 0 {
		logger.Warn().Msg("No source adapters enabled, runs will collect nothing")
	}

	templates, err := pipeline.LoadTemplates(cfg.Pipeline.TemplatesPath)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to load causal templates: %w", err)
	}
	logger.Debug().
		Int("templates", len(templates)).
		Str("path", cfg.Pipeline.TemplatesPath).
		Msg("Causal templates loaded")

	classifier := pipeline.NewClassifier(llmService, &cfg.Pipeline, logger)
	scorer := pipeline.NewScorer(llmService, templates, &cfg.Pipeline, logger)

	app.Orchestrator = pipeline.NewOrchestrator(cfg, storageManager, app.Runner, app.Adapters, classifier, scorer, logger)
	app.Scheduler = scheduler.NewService(app.Orchestrator, &cfg.Scheduler, logger)

	logger.Info().
		Int("adapters", len(app.Adapters)).
		Str("llm_provider", llmService.Provider()).
		Msg("Application initialization complete")

	return app, nil
}

// buildAdapters constructs the enabled source adapters in crawl order.
func buildAdapters(cfg *common.Config, logger arbor.ILogger) []interfaces.SourceAdapter {
	var adapters []interfaces.SourceAdapter
	if cfg.Sources.SBV.Enabled {
		adapters = append(adapters, sources.NewSBVAdapter(&cfg.Sources.SBV, &cfg.Crawler, logger))
	}
	if cfg.Sources.GSO.Enabled {
		adapters = append(adapters, sources.NewGSOAdapter(&cfg.Sources.GSO, &cfg.Crawler, logger))
	}
	if cfg.Sources.VnEconomy.Enabled {
		adapters = append(adapters, sources.NewVnEconomyAdapter(&cfg.Sources.VnEconomy, &cfg.Crawler, logger))
	}
	if cfg.Sources.Calendar.Enabled {
		adapters = append(adapters, sources.NewCalendarAdapter(&cfg.Sources.Calendar, &cfg.Crawler, logger))
	}
	for _, adapter := range adapters {
		logger.Debug().Str("source", adapter.Name()).Msg("Source adapter enabled")
	}
	return adapters
}

// Close releases all application resources in reverse dependency order.
func (a *App) Close() error {
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}

	if a.LLMService != nil {
		if err := a.LLMService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close LLM service")
		}
	}

	// Recorder drains its queue before returning so no call history is lost.
	if a.Recorder != nil {
		a.Recorder.Close()
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
