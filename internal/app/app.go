package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/cirahq/cira/internal/common"
	"github.com/cirahq/cira/internal/handlers"
	"github.com/cirahq/cira/internal/interfaces"
	"github.com/cirahq/cira/internal/models"
	"github.com/cirahq/cira/internal/queue"
	"github.com/cirahq/cira/internal/services/analysis"
	"github.com/cirahq/cira/internal/services/batch"
	"github.com/cirahq/cira/internal/services/checkpoint"
	"github.com/cirahq/cira/internal/services/classifier"
	"github.com/cirahq/cira/internal/services/crawler"
	"github.com/cirahq/cira/internal/services/events"
	"github.com/cirahq/cira/internal/services/export"
	"github.com/cirahq/cira/internal/services/extraction"
	"github.com/cirahq/cira/internal/services/jobs"
	"github.com/cirahq/cira/internal/services/llm"
	"github.com/cirahq/cira/internal/services/progress"
	"github.com/cirahq/cira/internal/services/ratelimit"
	"github.com/cirahq/cira/internal/services/robots"
	"github.com/cirahq/cira/internal/services/scheduler"
	"github.com/cirahq/cira/internal/services/sitemap"
	storagebadger "github.com/cirahq/cira/internal/storage/badger"
)

// App holds all application components and dependencies.
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	ctx       context.Context
	cancelCtx context.CancelFunc

	StorageManager interfaces.StorageManager
	EventService   interfaces.EventService
	LLMService     interfaces.LLMService

	Broker     *queue.Broker
	WorkerPool *queue.WorkerPool

	CheckpointService *checkpoint.Service
	JobService        *jobs.Service
	ProgressService   *progress.Service
	BatchService      *batch.Service
	SchedulerService  *scheduler.Service
	ExportService     *export.Service

	RobotsService  *robots.Service
	SitemapService *sitemap.Service

	CompanyHandler *handlers.CompanyHandler
	BatchHandler   *handlers.BatchHandler
	StatusHandler  *handlers.StatusHandler
	WSHandler      *handlers.WebSocketHandler
}

// New initializes the application with all dependencies. Nothing runs
// until Start.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		Config:    cfg,
		Logger:    logger,
		ctx:       ctx,
		cancelCtx: cancel,
	}

	manager, err := storagebadger.NewManager(logger, &cfg.Storage.Badger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	app.StorageManager = manager
	logger.Debug().Str("path", cfg.Storage.Badger.Path).Msg("Storage layer initialized")

	app.EventService = events.NewService(logger)

	app.LLMService, err = llm.NewLLMService(cfg, logger)
	if err != nil {
		manager.Close()
		cancel()
		return nil, fmt.Errorf("failed to initialize LLM service: %w", err)
	}

	app.Broker = queue.NewBroker(
		manager.DB().Store().Badger(),
		logger,
		cfg.Queue.VisibilityTimeoutDuration(),
		cfg.Queue.MaxAttempts,
	)
	app.WorkerPool = queue.NewWorkerPool(app.Broker, logger, &cfg.Queue)

	app.initServices(manager)
	app.initHandlers(manager)
	app.registerExecutors(manager)

	logger.Info().
		Str("llm_provider", cfg.LLM.Provider).
		Int("queue_concurrency", cfg.Queue.Concurrency).
		Msg("Application initialization complete")
	return app, nil
}

func (a *App) initServices(manager *storagebadger.Manager) {
	cfg := a.Config

	a.RobotsService = robots.NewService(a.Logger, manager.KeyValueStorage(), &cfg.Crawler)
	a.SitemapService = sitemap.NewService(a.Logger, &cfg.Crawler)

	a.CheckpointService = checkpoint.NewService(a.Logger, manager.SessionStorage())
	a.JobService = jobs.NewService(
		a.Logger,
		manager.CompanyStorage(),
		a.CheckpointService,
		a.Broker,
		manager.KeyValueStorage(),
		a.EventService,
	)
	a.ProgressService = progress.NewService(
		a.Logger,
		manager.CompanyStorage(),
		manager.SessionStorage(),
		manager.EntityStorage(),
		a.JobService,
		manager.KeyValueStorage(),
		a.EventService,
	)
	a.BatchService = batch.NewService(
		a.Logger,
		manager.BatchStorage(),
		manager.CompanyStorage(),
		a.JobService,
		a.ProgressService,
		a.EventService,
	)
	a.SchedulerService = scheduler.NewService(
		a.Logger,
		a.ProgressService,
		a.BatchService,
		a.RobotsService,
		a.SitemapService,
	)
	a.ExportService = export.NewService(a.Logger, manager.CompanyStorage(), manager.AnalysisStorage())
}

func (a *App) initHandlers(manager *storagebadger.Manager) {
	a.CompanyHandler = handlers.NewCompanyHandler(
		a.Logger,
		manager.CompanyStorage(),
		manager.PageStorage(),
		manager.EntityStorage(),
		manager.AnalysisStorage(),
		manager.TokenUsageStorage(),
		a.JobService,
		a.ProgressService,
		a.ExportService,
	)
	a.BatchHandler = handlers.NewBatchHandler(a.Logger, manager.BatchStorage(), a.BatchService, a.SchedulerService)
	a.StatusHandler = handlers.NewStatusHandler(a.Logger, a.Broker)
	a.WSHandler = handlers.NewWebSocketHandler(a.Logger)
	a.WSHandler.RegisterEventHandlers(a.EventService)
}

func (a *App) registerExecutors(manager *storagebadger.Manager) {
	cfg := a.Config

	var fetcher interfaces.Fetcher
	if cfg.Crawler.EnableJavaScript {
		fetcher = crawler.NewChromedpFetcher(a.Logger, &cfg.Crawler)
	} else {
		fetcher = crawler.NewHTTPFetcher(a.Logger, &cfg.Crawler)
	}

	worker := crawler.NewWorker(
		a.Logger,
		&cfg.Crawler,
		fetcher,
		a.RobotsService,
		ratelimit.NewService(a.Logger, &cfg.Crawler),
		a.SitemapService,
		classifier.NewService(),
		manager.PageStorage(),
		a.EventService,
	)

	// The NER model is an external collaborator; without one configured,
	// extraction runs structured rules only.
	extractor := extraction.NewService(
		a.Logger,
		&cfg.Extraction,
		nil,
		manager.PageStorage(),
		manager.EntityStorage(),
	)

	tracker := analysis.NewTokenTracker(a.Logger, manager.TokenUsageStorage(), &cfg.LLM)
	synthesizer := analysis.NewSynthesizer(
		a.Logger,
		&cfg.Analysis,
		a.LLMService,
		tracker,
		manager.PageStorage(),
		manager.EntityStorage(),
		manager.AnalysisStorage(),
		a.EventService,
	)

	companies := manager.CompanyStorage()
	a.WorkerPool.Register(models.TaskCrawlCompany, jobs.NewCrawlExecutor(a.Logger, a.JobService, worker, companies))
	a.WorkerPool.Register(models.TaskExtractEntities, jobs.NewExtractExecutor(a.Logger, a.JobService, extractor, companies))
	a.WorkerPool.Register(models.TaskAnalyzeContent, jobs.NewAnalyzeExecutor(a.Logger, a.JobService, synthesizer, companies))
	a.WorkerPool.Register(models.TaskGenerateSummary, jobs.NewGenerateExecutor(a.Logger, a.JobService, tracker, companies))
}

// Start recovers interrupted jobs, then launches the worker pool and
// scheduler.
func (a *App) Start() error {
	if err := a.JobService.RecoverInProgressJobs(a.ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("Job recovery reported errors")
	}

	a.WorkerPool.Start(a.ctx)

	if err := a.SchedulerService.Start(a.ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	return nil
}

// Close shuts down components in reverse dependency order.
func (a *App) Close() {
	a.SchedulerService.Stop()
	a.cancelCtx()
	a.WorkerPool.Stop()
	a.WSHandler.Close()

	if err := a.EventService.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Event service close failed")
	}
	if err := a.LLMService.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("LLM service close failed")
	}
	if err := a.StorageManager.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Storage close failed")
	}
	a.Logger.Info().Msg("Application stopped")
}
