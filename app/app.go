// Package app assembles the services, the purge pipeline and the HTTP
// surface from a loaded configuration.
package app

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"trashbin/config"
	"trashbin/jobs"
	"trashbin/models"
	"trashbin/routes"
	"trashbin/services"
	"trashbin/softdelete"
	"trashbin/store"
)

const (
	CollectionUsers         = "users"
	CollectionFiles         = "files"
	CollectionPurgeTasks    = "purge_tasks"
	CollectionPurgeFailures = "purge_task_failures"

	EntityUser = "user"
	EntityFile = "file"
)

// Deps are the external resources the application runs on. Blobs may be
// nil, which disables uploads. Now defaults to the wall clock in UTC.
type Deps struct {
	Collection func(name string) store.Collection
	Blobs      services.BlobStore
	Ping       services.Pinger
	Logger     *zap.Logger
	Now        func() time.Time
}

type App struct {
	cfg    *config.Config
	logger *zap.Logger

	Registry *prometheus.Registry
	Metrics  *jobs.Metrics

	Queue     *jobs.Queue
	Scanner   *jobs.PurgeScanner
	Executor  *jobs.PurgeExecutor
	Worker    *jobs.Worker
	Scheduler *jobs.Scheduler

	Users  *services.UserService
	Files  *services.FileService
	Trash  *services.TrashService
	Health *services.HealthService
}

func New(cfg *config.Config, deps Deps) *App {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	ping := deps.Ping
	if ping == nil {
		ping = func(context.Context) error { return nil }
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := jobs.NewMetrics(reg)
	jobOpts := []jobs.Option{jobs.WithClock(now), jobs.WithLogger(logger), jobs.WithMetrics(metrics)}

	queue := jobs.NewQueue(
		deps.Collection(CollectionPurgeTasks),
		deps.Collection(CollectionPurgeFailures),
		jobs.WithRetryPolicy(jobs.RetryPolicy{MaxAttempts: cfg.Purge.MaxAttempts, Backoff: cfg.Purge.Backoff}),
		jobs.WithQueueClock(now),
	)

	users := services.NewLifecycle(
		softdelete.New[models.User](deps.Collection(CollectionUsers), softdelete.WithClock(now)),
		queue, EntityUser, cfg.TrashRetention, logger)
	files := services.NewLifecycle(
		softdelete.New[models.File](deps.Collection(CollectionFiles), softdelete.WithClock(now)),
		queue, EntityFile, cfg.TrashRetention, logger)

	a := &App{
		cfg:      cfg,
		logger:   logger,
		Registry: reg,
		Metrics:  metrics,
		Queue:    queue,
		Users:    services.NewUserService(users, cfg.JWTSecret, cfg.JWTExpiration, logger),
		Files:    services.NewFileService(files, deps.Blobs, cfg.MaxFileSize, logger),
		Trash:    services.NewTrashService(files, cfg.TrashRetention, logger),
		Health:   services.NewHealthService(ping),
	}

	if cfg.FileSearchIndex != "" {
		a.Files.UseSearchIndex(cfg.FileSearchIndex)
	}

	targets := []jobs.PurgeTarget{
		users.PurgeTarget(nil),
		a.Files.PurgeTarget(),
	}
	a.Scanner = jobs.NewPurgeScanner(queue, targets, cfg.TrashRetention, cfg.Purge.ScanBatchSize, cfg.Purge.ScanBatchTimeout, jobOpts...)
	a.Executor = jobs.NewPurgeExecutor(cfg.TrashRetention, targets, jobOpts...)
	a.Worker = jobs.NewWorker(queue, jobs.WorkerConfig{
		Concurrency:  cfg.Purge.Concurrency,
		LeaseTimeout: cfg.Purge.LeaseTimeout,
		PollInterval: cfg.Purge.PollInterval,
		RateLimit:    cfg.Purge.RateLimit,
		RateWindow:   cfg.Purge.RateWindow,
	}, map[models.TaskKind]jobs.HandlerFunc{
		models.TaskKindScan:        a.Scanner.Handle,
		models.TaskKindPurgeEntity: a.Executor.Handle,
	}, jobOpts...)
	a.Scheduler = jobs.NewScheduler(queue, cfg.Purge.ScanSchedule, jobOpts...)
	return a
}

// OpenBlobStore connects to B2 when credentials are configured and returns
// a nil BlobStore otherwise. Without a blob store uploads are rejected and
// purges of files with blobs are retried until one is configured.
func OpenBlobStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (services.BlobStore, error) {
	if !cfg.BlobStorageEnabled() {
		logger.Warn("B2 credentials not set, file uploads and file purges are disabled")
		return nil, nil
	}
	b2, err := services.NewB2Service(ctx, cfg.B2ApplicationKeyID, cfg.B2ApplicationKey, cfg.B2BucketName)
	if err != nil {
		return nil, err
	}
	return b2, nil
}

func (a *App) EnsureIndexes(ctx context.Context) error {
	if err := a.Users.EnsureIndexes(ctx); err != nil {
		return err
	}
	if err := a.Files.EnsureIndexes(ctx); err != nil {
		return err
	}
	return a.Queue.EnsureIndexes(ctx)
}

// Start runs the worker pool and the scan schedule until ctx is done or
// Stop is called.
func (a *App) Start(ctx context.Context) error {
	if err := a.Scheduler.Start(ctx); err != nil {
		return err
	}
	a.Worker.Start(ctx)
	return nil
}

func (a *App) Stop() {
	a.Scheduler.Stop()
	a.Worker.Stop()
}

func (a *App) Router(middleware ...gin.HandlerFunc) *gin.Engine {
	if a.cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware...)
	routes.SetupRoutes(r, &routes.ServiceContainer{
		JWTSecret: a.cfg.JWTSecret,
		Users:     a.Users,
		Files:     a.Files,
		Trash:     a.Trash,
		Health:    a.Health,
		Queue:     a.Queue,
		Scheduler: a.Scheduler,
		Gatherer:  a.Registry,
	})
	return r
}
