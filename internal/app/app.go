// Package app initializes and orchestrates the main components of the
// Release Warden service: the store, the queue, the dispatcher with its
// registered handlers, the reconciliation loop, and the HTTP server.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sevigo/release-warden/internal/config"
	"github.com/sevigo/release-warden/internal/db"
	"github.com/sevigo/release-warden/internal/dispatch"
	"github.com/sevigo/release-warden/internal/external"
	gh "github.com/sevigo/release-warden/internal/github"
	"github.com/sevigo/release-warden/internal/handlers"
	"github.com/sevigo/release-warden/internal/queue"
	"github.com/sevigo/release-warden/internal/reconcile"
	"github.com/sevigo/release-warden/internal/server"
	"github.com/sevigo/release-warden/internal/storage"
	"github.com/sevigo/release-warden/internal/worker"
)

// App holds the main application components.
type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	server     *server.Server
	workers    *worker.Pool
	babysitter *reconcile.Babysitter
	dispatcher *dispatch.Dispatcher
	redis      *redis.Client
	dbCleanup  func()
}

// NewApp sets up the application with all its dependencies.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	logger.Info("initializing Release Warden",
		"server_port", cfg.ServerPort,
		"max_workers", cfg.MaxWorkers,
		"reconcile_interval", cfg.ReconcileInterval)

	dbConn, dbCleanup, err := db.NewDatabase(&cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	store := storage.NewStore(dbConn.DB)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		dbCleanup()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	taskQueue := queue.NewRedisQueue(redisClient)

	ghClient, err := newGitHubClient(ctx, cfg, logger)
	if err != nil {
		dbCleanup()
		return nil, err
	}

	httpClient := &http.Client{Timeout: 2 * time.Minute}
	buildFarm := external.NewBuildFarmClient(cfg.BuildFarm.URL, cfg.BuildFarm.Token, httpClient)
	testFarm := external.NewTestFarmClient(cfg.TestFarm.URL, cfg.TestFarm.Token, httpClient)
	syncService := external.NewSyncClient(cfg.SyncService.URL, cfg.SyncService.Token, httpClient)

	deps := handlers.Deps{
		Store:    store,
		Reporter: gh.NewReporter(ghClient, logger),
		Executor: external.NewExecutor(buildFarm, testFarm, syncService),
		Logger:   logger,
	}

	registry := dispatch.NewRegistry(cfg.CommentCommandPrefix)
	if err := handlers.RegisterAll(registry, deps); err != nil {
		dbCleanup()
		return nil, fmt.Errorf("failed to register handlers: %w", err)
	}

	dispatcher := dispatch.NewDispatcher(registry, taskQueue, taskQueue, cfg.RetryLimit, logger)
	babysitter := reconcile.New(store, buildFarm, testFarm, dispatcher, cfg.StalenessCutoff, logger)
	pool := worker.NewPool(taskQueue, dispatcher, cfg.MaxWorkers, logger)

	configs := &config.DirConfigProvider{Dir: cfg.PackageConfigDir}
	httpServer := server.NewServer(cfg, dispatcher, configs, logger)

	logger.Info("Release Warden initialized successfully")
	return &App{
		cfg:        cfg,
		logger:     logger,
		server:     httpServer,
		workers:    pool,
		babysitter: babysitter,
		dispatcher: dispatcher,
		redis:      redisClient,
		dbCleanup:  dbCleanup,
	}, nil
}

// newGitHubClient authenticates as the App installation when one is
// configured and falls back to a personal access token otherwise.
func newGitHubClient(ctx context.Context, cfg *config.Config, logger *slog.Logger) (gh.Client, error) {
	if cfg.GitHub.InstallationID != 0 {
		client, err := gh.CreateInstallationClient(ctx, cfg, cfg.GitHub.InstallationID, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create GitHub installation client: %w", err)
		}
		return client, nil
	}
	if cfg.GitHub.Token != "" {
		return gh.NewPATClient(ctx, cfg.GitHub.Token, logger), nil
	}
	return nil, fmt.Errorf("either GITHUB_INSTALLATION_ID or GITHUB_TOKEN must be set")
}

// Dispatcher exposes the dispatcher for CLI use.
func (a *App) Dispatcher() *dispatch.Dispatcher {
	return a.dispatcher
}

// Babysitter exposes the reconciliation loop for CLI use.
func (a *App) Babysitter() *reconcile.Babysitter {
	return a.babysitter
}

// Start runs the workers, the reconciliation loop, and the HTTP server. It
// blocks until the server stops.
func (a *App) Start(ctx context.Context) error {
	go a.workers.Run(ctx)
	go a.babysitter.Loop(ctx, a.cfg.ReconcileInterval)
	return a.server.Start()
}

// Stop shuts the application down in dependency order.
func (a *App) Stop() error {
	err := a.server.Stop()
	if cerr := a.redis.Close(); cerr != nil {
		a.logger.Error("failed to close redis connection", "error", cerr)
	}
	a.dbCleanup()
	return err
}
