package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/andychuong/ai-study-companion-sub000/internal/data/db"
	"github.com/andychuong/ai-study-companion-sub000/internal/data/repos"
	"github.com/andychuong/ai-study-companion-sub000/internal/http"
	"github.com/andychuong/ai-study-companion-sub000/internal/observability"
	"github.com/andychuong/ai-study-companion-sub000/internal/platform/logger"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Metrics  *observability.Metrics
	Repos    repos.Set
	Clients  Clients
	Services Services
	Server   *http.Server

	store        *db.Service
	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

// OpenDB connects to postgres, or to the local sqlite file when no DSN is set,
// and migrates the schema.
func OpenDB(log *logger.Logger, cfg Config) (*db.Service, error) {
	var (
		store *db.Service
		err   error
	)
	if strings.TrimSpace(cfg.DB.DSN) != "" {
		store, err = db.NewPostgresService(log, cfg.DB)
	} else {
		log.Warn("DATABASE_URL not set; using sqlite", "path", cfg.SQLitePath)
		store, err = db.NewSQLiteService(log, cfg.SQLitePath)
	}
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := store.AutoMigrateAll(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	return store, nil
}

func New(ctx context.Context, cfg Config) (*App, error) {
	log, err := logger.NewWithOptions(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	metrics := observability.Init(log, cfg.MetricsEnabled)
	otelShutdown := observability.InitOTel(ctx, log, cfg.Otel)

	store, err := OpenDB(log, cfg)
	if err != nil {
		log.Sync()
		return nil, err
	}
	theDB := store.DB()
	reposet := repos.NewSet(theDB, log)

	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		_ = store.Close()
		log.Sync()
		return nil, err
	}

	serviceset, err := wireServices(theDB, log, cfg, reposet, clients)
	if err != nil {
		clients.Close(ctx)
		_ = store.Close()
		log.Sync()
		return nil, err
	}

	handlerset := wireHandlers(log, theDB, serviceset)
	server := wireServer(log, cfg, metrics, handlerset)

	return &App{
		Log:          log,
		DB:           theDB,
		Cfg:          cfg,
		Metrics:      metrics,
		Repos:        reposet,
		Clients:      clients,
		Services:     serviceset,
		Server:       server,
		store:        store,
		otelShutdown: otelShutdown,
	}, nil
}

// Roles selects the background loops Start launches.
type Roles struct {
	Worker    bool
	Scheduler bool
}

// Start launches the requested background loops. Runs execute on the Temporal
// worker when it is configured, otherwise on the poll worker.
func (a *App) Start(ctx context.Context, roles Roles) error {
	if a == nil || a.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.Metrics.StartJobQueueCollector(ctx, a.Log, a.DB)

	if roles.Worker {
		if a.Services.Temporal != nil {
			if err := a.Services.Temporal.Start(ctx); err != nil {
				return fmt.Errorf("start temporal worker: %w", err)
			}
		} else {
			a.Services.JobWorker.Start(ctx)
		}
	}
	if roles.Scheduler {
		a.Services.Sweeps.Start(ctx)
	}
	return nil
}

// Run serves HTTP until ctx is done.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	a.Log.Info("HTTP server listening", "addr", a.Cfg.HTTPAddr)
	return a.Server.Run(ctx, a.Cfg.HTTPAddr, a.Cfg.ShutdownTimeout)
}

// Close stops background loops and waits for in-flight runs before releasing
// clients.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
		a.Services.JobWorker.Wait()
		a.Services.Sweeps.Wait()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.Clients.Close(ctx)
	if a.otelShutdown != nil {
		_ = a.otelShutdown(ctx)
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
