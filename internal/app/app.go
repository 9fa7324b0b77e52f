package app

import (
	"context"
	"fmt"
	"os"

	"gorm.io/gorm"

	"github.com/yungbote/casestudy-backend/internal/data/db"
	"github.com/yungbote/casestudy-backend/internal/http"
	"github.com/yungbote/casestudy-backend/internal/observability"
	"github.com/yungbote/casestudy-backend/internal/platform/logger"
	"github.com/yungbote/casestudy-backend/internal/platform/shutdown"
	"github.com/yungbote/casestudy-backend/internal/realtime/bus"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Server   *http.Server
	Cfg      Config
	Repos    Repos
	Clients  Clients
	Services Services
	Metrics  *observability.Metrics

	database     *db.PostgresService
	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	otelShutdown := observability.InitOTel(context.Background(), log, cfg.Otel)
	metrics := observability.Init(log)

	database, err := db.NewPostgresService(log, cfg.DB)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init database: %w", err)
	}
	theDB := database.DB()
	if err := db.AutoMigrateAll(theDB); err != nil {
		_ = database.Close()
		log.Sync()
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	if err := db.EnsureCaseStudyIndexes(theDB); err != nil {
		log.Warn("ensure indexes failed (continuing)", "error", err)
	}

	reposet := wireRepos(theDB, log)
	clientset, err := wireClients(log, cfg)
	if err != nil {
		_ = database.Close()
		log.Sync()
		return nil, err
	}
	serviceset := wireServices(theDB, log, cfg, reposet, clientset)
	handlerset := wireHandlers(theDB, log, serviceset)
	server := wireServer(log, cfg, handlerset, metrics)

	return &App{
		Log:          log,
		DB:           theDB,
		Server:       server,
		Cfg:          cfg,
		Repos:        reposet,
		Clients:      clientset,
		Services:     serviceset,
		Metrics:      metrics,
		database:     database,
		otelShutdown: otelShutdown,
	}, nil
}

// Start launches the background workers and metrics collectors.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if a.Services.EvaluationPool != nil {
		a.Services.EvaluationPool.Start(ctx)
	}
	if a.Metrics != nil {
		a.Metrics.StartServer(ctx, a.Log, a.Cfg.MetricsAddr)
		a.Metrics.StartPostgresCollector(ctx, a.Log, a.DB)
		a.Metrics.StartRedisCollector(ctx, a.Log, bus.Client(a.Clients.Bus))
	}
}

func (a *App) Run() error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	addr := ":" + a.Cfg.Port
	a.Log.Info("HTTP server listening", "addr", addr)
	return a.Server.Run(addr)
}

// Close stops accepting requests, drains queued evaluations, then releases connections.
func (a *App) Close() {
	if a == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.Cfg.ShutdownTimeout)
	defer cancel()

	if a.Server != nil {
		if err := a.Server.Shutdown(ctx); err != nil {
			a.Log.Warn("http shutdown failed", "error", err)
		}
	}
	if pool := a.Services.EvaluationPool; pool != nil {
		if !shutdown.Drain(ctx, pool.Close) {
			a.Log.Warn("evaluation queue did not drain before shutdown timeout", "pending", pool.Len())
		}
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.Clients.Bus != nil {
		_ = a.Clients.Bus.Close()
	}
	if a.otelShutdown != nil {
		_ = a.otelShutdown(ctx)
	}
	if a.database != nil {
		_ = a.database.Close()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
