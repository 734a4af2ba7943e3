package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/btech/servicedesk/internal/config"
	"github.com/btech/servicedesk/internal/jobs"
	"github.com/btech/servicedesk/internal/notify"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// App wires together the HTTP server, the background jobs and the
// notification dispatcher.
type App struct {
	config     *config.Config
	logger     *zap.Logger
	db         *pgxpool.Pool
	router     *chi.Mux
	dispatcher *notify.Dispatcher
	scheduler  *jobs.Scheduler
	server     *http.Server
}

// NewApp builds the application from the environment.
func NewApp() (*App, error) {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := initLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	dbPool, err := initDatabase(ctx, cfg.DatabaseURI, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("connected to database")

	deps, err := initDependencies(cfg, dbPool, logger)
	if err != nil {
		dbPool.Close()
		return nil, err
	}

	router := setupRouter(deps, logger)
	server := createServer(cfg.RunAddress, router)

	return &App{
		config:     cfg,
		logger:     logger,
		db:         dbPool,
		router:     router,
		dispatcher: deps.dispatcher,
		scheduler:  deps.scheduler,
		server:     server,
	}, nil
}

// Run starts the application and blocks until shutdown.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.dispatcher.Start(ctx)
	a.logger.Info("notification dispatcher started")

	a.scheduler.Start()
	a.logger.Info("job scheduler started")

	if err := a.runServer(ctx); err != nil {
		return err
	}

	a.shutdown(cancel)

	return nil
}
