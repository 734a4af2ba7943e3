package app

import (
	"time"

	"github.com/btech/servicedesk/internal/config"
	"github.com/btech/servicedesk/internal/domain"
	"github.com/btech/servicedesk/internal/handlers"
	"github.com/btech/servicedesk/internal/jobs"
	"github.com/btech/servicedesk/internal/notify"
	"github.com/btech/servicedesk/internal/repository/postgres"
	"github.com/btech/servicedesk/internal/service"
	"github.com/btech/servicedesk/internal/utils/jwt"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const tokenTTL = 24 * time.Hour

type repositories struct {
	order  domain.OrderRepository
	ledger domain.LedgerRepository
}

type services struct {
	order  *service.OrderService
	ledger *service.LedgerService
}

type handlerSet struct {
	orders   *handlers.OrdersHandler
	tasks    *handlers.TasksHandler
	admin    *handlers.AdminHandler
	wallet   *handlers.WalletHandler
	callback *handlers.CallbackHandler
	health   *handlers.HealthHandler
}

type dependencies struct {
	repos      *repositories
	services   *services
	handlers   *handlerSet
	jwtManager *jwt.Manager
	dispatcher *notify.Dispatcher
	scheduler  *jobs.Scheduler
}

// initDependencies builds the full dependency graph.
func initDependencies(cfg *config.Config, dbPool *pgxpool.Pool, logger *zap.Logger) (*dependencies, error) {
	repos := &repositories{
		order:  postgres.NewOrderRepository(dbPool),
		ledger: postgres.NewLedgerRepository(dbPool),
	}

	jwtManager := jwt.NewManager(cfg.JWTSecret, tokenTTL)

	publisher := initPublisher(cfg, logger)
	dispatcher := notify.NewDispatcher(cfg.NotifyWorkers, cfg.NotifyQueueSize, publisher, logger)

	checkout := service.NewCheckoutClient(cfg.GatewayBaseURL, cfg.GatewayPublishableKey, cfg.GatewayTimeout)

	svcs := &services{
		order: service.NewOrderService(repos.order, repos.ledger, dispatcher,
			cfg.GatewayFeeRate, cfg.CommissionRate),
		ledger: service.NewLedgerService(repos.ledger, checkout, dispatcher, logger,
			cfg.GatewayCountryCode, cfg.GatewayCurrency),
	}

	hdlrs := &handlerSet{
		orders:   handlers.NewOrdersHandler(svcs.order, logger),
		tasks:    handlers.NewTasksHandler(svcs.order, logger),
		admin:    handlers.NewAdminHandler(svcs.order, logger),
		wallet:   handlers.NewWalletHandler(svcs.ledger, logger),
		callback: handlers.NewCallbackHandler(svcs.ledger, logger),
		health:   handlers.NewHealthHandler(dbPool, logger),
	}

	scheduler, err := initScheduler(cfg, repos, dispatcher, logger)
	if err != nil {
		return nil, err
	}

	return &dependencies{
		repos:      repos,
		services:   svcs,
		handlers:   hdlrs,
		jwtManager: jwtManager,
		dispatcher: dispatcher,
		scheduler:  scheduler,
	}, nil
}

// initPublisher connects to the broker, or falls back to a logging
// no-op when none is configured or reachable.
func initPublisher(cfg *config.Config, logger *zap.Logger) notify.Publisher {
	if cfg.AMQPURL == "" {
		logger.Info("no AMQP_URL configured, notifications will be logged only")
		return notify.NewNopPublisher(logger)
	}

	publisher, err := notify.NewAMQPPublisher(cfg.AMQPURL, cfg.NotifyExchange)
	if err != nil {
		logger.Warn("failed to connect to broker, notifications will be logged only", zap.Error(err))
		return notify.NewNopPublisher(logger)
	}

	logger.Info("connected to notification broker", zap.String("exchange", cfg.NotifyExchange))
	return publisher
}

func initScheduler(cfg *config.Config, repos *repositories, dispatcher *notify.Dispatcher, logger *zap.Logger) (*jobs.Scheduler, error) {
	scheduler := jobs.NewScheduler(logger)

	payout := jobs.NewPayoutJob(repos.ledger, logger)
	if err := scheduler.Register(cfg.PayoutSchedule, "payout", payout.Run); err != nil {
		return nil, err
	}

	renewal := jobs.NewRenewalJob(repos.order, dispatcher, logger, cfg.RenewalAgeMonths)
	if err := scheduler.Register(cfg.RenewalSchedule, "renewal", renewal.Run); err != nil {
		return nil, err
	}

	expiry := jobs.NewExpiryJob(repos.ledger, logger, cfg.CheckoutTTL)
	if err := scheduler.Register(cfg.CheckoutExpirySchedule, "checkout-expiry", expiry.Run); err != nil {
		return nil, err
	}

	return scheduler, nil
}
