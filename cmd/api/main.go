package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/servicedesk-sla/internal/api/http"
	"github.com/spec-kit/servicedesk-sla/internal/api/http/handlers"
	"github.com/spec-kit/servicedesk-sla/internal/auth"
	"github.com/spec-kit/servicedesk-sla/internal/clock"
	"github.com/spec-kit/servicedesk-sla/internal/config"
	"github.com/spec-kit/servicedesk-sla/internal/events"
	"github.com/spec-kit/servicedesk-sla/internal/notify"
	"github.com/spec-kit/servicedesk-sla/internal/observability"
	"github.com/spec-kit/servicedesk-sla/internal/persistence"
	"github.com/spec-kit/servicedesk-sla/internal/repository"
	"github.com/spec-kit/servicedesk-sla/internal/repository/memstore"
	"github.com/spec-kit/servicedesk-sla/internal/service"
	"github.com/spec-kit/servicedesk-sla/internal/sla"
	"github.com/spec-kit/servicedesk-sla/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	clk := clock.Real()
	var store repository.TxManager
	if pool := pg.PoolHandle(); pool != nil {
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pool, logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}
		store = repository.NewPostgresStore(pool)
	} else {
		logger.Warn("using in-memory store; data is lost on restart")
		store = memstore.New(clk.Now)
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	metrics := observability.NewMetrics()
	zone, err := sla.LoadReportZone(cfg.SLA.ReportTimezone)
	if err != nil {
		logger.Fatal("invalid report timezone", zap.Error(err))
	}

	var publisher notify.Publisher
	if redis.Enabled() {
		publisher = notify.NewQueue(redis.Client, cfg.Notification.QueueKey)
	} else {
		async := notify.NewAsync(notify.NewDispatcherFromConfig(cfg.Notification, zone, logger), notify.AsyncConfig{
			Workers:     cfg.Notification.AsyncWorkers,
			MaxRetries:  cfg.Notification.MaxRetries,
			Retry:       notify.RetryPolicyFromConfig(cfg.Notification),
			SendTimeout: cfg.Notification.SendTimeout,
		}, logger, metrics)
		async.Start(ctx)
		defer async.Close()
		publisher = async
	}
	sender := notify.NewSender(publisher, clk.Now)

	dispatcher := events.NewInMemoryDispatcher(logger)
	slaService, err := service.NewSLAService(service.SLADependencies{
		Store:      store,
		Notifier:   sender,
		Dispatcher: dispatcher,
		Clock:      clk,
		Logger:     logger,
		Metrics:    metrics,
		Config:     cfg.SLA,
	})
	if err != nil {
		logger.Fatal("failed to init sla service", zap.Error(err))
	}
	ticketService := service.NewTicketService(service.TicketDependencies{
		Store:      store,
		SLA:        slaService,
		Dispatcher: dispatcher,
		Clock:      clk,
		Logger:     logger,
	})
	assignmentService := service.NewAssignmentService(service.AssignmentDependencies{
		Store:      store,
		Dispatcher: dispatcher,
		Clock:      clk,
	})
	notificationService := service.NewNotificationService(dispatcher, store, sender, logger)
	worker.StartNotificationWorker(ctx, notificationService, nil)

	if cfg.SLA.RunSweepInAPI {
		var locker worker.Locker
		if redis.Enabled() {
			locker = redis
		}
		go worker.NewSweepWorker(slaService, locker, clk, cfg.SLA, logger).Run(ctx)
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, 0)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Tickets:        handlers.NewTicketsHandler(ticketService, slaService),
		StaffTickets:   handlers.NewStaffTicketsHandler(assignmentService),
		Staff:          handlers.NewStaffHandler(service.NewStaffService(store)),
		Priorities:     handlers.NewPrioritiesHandler(service.NewPriorityService(store)),
		SLA:            handlers.NewSLAHandler(slaService, ticketService, clk),
		Metrics:        metrics,
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
