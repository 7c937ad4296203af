package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	httptransport "github.com/spec-kit/servicedesk-sla/internal/api/http"
	"github.com/spec-kit/servicedesk-sla/internal/api/http/handlers"
	"github.com/spec-kit/servicedesk-sla/internal/clock"
	"github.com/spec-kit/servicedesk-sla/internal/config"
	"github.com/spec-kit/servicedesk-sla/internal/events"
	"github.com/spec-kit/servicedesk-sla/internal/notify"
	"github.com/spec-kit/servicedesk-sla/internal/observability"
	"github.com/spec-kit/servicedesk-sla/internal/persistence"
	"github.com/spec-kit/servicedesk-sla/internal/repository"
	"github.com/spec-kit/servicedesk-sla/internal/service"
	"github.com/spec-kit/servicedesk-sla/internal/sla"
	"github.com/spec-kit/servicedesk-sla/internal/worker"
)

// The worker runs the periodic SLA sweep and drains the notification
// queue. It needs Postgres; Redis enables the queue and the leader lock.
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()
	if pg.PoolHandle() == nil {
		logger.Fatal("POSTGRES_DSN is required for the worker")
	}
	store := repository.NewPostgresStore(pg.PoolHandle())

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	metrics := observability.NewMetrics()
	if addr := cfg.App.MetricsAddr; addr != "" {
		ops := httptransport.NewOpsApp(cfg.App.Name+"-worker",
			handlers.NewHealthHandler(cfg.App.Name+"-worker", cfg.App.Version, pg, redis), metrics)
		go func() {
			logger.Info("metrics listening", zap.String("addr", addr))
			if err := ops.Listen(addr); err != nil {
				logger.Error("metrics listener stopped", zap.Error(err))
			}
		}()
		defer func() {
			_ = ops.Shutdown()
		}()
	}

	zone, err := sla.LoadReportZone(cfg.SLA.ReportTimezone)
	if err != nil {
		logger.Fatal("invalid report timezone", zap.Error(err))
	}
	clk := clock.Real()
	deliverer := notify.NewDispatcherFromConfig(cfg.Notification, zone, logger)

	var (
		publisher notify.Publisher
		consumer  *notify.Consumer
		locker    worker.Locker
	)
	if redis.Enabled() {
		queue := notify.NewQueue(redis.Client, cfg.Notification.QueueKey)
		publisher = queue
		consumer = notify.NewConsumer(queue, deliverer, notify.ConsumerConfig{
			MaxRetries:   cfg.Notification.MaxRetries,
			Retry:        notify.RetryPolicyFromConfig(cfg.Notification),
			BlockTimeout: cfg.Notification.BlockTimeout,
			Clock:        clk,
		}, logger, metrics)
		locker = redis
	} else {
		async := notify.NewAsync(deliverer, notify.AsyncConfig{
			Workers:     cfg.Notification.AsyncWorkers,
			MaxRetries:  cfg.Notification.MaxRetries,
			Retry:       notify.RetryPolicyFromConfig(cfg.Notification),
			SendTimeout: cfg.Notification.SendTimeout,
		}, logger, metrics)
		async.Start(ctx)
		defer async.Close()
		publisher = async
	}

	dispatcher := events.NewInMemoryDispatcher(logger)
	sender := notify.NewSender(publisher, clk.Now)
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

	consumerDone := worker.StartNotificationWorker(ctx, service.NewNotificationService(dispatcher, store, sender, logger), consumer)
	worker.NewSweepWorker(slaService, locker, clk, cfg.SLA, logger).Run(ctx)
	<-consumerDone
	logger.Info("worker stopped")
}
