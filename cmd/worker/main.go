package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odyssey-erp/odyssey-sales/internal/app"
	"github.com/odyssey-erp/odyssey-sales/internal/followup/communications"
	"github.com/odyssey-erp/odyssey-sales/internal/followup/metrics"
	jobmetrics "github.com/odyssey-erp/odyssey-sales/internal/jobs"
	"github.com/odyssey-erp/odyssey-sales/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-sales/internal/platform/db"
	"github.com/odyssey-erp/odyssey-sales/internal/sales/customers"
	"github.com/odyssey-erp/odyssey-sales/internal/sales/invoices"
	"github.com/odyssey-erp/odyssey-sales/internal/sales/orders"
	"github.com/odyssey-erp/odyssey-sales/internal/sales/pricing"
	"github.com/odyssey-erp/odyssey-sales/internal/sales/quotations"
	"github.com/odyssey-erp/odyssey-sales/internal/shared"
	"github.com/odyssey-erp/odyssey-sales/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	loc := cfg.Location()

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	jobMetrics := jobmetrics.NewMetrics(nil)

	customerService := customers.NewService(customers.NewRepository(pool))
	quotationService := quotations.NewService(
		quotations.NewRepository(pool),
		customerService,
		pricing.NewResolver(pricing.NewRepository(pool)),
		logger,
		loc,
	)
	orderService := orders.NewService(orders.NewRepository(pool), logger, loc)
	invoiceService := invoices.NewService(invoices.NewRepository(pool), orderService, logger, loc)

	metricsCache := metrics.NewCache(redisClient, cfg.MetricsCacheTTL, logger)
	metricsService := metrics.NewService(metrics.NewRepository(pool), metricsCache, loc)
	// The worker only records communications, so the sending collaborators stay unset.
	communicationService := communications.NewService(communications.NewRepository(pool), customerService, nil, nil, nil, logger)
	communicationService.SetInvalidator(metricsCache)
	quotationService.SetInvalidator(metricsCache)

	expireJob := jobs.NewSweepJob(jobs.TaskExpireQuotations, quotationService.MarkExpired, logger, jobMetrics)
	overdueJob := jobs.NewSweepJob(jobs.TaskMarkOverdueInvoices, invoiceService.MarkOverdue, logger, jobMetrics)
	warmupJob := jobs.NewSweepJob(jobs.TaskWarmMetrics, func(ctx context.Context) (int, error) {
		if _, err := metricsService.CommunicationMetrics(ctx, metrics.Filter{}); err != nil {
			return 0, err
		}
		return 1, nil
	}, logger, jobMetrics)
	idempotency := shared.NewIdempotencyStore(pool)
	purgeJob := jobs.NewSweepJob(jobs.TaskPurgeIdempotencyKeys, func(ctx context.Context) (int, error) {
		return idempotency.Cleanup(ctx, cfg.IdempotencyRetention)
	}, logger, jobMetrics)
	recordJob := jobs.NewRecordCommunicationJob(communicationService, logger, jobMetrics)

	var cron []jobs.CronRegistration
	for _, entry := range []struct {
		spec     string
		taskType string
	}{
		{spec: "0 * * * *", taskType: jobs.TaskExpireQuotations},
		{spec: "0 1 * * *", taskType: jobs.TaskMarkOverdueInvoices},
		{spec: "15 1 * * *", taskType: jobs.TaskWarmMetrics},
		{spec: "30 2 * * *", taskType: jobs.TaskPurgeIdempotencyKeys},
	} {
		task, err := jobs.NewSweepTask(entry.taskType)
		if err != nil {
			logger.Error("build sweep task", slog.String("task", entry.taskType), slog.Any("error", err))
			os.Exit(1)
		}
		cron = append(cron, jobs.CronRegistration{Spec: entry.spec, Task: task, Options: []asynq.Option{asynq.MaxRetry(3)}})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Location:  loc,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskExpireQuotations, Handler: expireJob.Handle},
			{Type: jobs.TaskMarkOverdueInvoices, Handler: overdueJob.Handle},
			{Type: jobs.TaskWarmMetrics, Handler: warmupJob.Handle},
			{Type: jobs.TaskPurgeIdempotencyKeys, Handler: purgeJob.Handle},
			{Type: jobs.TaskRecordCommunication, Handler: recordJob.Handle},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.WorkerMetricsAddr != "" {
		metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("worker metrics server", slog.Any("error", err))
			}
		}()
		defer func() {
			_ = metricsServer.Close()
		}()
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}

