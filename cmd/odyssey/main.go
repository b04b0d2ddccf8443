package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-sales/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-sales/internal/app"
	"github.com/odyssey-erp/odyssey-sales/internal/followup/communications"
	"github.com/odyssey-erp/odyssey-sales/internal/followup/metrics"
	"github.com/odyssey-erp/odyssey-sales/internal/followup/schedule"
	"github.com/odyssey-erp/odyssey-sales/internal/messaging"
	"github.com/odyssey-erp/odyssey-sales/internal/observability"
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
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		os.Exit(runJobsCommand(ctx, cfg.RedisAddr, os.Args[2:]))
	}

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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

	obs := observability.NewMetrics()

	customerService := customers.NewService(customers.NewRepository(dbpool))
	quotationService := quotations.NewService(
		quotations.NewRepository(dbpool),
		customerService,
		pricing.NewResolver(pricing.NewRepository(dbpool)),
		logger,
		cfg.Location(),
	)
	orderService := orders.NewService(orders.NewRepository(dbpool), logger, cfg.Location())
	invoiceService := invoices.NewService(invoices.NewRepository(dbpool), orderService, logger, cfg.Location())

	metricsCache := metrics.NewCache(redisClient, cfg.MetricsCacheTTL, logger)
	metricsService := metrics.NewService(metrics.NewRepository(dbpool), metricsCache, cfg.Location())

	followUpService := schedule.NewService(schedule.NewRepository(dbpool), logger, cfg.Location())
	followUpService.SetInvalidator(metricsCache)

	quotationService.SetOrderCreator(orders.QuotationConverter(orderService))
	quotationService.SetFollowUpScheduler(followUpService)
	quotationService.SetInvalidator(metricsCache)

	idempotency := shared.NewIdempotencyStore(dbpool)

	// One-shot maintenance: `odyssey sweep [-json] [task...]`.
	if len(os.Args) > 1 && os.Args[1] == "sweep" {
		fs := flag.NewFlagSet("sweep", flag.ExitOnError)
		jsonOut := fs.Bool("json", false, "print the summary as JSON")
		_ = fs.Parse(os.Args[2:])
		sweeper := cli.NewSweepCLI(map[string]jobs.SweepFunc{
			jobs.TaskExpireQuotations:    quotationService.MarkExpired,
			jobs.TaskMarkOverdueInvoices: invoiceService.MarkOverdue,
			jobs.TaskPurgeIdempotencyKeys: func(ctx context.Context) (int, error) {
				return idempotency.Cleanup(ctx, cfg.IdempotencyRetention)
			},
		})
		code := sweeper.RunCommand(ctx, cli.SweepOptions{Names: fs.Args(), JSONOutput: *jsonOut})
		dbpool.Close()
		os.Exit(code)
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	sender := messaging.Instrument(messaging.NewWhatsAppClient(nil, messaging.WhatsAppConfig{
		BaseURL:       cfg.WhatsAppBaseURL,
		PhoneNumberID: cfg.WhatsAppPhoneNumberID,
		Token:         cfg.WhatsAppToken,
		Language:      cfg.WhatsAppLanguage,
		Timeout:       cfg.WhatsAppTimeout,
	}), obs)
	communicationService := communications.NewService(
		communications.NewRepository(dbpool),
		customerService,
		followUpService,
		sender,
		messaging.NewPhoneNormalizer(cfg.PhoneRegion),
		logger,
	)
	communicationService.SetInvalidator(metricsCache)
	communicationService.SetFallback(jobClient)

	communicationHandler := communications.NewHandler(logger, communicationService)
	communicationHandler.SetKeyStore(idempotency)
	communicationHandler.SetWebhookSecrets(communications.WebhookSecrets{
		AppSecret:   cfg.WhatsAppAppSecret,
		VerifyToken: cfg.WhatsAppVerifyToken,
	})

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:               logger,
		Config:               cfg,
		CustomerHandler:      customers.NewHandler(logger, customerService),
		QuotationHandler:     quotations.NewHandler(logger, quotationService),
		OrderHandler:         orders.NewHandler(logger, orderService),
		InvoiceHandler:       invoices.NewHandler(logger, invoiceService),
		FollowUpHandler:      schedule.NewHandler(logger, followUpService),
		CommunicationHandler: communicationHandler,
		ReportHandler:        metrics.NewHandler(logger, metricsService),
		JobHandler:           jobs.NewHandler(inspector, jobClient, logger),
		Metrics:              obs,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

// runJobsCommand handles `odyssey jobs trigger <task>` and `odyssey jobs stats`.
func runJobsCommand(ctx context.Context, redisAddr string, args []string) int {
	jobsCLI, err := cli.NewJobsCLI(redisAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "jobs: %v\n", err)
		return 1
	}
	defer func() {
		_ = jobsCLI.Close()
	}()

	switch {
	case len(args) == 2 && args[0] == "trigger":
		info, err := jobsCLI.Trigger(ctx, args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs trigger: %v\n", err)
			return 1
		}
		fmt.Printf("enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
		return 0
	case len(args) == 1 && args[0] == "stats":
		stats, err := jobsCLI.InspectQueues(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs stats: %v\n", err)
			return 1
		}
		if err := json.NewEncoder(os.Stdout).Encode(stats); err != nil {
			return 1
		}
		return 0
	}
	fmt.Fprintln(os.Stderr, "usage: odyssey jobs trigger <task> | odyssey jobs stats")
	return 1
}
