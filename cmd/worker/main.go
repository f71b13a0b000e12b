package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/stitchlab/stitchlab/internal/app"
	"github.com/stitchlab/stitchlab/internal/billing"
	"github.com/stitchlab/stitchlab/internal/designs"
	"github.com/stitchlab/stitchlab/internal/invoice"
	jobmetrics "github.com/stitchlab/stitchlab/internal/jobs"
	"github.com/stitchlab/stitchlab/internal/platform/cache"
	"github.com/stitchlab/stitchlab/internal/platform/db"
	"github.com/stitchlab/stitchlab/internal/shared"
	"github.com/stitchlab/stitchlab/jobs"
	"github.com/stitchlab/stitchlab/report"
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

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{ConnTimeout: 10 * time.Second})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, breakdown cache disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	catalogRepo := designs.NewRepository(pool)
	billingRepo := billing.NewRepository(pool)
	var breakdownCache billing.BreakdownCachePort
	if redisClient != nil {
		breakdownCache = billing.NewBreakdownCache(redisClient, cfg.BreakdownCacheTTL)
	}
	billingService := billing.NewService(billingRepo, catalogRepo, breakdownCache, auditLogger, logger)

	pdfClient := report.NewClient(cfg.GotenbergURL)
	renderer, err := invoice.NewRenderer(pdfClient, cfg.CurrencySymbol)
	if err != nil {
		logger.Error("init invoice renderer", slog.Any("error", err))
		os.Exit(1)
	}

	mailer, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := mailer.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	invoiceJob := invoice.NewJob(invoice.JobConfig{
		Billing:    billingService,
		Renderer:   renderer,
		Mailer:     mailer,
		StorageDir: cfg.InvoiceStorageDir,
		Logger:     logger,
		Metrics:    jobmetrics.NewMetrics(nil),
	})

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeInvoiceDeliver, Handler: invoiceJob.Handle},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
