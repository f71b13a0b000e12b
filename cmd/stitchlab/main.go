package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/stitchlab/stitchlab/internal/app"
	"github.com/stitchlab/stitchlab/internal/auth"
	"github.com/stitchlab/stitchlab/internal/billing"
	"github.com/stitchlab/stitchlab/internal/designs"
	"github.com/stitchlab/stitchlab/internal/invoice"
	"github.com/stitchlab/stitchlab/internal/observability"
	"github.com/stitchlab/stitchlab/internal/platform/cache"
	"github.com/stitchlab/stitchlab/internal/platform/db"
	"github.com/stitchlab/stitchlab/internal/shared"
	"github.com/stitchlab/stitchlab/jobs"
	"github.com/stitchlab/stitchlab/report"
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

	authMiddleware := &auth.Middleware{Verifier: auth.NewRepository(pool), Logger: logger}

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	catalogRepo := designs.NewRepository(pool)
	billingRepo := billing.NewRepository(pool)
	var breakdownCache billing.BreakdownCachePort
	if redisClient != nil {
		breakdownCache = billing.NewBreakdownCache(redisClient, cfg.BreakdownCacheTTL)
	}
	billingService := billing.NewService(billingRepo, catalogRepo, breakdownCache, auditLogger, logger)
	billingHandler := billing.NewHandler(logger, billingService, idempotencyStore)

	pdfClient := report.NewClient(cfg.GotenbergURL)
	renderer, err := invoice.NewRenderer(pdfClient, cfg.CurrencySymbol)
	if err != nil {
		logger.Error("init invoice renderer", slog.Any("error", err))
		os.Exit(1)
	}

	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	invoiceService := invoice.NewService(billingService, renderer, jobsClient, logger)
	invoiceHandler := invoice.NewHandler(logger, invoiceService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		AuthMiddleware: authMiddleware,
		BillingHandler: billingHandler,
		InvoiceHandler: invoiceHandler,
		JobHandler:     jobHandler,
		Metrics:        metrics,
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
