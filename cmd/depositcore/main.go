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

	"github.com/ledgerline/deposit-core/internal/accrual"
	"github.com/ledgerline/deposit-core/internal/app"
	"github.com/ledgerline/deposit-core/internal/beat"
	"github.com/ledgerline/deposit-core/internal/dividend"
	jobmetrics "github.com/ledgerline/deposit-core/internal/jobs"
	"github.com/ledgerline/deposit-core/internal/ledger"
	"github.com/ledgerline/deposit-core/internal/observability"
	"github.com/ledgerline/deposit-core/internal/payment"
	"github.com/ledgerline/deposit-core/internal/platform/cache"
	"github.com/ledgerline/deposit-core/internal/platform/db"
	"github.com/ledgerline/deposit-core/internal/product"
	"github.com/ledgerline/deposit-core/internal/shared"
	"github.com/ledgerline/deposit-core/internal/transaction"
	"github.com/ledgerline/deposit-core/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis connect", slog.Any("error", err))
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	locker := shared.NewAccountLocker(redisClient, cfg.AccountLockTTL)

	ledgerClient := ledger.NewHTTPClient(cfg.LedgerBaseURL, cfg.LedgerTimeout)
	products := product.NewRepository(pool)
	accruals := accrual.NewRepository(pool)
	dividends := dividend.NewRepository(pool)
	transactions := transaction.NewRepository(pool)

	engine := accrual.NewEngine(accrual.EngineConfig{
		Products:    products,
		Ledger:      ledgerClient,
		Accruals:    accruals,
		Idempotency: idempotencyStore,
		Audit:       auditLogger,
		Metrics:     jobMetrics,
		Logger:      logger,
		Concurrency: cfg.AccrualConcurrency,
	})
	scheduler := payment.NewScheduler(payment.SchedulerConfig{
		Products: products,
		Ledger:   ledgerClient,
		Accruals: accruals,
		Audit:    auditLogger,
		Metrics:  jobMetrics,
		Logger:   logger,
	})
	runner := beat.NewRunner(logger, engine, scheduler)

	distributor := dividend.NewDistributor(dividend.DistributorConfig{
		Products:  products,
		Ledger:    ledgerClient,
		Dividends: dividends,
		Audit:     auditLogger,
		Metrics:   jobMetrics,
		Logger:    logger,
	})

	processor := transaction.NewProcessor(transaction.ProcessorConfig{
		Ledger:       ledgerClient,
		Products:     products,
		Transactions: transactions,
		Locker:       locker,
		Audit:        auditLogger,
		Logger:       logger,
		CashAccount:  cfg.CashAccount,
	})

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		BeatHandler:        beat.NewHandler(logger, runner),
		DividendHandler:    dividend.NewHandler(logger, distributor, dividends),
		TransactionHandler: transaction.NewHandler(logger, processor, transactions),
		JobHandler:         jobs.NewHandler(inspector, logger),
		Metrics:            metrics,
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
