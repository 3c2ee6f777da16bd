package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ledgerline/deposit-core/internal/accrual"
	"github.com/ledgerline/deposit-core/internal/app"
	"github.com/ledgerline/deposit-core/internal/beat"
	jobmetrics "github.com/ledgerline/deposit-core/internal/jobs"
	"github.com/ledgerline/deposit-core/internal/ledger"
	"github.com/ledgerline/deposit-core/internal/payment"
	"github.com/ledgerline/deposit-core/internal/platform/db"
	"github.com/ledgerline/deposit-core/internal/product"
	"github.com/ledgerline/deposit-core/internal/shared"
	"github.com/ledgerline/deposit-core/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	jobMetrics := jobmetrics.NewMetrics(prometheus.DefaultRegisterer)
	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	ledgerClient := ledger.NewHTTPClient(cfg.LedgerBaseURL, cfg.LedgerTimeout)
	products := product.NewRepository(pool)
	accruals := accrual.NewRepository(pool)

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

	beatTask, err := jobs.NewDailyBeatTask(jobs.DailyBeatPayload{Identifier: "cron"})
	if err != nil {
		logger.Error("build beat task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeDailyBeat, Handler: jobs.DailyBeatHandler(runner, logger)},
			{Type: jobs.TaskTypeIdempotencyCleanup, Handler: jobs.IdempotencyCleanupHandler(idempotencyStore, cfg.IdempotencyRetention, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.BeatCron, Task: beatTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 3 * * 0", Task: jobs.NewIdempotencyCleanupTask()},
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
