package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
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

	ledger, err := app.OpenLedger(ctx, cfg, logger)
	if err != nil {
		logger.Error("open ledger", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := ledger.Close(); err != nil {
			logger.Warn("close ledger", slog.Any("error", err))
		}
	}()

	jobMetrics := ledger.Metrics.Jobs()
	aggregation := jobs.NewAggregationJob(ledger.Balances, ledger.Journals, logger, jobMetrics)
	relay := &jobs.OutboxRelayJob{Relay: ledger.Journals, Logger: logger, Metrics: jobMetrics}
	sweep := jobs.NewAmortizationSweepJob(ledger.Amortization, logger, jobMetrics)
	integrity := jobs.NewLedgerIntegrityJob(ledger.Balances, ledger.Calendar, logger, jobMetrics)
	inventoryLock := &jobs.InventoryLockJob{Locker: ledger.Inventory, Logger: logger, Metrics: jobMetrics}

	var crons []jobs.CronRegistration
	sweepTask, err := jobs.NewAmortizationSweepTask(time.Time{})
	if err != nil {
		logger.Error("build amortization task", slog.Any("error", err))
		os.Exit(1)
	}
	crons = append(crons, jobs.CronRegistration{Spec: cfg.CronAmortization, Task: sweepTask})

	relayTask, err := jobs.NewOutboxRelayTask(500)
	if err != nil {
		logger.Error("build outbox relay task", slog.Any("error", err))
		os.Exit(1)
	}
	crons = append(crons, jobs.CronRegistration{Spec: cfg.CronOutboxRelay, Task: relayTask, Options: []asynq.Option{asynq.MaxRetry(0)}})

	if len(cfg.LedgerCompanies) > 0 {
		integrityTask, err := jobs.NewLedgerIntegrityTask(jobs.LedgerIntegrityPayload{Companies: cfg.LedgerCompanies})
		if err != nil {
			logger.Error("build integrity task", slog.Any("error", err))
			os.Exit(1)
		}
		crons = append(crons, jobs.CronRegistration{Spec: cfg.CronIntegrity, Task: integrityTask, Options: []asynq.Option{asynq.MaxRetry(1)}})
	} else {
		logger.Warn("LEDGER_COMPANIES empty, integrity cron disabled")
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:       asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:          logger,
		Concurrency:     cfg.WorkerConcurrency,
		ShutdownTimeout: cfg.WorkerShutdownTimeout,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskAggregationApply, Handler: aggregation.Handle},
			{Type: jobs.TaskAggregationReverse, Handler: aggregation.Handle},
			{Type: jobs.TaskOutboxRelay, Handler: relay.Handle},
			{Type: jobs.TaskAmortizationSweep, Handler: sweep.Handle},
			{Type: jobs.TaskLedgerIntegrity, Handler: integrity.Handle},
			{Type: jobs.TaskInventoryLock, Handler: inventoryLock.Handle},
		},
		Cron: crons,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker", slog.Int("concurrency", cfg.WorkerConcurrency), slog.Int("crons", len(crons)))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
