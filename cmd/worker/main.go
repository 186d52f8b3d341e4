package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/encore-erp/encore-erp/internal/app"
	"github.com/encore-erp/encore-erp/internal/directory"
	"github.com/encore-erp/encore-erp/internal/invoices"
	"github.com/encore-erp/encore-erp/internal/platform/db"
	"github.com/encore-erp/encore-erp/internal/quotes"
	"github.com/encore-erp/encore-erp/internal/shared"
	"github.com/encore-erp/encore-erp/jobs"
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

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	directoryRepo := directory.NewRepository(pool)

	quoteRepo := quotes.NewRepository(pool)
	quoteService := quotes.NewService(quoteRepo, directoryRepo, auditLogger)

	invoiceRepo := invoices.NewRepository(pool)
	invoiceService := invoices.NewService(invoiceRepo, directoryRepo, nil, quoteService, idempotencyStore, auditLogger)

	quoteSweep := jobs.NewExpireSweepJob(jobs.TaskExpireQuotes, quoteService, logger)
	invoiceSweep := jobs.NewExpireSweepJob(jobs.TaskExpireInvoices, invoiceService, logger)
	cleanupJob := jobs.NewCleanupIdempotencyJob(idempotencyStore, cfg.IdempotencyRetention, logger)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskExpireQuotes, Handler: quoteSweep.Handle},
			{Type: jobs.TaskExpireInvoices, Handler: invoiceSweep.Handle},
			{Type: jobs.TaskCleanupIdempotency, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.QuoteExpireCron, Task: jobs.NewExpireQuotesTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.InvoiceExpireCron, Task: jobs.NewExpireInvoicesTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 3 * * *", Task: jobs.NewCleanupIdempotencyTask(), Options: []asynq.Option{asynq.MaxRetry(1)}},
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
