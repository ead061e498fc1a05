package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/razonete/razonete/internal/app"
	"github.com/razonete/razonete/internal/ledger"
	"github.com/razonete/razonete/internal/observability"
	"github.com/razonete/razonete/internal/platform/db"
	"github.com/razonete/razonete/jobs"
)

func main() {
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

	metrics := observability.NewMetrics()
	scan := jobs.NewGLIntegrity(ledger.NewRepository(pool), metrics, logger, ledger.Cents(cfg.ToleranceCents))

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{
				Type: jobs.TaskTypeGLIntegrity,
				Handler: func(ctx context.Context, _ *asynq.Task) error {
					return scan.Run(ctx)
				},
			},
		},
		Cron: []jobs.CronRegistration{
			{
				Spec: cfg.IntegrityScanCron,
				Task: jobs.NewGLIntegrityTask(),
			},
		},
	})
	if err != nil {
		logger.Error("build worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started")
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
