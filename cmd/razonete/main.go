package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/razonete/razonete/internal/app"
	"github.com/razonete/razonete/internal/catalog"
	"github.com/razonete/razonete/internal/close"
	closehttp "github.com/razonete/razonete/internal/close/http"
	"github.com/razonete/razonete/internal/ledger"
	"github.com/razonete/razonete/internal/observability"
	"github.com/razonete/razonete/internal/platform/cache"
	"github.com/razonete/razonete/internal/platform/db"
	"github.com/razonete/razonete/internal/reports"
	reportshttp "github.com/razonete/razonete/internal/reports/http"
	"github.com/razonete/razonete/internal/shared"
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

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		_ = redisClient.Close()
	}()

	metrics := observability.NewMetrics()

	ledgerRepo := ledger.NewRepository(pool)
	catalogRepo := catalog.NewRepository(pool)

	reportService := reports.NewService(catalogRepo, ledgerRepo, logger)

	closeRepo := close.NewRepository(pool, ledgerRepo)
	closeService := close.NewService(closeRepo, ledgerRepo, catalogRepo,
		shared.NewLocker(redisClient), close.Config{
			ResultAccountCode: cfg.ResultAccountCode,
			ReverseOnReopen:   cfg.ReverseOnReopen,
			Tolerance:         ledger.Cents(cfg.ToleranceCents),
		}, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		Metrics:        metrics,
		ReportsHandler: reportshttp.NewHandler(logger, reportService),
		CloseHandler:   closehttp.NewHandler(logger, closeService, metrics),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("server listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
