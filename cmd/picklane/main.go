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

	"github.com/picklane/picklane/internal/app"
	"github.com/picklane/picklane/internal/inventory"
	"github.com/picklane/picklane/internal/observability"
	"github.com/picklane/picklane/internal/platform/cache"
	"github.com/picklane/picklane/internal/platform/db"
	"github.com/picklane/picklane/internal/scopes"
	"github.com/picklane/picklane/jobs"
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

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Warn("asynq client close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	countCache := inventory.NewCountCache(redisClient, cfg.CacheTTL, cfg.CacheEnabled)
	notifier := jobs.NewNotifier(asynqClient)

	store := inventory.NewStore(dbpool)
	inventoryService := inventory.NewService(store, countCache, notifier, metrics, logger, inventory.Limits{
		MaxSaleQuantity:   cfg.MaxSaleQuantity,
		MaxUploadBatch:    cfg.MaxUploadBatch,
		MaxProductNameLen: cfg.MaxProductNameLen,
		MaxOrderIDLen:     cfg.MaxOrderIDLen,
	})
	inventoryHandler := inventory.NewHandler(logger, inventoryService)

	scopesRepo := scopes.NewRepository(dbpool)
	scopesService := scopes.NewService(scopesRepo)
	scopesHandler := scopes.NewHandler(logger, scopesService)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		InventoryHandler: inventoryHandler,
		ScopesHandler:    scopesHandler,
		Metrics:          metrics,
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
	if err := countCache.Clear(shutdownCtx); err != nil {
		logger.Warn("clear count cache", slog.Any("error", err))
	}
}
