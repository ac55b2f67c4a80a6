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

	"github.com/officine-erp/officine-erp/internal/app"
	"github.com/officine-erp/officine-erp/internal/masterdata/products"
	"github.com/officine-erp/officine-erp/internal/masterdata/suppliers"
	"github.com/officine-erp/officine-erp/internal/observability"
	"github.com/officine-erp/officine-erp/internal/platform/cache"
	"github.com/officine-erp/officine-erp/internal/platform/db"
	"github.com/officine-erp/officine-erp/internal/procurement"
	"github.com/officine-erp/officine-erp/internal/sales"
	"github.com/officine-erp/officine-erp/internal/settings"
	"github.com/officine-erp/officine-erp/internal/shared"
	"github.com/officine-erp/officine-erp/internal/stock"
	"github.com/officine-erp/officine-erp/jobs"
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
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	metrics := observability.NewMetrics()

	productsRepo := products.NewRepository(dbpool)
	productsService := products.NewService(productsRepo)
	productsHandler := products.NewHandler(logger, productsService)

	suppliersRepo := suppliers.NewRepository(dbpool)
	suppliersService := suppliers.NewService(suppliersRepo)
	suppliersHandler := suppliers.NewHandler(logger, suppliersService)

	settingsRepo := settings.NewRepository(dbpool)
	settingsService := settings.NewService(settingsRepo)
	settingsHandler := settings.NewHandler(logger, settingsService)

	stockRepo := stock.NewRepository(dbpool)
	stockMetrics := stock.NewMetrics(metrics.Registerer())
	stockService := stock.NewService(stockRepo, productsService, settingsService, auditLogger, stockMetrics, stock.ServiceConfig{})
	stockOverview := stock.NewOverview(stockRepo, settingsService, redisClient, cfg.OverviewCacheTTL, logger)
	stockHandler := stock.NewHandler(logger, stockService, stockOverview)

	procurementRepo := procurement.NewRepository(dbpool)
	procurementService := procurement.NewService(logger, procurementRepo, stockService, auditLogger, idempotencyStore)
	procurementHandler := procurement.NewHandler(logger, procurementService)

	salesRepo := sales.NewRepository(dbpool)
	salesService := sales.NewService(logger, salesRepo, stockService, auditLogger)
	salesHandler := sales.NewHandler(logger, salesService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		StockHandler:       stockHandler,
		ProductsHandler:    productsHandler,
		SuppliersHandler:   suppliersHandler,
		SettingsHandler:    settingsHandler,
		ProcurementHandler: procurementHandler,
		SalesHandler:       salesHandler,
		JobHandler:         jobHandler,
		Pool:               dbpool,
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
