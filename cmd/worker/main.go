package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/officine-erp/officine-erp/internal/app"
	jobmetrics "github.com/officine-erp/officine-erp/internal/jobs"
	"github.com/officine-erp/officine-erp/internal/platform/cache"
	"github.com/officine-erp/officine-erp/internal/platform/db"
	"github.com/officine-erp/officine-erp/internal/settings"
	"github.com/officine-erp/officine-erp/internal/stock"
	"github.com/officine-erp/officine-erp/jobs"
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

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := jobmetrics.NewMetrics(nil)

	settingsService := settings.NewService(settings.NewRepository(pool))
	stockRepo := stock.NewRepository(pool)
	overview := stock.NewOverview(stockRepo, settingsService, redisClient, cfg.OverviewCacheTTL, logger)

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

	alertJob := jobs.NewStockAlertScanJob(settingsService, overview, mailer, logger, metrics)
	expiryJob := jobs.NewLotExpiryScanJob(settingsService, stockRepo, mailer, logger, metrics)

	alertTask, err := jobs.NewStockAlertScanTask(jobs.StockAlertScanPayload{})
	if err != nil {
		logger.Error("build alert task", slog.Any("error", err))
		os.Exit(1)
	}
	expiryTask, err := jobs.NewLotExpiryScanTask(jobs.LotExpiryScanPayload{})
	if err != nil {
		logger.Error("build expiry task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Mailer:    jobs.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom),
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskStockAlertScan, Handler: alertJob.Handle},
			{Type: jobs.TaskLotExpiryScan, Handler: expiryJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.AlertCron, Task: alertTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 6 * * *", Task: expiryTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started")
	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
