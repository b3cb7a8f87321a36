package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/clubspace/clubspace/internal/app"
	"github.com/clubspace/clubspace/internal/notifications"
	"github.com/clubspace/clubspace/internal/observability"
	"github.com/clubspace/clubspace/internal/platform/db"
	"github.com/clubspace/clubspace/internal/rbac"
	"github.com/clubspace/clubspace/internal/shared"
	"github.com/clubspace/clubspace/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	metrics := observability.NewMetrics()

	notificationsService := notifications.NewService(notifications.NewRepository(pool), logger)
	rbacService := rbac.NewService(rbac.NewRepository(pool), rbac.Options{
		CacheTTL: cfg.PermissionCacheTTL,
		Logger:   logger,
		Metrics:  metrics,
		Audit:    shared.NewAuditLogger(pool),
	})

	fanoutJob := jobs.NewNotificationFanoutJob(notificationsService, logger, metrics.Jobs())
	expiryJob := jobs.NewGrantExpiryJob(rbacService, logger, metrics.Jobs())

	expireTask, err := jobs.NewPermissionsExpireTask()
	if err != nil {
		logger.Error("build expire task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskNotificationFanout, Handler: fanoutJob.Handle},
			{Type: jobs.TaskPermissionsExpire, Handler: expiryJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/5 * * * *", Task: expireTask, Options: []asynq.Option{asynq.Queue(jobs.QueueMaintenance), asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
