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

	"github.com/hibiken/asynq"

	"github.com/clubspace/clubspace/internal/apicache"
	"github.com/clubspace/clubspace/internal/app"
	"github.com/clubspace/clubspace/internal/auth"
	"github.com/clubspace/clubspace/internal/clubs"
	"github.com/clubspace/clubspace/internal/dashboard"
	"github.com/clubspace/clubspace/internal/files"
	"github.com/clubspace/clubspace/internal/identity"
	"github.com/clubspace/clubspace/internal/meetings"
	"github.com/clubspace/clubspace/internal/notifications"
	"github.com/clubspace/clubspace/internal/observability"
	"github.com/clubspace/clubspace/internal/platform/db"
	"github.com/clubspace/clubspace/internal/platform/cache"
	"github.com/clubspace/clubspace/internal/ratelimit"
	"github.com/clubspace/clubspace/internal/rbac"
	"github.com/clubspace/clubspace/internal/shared"
	"github.com/clubspace/clubspace/internal/tasks"
	"github.com/clubspace/clubspace/internal/users"
	"github.com/clubspace/clubspace/internal/view"
	"github.com/clubspace/clubspace/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
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

	sessionManager := shared.NewSessionManager(redisClient, "clubspace_session", cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)
	events := identity.NewEventBus(logger)

	rbacService := rbac.NewService(rbac.NewRepository(dbpool), rbac.Options{
		CacheTTL: cfg.PermissionCacheTTL,
		Logger:   logger,
		Metrics:  metrics,
		Audit:    auditLogger,
	})
	// Permission caches must drop before auth re-derives principals.
	rbacService.Subscribe(events)
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger}

	authService := auth.NewService(auth.ServiceConfig{
		Repo:        auth.NewRepository(dbpool),
		Provider:    identity.NewClient(cfg.IdentityURL, cfg.IdentityPublicKey, cfg.IdentityTimeout),
		Verifier:    identity.NewVerifier(cfg.IdentityJWTSecret),
		Permissions: rbacService,
		Events:      events,
		Logger:      logger,
		CacheSize:   cfg.PrincipalCacheSize,
		DefaultRole: rbac.RoleMember,
	})
	authMiddleware := auth.Middleware{Service: authService, Logger: logger}
	authHandler := auth.NewHandler(logger, authService, templates, sessionManager, csrfManager)

	var cacheStore apicache.Store
	switch cfg.CacheBackend {
	case app.BackendRedis:
		cacheStore = apicache.NewRedisStore(redisClient, "clubspace:cache:")
	default:
		memory := apicache.NewMemoryStore()
		memory.StartCleanup(ctx, time.Minute)
		cacheStore = memory
	}
	responseCache := apicache.New(cacheStore, apicache.Options{
		DefaultTTL: cfg.CacheDefaultTTL,
		Logger:     logger,
		Metrics:    metrics,
	})

	var limitStore ratelimit.Store
	switch cfg.RateLimitBackend {
	case app.BackendRedis:
		limitStore = ratelimit.NewRedisStore(redisClient, "clubspace:ratelimit:")
	default:
		memory := ratelimit.NewMemoryStore()
		memory.StartCleanup(ctx, time.Minute)
		limitStore = memory
	}
	limiter := ratelimit.NewLimiter(limitStore, map[ratelimit.Class]ratelimit.Rule{
		ratelimit.ClassAuth:     {Max: cfg.RateLimitAuthMax, Window: cfg.RateLimitAuthWindow},
		ratelimit.ClassAPI:      {Max: cfg.RateLimitAPIMax, Window: cfg.RateLimitAPIWindow},
		ratelimit.ClassMutation: {Max: cfg.RateLimitWriteMax, Window: cfg.RateLimitWriteWindow},
		ratelimit.ClassUpload:   {Max: cfg.RateLimitUploadMax, Window: cfg.RateLimitUploadWin},
	}, ratelimit.Options{Logger: logger, Metrics: metrics})

	usersService := users.NewService(users.NewRepository(dbpool), events, auditLogger, logger)
	usersHandler := users.NewHandler(logger, usersService, templates, csrfManager, rbacMiddleware)
	permissionsHandler := rbac.NewPermissionsHandler(logger, rbacService, rbacMiddleware)

	clubsService := clubs.NewService(clubs.NewRepository(dbpool), rbacService, auditLogger, logger)
	clubsHandler := clubs.NewHandler(logger, clubsService, templates, csrfManager, rbacMiddleware)

	notificationsService := notifications.NewService(notifications.NewRepository(dbpool), logger)
	notificationsHandler := notifications.NewHandler(logger, notificationsService, rbacMiddleware)

	tasksService := tasks.NewService(tasks.NewRepository(dbpool), rbacService, clubsService, notificationsService, logger)
	tasksHandler := tasks.NewHandler(logger, tasksService)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	meetingsService := meetings.NewService(meetings.NewRepository(dbpool), rbacService, jobClient, logger)
	meetingsHandler := meetings.NewHandler(logger, meetingsService)

	storage, err := files.NewS3Storage(ctx, files.S3Config{
		Bucket:    cfg.S3Bucket,
		Region:    cfg.S3Region,
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
	})
	if err != nil {
		logger.Error("init object storage", slog.Any("error", err))
		os.Exit(1)
	}
	if err := storage.HealthCheck(ctx); err != nil {
		logger.Warn("object storage unreachable", slog.Any("error", err))
	}
	filesService := files.NewService(files.NewRepository(dbpool), storage, rbacService, clubsService, files.Config{
		MaxBytes:   cfg.UploadMaxBytes,
		PresignTTL: cfg.S3PresignTTL,
	}, logger)
	filesHandler := files.NewHandler(logger, filesService)

	dashboardHandler := dashboard.NewHandler(logger, dashboard.Sources{
		Tasks:         tasksService,
		Notifications: notificationsService,
		Meetings:      meetingsService,
		Clubs:         clubsService,
	}, templates, csrfManager)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:               logger,
		Config:               cfg,
		Templates:            templates,
		SessionManager:       sessionManager,
		CSRFManager:          csrfManager,
		Auth:                 authMiddleware,
		Cache:                responseCache,
		Limiter:              limiter,
		Metrics:              metrics,
		AuthHandler:          authHandler,
		DashboardHandler:     dashboardHandler,
		ClubsHandler:         clubsHandler,
		TasksHandler:         tasksHandler,
		MeetingsHandler:      meetingsHandler,
		NotificationsHandler: notificationsHandler,
		FilesHandler:         filesHandler,
		UsersHandler:         usersHandler,
		PermissionsHandler:   permissionsHandler,
		JobHandler:           jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
