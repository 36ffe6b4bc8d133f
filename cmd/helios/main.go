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

	"github.com/helios-suite/helios/internal/app"
	"github.com/helios-suite/helios/internal/assignments"
	"github.com/helios-suite/helios/internal/auth"
	"github.com/helios-suite/helios/internal/authz"
	"github.com/helios-suite/helios/internal/catalog"
	"github.com/helios-suite/helios/internal/conditions"
	"github.com/helios-suite/helios/internal/contexts"
	"github.com/helios-suite/helios/internal/customroles"
	"github.com/helios-suite/helios/internal/modules"
	"github.com/helios-suite/helios/internal/observability"
	"github.com/helios-suite/helios/internal/permissions"
	"github.com/helios-suite/helios/internal/platform/cache"
	"github.com/helios-suite/helios/internal/platform/db"
	"github.com/helios-suite/helios/internal/projects"
	"github.com/helios-suite/helios/jobs"
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

	redisClient := cache.New(ctx, cfg.RedisAddr, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	catalogStore := catalog.NewStore(dbpool)
	if err := catalogStore.Seed(ctx, catalog.NewFSSource(catalog.Defaults())); err != nil {
		logger.Error("seed role descriptors", slog.Any("error", err))
		os.Exit(1)
	}
	roleCatalog := catalog.New(catalogStore, logger)
	if err := roleCatalog.Reload(ctx); err != nil {
		logger.Error("load role catalog", slog.Any("error", err))
		os.Exit(1)
	}

	moduleRepo := modules.NewRepository(dbpool)
	moduleRegistry := modules.NewCachedRegistry(moduleRepo, redisClient, logger)
	moduleService := modules.NewService(moduleRepo, moduleRegistry, roleCatalog, catalogStore, logger)

	contextResolver := contexts.NewResolver(contexts.NewPGRepository(dbpool))
	assignmentRepo := assignments.NewRepository(dbpool)
	customRoleRepo := customroles.NewRepository(dbpool)

	permResolver := permissions.NewResolver(roleCatalog, customRoleRepo, moduleRegistry, contextResolver, logger)
	evaluator := conditions.NewEvaluator(projects.NewRepository(dbpool), logger)

	metrics := observability.NewMetrics()

	authzService := authz.NewService(
		contextResolver,
		assignmentRepo,
		permResolver,
		evaluator,
		roleCatalog,
		customRoleRepo,
		metrics,
		logger,
	)

	customRoleService := customroles.NewService(customRoleRepo, moduleRegistry, authzService, logger)

	tokenService := auth.NewService(auth.NewPGRepository(dbpool), logger)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		AuthMiddleware:     auth.Middleware{Service: tokenService, Logger: logger},
		AuthzMiddleware:    authz.Middleware{Service: authzService, Logger: logger},
		AuthzHandler:       authz.NewHandler(logger, authzService),
		CatalogHandler:     catalog.NewHandler(logger, roleCatalog),
		CustomRolesHandler: customroles.NewHandler(logger, customRoleService, customRoleRepo),
		ModulesHandler:     modules.NewHandler(logger, moduleService, moduleRegistry),
		JobHandler:         jobs.NewHandler(inspector, jobClient, logger),
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
