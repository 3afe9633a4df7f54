package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sqlpilot/sqlpilot/internal/api"
	"github.com/sqlpilot/sqlpilot/internal/archive"
	"github.com/sqlpilot/sqlpilot/internal/audit"
	"github.com/sqlpilot/sqlpilot/internal/auth"
	"github.com/sqlpilot/sqlpilot/internal/config"
	"github.com/sqlpilot/sqlpilot/internal/database"
	"github.com/sqlpilot/sqlpilot/internal/llm"
	"github.com/sqlpilot/sqlpilot/internal/maintenance"
	"github.com/sqlpilot/sqlpilot/internal/observability"
	"github.com/sqlpilot/sqlpilot/internal/session"
	sessionobjects "github.com/sqlpilot/sqlpilot/internal/session/objectstore"
	sessionpostgres "github.com/sqlpilot/sqlpilot/internal/session/postgres"
	"github.com/sqlpilot/sqlpilot/internal/storage"
	s3store "github.com/sqlpilot/sqlpilot/internal/storage/s3"
	"github.com/sqlpilot/sqlpilot/internal/workflow"
)

func main() {
	cfg, err := config.LoadFromEnv("sqlpilot-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	target, err := database.OpenTarget(context.Background(), cfg.Target.Name, database.Config{
		Driver:          cfg.Target.Driver,
		DSN:             cfg.Target.DSN,
		MaxOpenConns:    cfg.Target.MaxOpenConns,
		MaxIdleConns:    cfg.Target.MaxIdleConns,
		ConnMaxIdleTime: cfg.Target.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Target.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to open target db", slog.String("target", cfg.Target.Name), slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = target.DB.Close() }()

	var objectStore storage.ObjectStore
	if cfg.SessionStore.Kind == "s3" || cfg.Workflow.ArchiveResults {
		objectStore, err = s3store.New(context.Background(), s3store.Config{
			Endpoint:         cfg.ObjectStore.Endpoint,
			Region:           cfg.ObjectStore.Region,
			Bucket:           cfg.ObjectStore.Bucket,
			AccessKeyID:      cfg.ObjectStore.AccessKeyID,
			SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
			UseSSL:           cfg.ObjectStore.UseSSL,
			Prefix:           cfg.ObjectStore.Prefix,
			AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
		})
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
	}

	store, storeReady, closeStore, err := openSessionStore(cfg, objectStore)
	if err != nil {
		logger.Error("failed to open session store", slog.String("kind", cfg.SessionStore.Kind), slog.Any("error", err))
		os.Exit(1)
	}
	defer closeStore()

	models, err := newModelRegistry(cfg)
	if err != nil {
		logger.Error("failed to initialize model provider", slog.Any("error", err))
		os.Exit(1)
	}

	archivers := map[string]*archive.Archiver{}
	pruners := map[string]maintenance.Pruner{}
	if cfg.Workflow.ArchiveResults {
		archiver, err := archive.NewArchiver(objectStore, target.Name, logger)
		if err != nil {
			logger.Error("failed to initialize result archiver", slog.Any("error", err))
			os.Exit(1)
		}
		archivers[target.Name] = archiver
		pruners[target.Name] = archiver
	}

	classifierModel := ""
	if cfg.AI.ClassifierEnabled {
		classifierModel = cfg.AI.Model
	}
	orchestrator, err := workflow.New(workflow.Config{
		MaxRetries:       cfg.Workflow.MaxRetries,
		RowLimit:         cfg.Workflow.RowLimit,
		StatementTimeout: cfg.Target.StatementTimeout,
		ApprovalTTL:      cfg.Workflow.ApprovalTTL,
		SchemaCacheSize:  cfg.Workflow.SchemaCacheSize,
		GenerationModel:  cfg.AI.Model,
		ClassifierModel:  classifierModel,
		Temperature:      cfg.AI.Temperature,
	}, workflow.Dependencies{
		Targets:   []database.Target{target},
		Models:    models,
		Store:     store,
		Audit:     audit.NewWriter(cfg.Workflow.AuditDir),
		Archivers: archivers,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("failed to initialize workflow", slog.Any("error", err))
		os.Exit(1)
	}

	maintenanceService := &maintenance.Service{
		Expirer: orchestrator,
		Pruners: pruners,
		Config: maintenance.Config{
			ExpiryInterval:   cfg.Workflow.SweepInterval,
			ArchiveRetention: cfg.Workflow.ArchiveRetention,
		},
		Logger: logger,
	}

	readiness := api.CombineReadinessChecks(
		api.CheckTargetConfig(cfg),
		orchestrator.HealthCheck,
		storeReady,
	)
	deps := api.Dependencies{
		Logger:           logger,
		Readiness:        readiness,
		DependencyTimout: time.Second,
		Workflow:         orchestrator,
		Maintenance:      maintenanceService,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("api key auth enabled", slog.Any("subjects", validator.Subjects()))
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := maintenanceService.Run(ctx); err != nil {
			logger.Error("maintenance loop failed", slog.Any("error", err))
		}
	}()

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("target", target.Name),
			slog.String("dialect", target.Dialect.String()),
			slog.String("session_store", cfg.SessionStore.Kind),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server", slog.Int("pending_approvals", orchestrator.PendingCount()))
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}

func openSessionStore(cfg config.Config, objects storage.ObjectStore) (session.Store, api.ReadinessCheck, func(), error) {
	noop := func() {}
	switch cfg.SessionStore.Kind {
	case "postgres":
		db, _, err := database.Open(context.Background(), database.Config{
			Driver:          "pgx",
			DSN:             cfg.SessionStore.DSN,
			MaxOpenConns:    cfg.SessionStore.MaxOpenConns,
			MaxIdleConns:    cfg.SessionStore.MaxIdleConns,
			ConnMaxIdleTime: cfg.SessionStore.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.SessionStore.ConnMaxLifetime,
		})
		if err != nil {
			return nil, nil, noop, err
		}
		store := sessionpostgres.NewStore(db)
		return store, store.HealthCheck, func() { _ = db.Close() }, nil
	case "s3":
		store, err := sessionobjects.NewStore(objects)
		if err != nil {
			return nil, nil, noop, err
		}
		return store, api.CheckObjectStoreConfig(cfg), noop, nil
	case "memory":
		return session.NewMemoryStore(), nil, noop, nil
	default:
		return nil, nil, noop, fmt.Errorf("unsupported session store %q", cfg.SessionStore.Kind)
	}
}

func newModelRegistry(cfg config.Config) (*llm.Registry, error) {
	if cfg.AI.Provider != "openai" {
		return nil, fmt.Errorf("unsupported ai provider %q", cfg.AI.Provider)
	}
	provider, err := llm.NewOpenAIProvider(llm.OpenAIConfig{
		BaseURL:     cfg.AI.BaseURL,
		APIKey:      cfg.AI.APIKey,
		Model:       cfg.AI.Model,
		Temperature: cfg.AI.Temperature,
		Timeout:     cfg.AI.Timeout,
	})
	if err != nil {
		return nil, err
	}
	registry := llm.NewRegistry()
	if err := registry.Register(cfg.AI.Model, provider); err != nil {
		return nil, err
	}
	return registry, nil
}
