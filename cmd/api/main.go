package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/straye-as/indicator-api/docs"
	"github.com/straye-as/indicator-api/internal/auth"
	"github.com/straye-as/indicator-api/internal/catalog"
	"github.com/straye-as/indicator-api/internal/config"
	"github.com/straye-as/indicator-api/internal/database"
	"github.com/straye-as/indicator-api/internal/http/handler"
	"github.com/straye-as/indicator-api/internal/http/middleware"
	"github.com/straye-as/indicator-api/internal/http/router"
	"github.com/straye-as/indicator-api/internal/jobs"
	"github.com/straye-as/indicator-api/internal/logger"
	"github.com/straye-as/indicator-api/internal/repository"
	"github.com/straye-as/indicator-api/internal/service"
	"github.com/straye-as/indicator-api/internal/sheets"
	"github.com/straye-as/indicator-api/internal/storage"
	"go.uber.org/zap"
)

// @title Indicator Submission API
// @version 1.0
// @description Monthly and daily social-assistance indicator submissions per directorate, with spreadsheet mirroring

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Azure AD bearer token

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name x-api-key
// @description API key for system integrations

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	basicCfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.NewLogger(&basicCfg.Logging, &basicCfg.App)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting application",
		zap.String("app", basicCfg.App.Name),
		zap.String("env", basicCfg.App.Environment),
		zap.Int("port", basicCfg.App.Port),
	)
	docs.SwaggerInfo.Host = fmt.Sprintf("localhost:%d", basicCfg.App.Port)

	// development reads secrets from the environment, deployed environments from Key Vault
	cfg, err := config.LoadWithSecrets(ctx, log)
	if err != nil {
		return fmt.Errorf("failed to load secrets: %w", err)
	}

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return fmt.Errorf("failed to load directorate catalog: %w", err)
	}
	log.Info("Catalog loaded",
		zap.String("path", cfg.Catalog.Path),
		zap.Int("directorates", len(cat.List())),
	)

	db, err := database.NewDatabase(&cfg.Database, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if cfg.Database.AutoMigrate {
		if err := database.AutoMigrate(db); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
		log.Info("Database schema migrated from models")
	}

	adapter, err := newSheetsAdapter(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize spreadsheet mirror: %w", err)
	}

	// Repositories
	userRepo := repository.NewUserRepository(db)
	linkRepo := repository.NewPermissionLinkRepository(db, log)
	submissionRepo := repository.NewSubmissionRepository(db, log)
	failureRepo := repository.NewSyncFailureRepository(db)

	// Services
	permissionService := service.NewPermissionService(userRepo, linkRepo, cat, cfg.Admin, log)
	carryForwardService := service.NewCarryForwardService(submissionRepo, log)
	mirrorService := service.NewMirrorService(adapter, cat, submissionRepo, failureRepo, permissionService, cfg.Jobs.MirrorRedrive, log)
	submissionService := service.NewSubmissionService(cat, permissionService, carryForwardService, submissionRepo, mirrorService, cfg.Submissions, log)
	exportService := service.NewExportService(cat, permissionService, submissionRepo, cfg.Submissions, log)

	// Middleware
	authMiddleware := auth.NewMiddleware(cfg, userRepo, permissionService, log)
	rateLimiter := middleware.NewRateLimiter(&cfg.RateLimit, log)

	// Handlers
	directorateHandler := handler.NewDirectorateHandler(cat, permissionService, log)
	submissionHandler := handler.NewSubmissionHandler(submissionService, exportService, log)
	adminHandler := handler.NewAdminHandler(permissionService, mirrorService, log)
	authHandler := handler.NewAuthHandler(permissionService, log)

	rt := router.NewRouter(
		cfg,
		log,
		db,
		cat,
		mirrorService,
		authMiddleware,
		rateLimiter,
		directorateHandler,
		submissionHandler,
		adminHandler,
		authHandler,
	)

	var scheduler *jobs.Scheduler
	redrive := cfg.Jobs.MirrorRedrive
	if redrive.Enabled && mirrorService.Enabled() {
		scheduler = jobs.NewScheduler(log)
		if err := jobs.RegisterMirrorRedriveJob(scheduler, mirrorService, log, redrive.Schedule, redrive.TimeoutDuration()); err != nil {
			log.Error("Failed to register mirror re-drive job", zap.Error(err))
			scheduler = nil
		} else {
			scheduler.Start()
		}
	} else {
		log.Info("Mirror re-drive job disabled",
			zap.Bool("job_enabled", redrive.Enabled),
			zap.Bool("mirror_enabled", mirrorService.Enabled()),
		)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      rt.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		if scheduler != nil {
			<-scheduler.Stop().Done()
			log.Info("Scheduler stopped")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Error("Failed to shutdown gracefully", zap.Error(err))
			return err
		}

		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
		log.Info("Server stopped gracefully")
	}

	return nil
}

// newSheetsAdapter selects the spreadsheet mirror backend. A nil adapter disables mirroring.
func newSheetsAdapter(ctx context.Context, cfg *config.Config, log *zap.Logger) (*sheets.Adapter, error) {
	var backend sheets.Backend
	switch cfg.Sheets.Backend {
	case "google":
		gb, err := sheets.NewGoogleBackend(ctx, cfg.Sheets.CredentialsJSON, cfg.Sheets.CredentialsFile)
		if err != nil {
			return nil, err
		}
		backend = gb
	case "workbook":
		store, err := storage.NewStorage(&cfg.Storage, log)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		backend = sheets.NewWorkbookBackend(store, cfg.Sheets.WorkbookPrefix, log)
	case "", "none":
		log.Info("Spreadsheet mirror disabled")
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown sheets backend %q", cfg.Sheets.Backend)
	}

	log.Info("Spreadsheet mirror enabled",
		zap.String("backend", cfg.Sheets.Backend),
		zap.String("storage_mode", cfg.Storage.Mode),
	)
	return sheets.NewAdapter(backend, &cfg.Sheets, log), nil
}
