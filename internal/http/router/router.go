package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/straye-as/indicator-api/internal/auth"
	"github.com/straye-as/indicator-api/internal/catalog"
	"github.com/straye-as/indicator-api/internal/config"
	"github.com/straye-as/indicator-api/internal/database"
	"github.com/straye-as/indicator-api/internal/http/handler"
	"github.com/straye-as/indicator-api/internal/http/middleware"
	"github.com/straye-as/indicator-api/internal/service"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	_ "github.com/straye-as/indicator-api/docs" // Import generated swagger docs
)

type Router struct {
	cfg                *config.Config
	logger             *zap.Logger
	db                 *gorm.DB
	catalog            *catalog.Catalog
	mirror             *service.MirrorService
	authMiddleware     *auth.Middleware
	rateLimiter        *middleware.RateLimiter
	directorateHandler *handler.DirectorateHandler
	submissionHandler  *handler.SubmissionHandler
	adminHandler       *handler.AdminHandler
	authHandler        *handler.AuthHandler
}

func NewRouter(
	cfg *config.Config,
	logger *zap.Logger,
	db *gorm.DB,
	cat *catalog.Catalog,
	mirror *service.MirrorService,
	authMiddleware *auth.Middleware,
	rateLimiter *middleware.RateLimiter,
	directorateHandler *handler.DirectorateHandler,
	submissionHandler *handler.SubmissionHandler,
	adminHandler *handler.AdminHandler,
	authHandler *handler.AuthHandler,
) *Router {
	return &Router{
		cfg:                cfg,
		logger:             logger,
		db:                 db,
		catalog:            cat,
		mirror:             mirror,
		authMiddleware:     authMiddleware,
		rateLimiter:        rateLimiter,
		directorateHandler: directorateHandler,
		submissionHandler:  submissionHandler,
		adminHandler:       adminHandler,
		authHandler:        authHandler,
	}
}

func (rt *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(rt.logger))
	r.Use(middleware.Logging(rt.logger))
	r.Use(middleware.SecurityHeaders(&rt.cfg.Security))
	r.Use(middleware.CORS(&rt.cfg.CORS, rt.cfg.App.Environment, rt.logger))
	r.Use(rt.rateLimiter.LimitByIP)

	// Liveness
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Get("/health/db", rt.databaseHealth)
	r.Get("/health/ready", rt.readiness)

	if rt.cfg.Server.EnableSwagger {
		r.Get("/swagger/*", httpSwagger.Handler(
			httpSwagger.URL("/swagger/doc.json"),
		))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rt.authMiddleware.Authenticate)
		r.Use(middleware.CaptureUser)
		r.Use(rt.rateLimiter.Limit)
		if timeout := rt.cfg.Server.RequestTimeoutDuration(); timeout > 0 {
			r.Use(chimw.Timeout(timeout))
		}

		r.Get("/auth/me", rt.authHandler.Me)

		r.Route("/directorates", func(r chi.Router) {
			r.Get("/", rt.directorateHandler.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", rt.directorateHandler.GetByID)
				r.Post("/reports", rt.submissionHandler.SubmitReport)
				r.Post("/daily-reports", rt.submissionHandler.SubmitDailyReport)
				r.Get("/reports/{year}", rt.submissionHandler.GetYear)
				r.Get("/reports/{year}/{month}", rt.submissionHandler.GetPeriod)
				r.Delete("/reports/{year}/{month}", rt.submissionHandler.DeleteMonth)
				r.Get("/reports/{year}/{month}/previous", rt.submissionHandler.GetPreviousMonthData)
				r.Get("/reports/{year}/{month}/initial-values", rt.submissionHandler.GetInitialValues)
				r.Get("/export/{year}", rt.submissionHandler.ExportYear)
			})
		})

		r.Patch("/submissions/{id}/cells", rt.submissionHandler.UpdateCell)

		r.Route("/admin", func(r chi.Router) {
			r.Use(rt.authMiddleware.RequireAdmin)

			r.Get("/users", rt.adminHandler.ListUsers)
			r.Put("/users/{userId}/role", rt.adminHandler.SetRole)
			r.Get("/permissions", rt.adminHandler.ListPermissions)
			r.Put("/permissions", rt.adminHandler.GrantPermission)
			r.Delete("/permissions/{userId}/{directorateId}", rt.adminHandler.RevokePermission)
			r.Get("/sync-failures", rt.adminHandler.ListSyncFailures)
			r.Post("/sync-failures/{id}/retry", rt.adminHandler.RetrySyncFailure)
		})
	})

	return r
}

func writeHealth(w http.ResponseWriter, healthy bool, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	if healthy {
		body["status"] = "healthy"
		w.WriteHeader(http.StatusOK)
	} else {
		body["status"] = "unhealthy"
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(body)
}

func (rt *Router) databaseHealth(w http.ResponseWriter, r *http.Request) {
	stats, err := database.HealthCheckWithStats(rt.db)
	if err != nil {
		rt.logger.Error("Database health check failed", zap.Error(err))
		writeHealth(w, false, map[string]any{"service": "database", "error": err.Error()})
		return
	}

	writeHealth(w, true, map[string]any{
		"service": "database",
		"stats": map[string]any{
			"max_open_connections": stats.MaxOpenConnections,
			"open_connections":     stats.OpenConnections,
			"in_use":               stats.InUse,
			"idle":                 stats.Idle,
			"wait_count":           stats.WaitCount,
			"wait_duration_ms":     stats.WaitDuration.Milliseconds(),
		},
	})
}

// readiness requires the database and a non-empty catalog.
// A disabled spreadsheet mirror is reported but does not fail readiness.
func (rt *Router) readiness(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]any)
	ready := true

	if err := database.HealthCheck(rt.db); err != nil {
		rt.logger.Error("Database health check failed", zap.Error(err))
		checks["database"] = map[string]any{"status": "unhealthy", "error": err.Error()}
		ready = false
	} else {
		checks["database"] = map[string]any{"status": "healthy"}
	}

	if n := len(rt.catalog.List()); n == 0 {
		checks["catalog"] = map[string]any{"status": "unhealthy", "error": "no directorates configured"}
		ready = false
	} else {
		checks["catalog"] = map[string]any{"status": "healthy", "directorates": n}
	}

	mirrorStatus := "disabled"
	if rt.mirror.Enabled() {
		mirrorStatus = "enabled"
	}
	checks["spreadsheet_mirror"] = map[string]any{"status": mirrorStatus}

	writeHealth(w, ready, map[string]any{"checks": checks})
}
