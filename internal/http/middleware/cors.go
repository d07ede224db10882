package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
	"github.com/straye-as/indicator-api/internal/config"
	"go.uber.org/zap"
)

func isDevelopment(environment string) bool {
	return environment == "development" || environment == "local" || environment == ""
}

// originPolicy decides how origins are matched:
// an explicit list is used as-is, "*" or an empty list in development allows any origin,
// and an empty list elsewhere denies every cross-origin request.
func originPolicy(cfg *config.CORSConfig, environment string, logger *zap.Logger) ([]string, func(*http.Request, string) bool) {
	anyOrigin := func(r *http.Request, origin string) bool { return origin != "" }

	for _, origin := range cfg.AllowedOrigins {
		if origin == "*" {
			if !isDevelopment(environment) {
				logger.Warn("CORS configured with wildcard origin in non-development environment",
					zap.String("environment", environment))
			}
			return nil, anyOrigin
		}
	}

	if len(cfg.AllowedOrigins) > 0 {
		logger.Info("CORS configured with explicit origins", zap.Strings("origins", cfg.AllowedOrigins))
		return cfg.AllowedOrigins, nil
	}

	if isDevelopment(environment) {
		logger.Info("CORS configured to allow all origins in development mode")
		return nil, anyOrigin
	}

	// empty AllowedOrigins means "*" to go-chi/cors, so deny through the func
	logger.Warn("CORS configured with no allowed origins - all cross-origin requests will be denied",
		zap.String("environment", environment))
	return nil, func(r *http.Request, origin string) bool { return false }
}

// CORS returns a CORS middleware configured from the application config
func CORS(cfg *config.CORSConfig, environment string, logger *zap.Logger) func(http.Handler) http.Handler {
	origins, originFunc := originPolicy(cfg, environment, logger)
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowOriginFunc:  originFunc,
		AllowedMethods:   cfg.AllowedMethods,
		AllowedHeaders:   cfg.AllowedHeaders,
		ExposedHeaders:   cfg.ExposedHeaders,
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           cfg.MaxAge,
	})
}
