package logger

import (
	"fmt"

	"github.com/straye-as/indicator-api/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the process logger. Production and "json" format use the JSON encoder;
// everything else gets the colored console encoder. An unknown level falls back to info.
func NewLogger(cfg *config.LoggingConfig, appCfg *config.AppConfig) (*zap.Logger, error) {
	jsonOutput := cfg.Format == "json" || appCfg.Environment == "production"

	zapCfg := zap.NewDevelopmentConfig()
	if jsonOutput {
		zapCfg = zap.NewProductionConfig()
		// submissions are low volume; sampling would drop mirror failure lines
		zapCfg.Sampling = nil
		zapCfg.EncoderConfig.TimeKey = "timestamp"
		zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	level := zapcore.InfoLevel
	if parsed, err := zapcore.ParseLevel(cfg.Level); err == nil {
		level = parsed
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	zapCfg.InitialFields = map[string]interface{}{
		"app":         appCfg.Name,
		"environment": appCfg.Environment,
	}

	logger, err := zapCfg.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}

// WithRequest scopes a logger to one HTTP request
func WithRequest(logger *zap.Logger, method, path, requestID string) *zap.Logger {
	return logger.With(
		zap.String("request_id", requestID),
		zap.String("method", method),
		zap.String("path", path),
	)
}

// WithUser adds the authenticated caller
func WithUser(logger *zap.Logger, userID, displayName string) *zap.Logger {
	return logger.With(
		zap.String("user_id", userID),
		zap.String("user_name", displayName),
	)
}

// SubmissionFields are the fields attached to every log line about one submission key
func SubmissionFields(directorateID, unit, period string) []zap.Field {
	return []zap.Field{
		zap.String("directorate_id", directorateID),
		zap.String("unit", unit),
		zap.String("period", period),
	}
}
