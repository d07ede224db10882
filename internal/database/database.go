package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/straye-as/indicator-api/internal/config"
	"github.com/straye-as/indicator-api/internal/domain"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	connectAttempts = 5
	connectBackoff  = 2 * time.Second
)

// NewDatabase opens the PostgreSQL connection pool, retrying while the server comes up
func NewDatabase(cfg *config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	var lastErr error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		db, err := open(cfg)
		if err == nil {
			log.Info("Database connected",
				zap.String("host", cfg.Host),
				zap.String("database", cfg.Name),
				zap.Int("attempt", attempt),
			)
			return db, nil
		}
		lastErr = err
		log.Warn("Database connection failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", connectAttempts),
			zap.Error(err),
		)
		if attempt < connectAttempts {
			time.Sleep(connectBackoff * time.Duration(attempt))
		}
	}
	return nil, lastErr
}

func open(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.ConnectionString()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetimeDuration())

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// AutoMigrate creates the schema from the models (development and tests only;
// deployed environments use the SQL migrations in cmd/migrate)
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.User{},
		&domain.PermissionLink{},
		&domain.Submission{},
		&domain.SyncFailure{},
	)
}

// HealthCheck pings the database
func HealthCheck(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// HealthCheckWithStats pings the database and returns pool statistics
func HealthCheckWithStats(db *gorm.DB) (sql.DBStats, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return sql.DBStats{}, fmt.Errorf("failed to get database instance: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return sql.DBStats{}, fmt.Errorf("database ping failed: %w", err)
	}
	return sqlDB.Stats(), nil
}
