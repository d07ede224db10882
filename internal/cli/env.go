package cli

import (
	"context"
	"fmt"

	"github.com/straye-as/indicator-api/internal/catalog"
	"github.com/straye-as/indicator-api/internal/config"
	"github.com/straye-as/indicator-api/internal/database"
	"github.com/straye-as/indicator-api/internal/logger"
	"github.com/straye-as/indicator-api/internal/repository"
	"github.com/straye-as/indicator-api/internal/service"
)

// OpenEnv connects to the service database with the same configuration and secrets as the API
func OpenEnv(ctx context.Context, opts *RootOptions) (*Env, error) {
	basic, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logCfg := basic.Logging
	if !opts.Verbose {
		logCfg.Level = "warn"
	}
	log, err := logger.NewLogger(&logCfg, &basic.App)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	cfg, err := config.LoadWithSecrets(ctx, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load secrets: %w", err)
	}

	path := opts.CatalogPath
	if path == "" {
		path = cfg.Catalog.Path
	}
	cat, err := catalog.Load(path)
	if err != nil {
		return nil, err
	}

	db, err := database.NewDatabase(&cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	permissions := service.NewPermissionService(
		repository.NewUserRepository(db),
		repository.NewPermissionLinkRepository(db, log),
		cat,
		cfg.Admin,
		log,
	)

	return &Env{
		Catalog:     cat,
		Permissions: permissions,
		Close: func() error {
			_ = log.Sync()
			return sqlDB.Close()
		},
	}, nil
}
