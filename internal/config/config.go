package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/straye-as/indicator-api/internal/secrets"
	"go.uber.org/zap"
)

// Config holds all application configuration
type Config struct {
	App         AppConfig
	Database    DatabaseConfig
	AzureAd     AzureAdConfig
	ApiKey      ApiKeyConfig
	Admin       AdminConfig
	Submissions SubmissionsConfig
	Catalog     CatalogConfig
	Sheets      SheetsConfig
	Storage     StorageConfig
	Secrets     SecretsConfig
	Logging     LoggingConfig
	Server      ServerConfig
	CORS        CORSConfig
	Security    SecurityConfig
	RateLimit   RateLimitConfig
	Jobs        JobsConfig
}

type AppConfig struct {
	Name        string
	Environment string
	Port        int
}

type DatabaseConfig struct {
	Host            string
	Port            int
	Name            string
	User            string
	Password        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int
	AutoMigrate     bool
}

type AzureAdConfig struct {
	TenantId       string
	ClientId       string
	InstanceUrl    string
	RequiredScopes string
}

// ApiKeyConfig configures service-to-service access.
// Requests authenticated with the key act as UserID.
type ApiKeyConfig struct {
	SecretName string
	Value      string
	UserID     string
}

// AdminConfig holds the bootstrap administrator allow-list.
// Entries match a user's id or email (case-insensitive) and grant the admin role.
type AdminConfig struct {
	AllowList []string
}

// SubmissionsConfig bounds the reporting years accepted by the submission flow
type SubmissionsConfig struct {
	MinYear int
	MaxYear int
}

type CatalogConfig struct {
	Path string
}

// SheetsConfig configures the spreadsheet mirror
type SheetsConfig struct {
	// Backend selects the mirror target: "google", "workbook" or "none"
	Backend string
	// WriteTimeout bounds a single write attempt (seconds)
	WriteTimeout int
	// RetryBackoff is the pause before the single transient retry (milliseconds)
	RetryBackoff int
	// CredentialsJSON is the Google service account key (from SHEETS-SERVICE-ACCOUNT secret)
	CredentialsJSON string
	// CredentialsFile is an alternative path to the service account key
	CredentialsFile string
	// WorkbookPrefix is the storage prefix for workbook mirrors
	WorkbookPrefix string
}

type StorageConfig struct {
	Mode                  string
	LocalBasePath         string
	CloudConnectionString string
	CloudContainer        string
}

type SecretsConfig struct {
	// Source determines where secrets are loaded from: "environment", "vault", or "auto"
	// "auto" uses environment in development, vault in staging/production
	Source       string
	KeyVaultName string
	CacheEnabled bool
	CacheTTL     int // seconds
}

type LoggingConfig struct {
	Level  string
	Format string
}

type ServerConfig struct {
	ReadTimeout    int
	WriteTimeout   int
	RequestTimeout int
	EnableSwagger  bool
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	// MaxAge is the max age (in seconds) for preflight cache
	MaxAge int
}

// SecurityConfig holds security header configuration
type SecurityConfig struct {
	EnableHSTS            bool
	HSTSMaxAge            int
	HSTSIncludeSubdomains bool
	HSTSPreload           bool
	ContentSecurityPolicy string
	// FrameOptions sets the X-Frame-Options header (DENY, SAMEORIGIN, or empty to disable)
	FrameOptions       string
	ContentTypeNosniff bool
	XSSProtection      string
	ReferrerPolicy     string
	PermissionsPolicy  string
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled bool
	// RequestsPerMinute is the limit for unauthenticated requests (per IP)
	RequestsPerMinute int
	// RequestsPerMinuteAuth is the limit for authenticated requests (per user)
	RequestsPerMinuteAuth int
	BurstSize             int
	WhitelistIPs          []string
	WhitelistPaths        []string
}

// JobsConfig holds background job configuration
type JobsConfig struct {
	MirrorRedrive MirrorRedriveJobConfig
}

// MirrorRedriveJobConfig configures the job that re-sends transient mirror failures
type MirrorRedriveJobConfig struct {
	Enabled bool
	// Schedule is a cron expression with seconds field (e.g. "0 */10 * * * *")
	Schedule string
	// Timeout bounds one job run (seconds)
	Timeout     int
	MaxAttempts int
	BatchSize   int
}

// ConnectionString builds PostgreSQL connection string
func (d *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

// ConnMaxLifetimeDuration returns connection max lifetime as duration
func (d *DatabaseConfig) ConnMaxLifetimeDuration() time.Duration {
	return time.Duration(d.ConnMaxLifetime) * time.Second
}

// ReadTimeoutDuration returns read timeout as duration
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns write timeout as duration
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// RequestTimeoutDuration returns request timeout as duration
func (s *ServerConfig) RequestTimeoutDuration() time.Duration {
	return time.Duration(s.RequestTimeout) * time.Second
}

// WriteTimeoutDuration returns the per-attempt mirror write timeout
func (s *SheetsConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// RetryBackoffDuration returns the pause before the transient retry
func (s *SheetsConfig) RetryBackoffDuration() time.Duration {
	return time.Duration(s.RetryBackoff) * time.Millisecond
}

// TimeoutDuration returns the job run timeout
func (j *MirrorRedriveJobConfig) TimeoutDuration() time.Duration {
	return time.Duration(j.Timeout) * time.Second
}

// IsAllowListed reports whether the identity is a bootstrap administrator
func (a *AdminConfig) IsAllowListed(identities ...string) bool {
	for _, entry := range a.AllowList {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		for _, id := range identities {
			if id != "" && strings.EqualFold(entry, id) {
				return true
			}
		}
	}
	return false
}

// Load loads configuration from file and environment variables.
// It does not fetch secrets from vault; use LoadWithSecrets for full secret resolution.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return fromViper(v)
}

// LoadFile loads configuration from an explicit file path plus environment overrides
func LoadFile(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	// Environment variables override config file
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.ApiKey.Value == "" {
		cfg.ApiKey.Value = v.GetString("ADMIN_API_KEY")
	}
	if cfg.AzureAd.TenantId == "" {
		cfg.AzureAd.TenantId = v.GetString("AZURE_TENANT_ID")
	}
	if cfg.AzureAd.ClientId == "" {
		cfg.AzureAd.ClientId = v.GetString("AZURE_CLIENT_ID")
	}
	if cfg.AzureAd.RequiredScopes == "" {
		cfg.AzureAd.RequiredScopes = v.GetString("AZURE_REQUIRED_SCOPES")
	}
	if cfg.Secrets.KeyVaultName == "" {
		cfg.Secrets.KeyVaultName = v.GetString("AZURE_KEY_VAULT_NAME")
	}
	if raw := v.GetString("ADMIN_ALLOWLIST"); raw != "" && len(cfg.Admin.AllowList) == 0 {
		cfg.Admin.AllowList = strings.Split(raw, ",")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks settings that would otherwise fail at first use
func (c *Config) Validate() error {
	if c.Submissions.MinYear > c.Submissions.MaxYear {
		return fmt.Errorf("submissions.minYear (%d) is after submissions.maxYear (%d)", c.Submissions.MinYear, c.Submissions.MaxYear)
	}
	switch c.Sheets.Backend {
	case "google", "workbook", "none", "":
	default:
		return fmt.Errorf("unsupported sheets.backend: %s", c.Sheets.Backend)
	}
	if c.Sheets.WriteTimeout <= 0 {
		return fmt.Errorf("sheets.writeTimeout must be positive")
	}
	return nil
}

// LoadWithSecrets loads configuration and resolves secrets from the configured source.
// Key Vault is used when USE_AZURE_KEY_VAULT=true and the environment is staging or production;
// otherwise secrets come from environment variables.
func LoadWithSecrets(ctx context.Context, logger *zap.Logger) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	useKeyVault := strings.ToLower(os.Getenv("USE_AZURE_KEY_VAULT")) == "true"
	isValidEnv := cfg.App.Environment == "staging" || cfg.App.Environment == "production"

	if !useKeyVault {
		logger.Info("USE_AZURE_KEY_VAULT not enabled, using environment variables for secrets",
			zap.String("environment", cfg.App.Environment),
		)
		return cfg, nil
	}

	if !isValidEnv {
		logger.Warn("USE_AZURE_KEY_VAULT is enabled but environment is not staging or production, using environment variables for secrets",
			zap.String("environment", cfg.App.Environment),
		)
		return cfg, nil
	}

	if cfg.Secrets.KeyVaultName == "" {
		return nil, fmt.Errorf("AZURE_KEY_VAULT_NAME is required when USE_AZURE_KEY_VAULT=true")
	}

	logger.Info("Azure Key Vault enabled for secrets",
		zap.String("environment", cfg.App.Environment),
		zap.String("key_vault_name", cfg.Secrets.KeyVaultName),
	)

	provider, err := secrets.NewProvider(&secrets.ProviderConfig{
		Source:       secrets.SourceVault,
		VaultName:    cfg.Secrets.KeyVaultName,
		Environment:  cfg.App.Environment,
		CacheEnabled: cfg.Secrets.CacheEnabled,
		CacheTTL:     time.Duration(cfg.Secrets.CacheTTL) * time.Second,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize secrets provider (USE_AZURE_KEY_VAULT=true requires valid vault): %w", err)
	}

	if err := ApplySecrets(ctx, cfg, provider, logger); err != nil {
		return nil, err
	}

	logger.Info("Secrets loaded from vault successfully")
	return cfg, nil
}

// SecretSource is the subset of the secrets provider ApplySecrets needs
type SecretSource interface {
	GetSecretOrEnv(ctx context.Context, secretName, envName string) (string, error)
}

// ApplySecrets overlays secret values onto cfg. Missing secrets keep the configured value.
func ApplySecrets(ctx context.Context, cfg *Config, provider SecretSource, logger *zap.Logger) error {
	set := func(target *string, ref secrets.Ref) {
		value, err := provider.GetSecretOrEnv(ctx, ref.Vault, ref.Env)
		if err != nil || value == "" {
			logger.Debug("Secret not available, keeping configured value",
				zap.String("secret_name", ref.Vault),
			)
			return
		}
		*target = value
	}

	set(&cfg.Database.Host, secrets.DatabaseHost)
	set(&cfg.Database.User, secrets.DatabaseUser)
	set(&cfg.Database.Password, secrets.DatabasePassword)
	set(&cfg.AzureAd.TenantId, secrets.AzureTenantID)
	set(&cfg.AzureAd.ClientId, secrets.AzureClientID)
	set(&cfg.ApiKey.Value, secrets.AdminAPIKey)
	set(&cfg.Storage.CloudConnectionString, secrets.StorageConnectionString)
	set(&cfg.Sheets.CredentialsJSON, secrets.SheetsServiceAccount)

	// Database name varies per environment and never lives in the vault
	if defaultDB := os.Getenv("DEFAULT_DATABASE"); defaultDB != "" {
		cfg.Database.Name = defaultDB
	}
	if sslMode := os.Getenv("DATABASE_SSLMODE"); sslMode != "" {
		cfg.Database.SSLMode = sslMode
	}

	if cfg.Sheets.Backend == "google" && cfg.Sheets.CredentialsJSON == "" && cfg.Sheets.CredentialsFile == "" {
		logger.Warn("Google sheets backend selected but no service account credentials were found",
			zap.String("secret_name", secrets.SheetsServiceAccount.Vault),
		)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "Indicator API")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.port", 8080)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "indicators")
	v.SetDefault("database.user", "indicator_user")
	v.SetDefault("database.password", "indicator_password")
	v.SetDefault("database.sslMode", "disable")
	v.SetDefault("database.maxOpenConns", 25)
	v.SetDefault("database.maxIdleConns", 5)
	v.SetDefault("database.connMaxLifetime", 300)
	v.SetDefault("database.autoMigrate", false)

	// Secrets defaults
	v.SetDefault("secrets.source", "auto")
	v.SetDefault("secrets.cacheEnabled", true)
	v.SetDefault("secrets.cacheTTL", 300)

	// Azure AD defaults
	v.SetDefault("azuread.instanceUrl", "https://login.microsoftonline.com/")

	// Access defaults
	v.SetDefault("apiKey.userId", "system")
	v.SetDefault("admin.allowList", []string{})

	// Submission defaults
	v.SetDefault("submissions.minYear", 2020)
	v.SetDefault("submissions.maxYear", 2050)

	// Catalog defaults
	v.SetDefault("catalog.path", "./config/directorates.yaml")

	// Mirror defaults
	v.SetDefault("sheets.backend", "none")
	v.SetDefault("sheets.writeTimeout", 10)
	v.SetDefault("sheets.retryBackoff", 500)
	v.SetDefault("sheets.workbookPrefix", "workbooks")

	// Storage defaults
	v.SetDefault("storage.mode", "local")
	v.SetDefault("storage.localBasePath", "./storage")
	v.SetDefault("storage.cloudContainer", "indicator-workbooks")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	// Server defaults
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)
	v.SetDefault("server.requestTimeout", 60)
	v.SetDefault("server.enableSwagger", true)

	// CORS defaults, restrictive unless origins are configured
	v.SetDefault("cors.allowedOrigins", []string{})
	v.SetDefault("cors.allowedMethods", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowedHeaders", []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-ID"})
	v.SetDefault("cors.exposedHeaders", []string{"Location", "X-Request-ID", "Content-Disposition"})
	v.SetDefault("cors.allowCredentials", true)
	v.SetDefault("cors.maxAge", 300)

	// Security header defaults
	v.SetDefault("security.enableHSTS", false)
	v.SetDefault("security.hstsMaxAge", 31536000)
	v.SetDefault("security.hstsIncludeSubdomains", true)
	v.SetDefault("security.hstsPreload", false)
	v.SetDefault("security.contentSecurityPolicy", "default-src 'self'")
	v.SetDefault("security.frameOptions", "DENY")
	v.SetDefault("security.contentTypeNosniff", true)
	v.SetDefault("security.xssProtection", "1; mode=block")
	v.SetDefault("security.referrerPolicy", "strict-origin-when-cross-origin")
	v.SetDefault("security.permissionsPolicy", "geolocation=(), microphone=(), camera=()")

	// Rate limiting defaults
	v.SetDefault("rateLimit.enabled", true)
	v.SetDefault("rateLimit.requestsPerMinute", 60)
	v.SetDefault("rateLimit.requestsPerMinuteAuth", 120)
	v.SetDefault("rateLimit.burstSize", 10)
	v.SetDefault("rateLimit.whitelistIPs", []string{"127.0.0.1", "::1"})
	v.SetDefault("rateLimit.whitelistPaths", []string{"/health", "/health/db", "/health/ready"})

	// Job defaults
	v.SetDefault("jobs.mirrorRedrive.enabled", true)
	v.SetDefault("jobs.mirrorRedrive.schedule", "0 */10 * * * *")
	v.SetDefault("jobs.mirrorRedrive.timeout", 300)
	v.SetDefault("jobs.mirrorRedrive.maxAttempts", 5)
	v.SetDefault("jobs.mirrorRedrive.batchSize", 50)
}
