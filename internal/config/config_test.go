package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/straye-as/indicator-api/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadFile_DefaultsAndOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"app": {"name": "Indicators Test"},
		"sheets": {"backend": "workbook", "writeTimeout": 3},
		"admin": {"allowList": ["Boot@Example.org"]}
	}`), 0o600))

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "Indicators Test", cfg.App.Name)
	assert.Equal(t, "workbook", cfg.Sheets.Backend)
	assert.Equal(t, 3, cfg.Sheets.WriteTimeout)
	assert.Equal(t, 500, cfg.Sheets.RetryBackoff)
	assert.Equal(t, 2020, cfg.Submissions.MinYear)
	assert.Equal(t, 2050, cfg.Submissions.MaxYear)
	assert.Equal(t, "./config/directorates.yaml", cfg.Catalog.Path)
	assert.Equal(t, "system", cfg.ApiKey.UserID)
	assert.Equal(t, 5, cfg.Jobs.MirrorRedrive.MaxAttempts)
	assert.True(t, cfg.Admin.IsAllowListed("boot@example.org"))
}

func TestLoadFile_RejectsUnknownBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"sheets": {"backend": "carrier-pigeon"}}`), 0o600))

	_, err := config.LoadFile(path)
	assert.Error(t, err)
}

func TestAdminConfig_IsAllowListed(t *testing.T) {
	admin := config.AdminConfig{AllowList: []string{" root@example.org ", "", "user-42"}}

	assert.True(t, admin.IsAllowListed("ROOT@example.org"))
	assert.True(t, admin.IsAllowListed("someone@example.org", "user-42"))
	assert.False(t, admin.IsAllowListed("someone@example.org"))
	assert.False(t, admin.IsAllowListed(""))
	assert.False(t, (&config.AdminConfig{}).IsAllowListed("root@example.org"))
}

func TestDurations(t *testing.T) {
	sheets := config.SheetsConfig{WriteTimeout: 4, RetryBackoff: 250}
	assert.Equal(t, "4s", sheets.WriteTimeoutDuration().String())
	assert.Equal(t, "250ms", sheets.RetryBackoffDuration().String())

	job := config.MirrorRedriveJobConfig{Timeout: 60}
	assert.Equal(t, "1m0s", job.TimeoutDuration().String())
}

type mapSecrets map[string]string

func (m mapSecrets) GetSecretOrEnv(ctx context.Context, secretName, envName string) (string, error) {
	if v, ok := m[secretName]; ok {
		return v, nil
	}
	return "", errors.New("not found")
}

func TestApplySecrets(t *testing.T) {
	cfg := &config.Config{}
	cfg.Database.Host = "localhost"
	cfg.Sheets.Backend = "google"

	err := config.ApplySecrets(context.Background(), cfg, mapSecrets{
		"POSTGRES-MAIN-PASSWORD": "s3cret",
		"SHEETS-SERVICE-ACCOUNT": `{"type":"service_account"}`,
	}, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Database.Host, "missing secrets keep configured values")
	assert.Equal(t, "s3cret", cfg.Database.Password)
	assert.Equal(t, `{"type":"service_account"}`, cfg.Sheets.CredentialsJSON)
}
