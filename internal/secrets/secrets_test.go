package secrets

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeVault struct {
	values map[string]string
	calls  int
}

func (f *fakeVault) GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error) {
	f.calls++
	v, ok := f.values[name]
	if !ok {
		return azsecrets.GetSecretResponse{}, errors.New("SecretNotFound")
	}
	return azsecrets.GetSecretResponse{Secret: azsecrets.Secret{Value: &v}}, nil
}

func TestVaultClient_CachesUntilExpiry(t *testing.T) {
	fake := &fakeVault{values: map[string]string{"SHEETS-SERVICE-ACCOUNT": "{}"}}
	client := newVaultClient(fake, &VaultConfig{VaultName: "kv", CacheEnabled: true, CacheTTL: time.Minute}, zap.NewNop())
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	client.now = func() time.Time { return now }

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		v, err := client.GetSecret(ctx, "SHEETS-SERVICE-ACCOUNT")
		require.NoError(t, err)
		assert.Equal(t, "{}", v)
	}
	assert.Equal(t, 1, fake.calls)

	now = now.Add(2 * time.Minute)
	_, err := client.GetSecret(ctx, "SHEETS-SERVICE-ACCOUNT")
	require.NoError(t, err)
	assert.Equal(t, 2, fake.calls)

	client.ClearCache()
	_, err = client.GetSecret(ctx, "SHEETS-SERVICE-ACCOUNT")
	require.NoError(t, err)
	assert.Equal(t, 3, fake.calls)
}

func TestVaultClient_NoCache(t *testing.T) {
	fake := &fakeVault{values: map[string]string{"a": "1"}}
	client := newVaultClient(fake, &VaultConfig{VaultName: "kv"}, zap.NewNop())

	_, _ = client.GetSecret(context.Background(), "a")
	_, _ = client.GetSecret(context.Background(), "a")
	assert.Equal(t, 2, fake.calls)

	_, err := client.GetSecret(context.Background(), "missing")
	assert.Error(t, err)
}

func TestResolveSource(t *testing.T) {
	assert.Equal(t, SourceEnvironment, ResolveSource(SourceAuto, "development"))
	assert.Equal(t, SourceEnvironment, ResolveSource(SourceAuto, ""))
	assert.Equal(t, SourceVault, ResolveSource(SourceAuto, "production"))
	assert.Equal(t, SourceEnvironment, ResolveSource(SourceEnvironment, "production"))
}

func TestProvider_EnvironmentSource(t *testing.T) {
	t.Setenv("SHEETS_CREDENTIALSJSON", `{"type":"service_account"}`)

	p, err := NewProvider(&ProviderConfig{Source: SourceEnvironment}, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, p.IsVaultEnabled())

	v, err := p.Lookup(context.Background(), SheetsServiceAccount)
	require.NoError(t, err)
	assert.Equal(t, `{"type":"service_account"}`, v)

	_, err = p.Lookup(context.Background(), Ref{Vault: "NOT_SET_ANYWHERE", Env: "NOT_SET_EITHER"})
	assert.Error(t, err)
}
