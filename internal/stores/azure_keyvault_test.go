package stores_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/secretxfer/internal/credential"
	dserrors "github.com/systmms/secretxfer/internal/errors"
	"github.com/systmms/secretxfer/internal/stores"
	"github.com/systmms/secretxfer/pkg/secretstore"
	"github.com/systmms/secretxfer/tests/fakes"
)

func newAzureStore(t *testing.T, fake *fakes.FakeAzureKeyVaultClient) *stores.AzureKeyVault {
	t.Helper()
	s, err := stores.NewAzureKeyVault("parent",
		stores.AzureKeyVaultConfig{VaultURL: "https://parent.vault.azure.net/"},
		stores.Deps{},
		stores.WithAzureKeyVaultClient(fake),
	)
	require.NoError(t, err)
	return s
}

func TestAzureKeyVaultFetch(t *testing.T) {
	t.Parallel()

	fake := fakes.NewFakeAzureKeyVaultClient()
	fake.AddSecret("db-pass", &fakes.AzureSecretData{
		Value:       to.Ptr("p@ss"),
		ContentType: to.Ptr("text/plain"),
		Tags:        map[string]*string{"owner": to.Ptr("teamA")},
		Version:     "abc123",
	})

	rec, err := newAzureStore(t, fake).Fetch(context.Background(), "db-pass")
	require.NoError(t, err)

	assert.Equal(t, "db-pass", rec.Name())
	assert.Equal(t, "p@ss", rec.Value())
	assert.Equal(t, "abc123", rec.Version())
	assert.Equal(t, map[string]string{"owner": "teamA"}, rec.Tags())
	ct, ok := rec.ContentType()
	assert.True(t, ok)
	assert.Equal(t, "text/plain", ct)
}

func TestAzureKeyVaultFetchWithoutContentType(t *testing.T) {
	t.Parallel()

	fake := fakes.NewFakeAzureKeyVaultClient()
	fake.AddSecretString("plain", "v")

	rec, err := newAzureStore(t, fake).Fetch(context.Background(), "plain")
	require.NoError(t, err)

	_, ok := rec.ContentType()
	assert.False(t, ok)
	assert.False(t, rec.HasTags())
}

func TestAzureKeyVaultErrorTranslation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		notFound   bool
		wantStatus int
	}{
		{name: "missing secret", err: fakes.AzureNotFoundError("x"), notFound: true, wantStatus: http.StatusNotFound},
		{name: "throttled", err: fakes.AzureThrottledError(), wantStatus: http.StatusTooManyRequests},
		{name: "forbidden", err: fakes.AzureForbiddenError(), wantStatus: http.StatusForbidden},
		{name: "unavailable", err: fakes.AzureResponseError(http.StatusServiceUnavailable, "ServiceUnavailable"), wantStatus: http.StatusServiceUnavailable},
		{name: "transport", err: errors.New("connection reset"), wantStatus: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := fakes.NewFakeAzureKeyVaultClient()
			fake.AddError("db-pass", tt.err)

			_, err := newAzureStore(t, fake).Fetch(context.Background(), "db-pass")
			require.Error(t, err)
			assert.Equal(t, tt.notFound, secretstore.IsNotFound(err))
			assert.Equal(t, tt.wantStatus, secretstore.StatusFrom(err))
		})
	}
}

func TestAzureKeyVaultPassesAuthenticationErrors(t *testing.T) {
	t.Parallel()

	authErr := &credential.AuthenticationError{Provider: "azure:service-principal", Scope: credential.KeyVaultScope, StatusCode: 401}
	fake := fakes.NewFakeAzureKeyVaultClient()
	fake.GetSecretFunc = func(context.Context, string, string) (azsecrets.GetSecretResponse, error) {
		return azsecrets.GetSecretResponse{}, authErr
	}

	_, err := newAzureStore(t, fake).Fetch(context.Background(), "db-pass")

	var got *credential.AuthenticationError
	require.ErrorAs(t, err, &got)
	assert.Equal(t, 401, got.StatusCode)
}

func TestAzureKeyVaultUpsert(t *testing.T) {
	t.Parallel()

	fake := fakes.NewFakeAzureKeyVaultClient()
	s := newAzureStore(t, fake)

	rec := secretstore.NewRecord("ignored", "p@ss",
		secretstore.WithContentType("text/plain"),
		secretstore.WithTags(map[string]string{"owner": "teamA"}),
	)
	stored, err := s.Upsert(context.Background(), "db-pass-copy", rec)
	require.NoError(t, err)

	assert.Equal(t, "db-pass-copy", stored.Name())
	assert.Equal(t, "v1", stored.Version())
	assert.True(t, stored.Equal(rec))

	data, ok := fake.Secret("db-pass-copy")
	require.True(t, ok)
	assert.Equal(t, "p@ss", *data.Value)
	assert.Equal(t, "text/plain", *data.ContentType)
	assert.Equal(t, "teamA", *data.Tags["owner"])

	again, err := s.Upsert(context.Background(), "db-pass-copy", rec)
	require.NoError(t, err)
	assert.Equal(t, "v2", again.Version())
}

func TestAzureKeyVaultUpsertWithoutMetadata(t *testing.T) {
	t.Parallel()

	fake := fakes.NewFakeAzureKeyVaultClient()
	_, err := newAzureStore(t, fake).Upsert(context.Background(), "n", secretstore.NewRecord("n", "v"))
	require.NoError(t, err)

	data, _ := fake.Secret("n")
	assert.Nil(t, data.ContentType)
	assert.Empty(t, data.Tags)
}

func TestAzureKeyVaultUpsertFailure(t *testing.T) {
	t.Parallel()

	fake := fakes.NewFakeAzureKeyVaultClient()
	fake.AddError("n", fakes.AzureForbiddenError())

	_, err := newAzureStore(t, fake).Upsert(context.Background(), "n", secretstore.NewRecord("n", "v"))
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, secretstore.StatusFrom(err))
	assert.False(t, secretstore.IsNotFound(err))
}

func TestAzureKeyVaultValidateInjectedClient(t *testing.T) {
	t.Parallel()
	assert.NoError(t, newAzureStore(t, fakes.NewFakeAzureKeyVaultClient()).Validate(context.Background()))
}

func TestParseAzureKeyVaultConfig(t *testing.T) {
	t.Setenv("TEST_AZ_SECRET", "from-env")

	cfg, err := stores.ParseAzureKeyVaultConfig(map[string]interface{}{
		"vault_url":     "https://child.vault.azure.net/",
		"tenant_id":     "tenant",
		"client_id":     "client",
		"client_secret": "env:TEST_AZ_SECRET",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://child.vault.azure.net/", cfg.VaultURL)
	assert.Equal(t, "from-env", cfg.Auth.ClientSecret)
	assert.Equal(t, "service-principal", cfg.Auth.Method())

	invalid := []map[string]interface{}{
		{},
		{"vault_url": "http://child.vault.azure.net/"},
		{"vault_url": "not a url"},
	}
	for _, c := range invalid {
		_, err := stores.ParseAzureKeyVaultConfig(c)
		var cfgErr dserrors.ConfigError
		assert.ErrorAs(t, err, &cfgErr)
	}
}

func TestNewAzureKeyVaultBuildsRealClientWithoutNetwork(t *testing.T) {
	t.Parallel()

	s, err := stores.NewAzureKeyVault("child",
		stores.AzureKeyVaultConfig{VaultURL: "https://child.vault.azure.net/"},
		stores.Deps{Credential: credential.NewStatic("static", "token")},
	)
	require.NoError(t, err)
	assert.Equal(t, "child", s.Name())
}
