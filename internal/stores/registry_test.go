package stores_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/secretxfer/internal/credential"
	dserrors "github.com/systmms/secretxfer/internal/errors"
	"github.com/systmms/secretxfer/internal/stores"
	"github.com/systmms/secretxfer/pkg/secretstore"
)

func TestRegistrySupportedTypes(t *testing.T) {
	t.Parallel()

	r := stores.NewRegistry()
	assert.Equal(t, []string{
		"aws.secretsmanager",
		"aws.ssm",
		"azure.keyvault",
		"gcp.secretmanager",
		"memory",
		"vault",
	}, r.SupportedTypes())

	assert.True(t, r.IsSupported(stores.TypeAzureKeyVault))
	assert.False(t, r.IsSupported("onepassword"))
}

func TestRegistryCreate(t *testing.T) {
	t.Parallel()

	r := stores.NewRegistry()
	deps := stores.Deps{Credential: credential.NewStatic("static", "token")}

	tests := []struct {
		name      string
		storeType string
		cfg       map[string]interface{}
		wantType  interface{}
	}{
		{name: "memory", storeType: stores.TypeMemory, cfg: nil, wantType: &stores.Memory{}},
		{name: "azure", storeType: stores.TypeAzureKeyVault, cfg: map[string]interface{}{"vault_url": "https://parent.vault.azure.net/"}, wantType: &stores.AzureKeyVault{}},
		{name: "vault", storeType: stores.TypeVault, cfg: map[string]interface{}{"address": "https://vault.example.com:8200"}, wantType: &stores.Vault{}},
		{name: "gcp", storeType: stores.TypeGCPSecretManager, cfg: map[string]interface{}{"project_id": "p"}, wantType: &stores.GCPSecretManager{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := r.Create(tt.name, tt.storeType, tt.cfg, deps)
			require.NoError(t, err)
			assert.IsType(t, tt.wantType, s)
			assert.Equal(t, tt.name, s.Name())
		})
	}
}

func TestRegistryCreateErrors(t *testing.T) {
	t.Parallel()

	r := stores.NewRegistry()

	_, err := r.Create("x", "onepassword", nil, stores.Deps{})
	assert.ErrorContains(t, err, "unknown store type")

	_, err = r.Create("x", stores.TypeAzureKeyVault, map[string]interface{}{}, stores.Deps{})
	var cfgErr dserrors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "vault_url", cfgErr.Field)
}

func TestRegistryCustomFactory(t *testing.T) {
	t.Parallel()

	r := stores.NewRegistry()
	r.RegisterFactory("custom", func(name string, _ map[string]interface{}, deps stores.Deps) (secretstore.Store, error) {
		return stores.NewMemory(name, deps), nil
	})

	s, err := r.Create("c", "custom", nil, stores.Deps{})
	require.NoError(t, err)
	assert.Equal(t, "c", s.Name())
}
