package stores

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"

	"github.com/systmms/secretxfer/internal/credential"
	dserrors "github.com/systmms/secretxfer/internal/errors"
	"github.com/systmms/secretxfer/internal/logging"
	"github.com/systmms/secretxfer/pkg/secretstore"
)

// AzureKeyVaultClientAPI is the subset of azsecrets.Client used by the store.
type AzureKeyVaultClientAPI interface {
	GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error)
	SetSecret(ctx context.Context, name string, parameters azsecrets.SetSecretParameters, options *azsecrets.SetSecretOptions) (azsecrets.SetSecretResponse, error)
}

// AzureKeyVault stores secrets in Azure Key Vault.
type AzureKeyVault struct {
	name     string
	vaultURL string
	client   AzureKeyVaultClientAPI
	logger   *logging.Logger
}

// AzureKeyVaultConfig holds Azure Key Vault-specific configuration.
type AzureKeyVaultConfig struct {
	VaultURL string
	Auth     credential.AzureConfig
}

// AzureOption is a functional option for configuring the Azure store.
type AzureOption func(*AzureKeyVault)

// WithAzureKeyVaultClient sets a custom Key Vault client (for testing).
func WithAzureKeyVaultClient(client AzureKeyVaultClientAPI) AzureOption {
	return func(s *AzureKeyVault) {
		s.client = client
	}
}

// ParseAzureKeyVaultConfig reads an azure.keyvault config block.
func ParseAzureKeyVaultConfig(cfg map[string]interface{}) (AzureKeyVaultConfig, error) {
	vaultURL, err := requireField(cfg, "vault_url", "Provide the Key Vault URL (e.g., https://my-vault.vault.azure.net/)")
	if err != nil {
		return AzureKeyVaultConfig{}, err
	}
	u, err := url.Parse(vaultURL)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return AzureKeyVaultConfig{}, dserrors.ConfigError{
			Field:      "vault_url",
			Value:      vaultURL,
			Message:    "Invalid vault_url format",
			Suggestion: "Use format: https://vault-name.vault.azure.net/",
		}
	}

	clientSecret, err := secretField(cfg, "client_secret")
	if err != nil {
		return AzureKeyVaultConfig{}, err
	}

	return AzureKeyVaultConfig{
		VaultURL: vaultURL,
		Auth: credential.AzureConfig{
			TenantID:           stringField(cfg, "tenant_id"),
			ClientID:           stringField(cfg, "client_id"),
			ClientSecret:       clientSecret,
			UseManagedIdentity: boolField(cfg, "use_managed_identity", false),
			UserAssignedID:     stringField(cfg, "user_assigned_identity_id"),
		},
	}, nil
}

// NewAzureKeyVault creates an Azure Key Vault store. No network call is made
// until the first Fetch or Upsert.
func NewAzureKeyVault(name string, cfg AzureKeyVaultConfig, deps Deps, opts ...AzureOption) (*AzureKeyVault, error) {
	s := &AzureKeyVault{
		name:     name,
		vaultURL: cfg.VaultURL,
		logger:   deps.logger(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.client == nil {
		provider := deps.Credential
		if provider == nil {
			azure, err := credential.NewAzure(cfg.Auth)
			if err != nil {
				return nil, err
			}
			provider = credential.NewCached(azure)
		}

		client, err := azsecrets.NewClient(cfg.VaultURL, credential.TokenCredential(provider), &azsecrets.ClientOptions{
			ClientOptions: azcore.ClientOptions{
				Retry:     policy.RetryOptions{MaxRetries: -1},
				Transport: &http.Client{Timeout: deps.timeout()},
			},
		})
		if err != nil {
			return nil, dserrors.ConfigError{
				Field:      "vault_url",
				Value:      cfg.VaultURL,
				Message:    err.Error(),
				Suggestion: "Use format: https://vault-name.vault.azure.net/",
			}
		}
		s.client = client
	}

	return s, nil
}

// Name returns the store name.
func (s *AzureKeyVault) Name() string { return s.name }

// Fetch reads the latest version of a secret.
func (s *AzureKeyVault) Fetch(ctx context.Context, name string) (secretstore.Record, error) {
	s.logger.Debug("Fetching secret %s from Key Vault %s", name, s.vaultURL)

	resp, err := s.client.GetSecret(ctx, name, "", nil)
	if err != nil {
		return secretstore.Record{}, s.translateError(secretstore.OpFetch, name, err)
	}

	opts := []secretstore.RecordOption{secretstore.WithTags(fromAzureTags(resp.Tags))}
	if resp.ContentType != nil {
		opts = append(opts, secretstore.WithContentType(*resp.ContentType))
	}
	if resp.ID != nil {
		opts = append(opts, secretstore.WithVersion(resp.ID.Version()))
	}

	return secretstore.NewRecord(name, deref(resp.Value), opts...), nil
}

// Upsert writes rec as a new version of name.
func (s *AzureKeyVault) Upsert(ctx context.Context, name string, rec secretstore.Record) (secretstore.Record, error) {
	s.logger.Debug("Writing secret %s to Key Vault %s", name, s.vaultURL)

	params := azsecrets.SetSecretParameters{
		Value: to.Ptr(rec.Value()),
		Tags:  toAzureTags(rec.Tags()),
	}
	if ct, ok := rec.ContentType(); ok {
		params.ContentType = to.Ptr(ct)
	}

	resp, err := s.client.SetSecret(ctx, name, params, nil)
	if err != nil {
		return secretstore.Record{}, s.translateError(secretstore.OpUpsert, name, err)
	}

	opts := recordMetadata(rec)
	if resp.ID != nil {
		opts = append(opts, secretstore.WithVersion(resp.ID.Version()))
	}
	return secretstore.NewRecord(name, rec.Value(), opts...), nil
}

// Validate lists one page of secrets to check connectivity and permissions.
// Injected clients are assumed valid.
func (s *AzureKeyVault) Validate(ctx context.Context) error {
	realClient, ok := s.client.(*azsecrets.Client)
	if !ok {
		return nil
	}
	pager := realClient.NewListSecretPropertiesPager(nil)
	if _, err := pager.NextPage(ctx); err != nil {
		return s.translateError(secretstore.OpValidate, "", err)
	}
	return nil
}

// translateError maps Key Vault errors to secretstore errors.
func (s *AzureKeyVault) translateError(op, name string, err error) error {
	var authErr *credential.AuthenticationError
	if errors.As(err, &authErr) {
		return authErr
	}

	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		if respErr.StatusCode == http.StatusNotFound && op != secretstore.OpValidate {
			return &secretstore.NotFoundError{Store: s.name, Name: name}
		}
		return &secretstore.Error{
			Store:      s.name,
			Op:         op,
			Name:       name,
			StatusCode: respErr.StatusCode,
			Code:       respErr.ErrorCode,
			Err:        err,
		}
	}

	return &secretstore.Error{Store: s.name, Op: op, Name: name, Err: err}
}

func fromAzureTags(tags map[string]*string) map[string]string {
	if len(tags) == 0 {
		return nil
	}
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		out[k] = deref(v)
	}
	return out
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func toAzureTags(tags map[string]string) map[string]*string {
	if len(tags) == 0 {
		return nil
	}
	out := make(map[string]*string, len(tags))
	for k, v := range tags {
		out[k] = to.Ptr(v)
	}
	return out
}

// NewAzureKeyVaultFactory creates an Azure Key Vault store from config.
func NewAzureKeyVaultFactory(name string, cfg map[string]interface{}, deps Deps) (secretstore.Store, error) {
	parsed, err := ParseAzureKeyVaultConfig(cfg)
	if err != nil {
		return nil, err
	}
	return NewAzureKeyVault(name, parsed, deps)
}
