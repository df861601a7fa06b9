package fakes

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
)

// FakeAzureKeyVaultClient is an in-memory stand-in for azsecrets.Client.
type FakeAzureKeyVaultClient struct {
	mu sync.Mutex

	// Secrets maps secret names to their latest version.
	Secrets map[string]*AzureSecretData
	// Errors maps secret names to errors returned by every call.
	Errors map[string]error
	// GetSecretFunc overrides GetSecret when set.
	GetSecretFunc func(ctx context.Context, name string, version string) (azsecrets.GetSecretResponse, error)
	// SetSecretFunc overrides SetSecret when set.
	SetSecretFunc func(ctx context.Context, name string, params azsecrets.SetSecretParameters) (azsecrets.SetSecretResponse, error)

	GetCalls int
	SetCalls int
}

// AzureSecretData holds the data for a fake Key Vault secret.
type AzureSecretData struct {
	Value       *string
	ContentType *string
	Tags        map[string]*string
	Version     string
	Updated     time.Time
}

// NewFakeAzureKeyVaultClient creates an empty fake client.
func NewFakeAzureKeyVaultClient() *FakeAzureKeyVaultClient {
	return &FakeAzureKeyVaultClient{
		Secrets: make(map[string]*AzureSecretData),
		Errors:  make(map[string]error),
	}
}

// AddSecretString adds a string secret with no tags or content type.
func (f *FakeAzureKeyVaultClient) AddSecretString(name, value string) {
	f.AddSecret(name, &AzureSecretData{Value: to.Ptr(value)})
}

// AddSecret adds a secret. A missing version is filled in.
func (f *FakeAzureKeyVaultClient) AddSecret(name string, data *AzureSecretData) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if data.Version == "" {
		data.Version = "v1"
	}
	if data.Updated.IsZero() {
		data.Updated = time.Now()
	}
	f.Secrets[name] = data
}

// AddError configures the fake to fail every call for name.
func (f *FakeAzureKeyVaultClient) AddError(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Errors[name] = err
}

// Secret returns the stored data for name.
func (f *FakeAzureKeyVaultClient) Secret(name string) (*AzureSecretData, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.Secrets[name]
	return data, ok
}

// GetSecret implements the Key Vault GetSecret call.
func (f *FakeAzureKeyVaultClient) GetSecret(ctx context.Context, name string, version string, _ *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error) {
	f.mu.Lock()
	f.GetCalls++
	fn := f.GetSecretFunc
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, name, version)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err, exists := f.Errors[name]; exists {
		return azsecrets.GetSecretResponse{}, err
	}

	data, exists := f.Secrets[name]
	if !exists || (version != "" && version != data.Version) {
		return azsecrets.GetSecretResponse{}, AzureNotFoundError(name)
	}

	return azsecrets.GetSecretResponse{
		Secret: azsecrets.Secret{
			ID:          azureSecretID(name, data.Version),
			Value:       data.Value,
			ContentType: data.ContentType,
			Tags:        data.Tags,
			Attributes: &azsecrets.SecretAttributes{
				Enabled: to.Ptr(true),
				Updated: &data.Updated,
			},
		},
	}, nil
}

// SetSecret implements the Key Vault SetSecret call. Each write bumps the version.
func (f *FakeAzureKeyVaultClient) SetSecret(ctx context.Context, name string, params azsecrets.SetSecretParameters, _ *azsecrets.SetSecretOptions) (azsecrets.SetSecretResponse, error) {
	f.mu.Lock()
	f.SetCalls++
	fn := f.SetSecretFunc
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, name, params)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err, exists := f.Errors[name]; exists {
		return azsecrets.SetSecretResponse{}, err
	}

	version := "v1"
	if prev, exists := f.Secrets[name]; exists {
		var n int
		_, _ = fmt.Sscanf(prev.Version, "v%d", &n)
		version = fmt.Sprintf("v%d", n+1)
	}

	data := &AzureSecretData{
		Value:       params.Value,
		ContentType: params.ContentType,
		Tags:        params.Tags,
		Version:     version,
		Updated:     time.Now(),
	}
	f.Secrets[name] = data

	return azsecrets.SetSecretResponse{
		Secret: azsecrets.Secret{
			ID:          azureSecretID(name, version),
			Value:       data.Value,
			ContentType: data.ContentType,
			Tags:        data.Tags,
		},
	}, nil
}

func azureSecretID(name, version string) *azsecrets.ID {
	id := azsecrets.ID(fmt.Sprintf("https://test-vault.vault.azure.net/secrets/%s/%s", name, version))
	return &id
}

// AzureNotFoundError creates a Key Vault not found error.
func AzureNotFoundError(secretName string) error {
	return AzureResponseError(http.StatusNotFound, "SecretNotFound")
}

// AzureForbiddenError creates a Key Vault forbidden error.
func AzureForbiddenError() error {
	return AzureResponseError(http.StatusForbidden, "Forbidden")
}

// AzureThrottledError creates a Key Vault throttling error.
func AzureThrottledError() error {
	return AzureResponseError(http.StatusTooManyRequests, "Throttled")
}

// AzureResponseError creates a Key Vault error with the given status.
func AzureResponseError(status int, code string) error {
	return &azcore.ResponseError{
		StatusCode: status,
		ErrorCode:  code,
	}
}
