package credential

import (
	"context"
	"errors"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
)

// KeyVaultScope is the token scope for Azure Key Vault data-plane calls.
const KeyVaultScope = "https://vault.azure.net/.default"

// AzureConfig selects the Azure authentication method.
type AzureConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string

	// UseManagedIdentity forces managed identity even when other fields are set.
	UseManagedIdentity bool

	// UserAssignedID selects a user-assigned managed identity by client ID.
	UserAssignedID string
}

// Method returns a short label for the authentication method cfg selects.
func (cfg AzureConfig) Method() string {
	switch {
	case cfg.UseManagedIdentity && cfg.UserAssignedID != "":
		return "managed-identity(user-assigned)"
	case cfg.UseManagedIdentity:
		return "managed-identity"
	case cfg.TenantID != "" && cfg.ClientID != "" && cfg.ClientSecret != "":
		return "service-principal"
	default:
		return "default-chain"
	}
}

// Azure acquires tokens through azidentity.
type Azure struct {
	name       string
	credential azcore.TokenCredential
}

// NewAzure creates an Azure provider. No network call is made until
// AcquireToken.
func NewAzure(cfg AzureConfig) (*Azure, error) {
	cred, err := createAzureCredential(cfg)
	if err != nil {
		return nil, err
	}
	return newAzureFromCredential("azure:"+cfg.Method(), cred), nil
}

func newAzureFromCredential(name string, cred azcore.TokenCredential) *Azure {
	return &Azure{name: name, credential: cred}
}

func createAzureCredential(cfg AzureConfig) (azcore.TokenCredential, error) {
	var cred azcore.TokenCredential
	var err error

	switch {
	case cfg.UseManagedIdentity && cfg.UserAssignedID != "":
		cred, err = azidentity.NewManagedIdentityCredential(&azidentity.ManagedIdentityCredentialOptions{
			ID: azidentity.ClientID(cfg.UserAssignedID),
		})
	case cfg.UseManagedIdentity:
		cred, err = azidentity.NewManagedIdentityCredential(nil)
	case cfg.ClientSecret != "":
		if cfg.TenantID == "" || cfg.ClientID == "" {
			return nil, fmt.Errorf("tenant_id and client_id are required for service principal authentication")
		}
		cred, err = azidentity.NewClientSecretCredential(cfg.TenantID, cfg.ClientID, cfg.ClientSecret, nil)
	default:
		cred, err = azidentity.NewDefaultAzureCredential(nil)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}
	return cred, nil
}

// Name returns the provider name.
func (a *Azure) Name() string { return a.name }

// AcquireToken requests a token for scope.
func (a *Azure) AcquireToken(ctx context.Context, scope string) (Token, error) {
	tok, err := a.credential.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{scope}})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Token{}, ctxErr
		}
		return Token{}, &AuthenticationError{
			Provider:   a.name,
			Scope:      scope,
			StatusCode: azureAuthStatus(err),
			Err:        err,
		}
	}
	return Token{Value: tok.Token, ExpiresOn: tok.ExpiresOn}, nil
}

func azureAuthStatus(err error) int {
	var authErr *azidentity.AuthenticationFailedError
	if errors.As(err, &authErr) && authErr.RawResponse != nil {
		return authErr.RawResponse.StatusCode
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode
	}
	return 0
}
