package credential

import (
	"context"
	"errors"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
)

// TokenCredential adapts p to azcore.TokenCredential for Azure SDK clients.
func TokenCredential(p Provider) azcore.TokenCredential {
	return &tokenCredential{provider: p}
}

type tokenCredential struct {
	provider Provider
}

func (t *tokenCredential) GetToken(ctx context.Context, opts policy.TokenRequestOptions) (azcore.AccessToken, error) {
	if len(opts.Scopes) == 0 {
		return azcore.AccessToken{}, errors.New("no scope requested")
	}
	tok, err := t.provider.AcquireToken(ctx, opts.Scopes[0])
	if err != nil {
		return azcore.AccessToken{}, err
	}
	expires := tok.ExpiresOn
	if expires.IsZero() {
		// azcore refreshes tokens near ExpiresOn; static tokens never expire.
		expires = time.Now().Add(24 * time.Hour)
	}
	return azcore.AccessToken{Token: tok.Value, ExpiresOn: expires}, nil
}
