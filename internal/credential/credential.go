// Package credential acquires bearer tokens for secret store clients.
//
// Token acquisition is opaque to the rest of secretxfer: stores receive a
// Provider at construction and call it lazily on first use.
package credential

import (
	"context"
	"fmt"
	"time"
)

// Token is an access token and its expiry.
type Token struct {
	Value     string
	ExpiresOn time.Time
}

// Expired reports whether the token has expired at now.
func (t Token) Expired(now time.Time) bool {
	return t.Value == "" || (!t.ExpiresOn.IsZero() && !now.Before(t.ExpiresOn))
}

// Provider acquires tokens for a scope.
type Provider interface {
	// Name identifies the provider in logs and errors.
	Name() string

	// AcquireToken returns a token for scope or an *AuthenticationError.
	AcquireToken(ctx context.Context, scope string) (Token, error)
}

// AuthenticationError indicates that a token could not be acquired.
//
// StatusCode is the HTTP status returned by the identity endpoint, or 0 when
// the failure happened before a response was received.
type AuthenticationError struct {
	Provider   string
	Scope      string
	StatusCode int
	Err        error
}

func (e *AuthenticationError) Error() string {
	msg := fmt.Sprintf("authentication failed for %s", e.Provider)
	if e.Scope != "" {
		msg += fmt.Sprintf(" (scope %s)", e.Scope)
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthenticationError) Unwrap() error { return e.Err }
