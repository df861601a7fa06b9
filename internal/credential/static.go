package credential

import (
	"context"
	"errors"
)

// Static returns a fixed token for every scope.
type Static struct {
	name  string
	token string
}

// NewStatic creates a provider that always returns token.
func NewStatic(name, token string) *Static {
	return &Static{name: name, token: token}
}

func (s *Static) Name() string { return s.name }

func (s *Static) AcquireToken(ctx context.Context, scope string) (Token, error) {
	if err := ctx.Err(); err != nil {
		return Token{}, err
	}
	if s.token == "" {
		return Token{}, &AuthenticationError{
			Provider: s.name,
			Scope:    scope,
			Err:      errors.New("no token configured"),
		}
	}
	return Token{Value: s.token}, nil
}
