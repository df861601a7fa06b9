package credential

import (
	"context"
	"sync"
	"time"
)

// refreshBuffer is subtracted from token lifetimes so tokens are refreshed
// before they actually expire.
const refreshBuffer = 5 * time.Second

// TokenCache stores tokens in memory keyed by scope.
// Tokens are never persisted to disk.
type TokenCache struct {
	mu     sync.RWMutex
	tokens map[string]Token
	now    func() time.Time
}

// NewTokenCache creates an empty token cache.
func NewTokenCache() *TokenCache {
	return &TokenCache{tokens: make(map[string]Token), now: time.Now}
}

// Get returns the cached token for scope if it is still valid.
func (c *TokenCache) Get(scope string) (Token, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tok, ok := c.tokens[scope]
	if !ok || tok.Expired(c.now()) {
		return Token{}, false
	}
	return tok, true
}

// Set stores tok for scope. Tokens with an expiry are shortened by a small
// buffer; tokens without one never expire.
func (c *TokenCache) Set(scope string, tok Token) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !tok.ExpiresOn.IsZero() && tok.ExpiresOn.Sub(c.now()) > refreshBuffer {
		tok.ExpiresOn = tok.ExpiresOn.Add(-refreshBuffer)
	}
	c.tokens[scope] = tok
}

// Cached wraps a Provider so each scope is acquired once per token lifetime.
type Cached struct {
	inner Provider
	cache *TokenCache

	// serializes acquisition so concurrent callers share one request
	mu sync.Mutex
}

// NewCached wraps p with a per-scope token cache.
func NewCached(p Provider) *Cached {
	return &Cached{inner: p, cache: NewTokenCache()}
}

func (c *Cached) Name() string { return c.inner.Name() }

func (c *Cached) AcquireToken(ctx context.Context, scope string) (Token, error) {
	if tok, ok := c.cache.Get(scope); ok {
		return tok, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if tok, ok := c.cache.Get(scope); ok {
		return tok, nil
	}

	tok, err := c.inner.AcquireToken(ctx, scope)
	if err != nil {
		return Token{}, err
	}
	c.cache.Set(scope, tok)
	return tok, nil
}
