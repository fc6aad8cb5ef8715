package services

import (
	"context"
	"sync"
	"time"

	"github.com/Misty-clouds/eurobankv2/utils"
)

// Authenticator is the slice of PaymentProcessor the token cache needs
type Authenticator interface {
	Authenticate(ctx context.Context) (*AuthResult, error)
}

// TokenCache memoizes the processor bearer token so the dispatcher does not
// re-authenticate for every batch. The cached lifetime is capped at
// ProcessorTokenTTL, below the processor's advertised 24h, which absorbs
// clock skew between the two sides.
type TokenCache struct {
	auth Authenticator

	mu        sync.Mutex
	token     string
	expiresAt time.Time

	now func() time.Time
}

// NewTokenCache creates a token cache around the given authenticator
func NewTokenCache(auth Authenticator) *TokenCache {
	return &TokenCache{
		auth: auth,
		now:  utils.UTCNow,
	}
}

// Token returns a valid bearer token, fetching a fresh one when the cached
// token is missing or expired.
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expiresAt) {
		return c.token, nil
	}

	res, err := c.auth.Authenticate(ctx)
	if err != nil {
		return "", err
	}

	ttl := res.ExpiresIn
	if ttl <= 0 || ttl > utils.ProcessorTokenTTL {
		ttl = utils.ProcessorTokenTTL
	}

	c.token = res.Token
	c.expiresAt = c.now().Add(ttl)
	return c.token, nil
}

// Invalidate drops the cached token, forcing the next Token call to
// re-authenticate. Called when the processor rejects the bearer.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.expiresAt = time.Time{}
}
