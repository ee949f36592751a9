package retry

import (
	"context"
	"sync"
	"time"
)

// Credential is a lease: a bearer token plus the instant it stops being valid.
type Credential struct {
	Token     string
	ExpiresAt time.Time
}

// ValidAt reports whether the credential can still be used at ts.
func (c Credential) ValidAt(ts time.Time) bool {
	return c.Token != "" && ts.Before(c.ExpiresAt)
}

// CredentialCache hands out a cached credential and refreshes it at most once
// at a time once it nears expiry. It replaces ad-hoc process-global tokens:
// the cache is constructed once and passed to whoever needs the credential.
type CredentialCache struct {
	mu      sync.Mutex
	current Credential
	refresh func(ctx context.Context) (Credential, error)
	// skew renews the credential slightly before its stated expiry so a
	// request never departs with a token about to lapse mid-flight.
	skew time.Duration
}

func NewCredentialCache(refresh func(ctx context.Context) (Credential, error)) *CredentialCache {
	return &CredentialCache{
		refresh: refresh,
		skew:    30 * time.Second,
	}
}

// Get returns a valid token, refreshing if needed. Concurrent callers share
// one refresh; they queue on the mutex and find the fresh credential in place.
func (c *CredentialCache) Get(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current.ValidAt(time.Now().Add(c.skew)) {
		return c.current.Token, nil
	}

	cred, err := c.refresh(ctx)
	if err != nil {
		return "", err
	}
	c.current = cred
	return cred.Token, nil
}

// Invalidate drops the cached credential, forcing the next Get to refresh;
// callers use it after an authorization rejection.
func (c *CredentialCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = Credential{}
}
