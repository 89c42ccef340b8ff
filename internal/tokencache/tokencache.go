// Package tokencache caches OAuth access tokens per credential and
// coordinates refreshes so that concurrent callers for the same expired
// credential share a single upstream refresh call.
package tokencache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// RefreshSkew is how far ahead of expiry a token is treated as needing
// refresh.
const RefreshSkew = 60 * time.Second

// Entry is exclusively owned by the cache; callers receive copies, never a
// live reference (per the data model's ownership rule for B).
type Entry struct {
	CredentialID  string
	AccessToken   string
	ExpiresAt     time.Time
	LastRefreshAt time.Time
}

func (e Entry) needsRefresh(now time.Time) bool {
	return e.AccessToken == "" || now.Add(RefreshSkew).After(e.ExpiresAt)
}

// RefreshFunc performs the actual network call to obtain a fresh access
// token for a credential. Implementations live in internal/dispatch, one
// per provider family that uses OAuth.
type RefreshFunc func(ctx context.Context, credentialID string) (accessToken string, expiresAt time.Time, rotatedRefreshToken string, err error)

// RefreshFailedError wraps the upstream failure, distinguishing it from a
// request-path error.
type RefreshFailedError struct {
	CredentialID string
	Err          error
}

func (e *RefreshFailedError) Error() string {
	return fmt.Sprintf("refresh failed for credential %s: %v", e.CredentialID, e.Err)
}
func (e *RefreshFailedError) Unwrap() error { return e.Err }

// Cache holds one Entry per OAuth credential and coalesces concurrent
// refreshes for the same credential id through a singleflight.Group. This
// replaces a boolean "in-flight" flag: every caller attached to the same
// key observes the same result instead of erroring out while a refresh is
// already running, which is what Testable Property #4 requires.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry

	group singleflight.Group

	// OnRotatedRefreshToken, if set, is invoked after a successful refresh
	// that rotated the refresh token, so the credential store can persist
	// it. Optional.
	OnRotatedRefreshToken func(credentialID, newRefreshToken string)
}

// New creates an empty token cache.
func New() *Cache {
	return &Cache{entries: make(map[string]Entry)}
}

// Get returns the cached entry for a credential, if present.
func (c *Cache) Get(credentialID string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[credentialID]
	return e, ok
}

// Invalidate drops a cached entry, used on upstream 401/403 so the next
// call forces a fresh refresh.
func (c *Cache) Invalidate(credentialID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, credentialID)
}

// Set stores an entry directly, used when a credential is loaded from the
// store with a still-valid token.
func (c *Cache) Set(e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[e.CredentialID] = e
}

// GetOrRefresh returns a valid access token for credentialID, refreshing it
// through refresh if the cached entry is missing or within RefreshSkew of
// expiry. Concurrent callers for the same credentialID block on one shared
// refresh call and all observe its result — exactly one network call, per
// spec invariant #4.
func (c *Cache) GetOrRefresh(ctx context.Context, credentialID string, refresh RefreshFunc) (Entry, error) {
	c.mu.RLock()
	entry, ok := c.entries[credentialID]
	c.mu.RUnlock()

	if ok && !entry.needsRefresh(time.Now()) {
		return entry, nil
	}

	result, err, _ := c.group.Do(credentialID, func() (interface{}, error) {
		// Re-check under the singleflight key: another goroutine may have
		// refreshed while this one was waiting to enter Do.
		c.mu.RLock()
		entry, ok := c.entries[credentialID]
		c.mu.RUnlock()
		if ok && !entry.needsRefresh(time.Now()) {
			return entry, nil
		}

		accessToken, expiresAt, rotated, err := refresh(ctx, credentialID)
		if err != nil {
			return Entry{}, &RefreshFailedError{CredentialID: credentialID, Err: err}
		}

		fresh := Entry{
			CredentialID:  credentialID,
			AccessToken:   accessToken,
			ExpiresAt:     expiresAt,
			LastRefreshAt: time.Now(),
		}
		c.mu.Lock()
		c.entries[credentialID] = fresh
		c.mu.Unlock()

		if rotated != "" && c.OnRotatedRefreshToken != nil {
			c.OnRotatedRefreshToken(credentialID, rotated)
		}

		return fresh, nil
	})
	if err != nil {
		return Entry{}, err
	}
	return result.(Entry), nil
}
