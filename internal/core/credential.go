package core

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// TokenSource supplies the bearer token presented to the controller.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Token is an acquired bearer token. A zero ExpiresAt means the token
// does not expire on its own.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// TokenAcquirer performs whatever handshake produces a Token.
type TokenAcquirer interface {
	Acquire(ctx context.Context) (Token, error)
}

// CredentialKey identifies a cached credential.
type CredentialKey struct {
	ClientID  string
	Authority string
}

func (k CredentialKey) String() string {
	return k.ClientID + "@" + k.Authority
}

// TokenCache caches acquired tokens per CredentialKey. It is owned by
// the composition root and shared by the token sources it hands out.
type TokenCache struct {
	ttl time.Duration

	mu      sync.RWMutex
	entries map[CredentialKey]*tokenCacheEntry
	flights singleflight.Group
}

type tokenCacheEntry struct {
	token     string
	expiresAt time.Time
}

// tokenFetchTimeout bounds a cache-miss acquisition. It runs detached
// from the caller so that one cancellation does not fail every waiter.
const tokenFetchTimeout = 30 * time.Second

// NewTokenCache returns a cache that keeps tokens for at most ttl.
func NewTokenCache(ttl time.Duration) *TokenCache {
	return &TokenCache{
		ttl:     ttl,
		entries: make(map[CredentialKey]*tokenCacheEntry),
	}
}

// Token returns the cached token for key or acquires a new one.
// Concurrent misses for the same key share one acquisition.
func (c *TokenCache) Token(ctx context.Context, key CredentialKey, acquirer TokenAcquirer) (string, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && time.Now().Before(entry.expiresAt) {
		return entry.token, nil
	}

	v, err, _ := c.flights.Do(key.String(), func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), tokenFetchTimeout)
		defer cancel()

		tok, err := acquirer.Acquire(fetchCtx)
		if err != nil {
			return nil, err
		}

		expiresAt := time.Now().Add(c.ttl)
		if !tok.ExpiresAt.IsZero() && tok.ExpiresAt.Before(expiresAt) {
			expiresAt = tok.ExpiresAt
		}

		c.mu.Lock()
		c.entries[key] = &tokenCacheEntry{token: tok.Value, expiresAt: expiresAt}
		c.mu.Unlock()

		return tok.Value, nil
	})
	if err != nil {
		return "", err
	}

	return v.(string), nil
}

// Invalidate drops the cached token for key, e.g. after the
// controller rejected it.
func (c *TokenCache) Invalidate(key CredentialKey) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// StartEvictionLoop periodically removes expired entries. It blocks
// until ctx is cancelled.
func (c *TokenCache) StartEvictionLoop(ctx context.Context, interval time.Duration) {
	log := slog.Default().With("component", "token-cache-evictor")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if evicted := c.evictExpired(); evicted > 0 {
				log.Info("evicted expired tokens", "count", evicted)
			}
		}
	}
}

func (c *TokenCache) evictExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	evicted := 0
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
			evicted++
		}
	}
	return evicted
}

// CachedTokenSource binds a cache, a key and an acquirer into a
// TokenSource.
type CachedTokenSource struct {
	cache    *TokenCache
	key      CredentialKey
	acquirer TokenAcquirer
}

func NewCachedTokenSource(cache *TokenCache, key CredentialKey, acquirer TokenAcquirer) *CachedTokenSource {
	return &CachedTokenSource{cache: cache, key: key, acquirer: acquirer}
}

func (s *CachedTokenSource) Token(ctx context.Context) (string, error) {
	return s.cache.Token(ctx, s.key, s.acquirer)
}
