package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pulseops-lab/pulseops/internal/cache"
	httperr "github.com/pulseops-lab/pulseops/internal/core/errors"
	"github.com/pulseops-lab/pulseops/internal/core/storage"
	"golang.org/x/sync/singleflight"
)

// CacheObserver is told whether each lookup was served from the cache.
type CacheObserver func(hit bool)

// APIKeyAuthenticator resolves keys cache-first, falling back to the store.
// Concurrent misses for the same key share one store lookup.
type APIKeyAuthenticator struct {
	keys     storage.APIKeyStore
	cache    cache.Cache
	ttl      time.Duration
	group    singleflight.Group
	observer CacheObserver
}

var _ Authenticator = (*APIKeyAuthenticator)(nil)

func NewAPIKeyAuthenticator(keys storage.APIKeyStore, c cache.Cache, ttl time.Duration) *APIKeyAuthenticator {
	if keys == nil {
		panic("auth: api key store must not be nil")
	}
	return &APIKeyAuthenticator{keys: keys, cache: c, ttl: ttl}
}

// SetCacheObserver installs a hit/miss hook. Call before serving traffic.
func (a *APIKeyAuthenticator) SetCacheObserver(obs CacheObserver) {
	a.observer = obs
}

func (a *APIKeyAuthenticator) Authenticate(ctx context.Context, credential string) (Principal, error) {
	if credential == "" {
		return Principal{}, httperr.ErrMissingCredential
	}

	cacheKey := cacheKeyFor(credential)
	if p, ok := a.fromCache(ctx, cacheKey); ok {
		a.observe(true)
		return p, nil
	}
	a.observe(false)

	v, err, _ := a.group.Do(cacheKey, func() (interface{}, error) {
		rec, err := a.keys.LookupAPIKey(ctx, credential)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, httperr.ErrInvalidCredential
		}
		if err != nil {
			return nil, fmt.Errorf("%w: api key lookup: %v", httperr.ErrTransient, err)
		}
		if !rec.Active {
			return nil, httperr.ErrInvalidCredential
		}

		p := Principal{KeyID: rec.ID, OrgID: rec.OrgID, ProjectID: rec.ProjectID}
		a.toCache(ctx, cacheKey, p)
		return p, nil
	})
	if err != nil {
		return Principal{}, err
	}
	return v.(Principal), nil
}

func (a *APIKeyAuthenticator) Invalidate(ctx context.Context, credential string) error {
	if a.cache == nil {
		return nil
	}
	if err := a.cache.Delete(ctx, cacheKeyFor(credential)); err != nil {
		return fmt.Errorf("failed to invalidate api key: %w", err)
	}
	return nil
}

func (a *APIKeyAuthenticator) fromCache(ctx context.Context, key string) (Principal, bool) {
	if a.cache == nil {
		return Principal{}, false
	}
	b, ok, err := a.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("[Auth] Cache read failed, falling back to store", "error", err)
		return Principal{}, false
	}
	if !ok {
		return Principal{}, false
	}
	var p Principal
	if err := json.Unmarshal(b, &p); err != nil || p.OrgID == "" {
		slog.Warn("[Auth] Discarding corrupt cache entry", "error", err)
		return Principal{}, false
	}
	return p, true
}

func (a *APIKeyAuthenticator) toCache(ctx context.Context, key string, p Principal) {
	if a.cache == nil {
		return
	}
	b, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := a.cache.Set(ctx, key, b, a.ttl); err != nil {
		slog.Warn("[Auth] Cache write failed", "error", err)
	}
}

func (a *APIKeyAuthenticator) observe(hit bool) {
	if a.observer != nil {
		a.observer(hit)
	}
}

// cacheKeyFor never puts the raw credential in the cache.
func cacheKeyFor(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return "apikey:" + hex.EncodeToString(sum[:])
}
