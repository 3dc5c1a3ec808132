package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tinywideclouds/go-pushrelay-service/pkg/dispatch"
)

// ErrCacheMiss is returned by CacheClient.Get when the key does not exist.
var ErrCacheMiss = errors.New("cache miss")

// CacheClient defines the subset of Redis commands we need.
type CacheClient interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	// SetNX stores value only if key is absent and reports whether it did.
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, key string) error
}

// cachedToken is what we keep in Redis; the key already carries the identity.
type cachedToken struct {
	Token     string    `json:"token"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CachedRegistry is a decorator that adds read-aside caching to any Registry.
type CachedRegistry struct {
	realStore dispatch.Registry
	cache     CacheClient
	ttl       time.Duration
	logger    *slog.Logger
}

func NewCachedRegistry(realStore dispatch.Registry, cache CacheClient, ttl time.Duration, logger *slog.Logger) *CachedRegistry {
	return &CachedRegistry{
		realStore: realStore,
		cache:     cache,
		ttl:       ttl,
		logger:    logger.With("component", "CachedRegistry"),
	}
}

// Lookup tries the cache first and falls back to the source of truth.
// NotFound results are never cached. The store result is written with SETNX
// so a read that raced a concurrent Upsert cannot replace the newer token.
func (s *CachedRegistry) Lookup(ctx context.Context, pubKey string) (dispatch.Registration, error) {
	key := s.cacheKey(pubKey)

	var hit cachedToken
	err := s.cache.Get(ctx, key, &hit)
	if err == nil && hit.Token != "" {
		return dispatch.Registration{PubKey: pubKey, Token: hit.Token, UpdatedAt: hit.UpdatedAt}, nil
	}
	if err != nil && !errors.Is(err, ErrCacheMiss) {
		s.logger.Warn("Cache read failed, falling back to store", "err", err)
	}

	reg, err := s.realStore.Lookup(ctx, pubKey)
	if err != nil {
		return dispatch.Registration{}, err
	}

	stored, err := s.cache.SetNX(ctx, key, cachedToken{Token: reg.Token, UpdatedAt: reg.UpdatedAt}, s.ttl)
	if err != nil {
		s.logger.Warn("Cache populate failed", "err", err)
	} else if !stored {
		s.logger.Debug("Cache already populated by a newer write", "pub_key", pubKey)
	}
	return reg, nil
}

// Upsert writes to the source of truth, then overwrites the cached token.
// If the cache cannot be updated the key is dropped instead; when neither
// works the rotated-out token could still be served, so the registration
// fails.
func (s *CachedRegistry) Upsert(ctx context.Context, pubKey, token string) error {
	if err := s.realStore.Upsert(ctx, pubKey, token); err != nil {
		return err
	}
	key := s.cacheKey(pubKey)
	setErr := s.cache.Set(ctx, key, cachedToken{Token: token, UpdatedAt: time.Now().UTC()}, s.ttl)
	if setErr == nil {
		return nil
	}
	s.logger.Warn("Cache write failed, dropping key", "err", setErr)
	if err := s.cache.Del(ctx, key); err != nil {
		return fmt.Errorf("%w: cache update: %v", dispatch.ErrRegistrationFailed, errors.Join(setErr, err))
	}
	return nil
}

func (s *CachedRegistry) cacheKey(pubKey string) string {
	return fmt.Sprintf("pushrelay:token:%s", pubKey)
}
