package cache_test

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/tinywideclouds/go-pushrelay-service/internal/storage/cache"
	"github.com/tinywideclouds/go-pushrelay-service/pkg/dispatch"
)

// fillCached mimics RedisClient.Get by JSON-decoding into dest.
func fillCached(dest any, token string) error {
	raw, err := json.Marshal(map[string]string{"token": token})
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

// memCache is a map-backed CacheClient with Redis SET/SETNX/DEL semantics.
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte)}
}

func (c *memCache) Get(_ context.Context, key string, dest any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.data[key]
	if !ok {
		return cache.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *memCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = raw
	return nil
}

func (c *memCache) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.data[key]; ok {
		return false, nil
	}
	c.data[key] = raw
	return true, nil
}

func (c *memCache) Del(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

// gatedStore holds its first Lookup after reading the token until release
// is closed, signalling readDone once the read has happened.
type gatedStore struct {
	mu       sync.Mutex
	tokens   map[string]string
	gateOnce sync.Once
	readDone chan struct{}
	release  chan struct{}
}

func newGatedStore(tokens map[string]string) *gatedStore {
	return &gatedStore{
		tokens:   tokens,
		readDone: make(chan struct{}),
		release:  make(chan struct{}),
	}
}

func (s *gatedStore) Upsert(_ context.Context, pubKey, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[pubKey] = token
	return nil
}

func (s *gatedStore) Lookup(_ context.Context, pubKey string) (dispatch.Registration, error) {
	s.mu.Lock()
	tok, ok := s.tokens[pubKey]
	s.mu.Unlock()

	first := false
	s.gateOnce.Do(func() { first = true })
	if first {
		close(s.readDone)
		<-s.release
	}

	if !ok {
		return dispatch.Registration{}, dispatch.ErrNotFound
	}
	return dispatch.Registration{PubKey: pubKey, Token: tok}, nil
}
