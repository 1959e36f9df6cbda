// Package inmemory implements the cache contract on top of
// patrickmn/go-cache for single-process deployments and tests.
package inmemory

import (
	"context"
	"errors"
	"path"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// ErrKeyNotFound is returned by Get when the key is absent.
var ErrKeyNotFound = errors.New("inmemory cache: key not found")

// Config holds expiration settings in seconds. Values <= 0 disable
// expiration and cleanup respectively.
type Config struct {
	DefaultExpiration int32 `mapstructure:"defaultExpiration"`
	CleanupInterval   int32 `mapstructure:"cleanupInterval"`
}

// InMemoryCache wraps a go-cache instance.
type InMemoryCache struct {
	store *gocache.Cache
}

// NewCache inits an InMemoryCache instance.
func NewCache(config *Config) (*InMemoryCache, error) {
	if config == nil {
		config = &Config{DefaultExpiration: -1, CleanupInterval: -1}
	}
	defaultExpiration := time.Duration(config.DefaultExpiration) * time.Second
	cleanupInterval := time.Duration(config.CleanupInterval) * time.Second
	if config.DefaultExpiration <= 0 {
		defaultExpiration = gocache.NoExpiration
	}
	if config.CleanupInterval <= 0 {
		cleanupInterval = 0
	}
	return &InMemoryCache{
		store: gocache.New(defaultExpiration, cleanupInterval),
	}, nil
}

// Set stores a key value pair, ttl 0 means the default expiration.
func (c *InMemoryCache) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	c.store.Set(key, value, ttl)
	return nil
}

// Get returns the value for key or ErrKeyNotFound.
func (c *InMemoryCache) Get(_ context.Context, key string) (interface{}, error) {
	val, found := c.store.Get(key)
	if !found {
		return nil, ErrKeyNotFound
	}
	return val, nil
}

// GetByPattern returns all entries whose key matches the glob pattern.
func (c *InMemoryCache) GetByPattern(_ context.Context, keyPattern string) (map[string]interface{}, error) {
	values := make(map[string]interface{})
	for key, item := range c.store.Items() {
		matched, err := path.Match(keyPattern, key)
		if err != nil {
			return nil, err
		}
		if matched {
			values[key] = item.Object
		}
	}
	return values, nil
}

// Delete removes a key. Deleting a missing key is not an error.
func (c *InMemoryCache) Delete(_ context.Context, key string) error {
	c.store.Delete(key)
	return nil
}

// Disconnect flushes the store.
func (c *InMemoryCache) Disconnect() error {
	c.store.Flush()
	return nil
}
