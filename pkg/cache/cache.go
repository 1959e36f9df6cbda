// Package cache defines the key/value cache interface backing the
// repositories, with in-memory and redis drivers selected by configuration.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pulsetrack/conditioning/pkg/cache/inmemory"
	"github.com/pulsetrack/conditioning/pkg/cache/redis"
)

const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

// IsKeyNotFound reports whether err signals a cache miss, regardless of the
// driver that produced it.
func IsKeyNotFound(err error) bool {
	return errors.Is(err, inmemory.ErrKeyNotFound) || errors.Is(err, redis.ErrKeyNotFound)
}

// Cache is the backend-agnostic key/value contract. Values are serialized
// strings; pattern lookups use glob-style patterns ("log:*").
type Cache interface {
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (interface{}, error)
	GetByPattern(ctx context.Context, keyPattern string) (map[string]interface{}, error)
	Delete(ctx context.Context, key string) error
	Disconnect() error
}

// Config selects and configures a cache driver.
type Config struct {
	Driver   string           `mapstructure:"driver"`
	InMemory *inmemory.Config `mapstructure:"inmemory"`
	Redis    *redis.Config    `mapstructure:"redis"`
}

// New builds a Cache for the configured driver.
func New(cfg *Config) (Cache, error) {
	if cfg == nil {
		return nil, errors.New("cache config is nil")
	}
	switch cfg.Driver {
	case DriverMemory, "":
		return inmemory.NewCache(cfg.InMemory)
	case DriverRedis:
		return redis.NewCache(cfg.Redis)
	default:
		return nil, fmt.Errorf("unsupported cache driver: %q", cfg.Driver)
	}
}
