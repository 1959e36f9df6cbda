// Package redis implements the cache contract on top of go-redis, with
// OpenTelemetry instrumentation enabled on the client.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
)

// ErrKeyNotFound is returned by Get when the key is absent.
var ErrKeyNotFound = errors.New("redis cache: key not found")

// Config holds all required info for initializing the redis driver.
type Config struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Database int32  `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// RedisCache holds the handler for the redis client and auxiliary info.
type RedisCache struct {
	client redis.UniversalClient
}

// NewCache inits a RedisCache instance and verifies connectivity.
func NewCache(config *Config) (*RedisCache, error) {
	if config == nil {
		config = getDefaultConfig()
	}

	addr := fmt.Sprintf("%s:%s", config.Host, config.Port)
	options := &redis.UniversalOptions{
		Addrs:    []string{addr},
		Username: config.Username,
		Password: config.Password,
		DB:       int(config.Database),
	}

	redisClient := redis.NewUniversalClient(options)

	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		return nil, fmt.Errorf("failed to instrument redis: %w", err)
	}
	if err := redisotel.InstrumentMetrics(redisClient); err != nil {
		return nil, fmt.Errorf("failed to instrument redis metrics: %w", err)
	}

	rc := RedisCache{
		client: redisClient,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := rc.client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("ping failed: %w", err)
	}

	return &rc, nil
}

func getDefaultConfig() *Config {
	return &Config{
		Username: "",
		Host:     "localhost",
		Port:     "6379",
		Database: 0,
		Password: "",
	}
}

// newFromClient is used by tests to wrap an already constructed client.
func newFromClient(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client}
}

// Set sets a key value pair in redis.
func (rc *RedisCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return rc.client.Set(ctx, key, value, ttl).Err()
}

// Get gets a value from redis, ErrKeyNotFound on a miss.
func (rc *RedisCache) Get(ctx context.Context, key string) (interface{}, error) {
	val, err := rc.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// GetByPattern returns all entries whose key matches the glob pattern, using
// SCAN followed by a single MGET round trip.
func (rc *RedisCache) GetByPattern(ctx context.Context, keyPattern string) (map[string]interface{}, error) {
	var keys []string
	iter := rc.client.Scan(ctx, 0, keyPattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}

	if len(keys) == 0 {
		return make(map[string]interface{}), nil
	}

	vals, err := rc.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	// Keys may expire between SCAN and MGET; skip their nil values.
	values := make(map[string]interface{}, len(keys))
	for i, key := range keys {
		if vals[i] != nil {
			values[key] = vals[i]
		}
	}

	return values, nil
}

// Delete deletes a key from redis.
func (rc *RedisCache) Delete(ctx context.Context, key string) error {
	return rc.client.Del(ctx, key).Err()
}

// Disconnect closes the connection to the redis server.
func (rc *RedisCache) Disconnect() error {
	return rc.client.Close()
}
