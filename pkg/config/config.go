// Package config loads the application configuration from yaml files under
// $WORKDIR/appconfig using viper. LoadConfig merges default.yaml with the
// environment-specific overlay when one exists.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pulsetrack/conditioning/pkg/cache"
	"github.com/spf13/viper"
)

// App identifies the running service.
type App struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// Server holds the HTTP listener settings.
type Server struct {
	Port int `mapstructure:"port"`
}

// Log holds logger settings.
type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Storage configures the remote log storage service client. When Enabled is
// false the log repository runs against the cache-backed local store.
type Storage struct {
	Enabled    bool          `mapstructure:"enabled"`
	BaseURL    string        `mapstructure:"baseURL"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RetryCount int           `mapstructure:"retryCount"`
}

// Compensation holds the rollback retry policy shared by the orchestrator's
// compensating actions.
type Compensation struct {
	Attempts int           `mapstructure:"attempts"`
	Delay    time.Duration `mapstructure:"delay"`
}

// AppConfig is the root configuration object.
type AppConfig struct {
	App          App          `mapstructure:"app"`
	Server       Server       `mapstructure:"server"`
	Log          Log          `mapstructure:"log"`
	Cache        cache.Config `mapstructure:"cache"`
	Storage      Storage      `mapstructure:"storage"`
	Compensation Compensation `mapstructure:"compensation"`
}

var appConfig *AppConfig

// LoadConfig reads default.yaml plus the <environment>.yaml overlay from
// $WORKDIR/appconfig and caches the result for GetConfig.
func LoadConfig(environment string) (*AppConfig, error) {
	workDir := os.Getenv("WORKDIR")
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		workDir = wd
	}
	configDir := filepath.Join(workDir, "appconfig")

	v := viper.New()
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)

	v.SetConfigName("default")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading default config: %w", err)
	}

	if environment != "" && environment != "default" {
		v.SetConfigName(environment)
		if err := v.MergeInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("merging %s config: %w", environment, err)
			}
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	cfg.applyDefaults()

	appConfig = cfg
	return cfg, nil
}

// GetConfig returns the last loaded configuration.
func GetConfig() *AppConfig {
	return appConfig
}

func (c *AppConfig) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Compensation.Attempts == 0 {
		c.Compensation.Attempts = 5
	}
	if c.Compensation.Delay == 0 {
		c.Compensation.Delay = 500 * time.Millisecond
	}
	if c.Storage.Timeout == 0 {
		c.Storage.Timeout = 10 * time.Second
	}
	if c.Storage.RetryCount == 0 {
		c.Storage.RetryCount = 3
	}
}
