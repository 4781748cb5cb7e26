// Package config provides configuration management for the geospatial
// catalog service.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds the complete application configuration loaded from environment variables.
type Config struct {
	Server   ServerConfig  `envPrefix:"SERVER_"`
	Store    StoreConfig   `envPrefix:"STORE_"`
	STAC     STACConfig    `envPrefix:"STAC_"`
	Features FeatureConfig `envPrefix:"FEATURE_"`
	Logging  LoggingConfig `envPrefix:"LOG_"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host            string        `env:"HOST" envDefault:"0.0.0.0"`
	Port            int           `env:"PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// StoreConfig contains item store selection and connection configuration.
type StoreConfig struct {
	// Type specifies which store to use: "memory" or "postgres"
	Type string `env:"TYPE" envDefault:"memory"`

	// DSN is the PostgreSQL connection string, required for the postgres store.
	DSN string `env:"DSN" envDefault:""`

	// Migrate applies the schema at startup when true.
	Migrate bool `env:"MIGRATE" envDefault:"true"`

	// SeedPath points at a JSON catalog loaded into the memory store at
	// startup. Empty means start empty.
	SeedPath string `env:"SEED_PATH" envDefault:""`

	// Collection cache sizing.
	CacheSize int           `env:"CACHE_SIZE" envDefault:"256"`
	CacheTTL  time.Duration `env:"CACHE_TTL" envDefault:"5m"`
}

// STACConfig contains STAC API metadata configuration.
type STACConfig struct {
	Version     string `env:"VERSION" envDefault:"1.0.0"`
	BaseURL     string `env:"BASE_URL"` // Public-facing URL (required)
	ID          string `env:"ID" envDefault:"geocatalog"`
	Title       string `env:"TITLE" envDefault:"Geospatial Catalog API"`
	Description string `env:"DESCRIPTION" envDefault:"Searchable catalog of geospatial assets"`
}

// FeatureConfig contains feature flags and limits.
type FeatureConfig struct {
	EnableSearch     bool `env:"ENABLE_SEARCH" envDefault:"true"`
	EnableQueryables bool `env:"ENABLE_QUERYABLES" envDefault:"true"`
	EnableFilter     bool `env:"ENABLE_FILTER" envDefault:"true"`
	EnableSortby     bool `env:"ENABLE_SORTBY" envDefault:"true"`
	EnableFields     bool `env:"ENABLE_FIELDS" envDefault:"true"`
	DefaultLimit     int  `env:"DEFAULT_LIMIT" envDefault:"10"`
	MaxLimit         int  `env:"MAX_LIMIT" envDefault:"250"`

	// FetchBatchCap bounds the store batch size used when filters are
	// evaluated in process.
	FetchBatchCap int `env:"FETCH_BATCH_CAP" envDefault:"1000"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
}

// Load parses configuration from environment variables.
// It returns an error if required fields are missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}

	opts := env.Options{
		RequiredIfNoDef: true,
	}

	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive, got %s", c.Server.ReadTimeout)
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive, got %s", c.Server.WriteTimeout)
	}

	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server shutdown timeout must be positive, got %s", c.Server.ShutdownTimeout)
	}

	// Validate store config
	switch c.Store.Type {
	case "memory":
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store DSN is required for the postgres store")
		}
	default:
		return fmt.Errorf("store type must be 'memory' or 'postgres', got %q", c.Store.Type)
	}

	if c.Store.CacheSize < 1 {
		return fmt.Errorf("store cache size must be at least 1, got %d", c.Store.CacheSize)
	}

	if c.Store.CacheTTL <= 0 {
		return fmt.Errorf("store cache TTL must be positive, got %s", c.Store.CacheTTL)
	}

	// Validate STAC config
	if c.STAC.BaseURL == "" {
		return fmt.Errorf("STAC base URL is required")
	}

	if c.STAC.Version == "" {
		return fmt.Errorf("STAC version is required")
	}

	// Validate feature config
	if c.Features.DefaultLimit < 1 {
		return fmt.Errorf("default limit must be at least 1, got %d", c.Features.DefaultLimit)
	}

	if c.Features.MaxLimit < c.Features.DefaultLimit {
		return fmt.Errorf("max limit (%d) must be >= default limit (%d)", c.Features.MaxLimit, c.Features.DefaultLimit)
	}

	if c.Features.FetchBatchCap < c.Features.MaxLimit {
		return fmt.Errorf("fetch batch cap (%d) must be >= max limit (%d)", c.Features.FetchBatchCap, c.Features.MaxLimit)
	}

	// Validate logging config
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format %q, must be one of: json, text", c.Logging.Format)
	}

	return nil
}

// Address returns the server listen address in the format "host:port".
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
