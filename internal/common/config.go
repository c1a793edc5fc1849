package common

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for dsefeed
type Config struct {
	Environment string         `toml:"environment"`
	Server      ServerConfig   `toml:"server"`
	Upstream    UpstreamConfig `toml:"upstream"`
	Cache       CacheConfig    `toml:"cache"`
	Refresh     RefreshConfig  `toml:"refresh"`
	Logging     LoggingConfig  `toml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

// UpstreamConfig describes the exchange website the pages are scraped from.
type UpstreamConfig struct {
	BaseURL         string `toml:"base_url"`
	FetchTimeout    string `toml:"fetch_timeout"`
	FetchMaxRetries int    `toml:"fetch_max_retries"`
	RateLimit       int    `toml:"rate_limit"` // requests per second
	MaxBodyMB       int    `toml:"max_body_mb"`
	ChunkDays       int    `toml:"archive_chunk_days"` // widest range per archive request
}

// GetMaxBodyBytes returns the page body limit in bytes
func (c *UpstreamConfig) GetMaxBodyBytes() int64 {
	if c.MaxBodyMB <= 0 {
		return 64 << 20
	}
	return int64(c.MaxBodyMB) << 20
}

// GetFetchTimeout parses and returns the per-request timeout
func (c *UpstreamConfig) GetFetchTimeout() time.Duration {
	return parseDuration(c.FetchTimeout, 10*time.Second)
}

// CacheConfig holds the freshness window of every view.
type CacheConfig struct {
	TTLLatest     string `toml:"ttl_latest"`
	TTLDsex       string `toml:"ttl_dsex"`
	TTLTop30      string `toml:"ttl_top30"`
	TTLHistorical string `toml:"ttl_historical"`
	HistoryDays   int    `toml:"history_days"` // width of the cached historical window
}

// GetTTLLatest parses the latest-snapshot TTL
func (c *CacheConfig) GetTTLLatest() time.Duration {
	return parseDuration(c.TTLLatest, FreshnessLatest)
}

// GetTTLDsex parses the DSEX TTL
func (c *CacheConfig) GetTTLDsex() time.Duration {
	return parseDuration(c.TTLDsex, FreshnessDsex)
}

// GetTTLTop30 parses the top-30 TTL
func (c *CacheConfig) GetTTLTop30() time.Duration {
	return parseDuration(c.TTLTop30, FreshnessTop30)
}

// GetTTLHistorical parses the historical TTL
func (c *CacheConfig) GetTTLHistorical() time.Duration {
	return parseDuration(c.TTLHistorical, FreshnessHistorical)
}

// RefreshConfig controls the coordinator and the background scheduler.
type RefreshConfig struct {
	RequestTimeout     string `toml:"request_timeout"`     // caller-facing bound on get-or-fetch
	RefreshTimeout     string `toml:"refresh_timeout"`     // budget of one detached refresh
	Interval           string `toml:"interval"`            // snapshot views, trading hours only
	HistoricalInterval string `toml:"historical_interval"` // historical window
	HistoricalTimeout  string `toml:"historical_timeout"`  // budget of one chunked historical load
}

// GetRequestTimeout parses the caller-facing timeout
func (c *RefreshConfig) GetRequestTimeout() time.Duration {
	return parseDuration(c.RequestTimeout, 15*time.Second)
}

// GetRefreshTimeout parses the detached refresh budget
func (c *RefreshConfig) GetRefreshTimeout() time.Duration {
	return parseDuration(c.RefreshTimeout, 60*time.Second)
}

// GetHistoricalTimeout parses the historical load budget
func (c *RefreshConfig) GetHistoricalTimeout() time.Duration {
	return parseDuration(c.HistoricalTimeout, 5*time.Minute)
}

// GetInterval parses the snapshot refresh interval
func (c *RefreshConfig) GetInterval() time.Duration {
	return parseDuration(c.Interval, 60*time.Second)
}

// GetHistoricalInterval parses the historical refresh interval
func (c *RefreshConfig) GetHistoricalInterval() time.Duration {
	return parseDuration(c.HistoricalInterval, 6*time.Hour)
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "console" or "json"
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           3000,
			AllowedOrigins: []string{"*"},
		},
		Upstream: UpstreamConfig{
			BaseURL:         "https://www.dsebd.org",
			FetchTimeout:    "10s",
			FetchMaxRetries: 2,
			RateLimit:       2,
			MaxBodyMB:       64,
			ChunkDays:       31,
		},
		Cache: CacheConfig{
			TTLLatest:     "60s",
			TTLDsex:       "60s",
			TTLTop30:      "60s",
			TTLHistorical: "6h",
			HistoryDays:   400,
		},
		Refresh: RefreshConfig{
			RequestTimeout:     "15s",
			RefreshTimeout:     "60s",
			Interval:           "60s",
			HistoricalInterval: "6h",
			HistoricalTimeout:  "5m",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig loads configuration from files with environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Later files override earlier ones
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue // Skip missing files
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("NODE_ENV"); env != "" {
		config.Environment = env
	}
	if env := os.Getenv("DSEFEED_ENV"); env != "" {
		config.Environment = env
	}

	if host := os.Getenv("DSEFEED_HOST"); host != "" {
		config.Server.Host = host
	}

	// PORT is what most hosting platforms inject; DSEFEED_PORT wins when both are set
	for _, name := range []string{"PORT", "DSEFEED_PORT"} {
		if port := os.Getenv(name); port != "" {
			if p, err := strconv.Atoi(port); err == nil {
				config.Server.Port = p
			}
		}
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		parts := strings.Split(origins, ",")
		list := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				list = append(list, p)
			}
		}
		if len(list) > 0 {
			config.Server.AllowedOrigins = list
		}
	}

	if level := os.Getenv("DSEFEED_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("DSEFEED_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}

	if v := os.Getenv("DSEFEED_UPSTREAM_BASE_URL"); v != "" {
		config.Upstream.BaseURL = strings.TrimRight(v, "/")
	}
	if v := os.Getenv("DSEFEED_FETCH_TIMEOUT"); v != "" {
		config.Upstream.FetchTimeout = v
	}
	if v := os.Getenv("DSEFEED_FETCH_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Upstream.FetchMaxRetries = n
		}
	}
	if v := os.Getenv("DSEFEED_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Upstream.RateLimit = n
		}
	}

	if v := os.Getenv("DSEFEED_MAX_BODY_MB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Upstream.MaxBodyMB = n
		}
	}
	if v := os.Getenv("DSEFEED_ARCHIVE_CHUNK_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Upstream.ChunkDays = n
		}
	}

	if v := os.Getenv("DSEFEED_TTL_LATEST"); v != "" {
		config.Cache.TTLLatest = v
	}
	if v := os.Getenv("DSEFEED_TTL_DSEX"); v != "" {
		config.Cache.TTLDsex = v
	}
	if v := os.Getenv("DSEFEED_TTL_TOP30"); v != "" {
		config.Cache.TTLTop30 = v
	}
	if v := os.Getenv("DSEFEED_TTL_HISTORICAL"); v != "" {
		config.Cache.TTLHistorical = v
	}
	if v := os.Getenv("DSEFEED_HISTORY_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Cache.HistoryDays = n
		}
	}

	if v := os.Getenv("DSEFEED_REQUEST_TIMEOUT"); v != "" {
		config.Refresh.RequestTimeout = v
	}
	if v := os.Getenv("DSEFEED_REFRESH_TIMEOUT"); v != "" {
		config.Refresh.RefreshTimeout = v
	}
	if v := os.Getenv("DSEFEED_REFRESH_INTERVAL"); v != "" {
		config.Refresh.Interval = v
	}
	if v := os.Getenv("DSEFEED_HISTORICAL_REFRESH_INTERVAL"); v != "" {
		config.Refresh.HistoricalInterval = v
	}
	if v := os.Getenv("DSEFEED_HISTORICAL_TIMEOUT"); v != "" {
		config.Refresh.HistoricalTimeout = v
	}
}

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port number: %d", c.Server.Port)
	}

	u, err := url.Parse(c.Upstream.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("upstream base url %q is not an absolute URL", c.Upstream.BaseURL)
	}
	if c.Upstream.FetchMaxRetries < 0 {
		return fmt.Errorf("fetch max retries cannot be negative")
	}
	if c.Upstream.RateLimit <= 0 {
		return fmt.Errorf("rate limit must be greater than 0")
	}
	if c.Upstream.MaxBodyMB < 0 {
		return fmt.Errorf("max body size cannot be negative")
	}
	if c.Upstream.ChunkDays < 0 {
		return fmt.Errorf("archive chunk days cannot be negative")
	}
	if c.Cache.HistoryDays <= 0 {
		return fmt.Errorf("history days must be greater than 0")
	}

	return nil
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
