// Package config loads the tap configuration from YAML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the file.
const (
	EnvClientID     = "ZOOM_CLIENT_ID"
	EnvClientSecret = "ZOOM_CLIENT_SECRET"
	EnvAccountID    = "ZOOM_ACCOUNT_ID"
	EnvStartDate    = "ZOOM_START_DATE"
	EnvRedisURL     = "REDIS_URL"
)

// State backends.
const (
	StateFile  = "file"
	StateRedis = "redis"
)

// Output formats.
const (
	OutputJSONL  = "jsonl"
	OutputSQLite = "sqlite"
)

// ErrMissingCredentials is returned by Validate when any credential is unset.
var ErrMissingCredentials = errors.New("client_id, client_secret and account_id are required")

// Config is the complete tap configuration.
type Config struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	AccountID    string `yaml:"account_id"`

	// StartDate bounds the first sync of incremental streams (RFC 3339).
	StartDate string `yaml:"start_date"`

	APIURL  string `yaml:"api_url"`
	AuthURL string `yaml:"auth_url"`

	RequestsPerSecond float64 `yaml:"requests_per_second"`
	MaxRetries        int     `yaml:"max_retries"`

	// DetailConcurrency is how many call detail requests run at once. The
	// default of one keeps a single request in flight.
	DetailConcurrency int `yaml:"detail_concurrency"`

	// DetailCacheTTL is a Go duration, e.g. "168h". Empty disables the
	// detail cache even when Redis is configured.
	DetailCacheTTL string `yaml:"detail_cache_ttl"`

	Redis   RedisConfig   `yaml:"redis"`
	State   StateConfig   `yaml:"state"`
	Output  OutputConfig  `yaml:"output"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`

	// Streams limits the sync to these streams. Empty syncs all.
	Streams []string `yaml:"streams"`
}

// RedisConfig enables shared rate limit state, the detail cache and the Redis
// state backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Enabled reports whether a Redis server is configured.
func (r RedisConfig) Enabled() bool { return r.Addr != "" }

// Options returns the go-redis client options.
func (r RedisConfig) Options() *redis.Options {
	return &redis.Options{Addr: r.Addr, Password: r.Password, DB: r.DB}
}

type StateConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

type OutputConfig struct {
	Format string `yaml:"format"`
	Path   string `yaml:"path"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

type MetricsConfig struct {
	// Addr serves /metrics and /health while syncing, e.g. ":9090". Empty
	// disables the endpoint.
	Addr string `yaml:"addr"`
}

// Default returns a configuration with every default applied and no
// credentials.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads path, applies defaults and environment overrides and validates
// the result. An empty path uses defaults and the environment only.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(expandPath(path))
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	overrides := map[string]*string{
		EnvClientID:     &c.ClientID,
		EnvClientSecret: &c.ClientSecret,
		EnvAccountID:    &c.AccountID,
		EnvStartDate:    &c.StartDate,
	}
	for env, field := range overrides {
		if v := os.Getenv(env); v != "" {
			*field = v
		}
	}

	if raw := os.Getenv(EnvRedisURL); raw != "" {
		redisCfg, err := parseRedisURL(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvRedisURL, err)
		}
		c.Redis = redisCfg
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.APIURL == "" {
		c.APIURL = "https://api.zoom.us/v2/phone"
	}
	if c.AuthURL == "" {
		c.AuthURL = "https://zoom.us/oauth/token"
	}
	if c.RequestsPerSecond == 0 {
		c.RequestsPerSecond = 10
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 4
	}
	if c.DetailConcurrency == 0 {
		c.DetailConcurrency = 1
	}
	if c.State.Backend == "" {
		c.State.Backend = StateFile
	}
	if c.State.Backend == StateFile && c.State.Path == "" {
		c.State.Path = "state.json"
	}
	c.State.Path = expandPath(c.State.Path)
	if c.Output.Format == "" {
		c.Output.Format = OutputJSONL
	}
	if c.Output.Format == OutputSQLite && c.Output.Path == "" {
		c.Output.Path = "zoomphone.db"
	}
	c.Output.Path = expandPath(c.Output.Path)
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks the configuration for missing or inconsistent values.
func (c *Config) Validate() error {
	if c.ClientID == "" || c.ClientSecret == "" || c.AccountID == "" {
		return ErrMissingCredentials
	}
	if _, err := c.Start(); err != nil {
		return err
	}
	if _, err := c.CacheTTL(); err != nil {
		return err
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second must be >= 0 (got %v)", c.RequestsPerSecond)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("max_retries must be >= 1 (got %d)", c.MaxRetries)
	}
	if c.DetailConcurrency < 1 {
		return fmt.Errorf("detail_concurrency must be >= 1 (got %d)", c.DetailConcurrency)
	}

	switch c.State.Backend {
	case StateFile:
	case StateRedis:
		if !c.Redis.Enabled() {
			return errors.New("state backend redis requires redis.addr or REDIS_URL")
		}
	default:
		return fmt.Errorf("unknown state backend %q (want %s or %s)", c.State.Backend, StateFile, StateRedis)
	}

	switch c.Output.Format {
	case OutputJSONL, OutputSQLite:
	default:
		return fmt.Errorf("unknown output format %q (want %s or %s)", c.Output.Format, OutputJSONL, OutputSQLite)
	}
	return nil
}

// Start parses StartDate. A date without time is taken as midnight UTC.
func (c *Config) Start() (time.Time, error) {
	if c.StartDate == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, c.StartDate); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("start_date %q is not RFC 3339 or YYYY-MM-DD", c.StartDate)
}

// CacheTTL parses DetailCacheTTL. Zero means caching is off.
func (c *Config) CacheTTL() (time.Duration, error) {
	if c.DetailCacheTTL == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.DetailCacheTTL)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("detail_cache_ttl %q is not a positive duration", c.DetailCacheTTL)
	}
	return d, nil
}

// parseRedisURL accepts a redis:// URL or a bare host:port.
func parseRedisURL(raw string) (RedisConfig, error) {
	if !strings.Contains(raw, "://") {
		return RedisConfig{Addr: raw}, nil
	}
	opts, err := redis.ParseURL(raw)
	if err != nil {
		return RedisConfig{}, err
	}
	return RedisConfig{Addr: opts.Addr, Password: opts.Password, DB: opts.DB}, nil
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
