package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range []string{EnvClientID, EnvClientSecret, EnvAccountID, EnvStartDate, EnvRedisURL} {
		t.Setenv(env, "")
	}
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
client_id: id
client_secret: secret
account_id: acct
start_date: "2024-01-01T00:00:00Z"
requests_per_second: 5
detail_cache_ttl: 24h
redis:
  addr: localhost:6379
  db: 2
state:
  backend: redis
output:
  format: sqlite
streams: [call_history_path]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ClientID != "id" || cfg.ClientSecret != "secret" || cfg.AccountID != "acct" {
		t.Errorf("credentials = %q/%q/%q", cfg.ClientID, cfg.ClientSecret, cfg.AccountID)
	}
	if cfg.RequestsPerSecond != 5 {
		t.Errorf("RequestsPerSecond = %v, want 5", cfg.RequestsPerSecond)
	}
	if cfg.Redis.DB != 2 || !cfg.Redis.Enabled() {
		t.Errorf("Redis = %+v", cfg.Redis)
	}
	if cfg.Output.Path != "zoomphone.db" {
		t.Errorf("Output.Path = %q, want zoomphone.db", cfg.Output.Path)
	}
	if cfg.APIURL != "https://api.zoom.us/v2/phone" {
		t.Errorf("APIURL = %q", cfg.APIURL)
	}
	if len(cfg.Streams) != 1 || cfg.Streams[0] != "call_history_path" {
		t.Errorf("Streams = %v", cfg.Streams)
	}

	ttl, err := cfg.CacheTTL()
	if err != nil || ttl != 24*time.Hour {
		t.Errorf("CacheTTL() = %v, %v, want 24h", ttl, err)
	}
	start, err := cfg.Start()
	if err != nil || !start.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Start() = %v, %v", start, err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "client_id: from-file\nclient_secret: s\naccount_id: a\n")
	t.Setenv(EnvClientID, "from-env")
	t.Setenv(EnvStartDate, "2024-02-01")
	t.Setenv(EnvRedisURL, "redis://:pw@cache:6380/3")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ClientID != "from-env" {
		t.Errorf("ClientID = %q, want from-env", cfg.ClientID)
	}
	if cfg.Redis.Addr != "cache:6380" || cfg.Redis.Password != "pw" || cfg.Redis.DB != 3 {
		t.Errorf("Redis = %+v", cfg.Redis)
	}
	start, _ := cfg.Start()
	if !start.Equal(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Start() = %v, want 2024-02-01", start)
	}
	if cfg.State.Backend != StateFile || cfg.State.Path != "state.json" {
		t.Errorf("State = %+v", cfg.State)
	}
}

func TestLoad_EnvOnly(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvClientID, "id")
	t.Setenv(EnvClientSecret, "secret")
	t.Setenv(EnvAccountID, "acct")
	t.Setenv(EnvRedisURL, "localhost:6379")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("Redis.Addr = %q", cfg.Redis.Addr)
	}
	if cfg.Output.Format != OutputJSONL {
		t.Errorf("Output.Format = %q, want jsonl", cfg.Output.Format)
	}
	if cfg.DetailConcurrency != 1 || cfg.MaxRetries != 4 {
		t.Errorf("DetailConcurrency, MaxRetries = %d, %d, want 1, 4", cfg.DetailConcurrency, cfg.MaxRetries)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.ClientID, cfg.ClientSecret, cfg.AccountID = "id", "secret", "acct"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing secret", mutate: func(c *Config) { c.ClientSecret = "" }, wantErr: ErrMissingCredentials},
		{name: "missing account", mutate: func(c *Config) { c.AccountID = "" }, wantErr: ErrMissingCredentials},
		{name: "bad start date", mutate: func(c *Config) { c.StartDate = "yesterday" }},
		{name: "bad cache ttl", mutate: func(c *Config) { c.DetailCacheTTL = "a week" }},
		{name: "negative rate", mutate: func(c *Config) { c.RequestsPerSecond = -1 }},
		{name: "negative concurrency", mutate: func(c *Config) { c.DetailConcurrency = -2 }},
		{name: "redis state without redis", mutate: func(c *Config) { c.State.Backend = StateRedis }},
		{name: "unknown backend", mutate: func(c *Config) { c.State.Backend = "s3" }},
		{name: "unknown format", mutate: func(c *Config) { c.Output.Format = "csv" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.name == "valid" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate() error = nil, want error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load() error = %v, want os.ErrNotExist", err)
	}
}
