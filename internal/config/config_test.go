package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/waabox/kinopub/internal/config"
)

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")
	content := `
log_level = "debug"
reference_cache_ttl = "1m"

[auth]
client_id = "xbmc"
client_secret = "cgg3gtifu46urtfp2zp1nqtba0k2ezxh"

[api]
base_url = "https://api.example.com"
timeout = "20s"
rate_limit = 4.5

[retry]
max_attempts = 5
base_delay = "100ms"
max_delay = "2s"

[token]
store = "bolt"
path = "/tmp/kp.db"
refresh_margin = "30s"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Auth.ClientID != "xbmc" {
		t.Errorf("expected client id 'xbmc', got '%s'", cfg.Auth.ClientID)
	}
	if cfg.BaseURLOrDefault() != "https://api.example.com/" {
		t.Errorf("expected base URL with trailing slash, got '%s'", cfg.BaseURLOrDefault())
	}
	if cfg.TimeoutOrDefault() != 20*time.Second {
		t.Errorf("expected timeout 20s, got %s", cfg.TimeoutOrDefault())
	}
	if cfg.API.RateLimit != 4.5 {
		t.Errorf("expected rate limit 4.5, got %v", cfg.API.RateLimit)
	}
	if cfg.MaxAttemptsOrDefault() != 5 {
		t.Errorf("expected 5 attempts, got %d", cfg.MaxAttemptsOrDefault())
	}
	if cfg.BaseDelayOrDefault() != 100*time.Millisecond || cfg.MaxDelayOrDefault() != 2*time.Second {
		t.Errorf("unexpected backoff bounds: %s..%s", cfg.BaseDelayOrDefault(), cfg.MaxDelayOrDefault())
	}
	if cfg.TokenStoreOrDefault() != "bolt" || cfg.TokenPathOrDefault() != "/tmp/kp.db" {
		t.Errorf("unexpected token store: %s at %s", cfg.TokenStoreOrDefault(), cfg.TokenPathOrDefault())
	}
	if cfg.RefreshMarginOrDefault() != 30*time.Second {
		t.Errorf("expected margin 30s, got %s", cfg.RefreshMarginOrDefault())
	}
	if cfg.ReferenceCacheTTLOrDefault() != time.Minute {
		t.Errorf("expected cache ttl 1m, got %s", cfg.ReferenceCacheTTLOrDefault())
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected log level 'debug', got '%s'", cfg.LogLevel)
	}
}

func TestLoad_EnvVarsTakePrecedence(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")
	content := `
[auth]
client_id = "fromfile"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("KINOPUB_CLIENT_ID", "fromenv")
	t.Setenv("KINOPUB_CLIENT_SECRET", "secret")
	t.Setenv("KINOPUB_BASE_URL", "https://proxy.example.com/api/")
	t.Setenv("KINOPUB_ACCESS_TOKEN", " tok \n")

	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Auth.ClientID != "fromenv" {
		t.Errorf("expected env client id 'fromenv', got '%s'", cfg.Auth.ClientID)
	}
	if cfg.Auth.ClientSecret != "secret" {
		t.Errorf("expected env secret, got '%s'", cfg.Auth.ClientSecret)
	}
	if cfg.Token.AccessToken != "tok" {
		t.Errorf("expected trimmed token 'tok', got '%s'", cfg.Token.AccessToken)
	}
	if got := cfg.API2BaseURLOrDefault(); got != "https://proxy.example.com/" {
		t.Errorf("expected api2 base derived from /api/ base, got '%s'", got)
	}
}

func TestLoad_MissingFileIsNotError(t *testing.T) {
	t.Setenv("KINOPUB_CLIENT_ID", "onlyenv")
	cfg, err := config.LoadFrom("/nonexistent/path/config.toml")
	if err != nil {
		t.Fatalf("missing file should not be an error, got: %v", err)
	}
	if cfg.Auth.ClientID != "onlyenv" {
		t.Errorf("expected client id from env, got '%s'", cfg.Auth.ClientID)
	}
}

func TestDefaults(t *testing.T) {
	var cfg config.Config
	if cfg.BaseURLOrDefault() != config.DefaultBaseURL {
		t.Errorf("base: want '%s', got '%s'", config.DefaultBaseURL, cfg.BaseURLOrDefault())
	}
	if cfg.API2BaseURLOrDefault() != config.DefaultAPI2BaseURL {
		t.Errorf("api2: want '%s', got '%s'", config.DefaultAPI2BaseURL, cfg.API2BaseURLOrDefault())
	}
	if cfg.MaxAttemptsOrDefault() != 3 {
		t.Errorf("attempts: want 3, got %d", cfg.MaxAttemptsOrDefault())
	}
	if cfg.TokenStoreOrDefault() != "memory" {
		t.Errorf("store: want 'memory', got '%s'", cfg.TokenStoreOrDefault())
	}
	if cfg.ReferenceCacheTTLOrDefault() != 10*time.Minute {
		t.Errorf("cache ttl: want 10m, got %s", cfg.ReferenceCacheTTLOrDefault())
	}
}

func TestLoad_ZeroCacheTTLDisablesCache(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(configPath, []byte(`reference_cache_ttl = "0s"`), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ReferenceCacheTTLOrDefault() != 0 {
		t.Errorf("expected zero ttl, got %s", cfg.ReferenceCacheTTLOrDefault())
	}
}

func TestSave_WritesRestrictedFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "nested", "config.toml")
	cfg := config.Config{
		Auth: config.AuthConfig{ClientID: "id", ClientSecret: "secret"},
		API:  config.APIConfig{Timeout: config.Duration{Duration: 3 * time.Second}},
	}
	if err := config.Save(configPath, cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	info, err := os.Stat(configPath)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("perm: want 0600, got %o", info.Mode().Perm())
	}

	loaded, err := config.LoadFrom(configPath)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if loaded.Auth.ClientSecret != "secret" {
		t.Errorf("secret: want 'secret', got '%s'", loaded.Auth.ClientSecret)
	}
	if loaded.TimeoutOrDefault() != 3*time.Second {
		t.Errorf("timeout: want 3s, got %s", loaded.TimeoutOrDefault())
	}
}
