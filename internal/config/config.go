package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	homedir "github.com/mitchellh/go-homedir"
)

const (
	DefaultBaseURL     = "https://api.service-kp.com/"
	DefaultAPI2BaseURL = "https://cdn-service.space/"

	defaultTimeout       = 15 * time.Second
	defaultMaxAttempts   = 3
	defaultBaseDelay     = 500 * time.Millisecond
	defaultMaxDelay      = 5 * time.Second
	defaultRefreshMargin = 60 * time.Second
	defaultCacheTTL      = 10 * time.Minute
)

// Duration is a time.Duration written as a Go duration string ("500ms", "5s") in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// AuthConfig holds the OAuth client credentials.
type AuthConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
}

// APIConfig holds the service endpoints and transport settings.
type APIConfig struct {
	BaseURL     string   `toml:"base_url"`
	API2BaseURL string   `toml:"api2_base_url"`
	Timeout     Duration `toml:"timeout"`
	// RateLimit is the maximum number of requests per second. 0 disables pacing.
	RateLimit float64 `toml:"rate_limit"`
}

// RetryConfig bounds the automatic retry of idempotent requests.
type RetryConfig struct {
	MaxAttempts int      `toml:"max_attempts"`
	BaseDelay   Duration `toml:"base_delay"`
	MaxDelay    Duration `toml:"max_delay"`
}

// TokenConfig selects where tokens are persisted.
type TokenConfig struct {
	Store         string   `toml:"store"` // memory, file or bolt
	Path          string   `toml:"path"`
	RefreshMargin Duration `toml:"refresh_margin"`
	// AccessToken is only ever set from KINOPUB_ACCESS_TOKEN; it is not written back.
	AccessToken string `toml:"-"`
}

// Config holds all kinopub configuration.
type Config struct {
	Auth              AuthConfig  `toml:"auth"`
	API               APIConfig   `toml:"api"`
	Retry             RetryConfig `toml:"retry"`
	Token             TokenConfig `toml:"token"`
	ReferenceCacheTTL *Duration   `toml:"reference_cache_ttl,omitempty"`
	LogLevel          string      `toml:"log_level"`
}

// LoadFrom reads configuration from the given TOML file path.
// If the file does not exist, it returns a default config without error.
// Environment variables always take precedence over file values:
//   - KINOPUB_CLIENT_ID      overrides auth.client_id
//   - KINOPUB_CLIENT_SECRET  overrides auth.client_secret
//   - KINOPUB_BASE_URL       overrides api.base_url
//   - KINOPUB_API2_BASE_URL  overrides api.api2_base_url
//   - KINOPUB_ACCESS_TOKEN   seeds an access token
func LoadFrom(path string) (Config, error) {
	var cfg Config
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("decoding %s: %w", path, err)
		}
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

// DefaultConfigPath returns the default path for the kinopub config file.
func DefaultConfigPath() string {
	p, err := homedir.Expand("~/.config/kinopub/config.toml")
	if err != nil {
		return filepath.Join(".config", "kinopub", "config.toml")
	}
	return p
}

// DefaultTokenPath returns the default path for the file and bolt token stores.
func DefaultTokenPath(store string) string {
	name := "token.toml"
	if store == "bolt" {
		name = "tokens.db"
	}
	return filepath.Join(filepath.Dir(DefaultConfigPath()), name)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KINOPUB_CLIENT_ID"); v != "" {
		cfg.Auth.ClientID = v
	}
	if v := os.Getenv("KINOPUB_CLIENT_SECRET"); v != "" {
		cfg.Auth.ClientSecret = v
	}
	if v := os.Getenv("KINOPUB_BASE_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("KINOPUB_API2_BASE_URL"); v != "" {
		cfg.API.API2BaseURL = v
	}
	if v := os.Getenv("KINOPUB_ACCESS_TOKEN"); v != "" {
		cfg.Token.AccessToken = strings.TrimSpace(v)
	}
}

// BaseURLOrDefault returns the v1 base URL with a trailing slash.
func (c Config) BaseURLOrDefault() string {
	if c.API.BaseURL == "" {
		return DefaultBaseURL
	}
	return withSlash(c.API.BaseURL)
}

// API2BaseURLOrDefault returns the api2 base URL. When unset and the v1 base
// ends in /api/, the api2 base is the v1 base with that segment stripped.
func (c Config) API2BaseURLOrDefault() string {
	if c.API.API2BaseURL != "" {
		return withSlash(c.API.API2BaseURL)
	}
	if c.API.BaseURL != "" {
		base := withSlash(c.API.BaseURL)
		if strings.HasSuffix(base, "/api/") {
			return strings.TrimSuffix(base, "api/")
		}
	}
	return DefaultAPI2BaseURL
}

// TimeoutOrDefault returns the per-request HTTP timeout.
func (c Config) TimeoutOrDefault() time.Duration {
	if c.API.Timeout.Duration > 0 {
		return c.API.Timeout.Duration
	}
	return defaultTimeout
}

// MaxAttemptsOrDefault returns Retry.MaxAttempts if set, otherwise 3.
func (c Config) MaxAttemptsOrDefault() int {
	if c.Retry.MaxAttempts > 0 {
		return c.Retry.MaxAttempts
	}
	return defaultMaxAttempts
}

// BaseDelayOrDefault returns the first backoff delay.
func (c Config) BaseDelayOrDefault() time.Duration {
	if c.Retry.BaseDelay.Duration > 0 {
		return c.Retry.BaseDelay.Duration
	}
	return defaultBaseDelay
}

// MaxDelayOrDefault returns the backoff cap.
func (c Config) MaxDelayOrDefault() time.Duration {
	if c.Retry.MaxDelay.Duration > 0 {
		return c.Retry.MaxDelay.Duration
	}
	return defaultMaxDelay
}

// RefreshMarginOrDefault returns how long before expiry a token is refreshed.
func (c Config) RefreshMarginOrDefault() time.Duration {
	if c.Token.RefreshMargin.Duration > 0 {
		return c.Token.RefreshMargin.Duration
	}
	return defaultRefreshMargin
}

// ReferenceCacheTTLOrDefault returns the reference list cache lifetime. An
// explicit zero disables the cache.
func (c Config) ReferenceCacheTTLOrDefault() time.Duration {
	if c.ReferenceCacheTTL == nil {
		return defaultCacheTTL
	}
	return c.ReferenceCacheTTL.Duration
}

// TokenStoreOrDefault returns the configured token store kind, "memory" if unset.
func (c Config) TokenStoreOrDefault() string {
	if c.Token.Store == "" {
		return "memory"
	}
	return c.Token.Store
}

// TokenPathOrDefault returns the token store path for file and bolt stores.
func (c Config) TokenPathOrDefault() string {
	if c.Token.Path != "" {
		if p, err := homedir.Expand(c.Token.Path); err == nil {
			return p
		}
		return c.Token.Path
	}
	return DefaultTokenPath(c.TokenStoreOrDefault())
}

func withSlash(s string) string {
	if strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}

// Save writes cfg to the given TOML file path, creating parent directories as needed.
// Existing file contents are overwritten. Permissions on the written file are 0600.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("opening config file: %w", err)
	}
	if encErr := toml.NewEncoder(f).Encode(cfg); encErr != nil {
		f.Close()
		return encErr
	}
	return f.Close()
}
