package shared

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	API      APIConfig      `toml:"api"`
	Auth     AuthConfig     `toml:"auth"`
	Cache    CacheConfig    `toml:"cache"`
	Database DatabaseConfig `toml:"database"`
	Server   ServerConfig   `toml:"server"`
	Log      LogConfig      `toml:"log"`
}

// APIConfig points the client at the remote REST API.
type APIConfig struct {
	BaseURL        string   `toml:"base_url"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
	RateLimit      float64  `toml:"rate_limit"` // requests per second, 0 disables
	Burst          int      `toml:"burst"`
	Aggregates     []string `toml:"aggregates"` // cache keys refreshed after a confirmed toggle
}

// AuthConfig holds the bearer token used to identify the acting user.
type AuthConfig struct {
	Token     string `toml:"token"`
	TokenFile string `toml:"token_file"`
}

// CacheConfig controls the per-process status store.
type CacheConfig struct {
	StaleAfter string `toml:"stale_after"` // staleness window, e.g. "5m"
	GCAfter    string `toml:"gc_after"`    // eviction window, e.g. "30m"
	MaxEntries int    `toml:"max_entries"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains settings for the hosting server.
type ServerConfig struct {
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	Upstream       string   `toml:"upstream"`
	StaticDir      string   `toml:"static_dir"`
	MediaDir       string   `toml:"media_dir"`
	AllowedOrigins []string `toml:"allowed_origins"`
	RateLimit      float64  `toml:"rate_limit"`
	TrustProxy     bool     `toml:"trust_proxy"` // read X-Forwarded-For when behind a reverse proxy
	RedisURL       string   `toml:"redis_url"`
	CatalogueTTL   string   `toml:"catalogue_ttl"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv loads a .env file when present and overrides config values from SCOREBOOK_* variables.
func (c *Config) ApplyEnv() {
	_ = godotenv.Load()

	if v := os.Getenv("SCOREBOOK_API_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("SCOREBOOK_TOKEN"); v != "" {
		c.Auth.Token = v
	}
	if v := os.Getenv("SCOREBOOK_UPSTREAM"); v != "" {
		c.Server.Upstream = v
	}
	if v := os.Getenv("SCOREBOOK_REDIS_URL"); v != "" {
		c.Server.RedisURL = v
	}
	if v := os.Getenv("SCOREBOOK_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
}

// Validate checks the fields every command relies on.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("%w: api.base_url is required", ErrInvalidConfig)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port %d out of range", ErrInvalidConfig, c.Server.Port)
	}
	for name, raw := range map[string]string{
		"cache.stale_after":    c.Cache.StaleAfter,
		"cache.gc_after":       c.Cache.GCAfter,
		"server.catalogue_ttl": c.Server.CatalogueTTL,
	} {
		if raw == "" {
			continue
		}
		if _, err := time.ParseDuration(raw); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, name, err)
		}
	}
	return nil
}

// StaleAfterDuration returns the staleness window, defaulting to five minutes.
func (c CacheConfig) StaleAfterDuration() time.Duration {
	return parseDurationOr(c.StaleAfter, 5*time.Minute)
}

// GCAfterDuration returns how long an untouched entry stays cached, defaulting to thirty minutes.
func (c CacheConfig) GCAfterDuration() time.Duration {
	return parseDurationOr(c.GCAfter, 30*time.Minute)
}

// Timeout returns the per-request timeout of the API client.
func (c APIConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// CatalogueTTLDuration returns how long cached catalogue responses are served.
func (c ServerConfig) CatalogueTTLDuration() time.Duration {
	return parseDurationOr(c.CatalogueTTL, time.Minute)
}

// Addr returns the listen address of the hosting server.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func parseDurationOr(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
