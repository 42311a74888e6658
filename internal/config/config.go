// Package config handles TOML configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/anaf-gateway/config.toml",
	"configs/config.toml",
}

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config   string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host     string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port     int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	CertFile string `kong:"help='Client certificate PEM file (overrides config).',env='ANAF_CERT_FILE'"`
	KeyFile  string `kong:"help='Client key PEM file (overrides config).',env='ANAF_KEY_FILE'"`
	LogLevel string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	ANAF    ANAFConfig    `toml:"anaf"`
	Session SessionConfig `toml:"session"`
	Log     LogConfig     `toml:"log"`
	Metrics MetricsConfig `toml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string          `toml:"host"`
	Port         int             `toml:"port"` // 0 means "use default" (8000); TOML cannot distinguish 0 from unset
	BodyMaxBytes int64           `toml:"body_max_bytes"`
	RateLimit    RateLimitConfig `toml:"rate_limit"`
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// ANAFConfig holds upstream connection settings for the BANCIWS service.
type ANAFConfig struct {
	BaseURL                 string `toml:"base_url"`
	CertFile                string `toml:"cert_file"`
	KeyFile                 string `toml:"key_file"`
	RequestTimeoutSeconds   int    `toml:"request_timeout_seconds"`
	HandshakeTimeoutSeconds int    `toml:"handshake_timeout_seconds"`
	MaxRedirects            int    `toml:"max_redirects"`
	IdleConnections         int    `toml:"idle_connections"`
}

// SessionConfig controls session lifecycle behavior.
type SessionConfig struct {
	// Prewarm establishes the F5 session at startup instead of on the first
	// request, retrying with backoff until it succeeds.
	Prewarm bool `toml:"prewarm"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Load reads the TOML config file and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/anaf-gateway/config.toml then configs/config.toml.
func Load(cli *CLI) (*Config, error) {
	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path == "" {
		return nil, fmt.Errorf("config: no config file found (searched %v)", configSearchPaths)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.filePath = path
	cfg.applyCLI(cli)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()
	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.CertFile != "" {
		c.ANAF.CertFile = cli.CertFile
	}
	if cli.KeyFile != "" {
		c.ANAF.KeyFile = cli.KeyFile
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
}

func (c *Config) validate() error {
	// Upstream URL: required and must be HTTPS — the client certificate is
	// presented during the TLS handshake, so plain HTTP cannot work.
	if c.ANAF.BaseURL == "" {
		return fmt.Errorf("anaf.base_url is required")
	}
	u, err := url.Parse(c.ANAF.BaseURL)
	if err != nil {
		return fmt.Errorf("anaf.base_url is not a valid URL: %w", err)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("anaf.base_url must use HTTPS; got %q", c.ANAF.BaseURL)
	}

	if c.ANAF.CertFile == "" {
		return fmt.Errorf("anaf.cert_file is required")
	}
	if c.ANAF.KeyFile == "" {
		return fmt.Errorf("anaf.key_file is required")
	}

	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	if c.ANAF.RequestTimeoutSeconds < 0 {
		return fmt.Errorf("anaf.request_timeout_seconds must be non-negative; got %d", c.ANAF.RequestTimeoutSeconds)
	}
	if c.ANAF.HandshakeTimeoutSeconds < 0 {
		return fmt.Errorf("anaf.handshake_timeout_seconds must be non-negative; got %d", c.ANAF.HandshakeTimeoutSeconds)
	}
	if c.ANAF.MaxRedirects < 0 {
		return fmt.Errorf("anaf.max_redirects must be non-negative; got %d", c.ANAF.MaxRedirects)
	}
	if c.ANAF.IdleConnections < 0 {
		return fmt.Errorf("anaf.idle_connections must be non-negative; got %d", c.ANAF.IdleConnections)
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("server.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.RequestsPerSecond)
	}

	// Log fields.
	level := strings.ToLower(c.Log.Level)
	switch level {
	case "debug", "info", "warn", "error", "":
		// valid
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	format := strings.ToLower(c.Log.Format)
	switch format {
	case "json", "text", "":
		// valid
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	// Metrics path validation (only when metrics are enabled).
	if c.Metrics.Enabled && c.Metrics.Path != "" {
		p := c.Metrics.Path
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		for _, reserved := range []string{"/lista-mesaje", "/stare-mesaj", "/descarcare-mesaj", "/upload-mesaj", "/healthz", "/gateway/status"} {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields (Port, MaxRedirects, etc.), zero means "unset" because
// TOML cannot distinguish between an explicit 0 and an omitted key.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 10 * 1024 * 1024 // 10 MB
	}
	if c.ANAF.RequestTimeoutSeconds == 0 {
		c.ANAF.RequestTimeoutSeconds = 60
	}
	if c.ANAF.HandshakeTimeoutSeconds == 0 {
		c.ANAF.HandshakeTimeoutSeconds = 30
	}
	if c.ANAF.MaxRedirects == 0 {
		c.ANAF.MaxRedirects = 10
	}
	if c.ANAF.IdleConnections == 0 {
		c.ANAF.IdleConnections = 100
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WarnPermissions logs a warning if the config file is readable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
