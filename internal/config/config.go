// Package config handles layered configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/kelseyhightower/envconfig"
	toml "github.com/pelletier/go-toml/v2"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/chat-dev-proxy/config.toml",
	"configs/config.toml",
}

// reservedRoutes are paths served by the dev server itself; proxy prefixes and
// the metrics path must not shadow them.
var reservedRoutes = []string{"/healthz", "/devserver/status"}

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config      string           `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host        string           `kong:"help='Listen host (overrides config).'"`
	Port        int              `kong:"short='p',help='Listen port (overrides config).'"`
	BackendHost string           `kong:"help='Chat backend host (overrides config and environment).'"`
	LogLevel    string           `kong:"help='Log level: debug|info|warn|error (overrides config).'"`
	FrontendDir string           `kong:"help='Directory of built frontend assets (overrides config).'"`
	Version     kong.VersionFlag `kong:"help='Print version and exit.'"`
}

// EnvOverrides holds environment-variable overrides, processed with envconfig.
// Ports are kept as strings so that an empty value can be told apart from zero
// and skipped; an unset or empty variable never overrides anything.
type EnvOverrides struct {
	BackendHost string `envconfig:"CHAT_BACKEND_HOST"`
	BackendPort string `envconfig:"CHAT_BACKEND_PORT"`
	Port        string `envconfig:"PORT"`
	LogLevel    string `envconfig:"LOG_LEVEL"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Backend  BackendConfig  `toml:"backend"`
	Frontend FrontendConfig `toml:"frontend"`
	Log      LogConfig      `toml:"log"`
	Metrics  MetricsConfig  `toml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string          `toml:"host"`
	Port         int             `toml:"port"` // 0 means "use default" (5173); TOML cannot distinguish 0 from unset
	BodyMaxBytes int64           `toml:"body_max_bytes"`
	RateLimit    RateLimitConfig `toml:"rate_limit"`
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// BackendConfig describes the chat backend the proxy forwards to. Both the
// request/response prefix and the upgrade prefix resolve to the same host and
// port; only the scheme differs.
type BackendConfig struct {
	Host            string `toml:"host"`
	Port            int    `toml:"port"`
	APIPrefix       string `toml:"api_prefix"`
	WSPrefix        string `toml:"ws_prefix"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
	IdleConnections int    `toml:"idle_connections"`
}

// FrontendConfig holds static asset serving settings. An empty Dir serves the
// built-in placeholder page instead.
type FrontendConfig struct {
	Dir string `toml:"dir"`
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

// Load resolves the configuration in layers: built-in defaults, then the TOML
// file, then environment variables, then CLI flags. When no explicit path is
// given (via --config or CONFIG_PATH), it searches /etc/chat-dev-proxy/config.toml
// then configs/config.toml; no file found means the proxy runs on defaults.
// An explicitly given path that cannot be read is an error.
func Load(cli *CLI) (*Config, error) {
	var cfg Config

	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.filePath = path
	}

	var env EnvOverrides
	if err := envconfig.Process("", &env); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}
	if err := cfg.applyEnv(&env); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}

	cfg.applyCLI(cli)
	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

// applyEnv overrides config values with non-empty environment variables.
func (c *Config) applyEnv(env *EnvOverrides) error {
	if env.BackendHost != "" {
		c.Backend.Host = env.BackendHost
	}
	if env.BackendPort != "" {
		port, err := strconv.Atoi(env.BackendPort)
		if err != nil {
			return fmt.Errorf("CHAT_BACKEND_PORT %q is not a number", env.BackendPort)
		}
		c.Backend.Port = port
	}
	if env.Port != "" {
		port, err := strconv.Atoi(env.Port)
		if err != nil {
			return fmt.Errorf("PORT %q is not a number", env.Port)
		}
		c.Server.Port = port
	}
	if env.LogLevel != "" {
		c.Log.Level = env.LogLevel
	}
	return nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.BackendHost != "" {
		c.Backend.Host = cli.BackendHost
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
	if cli.FrontendDir != "" {
		c.Frontend.Dir = cli.FrontendDir
	}
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields (Port, BodyMaxBytes, etc.), zero means "unset" because TOML
// cannot distinguish between an explicit 0 and an omitted key. Setting port=0 in
// the config file therefore results in the default port.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 5173
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 50 * 1024 * 1024 // 50 MB; file uploads pass through unbuffered
	}
	if c.Backend.Host == "" {
		c.Backend.Host = "localhost"
	}
	if c.Backend.Port == 0 {
		c.Backend.Port = 8000
	}
	if c.Backend.APIPrefix == "" {
		c.Backend.APIPrefix = "/api"
	}
	if c.Backend.WSPrefix == "" {
		c.Backend.WSPrefix = "/ws"
	}
	if c.Backend.TimeoutSeconds == 0 {
		c.Backend.TimeoutSeconds = 120
	}
	if c.Backend.IdleConnections == 0 {
		c.Backend.IdleConnections = 100
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// validate runs after defaulting, so every field holds its final value.
func (c *Config) validate() error {
	// Numeric bounds.
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535; got %d", c.Server.Port)
	}
	if c.Backend.Port < 1 || c.Backend.Port > 65535 {
		return fmt.Errorf("backend.port must be between 1 and 65535; got %d", c.Backend.Port)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	if c.Backend.TimeoutSeconds < 0 {
		return fmt.Errorf("backend.timeout_seconds must be non-negative; got %d", c.Backend.TimeoutSeconds)
	}
	if c.Backend.IdleConnections < 0 {
		return fmt.Errorf("backend.idle_connections must be non-negative; got %d", c.Backend.IdleConnections)
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("server.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.RequestsPerSecond)
	}

	// Proxy prefixes.
	if err := validatePrefix("backend.api_prefix", c.Backend.APIPrefix); err != nil {
		return err
	}
	if err := validatePrefix("backend.ws_prefix", c.Backend.WSPrefix); err != nil {
		return err
	}
	if c.Backend.APIPrefix == c.Backend.WSPrefix {
		return fmt.Errorf("backend.api_prefix and backend.ws_prefix must differ; both are %q", c.Backend.APIPrefix)
	}

	// Log fields.
	level := strings.ToLower(c.Log.Level)
	switch level {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	format := strings.ToLower(c.Log.Format)
	switch format {
	case "json", "text":
		// valid
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	// Metrics path validation (only when metrics are enabled).
	if c.Metrics.Enabled {
		p := c.Metrics.Path
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		for _, reserved := range reservedRoutes {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
		for _, prefix := range []string{c.Backend.APIPrefix, c.Backend.WSPrefix} {
			if p == prefix || strings.HasPrefix(p, prefix+"/") {
				return fmt.Errorf("metrics.path %q would be shadowed by proxy prefix %q", p, prefix)
			}
		}
	}

	// Frontend directory, when set, must exist.
	if c.Frontend.Dir != "" {
		info, err := os.Stat(c.Frontend.Dir)
		if err != nil {
			return fmt.Errorf("frontend.dir %q: %w", c.Frontend.Dir, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("frontend.dir %q is not a directory", c.Frontend.Dir)
		}
	}

	return nil
}

// validatePrefix checks that a proxy path prefix is usable as a route prefix.
func validatePrefix(name, prefix string) error {
	if !strings.HasPrefix(prefix, "/") {
		return fmt.Errorf("%s must start with '/'; got %q", name, prefix)
	}
	if prefix == "/" {
		return fmt.Errorf("%s must not be '/'; the root is reserved for the frontend", name)
	}
	if strings.HasSuffix(prefix, "/") {
		return fmt.Errorf("%s must not end with '/'; got %q", name, prefix)
	}
	for _, reserved := range reservedRoutes {
		if prefix == reserved || strings.HasPrefix(reserved, prefix+"/") {
			return fmt.Errorf("%s %q conflicts with reserved route %q", name, prefix, reserved)
		}
	}
	return nil
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

// APITarget returns the backend origin for request/response forwarding.
func (c *BackendConfig) APITarget() string {
	return fmt.Sprintf("http://%s:%d", c.Host, c.Port)
}

// WSTarget returns the backend origin for connection-upgrade tunneling.
func (c *BackendConfig) WSTarget() string {
	return fmt.Sprintf("ws://%s:%d", c.Host, c.Port)
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
