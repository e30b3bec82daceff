package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// cliWithPath returns a CLI struct pointing at the given config file.
func cliWithPath(path string) *CLI {
	return &CLI{Config: path}
}

// writeConfig writes a temp TOML config and returns its path.
func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// clearEnv blanks all environment overrides so ambient variables cannot leak
// into a test; Load treats empty values as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"CHAT_BACKEND_HOST", "CHAT_BACKEND_PORT", "PORT", "LOG_LEVEL"} {
		t.Setenv(key, "")
	}
}

func TestLoad_ValidConfig(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
[server]
host = "127.0.0.1"
port = 3000
body_max_bytes = 1048576

[backend]
host = "chat-api.internal"
port = 9000
api_prefix = "/api"
ws_prefix = "/socket"
timeout_seconds = 60
idle_connections = 50

[log]
level = "debug"
format = "json"
`)

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 3000)
	}
	if cfg.Backend.Host != "chat-api.internal" {
		t.Errorf("Backend.Host = %q, want %q", cfg.Backend.Host, "chat-api.internal")
	}
	if cfg.Backend.Port != 9000 {
		t.Errorf("Backend.Port = %d, want %d", cfg.Backend.Port, 9000)
	}
	if cfg.Backend.WSPrefix != "/socket" {
		t.Errorf("Backend.WSPrefix = %q, want %q", cfg.Backend.WSPrefix, "/socket")
	}
	if cfg.Backend.TimeoutSeconds != 60 {
		t.Errorf("Backend.TimeoutSeconds = %d, want %d", cfg.Backend.TimeoutSeconds, 60)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "json")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "# empty config\n")

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("default Server.Host = %q, want %q", cfg.Server.Host, "0.0.0.0")
	}
	if cfg.Server.Port != 5173 {
		t.Errorf("default Server.Port = %d, want %d", cfg.Server.Port, 5173)
	}
	if cfg.Server.BodyMaxBytes != 50*1024*1024 {
		t.Errorf("default Server.BodyMaxBytes = %d, want %d", cfg.Server.BodyMaxBytes, 50*1024*1024)
	}
	if cfg.Backend.Host != "localhost" {
		t.Errorf("default Backend.Host = %q, want %q", cfg.Backend.Host, "localhost")
	}
	if cfg.Backend.Port != 8000 {
		t.Errorf("default Backend.Port = %d, want %d", cfg.Backend.Port, 8000)
	}
	if cfg.Backend.APIPrefix != "/api" {
		t.Errorf("default Backend.APIPrefix = %q, want %q", cfg.Backend.APIPrefix, "/api")
	}
	if cfg.Backend.WSPrefix != "/ws" {
		t.Errorf("default Backend.WSPrefix = %q, want %q", cfg.Backend.WSPrefix, "/ws")
	}
	if cfg.Backend.TimeoutSeconds != 120 {
		t.Errorf("default Backend.TimeoutSeconds = %d, want %d", cfg.Backend.TimeoutSeconds, 120)
	}
	if cfg.Backend.IdleConnections != 100 {
		t.Errorf("default Backend.IdleConnections = %d, want %d", cfg.Backend.IdleConnections, 100)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("default Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
	if cfg.Log.Format != "text" {
		t.Errorf("default Log.Format = %q, want %q", cfg.Log.Format, "text")
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("default Metrics.Path = %q, want %q", cfg.Metrics.Path, "/metrics")
	}
}

func TestLoad_NoConfigFileRunsDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(&CLI{})
	if err != nil {
		t.Fatalf("Load() error = %v; missing config file should fall back to defaults", err)
	}
	if cfg.Server.Port != 5173 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 5173)
	}
	if cfg.Backend.Host != "localhost" {
		t.Errorf("Backend.Host = %q, want %q", cfg.Backend.Host, "localhost")
	}
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(cliWithPath("/nonexistent/config.toml"))
	if err == nil {
		t.Fatal("Load() expected error for explicit missing file, got nil")
	}
}

func TestLoad_BackendHostFromEnv(t *testing.T) {
	hosts := []string{"10.0.0.7", "backend.internal", "chat-api.example.com"}
	for _, host := range hosts {
		t.Run(host, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("CHAT_BACKEND_HOST", host)

			cfg, err := Load(&CLI{})
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.Backend.Host != host {
				t.Errorf("Backend.Host = %q, want %q", cfg.Backend.Host, host)
			}
			if got, want := cfg.Backend.APITarget(), "http://"+host+":8000"; got != want {
				t.Errorf("APITarget() = %q, want %q", got, want)
			}
			if got, want := cfg.Backend.WSTarget(), "ws://"+host+":8000"; got != want {
				t.Errorf("WSTarget() = %q, want %q", got, want)
			}
		})
	}
}

func TestLoad_BackendHostEnvAbsent(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T)
	}{
		{"empty", func(t *testing.T) {
			t.Setenv("CHAT_BACKEND_HOST", "")
		}},
		{"unset", func(t *testing.T) {
			t.Setenv("CHAT_BACKEND_HOST", "") // registers restore
			os.Unsetenv("CHAT_BACKEND_HOST")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			tt.setup(t)

			cfg, err := Load(&CLI{})
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.Backend.Host != "localhost" {
				t.Errorf("Backend.Host = %q, want %q", cfg.Backend.Host, "localhost")
			}
		})
	}
}

func TestLoad_BackendHostPrecedence(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
[backend]
host = "from-file"
`)
	t.Setenv("CHAT_BACKEND_HOST", "from-env")

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Backend.Host != "from-env" {
		t.Errorf("Backend.Host = %q, want %q (env over file)", cfg.Backend.Host, "from-env")
	}

	cfg, err = Load(&CLI{Config: path, BackendHost: "from-cli"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Backend.Host != "from-cli" {
		t.Errorf("Backend.Host = %q, want %q (CLI over env)", cfg.Backend.Host, "from-cli")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "4000")
	t.Setenv("CHAT_BACKEND_PORT", "9001")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load(&CLI{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 4000 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 4000)
	}
	if cfg.Backend.Port != 9001 {
		t.Errorf("Backend.Port = %d, want %d", cfg.Backend.Port, 9001)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "warn")
	}
	if got, want := cfg.Backend.APITarget(), "http://localhost:9001"; got != want {
		t.Errorf("APITarget() = %q, want %q", got, want)
	}
}

func TestLoad_EnvPortNotANumber(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "fivethousand")

	_, err := Load(&CLI{})
	if err == nil {
		t.Fatal("Load() expected error for non-numeric PORT, got nil")
	}
}

func TestLoad_CLIOverrides(t *testing.T) {
	clearEnv(t)
	frontendDir := t.TempDir()
	path := writeConfig(t, `
[server]
host = "0.0.0.0"
port = 5173

[backend]
host = "from-file"

[log]
level = "info"
`)

	cli := &CLI{
		Config:      path,
		Host:        "127.0.0.1",
		Port:        3000,
		BackendHost: "cli-backend",
		LogLevel:    "debug",
		FrontendDir: frontendDir,
	}

	cfg, err := Load(cli)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q (CLI override)", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("Server.Port = %d, want %d (CLI override)", cfg.Server.Port, 3000)
	}
	if cfg.Backend.Host != "cli-backend" {
		t.Errorf("Backend.Host = %q, want %q (CLI override)", cfg.Backend.Host, "cli-backend")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q (CLI override)", cfg.Log.Level, "debug")
	}
	if cfg.Frontend.Dir != frontendDir {
		t.Errorf("Frontend.Dir = %q, want %q (CLI override)", cfg.Frontend.Dir, frontendDir)
	}
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
[log]
level = "verbose"
`)

	_, err := Load(cliWithPath(path))
	if err == nil {
		t.Fatal("Load() expected error for invalid log level, got nil")
	}
}

func TestLoad_NegativePort(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
[server]
port = -1
`)

	_, err := Load(cliWithPath(path))
	if err == nil {
		t.Fatal("Load() expected error for negative port, got nil")
	}
}

func TestLoad_NegativeBodyMaxBytes(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
[server]
body_max_bytes = -1
`)

	_, err := Load(cliWithPath(path))
	if err == nil {
		t.Fatal("Load() expected error for negative body_max_bytes, got nil")
	}
}

func TestLoad_NegativeTimeout(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
[backend]
timeout_seconds = -5
`)

	_, err := Load(cliWithPath(path))
	if err == nil {
		t.Fatal("Load() expected error for negative timeout, got nil")
	}
}

func TestLoad_PrefixValidation(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"no leading slash", "[backend]\napi_prefix = \"api\"\n"},
		{"bare root", "[backend]\nws_prefix = \"/\"\n"},
		{"trailing slash", "[backend]\napi_prefix = \"/api/\"\n"},
		{"equal prefixes", "[backend]\napi_prefix = \"/chat\"\nws_prefix = \"/chat\"\n"},
		{"reserved route", "[backend]\napi_prefix = \"/healthz\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			path := writeConfig(t, tt.data)
			if _, err := Load(cliWithPath(path)); err == nil {
				t.Fatalf("Load() expected error for %s, got nil", tt.name)
			}
		})
	}
}

func TestLoad_RateLimitConfig_Enabled(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
[server.rate_limit]
enabled = true
requests_per_second = 50.0
`)

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Server.RateLimit.Enabled {
		t.Error("expected RateLimit.Enabled = true")
	}
	if cfg.Server.RateLimit.RequestsPerSecond != 50.0 {
		t.Errorf("RateLimit.RequestsPerSecond = %v, want 50.0", cfg.Server.RateLimit.RequestsPerSecond)
	}
}

func TestLoad_RateLimitConfig_BadValue(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
[server.rate_limit]
enabled = true
requests_per_second = 0
`)

	_, err := Load(cliWithPath(path))
	if err == nil {
		t.Fatal("Load() expected error for rate limit enabled with requests_per_second=0, got nil")
	}
	if !strings.Contains(err.Error(), "requests_per_second") {
		t.Errorf("error = %q, want mention of requests_per_second", err)
	}
}

func TestLoad_MetricsPathNoLeadingSlash(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
[metrics]
enabled = true
path = "metrics"
`)

	_, err := Load(cliWithPath(path))
	if err == nil {
		t.Fatal("Load() expected error for metrics.path without leading slash, got nil")
	}
	if !strings.Contains(err.Error(), "metrics.path") {
		t.Errorf("error = %q, want mention of metrics.path", err)
	}
}

func TestLoad_MetricsPathConflicts(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"healthz", "/healthz"},
		{"devserver status", "/devserver/status"},
		{"api prefix exact", "/api"},
		{"api prefix sub", "/api/metrics"},
		{"ws prefix exact", "/ws"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			cfgPath := writeConfig(t, `
[metrics]
enabled = true
path = "`+tt.path+`"
`)

			_, err := Load(cliWithPath(cfgPath))
			if err == nil {
				t.Fatalf("Load() expected error for metrics.path=%q, got nil", tt.path)
			}
			if !strings.Contains(err.Error(), "metrics.path") {
				t.Errorf("error = %q, want mention of metrics.path", err)
			}
		})
	}
}

func TestLoad_MetricsPathValid(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
[metrics]
enabled = true
path = "/custom-metrics"
`)

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Metrics.Path != "/custom-metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/custom-metrics")
	}
}

func TestLoad_MetricsDisabledSkipsPathValidation(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
[metrics]
enabled = false
path = "bad-no-slash"
`)

	_, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v; disabled metrics should skip path validation", err)
	}
}

func TestLoad_FrontendDirMissing(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
[frontend]
dir = '/nonexistent/dist'
`)

	_, err := Load(cliWithPath(path))
	if err == nil {
		t.Fatal("Load() expected error for missing frontend dir, got nil")
	}
}

func TestLoad_FrontendDirNotADirectory(t *testing.T) {
	clearEnv(t)
	file := filepath.Join(t.TempDir(), "plain.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	path := writeConfig(t, "[frontend]\ndir = '"+file+"'\n")

	_, err := Load(cliWithPath(path))
	if err == nil {
		t.Fatal("Load() expected error for frontend dir pointing at a file, got nil")
	}
}

func TestWarnPermissions_Loose(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits not meaningful on Windows")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("# test"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &Config{filePath: path}
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg.WarnPermissions(logger)

	if !strings.Contains(buf.String(), "readable by group/others") {
		t.Errorf("expected permission warning, got: %q", buf.String())
	}
}

func TestWarnPermissions_Strict(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits not meaningful on Windows")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("# test"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := &Config{filePath: path}
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg.WarnPermissions(logger)

	if buf.Len() != 0 {
		t.Errorf("expected no warning for 0600 file, got: %q", buf.String())
	}
}

func TestWarnPermissions_NoFile(t *testing.T) {
	cfg := &Config{}
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg.WarnPermissions(logger)

	if buf.Len() != 0 {
		t.Errorf("expected no warning when running without a config file, got: %q", buf.String())
	}
}

func TestFindConfigInPaths_Found(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("# test\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got := findConfigInPaths([]string{path})
	if got != path {
		t.Errorf("findConfigInPaths() = %q, want %q", got, path)
	}
}

func TestFindConfigInPaths_NotFound(t *testing.T) {
	got := findConfigInPaths([]string{"/nonexistent/a.toml", "/nonexistent/b.toml"})
	if got != "" {
		t.Errorf("findConfigInPaths() = %q, want empty", got)
	}
}

func TestFindConfigInPaths_Priority(t *testing.T) {
	dir1 := t.TempDir()
	dir2 := t.TempDir()
	path1 := filepath.Join(dir1, "config.toml")
	path2 := filepath.Join(dir2, "config.toml")
	for _, p := range []string{path1, path2} {
		if err := os.WriteFile(p, []byte("# test\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	got := findConfigInPaths([]string{path1, path2})
	if got != path1 {
		t.Errorf("findConfigInPaths() = %q, want first match %q", got, path1)
	}
}

func TestServerConfig_Addr(t *testing.T) {
	sc := &ServerConfig{Host: "127.0.0.1", Port: 5173}
	want := "127.0.0.1:5173"
	if got := sc.Addr(); got != want {
		t.Errorf("Addr() = %q, want %q", got, want)
	}
}

func TestBackendConfig_Targets(t *testing.T) {
	bc := &BackendConfig{Host: "10.1.2.3", Port: 8000}
	if got, want := bc.APITarget(), "http://10.1.2.3:8000"; got != want {
		t.Errorf("APITarget() = %q, want %q", got, want)
	}
	if got, want := bc.WSTarget(), "ws://10.1.2.3:8000"; got != want {
		t.Errorf("WSTarget() = %q, want %q", got, want)
	}
}
