package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "wardsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, used, err := Load(Source{})
	require.NoError(t, err)

	assert.Empty(t, used)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_ExplicitFile(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
database: /var/lib/wardsync/ward.db
server_url: https://hospital.example/api
concurrency: 3
lease_ttl: 2m
max_attempts: 0
interval: 45s
headers:
  X-Ward: icu
log:
  level: debug
  format: json
`)

	cfg, used, err := Load(Source{Path: path})
	require.NoError(t, err)

	assert.Equal(t, path, used)
	assert.Equal(t, "/var/lib/wardsync/ward.db", cfg.Database)
	assert.Equal(t, "https://hospital.example/api", cfg.ServerURL)
	assert.Equal(t, 3, cfg.Concurrency)
	assert.Equal(t, 2*time.Minute, cfg.LeaseTTL)
	assert.Equal(t, 0, cfg.MaxAttempts)
	assert.Equal(t, 45*time.Second, cfg.Interval)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	// Unset keys keep their defaults.
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 100, cfg.Log.MaxSizeMB)

	// Keys are case-insensitive; HTTP canonicalizes them again on send.
	assert.Equal(t, "icu", cfg.Headers["x-ward"])
}

func TestLoad_SearchesWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "server_url: http://localhost:9000\n")
	t.Chdir(dir)
	t.Setenv("HOME", t.TempDir())

	cfg, used, err := Load(Source{})
	require.NoError(t, err)

	assert.NotEmpty(t, used)
	assert.Equal(t, "http://localhost:9000", cfg.ServerURL)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, _, err := Load(Source{Path: filepath.Join(t.TempDir(), "absent.yaml")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoad_MalformedFile(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "concurrency: [unclosed\n")

	_, _, err := Load(Source{Path: path})
	require.Error(t, err)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "server_url: http://from-file\nconcurrency: 2\n")
	t.Setenv("WARDSYNC_SERVER_URL", "http://from-env")
	t.Setenv("WARDSYNC_LOG_LEVEL", "warn")

	cfg, _, err := Load(Source{Path: path})
	require.NoError(t, err)

	assert.Equal(t, "http://from-env", cfg.ServerURL)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 2, cfg.Concurrency)
}

func TestLoad_ChangedFlagsWin(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "server_url: http://from-file\ndatabase: file.db\n")
	t.Setenv("WARDSYNC_SERVER_URL", "http://from-env")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("server-url", "", "")
	flags.String("database", "flag-default.db", "")
	flags.String("log-level", "", "")
	flags.Bool("unrelated", false, "")
	require.NoError(t, flags.Parse([]string{"--server-url", "http://from-flag", "--log-level", "error"}))

	cfg, _, err := Load(Source{Path: path, Flags: flags})
	require.NoError(t, err)

	assert.Equal(t, "http://from-flag", cfg.ServerURL)
	assert.Equal(t, "error", cfg.Log.Level)
	// Flag left at its default does not override the file.
	assert.Equal(t, "file.db", cfg.Database)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "concurrency: 0\nmax_attempts: -1\nlog:\n  format: xml\n")

	_, _, err := Load(Source{Path: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "concurrency")
	assert.Contains(t, err.Error(), "max_attempts")
	assert.Contains(t, err.Error(), "log.format")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "default is valid", mutate: func(*Config) {}},
		{name: "unlimited attempts", mutate: func(c *Config) { c.MaxAttempts = 0 }},
		{name: "periodic sync disabled", mutate: func(c *Config) { c.Interval = 0 }},
		{name: "empty database", mutate: func(c *Config) { c.Database = "" }, wantErr: "database"},
		{name: "zero lease", mutate: func(c *Config) { c.LeaseTTL = 0 }, wantErr: "lease_ttl"},
		{name: "lease below minimum", mutate: func(c *Config) { c.LeaseTTL = 2 * time.Nanosecond }, wantErr: "lease_ttl must be at least 1s"},
		{name: "minimum lease", mutate: func(c *Config) { c.LeaseTTL = MinLeaseTTL }},
		{name: "negative timeout", mutate: func(c *Config) { c.RequestTimeout = -time.Second }, wantErr: "negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
