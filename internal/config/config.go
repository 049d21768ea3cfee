// Package config loads wardsync settings from defaults, an optional YAML
// file, WARDSYNC_* environment variables and command-line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes every environment override, e.g. WARDSYNC_SERVER_URL.
	EnvPrefix = "WARDSYNC"

	// FileName is the config file name searched for when no path is given.
	FileName = "wardsync"
)

// MinLeaseTTL is the shortest sync lease a configuration may request.
const MinLeaseTTL = time.Second

// Config holds every setting the CLI and daemon need.
type Config struct {
	// Database is the SQLite file backing the Local Store.
	Database string `mapstructure:"database"`
	// ServerURL is the base URL of the authoritative server.
	ServerURL string `mapstructure:"server_url"`

	Concurrency    int               `mapstructure:"concurrency"`
	LeaseTTL       time.Duration     `mapstructure:"lease_ttl"`
	MaxAttempts    int               `mapstructure:"max_attempts"`
	Interval       time.Duration     `mapstructure:"interval"`
	ProbeInterval  time.Duration     `mapstructure:"probe_interval"`
	RequestTimeout time.Duration     `mapstructure:"request_timeout"`
	Headers        map[string]string `mapstructure:"headers"`

	Log LogConfig `mapstructure:"log"`
}

// LogConfig selects the process logger.
type LogConfig struct {
	Level      string `mapstructure:"level"`  // debug | info | warn | error
	Format     string `mapstructure:"format"` // text | json
	File       string `mapstructure:"file"`   // empty means stderr
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Database:       "wardsync.db",
		Concurrency:    8,
		LeaseTTL:       5 * time.Minute,
		MaxAttempts:    10,
		Interval:       30 * time.Second,
		ProbeInterval:  10 * time.Second,
		RequestTimeout: 30 * time.Second,
		Headers:        map[string]string{},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  100,
			MaxBackups: 5,
		},
	}
}

// Source says where to read settings from besides defaults and environment.
type Source struct {
	// Path is an explicit config file. When empty, wardsync.yaml is searched
	// for in the working directory and $HOME/.config/wardsync, and a missing
	// file is not an error.
	Path string

	// Flags are bound by name; a flag named "server-url" overrides the
	// server_url key when it was set on the command line.
	Flags *pflag.FlagSet
}

// Load resolves the configuration from src.
// Returns the resolved config and the config file used (empty if none).
func Load(src Source) (Config, string, error) {
	v := newViper()

	if src.Path != "" {
		v.SetConfigFile(src.Path)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "wardsync"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if src.Path != "" || !errors.As(err, &notFound) {
			return Config{}, "", fmt.Errorf("read config: %w", err)
		}
	}

	if src.Flags != nil {
		if err := bindFlags(v, src.Flags); err != nil {
			return Config{}, "", err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, "", fmt.Errorf("decode config: %w", err)
	}
	if cfg.Headers == nil {
		cfg.Headers = map[string]string{}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, "", err
	}
	return cfg, v.ConfigFileUsed(), nil
}

// Validate rejects settings the engine cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Database == "" {
		errs = append(errs, errors.New("database must not be empty"))
	}
	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency))
	}
	if c.LeaseTTL < MinLeaseTTL {
		errs = append(errs, fmt.Errorf("lease_ttl must be at least %s, got %s", MinLeaseTTL, c.LeaseTTL))
	}
	if c.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("max_attempts must not be negative, got %d", c.MaxAttempts))
	}
	if c.Interval < 0 || c.ProbeInterval < 0 || c.RequestTimeout < 0 {
		errs = append(errs, errors.New("intervals and timeouts must not be negative"))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func newViper() *viper.Viper {
	v := viper.New()

	d := Default()
	v.SetDefault("database", d.Database)
	v.SetDefault("server_url", d.ServerURL)
	v.SetDefault("concurrency", d.Concurrency)
	v.SetDefault("lease_ttl", d.LeaseTTL)
	v.SetDefault("max_attempts", d.MaxAttempts)
	v.SetDefault("interval", d.Interval)
	v.SetDefault("probe_interval", d.ProbeInterval)
	v.SetDefault("request_timeout", d.RequestTimeout)
	v.SetDefault("headers", d.Headers)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)

	// log.level -> WARDSYNC_LOG_LEVEL
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// bindFlags binds every flag whose name matches a known key. Dashes map to
// underscores and "log-" to the log section.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		key := strings.ReplaceAll(f.Name, "-", "_")
		if rest, ok := strings.CutPrefix(key, "log_"); ok {
			key = "log." + rest
		}
		if !isKnownKey(key) {
			return
		}
		if bindErr := v.BindPFlag(key, f); bindErr != nil {
			err = fmt.Errorf("bind flag %s: %w", f.Name, bindErr)
		}
	})
	return err
}

func isKnownKey(key string) bool {
	switch key {
	case "database", "server_url", "concurrency", "lease_ttl", "max_attempts",
		"interval", "probe_interval", "request_timeout", "headers",
		"log.level", "log.format", "log.file", "log.max_size_mb", "log.max_backups":
		return true
	}
	return false
}
