// Package config loads client and development-backend settings. Sources
// apply in order, later ones winning: built-in defaults, an optional YAML
// file, an optional .env file, then BUYMOVE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/buymove/buymove-client/pkg/kv"
)

// Config holds every setting.
type Config struct {
	APIBaseURL string `yaml:"api_base_url"`
	// UseMocks pins catalog and favorites to local data.
	UseMocks bool          `yaml:"use_mocks"`
	Timeout  time.Duration `yaml:"timeout"`
	// RateLimit is requests per second to the backend; 0 is unlimited.
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`
	NATSURL   string  `yaml:"nats_url"`

	Store  StoreConfig  `yaml:"store"`
	Log    LogConfig    `yaml:"log"`
	DevAPI DevAPIConfig `yaml:"devapi"`
}

// StoreConfig selects the persisted key/value store.
type StoreConfig struct {
	Driver string `yaml:"driver"`
	// Path is a directory for file and a database file for sqlite drivers.
	// Empty means a location under the user config directory.
	Path   string `yaml:"path"`
	Bucket string `yaml:"bucket"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

// DevAPIConfig configures cmd/devapi.
type DevAPIConfig struct {
	Addr       string        `yaml:"addr"`
	JWTSecret  string        `yaml:"jwt_secret"`
	TokenTTL   time.Duration `yaml:"token_ttl"`
	CORSOrigin string        `yaml:"cors_origin"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		APIBaseURL: "http://localhost:8000",
		UseMocks:   true,
		Timeout:    10 * time.Second,
		Burst:      1,
		NATSURL:    "nats://127.0.0.1:4222",
		Store:      StoreConfig{Driver: "file", Bucket: "buymove"},
		Log:        LogConfig{Level: "info", Format: "console"},
		DevAPI: DevAPIConfig{
			Addr:       ":8000",
			JWTSecret:  "buymove-dev-secret",
			TokenTTL:   time.Hour,
			CORSOrigin: "*",
		},
	}
}

// Load builds a Config. yamlPath and envPath may be empty; a missing .env
// file is not an error, a missing YAML file is.
func Load(yamlPath, envPath string) (Config, error) {
	cfg := Default()
	if yamlPath != "" {
		raw, err := os.ReadFile(yamlPath)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", yamlPath, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", yamlPath, err)
		}
	}

	dotenv := map[string]string{}
	if envPath != "" {
		m, err := godotenv.Read(envPath)
		switch {
		case err == nil:
			dotenv = m
		case !errors.Is(err, os.ErrNotExist):
			return cfg, fmt.Errorf("config: read %s: %w", envPath, err)
		}
	}
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("BUYMOVE_API_BASE_URL", &c.APIBaseURL)
	str("BUYMOVE_NATS_URL", &c.NATSURL)
	str("BUYMOVE_STORE_DRIVER", &c.Store.Driver)
	str("BUYMOVE_STORE_PATH", &c.Store.Path)
	str("BUYMOVE_STORE_BUCKET", &c.Store.Bucket)
	str("BUYMOVE_LOG_LEVEL", &c.Log.Level)
	str("BUYMOVE_LOG_FORMAT", &c.Log.Format)
	str("BUYMOVE_DEVAPI_ADDR", &c.DevAPI.Addr)
	str("BUYMOVE_JWT_SECRET", &c.DevAPI.JWTSecret)
	str("BUYMOVE_CORS_ORIGIN", &c.DevAPI.CORSOrigin)

	if v, ok := lookup("BUYMOVE_USE_MOCKS"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: BUYMOVE_USE_MOCKS: %w", err)
		}
		c.UseMocks = b
	}
	if v, ok := lookup("BUYMOVE_TIMEOUT"); ok && v != "" {
		d, err := ParseTimeout(v)
		if err != nil {
			return fmt.Errorf("config: BUYMOVE_TIMEOUT: %w", err)
		}
		c.Timeout = d
	}
	if v, ok := lookup("BUYMOVE_RATE_LIMIT"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("config: BUYMOVE_RATE_LIMIT: %w", err)
		}
		c.RateLimit = f
	}
	return nil
}

// ParseTimeout accepts a Go duration ("10s") or a bare number of
// milliseconds ("10000").
func ParseTimeout(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if ms, err := strconv.Atoi(s); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(s)
}

// Validate rejects settings no component could run with.
func (c Config) Validate() error {
	var errs []error
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %s", c.Timeout))
	}
	if !slices.Contains(kv.Drivers, strings.ToLower(c.Store.Driver)) {
		errs = append(errs, fmt.Errorf("unknown store driver %q (want one of %s)", c.Store.Driver, strings.Join(kv.Drivers, ", ")))
	}
	if u, err := url.Parse(c.APIBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("api base url %q is not absolute", c.APIBaseURL))
	}
	if c.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("rate limit must not be negative, got %g", c.RateLimit))
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	if strings.EqualFold(c.Store.Driver, "nats") && c.NATSURL == "" {
		errs = append(errs, errors.New("nats store driver needs a nats url"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// StorePath resolves Store.Path, defaulting under the user config
// directory: a directory for the file driver, buymove.db for sqlite.
func (c Config) StorePath() string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	base, err := os.UserConfigDir()
	if err != nil {
		base = "."
	}
	dir := filepath.Join(base, "buymove")
	switch strings.ToLower(c.Store.Driver) {
	case "sqlite", "sqlite3":
		return filepath.Join(dir, "buymove.db")
	default:
		return dir
	}
}
