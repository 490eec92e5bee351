package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestDefaults(t *testing.T) {
	cfg, err := Load("", "")
	require.NoError(t, err)
	assert.True(t, cfg.UseMocks)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, "file", cfg.Store.Driver)
	assert.Equal(t, "http://localhost:8000", cfg.APIBaseURL)
}

func TestLayering(t *testing.T) {
	yml := writeFile(t, "buymove.yaml", `
api_base_url: https://api.example.com
use_mocks: false
timeout: 3s
store:
  driver: sqlite
  path: /tmp/from-yaml.db
log:
  level: debug
  format: json
`)
	env := writeFile(t, ".env", "BUYMOVE_TIMEOUT=2500\nBUYMOVE_STORE_DRIVER=sqlite3\n")
	t.Setenv("BUYMOVE_STORE_DRIVER", "memory")

	cfg, err := Load(yml, env)
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com", cfg.APIBaseURL)
	assert.False(t, cfg.UseMocks)
	assert.Equal(t, 2500*time.Millisecond, cfg.Timeout, ".env beats yaml")
	assert.Equal(t, "memory", cfg.Store.Driver, "environment beats .env")
	assert.Equal(t, "/tmp/from-yaml.db", cfg.Store.Path)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestMissingDotenvIsIgnored(t *testing.T) {
	_, err := Load("", filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
}

func TestMissingYAMLFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), "")
	require.Error(t, err)
}

func TestBadEnvValues(t *testing.T) {
	for key, val := range map[string]string{
		"BUYMOVE_USE_MOCKS":  "talvez",
		"BUYMOVE_TIMEOUT":    "soon",
		"BUYMOVE_RATE_LIMIT": "fast",
	} {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			_, err := Load("", "")
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, "timeout must be positive"},
		{"unknown driver", func(c *Config) { c.Store.Driver = "redis" }, `unknown store driver "redis"`},
		{"relative url", func(c *Config) { c.APIBaseURL = "/api" }, "not absolute"},
		{"negative rate", func(c *Config) { c.RateLimit = -1 }, "rate limit"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "loud"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log format"},
		{"nats without url", func(c *Config) { c.Store.Driver = "nats"; c.NATSURL = "" }, "nats url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
	require.NoError(t, Default().Validate())
}

func TestParseTimeout(t *testing.T) {
	d, err := ParseTimeout("10000")
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, d)
	d, err = ParseTimeout(" 1m ")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, d)
}

func TestStorePath(t *testing.T) {
	cfg := Default()
	cfg.Store.Path = "/data"
	assert.Equal(t, "/data", cfg.StorePath())

	cfg.Store.Path = ""
	cfg.Store.Driver = "sqlite"
	assert.Equal(t, "buymove.db", filepath.Base(cfg.StorePath()))
	cfg.Store.Driver = "file"
	assert.Equal(t, "buymove", filepath.Base(cfg.StorePath()))
}
