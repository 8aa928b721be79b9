package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, ":3000", cfg.Listen)
	assert.Equal(t, 6*time.Hour, cfg.Cache.MemoryTTL)
	assert.Equal(t, DriverFile, cfg.Storage.Driver)
	assert.Equal(t, "llama3.1:8b", cfg.Providers.Ollama.DefaultModel)
	assert.Equal(t, "gemini-2.0-flash", cfg.Providers.Gemini.TextModel)
	assert.Equal(t, "gemini-2.0-flash-preview-image-generation", cfg.Providers.Gemini.ImageModel)
	require.NoError(t, cfg.Validate())
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_GEMINI_KEY", "AIza-test-123")

	path := writeConfig(t, `
listen: ":9090"
data_dir: /var/lib/cachegate
storage:
  driver: sqlite
cache:
  memory_ttl: 30m
providers:
  ollama:
    endpoint: http://ollama.internal/api/generate
classifier:
  api_key: ${TEST_GEMINI_KEY}
rate_limit:
  rps: 5
  burst: 10
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, "/var/lib/cachegate/cachegate.db", cfg.SQLitePath())
	assert.Equal(t, 30*time.Minute, cfg.Cache.MemoryTTL)
	assert.Equal(t, "http://ollama.internal/api/generate", cfg.Providers.Ollama.Endpoint)
	assert.Equal(t, "llama3.1:8b", cfg.Providers.Ollama.DefaultModel, "unset fields keep defaults")
	assert.Equal(t, "AIza-test-123", cfg.Classifier.APIKey, "env var not expanded")
	assert.Equal(t, 5.0, cfg.RateLimit.RPS)
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestLoadOrDefaultEmptyPath(t *testing.T) {
	cfg, err := LoadOrDefault("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.Storage.Driver = "mongo" }},
		{"zero ttl", func(c *Config) { c.Cache.MemoryTTL = 0 }},
		{"rps without burst", func(c *Config) { c.RateLimit.RPS = 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := writeConfig(t, "storage:\n  driver: etcd\n")
	_, err := Load(path)
	assert.Error(t, err)
}
