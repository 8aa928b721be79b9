package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// Config holds all cachegate configuration.
type Config struct {
	Listen     string           `yaml:"listen"`
	DataDir    string           `yaml:"data_dir"`
	Storage    StorageConfig    `yaml:"storage"`
	Cache      CacheConfig      `yaml:"cache"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Classifier ClassifierConfig `yaml:"classifier"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Log        LogConfig        `yaml:"log"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// StorageConfig selects the durable medium for every collection.
type StorageConfig struct {
	Driver     string      `yaml:"driver"`
	SQLitePath string      `yaml:"sqlite_path"`
	Redis      RedisConfig `yaml:"redis"`
}

// RedisConfig points at a redis server.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// CacheConfig controls the two-tier response cache.
type CacheConfig struct {
	MemoryTTL time.Duration `yaml:"memory_ttl"`
}

// ProvidersConfig holds per-provider endpoints.
type ProvidersConfig struct {
	Ollama OllamaConfig `yaml:"ollama"`
	Gemini GeminiConfig `yaml:"gemini"`
}

// OllamaConfig defines the Ollama-compatible generate endpoint.
type OllamaConfig struct {
	Endpoint     string        `yaml:"endpoint"`
	DefaultModel string        `yaml:"default_model"`
	Timeout      time.Duration `yaml:"timeout"`
}

// GeminiConfig defines the Gemini REST API.
type GeminiConfig struct {
	BaseURL    string        `yaml:"base_url"`
	TextModel  string        `yaml:"text_model"`
	ImageModel string        `yaml:"image_model"`
	Timeout    time.Duration `yaml:"timeout"`
}

// ClassifierConfig controls the cache policy classifier.
// APIKey overrides the stored google-gemini key when set.
type ClassifierConfig struct {
	Enabled bool          `yaml:"enabled"`
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// RateLimitConfig limits requests per client IP. RPS <= 0 disables it.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen:  ":3000",
		DataDir: "data",
		Storage: StorageConfig{
			Driver: DriverFile,
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "cachegate:",
			},
		},
		Cache: CacheConfig{
			MemoryTTL: 6 * time.Hour,
		},
		Providers: ProvidersConfig{
			Ollama: OllamaConfig{
				Endpoint:     "http://localhost:11434/api/generate",
				DefaultModel: "llama3.1:8b",
				Timeout:      2 * time.Minute,
			},
			Gemini: GeminiConfig{
				BaseURL:    "https://generativelanguage.googleapis.com/v1beta",
				TextModel:  "gemini-2.0-flash",
				ImageModel: "gemini-2.0-flash-preview-image-generation",
				Timeout:    2 * time.Minute,
			},
		},
		Classifier: ClassifierConfig{
			Enabled: true,
			Model:   "gemini-2.0-flash",
			Timeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads path, or returns Default when path is empty.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverFile, DriverSQLite, DriverRedis:
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}
	if c.Cache.MemoryTTL <= 0 {
		return fmt.Errorf("config: cache.memory_ttl must be positive")
	}
	if c.RateLimit.RPS > 0 && c.RateLimit.Burst <= 0 {
		return fmt.Errorf("config: rate_limit.burst must be positive when rps is set")
	}
	return nil
}

// SQLitePath returns the sqlite database path, defaulting into DataDir.
func (c *Config) SQLitePath() string {
	if c.Storage.SQLitePath != "" {
		return c.Storage.SQLitePath
	}
	return filepath.Join(c.DataDir, "cachegate.db")
}
