// Package config loads process configuration once at startup: defaults,
// then an optional YAML file named by CACHEGATE_CONFIG, then environment
// overrides. The resulting value is immutable for the process lifetime —
// retention changes require a restart, not implicit mutation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port string `yaml:"port"`

	CacheEnabled           bool    `yaml:"cache_enabled"`
	CacheTTLSeconds        int     `yaml:"cache_ttl_seconds"`
	PIIConfidenceThreshold float64 `yaml:"pii_confidence_threshold"`
	MaxEntriesPerTenant    int     `yaml:"max_entries_per_tenant"`
	ScanVersion            int     `yaml:"pii_scan_version"`

	StoreBackend string `yaml:"store_backend"` // "sqlite" or "redis"
	SQLitePath   string `yaml:"sqlite_path"`
	RedisAddr    string `yaml:"redis_addr"`

	EphemeralMaxEntries  int `yaml:"ephemeral_max_entries"`
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds"`

	// Empty AnalyzerURL selects the built-in heuristic recognizer.
	AnalyzerURL       string `yaml:"pii_analyzer_url"`
	AnalyzerAPIKey    string `yaml:"pii_analyzer_api_key"`
	AnalyzerTimeoutMS int    `yaml:"pii_analyzer_timeout_ms"`
}

func Default() Config {
	return Config{
		Port:                   "8080",
		CacheEnabled:           true,
		CacheTTLSeconds:        2592000, // 30 days
		PIIConfidenceThreshold: 0.4,     // low on purpose: false positives over false negatives
		MaxEntriesPerTenant:    10000,
		ScanVersion:            1,
		StoreBackend:           "sqlite",
		SQLitePath:             "cachegate.db",
		RedisAddr:              "127.0.0.1:6379",
		EphemeralMaxEntries:    1024,
		SweepIntervalSeconds:   86400,
		AnalyzerTimeoutMS:      2000,
	}
}

// Load assembles the effective configuration. Env wins over file wins
// over defaults.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("CACHEGATE_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing YAML config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Port = getenv("PORT", c.Port)
	c.CacheEnabled = getenvBool("CACHE_ENABLED", c.CacheEnabled)
	c.CacheTTLSeconds = getenvInt("CACHE_TTL_SECONDS", c.CacheTTLSeconds)
	c.PIIConfidenceThreshold = getenvFloat("PII_CONFIDENCE_THRESHOLD", c.PIIConfidenceThreshold)
	c.MaxEntriesPerTenant = getenvInt("MAX_ENTRIES_PER_TENANT", c.MaxEntriesPerTenant)
	c.ScanVersion = getenvInt("PII_SCAN_VERSION", c.ScanVersion)
	c.StoreBackend = getenv("STORE_BACKEND", c.StoreBackend)
	c.SQLitePath = getenv("SQLITE_PATH", c.SQLitePath)
	c.RedisAddr = getenv("REDIS_ADDR", c.RedisAddr)
	c.EphemeralMaxEntries = getenvInt("EPHEMERAL_MAX_ENTRIES", c.EphemeralMaxEntries)
	c.SweepIntervalSeconds = getenvInt("SWEEP_INTERVAL_SECONDS", c.SweepIntervalSeconds)
	c.AnalyzerURL = getenv("PII_ANALYZER_URL", c.AnalyzerURL)
	c.AnalyzerAPIKey = getenv("PII_ANALYZER_API_KEY", c.AnalyzerAPIKey)
	c.AnalyzerTimeoutMS = getenvInt("PII_ANALYZER_TIMEOUT_MS", c.AnalyzerTimeoutMS)
}

func (c Config) Validate() error {
	switch c.StoreBackend {
	case "sqlite", "redis":
	default:
		return fmt.Errorf("config: unknown store_backend %q (use sqlite or redis)", c.StoreBackend)
	}
	if c.CacheTTLSeconds <= 0 {
		return fmt.Errorf("config: cache_ttl_seconds must be positive")
	}
	if c.PIIConfidenceThreshold < 0 || c.PIIConfidenceThreshold > 1 {
		return fmt.Errorf("config: pii_confidence_threshold must be in [0,1]")
	}
	if c.ScanVersion <= 0 {
		return fmt.Errorf("config: pii_scan_version must be positive")
	}
	return nil
}

func (c Config) TTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

func (c Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

func (c Config) AnalyzerTimeout() time.Duration {
	return time.Duration(c.AnalyzerTimeoutMS) * time.Millisecond
}

// getenv returns the value of the environment variable key or def if not set.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
