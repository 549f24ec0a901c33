// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Extract   ExtractConfig   `mapstructure:"extract"`
	Batch     BatchConfig     `mapstructure:"batch"`
	Cache     CacheConfig     `mapstructure:"cache"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int `mapstructure:"port"`
	RequestTimeout int `mapstructure:"request_timeout_seconds"`
}

// QueueConfig governs admission control.
type QueueConfig struct {
	MaxConcurrency int `mapstructure:"max_concurrency"`
	MaxQueueSize   int `mapstructure:"max_queue_size"`
	TimeoutMs      int `mapstructure:"timeout_ms"`
}

// BrowserConfig configures the isolated browser subsystem.
type BrowserConfig struct {
	Headless            bool   `mapstructure:"headless"`
	NoSandbox           bool   `mapstructure:"no_sandbox"`
	UserAgent           string `mapstructure:"user_agent"`
	LaunchRetries       int    `mapstructure:"launch_retries"`
	LaunchBackoffMs     int    `mapstructure:"launch_backoff_ms"`
	WarmupTimeoutSec    int    `mapstructure:"warmup_timeout_seconds"`
	ReadyProbeCacheSecs int    `mapstructure:"ready_probe_cache_seconds"`
}

// ExtractConfig governs the retry loop per target.
type ExtractConfig struct {
	MaxAttempts       int `mapstructure:"max_attempts"`
	BackoffBaseMs     int `mapstructure:"backoff_base_ms"`
	AttemptTimeoutSec int `mapstructure:"attempt_timeout_seconds"`
	ProbeTimeoutSec   int `mapstructure:"probe_timeout_seconds"`
}

// BatchConfig bounds playlist fan-out.
type BatchConfig struct {
	DefaultConcurrency int `mapstructure:"default_concurrency"`
	MaxConcurrency     int `mapstructure:"max_concurrency"`
	MaxItems           int `mapstructure:"max_items"`
}

// CacheConfig selects and tunes the transcript cache.
type CacheConfig struct {
	Provider string `mapstructure:"provider"`
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	TTLHours int    `mapstructure:"ttl_hours"`
	MaxSize  int    `mapstructure:"max_size"`
}

// RateLimitConfig paces navigations per host.
type RateLimitConfig struct {
	QPS   float64 `mapstructure:"qps"`
	Burst int     `mapstructure:"burst"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TRANSCRIPTD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 300)
	v.SetDefault("queue.max_concurrency", 2)
	v.SetDefault("queue.max_queue_size", 16)
	v.SetDefault("queue.timeout_ms", 30000)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.no_sandbox", false)
	v.SetDefault("browser.user_agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36")
	v.SetDefault("browser.launch_retries", 2)
	v.SetDefault("browser.launch_backoff_ms", 1000)
	v.SetDefault("browser.warmup_timeout_seconds", 20)
	v.SetDefault("browser.ready_probe_cache_seconds", 10)
	v.SetDefault("extract.max_attempts", 3)
	v.SetDefault("extract.backoff_base_ms", 2000)
	v.SetDefault("extract.attempt_timeout_seconds", 60)
	v.SetDefault("extract.probe_timeout_seconds", 10)
	v.SetDefault("batch.default_concurrency", 2)
	v.SetDefault("batch.max_concurrency", 4)
	v.SetDefault("batch.max_items", 100)
	v.SetDefault("cache.provider", "memory")
	v.SetDefault("cache.table", "transcripts")
	v.SetDefault("cache.ttl_hours", 24)
	v.SetDefault("cache.max_size", 1000)
	v.SetDefault("ratelimit.qps", 0.5)
	v.SetDefault("ratelimit.burst", 1)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Queue.MaxConcurrency <= 0 {
		return fmt.Errorf("queue.max_concurrency must be > 0")
	}
	if c.Queue.MaxQueueSize < c.Queue.MaxConcurrency {
		return fmt.Errorf("queue.max_queue_size must be >= queue.max_concurrency")
	}
	if c.Queue.TimeoutMs <= 0 {
		return fmt.Errorf("queue.timeout_ms must be > 0")
	}
	if c.Extract.MaxAttempts <= 0 {
		return fmt.Errorf("extract.max_attempts must be > 0")
	}
	if c.Batch.MaxConcurrency <= 0 {
		return fmt.Errorf("batch.max_concurrency must be > 0")
	}
	switch c.Cache.Provider {
	case "memory", "noop":
	case "postgres":
		if c.Cache.DSN == "" {
			return fmt.Errorf("cache.dsn is required for the postgres provider")
		}
	default:
		return fmt.Errorf("unknown cache provider %q", c.Cache.Provider)
	}
	return nil
}

// QueueTimeout returns the configured queue wait deadline.
func (c Config) QueueTimeout() time.Duration {
	return time.Duration(c.Queue.TimeoutMs) * time.Millisecond
}

// CacheTTL returns the configured cache TTL.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLHours) * time.Hour
}
