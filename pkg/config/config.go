// Package config holds the run configuration: defaults, an optional YAML
// file and FPL_* environment overrides, applied in that order.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/Sternrassler/fpl-league-fetcher/pkg/batch"
	"github.com/Sternrassler/fpl-league-fetcher/pkg/cache"
	"github.com/Sternrassler/fpl-league-fetcher/pkg/client"
	"github.com/Sternrassler/fpl-league-fetcher/pkg/gate"
	"github.com/Sternrassler/fpl-league-fetcher/pkg/ratelimit"
	"gopkg.in/yaml.v3"
)

// Config is the full set of recognized options.
type Config struct {
	BaseURL        string        `yaml:"base_url"`
	UserAgent      string        `yaml:"user_agent"`
	Concurrency    int           `yaml:"concurrency"`
	BatchSize      int           `yaml:"batch_size"`
	Retries        int           `yaml:"retries"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	RateLimitWait  time.Duration `yaml:"rate_limit_wait"`
	BackoffBase    time.Duration `yaml:"backoff_base"`
	Jitter         time.Duration `yaml:"jitter"`
	CABundle       string        `yaml:"ca_bundle"`

	InputPath  string `yaml:"input_path"`
	OutputPath string `yaml:"output_path"`
	ReportPath string `yaml:"report_path"`

	RedisURL string        `yaml:"redis_url"`
	CacheTTL time.Duration `yaml:"cache_ttl"`

	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
	LogPretty   bool   `yaml:"log_pretty"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	cc := client.DefaultConfig()
	return Config{
		BaseURL:        cc.BaseURL,
		UserAgent:      cc.UserAgent,
		Concurrency:    gate.DefaultCapacity,
		BatchSize:      batch.DefaultBatchSize,
		Retries:        cc.MaxRetries,
		RequestTimeout: cc.RequestTimeout,
		RateLimitWait:  ratelimit.DefaultWait,
		BackoffBase:    cc.BackoffBase,
		Jitter:         cc.Jitter,
		InputPath:      "entries.json",
		OutputPath:     "league_data.json",
		ReportPath:     "failed_entries.json",
		CacheTTL:       cache.DefaultTTL,
		LogLevel:       "info",
	}
}

// Load builds a config from defaults, the YAML file at path (skipped when
// path is empty) and the environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// durationKeys are the YAML keys holding durations. Like their environment
// variables they accept bare integers as seconds.
var durationKeys = map[string]bool{
	"request_timeout": true,
	"rate_limit_wait": true,
	"backoff_base":    true,
	"jitter":          true,
	"cache_ttl":       true,
}

// UnmarshalYAML decodes a config mapping, reading integer durations as seconds.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(value.Content); i += 2 {
			key, val := value.Content[i], value.Content[i+1]
			if durationKeys[key.Value] && val.Kind == yaml.ScalarNode && val.ShortTag() == "!!int" {
				val.Tag = "!!str"
				val.Value += "s"
			}
		}
	}

	type plain Config
	return value.Decode((*plain)(c))
}

// ApplyEnv overrides fields from FPL_* environment variables.
func (c *Config) ApplyEnv() error {
	c.BaseURL = getEnv("FPL_BASE_URL", c.BaseURL)
	c.UserAgent = getEnv("FPL_USER_AGENT", c.UserAgent)
	c.CABundle = getEnv("FPL_CA_BUNDLE", c.CABundle)
	c.InputPath = getEnv("FPL_INPUT", c.InputPath)
	c.OutputPath = getEnv("FPL_OUTPUT", c.OutputPath)
	c.ReportPath = getEnv("FPL_REPORT", c.ReportPath)
	c.RedisURL = getEnv("FPL_REDIS_URL", c.RedisURL)
	c.MetricsAddr = getEnv("FPL_METRICS_ADDR", c.MetricsAddr)
	c.LogLevel = getEnv("FPL_LOG_LEVEL", c.LogLevel)

	var err error
	if c.Concurrency, err = getEnvInt("FPL_CONCURRENCY", c.Concurrency); err != nil {
		return err
	}
	if c.BatchSize, err = getEnvInt("FPL_BATCH_SIZE", c.BatchSize); err != nil {
		return err
	}
	if c.Retries, err = getEnvInt("FPL_RETRIES", c.Retries); err != nil {
		return err
	}
	if c.RequestTimeout, err = getEnvDuration("FPL_REQUEST_TIMEOUT", c.RequestTimeout); err != nil {
		return err
	}
	if c.RateLimitWait, err = getEnvDuration("FPL_RATE_LIMIT_WAIT", c.RateLimitWait); err != nil {
		return err
	}
	if c.BackoffBase, err = getEnvDuration("FPL_BACKOFF_BASE", c.BackoffBase); err != nil {
		return err
	}
	if c.Jitter, err = getEnvDuration("FPL_JITTER", c.Jitter); err != nil {
		return err
	}
	if c.CacheTTL, err = getEnvDuration("FPL_CACHE_TTL", c.CacheTTL); err != nil {
		return err
	}
	if v := os.Getenv("FPL_LOG_PRETTY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid FPL_LOG_PRETTY: %w", err)
		}
		c.LogPretty = b
	}

	return nil
}

// Validate rejects configurations the run cannot work with.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid base_url: %q", c.BaseURL)
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("invalid concurrency: %d", c.Concurrency)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("invalid batch_size: %d", c.BatchSize)
	}
	if c.Retries <= 0 {
		return fmt.Errorf("invalid retries: %d", c.Retries)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("invalid request_timeout: %v", c.RequestTimeout)
	}
	if c.RateLimitWait < 0 {
		return fmt.Errorf("invalid rate_limit_wait: %v", c.RateLimitWait)
	}
	if c.BackoffBase < 0 {
		return fmt.Errorf("invalid backoff_base: %v", c.BackoffBase)
	}
	if c.Jitter < 0 {
		return fmt.Errorf("invalid jitter: %v", c.Jitter)
	}
	if c.InputPath == "" {
		return fmt.Errorf("input_path is required")
	}
	if c.OutputPath == "" {
		return fmt.Errorf("output_path is required")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	// bare integers are seconds
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
