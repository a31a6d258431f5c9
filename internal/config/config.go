// Package config loads runtime configuration: built-in defaults, an
// optional YAML file on top, then environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// RateLimit is one sliding window of the outbound limiter group.
type RateLimit struct {
	Interval time.Duration `yaml:"interval"`
	Limit    int           `yaml:"limit"`
}

// Config is the full runtime configuration.
type Config struct {
	Listen         string        `yaml:"listen"`
	ESIBaseURL     string        `yaml:"esi_base_url"`
	HoboURL        string        `yaml:"hobo_url"`
	HoboTTL        time.Duration `yaml:"hobo_ttl"`
	SDEPath        string        `yaml:"sde_path"`
	SnapshotPath   string        `yaml:"snapshot_path"`
	Workers        int           `yaml:"workers"`
	MaxRetries     int           `yaml:"max_retries"`
	MarketInterval time.Duration `yaml:"market_interval"`
	RateLimits     []RateLimit   `yaml:"rate_limits"`
	LogLevel       string        `yaml:"log_level"`
}

// Default returns the built-in configuration. The outbound limits
// match the API's courtesy regime: 2 per second and 120 per minute.
func Default() Config {
	return Config{
		Listen:         ":8080",
		ESIBaseURL:     "https://esi.evetech.net",
		HoboURL:        "https://sde.hoboleaks.space/tq/dynamicitemattributes.json",
		HoboTTL:        time.Hour,
		SDEPath:        "sde.sqlite",
		SnapshotPath:   "assets.cbor",
		Workers:        3,
		MaxRetries:     3,
		MarketInterval: 15 * time.Minute,
		RateLimits: []RateLimit{
			{Interval: time.Second, Limit: 2},
			{Interval: time.Minute, Limit: 120},
		},
		LogLevel: "info",
	}
}

// Load reads path over the defaults; a missing file is not an error.
// Environment variables override last.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("ABYSSRUN_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("ABYSSRUN_ESI_BASE_URL"); v != "" {
		c.ESIBaseURL = v
	}
	if v := os.Getenv("ABYSSRUN_SDE_PATH"); v != "" {
		c.SDEPath = v
	}
	if v := os.Getenv("ABYSSRUN_SNAPSHOT_PATH"); v != "" {
		c.SnapshotPath = v
	}
	if v := os.Getenv("ABYSSRUN_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("ABYSSRUN_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Workers = n
		}
	}
}

func (c *Config) validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("config: workers must be positive, got %d", c.Workers)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("config: max_retries must not be negative, got %d", c.MaxRetries)
	}
	for _, rl := range c.RateLimits {
		if rl.Interval <= 0 || rl.Limit <= 0 {
			return fmt.Errorf("config: invalid rate limit (%s, %d)", rl.Interval, rl.Limit)
		}
	}
	return nil
}
