package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cast"
)

// Config holds all flowengine configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	DBPath              string `json:"db_path"`
	LogLevel            string `json:"log_level"`
	MetricsAddr         string `json:"metrics_addr"`
	RedisAddr           string `json:"redis_addr"`
	RedisChannel        string `json:"redis_channel"`
	SLASchedule         string `json:"sla_schedule"`
	DefinitionCacheTTL  string `json:"definition_cache_ttl"`
	DefinitionCacheSize int    `json:"definition_cache_size"`
	ConflictRetries     int    `json:"conflict_retries"`
	NotifyWorkers       int    `json:"notify_workers"`
	DefinitionsDir      string `json:"definitions_dir"`
	// GroupAssignees routes tasks assigned to a group to a fixed user.
	GroupAssignees map[string]string `json:"group_assignees,omitempty"`
}

func defaultConfig() Config {
	return Config{
		DBPath:              filepath.Join(flowengineDir(), "flowengine.db"),
		LogLevel:            "info",
		MetricsAddr:         ":9464",
		RedisChannel:        "flowengine:notifications",
		SLASchedule:         "@every 1m",
		DefinitionCacheTTL:  "10m",
		DefinitionCacheSize: 256,
		ConflictRetries:     3,
		NotifyWorkers:       4,
	}
}

func flowengineDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".flowengine"
	}
	return filepath.Join(home, ".flowengine")
}

func settingsPath() string {
	return filepath.Join(flowengineDir(), "settings.json")
}

// envOverrides maps FLOWENGINE_* variables onto config fields.
var envOverrides = []struct {
	name  string
	apply func(cfg *Config, v string) error
}{
	{"FLOWENGINE_DB_PATH", func(c *Config, v string) error { c.DBPath = v; return nil }},
	{"FLOWENGINE_LOG_LEVEL", func(c *Config, v string) error { c.LogLevel = v; return nil }},
	{"FLOWENGINE_METRICS_ADDR", func(c *Config, v string) error { c.MetricsAddr = v; return nil }},
	{"FLOWENGINE_REDIS_ADDR", func(c *Config, v string) error { c.RedisAddr = v; return nil }},
	{"FLOWENGINE_REDIS_CHANNEL", func(c *Config, v string) error { c.RedisChannel = v; return nil }},
	{"FLOWENGINE_SLA_SCHEDULE", func(c *Config, v string) error { c.SLASchedule = v; return nil }},
	{"FLOWENGINE_DEFINITION_CACHE_TTL", func(c *Config, v string) error { c.DefinitionCacheTTL = v; return nil }},
	{"FLOWENGINE_DEFINITION_CACHE_SIZE", func(c *Config, v string) (err error) {
		c.DefinitionCacheSize, err = cast.ToIntE(v)
		return err
	}},
	{"FLOWENGINE_CONFLICT_RETRIES", func(c *Config, v string) (err error) {
		c.ConflictRetries, err = cast.ToIntE(v)
		return err
	}},
	{"FLOWENGINE_NOTIFY_WORKERS", func(c *Config, v string) (err error) {
		c.NotifyWorkers, err = cast.ToIntE(v)
		return err
	}},
	{"FLOWENGINE_DEFINITIONS_DIR", func(c *Config, v string) error { c.DefinitionsDir = v; return nil }},
}

func loadConfig() (Config, error) {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", settingsPath(), err)
		}
	}

	// Layer 3: env vars override.
	for _, o := range envOverrides {
		if v := os.Getenv(o.name); v != "" {
			if err := o.apply(&cfg, v); err != nil {
				return cfg, fmt.Errorf("%s: %w", o.name, err)
			}
		}
	}

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path must not be empty")
	}
	if _, err := c.cacheTTL(); err != nil {
		return err
	}
	if c.DefinitionCacheSize < 0 || c.ConflictRetries < 0 || c.NotifyWorkers < 0 {
		return fmt.Errorf("definition_cache_size, conflict_retries and notify_workers must not be negative")
	}
	return nil
}

func (c Config) cacheTTL() (time.Duration, error) {
	d, err := cast.ToDurationE(c.DefinitionCacheTTL)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid definition_cache_ttl %q", c.DefinitionCacheTTL)
	}
	return d, nil
}
