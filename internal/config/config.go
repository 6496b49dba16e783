// Package config loads and validates the newsflow configuration from
// viper-managed sources (config file, environment, flags).
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for all newsflow services.
type Config struct {
	App           AppConfig           `mapstructure:"app"`
	Logger        LoggerConfig        `mapstructure:"logger"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Analytics     DatabaseConfig      `mapstructure:"analytics"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Crawler       CrawlerConfig       `mapstructure:"crawler"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler"`
	Archive       ArchiveConfig       `mapstructure:"archive"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Pipeline      PipelineConfig      `mapstructure:"pipeline"`
	Queue         QueueConfig         `mapstructure:"queue"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

// ElasticsearchConfig holds the optional search index settings.
type ElasticsearchConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	Addresses []string `mapstructure:"addresses"`
	IndexName string   `mapstructure:"index_name"`
	APIKey    string   `mapstructure:"api_key"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
}

// RedisConfig holds the optional crawl event stream settings.
type RedisConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	Addr             string `mapstructure:"addr"`
	Password         string `mapstructure:"password"`
	DB               int    `mapstructure:"db"`
	StreamPrefix     string `mapstructure:"stream_prefix"`
	StreamTTLSeconds int    `mapstructure:"stream_ttl_seconds"`
}

// CrawlerConfig holds crawl execution settings.
type CrawlerConfig struct {
	SourcesFile            string        `mapstructure:"sources_file"`
	DefaultIntervalMinutes int           `mapstructure:"default_interval_minutes"`
	DefaultTimeoutSeconds  int           `mapstructure:"default_timeout_seconds"`
	BatchSize              int           `mapstructure:"batch_size"`
	RateLimit              time.Duration `mapstructure:"rate_limit"`
	MaxRetries             int           `mapstructure:"max_retries"`
	UserAgents             []string      `mapstructure:"user_agents"`
}

// SchedulerConfig holds interval scheduler settings.
type SchedulerConfig struct {
	Timezone      string        `mapstructure:"timezone"`
	PoolSize      int           `mapstructure:"pool_size"`
	CheckInterval time.Duration `mapstructure:"check_interval"`
	MisfireGrace  time.Duration `mapstructure:"misfire_grace"`
}

// ArchiveConfig holds cold storage settings.
type ArchiveConfig struct {
	BasePath    string `mapstructure:"base_path"`
	BatchSize   int    `mapstructure:"batch_size"`
	Compression string `mapstructure:"compression"`
	AutoEnabled bool   `mapstructure:"auto_enabled"`
	AutoHour    int    `mapstructure:"auto_hour"`
	AutoMinute  int    `mapstructure:"auto_minute"`
}

// LLMConfig holds batch analysis provider settings.
type LLMConfig struct {
	Provider         string          `mapstructure:"provider"`
	Model            string          `mapstructure:"model"`
	APIKey           string          `mapstructure:"api_key"`
	BaseURL          string          `mapstructure:"base_url"`
	PollInterval     time.Duration   `mapstructure:"poll_interval"`
	MaxWait          time.Duration   `mapstructure:"max_wait"`
	CompletionWindow string          `mapstructure:"completion_window"`
	Anthropic        AnthropicConfig `mapstructure:"anthropic"`
}

// AnthropicConfig holds settings for the Anthropic batch provider.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// PipelineConfig holds analysis pipeline settings.
type PipelineConfig struct {
	DefaultDays int `mapstructure:"default_days"`
	PageSize    int `mapstructure:"page_size"`
}

// QueueConfig holds URL queue settings.
type QueueConfig struct {
	StaleMinutes int `mapstructure:"stale_minutes"`
}

// Load unmarshals the viper state into a typed Config and validates it.
// Viper must already be initialized (defaults, env bindings, config file).
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks configuration invariants that would otherwise surface as
// confusing runtime failures.
func (c *Config) Validate() error {
	if c.Crawler.DefaultIntervalMinutes < 1 {
		return fmt.Errorf("crawler.default_interval_minutes must be >= 1, got %d", c.Crawler.DefaultIntervalMinutes)
	}
	if c.Crawler.DefaultTimeoutSeconds < 1 {
		return fmt.Errorf("crawler.default_timeout_seconds must be >= 1, got %d", c.Crawler.DefaultTimeoutSeconds)
	}
	if c.Crawler.BatchSize < 1 {
		return fmt.Errorf("crawler.batch_size must be >= 1, got %d", c.Crawler.BatchSize)
	}
	if c.Scheduler.PoolSize < 1 {
		return fmt.Errorf("scheduler.pool_size must be >= 1, got %d", c.Scheduler.PoolSize)
	}
	if c.Scheduler.CheckInterval <= 0 {
		return fmt.Errorf("scheduler.check_interval must be positive, got %s", c.Scheduler.CheckInterval)
	}
	if c.Archive.BatchSize < 1 {
		return fmt.Errorf("archive.batch_size must be >= 1, got %d", c.Archive.BatchSize)
	}
	if c.Archive.Compression != "gzip" && c.Archive.Compression != "none" {
		return fmt.Errorf("archive.compression must be gzip or none, got %q", c.Archive.Compression)
	}
	if c.Archive.AutoHour < 0 || c.Archive.AutoHour > 23 {
		return fmt.Errorf("archive.auto_hour must be 0-23, got %d", c.Archive.AutoHour)
	}
	if c.Archive.AutoMinute < 0 || c.Archive.AutoMinute > 59 {
		return fmt.Errorf("archive.auto_minute must be 0-59, got %d", c.Archive.AutoMinute)
	}
	if c.LLM.PollInterval <= 0 {
		return fmt.Errorf("llm.poll_interval must be positive, got %s", c.LLM.PollInterval)
	}
	if c.LLM.MaxWait <= 0 {
		return fmt.Errorf("llm.max_wait must be positive, got %s", c.LLM.MaxWait)
	}
	if c.Pipeline.PageSize < 1 {
		return fmt.Errorf("pipeline.page_size must be >= 1, got %d", c.Pipeline.PageSize)
	}
	if c.Queue.StaleMinutes < 1 {
		return fmt.Errorf("queue.stale_minutes must be >= 1, got %d", c.Queue.StaleMinutes)
	}
	return nil
}
