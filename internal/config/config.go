// Package config provides configuration loading, validation, and management
// for the sales parser. It handles reading from YAML files, environment
// variables, setting default values, and validating configuration parameters.
package config

import (
	"time"
)

// Config defines the application configuration. Values can be set via
// environment variables prefixed with BOT_ (e.g., BOT_TELEGRAM_TOKEN) or
// through config.yaml.
type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Gemini     GeminiConfig     `mapstructure:"gemini"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Media      MediaConfig      `mapstructure:"media"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Worker     WorkerConfig     `mapstructure:"worker"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
}

// LogConfig controls log level and output format.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// TelegramConfig holds the Telegram bot credentials.
type TelegramConfig struct {
	Token string `mapstructure:"token" validate:"required"`
}

// DatabaseConfig holds the SQLite database location.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// GeminiConfig holds settings for the Gemini oracle classifier.
type GeminiConfig struct {
	APIKey            string        `mapstructure:"api_key"             validate:"required"`
	ModelName         string        `mapstructure:"model_name"          validate:"required"`
	Timeout           time.Duration `mapstructure:"timeout"             validate:"min=1s,max=10m"`
	MaxRetries        int           `mapstructure:"max_retries"         validate:"min=0,max=10"`
	RetryDelaySeconds int           `mapstructure:"retry_delay_seconds" validate:"min=0,max=300"`
}

// ClassifierConfig holds settings for the rule-based keyword matcher.
type ClassifierConfig struct {
	Keywords []string `mapstructure:"keywords" validate:"required,min=1"`
}

// MediaConfig holds settings for attachment storage.
type MediaConfig struct {
	Dir             string        `mapstructure:"dir"              validate:"required"`
	DownloadTimeout time.Duration `mapstructure:"download_timeout" validate:"min=1s,max=10m"`
}

// QueueConfig holds settings for the durable job queue.
type QueueConfig struct {
	LeaseFor     time.Duration `mapstructure:"lease_for"     validate:"min=1s,max=1h"`
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"min=100ms,max=1m"`
	MaxAttempts  int           `mapstructure:"max_attempts"  validate:"min=1,max=100"`
}

// WorkerConfig controls the pipeline worker pool.
type WorkerConfig struct {
	Count int `mapstructure:"count" validate:"min=1,max=64"`
}

// SchedulerConfig holds the scheduled maintenance task definitions.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks"`
}

// TaskConfig defines a single scheduled task entry.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}
