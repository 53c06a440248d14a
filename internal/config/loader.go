package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// DefaultKeywords is the rule matcher keyword set used when none is
// configured. These mirror the sale vocabulary of the target chats.
var DefaultKeywords = []string{
	"продам", "продаю", "цена", "торг", "объявление", "куплю", "отдам",
}

// LoadConfig loads and validates configuration from:
// 1. Default values
// 2. The YAML file at path (optional, defaults apply when missing)
// 3. BOT_* environment variables
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("BOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults plus env vars apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", true)

	// Secrets default to empty so the keys are visible to env overrides;
	// validation rejects them when still unset.
	v.SetDefault("telegram.token", "")
	v.SetDefault("gemini.api_key", "")

	v.SetDefault("database.path", "storage.db")

	v.SetDefault("gemini.model_name", "gemini-2.0-flash")
	v.SetDefault("gemini.timeout", 30*time.Second)
	v.SetDefault("gemini.max_retries", 2)
	v.SetDefault("gemini.retry_delay_seconds", 2)

	v.SetDefault("classifier.keywords", DefaultKeywords)

	v.SetDefault("media.dir", filepath.Join(".", "storage"))
	v.SetDefault("media.download_timeout", time.Minute)

	v.SetDefault("queue.lease_for", 2*time.Minute)
	v.SetDefault("queue.poll_interval", time.Second)
	v.SetDefault("queue.max_attempts", 5)

	v.SetDefault("worker.count", 4)

	v.SetDefault("scheduler.tasks.queue_reaper.enabled", true)
	v.SetDefault("scheduler.tasks.queue_reaper.schedule", "*/30 * * * * *")
	v.SetDefault("scheduler.tasks.sql_maintenance.enabled", true)
	v.SetDefault("scheduler.tasks.sql_maintenance.schedule", "0 0 4 * * *")
}
