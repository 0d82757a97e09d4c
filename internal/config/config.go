package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application's configuration.
type Config struct {
	Database struct {
		URL             string        `yaml:"url"`
		MaxOpenConns    int           `yaml:"max_open_conns"`
		MaxIdleConns    int           `yaml:"max_idle_conns"`
		ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
		MigrationsPath  string        `yaml:"migrations_path"`
	} `yaml:"database"`
	Indexer struct {
		Enabled       bool          `yaml:"enabled"`
		URL           string        `yaml:"url"`
		ChainID       uint64        `yaml:"chain_id"`
		StartBlock    uint64        `yaml:"start_block"`
		PollInterval  time.Duration `yaml:"poll_interval"`
		SkipCacheSize int           `yaml:"skip_cache_size"`
		SkipCacheTTL  time.Duration `yaml:"skip_cache_ttl"`
	} `yaml:"indexer"`
	Moderation struct {
		Enabled        bool          `yaml:"enabled"`
		KnownReactions []string      `yaml:"known_reactions"`
		CallbackSecret string        `yaml:"callback_secret"`
		CallbackMaxAge time.Duration `yaml:"callback_max_age"`
	} `yaml:"moderation"`
	Classifier struct {
		URL         string        `yaml:"url"`
		APIKey      string        `yaml:"api_key"`
		BatchSize   int           `yaml:"batch_size"`
		BatchWindow time.Duration `yaml:"batch_window"`
		CacheSize   int           `yaml:"cache_size"`
		CacheTTL    time.Duration `yaml:"cache_ttl"`
	} `yaml:"classifier"`
	TelegramBot struct {
		Enabled       bool   `yaml:"enabled"`
		Token         string `yaml:"token"`
		ChannelID     int64  `yaml:"channel_id"`
		WebhookURL    string `yaml:"webhook_url"`
		WebhookSecret string `yaml:"webhook_secret"`
	} `yaml:"telegram_bot"`
	Push struct {
		Enabled             bool          `yaml:"enabled"`
		URL                 string        `yaml:"url"`
		APIKey              string        `yaml:"api_key"`
		MaxAttempts         int           `yaml:"max_attempts"`
		PollDelay           time.Duration `yaml:"poll_delay"`
		SubscriberBatchSize int           `yaml:"subscriber_batch_size"`
	} `yaml:"push"`
	Server struct {
		Port      string `yaml:"port"`
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"server"`
}

// LoadConfig reads configuration from the specified YAML file. Secrets can be
// supplied through environment variables instead of the file.
func LoadConfig(configPath string) (*Config, error) {
	config := &Config{}

	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	config.applyEnvOverrides()
	config.applyDefaults()

	return config, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("CLASSIFIER_API_KEY"); v != "" {
		c.Classifier.APIKey = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.TelegramBot.Token = v
	}
	if v := os.Getenv("TELEGRAM_WEBHOOK_SECRET"); v != "" {
		c.TelegramBot.WebhookSecret = v
	}
	if v := os.Getenv("MODERATION_CALLBACK_SECRET"); v != "" {
		c.Moderation.CallbackSecret = v
	}
	if v := os.Getenv("PUSH_API_KEY"); v != "" {
		c.Push.APIKey = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Server.JWTSecret = v
	}
}

func (c *Config) applyDefaults() {
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 25
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = 5 * time.Minute
	}
	if c.Database.MigrationsPath == "" {
		c.Database.MigrationsPath = "file://migrations"
	}
	if c.Indexer.PollInterval == 0 {
		c.Indexer.PollInterval = 2 * time.Second
	}
	if c.Indexer.SkipCacheSize == 0 {
		c.Indexer.SkipCacheSize = 10000
	}
	if c.Indexer.SkipCacheTTL == 0 {
		c.Indexer.SkipCacheTTL = time.Hour
	}
	if c.Moderation.CallbackMaxAge == 0 {
		c.Moderation.CallbackMaxAge = 24 * time.Hour
	}
	if c.Classifier.BatchSize == 0 {
		c.Classifier.BatchSize = 10
	}
	if c.Classifier.BatchWindow == 0 {
		c.Classifier.BatchWindow = 200 * time.Millisecond
	}
	if c.Classifier.CacheSize == 0 {
		c.Classifier.CacheSize = 10000
	}
	if c.Classifier.CacheTTL == 0 {
		c.Classifier.CacheTTL = 24 * time.Hour
	}
	if c.Push.MaxAttempts == 0 {
		c.Push.MaxAttempts = 3
	}
	if c.Push.PollDelay == 0 {
		c.Push.PollDelay = 300 * time.Millisecond
	}
	if c.Push.SubscriberBatchSize == 0 {
		c.Push.SubscriberBatchSize = 100
	}
	if c.Server.Port == "" {
		c.Server.Port = ":8080"
	}
}
