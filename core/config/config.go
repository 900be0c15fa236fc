package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram bot related settings.
type TelegramConfig struct {
	Token string `yaml:"token" envconfig:"BOT_TOKEN"`
	// AdminID is the operator chat that receives relayed requests.
	AdminID int64  `yaml:"admin_id" envconfig:"ADMIN_CHAT_ID"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile"`
}

// SessionConfig controls the in-memory request session store.
type SessionConfig struct {
	// TTLMinutes is the maximum age of an unfinished request session.
	TTLMinutes int `yaml:"ttl_minutes" envconfig:"SESSION_TTL_MINUTES"`
	// SweepWatermark triggers a proactive sweep once the store grows past it.
	SweepWatermark int `yaml:"sweep_watermark" envconfig:"SESSION_SWEEP_WATERMARK"`
}

// DeliveryConfig controls the operator delivery pipeline.
type DeliveryConfig struct {
	// MaxRetries bounds image-send retries before falling back to a document.
	MaxRetries int `yaml:"max_retries" envconfig:"DELIVERY_MAX_RETRIES"`
	// RetryBackoffMS is the linear backoff base between image-send attempts.
	RetryBackoffMS int `yaml:"retry_backoff_ms" envconfig:"DELIVERY_RETRY_BACKOFF_MS"`
	// BudgetSeconds bounds one whole delivery: resolution plus all tiers.
	BudgetSeconds int `yaml:"budget_seconds" envconfig:"DELIVERY_BUDGET_SECONDS"`
}

// ArchiveConfig enables the optional Postgres archive of delivered requests.
type ArchiveConfig struct {
	Enabled        bool   `yaml:"enabled" envconfig:"ARCHIVE_ENABLED"`
	Host           string `yaml:"host" envconfig:"ARCHIVE_DB_HOST"`
	Port           string `yaml:"port" envconfig:"ARCHIVE_DB_PORT"`
	User           string `yaml:"user" envconfig:"ARCHIVE_DB_USER"`
	Password       string `yaml:"password" envconfig:"ARCHIVE_DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"ARCHIVE_DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"ARCHIVE_DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"ARCHIVE_DB_MAX_CONNECTIONS"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
)

// RateLimitConfig holds settings for rate limiting.
// ExcludeUpdates accepts update types to bypass limiting:
// - "callback": Telegram callback button presses
// - "message": standard text messages
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// Config aggregates the bot configuration.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging"`
	Session   SessionConfig   `yaml:"session"`
	Delivery  DeliveryConfig  `yaml:"delivery"`
	Archive   ArchiveConfig   `yaml:"archive"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}
	if cfg.Telegram.AdminID == 0 {
		return fmt.Errorf("telegram.admin_id is required")
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" {
		rm = RunModeLongpoll
	}
	if rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return fmt.Errorf("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm

	if cfg.Session.TTLMinutes < 0 {
		return fmt.Errorf("session.ttl_minutes must be >= 0")
	}
	if cfg.Session.TTLMinutes == 0 {
		cfg.Session.TTLMinutes = 30
	}
	if cfg.Session.SweepWatermark < 0 {
		return fmt.Errorf("session.sweep_watermark must be >= 0")
	}
	if cfg.Session.SweepWatermark == 0 {
		cfg.Session.SweepWatermark = 64
	}

	if cfg.Delivery.MaxRetries < 0 {
		return fmt.Errorf("delivery.max_retries must be >= 0")
	}
	if cfg.Delivery.MaxRetries == 0 {
		cfg.Delivery.MaxRetries = 2
	}
	if cfg.Delivery.RetryBackoffMS < 0 {
		return fmt.Errorf("delivery.retry_backoff_ms must be >= 0")
	}
	if cfg.Delivery.RetryBackoffMS == 0 {
		cfg.Delivery.RetryBackoffMS = 2000
	}
	if cfg.Delivery.BudgetSeconds < 0 {
		return fmt.Errorf("delivery.budget_seconds must be >= 0")
	}
	if cfg.Delivery.BudgetSeconds == 0 {
		cfg.Delivery.BudgetSeconds = 45
	}

	if cfg.Archive.Enabled {
		if strings.TrimSpace(cfg.Archive.Host) == "" {
			return fmt.Errorf("archive.host is required when archive.enabled is true")
		}
		if strings.TrimSpace(cfg.Archive.Name) == "" {
			return fmt.Errorf("archive.name is required when archive.enabled is true")
		}
		if strings.TrimSpace(cfg.Archive.Port) == "" {
			cfg.Archive.Port = "5432"
		}
		if strings.TrimSpace(cfg.Archive.SSLMode) == "" {
			cfg.Archive.SSLMode = "disable"
		}
		if cfg.Archive.MaxConnections <= 0 {
			cfg.Archive.MaxConnections = 4
		}
	}

	allowed := map[string]struct{}{
		UpdateCallback: {},
		UpdateMessage:  {},
	}
	for i, v := range cfg.RateLimit.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message", v)
		}
		cfg.RateLimit.ExcludeUpdates[i] = key
	}
	return nil
}
