package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := &Config{}
	cfg.Telegram.Token = "123456:TEST"
	cfg.Telegram.AdminID = 42
	return cfg
}

func TestNormalizeDefaults(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, Normalize(cfg))

	assert.Equal(t, RunModeLongpoll, cfg.Telegram.RunMode)
	assert.Equal(t, 30, cfg.Session.TTLMinutes)
	assert.Equal(t, 64, cfg.Session.SweepWatermark)
	assert.Equal(t, 2, cfg.Delivery.MaxRetries)
	assert.Equal(t, 2000, cfg.Delivery.RetryBackoffMS)
	assert.Equal(t, 45, cfg.Delivery.BudgetSeconds)
}

func TestNormalizeRequiresToken(t *testing.T) {
	cfg := validConfig()
	cfg.Telegram.Token = ""
	assert.Error(t, Normalize(cfg))
}

func TestNormalizeRequiresAdminID(t *testing.T) {
	cfg := validConfig()
	cfg.Telegram.AdminID = 0
	assert.Error(t, Normalize(cfg))
}

func TestNormalizePollingAlias(t *testing.T) {
	cfg := validConfig()
	cfg.Telegram.RunMode = "polling"
	require.NoError(t, Normalize(cfg))
	assert.Equal(t, RunModeLongpoll, cfg.Telegram.RunMode)
}

func TestNormalizeWebhookValidation(t *testing.T) {
	cfg := validConfig()
	cfg.Telegram.RunMode = "webhook"
	assert.Error(t, Normalize(cfg))

	cfg = validConfig()
	cfg.Telegram.RunMode = "webhook"
	cfg.Webhook.URL = "https://bot.example.com/hook"
	cfg.Webhook.Listen = "0.0.0.0"
	cfg.Webhook.Port = 8443
	require.NoError(t, Normalize(cfg))
}

func TestNormalizeArchiveRequiresHost(t *testing.T) {
	cfg := validConfig()
	cfg.Archive.Enabled = true
	cfg.Archive.Name = "requestbot"
	assert.Error(t, Normalize(cfg))

	cfg.Archive.Host = "localhost"
	require.NoError(t, Normalize(cfg))
	assert.Equal(t, "5432", cfg.Archive.Port)
	assert.Equal(t, "disable", cfg.Archive.SSLMode)
	assert.Equal(t, 4, cfg.Archive.MaxConnections)
}

func TestNormalizeRejectsUnknownRunMode(t *testing.T) {
	cfg := validConfig()
	cfg.Telegram.RunMode = "push"
	assert.Error(t, Normalize(cfg))
}
