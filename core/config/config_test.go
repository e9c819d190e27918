package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: from-file
  admin_id: 42
  run_mode: POLLING
rate_limit:
  interval_ms: 500
  exclude_updates: [" Command ", "", callback]
`)
	t.Setenv("TELEGRAM_BOT_TOKEN", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Telegram.Token)
	assert.EqualValues(t, 42, cfg.Telegram.AdminID)
	assert.Equal(t, RunModeLongpoll, cfg.Telegram.RunMode)
	assert.Equal(t, 500, cfg.RateLimit.IntervalMS)
	assert.Equal(t, []string{UpdateCommand, UpdateCallback}, cfg.RateLimit.ExcludeUpdates)
}

func TestLoadMissingFileUsesEnv(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "env-only")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "env-only", cfg.Telegram.Token)
}

func TestLoadBadYAML(t *testing.T) {
	path := writeConfig(t, "telegram: [")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: parse")
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"missing token", Config{}, ErrMissingToken.Error()},
		{"bad run mode", Config{Telegram: TelegramConfig{Token: "t", RunMode: "push"}}, `invalid telegram.run_mode "push"`},
		{"webhook without url", Config{Telegram: TelegramConfig{Token: "t", RunMode: "webhook"}}, "webhook.url is required"},
		{"webhook without port", Config{
			Telegram: TelegramConfig{Token: "t", RunMode: "webhook"},
			Webhook:  WebhookConfig{URL: "https://example.org/hook", Listen: "0.0.0.0"},
		}, "webhook.port must be > 0"},
		{"negative poll timeout", Config{Telegram: TelegramConfig{Token: "t", LongPollTimeoutSeconds: -1}}, "longpoll_timeout_seconds"},
		{"negative interval", Config{Telegram: TelegramConfig{Token: "t"}, RateLimit: RateLimitConfig{IntervalMS: -5}}, "interval_ms"},
		{"unknown exclude", Config{Telegram: TelegramConfig{Token: "t"}, RateLimit: RateLimitConfig{ExcludeUpdates: []string{"inline"}}}, `"inline"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Normalize(&tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNormalizeWebhook(t *testing.T) {
	cfg := Config{
		Telegram: TelegramConfig{Token: " t ", RunMode: " Webhook "},
		Webhook:  WebhookConfig{URL: "https://example.org/hook", Listen: "0.0.0.0", Port: 8443},
	}
	require.NoError(t, Normalize(&cfg))
	assert.Equal(t, "t", cfg.Telegram.Token)
	assert.Equal(t, RunModeWebhook, cfg.Telegram.RunMode)
}

func TestNormalizeNil(t *testing.T) {
	assert.Error(t, Normalize(nil))
}
