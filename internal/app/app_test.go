package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/cozybot/core/config"
	coredatabase "github.com/m3rciful/cozybot/core/database"
	"github.com/m3rciful/cozybot/internal/assistant"
	"github.com/m3rciful/cozybot/internal/chat"
	"github.com/m3rciful/cozybot/internal/metrics"
)

const testKB = `
faq:
  - q: "доставка|delivery"
    a: "Доставка 1-2 дні"
leads:
  fields:
    - name: full_name
      label: "Як вас звати?"
    - name: phone
      label: "Ваш телефон?"
company:
  contacts:
    phone: "+380 50 000 00 00"
  work_hours: "10-20"
`

func noLogger(*coreconfig.Config) error { return nil }

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func testConfig(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()
	cfg := &Config{}
	cfg.Telegram.Token = "123:abc"
	cfg.Bot.KnowledgePath = writeFile(t, dir, "faq.yaml", testKB)
	cfg.Bot.PromptPath = writeFile(t, dir, "prompt.txt", "Be helpful.")
	cfg.Leads.CSVPath = filepath.Join(dir, "leads.csv")
	require.NoError(t, Normalize(cfg))
	return cfg
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
telegram:
  run_mode: longpoll
bot:
  lang: RU
  faq_cache_size: 128
ai:
  timeout: 5s
leads:
  retry_backoff: 250ms
sessions:
  backend: redis
  redis_url: redis://localhost:6379/0
metrics:
  listen: ":9090"
`)
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_MODEL", "")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "123:abc", cfg.Telegram.Token)
	assert.Equal(t, coreconfig.RunModeLongpoll, cfg.Telegram.RunMode)
	assert.Equal(t, "ru", cfg.Bot.Lang)
	assert.Equal(t, 128, cfg.Bot.FAQCacheSize)
	assert.Equal(t, float64(78), cfg.Bot.FAQThreshold)
	assert.Equal(t, "data/faq.yaml", cfg.Bot.KnowledgePath)
	assert.Equal(t, assistant.ProviderOpenAI, cfg.AI.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.AI.Model)
	assert.Equal(t, 5*time.Second, cfg.AI.Timeout)
	assert.Equal(t, BackendCSV, cfg.Leads.Backend)
	assert.Equal(t, 250*time.Millisecond, cfg.Leads.RetryBackoff)
	assert.Equal(t, BackendRedis, cfg.Sessions.Backend)
	assert.Equal(t, 24*time.Hour, cfg.Sessions.TTL)
	assert.Equal(t, ":9090", cfg.Metrics.Listen)
	assert.Same(t, &cfg.Config, cfg.CoreConfig())
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", "bot:\n  lang: ru\n")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("BOT_LANG", "uk")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "g-key")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "uk", cfg.Bot.Lang)
	assert.Equal(t, assistant.ProviderGemini, cfg.AI.Provider)
	assert.Equal(t, assistant.DefaultGeminiModel, cfg.AI.GeminiModel)
}

func TestNormalizeErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing token", func(c *Config) { c.Telegram.Token = "" }, "telegram token is required"},
		{"bad provider", func(c *Config) { c.AI.Provider = "claude" }, "invalid ai.provider"},
		{"bad leads backend", func(c *Config) { c.Leads.Backend = "sqlite" }, "invalid leads.backend"},
		{"postgres without db", func(c *Config) { c.Leads.Backend = BackendPostgres }, "database.host"},
		{"redis without url", func(c *Config) { c.Sessions.Backend = BackendRedis }, "sessions.redis_url"},
		{"bad sessions backend", func(c *Config) { c.Sessions.Backend = "etcd" }, "invalid sessions.backend"},
		{"threshold above 100", func(c *Config) { c.Bot.FAQThreshold = 120 }, "faq_threshold"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.Telegram.Token = "123:abc"
			tt.mutate(cfg)
			err := Normalize(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNewWiresComponents(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(context.Background(), cfg, BuildOptions{LoggerInit: noLogger})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close()) })

	out, err := a.Router().Handle(context.Background(), chat.Inbound{UserID: 1, Text: "Яка доставка?"})
	require.NoError(t, err)
	assert.Equal(t, "Доставка 1-2 дні", out.Text)
	assert.Equal(t, metrics.RouteFAQ, out.Route)

	out, err = a.Router().Handle(context.Background(), chat.Inbound{UserID: 1, Text: "щось інше"})
	require.NoError(t, err)
	assert.Equal(t, assistant.Canned("uk"), out.Text)

	status := a.Status(context.Background())
	assert.Contains(t, status, "faq: 1 entries, 0 invalid patterns, threshold 78")
	assert.Contains(t, status, "ai: none")

	runOpts, err := a.TelegramRunOptions()
	require.NoError(t, err)
	assert.Len(t, runOpts.Registry.Commands(), 5)
	assert.Len(t, runOpts.Routes, 6)
	assert.NotEmpty(t, runOpts.Middlewares)
	assert.Same(t, &cfg.Config, runOpts.Config)

	assert.NoError(t, a.RunBackground(context.Background()))

	families, err := a.Gatherer().Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "cozybot_messages_total")
}

func TestNewWithRedisSessions(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := testConfig(t)
	cfg.Sessions.Backend = BackendRedis
	cfg.Sessions.RedisURL = "redis://" + mr.Addr()

	a, err := New(context.Background(), cfg, BuildOptions{LoggerInit: noLogger, Redis: client})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	out, err := a.Router().Handle(context.Background(), chat.Inbound{UserID: 9, Text: "Залишити заявку"})
	require.NoError(t, err)
	assert.Equal(t, "Як вас звати?", out.Text)
	assert.True(t, mr.Exists("cozybot:lead:9"))
}

func TestNewWithPostgresLeads(t *testing.T) {
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectExec("INSERT INTO leads").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectClose()

	cfg := testConfig(t)
	cfg.Leads.Backend = BackendPostgres
	cfg.Database = coredatabase.Config{Host: "localhost", Name: "cozybot"}

	migrated := false
	a, err := New(context.Background(), cfg, BuildOptions{
		LoggerInit: noLogger,
		Migrate: func(context.Context, coredatabase.Config) error {
			migrated = true
			return nil
		},
		Connect: func(context.Context, coredatabase.Config) (*sqlx.DB, error) {
			return sqlx.NewDb(raw, "postgres"), nil
		},
	})
	require.NoError(t, err)
	assert.True(t, migrated)

	ctx := context.Background()
	for _, text := range []string{"/lead", "Олена", "0501234567"} {
		if text == "/lead" {
			_, err = a.Router().StartLead(ctx, chat.Inbound{UserID: 4, Text: text})
		} else {
			_, err = a.Router().Handle(ctx, chat.Inbound{UserID: 4, Text: text})
		}
		require.NoError(t, err)
	}

	require.NoError(t, a.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewFailsOnMissingKnowledge(t *testing.T) {
	cfg := testConfig(t)
	cfg.Bot.KnowledgePath = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := New(context.Background(), cfg, BuildOptions{LoggerInit: noLogger})
	assert.ErrorIs(t, err, os.ErrNotExist)
}
