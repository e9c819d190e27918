// Package app loads the bot configuration and wires every component.
package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/cozybot/core/config"
	coredatabase "github.com/m3rciful/cozybot/core/database"
	"github.com/m3rciful/cozybot/internal/assistant"
	"github.com/m3rciful/cozybot/internal/faq"
	"github.com/m3rciful/cozybot/internal/leads"
)

// Backend names.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendCSV      = "csv"
	BackendPostgres = "postgres"
)

// BotConfig describes the conversation itself.
type BotConfig struct {
	// Lang is "uk", "ru" or "auto" for per-message detection.
	Lang          string  `yaml:"lang" envconfig:"BOT_LANG"`
	ShopName      string  `yaml:"shop_name" envconfig:"BOT_SHOP_NAME"`
	KnowledgePath string  `yaml:"knowledge_path" envconfig:"BOT_KNOWLEDGE_PATH"`
	PromptPath    string  `yaml:"prompt_path" envconfig:"BOT_PROMPT_PATH"`
	FAQThreshold  float64 `yaml:"faq_threshold" envconfig:"BOT_FAQ_THRESHOLD"`
	// FAQCacheSize of 0 disables memoization.
	FAQCacheSize int `yaml:"faq_cache_size" envconfig:"BOT_FAQ_CACHE_SIZE"`
}

// AIConfig selects the completion provider. An empty provider picks openai
// when OPENAI_API_KEY is set, gemini when GEMINI_API_KEY is set, else none.
type AIConfig struct {
	Provider     string        `yaml:"provider" envconfig:"AI_PROVIDER"`
	APIKey       string        `yaml:"api_key" envconfig:"OPENAI_API_KEY"`
	Model        string        `yaml:"model" envconfig:"OPENAI_MODEL"`
	BaseURL      string        `yaml:"base_url" envconfig:"OPENAI_BASE_URL"`
	GeminiAPIKey string        `yaml:"gemini_api_key" envconfig:"GEMINI_API_KEY"`
	GeminiModel  string        `yaml:"gemini_model" envconfig:"GEMINI_MODEL"`
	Timeout      time.Duration `yaml:"timeout" envconfig:"AI_TIMEOUT"`
}

// LeadsConfig selects where completed leads go.
type LeadsConfig struct {
	Backend      string        `yaml:"backend" envconfig:"LEADS_BACKEND"`
	CSVPath      string        `yaml:"csv_path" envconfig:"LEADS_CSV_PATH"`
	RetryBackoff time.Duration `yaml:"retry_backoff" envconfig:"LEADS_RETRY_BACKOFF"`
}

// SessionsConfig selects where interview progress is kept.
type SessionsConfig struct {
	Backend  string        `yaml:"backend" envconfig:"SESSIONS_BACKEND"`
	RedisURL string        `yaml:"redis_url" envconfig:"REDIS_URL"`
	TTL      time.Duration `yaml:"ttl" envconfig:"SESSIONS_TTL"`
}

// MetricsConfig enables the Prometheus listener when Listen is set.
type MetricsConfig struct {
	Listen string `yaml:"listen" envconfig:"METRICS_LISTEN"`
}

// Config is the full application configuration.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Bot      BotConfig           `yaml:"bot"`
	AI       AIConfig            `yaml:"ai"`
	Leads    LeadsConfig         `yaml:"leads"`
	Sessions SessionsConfig      `yaml:"sessions"`
	Database coredatabase.Config `yaml:"database"`
	Metrics  MetricsConfig       `yaml:"metrics"`
}

// CoreConfig implements cmd.ConfigCarrier.
func (c *Config) CoreConfig() *coreconfig.Config { return &c.Config }

// Load reads path, overlays the environment and validates the result.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates cfg and fills defaults in place.
func Normalize(cfg *Config) error {
	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return err
	}
	var errs []error

	cfg.Bot.Lang = strings.ToLower(strings.TrimSpace(cfg.Bot.Lang))
	if cfg.Bot.Lang == "" {
		cfg.Bot.Lang = "uk"
	}
	cfg.Bot.KnowledgePath = orDefault(cfg.Bot.KnowledgePath, "data/faq.yaml")
	cfg.Bot.PromptPath = orDefault(cfg.Bot.PromptPath, "data/prompt_system.txt")
	if cfg.Bot.FAQThreshold <= 0 {
		cfg.Bot.FAQThreshold = faq.DefaultThreshold
	}
	if cfg.Bot.FAQThreshold > 100 {
		errs = append(errs, fmt.Errorf("config: bot.faq_threshold must be <= 100, got %v", cfg.Bot.FAQThreshold))
	}
	if cfg.Bot.FAQCacheSize < 0 {
		errs = append(errs, errors.New("config: bot.faq_cache_size must be >= 0"))
	}

	if err := normalizeAI(&cfg.AI); err != nil {
		errs = append(errs, err)
	}

	cfg.Leads.Backend = orDefault(strings.ToLower(cfg.Leads.Backend), BackendCSV)
	cfg.Leads.CSVPath = orDefault(cfg.Leads.CSVPath, "data/leads.csv")
	if cfg.Leads.RetryBackoff <= 0 {
		cfg.Leads.RetryBackoff = leads.DefaultRetryBackoff
	}
	switch cfg.Leads.Backend {
	case BackendCSV:
	case BackendPostgres:
		if strings.TrimSpace(cfg.Database.Host) == "" || strings.TrimSpace(cfg.Database.Name) == "" {
			errs = append(errs, errors.New("config: database.host and database.name are required for leads.backend 'postgres'"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: invalid leads.backend %q; allowed: csv, postgres", cfg.Leads.Backend))
	}

	cfg.Sessions.Backend = orDefault(strings.ToLower(cfg.Sessions.Backend), BackendMemory)
	if cfg.Sessions.TTL <= 0 {
		cfg.Sessions.TTL = leads.DefaultSessionTTL
	}
	switch cfg.Sessions.Backend {
	case BackendMemory:
	case BackendRedis:
		if strings.TrimSpace(cfg.Sessions.RedisURL) == "" {
			errs = append(errs, errors.New("config: sessions.redis_url is required for sessions.backend 'redis'"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: invalid sessions.backend %q; allowed: memory, redis", cfg.Sessions.Backend))
	}
	return errors.Join(errs...)
}

func normalizeAI(ai *AIConfig) error {
	ai.Provider = strings.ToLower(strings.TrimSpace(ai.Provider))
	if ai.Provider == "" {
		switch {
		case strings.TrimSpace(ai.APIKey) != "":
			ai.Provider = assistant.ProviderOpenAI
		case strings.TrimSpace(ai.GeminiAPIKey) != "":
			ai.Provider = assistant.ProviderGemini
		default:
			ai.Provider = assistant.ProviderNone
		}
	}
	if ai.Timeout <= 0 {
		ai.Timeout = assistant.DefaultTimeout
	}
	switch ai.Provider {
	case assistant.ProviderOpenAI:
		ai.Model = orDefault(ai.Model, assistant.DefaultOpenAIModel)
	case assistant.ProviderGemini:
		ai.GeminiModel = orDefault(ai.GeminiModel, assistant.DefaultGeminiModel)
	case assistant.ProviderNone:
	default:
		return fmt.Errorf("config: invalid ai.provider %q; allowed: openai, gemini, none", ai.Provider)
	}
	return nil
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}
