package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/m3rciful/cozybot/core/bootstrap"
	coreconfig "github.com/m3rciful/cozybot/core/config"
	coredatabase "github.com/m3rciful/cozybot/core/database"
	"github.com/m3rciful/cozybot/core/logger"
	tg "github.com/m3rciful/cozybot/core/telegram"
	tgrouter "github.com/m3rciful/cozybot/core/telegram/router"
	tgsender "github.com/m3rciful/cozybot/core/telegram/sender"
	"github.com/m3rciful/cozybot/internal/assistant"
	"github.com/m3rciful/cozybot/internal/bot"
	"github.com/m3rciful/cozybot/internal/chat"
	"github.com/m3rciful/cozybot/internal/faq"
	"github.com/m3rciful/cozybot/internal/knowledge"
	"github.com/m3rciful/cozybot/internal/leads"
	"github.com/m3rciful/cozybot/internal/metrics"
)

// BuildOptions overrides infrastructure hooks, mainly for tests.
type BuildOptions struct {
	LoggerInit func(*coreconfig.Config) error
	Connect    func(context.Context, coredatabase.Config) (*sqlx.DB, error)
	Migrate    func(context.Context, coredatabase.Config) error
	// Redis replaces the client built from sessions.redis_url.
	Redis redis.UniversalClient
}

// App owns every long-lived component of the bot.
type App struct {
	cfg *Config

	kb        *knowledge.Base
	resolver  *faq.Resolver
	generator *assistant.Generator
	flow      *leads.Flow
	router    *chat.Router
	handler   *bot.Handler
	notifier  *bot.LeadNotifier

	registry *prometheus.Registry
	metrics  *metrics.Metrics

	closers []func() error
}

// New builds the application from cfg.
func New(ctx context.Context, cfg *Config, opts BuildOptions) (_ *App, err error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	a := &App{cfg: cfg}
	defer func() {
		if err != nil {
			err = errors.Join(err, a.Close())
		}
	}()

	bootOpts := bootstrap.Options{
		Config:     &cfg.Config,
		LoggerInit: opts.LoggerInit,
		Connect:    opts.Connect,
		Migrate:    opts.Migrate,
	}
	if cfg.Leads.Backend == BackendPostgres {
		bootOpts.Database = &cfg.Database
	}
	infra, err := bootstrap.Run(ctx, bootOpts)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, infra.Close)

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = metrics.New(a.registry)

	if a.kb, err = knowledge.Load(cfg.Bot.KnowledgePath); err != nil {
		return nil, err
	}
	prompt, err := os.ReadFile(cfg.Bot.PromptPath)
	if err != nil {
		return nil, fmt.Errorf("app: read system prompt: %w", err)
	}

	if a.resolver, err = faq.New(a.kb, faq.Options{
		Threshold: cfg.Bot.FAQThreshold,
		CacheSize: cfg.Bot.FAQCacheSize,
	}); err != nil {
		return nil, err
	}

	completer, err := a.buildCompleter(ctx)
	if err != nil {
		return nil, err
	}
	a.generator = assistant.NewGenerator(assistant.Options{
		Completer:    completer,
		SystemPrompt: string(prompt),
		Knowledge:    a.kb.YAML(),
		Timeout:      cfg.AI.Timeout,
		Observer:     a.metrics,
	})

	sessions, err := a.buildSessions(ctx, opts.Redis)
	if err != nil {
		return nil, err
	}
	store := a.buildStore(infra)

	var notifier leads.Notifier
	if cfg.Telegram.AdminID != 0 {
		a.notifier = bot.NewLeadNotifier(cfg.Telegram.AdminID, a.kb.Leads.Fields)
		notifier = a.notifier
	}
	if a.flow, err = leads.NewFlow(leads.Options{
		Fields:       a.kb.Leads.Fields,
		Sessions:     sessions,
		Store:        store,
		Phone:        a.kb.Phone(),
		RetryBackoff: cfg.Leads.RetryBackoff,
		Notifier:     notifier,
		Observer:     a.metrics,
	}); err != nil {
		return nil, err
	}

	if a.router, err = chat.New(chat.Options{
		Knowledge: a.kb,
		Resolver:  a.resolver,
		Fallback:  a.generator,
		Leads:     a.flow,
		Lang:      cfg.Bot.Lang,
		ShopName:  cfg.Bot.ShopName,
		Observer:  a.metrics,
	}); err != nil {
		return nil, err
	}
	if a.handler, err = bot.New(bot.Options{Router: a.router, Status: a.Status}); err != nil {
		return nil, err
	}

	logger.Info(ctx, logger.CompApp, "app.built",
		slog.String("lang", cfg.Bot.Lang),
		slog.String("provider", a.generator.Provider()),
		slog.String("backend", cfg.Leads.Backend+"/"+cfg.Sessions.Backend),
		slog.Int("entries", len(a.kb.FAQ)),
	)
	return a, nil
}

func (a *App) buildCompleter(ctx context.Context) (assistant.Completer, error) {
	ai := a.cfg.AI
	switch ai.Provider {
	case assistant.ProviderOpenAI:
		if strings.TrimSpace(ai.APIKey) == "" {
			break
		}
		return assistant.NewOpenAI(ai.APIKey, ai.Model, ai.BaseURL), nil
	case assistant.ProviderGemini:
		if strings.TrimSpace(ai.GeminiAPIKey) == "" {
			break
		}
		c, err := assistant.NewGemini(ctx, ai.GeminiAPIKey, ai.GeminiModel)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, c.Close)
		return c, nil
	default:
		return nil, nil
	}
	logger.Warn(ctx, logger.CompAI, "ai.disabled",
		slog.String("provider", ai.Provider),
		slog.String("cause", "missing_api_key"),
	)
	return nil, nil
}

func (a *App) buildSessions(ctx context.Context, client redis.UniversalClient) (leads.SessionStore, error) {
	if a.cfg.Sessions.Backend != BackendRedis {
		return leads.NewMemoryStore(), nil
	}
	if client == nil {
		redisOpts, err := redis.ParseURL(a.cfg.Sessions.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("app: parse redis url: %w", err)
		}
		c := redis.NewClient(redisOpts)
		a.closers = append(a.closers, c.Close)
		client = c
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("app: redis ping: %w", err)
	}
	return leads.NewRedisStore(client, a.cfg.Sessions.TTL), nil
}

func (a *App) buildStore(infra *bootstrap.Result) leads.Store {
	if a.cfg.Leads.Backend == BackendPostgres && infra.DB != nil {
		return leads.NewPostgresStore(infra.DB)
	}
	return leads.NewCSVStore(a.cfg.Leads.CSVPath, a.kb.FieldNames())
}

// Router returns the message router.
func (a *App) Router() *chat.Router { return a.router }

// Resolver returns the FAQ resolver.
func (a *App) Resolver() *faq.Resolver { return a.resolver }

// Knowledge returns the loaded knowledge base.
func (a *App) Knowledge() *knowledge.Base { return a.kb }

// Gatherer exposes the metrics registry.
func (a *App) Gatherer() prometheus.Gatherer { return a.registry }

// Status is the admin /status report.
func (a *App) Status(context.Context) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "faq: %d entries, %d invalid patterns, threshold %.0f\n",
		len(a.kb.FAQ), len(a.resolver.Invalid()), a.resolver.Threshold())
	fmt.Fprintf(&sb, "lead fields: %s\n", strings.Join(a.kb.FieldNames(), ", "))
	fmt.Fprintf(&sb, "ai: %s\n", a.generator.Provider())
	fmt.Fprintf(&sb, "sessions: %s, leads: %s\n", a.cfg.Sessions.Backend, a.cfg.Leads.Backend)
	fmt.Fprintf(&sb, "lang: %s", a.cfg.Bot.Lang)
	return sb.String()
}

// TelegramRunOptions implements cmd.TelegramApp.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	reg := tg.NewRegistry()
	a.handler.Register(reg)

	routes := tgrouter.CommandRoutes(reg, tgrouter.CommandRouteOptions{AdminID: a.cfg.Telegram.AdminID})
	routes = append(routes, tgrouter.TextRoutes(reg, tgrouter.TextOptions{})...)

	return tg.RunOptions{
		Config:   &a.cfg.Config,
		Registry: reg,
		DispatcherOptions: tgsender.Options{
			QueueSize:  a.cfg.Sender.QueueSize,
			Workers:    a.cfg.Sender.Workers,
			MaxRetries: a.cfg.Sender.MaxRetries,
			OnResult:   a.metrics.ObserveSend,
		},
		UpdateOptions: tgsender.Options{
			QueueSize: a.cfg.Updates.QueueSize,
			Workers:   a.cfg.Updates.Workers,
		},
		Middlewares: tg.DefaultMiddlewares(&a.cfg.Config, tg.MiddlewareOptions{
			Observe: a.metrics.ObserveHandler,
		}),
		Routes: routes,
		OnStart: func(_ context.Context, rt tg.Runtime) error {
			if a.notifier != nil && rt.Bot != nil {
				a.notifier.Attach(rt.Bot)
			}
			return nil
		},
		OnStop: func(context.Context, tg.Runtime) error {
			if a.notifier != nil {
				a.notifier.Attach(nil)
			}
			return nil
		},
	}, nil
}

// RunBackground serves metrics until ctx ends; it returns at once when no
// listen address is configured.
func (a *App) RunBackground(ctx context.Context) error {
	if strings.TrimSpace(a.cfg.Metrics.Listen) == "" {
		return nil
	}
	return metrics.NewServer(a.cfg.Metrics.Listen, a.registry).Run(ctx)
}

// Close releases clients in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
