package telegram

import (
	"time"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/cozybot/core/config"
	"github.com/m3rciful/cozybot/core/telegram/middleware"
)

// MiddlewareOptions customizes DefaultMiddlewares.
type MiddlewareOptions struct {
	// OnLimited replies to throttled users; nil drops the update silently.
	OnLimited tele.HandlerFunc
	// Observe receives one call per handled update with the handler outcome.
	Observe middleware.ObserveFunc
}

// DefaultMiddlewares builds the shared chain: recover, rate limit, logger, metrics.
func DefaultMiddlewares(cfg *coreconfig.Config, opts MiddlewareOptions) []Middleware {
	mws := []Middleware{
		{Name: "recover", Use: middleware.RecoverMiddleware},
	}

	if cfg != nil && cfg.RateLimit.IntervalMS > 0 {
		exclude := make(map[string]struct{}, len(cfg.RateLimit.ExcludeUpdates))
		for _, kind := range cfg.RateLimit.ExcludeUpdates {
			exclude[kind] = struct{}{}
		}
		mws = append(mws, Middleware{
			Name: "rate_limit",
			Use: middleware.RateLimitMiddleware(middleware.RateLimitOptions{
				Interval:  time.Duration(cfg.RateLimit.IntervalMS) * time.Millisecond,
				Exclude:   exclude,
				OnLimited: opts.OnLimited,
			}),
		})
	}

	return append(mws,
		Middleware{Name: "logger", Use: middleware.LoggerMiddleware},
		Middleware{Name: "metrics", Use: middleware.MessageMetricsMiddleware(opts.Observe)},
	)
}
