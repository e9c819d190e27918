package middleware

import (
	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/cozybot/core/logger"
	tghelpers "github.com/m3rciful/cozybot/core/telegram/helpers"
)

// AdminOptions defines how admin-only checks behave.
type AdminOptions struct {
	// AdminID of 0 rejects everyone: an unconfigured bot has no admin.
	AdminID  int64
	OnReject tele.HandlerFunc
}

// AdminOnlyMiddleware lets only the configured admin reach next.
func AdminOnlyMiddleware(opts AdminOptions) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if user := c.Sender(); opts.AdminID != 0 && user != nil && user.ID == opts.AdminID {
				return next(c)
			}
			logger.Warn(tghelpers.BuildContext(c), logger.CompTG, "tg.admin_reject",
				slog.String("text", logger.SanitizeLimit(c.Text(), 64)))
			if opts.OnReject != nil {
				return opts.OnReject(c)
			}
			return nil
		}
	}
}
