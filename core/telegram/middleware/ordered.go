package middleware

import (
	"context"
	"errors"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/cozybot/core/logger"
	tghelpers "github.com/m3rciful/cozybot/core/telegram/helpers"
	tgsender "github.com/m3rciful/cozybot/core/telegram/sender"
)

// OrderedMiddleware hands every update to the dispatcher worker owning its
// chat, so updates from one chat are handled one at a time in arrival order
// while different chats run in parallel. It must be the outermost middleware
// of a bot running with tele.Settings.Synchronous: the poll loop blocks while
// the chat's queue is full.
//
// Handler errors are reported through onError because the bot's own OnError
// never sees them.
func OrderedMiddleware(d *tgsender.Dispatcher, onError func(error, tele.Context)) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			key, ok := orderKey(c)
			if d == nil || !ok {
				return next(c)
			}
			run := func() error {
				if err := next(c); err != nil && onError != nil {
					onError(err, c)
				}
				return nil
			}
			err := d.EnqueueWait(context.Background(), key, "update", run)
			if errors.Is(err, tgsender.ErrQueueClosed) {
				logger.Debug(tghelpers.BuildContext(c), logger.CompTG, "update.inline")
				return next(c)
			}
			return err
		}
	}
}

func orderKey(c tele.Context) (int64, bool) {
	if chat := c.Chat(); chat != nil {
		return chat.ID, true
	}
	if user := c.Sender(); user != nil {
		return user.ID, true
	}
	return 0, false
}
