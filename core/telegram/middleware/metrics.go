package middleware

import (
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/cozybot/core/logger"
	tghelpers "github.com/m3rciful/cozybot/core/telegram/helpers"
)

const (
	keyMessages = "messages"
	keyKeyboard = "kb"
)

// ObserveFunc receives the handler name, its error and the time it took.
type ObserveFunc func(handler string, err error, took time.Duration)

// countingContext wraps tele.Context to count replies and detect keyboards.
type countingContext struct{ tele.Context }

func (m countingContext) count(opts []any) {
	n, _ := m.Get(keyMessages).(int)
	m.Set(keyMessages, n+1)
	if hasKeyboard(opts) {
		m.Set(keyKeyboard, true)
	}
}

func hasKeyboard(opts []any) bool {
	for _, o := range opts {
		switch v := o.(type) {
		case *tele.SendOptions:
			if v != nil && v.ReplyMarkup != nil {
				return true
			}
		case *tele.ReplyMarkup:
			if v != nil {
				return true
			}
		}
	}
	return false
}

// Send proxies tele.Context.Send while updating counters.
func (m countingContext) Send(what any, opts ...any) error {
	err := m.Context.Send(what, opts...)
	if err == nil {
		m.count(opts)
	}
	return err
}

// Reply proxies tele.Context.Reply while updating counters.
func (m countingContext) Reply(what any, opts ...any) error {
	err := m.Context.Reply(what, opts...)
	if err == nil {
		m.count(opts)
	}
	return err
}

// MessageMetricsMiddleware counts outgoing messages per update and reports the
// handler outcome to observe, which may be nil.
func MessageMetricsMiddleware(observe ObserveFunc) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			c.Set(keyMessages, 0)
			c.Set(keyKeyboard, false)
			start := time.Now()
			err := next(countingContext{Context: c})
			if observe != nil {
				name := logger.HandlerFrom(tghelpers.BuildContext(c))
				if name == "" {
					name = "unrouted"
				}
				observe(name, err, time.Since(start))
			}
			return err
		}
	}
}

// GetCounters reads the message count and keyboard flag set by the middleware.
func GetCounters(c tele.Context) (int, bool) {
	msgs, _ := c.Get(keyMessages).(int)
	kb, _ := c.Get(keyKeyboard).(bool)
	return msgs, kb
}
