// Package bot binds the chat router to Telegram commands and text updates.
package bot

import (
	"context"
	"errors"
	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/cozybot/core/logger"
	tg "github.com/m3rciful/cozybot/core/telegram"
	"github.com/m3rciful/cozybot/core/telegram/commands"
	tghelpers "github.com/m3rciful/cozybot/core/telegram/helpers"
	"github.com/m3rciful/cozybot/core/telegram/keyboard"
	"github.com/m3rciful/cozybot/internal/chat"
)

// Options configures a Handler.
type Options struct {
	Router *chat.Router
	// Status renders the admin /status report; nil leaves the command out.
	Status func(ctx context.Context) string
}

// Handler adapts telebot contexts to the chat router.
type Handler struct {
	router *chat.Router
	status func(ctx context.Context) string
}

// New returns a Handler for opts.
func New(opts Options) (*Handler, error) {
	if opts.Router == nil {
		return nil, errors.New("bot: router is required")
	}
	return &Handler{router: opts.Router, status: opts.Status}, nil
}

// Register adds the bot commands and the text fallback to reg.
func (h *Handler) Register(reg *tg.Registry) {
	reg.RegisterCommand("/start", commands.Command{Handler: h.onStart, Description: "Старт"})
	reg.RegisterCommand("/help", commands.Command{Handler: h.onHelp, Description: "Допомога"})
	reg.RegisterCommand("/lead", commands.Command{Handler: h.onLead, Description: "Залишити заявку"})
	reg.RegisterCommand("/cancel", commands.Command{Handler: h.onCancel, Description: "Скасувати заявку"})
	if h.status != nil {
		reg.RegisterCommand("/status", commands.Command{
			Handler:     h.onStatus,
			Description: "Bot status",
			AdminOnly:   true,
			Hidden:      true,
		})
	}
	reg.SetTextFallback(h.onText)
}

func inbound(c tele.Context) chat.Inbound {
	in := chat.Inbound{Text: c.Text()}
	if user := c.Sender(); user != nil {
		in.UserID = user.ID
		in.Username = user.Username
	}
	return in
}

func (h *Handler) onStart(c tele.Context) error {
	return send(c, h.router.Greeting(c.Text()))
}

func (h *Handler) onHelp(c tele.Context) error {
	return send(c, h.router.Help(c.Text()))
}

func (h *Handler) onLead(c tele.Context) error {
	in := inbound(c)
	out, err := h.router.StartLead(tghelpers.BuildContext(c), in)
	if err != nil {
		return h.apologize(c, in, err)
	}
	return send(c, out)
}

func (h *Handler) onCancel(c tele.Context) error {
	in := inbound(c)
	out, err := h.router.Cancel(tghelpers.BuildContext(c), in)
	if err != nil {
		return h.apologize(c, in, err)
	}
	return send(c, out)
}

func (h *Handler) onStatus(c tele.Context) error {
	return tghelpers.SendText(c, h.status(tghelpers.BuildContext(c)))
}

func (h *Handler) onText(c tele.Context) error {
	in := inbound(c)
	out, err := h.router.Handle(tghelpers.BuildContext(c), in)
	if err != nil {
		return h.apologize(c, in, err)
	}
	return send(c, out)
}

// apologize logs err and answers with a generic apology; the user never sees
// the error itself.
func (h *Handler) apologize(c tele.Context, in chat.Inbound, err error) error {
	tag := h.router.Language(in.Text)
	ctx := tghelpers.WithLang(c, string(tag))
	logger.Error(ctx, logger.CompChat, "chat.failed",
		slog.String("status", "fail"),
		logger.Err(err),
	)
	return tghelpers.SendText(c, chat.Apology(tag))
}

func send(c tele.Context, out chat.Reply) error {
	if out.Lang != "" {
		tghelpers.WithLang(c, string(out.Lang))
	}
	return tghelpers.SendWithMarkup(c, out.Text, keyboard.ReplyButtons(out.Keyboard...))
}
