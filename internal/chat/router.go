// Package chat routes inbound text to the lead interview, quick replies, the
// FAQ resolver or the generative fallback.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/m3rciful/cozybot/core/logger"
	"github.com/m3rciful/cozybot/internal/assistant"
	"github.com/m3rciful/cozybot/internal/faq"
	"github.com/m3rciful/cozybot/internal/knowledge"
	"github.com/m3rciful/cozybot/internal/lang"
	"github.com/m3rciful/cozybot/internal/leads"
	"github.com/m3rciful/cozybot/internal/metrics"
)

// Inbound is a text message from a user.
type Inbound struct {
	UserID   int64
	Username string
	Text     string
}

// Reply is the single answer to an Inbound. Keyboard rows are button labels;
// nil means no keyboard.
type Reply struct {
	Text     string
	Keyboard [][]string
	Route    string
	Lang     lang.Tag
}

// Resolver answers FAQ questions.
type Resolver interface {
	Explain(utterance string) faq.Match
}

// Fallback produces an answer when nothing else matched. It must not fail.
type Fallback interface {
	Generate(ctx context.Context, utterance string, hint lang.Tag) string
}

// LeadFlow is the interview state machine.
type LeadFlow interface {
	Start(ctx context.Context, userID int64) (string, error)
	Active(ctx context.Context, userID int64) (bool, error)
	Advance(ctx context.Context, in leads.Inbound) (string, error)
	Cancel(ctx context.Context, userID int64) (bool, error)
}

// RouteObserver counts answered messages per route.
type RouteObserver interface {
	ObserveRoute(route string)
}

// Options configures a Router.
type Options struct {
	Knowledge *knowledge.Base
	Resolver  Resolver
	Fallback  Fallback
	Leads     LeadFlow
	// Lang is "uk", "ru" or anything else for per-message detection.
	Lang     string
	ShopName string
	Observer RouteObserver
}

// Router is safe for concurrent use. Messages of one user are handled one at
// a time, in arrival order of the lock.
type Router struct {
	kb       *knowledge.Base
	resolver Resolver
	fallback Fallback
	leads    LeadFlow
	policy   lang.Policy
	shop     string
	observer RouteObserver
	locks    *keyedMutex
}

// New validates opts and returns a Router.
func New(opts Options) (*Router, error) {
	switch {
	case opts.Knowledge == nil:
		return nil, errors.New("chat: knowledge base is required")
	case opts.Resolver == nil:
		return nil, errors.New("chat: resolver is required")
	case opts.Fallback == nil:
		return nil, errors.New("chat: fallback is required")
	case opts.Leads == nil:
		return nil, errors.New("chat: lead flow is required")
	}
	shop := strings.TrimSpace(opts.ShopName)
	if shop == "" {
		shop = DefaultShopName
	}
	return &Router{
		kb:       opts.Knowledge,
		resolver: opts.Resolver,
		fallback: opts.Fallback,
		leads:    opts.Leads,
		policy:   lang.NewPolicy(opts.Lang),
		shop:     shop,
		observer: opts.Observer,
		locks:    newKeyedMutex(),
	}, nil
}

// Language returns the reply language for text under the configured policy.
func (r *Router) Language(text string) lang.Tag {
	return r.policy.For(text)
}

// Handle answers one text message. Priority: active lead session, quick
// replies, FAQ, generative fallback.
func (r *Router) Handle(ctx context.Context, in Inbound) (Reply, error) {
	unlock := r.locks.lock(in.UserID)
	defer unlock()

	text := strings.TrimSpace(in.Text)
	tag := r.policy.For(text)
	ctx = logger.WithLang(ctx, string(tag))

	active, err := r.leads.Active(ctx, in.UserID)
	if err != nil {
		return Reply{}, fmt.Errorf("chat: session lookup: %w", err)
	}
	if active {
		out, err := r.advanceLead(ctx, in, text, tag)
		// a session with a stale step was dropped; route the text normally
		if !errors.Is(err, leads.ErrNoSession) {
			return out, err
		}
	}

	if action, ok := quickReplies[strings.ToLower(text)]; ok {
		return r.quickReply(ctx, in, action, tag)
	}

	m := r.resolver.Explain(text)
	if m.OK() {
		logger.Info(ctx, logger.CompChat, "chat.routed",
			slog.String("route", metrics.RouteFAQ),
			slog.String("phase", string(m.Phase)),
			slog.Int("entry", m.Entry),
			slog.Float64("score", m.Score),
		)
		return r.reply(Reply{Text: m.Answer, Route: metrics.RouteFAQ, Lang: tag}), nil
	}

	var answer string
	if text == "" {
		// nothing to ask the model about
		answer = assistant.Canned(tag)
	} else {
		answer = r.fallback.Generate(ctx, text, tag)
	}
	logger.Info(ctx, logger.CompChat, "chat.routed",
		slog.String("route", metrics.RouteAI),
		slog.Float64("score", m.Score),
	)
	return r.reply(Reply{Text: answer, Keyboard: Keyboard(tag), Route: metrics.RouteAI, Lang: tag}), nil
}

func (r *Router) advanceLead(ctx context.Context, in Inbound, text string, tag lang.Tag) (Reply, error) {
	answer, err := r.leads.Advance(ctx, leads.Inbound{
		UserID:   in.UserID,
		Username: in.Username,
		Text:     text,
		Lang:     tag,
	})
	if err != nil {
		return Reply{}, fmt.Errorf("chat: lead step: %w", err)
	}
	logger.Info(ctx, logger.CompChat, "chat.routed", slog.String("route", metrics.RouteLead))
	return r.reply(Reply{Text: answer, Route: metrics.RouteLead, Lang: tag}), nil
}

func (r *Router) quickReply(ctx context.Context, in Inbound, action quickAction, tag lang.Tag) (Reply, error) {
	var out Reply
	switch action {
	case quickLead:
		label, err := r.leads.Start(ctx, in.UserID)
		if err != nil {
			return Reply{}, fmt.Errorf("chat: start lead: %w", err)
		}
		out = Reply{Text: label}
	case quickContacts:
		out = Reply{Text: contactsText(r.kb.Phone())}
	case quickHours:
		out = Reply{Text: r.kb.WorkHours()}
	}
	out.Route = metrics.RouteQuickReply
	out.Lang = tag
	logger.Info(ctx, logger.CompChat, "chat.routed", slog.String("route", metrics.RouteQuickReply))
	return r.reply(out), nil
}

func (r *Router) reply(out Reply) Reply {
	if r.observer != nil {
		r.observer.ObserveRoute(out.Route)
	}
	return out
}

// Greeting is the /start answer.
func (r *Router) Greeting(text string) Reply {
	tag := r.policy.For(text)
	return r.reply(Reply{
		Text:     fmt.Sprintf(textsFor(tag).greeting, r.shop),
		Keyboard: Keyboard(tag),
		Route:    metrics.RouteCommand,
		Lang:     tag,
	})
}

// Help is the /help answer.
func (r *Router) Help(text string) Reply {
	tag := r.policy.For(text)
	return r.reply(Reply{Text: textsFor(tag).help, Route: metrics.RouteCommand, Lang: tag})
}

// StartLead starts or restarts the interview of in.UserID.
func (r *Router) StartLead(ctx context.Context, in Inbound) (Reply, error) {
	unlock := r.locks.lock(in.UserID)
	defer unlock()

	label, err := r.leads.Start(ctx, in.UserID)
	if err != nil {
		return Reply{}, fmt.Errorf("chat: start lead: %w", err)
	}
	return r.reply(Reply{Text: label, Route: metrics.RouteCommand, Lang: r.policy.For(in.Text)}), nil
}

// Cancel drops an active interview of in.UserID.
func (r *Router) Cancel(ctx context.Context, in Inbound) (Reply, error) {
	unlock := r.locks.lock(in.UserID)
	defer unlock()

	tag := r.policy.For(in.Text)
	ok, err := r.leads.Cancel(ctx, in.UserID)
	if err != nil {
		return Reply{}, fmt.Errorf("chat: cancel lead: %w", err)
	}
	text := textsFor(tag).nothingToCancel
	if ok {
		text = textsFor(tag).cancelled
	}
	return r.reply(Reply{Text: text, Keyboard: Keyboard(tag), Route: metrics.RouteCommand, Lang: tag}), nil
}

// Apology is sent when a message could not be handled.
func Apology(tag lang.Tag) string {
	if tag == lang.Russian {
		return "Извините, что-то пошло не так. Попробуйте ещё раз чуть позже."
	}
	return "Вибачте, щось пішло не так. Спробуйте ще раз трохи пізніше."
}
