// Package assistant produces free-form answers with a generative model and
// falls back to a canned reply whenever the model cannot answer.
package assistant

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/cozybot/core/logger"
	"github.com/m3rciful/cozybot/internal/lang"
)

const (
	DefaultTimeout   = 20 * time.Second
	temperature      = 0.4
	maxOutputTokens  = 300
	knowledgeHeading = "\n\nYAML:\n"
	languageHeading  = "\n\nLanguage to respond: "
)

var canned = map[lang.Tag]string{
	lang.Russian:   "Я уточню у менеджера і вернусь с ответом. Могу оформить заявку на звонок? Напишите телефон.",
	lang.Ukrainian: "Уточню у менеджера і повернуся з відповіддю. Можу оформити заявку на дзвінок? Напишіть номер.",
}

// Canned returns the reply used when no model answer is available.
func Canned(tag lang.Tag) string {
	if tag == lang.Russian {
		return canned[lang.Russian]
	}
	return canned[lang.Ukrainian]
}

// Observer records completion outcomes.
type Observer interface {
	ObserveAI(provider, status string, took time.Duration)
}

// Options configures a Generator.
type Options struct {
	// Completer may be nil, which leaves only canned replies.
	Completer    Completer
	SystemPrompt string
	// Knowledge is the serialized knowledge base appended to the prompt.
	Knowledge string
	Timeout   time.Duration
	Observer  Observer
}

// Generator builds grounded prompts and never fails.
type Generator struct {
	completer Completer
	prompt    string
	knowledge string
	timeout   time.Duration
	observer  Observer
}

// NewGenerator returns a Generator for opts.
func NewGenerator(opts Options) *Generator {
	g := &Generator{
		completer: opts.Completer,
		prompt:    opts.SystemPrompt,
		knowledge: opts.Knowledge,
		timeout:   opts.Timeout,
		observer:  opts.Observer,
	}
	if g.timeout <= 0 {
		g.timeout = DefaultTimeout
	}
	return g
}

// Provider names the configured provider, or "none".
func (g *Generator) Provider() string {
	if g.completer == nil {
		return ProviderNone
	}
	return g.completer.Provider()
}

// SystemPrompt returns the full system prompt for tag.
func (g *Generator) SystemPrompt(tag lang.Tag) string {
	var sb strings.Builder
	sb.Grow(len(g.prompt) + len(g.knowledge) + 64)
	sb.WriteString(g.prompt)
	sb.WriteString(knowledgeHeading)
	sb.WriteString(g.knowledge)
	sb.WriteString(languageHeading)
	sb.WriteString(string(tag))
	return sb.String()
}

// Generate answers utterance in hint, or in the detected language when hint
// is empty. Any provider failure yields the canned reply.
func (g *Generator) Generate(ctx context.Context, utterance string, hint lang.Tag) string {
	tag := hint
	if tag == "" {
		tag = lang.Detect(utterance)
	}
	if g.completer == nil {
		logger.Debug(ctx, logger.CompAI, "ai.fallback", slog.String("provider", ProviderNone), slog.String("lang", string(tag)))
		return Canned(tag)
	}

	provider := g.completer.Provider()
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	text, err := g.completer.Complete(callCtx, Request{
		System:      g.SystemPrompt(tag),
		User:        utterance,
		Temperature: temperature,
		MaxTokens:   maxOutputTokens,
	})
	took := time.Since(start)
	if err == nil && strings.TrimSpace(text) == "" {
		err = ErrEmptyResponse
	}

	status := outcome(err)
	if g.observer != nil {
		g.observer.ObserveAI(provider, status, took)
	}
	if err != nil {
		logger.Warn(ctx, logger.CompAI, "ai.fallback",
			slog.String("provider", provider),
			slog.String("status", "fallback"),
			slog.String("cause", status),
			slog.String("lang", string(tag)),
			slog.Duration("duration", logger.RoundMS(took)),
			logger.Err(err),
		)
		return Canned(tag)
	}
	logger.Info(ctx, logger.CompAI, "ai.completed",
		slog.String("provider", provider),
		slog.String("lang", string(tag)),
		slog.Int("chars", len([]rune(text))),
		slog.Duration("duration", logger.RoundMS(took)),
	)
	return strings.TrimSpace(text)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrEmptyResponse):
		return "empty"
	default:
		return "error"
	}
}
