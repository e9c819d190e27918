// Package faq answers questions from the knowledge base: regular-expression
// rules first, then a fuzzy token-set pass over the question texts.
package faq

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/m3rciful/cozybot/core/logger"
	"github.com/m3rciful/cozybot/internal/knowledge"
)

// DefaultThreshold is the minimum fuzzy score for a match.
const DefaultThreshold = 78

// Phase names the resolution step that produced a Match.
type Phase string

const (
	PhaseRule  Phase = "rule"
	PhaseFuzzy Phase = "fuzzy"
	PhaseNone  Phase = "none"
)

// Match describes a resolution. Entry is -1 when nothing matched; Score is
// the best fuzzy score seen, also when below the threshold.
type Match struct {
	Answer  string
	Entry   int
	Phase   Phase
	Pattern string
	Score   float64
}

// OK reports whether the match carries an answer.
func (m Match) OK() bool { return m.Phase != PhaseNone }

// InvalidPattern is a sub-pattern that failed to compile and is never tried.
type InvalidPattern struct {
	Entry   int
	Pattern string
	Err     error
}

// Options tunes a Resolver.
type Options struct {
	// Threshold defaults to DefaultThreshold when zero or negative.
	Threshold float64
	// CacheSize enables memoization of resolutions when positive.
	CacheSize int
}

type rule struct {
	source string
	re     *regexp.Regexp
}

type entry struct {
	answer string
	rules  []rule
	tokens []string
}

// Resolver is safe for concurrent use.
type Resolver struct {
	entries   []entry
	invalid   []InvalidPattern
	threshold float64
	cache     *lru.Cache[string, Match]
}

// New compiles the FAQ entries of kb. Patterns that do not compile are
// logged and skipped.
func New(kb *knowledge.Base, opts Options) (*Resolver, error) {
	r := &Resolver{threshold: opts.Threshold}
	if r.threshold <= 0 {
		r.threshold = DefaultThreshold
	}
	if opts.CacheSize > 0 {
		cache, err := lru.New[string, Match](opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("faq: cache: %w", err)
		}
		r.cache = cache
	}

	ctx := context.Background()
	for i, e := range kb.FAQ {
		compiled := entry{answer: e.Answer, tokens: tokenize(e.Question)}
		for _, p := range e.Patterns() {
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				r.invalid = append(r.invalid, InvalidPattern{Entry: i, Pattern: p, Err: err})
				logger.Warn(ctx, logger.CompFAQ, "faq.pattern_invalid",
					slog.Int("entry", i),
					slog.String("pattern", p),
					logger.Err(err),
				)
				continue
			}
			compiled.rules = append(compiled.rules, rule{source: p, re: re})
		}
		r.entries = append(r.entries, compiled)
	}
	logger.Info(ctx, logger.CompFAQ, "faq.loaded",
		slog.Int("entries", len(r.entries)),
		slog.Int("invalid", len(r.invalid)),
		slog.Float64("threshold", r.threshold),
	)
	return r, nil
}

// Invalid lists the patterns skipped at construction.
func (r *Resolver) Invalid() []InvalidPattern {
	return append([]InvalidPattern(nil), r.invalid...)
}

// Threshold returns the effective fuzzy threshold.
func (r *Resolver) Threshold() float64 { return r.threshold }

// Resolve returns the answer for utterance, if any.
func (r *Resolver) Resolve(utterance string) (string, bool) {
	m := r.Explain(utterance)
	return m.Answer, m.OK()
}

// Explain resolves utterance and reports how the answer was found.
func (r *Resolver) Explain(utterance string) Match {
	key := strings.TrimSpace(utterance)
	if key == "" {
		return Match{Entry: -1, Phase: PhaseNone}
	}
	if r.cache != nil {
		if m, ok := r.cache.Get(key); ok {
			return m
		}
	}
	m := r.resolve(key)
	if r.cache != nil {
		r.cache.Add(key, m)
	}
	return m
}

func (r *Resolver) resolve(text string) Match {
	for i, e := range r.entries {
		for _, rl := range e.rules {
			if rl.re.MatchString(text) {
				return Match{Answer: e.answer, Entry: i, Phase: PhaseRule, Pattern: rl.source, Score: 100}
			}
		}
	}

	tokens := tokenize(text)
	best, bestScore := -1, -1.0
	for i, e := range r.entries {
		if score := tokenSetRatio(tokens, e.tokens); score > bestScore {
			best, bestScore = i, score
		}
	}
	if best >= 0 && bestScore >= r.threshold {
		return Match{Answer: r.entries[best].answer, Entry: best, Phase: PhaseFuzzy, Score: bestScore}
	}
	return Match{Entry: -1, Phase: PhaseNone, Score: max(bestScore, 0)}
}
