package faq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/cozybot/internal/knowledge"
)

func newResolver(t *testing.T, opts Options, entries ...knowledge.FAQEntry) *Resolver {
	t.Helper()
	r, err := New(&knowledge.Base{FAQ: entries}, opts)
	require.NoError(t, err)
	return r
}

func TestResolveRulePhase(t *testing.T) {
	r := newResolver(t, Options{},
		knowledge.FAQEntry{Question: "доставка|delivery", Answer: "Доставка 1-2 дні"},
		knowledge.FAQEntry{Question: "доставк", Answer: "second"},
	)

	ans, ok := r.Resolve("Яка у вас доставка?")
	require.True(t, ok)
	assert.Equal(t, "Доставка 1-2 дні", ans)

	m := r.Explain("DELIVERY please")
	assert.Equal(t, PhaseRule, m.Phase)
	assert.Equal(t, 0, m.Entry)
	assert.Equal(t, "delivery", m.Pattern)
}

func TestResolveSkipsInvalidPatterns(t *testing.T) {
	r := newResolver(t, Options{},
		knowledge.FAQEntry{Question: "(oops|меню", Answer: "broken"},
		knowledge.FAQEntry{Question: "меню", Answer: "menu"},
	)

	invalid := r.Invalid()
	require.Len(t, invalid, 1)
	assert.Equal(t, 0, invalid[0].Entry)
	assert.Equal(t, "(oops", invalid[0].Pattern)
	assert.Error(t, invalid[0].Err)

	ans, ok := r.Resolve("покажіть меню")
	require.True(t, ok)
	assert.Equal(t, "broken", ans, "the valid sub-pattern of entry 0 still matches first")
}

func TestResolveFuzzyPhase(t *testing.T) {
	r := newResolver(t, Options{},
		knowledge.FAQEntry{Question: "години роботи магазину", Answer: "10-20"},
		knowledge.FAQEntry{Question: "new york yankees", Answer: "baseball"},
	)

	m := r.Explain("магазину, роботи години!")
	require.True(t, m.OK())
	assert.Equal(t, PhaseFuzzy, m.Phase)
	assert.Equal(t, "10-20", m.Answer)
	assert.Equal(t, float64(100), m.Score)

	m = r.Explain("new york mets")
	assert.False(t, m.OK())
	assert.Equal(t, -1, m.Entry)
	assert.InDelta(t, 76.19, m.Score, 0.01)

	lenient := newResolver(t, Options{Threshold: 70},
		knowledge.FAQEntry{Question: "new york yankees", Answer: "baseball"},
	)
	ans, ok := lenient.Resolve("new york mets")
	require.True(t, ok)
	assert.Equal(t, "baseball", ans)
}

func TestResolveFuzzyTieKeepsFirst(t *testing.T) {
	r := newResolver(t, Options{},
		knowledge.FAQEntry{Question: "alpha beta", Answer: "first"},
		knowledge.FAQEntry{Question: "beta alpha", Answer: "second"},
	)
	// "(" keeps the rule phase from matching either entry literally.
	m := r.Explain("beta ( alpha")
	require.True(t, m.OK())
	assert.Equal(t, "first", m.Answer)
}

func TestResolveNoMatch(t *testing.T) {
	r := newResolver(t, Options{}, knowledge.FAQEntry{Question: "оплата", Answer: "card"})

	for _, text := range []string{"", "   ", "щось зовсім інше"} {
		_, ok := r.Resolve(text)
		assert.False(t, ok, text)
	}
}

func TestResolveCache(t *testing.T) {
	r := newResolver(t, Options{CacheSize: 2}, knowledge.FAQEntry{Question: "оплата", Answer: "card"})

	first := r.Explain("  оплата карткою ")
	second := r.Explain("оплата карткою")
	assert.Equal(t, first, second)
	assert.Equal(t, 1, r.cache.Len())
}

func TestTokenSetRatio(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"fuzzy was a bear", "fuzzy fuzzy was a bear", 100},
		{"Bear, fuzzy!", "fuzzy bear", 100},
		{"abc", "xyz", 0},
		{"", "xyz", 0},
		{"new york mets", "new york yankees", 76.19},
	}
	for _, tt := range tests {
		t.Run(tt.a+"/"+tt.b, func(t *testing.T) {
			assert.InDelta(t, tt.want, tokenSetRatio(tokenize(tt.a), tokenize(tt.b)), 0.01)
		})
	}
}

func TestIndel(t *testing.T) {
	assert.Equal(t, 0, indel("", ""))
	assert.Equal(t, 3, indel("abc", ""))
	assert.Equal(t, 7, indel("mets", "yankees"))
	assert.Equal(t, 2, indel("кіт", "кит"))
}
