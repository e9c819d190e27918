package logger

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T, format logFormat) (*slog.Logger, func() string) {
	t.Helper()
	buf := &bytes.Buffer{}
	aw := newAsyncWriter([]io.Writer{buf}, 1024)
	h := newStructuredHandler(handlerConfig{
		level:  slog.LevelDebug,
		writer: aw,
		format: format,
	})
	return slog.New(h), func() string {
		require.NoError(t, aw.Close())
		return strings.TrimSpace(buf.String())
	}
}

func TestStructuredHandlerKVOrder(t *testing.T) {
	log, output := newTestLogger(t, formatKV)
	ctx := WithRID(context.Background(), "rid-123")
	ctx = WithUpdateMeta(ctx, 42, 7, 9)

	LogEvent(ctx, log.With("component", CompFAQ), slog.LevelInfo, "faq.resolved",
		slog.String("status", "OK"),
		slog.String("phase", "rule"),
	)

	tokens := strings.Split(output(), " ")
	expected := []string{"ts=", "level=INFO", "component=faq", "event=faq.resolved", "status=ok", "rid=rid-123", "update_id=42", "user_id=7", "chat_id=9"}
	require.GreaterOrEqual(t, len(tokens), len(expected))
	for i, prefix := range expected {
		assert.Truef(t, strings.HasPrefix(tokens[i], prefix), "token %d = %s, want prefix %s", i, tokens[i], prefix)
	}
}

func TestStructuredHandlerJSONOrder(t *testing.T) {
	log, output := newTestLogger(t, formatJSON)
	ctx := WithRID(context.Background(), "rid-json")
	ctx = WithLang(ctx, "uk")

	LogEvent(ctx, log.With("component", CompAI), slog.LevelError, "ai.fallback",
		slog.String("status", "fallback"),
		slog.String("provider", "openai"),
		slog.String("err", "boom"),
	)

	line := output()
	require.True(t, strings.HasPrefix(line, "{"), line)
	ordered := []string{`{"ts":`, `"level":"ERROR"`, `"component":"ai"`, `"event":"ai.fallback"`, `"status":"fallback"`, `"rid":"rid-json"`, `"lang":"uk"`, `"provider":"openai"`, `"err":"boom"`}
	pos := -1
	for _, p := range ordered {
		idx := strings.Index(line, p)
		require.Greaterf(t, idx, pos, "%s out of order in %s", p, line)
		pos = idx
	}
}

func TestStructuredHandlerCompactRID(t *testing.T) {
	cases := []struct {
		name     string
		format   logFormat
		keepFull bool
	}{
		{name: "kv", format: formatKV},
		{name: "json", format: formatJSON, keepFull: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			log, output := newTestLogger(t, tc.format)
			raw := "123:456:789"
			LogEvent(WithRID(context.Background(), raw), log, slog.LevelInfo, "rid.test")

			line := output()
			assert.Contains(t, line, CompactRID(raw))
			assert.Equal(t, tc.keepFull, strings.Contains(line, "rid_full"), line)
		})
	}
}

func TestStructuredHandlerNormalizesValues(t *testing.T) {
	log, output := newTestLogger(t, formatKV)
	LogEvent(context.Background(), log, slog.LevelWarn, "lead.retry",
		slog.Duration("backoff", 1500*time.Millisecond),
		slog.String("cache", "bogus"),
		slog.String("outcome", "FAIL"),
		slog.String("empty", ""),
		slog.String("note", `has "quotes"`),
	)

	line := output()
	assert.Contains(t, line, "component=app")
	assert.Contains(t, line, "backoff_ms=1500")
	assert.Contains(t, line, "outcome=fail")
	assert.NotContains(t, line, "cache=")
	assert.NotContains(t, line, "empty=")
	assert.Contains(t, line, `note="has \"quotes\""`)
}

func TestHandlerRespectsLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	aw := newAsyncWriter([]io.Writer{buf}, 1024)
	log := slog.New(newStructuredHandler(handlerConfig{level: slog.LevelWarn, writer: aw, format: formatKV}))

	log.Info("dropped")
	log.Warn("kept")
	require.NoError(t, aw.Close())

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "event=kept")
}

func TestHelpersAreNoopsBeforeInit(t *testing.T) {
	require.Nil(t, L)
	assert.NotPanics(t, func() {
		Info(context.Background(), CompChat, "noop")
		LogEvent(context.Background(), nil, slog.LevelError, "noop")
	})
	assert.Nil(t, Component(CompTG))
}

func TestCompactRID(t *testing.T) {
	assert.Equal(t, "3f.co.lx", CompactRID("123:456:789"))
	assert.Equal(t, "not-a-rid", CompactRID("not-a-rid"))
	assert.Equal(t, "1:x:3", CompactRID("1:x:3"))
}

func TestSanitizeLimit(t *testing.T) {
	assert.Equal(t, "ab\tc", Sanitize("a\x00b\tc\u200b"))
	assert.Equal(t, "При", SanitizeLimit("Привіт", 3))
	assert.Equal(t, "", SanitizeLimit("x", 0))
}

func TestRatioSampler(t *testing.T) {
	s := newRatioSampler(1, 3)
	got := []bool{s.Allow(), s.Allow(), s.Allow(), s.Allow()}
	assert.Equal(t, []bool{true, false, false, true}, got)

	s.Set(0, 0)
	assert.True(t, s.Allow())

	num, den := parseRatioSpec("2/5")
	assert.Equal(t, [2]int{2, 5}, [2]int{num, den})
	num, den = parseRatioSpec("10")
	assert.Equal(t, [2]int{1, 10}, [2]int{num, den})
	num, den = parseRatioSpec("x")
	assert.Equal(t, [2]int{0, 0}, [2]int{num, den})
}
