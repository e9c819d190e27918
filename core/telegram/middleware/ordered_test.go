package middleware

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	tele "gopkg.in/telebot.v4"

	tgsender "github.com/m3rciful/cozybot/core/telegram/sender"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type updateContext struct {
	tele.Context
	chatID int64
	text   string
	mu     sync.Mutex
	store  map[string]any
}

func newUpdate(chatID int64, text string) *updateContext {
	return &updateContext{chatID: chatID, text: text, store: map[string]any{}}
}

func (u *updateContext) Chat() *tele.Chat { return &tele.Chat{ID: u.chatID} }
func (u *updateContext) Sender() *tele.User { return &tele.User{ID: u.chatID} }
func (u *updateContext) Text() string { return u.text }
func (u *updateContext) Update() tele.Update { return tele.Update{ID: 1} }

func (u *updateContext) Get(key string) any {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.store[key]
}

func (u *updateContext) Set(key string, v any) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.store[key] = v
}

type handled struct {
	mu   sync.Mutex
	seen map[int64][]string
}

func (h *handled) add(c tele.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.seen == nil {
		h.seen = map[int64][]string{}
	}
	h.seen[c.Chat().ID] = append(h.seen[c.Chat().ID], c.Text())
}

func TestOrderedMiddlewareKeepsChatOrder(t *testing.T) {
	d := tgsender.NewDispatcher(tgsender.Options{Workers: 2, QueueSize: 4})
	release := make(chan struct{})
	otherDone := make(chan struct{})
	var got handled

	h := OrderedMiddleware(d, nil)(func(c tele.Context) error {
		switch c.Text() {
		case "first":
			<-release
		case "other":
			close(otherDone)
		}
		got.add(c)
		return nil
	})

	// delivered one after another, as the synchronous poll loop does
	require.NoError(t, h(newUpdate(1, "first")))
	require.NoError(t, h(newUpdate(1, "second")))
	require.NoError(t, h(newUpdate(2, "other")))

	select {
	case <-otherDone:
	case <-time.After(time.Second):
		t.Fatal("chat 2 waited for chat 1")
	}
	close(release)
	d.Close()

	assert.Equal(t, []string{"first", "second"}, got.seen[1])
	assert.Equal(t, []string{"other"}, got.seen[2])
}

func TestOrderedMiddlewareReportsHandlerErrors(t *testing.T) {
	d := tgsender.NewDispatcher(tgsender.Options{Workers: 1})
	boom := errors.New("boom")
	var reported []error
	h := OrderedMiddleware(d, func(err error, c tele.Context) {
		reported = append(reported, err)
	})(func(tele.Context) error { return boom })

	assert.NoError(t, h(newUpdate(7, "hi")))
	d.Close()

	require.Len(t, reported, 1)
	assert.ErrorIs(t, reported[0], boom)
	assert.Zero(t, d.ErrorCount())
}

func TestOrderedMiddlewareRunsInlineWithoutQueue(t *testing.T) {
	boom := errors.New("boom")
	next := func(tele.Context) error { return boom }

	assert.ErrorIs(t, OrderedMiddleware(nil, nil)(next)(newUpdate(1, "hi")), boom)

	d := tgsender.NewDispatcher(tgsender.Options{Workers: 1})
	d.Close()
	assert.ErrorIs(t, OrderedMiddleware(d, nil)(next)(newUpdate(1, "hi")), boom)
}
