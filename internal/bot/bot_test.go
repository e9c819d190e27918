package bot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/cozybot/core/telegram"
	"github.com/m3rciful/cozybot/core/telegram/middleware"
	tgsender "github.com/m3rciful/cozybot/core/telegram/sender"
	"github.com/m3rciful/cozybot/internal/assistant"
	"github.com/m3rciful/cozybot/internal/chat"
	"github.com/m3rciful/cozybot/internal/faq"
	"github.com/m3rciful/cozybot/internal/knowledge"
	"github.com/m3rciful/cozybot/internal/lang"
	"github.com/m3rciful/cozybot/internal/leads"
)

type sentMessage struct {
	text   string
	markup *tele.ReplyMarkup
}

type fakeContext struct {
	tele.Context
	user  *tele.User
	text  string
	store map[string]any
	sent  []sentMessage
}

func newContext(userID int64, text string) *fakeContext {
	return &fakeContext{
		user:  &tele.User{ID: userID, Username: "olena"},
		text:  text,
		store: map[string]any{},
	}
}

func (f *fakeContext) Sender() *tele.User { return f.user }
func (f *fakeContext) Chat() *tele.Chat { return &tele.Chat{ID: f.user.ID} }
func (f *fakeContext) Text() string { return f.text }
func (f *fakeContext) Update() tele.Update { return tele.Update{ID: 100} }
func (f *fakeContext) Get(key string) any { return f.store[key] }
func (f *fakeContext) Set(key string, v any) { f.store[key] = v }

func (f *fakeContext) Send(what any, opts ...any) error {
	msg := sentMessage{text: what.(string)}
	for _, o := range opts {
		if so, ok := o.(*tele.SendOptions); ok {
			msg.markup = so.ReplyMarkup
		}
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeContext) last(t *testing.T) sentMessage {
	t.Helper()
	require.NotEmpty(t, f.sent)
	return f.sent[len(f.sent)-1]
}

const kbYAML = `
faq:
  - q: "доставка"
    a: "Доставка 1-2 дні"
leads:
  fields:
    - name: full_name
      label: "Як вас звати?"
company:
  contacts:
    phone: "+380 50 000 00 00"
  work_hours: "10-20"
`

const twoFieldKB = `
leads:
  fields:
    - name: full_name
      label: "Як вас звати?"
    - name: phone
      label: "Ваш телефон?"
`

type brokenSessions struct{ leads.SessionStore }

func (brokenSessions) Get(context.Context, int64) (*leads.Session, bool, error) {
	return nil, false, errors.New("redis down")
}

type leadRecords struct {
	mu      sync.Mutex
	records []leads.Record
}

func (s *leadRecords) Append(_ context.Context, rec leads.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func newHandler(t *testing.T, sessions leads.SessionStore, status func(context.Context) string) *Handler {
	t.Helper()
	return newHandlerWith(t, kbYAML, sessions, leads.NewCSVStore(t.TempDir()+"/leads.csv", []string{"full_name"}), status)
}

func newHandlerWith(t *testing.T, kbDoc string, sessions leads.SessionStore, store leads.Store, status func(context.Context) string) *Handler {
	t.Helper()
	kb, err := knowledge.Parse([]byte(kbDoc))
	require.NoError(t, err)
	resolver, err := faq.New(kb, faq.Options{})
	require.NoError(t, err)
	flow, err := leads.NewFlow(leads.Options{
		Fields:   kb.Leads.Fields,
		Sessions: sessions,
		Store:    store,
	})
	require.NoError(t, err)
	router, err := chat.New(chat.Options{
		Knowledge: kb,
		Resolver:  resolver,
		Fallback:  assistant.NewGenerator(assistant.Options{}),
		Leads:     flow,
		Lang:      "uk",
	})
	require.NoError(t, err)
	h, err := New(Options{Router: router, Status: status})
	require.NoError(t, err)
	return h
}

func TestRegister(t *testing.T) {
	reg := tg.NewRegistry()
	newHandler(t, leads.NewMemoryStore(), nil).Register(reg)

	assert.Len(t, reg.Commands(), 4)
	assert.NotNil(t, reg.TextFallback())
	visible := reg.ListCommands(true)
	require.Len(t, visible, 4)
	assert.Equal(t, "cancel", visible[0].Text)

	withStatus := tg.NewRegistry()
	newHandler(t, leads.NewMemoryStore(), func(context.Context) string { return "ok" }).Register(withStatus)
	assert.Len(t, withStatus.Commands(), 5)
	assert.Len(t, withStatus.ListCommands(true), 4)
	assert.True(t, withStatus.Commands()["/status"].AdminOnly)
}

func TestOnTextFAQAndFallback(t *testing.T) {
	h := newHandler(t, leads.NewMemoryStore(), nil)

	c := newContext(1, "Яка доставка?")
	require.NoError(t, h.onText(c))
	assert.Equal(t, "Доставка 1-2 дні", c.last(t).text)
	assert.Nil(t, c.last(t).markup)

	c = newContext(1, "щось незрозуміле")
	require.NoError(t, h.onText(c))
	msg := c.last(t)
	assert.Equal(t, assistant.Canned(lang.Ukrainian), msg.text)
	require.NotNil(t, msg.markup)
	assert.True(t, msg.markup.ResizeKeyboard)
	require.Len(t, msg.markup.ReplyKeyboard, 3)
	assert.Equal(t, "Залишити заявку", msg.markup.ReplyKeyboard[1][0].Text)
}

func TestCommands(t *testing.T) {
	h := newHandler(t, leads.NewMemoryStore(), nil)

	c := newContext(5, "/start")
	require.NoError(t, h.onStart(c))
	assert.Contains(t, c.last(t).text, "Shop Cozy")
	assert.NotNil(t, c.last(t).markup)

	c = newContext(5, "/help")
	require.NoError(t, h.onHelp(c))
	assert.Contains(t, c.last(t).text, "/lead")

	c = newContext(5, "/lead")
	require.NoError(t, h.onLead(c))
	assert.Equal(t, "Як вас звати?", c.last(t).text)

	c = newContext(5, "/cancel")
	require.NoError(t, h.onCancel(c))
	assert.Equal(t, "Заявку скасовано.", c.last(t).text)
}

func TestOnTextStoreErrorApologizes(t *testing.T) {
	h := newHandler(t, brokenSessions{leads.NewMemoryStore()}, nil)

	c := newContext(1, "доставка")
	require.NoError(t, h.onText(c))
	assert.Equal(t, chat.Apology(lang.Ukrainian), c.last(t).text)
}

func TestOnStatus(t *testing.T) {
	h := newHandler(t, leads.NewMemoryStore(), func(context.Context) string { return "faq entries: 1" })
	c := newContext(1, "/status")
	require.NoError(t, h.onStatus(c))
	assert.Equal(t, "faq entries: 1", c.last(t).text)
}

func TestOnTextAnswersLandInArrivalOrder(t *testing.T) {
	defer goleak.VerifyNone(t)
	store := &leadRecords{}
	h := newHandlerWith(t, twoFieldKB, leads.NewMemoryStore(), store, nil)
	require.NoError(t, h.onLead(newContext(5, "/lead")))

	updates := tgsender.NewDispatcher(tgsender.Options{Workers: 2})
	onText := middleware.OrderedMiddleware(updates, nil)(h.onText)
	// back to back from one user, as the poll loop hands them over
	name, phone := newContext(5, "A"), newContext(5, "B")
	require.NoError(t, onText(name))
	require.NoError(t, onText(phone))
	updates.Close()

	assert.Equal(t, "Ваш телефон?", name.last(t).text)
	require.Len(t, store.records, 1)
	assert.Equal(t, map[string]string{"full_name": "A", "phone": "B"}, store.records[0].Answers)
}

type fakeSender struct {
	to   tele.Recipient
	what any
}

func (f *fakeSender) Send(to tele.Recipient, what any, _ ...any) (*tele.Message, error) {
	f.to, f.what = to, what
	return &tele.Message{}, nil
}

func TestLeadNotifier(t *testing.T) {
	fields := []knowledge.LeadField{{Name: "phone", Label: "?"}}
	n := NewLeadNotifier(900, fields)
	rec := leads.Record{
		Timestamp: time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC),
		UserID:    42,
		Answers:   map[string]string{"phone": "050"},
	}

	assert.ErrorIs(t, n.NotifyLead(context.Background(), rec), errNotAttached)

	s := &fakeSender{}
	n.Attach(s)
	require.NoError(t, n.NotifyLead(context.Background(), rec))
	assert.Equal(t, "900", s.to.Recipient())
	assert.Equal(t, leads.Summary(fields, rec), s.what)
}
