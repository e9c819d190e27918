// Package leads runs the per-user lead interview and persists completed
// records.
package leads

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/cozybot/core/logger"
	"github.com/m3rciful/cozybot/internal/knowledge"
	"github.com/m3rciful/cozybot/internal/lang"
)

// ErrNoSession is returned by Advance when the user is not being interviewed.
var ErrNoSession = errors.New("leads: no active session")

// DefaultRetryBackoff is the pause before the single persistence retry.
const DefaultRetryBackoff = 500 * time.Millisecond

var (
	thanks = map[lang.Tag]string{
		lang.Ukrainian: "Дякуємо! Заявку передано менеджеру. Ми на зв'язку 👌",
		lang.Russian:   "Спасибо! Заявка передана менеджеру. Мы на связи 👌",
	}
	apology = map[lang.Tag]string{
		lang.Ukrainian: "Вибачте, не вдалося зберегти заявку. Зателефонуйте нам, будь ласка: %s",
		lang.Russian:   "Извините, не удалось сохранить заявку. Позвоните нам, пожалуйста: %s",
	}
)

func localized(m map[lang.Tag]string, tag lang.Tag) string {
	if tag == lang.Russian {
		return m[lang.Russian]
	}
	return m[lang.Ukrainian]
}

// Notifier is told about every persisted record.
type Notifier interface {
	NotifyLead(ctx context.Context, rec Record) error
}

// Observer records persistence outcomes.
type Observer interface {
	ObserveLead(status string)
}

// Options configures a Flow.
type Options struct {
	Fields   []knowledge.LeadField
	Sessions SessionStore
	Store    Store
	// Phone is quoted in the apology when a record cannot be saved.
	Phone        string
	RetryBackoff time.Duration
	Notifier     Notifier
	Observer     Observer
	Now          func() time.Time
}

// Flow is the interview state machine. Callers serialize calls per user.
type Flow struct {
	fields   []knowledge.LeadField
	sessions SessionStore
	store    Store
	phone    string
	backoff  time.Duration
	notifier Notifier
	observer Observer
	now      func() time.Time
}

// Inbound is one answer from a user.
type Inbound struct {
	UserID   int64
	Username string
	Text     string
	Lang     lang.Tag
}

// NewFlow validates opts and returns a Flow.
func NewFlow(opts Options) (*Flow, error) {
	if len(opts.Fields) == 0 {
		return nil, knowledge.ErrNoFields
	}
	if opts.Sessions == nil || opts.Store == nil {
		return nil, errors.New("leads: session store and record store are required")
	}
	f := &Flow{
		fields:   append([]knowledge.LeadField(nil), opts.Fields...),
		sessions: opts.Sessions,
		store:    opts.Store,
		phone:    opts.Phone,
		backoff:  opts.RetryBackoff,
		notifier: opts.Notifier,
		observer: opts.Observer,
		now:      opts.Now,
	}
	if f.backoff <= 0 {
		f.backoff = DefaultRetryBackoff
	}
	if f.now == nil {
		f.now = time.Now
	}
	return f, nil
}

// Fields returns the interview definition.
func (f *Flow) Fields() []knowledge.LeadField { return f.fields }

// Start begins or restarts the interview and returns the first prompt.
func (f *Flow) Start(ctx context.Context, userID int64) (string, error) {
	s := &Session{Answers: map[string]string{}, StartedAt: f.now().UTC()}
	if err := f.sessions.Put(ctx, userID, s); err != nil {
		return "", err
	}
	logger.Info(ctx, logger.CompLeads, "lead.started",
		slog.Int64("user_id", userID),
		slog.Int("fields", len(f.fields)),
	)
	return f.fields[0].Label, nil
}

// Active reports whether userID is being interviewed.
func (f *Flow) Active(ctx context.Context, userID int64) (bool, error) {
	_, ok, err := f.sessions.Get(ctx, userID)
	return ok, err
}

// Cancel drops the session of userID and reports whether one existed.
func (f *Flow) Cancel(ctx context.Context, userID int64) (bool, error) {
	_, ok, err := f.sessions.Get(ctx, userID)
	if err != nil || !ok {
		return false, err
	}
	if err := f.sessions.Delete(ctx, userID); err != nil {
		return false, err
	}
	logger.Info(ctx, logger.CompLeads, "lead.cancelled", slog.Int64("user_id", userID))
	return true, nil
}

// Advance records in.Text as the answer to the current field and returns the
// next prompt, or the closing message once the last field is answered.
func (f *Flow) Advance(ctx context.Context, in Inbound) (string, error) {
	s, ok, err := f.sessions.Get(ctx, in.UserID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrNoSession
	}
	if s.Step < 0 || s.Step >= len(f.fields) {
		// Stored by an older field list; nothing sensible to resume.
		if err := f.sessions.Delete(ctx, in.UserID); err != nil {
			logger.Warn(ctx, logger.CompLeads, "lead.session_delete_failed", logger.Err(err))
		}
		logger.Warn(ctx, logger.CompLeads, "lead.session_reset",
			slog.Int64("user_id", in.UserID),
			slog.Int("step", s.Step),
		)
		return "", ErrNoSession
	}

	if s.Answers == nil {
		s.Answers = make(map[string]string, len(f.fields))
	}
	field := f.fields[s.Step]
	s.Answers[field.Name] = in.Text
	s.Step++
	logger.Debug(ctx, logger.CompLeads, "lead.step",
		slog.Int("step", s.Step),
		slog.String("field", field.Name),
	)

	if s.Step < len(f.fields) {
		if err := f.sessions.Put(ctx, in.UserID, s); err != nil {
			return "", err
		}
		return f.fields[s.Step].Label, nil
	}

	rec := Record{
		Timestamp: f.now().UTC(),
		UserID:    in.UserID,
		Username:  in.Username,
		Answers:   s.Answers,
	}
	persistErr := f.persist(ctx, rec)
	if err := f.sessions.Delete(ctx, in.UserID); err != nil {
		logger.Warn(ctx, logger.CompLeads, "lead.session_delete_failed", logger.Err(err))
	}
	if persistErr != nil {
		return fmt.Sprintf(localized(apology, in.Lang), f.phone), nil
	}

	logger.Info(ctx, logger.CompLeads, "lead.saved",
		slog.Int64("user_id", in.UserID),
		slog.Duration("duration", logger.RoundMS(rec.Timestamp.Sub(s.StartedAt))),
	)
	if f.notifier != nil {
		if err := f.notifier.NotifyLead(ctx, rec); err != nil {
			logger.Warn(ctx, logger.CompLeads, "lead.notify_failed", logger.Err(err))
		}
	}
	return localized(thanks, in.Lang), nil
}

// persist appends rec, retrying exactly once after the backoff.
func (f *Flow) persist(ctx context.Context, rec Record) error {
	err := f.store.Append(ctx, rec)
	if err == nil {
		f.observe("saved")
		return nil
	}
	logger.Warn(ctx, logger.CompLeads, "lead.persist_retry",
		slog.Duration("backoff", f.backoff),
		logger.Err(err),
	)

	timer := time.NewTimer(f.backoff)
	select {
	case <-timer.C:
		err = f.store.Append(ctx, rec)
	case <-ctx.Done():
		timer.Stop()
		err = errors.Join(err, ctx.Err())
	}
	if err == nil {
		f.observe("retried")
		return nil
	}

	f.observe("failed")
	attrs := []slog.Attr{
		slog.String("timestamp", rec.Timestamp.Format(TimestampLayout)),
		slog.Int64("user_id", rec.UserID),
		slog.String("username", rec.Username),
	}
	for _, fl := range f.fields {
		attrs = append(attrs, slog.String("answer_"+fl.Name, rec.Answers[fl.Name]))
	}
	attrs = append(attrs, logger.Err(err))
	logger.Error(ctx, logger.CompLeads, "lead.persist_failed", attrs...)
	return err
}

func (f *Flow) observe(status string) {
	if f.observer != nil {
		f.observer.ObserveLead(status)
	}
}

// Summary renders rec for the manager, one "name: answer" line per field.
func Summary(fields []knowledge.LeadField, rec Record) string {
	var sb strings.Builder
	sb.WriteString("Нова заявка")
	if rec.Username != "" {
		sb.WriteString(" від @")
		sb.WriteString(rec.Username)
	}
	fmt.Fprintf(&sb, " (id %d)\n", rec.UserID)
	for _, fl := range fields {
		fmt.Fprintf(&sb, "%s: %s\n", fl.Name, rec.Answers[fl.Name])
	}
	sb.WriteString(rec.Timestamp.UTC().Format(time.RFC3339))
	return sb.String()
}
