package bot

import (
	"context"
	"errors"
	"sync/atomic"

	tele "gopkg.in/telebot.v4"

	tghelpers "github.com/m3rciful/cozybot/core/telegram/helpers"
	"github.com/m3rciful/cozybot/internal/knowledge"
	"github.com/m3rciful/cozybot/internal/leads"
)

var _ tghelpers.Sender = (*tele.Bot)(nil)

// errNotAttached is returned until the running bot is attached.
var errNotAttached = errors.New("bot: notifier has no sender yet")

// LeadNotifier forwards persisted leads to the manager chat.
type LeadNotifier struct {
	chatID int64
	fields []knowledge.LeadField
	sender atomic.Pointer[senderBox]
}

type senderBox struct{ s tghelpers.Sender }

// NewLeadNotifier returns a notifier for chatID. It is inert until Attach.
func NewLeadNotifier(chatID int64, fields []knowledge.LeadField) *LeadNotifier {
	return &LeadNotifier{chatID: chatID, fields: fields}
}

// Attach sets the bot used to deliver notifications.
func (n *LeadNotifier) Attach(s tghelpers.Sender) {
	if s == nil {
		n.sender.Store(nil)
		return
	}
	n.sender.Store(&senderBox{s: s})
}

// NotifyLead implements leads.Notifier.
func (n *LeadNotifier) NotifyLead(ctx context.Context, rec leads.Record) error {
	box := n.sender.Load()
	if box == nil {
		return errNotAttached
	}
	return tghelpers.SendTo(ctx, box.s, n.chatID, leads.Summary(n.fields, rec))
}
