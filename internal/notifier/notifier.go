// Package notifier delivers brief and full notifications over the configured
// chat, webhook and email transports. Delivery is best-effort: failures are
// logged and counted, never returned to the caller.
package notifier

import (
	"context"
	"log/slog"

	"kibalert/internal/metrics"
)

// Notifier is what the publishing pipeline depends on.
type Notifier interface {
	SendBrief(ctx context.Context, msg string)
	SendFull(ctx context.Context, subject, body, attachment string)
}

// Chat is a transport that can post a short text message.
type Chat interface {
	Name() string
	Enabled() bool
	Send(ctx context.Context, msg string) error
}

// Uploader is a chat that can also attach a file.
type Uploader interface {
	Chat
	SendFile(ctx context.Context, caption, path string) error
}

type Dispatcher struct {
	chats   []Chat
	mail    *Mailer
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewDispatcher takes chats in brief-routing preference order. Nil and
// disabled transports are ignored.
func NewDispatcher(logger *slog.Logger, m *metrics.Metrics, mailer *Mailer, chats ...Chat) *Dispatcher {
	d := &Dispatcher{mail: mailer, log: logger, metrics: m}
	for _, c := range chats {
		if c != nil && c.Enabled() {
			d.chats = append(d.chats, c)
		}
	}
	return d
}

// SendBrief posts msg to the first configured chat only.
func (d *Dispatcher) SendBrief(ctx context.Context, msg string) {
	if len(d.chats) == 0 {
		d.log.Debug("brief notification dropped, no chat configured")
		return
	}
	c := d.chats[0]
	d.record(c.Name(), "brief", c.Send(ctx, msg))
}

// SendFull posts to every chat able to carry an attachment and emails it.
// Without an attachment chats receive the subject and body as text.
func (d *Dispatcher) SendFull(ctx context.Context, subject, body, attachment string) {
	for _, c := range d.chats {
		up, ok := c.(Uploader)
		if !ok {
			continue
		}
		var err error
		if attachment != "" {
			err = up.SendFile(ctx, subject+"\n"+body, attachment)
		} else {
			err = up.Send(ctx, subject+"\n"+body)
		}
		d.record(c.Name(), "full", err)
	}
	if d.mail.Enabled() {
		d.record(d.mail.Name(), "full", d.mail.Mail(ctx, subject, body, attachment))
	}
}

func (d *Dispatcher) record(channel, kind string, err error) {
	d.metrics.Notification(channel, err)
	if err != nil {
		d.log.Warn("notification failed", "channel", channel, "kind", kind, "err", err)
		return
	}
	d.log.Info("notification sent", "channel", channel, "kind", kind)
}
