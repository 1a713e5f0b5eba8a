package notifier

import (
	"context"
	"fmt"
	"os"

	"github.com/wneessen/go-mail"
)

// Mailer sends full notifications over SMTP with STARTTLS.
type Mailer struct {
	Host      string
	Port      int
	User      string
	Password  string
	Receivers []string
}

func (m *Mailer) Name() string { return "email" }

func (m *Mailer) Enabled() bool {
	return m != nil && m.User != "" && m.Password != "" && len(m.Receivers) > 0
}

func (m *Mailer) Mail(ctx context.Context, subject, body, attachment string) error {
	msg, err := m.message(subject, body, attachment)
	if err != nil {
		return err
	}
	c, err := mail.NewClient(m.Host,
		mail.WithTLSPortPolicy(mail.TLSMandatory),
		mail.WithPort(m.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(m.User),
		mail.WithPassword(m.Password),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := c.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// message builds the email. A missing attachment is skipped so the body
// still goes out.
func (m *Mailer) message(subject, body, attachment string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.User); err != nil {
		return nil, fmt.Errorf("from: %w", err)
	}
	if err := msg.To(m.Receivers...); err != nil {
		return nil, fmt.Errorf("to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)
	if attachment != "" {
		if _, err := os.Stat(attachment); err == nil {
			msg.AttachFile(attachment)
		}
	}
	return msg, nil
}
