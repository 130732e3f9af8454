package smtp

import (
	"context"
	"fmt"

	"github.com/go-passwordless/internal/config"
	"gopkg.in/gomail.v2"
)

const codeSubject = "Your sign-in code"

// dialer is the part of *gomail.Dialer the mailer needs.
type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// Mailer delivers one-time codes by email.
type Mailer struct {
	dialer dialer
	from   string
}

func NewMailer(cfg *config.Config) *Mailer {
	return &Mailer{
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword),
		from:   cfg.SMTPFrom,
	}
}

// SendCode emails code to the address to.
func (m *Mailer) SendCode(_ context.Context, to, code string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", codeSubject)
	msg.SetBody("text/plain", fmt.Sprintf("Your verification code is %s. It expires in a few minutes.", code))
	msg.AddAlternative("text/html", fmt.Sprintf(
		"<p>Your verification code is <strong>%s</strong>.</p><p>It expires in a few minutes.</p>", code))

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send code email: %w", err)
	}
	return nil
}
