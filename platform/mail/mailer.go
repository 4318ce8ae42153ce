// Package mail is the outbound email collaborator. Sending is always a best
// effort side effect performed after the enclosing transaction has committed;
// failures are logged by the caller and never surfaced as request failures.
package mail

import (
	"fmt"
	"log/slog"

	gomail "gopkg.in/gomail.v2"
)

type Message struct {
	To      string
	Subject string
	Body    string
}

type Mailer interface {
	Send(msg Message) error
}

type SmtpConfig struct {
	Host     string `env:"SMTP_HOST"`
	Port     int    `env:"SMTP_PORT" envDefault:"587"`
	Username string `env:"SMTP_USERNAME"`
	Password string `env:"SMTP_PASSWORD"`
	From     string `env:"SMTP_FROM"`
}

func (c *SmtpConfig) Enabled() bool {
	return c.Host != ""
}

type SmtpMailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewSmtpMailer(cfg SmtpConfig) Mailer {
	slog.Info("creating smtp mailer", "host", cfg.Host, "port", cfg.Port, "from", cfg.From)
	return &SmtpMailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

func (m *SmtpMailer) Send(msg Message) error {
	message := gomail.NewMessage()
	message.SetHeader("From", m.from)
	message.SetHeader("To", msg.To)
	message.SetHeader("Subject", msg.Subject)
	message.SetBody("text/plain", msg.Body)

	if err := m.dialer.DialAndSend(message); err != nil {
		return fmt.Errorf("error sending email to %v: %w", msg.To, err)
	}

	return nil
}

// NoopMailer is used when no SMTP configuration is present.
type NoopMailer struct{}

func (m NoopMailer) Send(msg Message) error {
	slog.Info("email sending is disabled, discarding message", "to", msg.To, "subject", msg.Subject)
	return nil
}
