// Package mailer delivers generated books by e-mail (send to kindle).
package mailer

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/gomail.v2"

	"jncweb/config"
	"jncweb/packager"
)

// ErrNotConfigured is returned when SMTP configuration is incomplete.
var ErrNotConfigured = errors.New("send to kindle is not configured")

// Sender sends prepared message.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// Mailer attaches payloads to messages and sends them to configured address.
type Mailer struct {
	cfg    config.SMTPConfig
	sender Sender
}

// New creates mailer for configuration. Sender is optional, SMTP dialer is used when nil.
func New(cfg config.SMTPConfig, sender Sender) (*Mailer, error) {
	if !cfg.IsValid() {
		return nil, ErrNotConfigured
	}
	if sender == nil {
		sender = gomail.NewDialer(cfg.Server, cfg.Port, cfg.User, cfg.Password)
	}
	return &Mailer{cfg: cfg, sender: sender}, nil
}

// Message prepares message with payload attached.
func (m *Mailer) Message(p *packager.Payload) *gomail.Message {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetAddressHeader("To", m.cfg.To, "kindle")
	msg.SetHeader("Subject", "Sent to Kindle")
	msg.SetBody("text/plain", "This email has been automatically sent by jncweb")
	msg.Attach(p.Name,
		gomail.SetHeader(map[string][]string{"Content-Type": {p.ContentType()}}),
		gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := io.Copy(w, p.Reader())
			return err
		}))
	return msg
}

// Send mails payload.
func (m *Mailer) Send(p *packager.Payload) error {
	if err := m.sender.DialAndSend(m.Message(p)); err != nil {
		return fmt.Errorf("send to kindle failed: %w", err)
	}
	return nil
}
