// Package mailer delivers transactional email over SMTP.
package mailer

import (
	"context"
	"crypto/tls"
	"errors"

	mail "github.com/go-mail/mail/v2"
	"github.com/rs/zerolog"

	"github.com/iliyamo/journal-portal/internal/config"
)

// Sender sends one HTML message to the given recipients.
type Sender interface {
	Send(ctx context.Context, to []string, subject, html string) error
}

// New returns an SMTP sender, or a log-only sender when SMTP_HOST is
// empty.
func New(cfg config.MailConfig, log zerolog.Logger) Sender {
	if cfg.Host == "" {
		log.Warn().Msg("SMTP_HOST not set; outgoing mail will only be logged")
		return LogSender{Log: log}
	}
	return &SMTPSender{cfg: cfg, log: log}
}

type SMTPSender struct {
	cfg config.MailConfig
	log zerolog.Logger
}

func (s *SMTPSender) Send(ctx context.Context, to []string, subject, html string) error {
	if len(to) == 0 {
		return nil
	}
	if s.cfg.From == "" {
		return errors.New("smtp not configured: SMTP_FROM is empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := mail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", to...)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", html)

	d := mail.NewDialer(s.cfg.Host, s.cfg.Port, s.cfg.User, s.cfg.Pass)
	if s.cfg.Port == 587 {
		d.StartTLSPolicy = mail.MandatoryStartTLS
	}
	d.TLSConfig = &tls.Config{
		ServerName:         s.cfg.Host,
		InsecureSkipVerify: s.cfg.SkipTLSVerify,
	}
	if err := d.DialAndSend(m); err != nil {
		return err
	}
	s.log.Debug().Strs("to", to).Str("subject", subject).Msg("mail sent")
	return nil
}

// LogSender writes messages to the log instead of sending them.
type LogSender struct{ Log zerolog.Logger }

func (l LogSender) Send(_ context.Context, to []string, subject, _ string) error {
	l.Log.Info().Strs("to", to).Str("subject", subject).Msg("mail (not sent, smtp disabled)")
	return nil
}
