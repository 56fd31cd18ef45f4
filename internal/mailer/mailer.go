// Package mailer delivers one-time codes to users. Delivery failure is
// logged and never blocks the calling flow; the original system had no
// delivery acknowledgement either.
package mailer

import (
	"context"
	"fmt"
	"net/smtp"

	log "github.com/sirupsen/logrus"

	"github.com/chatforge-app/chatforge/internal/config"
)

// Sender delivers a one-time code to an email address.
type Sender interface {
	SendOTP(ctx context.Context, toEmail, name, code string) error
}

// SMTPSender sends codes over plain SMTP with AUTH.
type SMTPSender struct {
	cfg config.SMTPConfig
}

// NewSMTPSender constructs an SMTPSender.
func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

// SendOTP sends the code.
func (s *SMTPSender) SendOTP(_ context.Context, toEmail, name, code string) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)

	from := s.cfg.From
	if from == "" {
		from = s.cfg.Username
	}

	body := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: Your ChatForge verification code\r\n\r\n"+
			"Hi %s,\r\n\r\nYour verification code is %s. It expires in 10 minutes.\r\n",
		from, toEmail, name, code,
	)

	if errSend := smtp.SendMail(addr, auth, from, []string{toEmail}, []byte(body)); errSend != nil {
		return fmt.Errorf("mailer: send to %s: %w", toEmail, errSend)
	}
	return nil
}

// LogSender writes codes to the application log. Used when SMTP is not
// configured, typically in development.
type LogSender struct{}

// SendOTP logs the code instead of delivering it.
func (LogSender) SendOTP(_ context.Context, toEmail, _ string, code string) error {
	log.WithField("email", toEmail).Infof("otp code (smtp disabled): %s", code)
	return nil
}

// NewSender picks the SMTP sender when a host is configured, otherwise the
// log sender.
func NewSender(cfg config.SMTPConfig) Sender {
	if cfg.Host == "" {
		return LogSender{}
	}
	return NewSMTPSender(cfg)
}
