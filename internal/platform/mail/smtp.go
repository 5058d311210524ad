package mail

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/vendora/api/internal/platform/config"
)

// Sender delivers plain-text emails. Implementations must be safe for
// concurrent use.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPSender sends mail through a configured SMTP relay using PLAIN auth.
type SMTPSender struct {
	host     string
	port     int
	username string
	password string
	from     string

	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender validates the configuration and builds an SMTPSender.
func NewSMTPSender(cfg config.NotificationConfig) (*SMTPSender, error) {
	if strings.TrimSpace(cfg.SMTPHost) == "" {
		return nil, errors.New("mail: smtp host is required")
	}
	if cfg.SMTPPort <= 0 {
		return nil, errors.New("mail: smtp port is required")
	}
	from := strings.TrimSpace(cfg.FromAddress)
	if from == "" {
		from = strings.TrimSpace(cfg.SMTPUsername)
	}
	if from == "" {
		return nil, errors.New("mail: from address is required")
	}

	return &SMTPSender{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		username: cfg.SMTPUsername,
		password: cfg.SMTPPassword,
		from:     from,
		send:     smtp.SendMail,
	}, nil
}

// Send delivers the message to a single recipient.
func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	if s == nil {
		return errors.New("mail: sender not initialised")
	}
	to = strings.TrimSpace(to)
	if to == "" {
		return errors.New("mail: recipient is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	var auth smtp.Auth
	if s.username != "" {
		auth = smtp.PlainAuth("", s.username, s.password, s.host)
	}

	msg := []byte(
		"From: " + s.from + "\r\n" +
			"To: " + to + "\r\n" +
			"Subject: " + sanitizeHeader(subject) + "\r\n" +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/plain; charset=UTF-8\r\n" +
			"\r\n" +
			body,
	)

	if err := s.send(addr, auth, s.from, []string{to}, msg); err != nil {
		return fmt.Errorf("mail: smtp send failed: %w", err)
	}
	return nil
}

func sanitizeHeader(value string) string {
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.ReplaceAll(value, "\n", " ")
	return strings.TrimSpace(value)
}
