package channel

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/randevubu/randevubu.server-sub006/internal/model"
)

// EmailSender sends via unauthenticated SMTP (Mailpit-compatible in dev,
// a relay in production).
type EmailSender struct {
	addr string
	from string
}

func NewEmailSender(host, port, from string) *EmailSender {
	host = strings.TrimSpace(host)
	port = strings.TrimSpace(port)
	from = strings.TrimSpace(from)
	if from == "" {
		from = "no-reply@randevubu.local"
	}
	return &EmailSender{
		addr: fmt.Sprintf("%s:%s", host, port),
		from: from,
	}
}

func (s *EmailSender) Channel() Channel { return Email }

func (s *EmailSender) CanReach(c model.ReminderCandidate) bool {
	return c.CustomerEmail != ""
}

func (s *EmailSender) Send(_ context.Context, c model.ReminderCandidate, msg Message) error {
	body := buildMessage(s.from, c.CustomerEmail, msg.Subject, msg.Body)
	return smtp.SendMail(s.addr, nil, s.from, []string{c.CustomerEmail}, []byte(body))
}

func buildMessage(from, to, subject, body string) string {
	// Minimal RFC 5322 message; enough for Mailpit and most SMTP relays.
	return fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
		from,
		to,
		subject,
		body,
	)
}
