// Package mailer implements the Notifier port over plain SMTP.
package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/thoomar/attendance-timeoff-sub000/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Notifier = (*Mailer)(nil)

// Mailer sends plain-text mail through a single SMTP relay. Auth is omitted:
// the expected deployment talks to an internal relay that allows the
// service's source address.
type Mailer struct {
	addr string // host:port of the SMTP relay
	from string
}

// NewMailer creates a Mailer for the given relay address and sender.
func NewMailer(addr, from string) *Mailer {
	return &Mailer{addr: addr, from: from}
}

// Send delivers one message. The context deadline is not honored mid-dial
// because net/smtp predates context; the relay is expected to be local and
// fast.
func (m *Mailer) Send(_ context.Context, to, subject, body string) error {
	msg := strings.Join([]string{
		"From: " + m.from,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
	}, "\r\n")

	if err := smtp.SendMail(m.addr, nil, m.from, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}

	return nil
}
