// Package email abstracts outbound mail. Senders are fire-and-forget;
// retries belong to the task queue that calls them.
package email

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
)

type Message struct {
	Subject string
	Body    string
	From    string
	To      []string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender delivers over a plain SMTP relay.
type SMTPSender struct {
	Addr string // host:port
	Auth smtp.Auth
}

func NewSMTPSender(addr, username, password, host string) *SMTPSender {
	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &SMTPSender{Addr: addr, Auth: auth}
}

func (s *SMTPSender) Send(_ context.Context, msg Message) error {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", msg.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=\"utf-8\"\r\n\r\n")
	b.WriteString(msg.Body)
	if err := smtp.SendMail(s.Addr, s.Auth, msg.From, msg.To, []byte(b.String())); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// LogSender writes mail to the log instead of the wire. Dev default, so the
// stack runs without an SMTP relay.
type LogSender struct {
	Log *slog.Logger
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	log := s.Log
	if log == nil {
		log = slog.Default()
	}
	log.Info("email (not sent, log sender)", "to", strings.Join(msg.To, ","), "subject", msg.Subject)
	return nil
}
