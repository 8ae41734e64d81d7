// Package mail is the best-effort email side channel for notifications.
package mail

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"time"

	gomail "github.com/emersion/go-message/mail"

	"infosync/internal/platform/config"
)

// Message is a notification email with text and HTML alternatives.
type Message struct {
	To      []string
	Subject string
	Text    string
	HTML    string
}

// Compose renders msg as an RFC 5322 multipart/alternative message.
func Compose(from string, msg Message, date time.Time) ([]byte, error) {
	if len(msg.To) == 0 {
		return nil, fmt.Errorf("message has no recipients")
	}

	var h gomail.Header
	h.SetDate(date)
	h.SetSubject(msg.Subject)
	h.SetAddressList("From", []*gomail.Address{{Address: from}})
	to := make([]*gomail.Address, 0, len(msg.To))
	for _, addr := range msg.To {
		to = append(to, &gomail.Address{Address: addr})
	}
	h.SetAddressList("To", to)
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("generate message id: %w", err)
	}

	var buf bytes.Buffer
	mw, err := gomail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create mail writer: %w", err)
	}
	tw, err := mw.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("create inline writer: %w", err)
	}
	if err := writePart(tw, "text/plain", msg.Text); err != nil {
		return nil, err
	}
	if msg.HTML != "" {
		if err := writePart(tw, "text/html", msg.HTML); err != nil {
			return nil, err
		}
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writePart(tw *gomail.InlineWriter, contentType, body string) error {
	var ph gomail.InlineHeader
	ph.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	w, err := tw.CreatePart(ph)
	if err != nil {
		return fmt.Errorf("create %s part: %w", contentType, err)
	}
	if _, err := io.WriteString(w, body); err != nil {
		return fmt.Errorf("write %s part: %w", contentType, err)
	}
	return w.Close()
}

// SMTPMailer sends through a plain SMTP relay, with PLAIN auth when a
// username is configured.
type SMTPMailer struct {
	addr string
	from string
	auth smtp.Auth
	now  func() time.Time
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	m := &SMTPMailer{
		addr: net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		from: cfg.From,
		now:  time.Now,
		send: smtp.SendMail,
	}
	if cfg.Username != "" {
		m.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return m
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := Compose(m.from, msg, m.now())
	if err != nil {
		return err
	}
	if err := m.send(m.addr, m.auth, m.from, msg.To, raw); err != nil {
		return fmt.Errorf("smtp send to %s: %w", m.addr, err)
	}
	return nil
}

// LogMailer stands in when no SMTP host is configured.
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	m.logger.InfoContext(ctx, "email not sent, smtp disabled",
		"to", msg.To,
		"subject", msg.Subject,
	)
	return nil
}

// Sender delivers one message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// New picks the SMTP mailer when a host is configured.
func New(cfg config.SMTPConfig, logger *slog.Logger) Sender {
	if cfg.Host == "" {
		return NewLogMailer(logger)
	}
	return NewSMTPMailer(cfg)
}
