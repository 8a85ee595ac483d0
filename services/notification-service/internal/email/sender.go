package email

import (
	"context"
	"fmt"
	"mime"
	"net/smtp"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

type SMTPConfig struct {
	Host     string
	Port     string
	From     string
	Username string
	Password string
	// PerMinute caps outgoing mail; zero means unlimited.
	PerMinute int
}

// SMTPSender sends email over SMTP, authenticating only when a username is
// configured (Mailpit accepts anonymous mail).
type SMTPSender struct {
	addr    string
	from    string
	auth    smtp.Auth
	limiter *rate.Limiter
	send    func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	host := strings.TrimSpace(cfg.Host)
	from := strings.TrimSpace(cfg.From)
	if from == "" {
		from = "no-reply@vetcall.local"
	}
	s := &SMTPSender{
		addr:    fmt.Sprintf("%s:%s", host, strings.TrimSpace(cfg.Port)),
		from:    from,
		limiter: rate.NewLimiter(rate.Inf, 1),
		send:    smtp.SendMail,
	}
	if cfg.Username != "" {
		s.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, host)
	}
	if cfg.PerMinute > 0 {
		s.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.PerMinute)), 1)
	}
	return s
}

func (s *SMTPSender) ProviderID() string { return "smtp" }

// Send blocks until the rate limiter admits the message or ctx ends.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("smtp rate limit: %w", err)
	}
	return s.send(s.addr, s.auth, s.from, []string{msg.To}, buildMessage(s.from, msg))
}

const boundary = "vetcall-alt-boundary"

func buildMessage(from string, msg Message) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary)

	fmt.Fprintf(&b, "--%s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n", boundary, msg.Text)
	fmt.Fprintf(&b, "--%s\r\nContent-Type: text/html; charset=utf-8\r\n\r\n%s\r\n", boundary, msg.HTML)
	fmt.Fprintf(&b, "--%s--\r\n", boundary)
	return []byte(b.String())
}
