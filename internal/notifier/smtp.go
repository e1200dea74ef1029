package notifier

import (
	"context"
	"crypto/tls"
	"strings"
	"time"

	mail "gopkg.in/mail.v2"
)

type mailDialer interface {
	DialAndSend(m ...*mail.Message) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
	TLS      bool
}

type SMTP struct {
	from   string
	to     []string
	dialer mailDialer
}

func NewSMTP(cfg SMTPConfig) *SMTP {
	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.TLSConfig = &tls.Config{ServerName: cfg.Host}
	d.Timeout = 15 * time.Second
	if cfg.TLS {
		d.SSL = true
	} else {
		d.StartTLSPolicy = mail.OpportunisticStartTLS
	}
	return &SMTP{from: cfg.From, to: cfg.To, dialer: d}
}

// SplitAddresses parses a comma separated recipient list.
func SplitAddresses(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (s *SMTP) Name() string { return "smtp" }

func (s *SMTP) Send(ctx context.Context, subject, body string) error {
	m := mail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", s.to...)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	done := make(chan error, 1)
	go func() { done <- s.dialer.DialAndSend(m) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
