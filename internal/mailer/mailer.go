// Package mailer delivers rendered reports to a single recipient.
package mailer

import (
	"context"
	"fmt"
	"sync"
	"time"

	mail "github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

// Gateway sends one email. It reports success as a bool and never retries;
// transport errors are logged by the implementation.
type Gateway interface {
	Send(ctx context.Context, to, subject, htmlBody string) bool
}

// Settings configures the SMTP transport.
type Settings struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	TLS      string // ssl|starttls|none
	Timeout  time.Duration
}

// dialer is the part of *mail.Client the gateway uses.
type dialer interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// SMTP is a Gateway over an SMTP relay.
type SMTP struct {
	from   string
	client dialer
	log    *zap.Logger
	mu     sync.Mutex // one SMTP conversation at a time
}

// NewSMTP builds the SMTP client; no connection is made until the first send.
func NewSMTP(s Settings, log *zap.Logger) (*SMTP, error) {
	opts := []mail.Option{mail.WithPort(s.Port)}
	if s.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(s.Timeout))
	}
	switch s.TLS {
	case "ssl":
		opts = append(opts, mail.WithSSL())
	case "starttls":
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	case "none":
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	default:
		return nil, fmt.Errorf("unknown tls mode %q", s.TLS)
	}
	if s.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.Username),
			mail.WithPassword(s.Password),
		)
	}

	client, err := mail.NewClient(s.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &SMTP{from: s.From, client: client, log: log}, nil
}

// Send delivers one HTML email. Any failure is logged and reported as false.
func (g *SMTP) Send(ctx context.Context, to, subject, htmlBody string) bool {
	msg, err := g.message(to, subject, htmlBody)
	if err != nil {
		g.log.Error("build email failed", zap.String("to", to), zap.Error(err))
		return false
	}

	g.mu.Lock()
	err = g.client.DialAndSendWithContext(ctx, msg)
	g.mu.Unlock()
	if err != nil {
		g.log.Error("send email failed", zap.String("to", to), zap.Error(err))
		return false
	}

	g.log.Info("email sent", zap.String("to", to))
	return true
}

func (g *SMTP) message(to, subject, htmlBody string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(g.from); err != nil {
		return nil, fmt.Errorf("from: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, htmlBody)
	return msg, nil
}

// LogOnly is a Gateway for environments without SMTP: it logs and reports success.
type LogOnly struct {
	log *zap.Logger
}

func NewLogOnly(log *zap.Logger) *LogOnly {
	return &LogOnly{log: log}
}

func (g *LogOnly) Send(_ context.Context, to, subject, htmlBody string) bool {
	g.log.Info("email delivery disabled, report not sent",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.Int("bytes", len(htmlBody)),
	)
	return true
}
