// Package notify delivers account emails. Delivery is best-effort: the core
// treats any failure, including timeout, as a degraded result and never as
// an operation failure.
package notify

import (
	"context"
	"fmt"
	"time"

	"gopkg.in/gomail.v2"
)

// Gateway is the outbound notification contract. Send returns an error on
// delivery failure; retries, if any, belong to the implementation.
type Gateway interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPConfig holds the mail server settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// Timeout bounds a single delivery attempt. Zero means 10 seconds.
	Timeout time.Duration
}

type smtpGateway struct {
	cfg SMTPConfig

	// dialAndSend performs one delivery attempt. Overridable in tests.
	dialAndSend func(m *gomail.Message) error
}

// NewSMTPGateway creates a gomail-backed Gateway.
func NewSMTPGateway(cfg SMTPConfig) Gateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	g := &smtpGateway{cfg: cfg}
	g.dialAndSend = func(m *gomail.Message) error {
		d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
		return d.DialAndSend(m)
	}
	return g
}

// Send delivers one plain-text message under a bounded deadline. gomail has
// no context support, so the dial-and-send runs in its own goroutine and the
// deadline abandons it; a timed-out send counts as a delivery failure.
func (g *smtpGateway) Send(ctx context.Context, to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", g.cfg.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- g.dialAndSend(m)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send mail: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("send mail: %w", ctx.Err())
	}
}

// OTPEmail renders the subject and body for a verification or reset code.
func OTPEmail(purpose, code string, ttl time.Duration) (subject, body string) {
	minutes := int(ttl.Minutes())
	switch purpose {
	case "password_reset":
		subject = "Password reset code"
		body = fmt.Sprintf("Your password reset code is: %s\n\nThis code expires in %d minutes.", code, minutes)
	default:
		subject = "Verify your email"
		body = fmt.Sprintf("Your email verification code is: %s\n\nThis code expires in %d minutes.", code, minutes)
	}
	return subject, body
}
