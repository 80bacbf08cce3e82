// Package notify delivers account emails: password reset links and welcome
// messages for bootstrapped accounts.
package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	mail "github.com/go-mail/mail"
	"go.uber.org/zap"

	"github.com/hrapp/hr-auth/config"
)

// Notifier sends account emails
type Notifier interface {
	SendPasswordReset(ctx context.Context, to, name, link string) error
	SendWelcome(ctx context.Context, to, name, role, tempPassword string) error
}

// dialer is the subset of *mail.Dialer the notifier needs
type dialer interface {
	DialAndSend(m ...*mail.Message) error
}

// SMTPNotifier sends mail through an SMTP relay
type SMTPNotifier struct {
	from   string
	dialer dialer
	logger *zap.Logger
}

// NewSMTPNotifier creates a notifier for the given SMTP settings
func NewSMTPNotifier(cfg config.SMTPConfig, logger *zap.Logger) *SMTPNotifier {
	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.TLSConfig = &tls.Config{ServerName: cfg.Host}

	switch strings.ToLower(cfg.TLSMode) {
	case "ssl":
		d.SSL = true
	case "starttls":
		d.StartTLSPolicy = mail.MandatoryStartTLS
	case "none":
		d.StartTLSPolicy = mail.NoStartTLS
	default:
		// auto: upgrade when the server offers STARTTLS
	}

	return &SMTPNotifier{
		from:   cfg.From,
		dialer: d,
		logger: logger,
	}
}

// SendPasswordReset emails a reset link
func (n *SMTPNotifier) SendPasswordReset(ctx context.Context, to, name, link string) error {
	html, text, err := renderPasswordReset(name, link)
	if err != nil {
		return err
	}
	return n.send(ctx, to, "Reset your password", html, text)
}

// SendWelcome emails the credentials of a newly provisioned account
func (n *SMTPNotifier) SendWelcome(ctx context.Context, to, name, role, tempPassword string) error {
	html, text, err := renderWelcome(name, to, role, tempPassword)
	if err != nil {
		return err
	}
	return n.send(ctx, to, "Your HR account is ready", html, text)
}

func (n *SMTPNotifier) send(ctx context.Context, to, subject, htmlBody, textBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := mail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", textBody)
	m.AddAlternative("text/html", htmlBody)

	n.logger.Debug("sending email", zap.String("to", to), zap.String("subject", subject))
	if err := n.dialer.DialAndSend(m); err != nil {
		n.logger.Error("email delivery failed", zap.String("to", to), zap.Error(err))
		return fmt.Errorf("smtp send: %w", err)
	}
	n.logger.Info("email sent", zap.String("to", to), zap.String("subject", subject))
	return nil
}

// LogNotifier writes messages to the log instead of sending them. Used when
// no SMTP host is configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a logging notifier
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// SendPasswordReset logs the reset link
func (n *LogNotifier) SendPasswordReset(_ context.Context, to, name, link string) error {
	n.logger.Info("password reset email (not sent, SMTP disabled)",
		zap.String("to", to),
		zap.String("name", name),
		zap.String("link", link),
	)
	return nil
}

// SendWelcome logs the welcome message. The temporary password is not logged.
func (n *LogNotifier) SendWelcome(_ context.Context, to, name, role, _ string) error {
	n.logger.Info("welcome email (not sent, SMTP disabled)",
		zap.String("to", to),
		zap.String("name", name),
		zap.String("role", role),
	)
	return nil
}

// New picks the SMTP notifier when a host is configured and the log notifier otherwise
func New(cfg config.SMTPConfig, logger *zap.Logger) Notifier {
	if cfg.Host == "" {
		return NewLogNotifier(logger)
	}
	return NewSMTPNotifier(cfg, logger)
}
