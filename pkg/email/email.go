// Package email delivers transactional mail through SendGrid, or writes it to the log when
// no provider is configured.
package email

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/eduplan-api/pkg/config"
	"github.com/noah-isme/eduplan-api/pkg/retry"
)

// Providers accepted in EMAIL_PROVIDER.
const (
	ProviderSendGrid = "sendgrid"
	ProviderLog      = "log"
	ProviderNone     = "none"
)

// Message is a single outgoing e-mail.
type Message struct {
	ToName   string
	ToEmail  string
	Subject  string
	Text     string
	HTML     string
	Template string
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// NewSender picks the sender implementation for the configured provider.
func NewSender(cfg config.EmailConfig, policy retry.Policy, logger *zap.Logger) (Sender, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Provider {
	case ProviderSendGrid:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("sendgrid provider requires SENDGRID_API_KEY")
		}
		return NewSendGridSender(cfg.APIKey, cfg.FromName, cfg.FromEmail, policy, logger), nil
	case ProviderNone:
		return NoopSender{}, nil
	case ProviderLog, "":
		return NewLogSender(logger), nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
	}
}

// LogSender records messages in the application log instead of sending them.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender constructs a LogSender.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

// Send implements Sender.
func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.logger.Info("email (log provider)",
		zap.String("to", msg.ToEmail),
		zap.String("subject", msg.Subject),
		zap.String("template", msg.Template),
	)
	return nil
}

// NoopSender drops every message.
type NoopSender struct{}

// Send implements Sender.
func (NoopSender) Send(context.Context, Message) error { return nil }
