package email

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/noah-isme/eduplan-api/pkg/retry"
)

const (
	defaultHost = "https://api.sendgrid.com"
	endpoint    = "/v3/mail/send"
)

// StatusError reports a non-2xx answer from SendGrid.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("sendgrid responded %d: %s", e.StatusCode, e.Body)
}

// SendGridSender sends mail through the SendGrid v3 API with retries on transient failures.
type SendGridSender struct {
	key    string
	host   string
	from   *sgmail.Email
	policy retry.Policy
	logger *zap.Logger
}

// NewSendGridSender constructs a SendGrid sender.
func NewSendGridSender(key, fromName, fromEmail string, policy retry.Policy, logger *zap.Logger) *SendGridSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SendGridSender{
		key:    key,
		host:   defaultHost,
		from:   sgmail.NewEmail(fromName, fromEmail),
		policy: policy,
		logger: logger,
	}
}

// WithHost points the sender at another API host.
func (s *SendGridSender) WithHost(host string) *SendGridSender {
	s.host = host
	return s
}

// Send implements Sender.
func (s *SendGridSender) Send(ctx context.Context, msg Message) error {
	body := sgmail.GetRequestBody(s.prepare(msg))

	return retry.Do(ctx, s.policy, isRetryable, func(context.Context) error {
		req := sendgrid.GetRequest(s.key, endpoint, s.host)
		req.Method = http.MethodPost
		req.Body = body

		res, err := sendgrid.API(req)
		if err != nil {
			return err
		}
		if res.StatusCode >= http.StatusBadRequest {
			return &StatusError{StatusCode: res.StatusCode, Body: res.Body}
		}
		return nil
	}, func(err error, attempt int, next time.Duration) {
		s.logger.Warn("sendgrid send failed, retrying",
			zap.String("to", msg.ToEmail),
			zap.Int("attempt", attempt),
			zap.Duration("next", next),
			zap.Error(err),
		)
	})
}

func (s *SendGridSender) prepare(msg Message) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = msg.Subject
	p.AddTos(sgmail.NewEmail(msg.ToName, msg.ToEmail))

	m := sgmail.NewV3Mail()
	m.SetFrom(s.from)
	m.AddPersonalizations(p)
	m.AddContent(sgmail.NewContent("text/plain", msg.Text))
	if msg.HTML != "" {
		m.AddContent(sgmail.NewContent("text/html", msg.HTML))
	}
	if msg.Template != "" {
		m.AddCategories(msg.Template)
	}
	return m
}

func isRetryable(err error) bool {
	if statusErr, ok := err.(*StatusError); ok {
		return retry.RetryableStatus(statusErr.StatusCode)
	}
	return true
}
